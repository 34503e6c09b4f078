package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/ternarybob/arbor"
)

// DefaultBatchSize is the page count per split batch.
const DefaultBatchSize = 10

// Batch is one fixed-size page slice of the input PDF written to disk.
// StartPage and EndPage are inclusive and 0-based; they are the
// authoritative page offset for all later stages.
type Batch struct {
	Path      string
	StartPage int
	EndPage   int
}

// Splitter writes fixed-size page batches of a PDF into the work
// directory's split/ folder.
type Splitter struct {
	batchSize int
	logger    arbor.ILogger
}

// NewSplitter creates a splitter. batchSize <= 0 selects the default.
func NewSplitter(batchSize int, logger arbor.ILogger) *Splitter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Splitter{
		batchSize: batchSize,
		logger:    logger,
	}
}

// Split cuts pdfPath into batches under workDir/split.
func (s *Splitter) Split(pdfPath, workDir string) ([]Batch, error) {
	pageCount, err := api.PageCountFile(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages of %s: %w", pdfPath, err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("PDF %s has no pages", pdfPath)
	}

	splitDir := filepath.Join(workDir, "split")
	if err := os.MkdirAll(splitDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create split directory: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))

	var batches []Batch
	for start := 0; start < pageCount; start += s.batchSize {
		end := start + s.batchSize - 1
		if end >= pageCount {
			end = pageCount - 1
		}

		outPath := filepath.Join(splitDir, fmt.Sprintf("%s_%04d_%04d.pdf", stem, start, end))
		// pdfcpu page selection is 1-based inclusive.
		selection := []string{fmt.Sprintf("%d-%d", start+1, end+1)}
		if err := api.TrimFile(pdfPath, outPath, selection, nil); err != nil {
			return nil, fmt.Errorf("failed to write batch %d-%d of %s: %w", start, end, pdfPath, err)
		}

		batches = append(batches, Batch{
			Path:      outPath,
			StartPage: start,
			EndPage:   end,
		})
	}

	s.logger.Debug().
		Int("pages", pageCount).
		Int("batches", len(batches)).
		Str("pdf", filepath.Base(pdfPath)).
		Msg("Split PDF into page batches")

	return batches, nil
}
