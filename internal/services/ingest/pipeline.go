package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/common"
	"github.com/kstocklab/finsight/internal/models"
	"github.com/kstocklab/finsight/internal/services/state"
)

// Pipeline runs the fixed ingestion stage graph for one file:
// split, analyze, extract, then crop and summarize per visual element with
// text passing through, finishing with an atomic state-store merge.
type Pipeline struct {
	splitter   *Splitter
	analyzer   *Analyzer
	cropper    *Cropper
	summarizer *Summarizer
	store      *state.Store
	publisher  ProgressPublisher
	workDir    string
	logger     arbor.ILogger
}

// PipelineOptions carries the collaborators a pipeline needs.
type PipelineOptions struct {
	Splitter   *Splitter
	Analyzer   *Analyzer
	Cropper    *Cropper
	Summarizer *Summarizer
	Store      *state.Store
	Publisher  ProgressPublisher
	WorkDir    string
	Logger     arbor.ILogger
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	publisher := opts.Publisher
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &Pipeline{
		splitter:   opts.Splitter,
		analyzer:   opts.Analyzer,
		cropper:    opts.Cropper,
		summarizer: opts.Summarizer,
		store:      opts.Store,
		publisher:  publisher,
		workDir:    opts.WorkDir,
		logger:     opts.Logger,
	}
}

// Run processes one saved PDF end to end and merges the result into the
// ingestion state under savedFilename. Returns the per-file state written.
func (p *Pipeline) Run(ctx context.Context, fileID, savedFilename, pdfPath string) (models.FileState, error) {
	uid := common.NewIngestionUID()
	uidDir := filepath.Join(p.workDir, uid)

	log := p.logger.WithPrefix("pipeline")
	log.Info().Str("file_id", fileID).Str("uid", uid).Str("path", pdfPath).Msg("Starting ingestion")

	p.progress(fileID, savedFilename, "split", models.StatusProcessing, 5, "")

	batches, err := p.splitter.Split(pdfPath, uidDir)
	if err != nil {
		return models.FileState{}, p.fail(fileID, savedFilename, "split", err)
	}
	log.Info().Int("batches", len(batches)).Msg("Split complete")

	p.progress(fileID, savedFilename, "analyze", models.StatusProcessing, 15, "")

	batchResults := make([]BatchResult, 0, len(batches))
	for i, batch := range batches {
		result, err := p.analyzer.Analyze(ctx, batch.Path)
		if err != nil {
			return models.FileState{}, p.fail(fileID, savedFilename, "analyze", err)
		}
		batchResults = append(batchResults, BatchResult{StartPage: batch.StartPage, Result: result})
		pct := 15 + (25*(i+1))/len(batches)
		p.progress(fileID, savedFilename, "analyze", models.StatusProcessing, pct,
			fmt.Sprintf("batch %d/%d", i+1, len(batches)))
	}

	doc := MergeBatches(batchResults)
	log.Info().Int("elements", len(doc.ByID)).Int("pages", len(doc.Pages)).Msg("Extraction complete")

	p.progress(fileID, savedFilename, "crop", models.StatusProcessing, 45, "")

	figures := doc.Figures()
	tables := doc.Tables()
	figurePaths := p.cropAll(pdfPath, figures, doc, filepath.Join(uidDir, "images"))
	tablePaths := p.cropAll(pdfPath, tables, doc, filepath.Join(uidDir, "tables"))

	p.progress(fileID, savedFilename, "summarize", models.StatusProcessing, 60, "")

	fileState := models.NewFileState()
	fileState.ProcessingUID = uid
	fileState.TextElementOutput = PassThroughText(doc.Texts())

	// Figure and table summarization hit the same rate limiter, so running
	// them concurrently interleaves without exceeding the request budget.
	var wg sync.WaitGroup
	var imageSummaries, tableSummaries map[string]models.ElementRecord
	var imageErr, tableErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		imageSummaries, imageErr = p.summarizer.SummarizeFigures(ctx, figures, figurePaths)
	}()
	go func() {
		defer wg.Done()
		tableSummaries, tableErr = p.summarizer.SummarizeTables(ctx, tables, tablePaths)
	}()
	wg.Wait()
	if imageErr != nil {
		return models.FileState{}, p.fail(fileID, savedFilename, "summarize", imageErr)
	}
	if tableErr != nil {
		return models.FileState{}, p.fail(fileID, savedFilename, "summarize", tableErr)
	}
	fileState.ImageSummary = imageSummaries
	fileState.TableSummary = tableSummaries
	fileState.ParsingProcessed = true

	p.progress(fileID, savedFilename, "persist", models.StatusProcessing, 90, "")

	if err := p.store.MergeAndWrite(savedFilename, fileState); err != nil {
		return models.FileState{}, p.fail(fileID, savedFilename, "persist", err)
	}

	p.progress(fileID, savedFilename, "done", models.StatusCompleted, 100, "")
	log.Info().Str("file_id", fileID).
		Int("text", len(fileState.TextElementOutput)).
		Int("figures", len(fileState.ImageSummary)).
		Int("tables", len(fileState.TableSummary)).
		Msg("Ingestion complete")
	return fileState, nil
}

// cropAll crops every element into outDir. A crop failure skips the element
// image; its summary will come back empty but the element still counts.
func (p *Pipeline) cropAll(pdfPath string, elements []models.Element, doc *DocumentElements, outDir string) map[int]string {
	paths := make(map[int]string, len(elements))
	for _, el := range elements {
		dims := doc.PageDims[el.Page]
		path, err := p.cropper.CropElement(pdfPath, el, dims, outDir)
		if err != nil {
			p.logger.Warn().Err(err).Int("element_id", el.ID).Int("page", el.Page).Msg("Crop failed")
			continue
		}
		paths[el.ID] = path
	}
	return paths
}

func (p *Pipeline) progress(fileID, filename, stage string, status models.ProcessingStatus, pct int, msg string) {
	p.publisher.Publish(ProgressEvent{
		FileID:   fileID,
		Filename: filename,
		Stage:    stage,
		Status:   status,
		Message:  msg,
		Percent:  pct,
	})
}

func (p *Pipeline) fail(fileID, filename, stage string, err error) error {
	p.logger.Error().Err(err).Str("file_id", fileID).Str("stage", stage).Msg("Ingestion stage failed")
	p.progress(fileID, filename, stage, models.StatusFailed, 0, err.Error())
	return fmt.Errorf("%s stage failed: %w", stage, err)
}
