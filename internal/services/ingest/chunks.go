package ingest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kstocklab/finsight/internal/models"
)

// BuildChunks converts a file's stored element records into the served
// chunk list. Polygons are normalized against the page dimensions the
// analyzer saw; the higher render-DPI dimensions ride along only as
// display hints for the front-end overlay.
func BuildChunks(state *models.FileState, pdfPath string, renderer Renderer, analyzerDPI, renderDPI int) ([]models.Chunk, error) {
	sizer := newPageSizer(pdfPath, renderer)

	chunks := make([]models.Chunk, 0,
		len(state.TextElementOutput)+len(state.ImageSummary)+len(state.TableSummary))

	appendAll := func(records map[string]models.ElementRecord, chunkType models.ChunkType) {
		for key, rec := range records {
			chunks = append(chunks, buildChunk(key, rec, chunkType, sizer, analyzerDPI, renderDPI))
		}
	}
	appendAll(state.TextElementOutput, models.ChunkText)
	appendAll(state.ImageSummary, models.ChunkImage)
	appendAll(state.TableSummary, models.ChunkTable)

	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].Page != chunks[j].Page {
			return chunks[i].Page < chunks[j].Page
		}
		return chunks[i].ChunkID < chunks[j].ChunkID
	})
	return chunks, nil
}

func buildChunk(key string, rec models.ElementRecord, chunkType models.ChunkType, sizer *pageSizer, analyzerDPI, renderDPI int) models.Chunk {
	page := rec.Page + 1

	analyzerW, analyzerH := sizer.size(page, analyzerDPI)
	renderW, renderH := sizer.size(page, renderDPI)

	pixels := make([][2]float64, 0, len(rec.BBox))
	for _, p := range rec.BBox {
		pixels = append(pixels, [2]float64{p.X, p.Y})
	}

	return models.Chunk{
		ChunkID:    string(chunkType) + "_" + key,
		Page:       page,
		BBoxNorm:   NormalizeBBox(rec.BBox, analyzerW, analyzerH),
		BBoxPixels: pixels,
		PageWidth:  renderW,
		PageHeight: renderH,
		ChunkType:  chunkType,
		Content:    rec.Content,
		Label:      chunkLabel(key, rec, chunkType),
	}
}

func chunkLabel(key string, rec models.ElementRecord, chunkType models.ChunkType) string {
	switch chunkType {
	case models.ChunkImage:
		return fmt.Sprintf("이미지 #%s", key)
	case models.ChunkTable:
		return fmt.Sprintf("테이블 #%s", key)
	default:
		line := rec.Content
		if idx := strings.IndexAny(line, "\r\n"); idx >= 0 {
			line = line[:idx]
		}
		runes := []rune(line)
		if len(runes) > 20 {
			runes = runes[:20]
		}
		return string(runes)
	}
}

// pageSizer caches per-page dimension measurements across DPI frames so a
// file with many elements on the same page measures it once.
type pageSizer struct {
	pdfPath  string
	renderer Renderer
	cache    map[string][2]float64
}

func newPageSizer(pdfPath string, renderer Renderer) *pageSizer {
	return &pageSizer{pdfPath: pdfPath, renderer: renderer, cache: make(map[string][2]float64)}
}

func (s *pageSizer) size(page, dpi int) (float64, float64) {
	key := strconv.Itoa(page) + "@" + strconv.Itoa(dpi)
	if dims, ok := s.cache[key]; ok {
		return dims[0], dims[1]
	}
	w, h, err := s.renderer.PageSize(s.pdfPath, page, dpi)
	if err != nil || w <= 0 || h <= 0 {
		scale := float64(dpi) / 150.0
		w, h = FallbackPageWidth150*scale, FallbackPageHeight150*scale
	}
	s.cache[key] = [2]float64{w, h}
	return w, h
}
