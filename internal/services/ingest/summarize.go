package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/kstocklab/finsight/internal/models"
	"github.com/kstocklab/finsight/internal/services/llm"
)

const (
	figurePrompt = "You are analyzing a figure cropped from a Korean equity research report. " +
		"Describe the chart or image precisely: what is plotted, the axes, visible trends, " +
		"and any numbers or tickers shown. Answer in Korean."

	tablePrompt = "You are analyzing a table cropped from a Korean equity research report. " +
		"A markdown rendering of the table follows. Summarize the key figures and what the " +
		"table conveys. Answer in Korean.\n\n%s"
)

// Summarizer derives per-element summaries through a vision LLM. Calls are
// sequential behind a token-bucket limiter; a failed call yields an empty
// summary so element counts stay stable downstream.
type Summarizer struct {
	provider llm.VisionProvider
	limiter  *rate.Limiter
	logger   arbor.ILogger
}

// NewSummarizer builds a summarizer limited to rps requests per second with
// the given burst.
func NewSummarizer(provider llm.VisionProvider, rps float64, burst int, logger arbor.ILogger) *Summarizer {
	return &Summarizer{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		logger:   logger,
	}
}

// SummarizeFigures summarizes cropped figure images in element order.
// imagePaths maps element ID to the cropped PNG written by the cropper.
func (s *Summarizer) SummarizeFigures(ctx context.Context, elements []models.Element, imagePaths map[int]string) (map[string]models.ElementRecord, error) {
	out := make(map[string]models.ElementRecord, len(elements))
	for _, el := range elements {
		summary := s.summarizeImage(ctx, el, imagePaths[el.ID], figurePrompt)
		out[recordKey(el.ID)] = models.ElementRecord{Page: el.Page, BBox: el.BBox, Content: summary}
		if err := ctx.Err(); err != nil {
			return out, err
		}
	}
	return out, nil
}

// SummarizeTables summarizes cropped table images in element order, feeding
// the markdown rendering of the table HTML alongside the crop.
func (s *Summarizer) SummarizeTables(ctx context.Context, elements []models.Element, imagePaths map[int]string) (map[string]models.ElementRecord, error) {
	out := make(map[string]models.ElementRecord, len(elements))
	for _, el := range elements {
		prompt := fmt.Sprintf(tablePrompt, ConvertTableHTML(el.HTML))
		summary := s.summarizeImage(ctx, el, imagePaths[el.ID], prompt)
		out[recordKey(el.ID)] = models.ElementRecord{Page: el.Page, BBox: el.BBox, Content: summary}
		if err := ctx.Err(); err != nil {
			return out, err
		}
	}
	return out, nil
}

// PassThroughText emits text elements as records without any LLM call.
func PassThroughText(elements []models.Element) map[string]models.ElementRecord {
	out := make(map[string]models.ElementRecord, len(elements))
	for _, el := range elements {
		out[recordKey(el.ID)] = models.ElementRecord{Page: el.Page, BBox: el.BBox, Content: el.Text}
	}
	return out
}

func (s *Summarizer) summarizeImage(ctx context.Context, el models.Element, imagePath, prompt string) string {
	if imagePath == "" {
		s.logger.Warn().Int("element_id", el.ID).Msg("No cropped image for element, summary left empty")
		return ""
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return ""
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		s.logger.Warn().Err(err).Int("element_id", el.ID).Msg("Failed to read cropped image")
		return ""
	}
	summary, err := s.provider.SummarizeImage(ctx, data, prompt)
	if err != nil {
		s.logger.Warn().Err(err).Int("element_id", el.ID).Str("provider", s.provider.Name()).
			Msg("Summarizer call failed, summary left empty")
		return ""
	}
	return summary
}

func recordKey(id int) string {
	return fmt.Sprintf("%d", id)
}
