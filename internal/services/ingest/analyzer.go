package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/models"
)

// Analyzer calls the external document-parse service once per batch PDF and
// normalizes its response to the internal element shape with absolute pixel
// coordinates at the analyzer DPI.
type Analyzer struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	renderer    Renderer
	logger      arbor.ILogger
	maxRetries  int
	analyzerDPI int
}

// AnalyzerOption configures the Analyzer.
type AnalyzerOption func(*Analyzer)

// WithAnalyzerHTTPClient sets a custom HTTP client.
func WithAnalyzerHTTPClient(httpClient *http.Client) AnalyzerOption {
	return func(a *Analyzer) {
		a.httpClient = httpClient
	}
}

// WithAnalyzerRetries overrides the retry budget.
func WithAnalyzerRetries(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n >= 1 {
			a.maxRetries = n
		}
	}
}

// NewAnalyzer creates a layout analyzer client.
func NewAnalyzer(baseURL, apiKey string, analyzerDPI int, renderer Renderer, logger arbor.ILogger, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		baseURL:     baseURL,
		apiKey:      apiKey,
		renderer:    renderer,
		logger:      logger,
		maxRetries:  3,
		analyzerDPI: analyzerDPI,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// serviceElement is the document-parse service's native element shape.
type serviceElement struct {
	ID          int    `json:"id"`
	Page        int    `json:"page"`
	Category    string `json:"category"`
	Coordinates []struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"coordinates"`
	Content struct {
		HTML     string `json:"html"`
		Markdown string `json:"markdown"`
		Text     string `json:"text"`
	} `json:"content"`
}

// serviceResponse is the service's native payload.
type serviceResponse struct {
	Elements []serviceElement `json:"elements"`
	Usage    struct {
		Pages int `json:"pages"`
	} `json:"usage"`
}

// Analyze posts one batch PDF and returns the normalized result. Transport
// and non-2xx failures are retried with exponential backoff.
func (a *Analyzer) Analyze(ctx context.Context, batchPath string) (*models.AnalyzerResult, error) {
	var lastErr error
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second << (attempt - 1)):
			}
		}

		resp, err := a.post(ctx, batchPath)
		if err == nil {
			return a.normalize(batchPath, resp)
		}
		lastErr = err
		a.logger.Warn().Err(err).
			Int("attempt", attempt+1).
			Str("batch", filepath.Base(batchPath)).
			Msg("Document analyzer request failed")
	}
	return nil, fmt.Errorf("analyzer failed after %d attempts: %w", a.maxRetries, lastErr)
}

func (a *Analyzer) post(ctx context.Context, batchPath string) (*serviceResponse, error) {
	file, err := os.Open(batchPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open batch PDF: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("document", filepath.Base(batchPath))
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy PDF into form: %w", err)
	}

	fields := map[string]string{
		"model":             "document-parse",
		"ocr":               "force",
		"chart_recognition": "true",
		"coordinates":       "true",
		"output_formats":    `["html", "markdown", "text"]`,
		"base64_encoding":   "[]",
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyzer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("analyzer returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out serviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode analyzer response: %w", err)
	}
	return &out, nil
}

// normalize converts the service payload to the internal shape. Normalized
// 0-1 coordinates are multiplied by the locally measured page size at the
// analyzer DPI; absolute coordinates pass through unchanged.
func (a *Analyzer) normalize(batchPath string, resp *serviceResponse) (*models.AnalyzerResult, error) {
	result := &models.AnalyzerResult{}

	pageDims := make(map[int][2]float64)
	measure := func(page int) [2]float64 {
		if dims, ok := pageDims[page]; ok {
			return dims
		}
		w, h, err := a.renderer.PageSize(batchPath, page, a.analyzerDPI)
		if err != nil || w <= 0 || h <= 0 {
			scale := float64(a.analyzerDPI) / 150.0
			w, h = FallbackPageWidth150*scale, FallbackPageHeight150*scale
		}
		dims := [2]float64{w, h}
		pageDims[page] = dims
		return dims
	}

	maxPage := resp.Usage.Pages
	for _, el := range resp.Elements {
		if el.Page > maxPage {
			maxPage = el.Page
		}
	}
	for page := 1; page <= maxPage; page++ {
		dims := measure(page)
		result.Pages = append(result.Pages, models.AnalyzerPage{
			Page:   page,
			Width:  dims[0],
			Height: dims[1],
		})
	}

	for _, el := range resp.Elements {
		dims := measure(el.Page)

		points := make([]models.Point, 0, len(el.Coordinates))
		normalized := len(el.Coordinates) > 0
		for _, c := range el.Coordinates {
			if c.X > 1.5 || c.Y > 1.5 {
				normalized = false
			}
		}
		for _, c := range el.Coordinates {
			if normalized {
				points = append(points, models.Point{X: c.X * dims[0], Y: c.Y * dims[1]})
			} else {
				points = append(points, models.Point{X: c.X, Y: c.Y})
			}
		}

		text := el.Content.Text
		if text == "" && el.Content.HTML != "" {
			text = ExtractHTMLText(el.Content.HTML)
		}

		result.Elements = append(result.Elements, models.Element{
			ID:       el.ID,
			Page:     el.Page,
			Category: mapCategory(el.Category),
			BBox:     points,
			Text:     text,
			HTML:     el.Content.HTML,
		})
	}

	return result, nil
}

// mapCategory applies the visual-category policy: charts and tables are
// visual, everything else is text.
func mapCategory(category string) models.ElementCategory {
	switch strings.ToLower(category) {
	case "chart", "figure":
		return models.CategoryFigure
	case "table":
		return models.CategoryTable
	default:
		return models.CategoryText
	}
}

// ExtractHTMLText flattens an analyzer HTML fragment to plain text.
func ExtractHTMLText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}
