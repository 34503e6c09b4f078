package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/models"
)

func writeBatchFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report_0000_0009.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fixture"), 0644))
	return path
}

func TestAnalyzerNormalizesCoordinates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))
		assert.Equal(t, "document-parse", r.FormValue("model"))
		assert.Equal(t, "force", r.FormValue("ocr"))
		assert.Equal(t, "true", r.FormValue("coordinates"))
		_, header, err := r.FormFile("document")
		require.NoError(t, err)
		assert.Equal(t, "report_0000_0009.pdf", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"usage": {"pages": 2},
			"elements": [
				{
					"id": 0, "page": 1, "category": "paragraph",
					"coordinates": [{"x":0.1,"y":0.2},{"x":0.5,"y":0.2},{"x":0.5,"y":0.4},{"x":0.1,"y":0.4}],
					"content": {"text": "서문", "html": "<p>서문</p>"}
				},
				{
					"id": 1, "page": 2, "category": "chart",
					"coordinates": [{"x":100,"y":200},{"x":500,"y":200},{"x":500,"y":600},{"x":100,"y":600}],
					"content": {"html": "<figure/>"}
				},
				{
					"id": 2, "page": 2, "category": "table",
					"coordinates": [{"x":0.0,"y":0.5},{"x":1.0,"y":0.5},{"x":1.0,"y":0.9},{"x":0.0,"y":0.9}],
					"content": {"html": "<table><tr><td>매출</td></tr></table>"}
				}
			]
		}`))
	}))
	defer server.Close()

	analyzer := NewAnalyzer(server.URL, "test-key", 150, &stubRenderer{pages: 2}, arbor.NewLogger())
	result, err := analyzer.Analyze(context.Background(), writeBatchFixture(t))
	require.NoError(t, err)

	require.Len(t, result.Pages, 2)
	assert.Equal(t, float64(FallbackPageWidth150), result.Pages[0].Width)
	assert.Equal(t, float64(FallbackPageHeight150), result.Pages[0].Height)

	require.Len(t, result.Elements, 3)

	// Normalized 0-1 coordinates expand to the analyzer pixel frame.
	text := result.Elements[0]
	assert.Equal(t, models.CategoryText, text.Category)
	assert.InDelta(t, 0.1*FallbackPageWidth150, text.BBox[0].X, 0.01)
	assert.InDelta(t, 0.2*FallbackPageHeight150, text.BBox[0].Y, 0.01)
	assert.Equal(t, "서문", text.Text)

	// Absolute coordinates pass through untouched.
	figure := result.Elements[1]
	assert.Equal(t, models.CategoryFigure, figure.Category)
	assert.Equal(t, 100.0, figure.BBox[0].X)
	assert.Equal(t, 600.0, figure.BBox[3].Y)

	// Missing text falls back to flattened HTML.
	table := result.Elements[2]
	assert.Equal(t, models.CategoryTable, table.Category)
	assert.Equal(t, "매출", table.Text)
}

func TestAnalyzerRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"usage": {"pages": 1}, "elements": []}`))
	}))
	defer server.Close()

	analyzer := NewAnalyzer(server.URL, "test-key", 150, &stubRenderer{pages: 1}, arbor.NewLogger())
	result, err := analyzer.Analyze(context.Background(), writeBatchFixture(t))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, result.Pages, 1)
}

func TestAnalyzerExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	analyzer := NewAnalyzer(server.URL, "test-key", 150, &stubRenderer{pages: 1}, arbor.NewLogger(),
		WithAnalyzerRetries(2))
	_, err := analyzer.Analyze(context.Background(), writeBatchFixture(t))
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestConvertTableHTML(t *testing.T) {
	md := ConvertTableHTML("<table><tr><th>분기</th><th>매출</th></tr><tr><td>1Q</td><td>100</td></tr></table>")
	assert.Contains(t, md, "분기")
	assert.Contains(t, md, "1Q")
	assert.Contains(t, md, "|")

	assert.Equal(t, "", ConvertTableHTML("   "))
}

func TestExtractHTMLText(t *testing.T) {
	assert.Equal(t, "투자의견 매수", ExtractHTMLText("<p>투자의견 <b>매수</b></p>"))
}
