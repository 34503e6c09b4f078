package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/models"
)

type stubProvider struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]bool
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) SummarizeImage(_ context.Context, image []byte, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := string(image)
	p.calls = append(p.calls, key)
	if p.failOn[key] {
		return "", fmt.Errorf("model refused")
	}
	return "summary of " + key, nil
}

func (p *stubProvider) SummarizeText(_ context.Context, prompt string) (string, error) {
	return "text summary", nil
}

func writeCrops(t *testing.T, ids ...int) map[int]string {
	t.Helper()
	dir := t.TempDir()
	paths := make(map[int]string, len(ids))
	for _, id := range ids {
		path := filepath.Join(dir, fmt.Sprintf("%d.png", id))
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("crop-%d", id)), 0644))
		paths[id] = path
	}
	return paths
}

func TestSummarizeFiguresPreservesOrderAndShape(t *testing.T) {
	provider := &stubProvider{}
	s := NewSummarizer(provider, 1000, 1000, arbor.NewLogger())

	elements := []models.Element{
		{ID: 3, Page: 0, Category: models.CategoryFigure, BBox: []models.Point{{X: 1, Y: 2}}},
		{ID: 7, Page: 2, Category: models.CategoryFigure, BBox: []models.Point{{X: 5, Y: 6}}},
	}
	out, err := s.SummarizeFigures(context.Background(), elements, writeCrops(t, 3, 7))
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, []string{"crop-3", "crop-7"}, provider.calls, "calls follow element order")
	assert.Equal(t, "summary of crop-3", out["3"].Content)
	assert.Equal(t, 2, out["7"].Page)
	assert.Equal(t, 5.0, out["7"].BBox[0].X)
}

func TestSummarizeFailureYieldsEmptyString(t *testing.T) {
	provider := &stubProvider{failOn: map[string]bool{"crop-2": true}}
	s := NewSummarizer(provider, 1000, 1000, arbor.NewLogger())

	elements := []models.Element{
		{ID: 1, Category: models.CategoryFigure},
		{ID: 2, Category: models.CategoryFigure},
		{ID: 4, Category: models.CategoryFigure},
	}
	out, err := s.SummarizeFigures(context.Background(), elements, writeCrops(t, 1, 2, 4))
	require.NoError(t, err)
	require.Len(t, out, 3, "failed element must still appear")
	assert.Equal(t, "", out["2"].Content)
	assert.NotEmpty(t, out["1"].Content)
	assert.NotEmpty(t, out["4"].Content)
}

func TestSummarizeMissingCropYieldsEmptyString(t *testing.T) {
	provider := &stubProvider{}
	s := NewSummarizer(provider, 1000, 1000, arbor.NewLogger())

	out, err := s.SummarizeFigures(context.Background(),
		[]models.Element{{ID: 9, Category: models.CategoryFigure}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", out["9"].Content)
	assert.Empty(t, provider.calls, "no LLM call without an image")
}

func TestSummarizeRateLimiterSpacesCalls(t *testing.T) {
	provider := &stubProvider{}
	// 2 req/s with burst 1: three calls need at least ~1s of waiting.
	s := NewSummarizer(provider, 2, 1, arbor.NewLogger())

	elements := []models.Element{
		{ID: 1, Category: models.CategoryFigure},
		{ID: 2, Category: models.CategoryFigure},
		{ID: 3, Category: models.CategoryFigure},
	}
	start := time.Now()
	_, err := s.SummarizeFigures(context.Background(), elements, writeCrops(t, 1, 2, 3))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestPassThroughText(t *testing.T) {
	out := PassThroughText([]models.Element{
		{ID: 0, Page: 4, Text: "본문 문단", BBox: []models.Point{{X: 10, Y: 20}}},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "본문 문단", out["0"].Content)
	assert.Equal(t, 4, out["0"].Page)
}

func TestSummarizeTablesFeedsMarkdown(t *testing.T) {
	provider := &stubProvider{}
	s := NewSummarizer(provider, 1000, 1000, arbor.NewLogger())

	elements := []models.Element{{
		ID:       5,
		Category: models.CategoryTable,
		HTML:     "<table><tr><td>영업이익</td></tr></table>",
	}}
	out, err := s.SummarizeTables(context.Background(), elements, writeCrops(t, 5))
	require.NoError(t, err)
	assert.Equal(t, "summary of crop-5", out["5"].Content)
}
