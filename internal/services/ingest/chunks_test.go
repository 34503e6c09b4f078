package ingest

import (
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kstocklab/finsight/internal/models"
)

// stubRenderer serves fixed A4 dimensions scaled by DPI without touching
// any PDF file.
type stubRenderer struct {
	pages int
}

func (r *stubRenderer) RenderPage(string, int, int) (image.Image, error) {
	return nil, fmt.Errorf("not rendered in this test")
}

func (r *stubRenderer) PageSize(_ string, _ int, dpi int) (float64, float64, error) {
	scale := float64(dpi) / 150.0
	return FallbackPageWidth150 * scale, FallbackPageHeight150 * scale, nil
}

func (r *stubRenderer) PageCount(string) (int, error) {
	return r.pages, nil
}

func rectPolygon(minX, minY, maxX, maxY float64) []models.Point {
	return []models.Point{
		{X: minX, Y: minY}, {X: maxX, Y: minY}, {X: maxX, Y: maxY}, {X: minX, Y: maxY},
	}
}

func TestBuildChunksFigureContract(t *testing.T) {
	// One figure on document page 2 at (100,200)-(500,600) in the
	// analyzer's 1241x1754 frame.
	state := models.NewFileState()
	state.ImageSummary["7"] = models.ElementRecord{
		Page:    1, // stored 0-based
		BBox:    rectPolygon(100, 200, 500, 600),
		Content: "월별 매출 추이 차트",
	}

	chunks, err := BuildChunks(&state, "report.pdf", &stubRenderer{pages: 3}, 150, 300)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	chunk := chunks[0]
	assert.Equal(t, "image_7", chunk.ChunkID)
	assert.Equal(t, 2, chunk.Page, "served pages are 1-based")
	assert.Equal(t, models.ChunkImage, chunk.ChunkType)
	assert.Equal(t, "이미지 #7", chunk.Label)

	assert.InDelta(t, 0.0806, chunk.BBoxNorm[0], 0.0005)
	assert.InDelta(t, 0.1141, chunk.BBoxNorm[1], 0.0005)
	assert.InDelta(t, 0.4029, chunk.BBoxNorm[2], 0.0005)
	assert.InDelta(t, 0.3421, chunk.BBoxNorm[3], 0.0005)

	// Display hints are the 300-DPI frame, not the analyzer frame.
	assert.InDelta(t, 2482, chunk.PageWidth, 0.5)
	assert.InDelta(t, 3508, chunk.PageHeight, 0.5)
}

func TestBuildChunksLabels(t *testing.T) {
	state := models.NewFileState()
	state.TextElementOutput["0"] = models.ElementRecord{
		Page:    0,
		BBox:    rectPolygon(0, 0, 100, 20),
		Content: "삼성전자 2026년 상반기 실적 요약과 전망에 대한 상세 분석\n둘째 줄은 라벨에 포함되지 않는다",
	}
	state.TableSummary["3"] = models.ElementRecord{
		Page:    0,
		BBox:    rectPolygon(0, 100, 600, 400),
		Content: "분기별 영업이익 표",
	}

	chunks, err := BuildChunks(&state, "report.pdf", &stubRenderer{pages: 1}, 150, 300)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	byID := make(map[string]models.Chunk)
	for _, c := range chunks {
		byID[c.ChunkID] = c
	}

	text := byID["text_0"]
	assert.Equal(t, 20, len([]rune(text.Label)), "text label is the first 20 chars of the first line")
	assert.NotContains(t, text.Label, "둘째")

	table := byID["table_3"]
	assert.Equal(t, "테이블 #3", table.Label)
	assert.Equal(t, models.ChunkTable, table.ChunkType)
}

func TestBuildChunksOrdering(t *testing.T) {
	state := models.NewFileState()
	state.TextElementOutput["9"] = models.ElementRecord{Page: 2, BBox: rectPolygon(0, 0, 10, 10)}
	state.TextElementOutput["1"] = models.ElementRecord{Page: 0, BBox: rectPolygon(0, 0, 10, 10)}
	state.ImageSummary["4"] = models.ElementRecord{Page: 0, BBox: rectPolygon(0, 0, 10, 10)}
	state.TableSummary["5"] = models.ElementRecord{Page: 1, BBox: rectPolygon(0, 0, 10, 10)}

	chunks, err := BuildChunks(&state, "report.pdf", &stubRenderer{pages: 3}, 150, 300)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		inOrder := prev.Page < cur.Page || (prev.Page == cur.Page && prev.ChunkID <= cur.ChunkID)
		assert.True(t, inOrder, "chunks must be ordered by (page, chunk_id): %s before %s", prev.ChunkID, cur.ChunkID)
	}
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 3, chunks[len(chunks)-1].Page)
}

func TestBuildChunksEmptyState(t *testing.T) {
	state := models.NewFileState()
	chunks, err := BuildChunks(&state, "report.pdf", &stubRenderer{pages: 1}, 150, 300)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
