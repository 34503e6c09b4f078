package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kstocklab/finsight/internal/models"
)

func batchResult(startPage int, pages int, elements ...models.Element) BatchResult {
	result := &models.AnalyzerResult{Elements: elements}
	for p := 1; p <= pages; p++ {
		result.Pages = append(result.Pages, models.AnalyzerPage{Page: p, Width: 1241, Height: 1754})
	}
	return BatchResult{StartPage: startPage, Result: result}
}

func TestMergeBatchesGlobalPagesAndIDs(t *testing.T) {
	// Two 10-page batches: local pages are 1-based within each batch,
	// global pages are 0-based across the whole document.
	first := batchResult(0, 10,
		models.Element{ID: 0, Page: 1, Category: models.CategoryText, Text: "intro"},
		models.Element{ID: 1, Page: 2, Category: models.CategoryFigure},
		models.Element{ID: 2, Page: 10, Category: models.CategoryTable},
	)
	second := batchResult(10, 10,
		models.Element{ID: 0, Page: 1, Category: models.CategoryText, Text: "continued"},
		models.Element{ID: 1, Page: 3, Category: models.CategoryFigure},
	)

	doc := MergeBatches([]BatchResult{first, second})

	require.Len(t, doc.ByID, 5)

	// IDs restart from zero and increase in analyzer order across batches.
	for id := 0; id < 5; id++ {
		_, ok := doc.ByID[id]
		assert.True(t, ok, "expected global id %d", id)
	}

	assert.Equal(t, 0, doc.ByID[0].Page)
	assert.Equal(t, 1, doc.ByID[1].Page)
	assert.Equal(t, 9, doc.ByID[2].Page)
	assert.Equal(t, 10, doc.ByID[3].Page, "second batch local page 1 is global page 10")
	assert.Equal(t, 12, doc.ByID[4].Page)
}

func TestMergeBatchesBucketsAreExclusiveAndComplete(t *testing.T) {
	doc := MergeBatches([]BatchResult{batchResult(0, 2,
		models.Element{ID: 0, Page: 1, Category: models.CategoryText},
		models.Element{ID: 1, Page: 1, Category: models.CategoryFigure},
		models.Element{ID: 2, Page: 1, Category: models.CategoryTable},
		models.Element{ID: 3, Page: 2, Category: models.CategoryText},
	)})

	page0 := doc.Pages[0]
	require.NotNil(t, page0)
	assert.Len(t, page0.Text, 1)
	assert.Len(t, page0.Figures, 1)
	assert.Len(t, page0.Tables, 1)
	assert.Len(t, page0.All, 3)

	seen := make(map[int]int)
	for _, page := range doc.Pages {
		for _, el := range page.Text {
			seen[el.ID]++
		}
		for _, el := range page.Figures {
			seen[el.ID]++
		}
		for _, el := range page.Tables {
			seen[el.ID]++
		}
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "element %d must live in exactly one bucket", id)
	}
	assert.Len(t, seen, 4)
}

func TestMergeBatchesCategoryAccessorsOrdered(t *testing.T) {
	doc := MergeBatches([]BatchResult{
		batchResult(0, 1,
			models.Element{ID: 5, Page: 1, Category: models.CategoryFigure},
			models.Element{ID: 9, Page: 1, Category: models.CategoryText},
		),
		batchResult(1, 1,
			models.Element{ID: 0, Page: 1, Category: models.CategoryFigure},
		),
	})

	figures := doc.Figures()
	require.Len(t, figures, 2)
	assert.Less(t, figures[0].ID, figures[1].ID)

	texts := doc.Texts()
	require.Len(t, texts, 1)
	assert.Equal(t, "", texts[0].Text)
}

func TestMergeBatchesPageDimsKeyedByGlobalPage(t *testing.T) {
	doc := MergeBatches([]BatchResult{batchResult(10, 3)})
	require.Len(t, doc.PageDims, 3)
	dims, ok := doc.PageDims[11]
	require.True(t, ok)
	assert.Equal(t, 1241.0, dims.Width)
	assert.Equal(t, 1754.0, dims.Height)
}

func TestMergeBatchesSkipsNilResult(t *testing.T) {
	doc := MergeBatches([]BatchResult{{StartPage: 0, Result: nil}})
	assert.Empty(t, doc.ByID)
	assert.Empty(t, doc.Pages)
}
