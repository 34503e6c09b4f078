package ingest

import (
	"sort"

	"github.com/kstocklab/finsight/internal/models"
)

// BatchResult pairs one batch's analyzer output with the batch's page
// offset in the original document.
type BatchResult struct {
	StartPage int // 0-based first page of the batch
	Result    *models.AnalyzerResult
}

// DocumentElements is the merged per-document element map keyed by global
// 0-based page numbers. Element IDs are globally unique and monotonically
// increasing in analyzer traversal order across batches.
type DocumentElements struct {
	Pages    map[int]*models.PageElements
	ByID     map[int]models.Element
	PageDims map[int]models.AnalyzerPage // analyzer frame, keyed by global page
}

// Figures returns all figure elements ordered by element ID.
func (d *DocumentElements) Figures() []models.Element {
	return d.byCategory(models.CategoryFigure)
}

// Tables returns all table elements ordered by element ID.
func (d *DocumentElements) Tables() []models.Element {
	return d.byCategory(models.CategoryTable)
}

// Texts returns all text elements ordered by element ID.
func (d *DocumentElements) Texts() []models.Element {
	return d.byCategory(models.CategoryText)
}

func (d *DocumentElements) byCategory(cat models.ElementCategory) []models.Element {
	var out []models.Element
	for _, el := range d.ByID {
		if el.Category == cat {
			out = append(out, el)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MergeBatches reassembles per-batch analyzer output into the global
// per-page element map. Global page = batch start page + local page - 1;
// every element gets a fresh global ID in the order the analyzer produced
// it, batch by batch. That ID is the contract with the croppers, the
// summarizers and the served chunk IDs.
func MergeBatches(batches []BatchResult) *DocumentElements {
	doc := &DocumentElements{
		Pages:    make(map[int]*models.PageElements),
		ByID:     make(map[int]models.Element),
		PageDims: make(map[int]models.AnalyzerPage),
	}

	nextID := 0
	for _, batch := range batches {
		if batch.Result == nil {
			continue
		}

		for _, page := range batch.Result.Pages {
			globalPage := batch.StartPage + page.Page - 1
			doc.PageDims[globalPage] = models.AnalyzerPage{
				Page:   globalPage,
				Width:  page.Width,
				Height: page.Height,
			}
		}

		for _, el := range batch.Result.Elements {
			globalPage := batch.StartPage + el.Page - 1

			el.ID = nextID
			el.Page = globalPage
			nextID++

			bucket := doc.Pages[globalPage]
			if bucket == nil {
				bucket = &models.PageElements{}
				doc.Pages[globalPage] = bucket
			}

			switch el.Category {
			case models.CategoryFigure:
				bucket.Figures = append(bucket.Figures, el)
			case models.CategoryTable:
				bucket.Tables = append(bucket.Tables, el)
			default:
				bucket.Text = append(bucket.Text, el)
			}
			bucket.All = append(bucket.All, el)
			doc.ByID[el.ID] = el
		}
	}

	return doc
}
