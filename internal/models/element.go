package models

import (
	"encoding/json"
	"fmt"
)

// ElementCategory classifies an element extracted by the layout analyzer.
type ElementCategory string

const (
	CategoryText   ElementCategory = "text"
	CategoryFigure ElementCategory = "figure"
	CategoryTable  ElementCategory = "table"
)

// Point is one vertex of a bounding polygon in pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Element is an item extracted from a PDF page. BBox is a 4-point polygon
// in the analyzer's pixel coordinate frame. ID is globally unique across a
// document and assigned in analyzer traversal order.
//
// Page is batch-local and 1-based in raw analyzer output; the element
// extractor rewrites it to the document-global 0-based page.
type Element struct {
	ID       int             `json:"element_id"`
	Page     int             `json:"page"`
	Category ElementCategory `json:"category"`
	BBox     []Point         `json:"bbox_px"`
	Text     string          `json:"content_text,omitempty"`
	HTML     string          `json:"html,omitempty"`
}

// PageElements buckets a page's elements by category. Every element appears
// in exactly one of the three bucket lists and in All.
type PageElements struct {
	Text    []Element `json:"text_elements"`
	Figures []Element `json:"figure_elements"`
	Tables  []Element `json:"table_elements"`
	All     []Element `json:"all_elements"`
}

// AnalyzerPage records the analyzer's view of one page: its number within
// the analyzed batch and the pixel dimensions the coordinates refer to.
type AnalyzerPage struct {
	Page   int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AnalyzerResult is the normalized output of the layout analyzer for one
// batch PDF.
type AnalyzerResult struct {
	Pages    []AnalyzerPage `json:"pages"`
	Elements []Element      `json:"elements"`
}

// ElementRecord is the canonical per-element output of a summarizer stage:
// the global page (0-based in stored form), the bounding polygon, and the
// textual content. Serialized as a three-tuple to keep the state file
// compact and stable.
type ElementRecord struct {
	Page    int     `json:"-"`
	BBox    []Point `json:"-"`
	Content string  `json:"-"`
}

// MarshalJSON encodes the record as [page, [[x,y],...], content].
func (r ElementRecord) MarshalJSON() ([]byte, error) {
	points := make([][2]float64, 0, len(r.BBox))
	for _, p := range r.BBox {
		points = append(points, [2]float64{p.X, p.Y})
	}
	return json.Marshal([]interface{}{r.Page, points, r.Content})
}

// UnmarshalJSON decodes the [page, points, content] tuple form.
func (r *ElementRecord) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("element record must be a three-tuple, got %d items", len(raw))
	}
	if err := json.Unmarshal(raw[0], &r.Page); err != nil {
		return fmt.Errorf("invalid element record page: %w", err)
	}
	var points [][2]float64
	if err := json.Unmarshal(raw[1], &points); err != nil {
		return fmt.Errorf("invalid element record bbox: %w", err)
	}
	r.BBox = r.BBox[:0]
	for _, p := range points {
		r.BBox = append(r.BBox, Point{X: p[0], Y: p[1]})
	}
	if err := json.Unmarshal(raw[2], &r.Content); err != nil {
		return fmt.Errorf("invalid element record content: %w", err)
	}
	return nil
}

// ChunkType classifies a served chunk.
type ChunkType string

const (
	ChunkText  ChunkType = "text"
	ChunkImage ChunkType = "image"
	ChunkTable ChunkType = "table"
)

// Chunk is the externally served form of an Element. BBoxNorm is
// [min_x, min_y, max_x, max_y] normalized to [0,1] against the analyzer's
// page dimensions; PageWidth/PageHeight are the 300-DPI render dimensions
// returned as display hints.
type Chunk struct {
	ChunkID    string       `json:"chunk_id"`
	Page       int          `json:"page"` // 1-based
	BBoxNorm   [4]float64   `json:"bbox_norm"`
	BBoxPixels [][2]float64 `json:"bbox_pixels"`
	PageWidth  float64      `json:"page_width"`
	PageHeight float64      `json:"page_height"`
	ChunkType  ChunkType    `json:"chunk_type"`
	Content    string       `json:"content"`
	Label      string       `json:"label"`
}
