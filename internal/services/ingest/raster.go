package ingest

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// A4 page size in pixels at 150 DPI, the fallback when a PDF's media box
// cannot be read.
const (
	FallbackPageWidth150  = 1241
	FallbackPageHeight150 = 1754
)

// Renderer rasterizes PDF pages and measures page dimensions in a pixel
// frame at a given DPI. Pages are 1-based.
type Renderer interface {
	RenderPage(pdfPath string, page int, dpi int) (image.Image, error)
	PageSize(pdfPath string, page int, dpi int) (width, height float64, err error)
	PageCount(pdfPath string) (int, error)
}

// FitzRenderer renders with MuPDF and measures with pdfcpu.
type FitzRenderer struct{}

var _ Renderer = (*FitzRenderer)(nil)

// NewFitzRenderer creates the production renderer.
func NewFitzRenderer() *FitzRenderer {
	return &FitzRenderer{}
}

// RenderPage rasterizes one page to an RGB image at the given DPI.
func (r *FitzRenderer) RenderPage(pdfPath string, page int, dpi int) (image.Image, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", pdfPath, err)
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range for %s (%d pages)", page, pdfPath, doc.NumPage())
	}

	img, err := doc.ImageDPI(page-1, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d of %s: %w", page, pdfPath, err)
	}
	return img, nil
}

// PageSize returns the page's pixel dimensions at the given DPI, derived
// from the PDF media box. Falls back to A4 when the box is unreadable.
func (r *FitzRenderer) PageSize(pdfPath string, page int, dpi int) (float64, float64, error) {
	dims, err := api.PageDimsFile(pdfPath)
	if err != nil || page < 1 || page > len(dims) {
		scale := float64(dpi) / 150.0
		return FallbackPageWidth150 * scale, FallbackPageHeight150 * scale, nil
	}
	// Media box dimensions are in points (1/72 inch).
	dim := dims[page-1]
	return dim.Width / 72.0 * float64(dpi), dim.Height / 72.0 * float64(dpi), nil
}

// PageCount returns the number of pages in the PDF.
func (r *FitzRenderer) PageCount(pdfPath string) (int, error) {
	count, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages of %s: %w", pdfPath, err)
	}
	return count, nil
}
