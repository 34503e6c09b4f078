package ingest

import (
	"image"
	"math"

	"github.com/kstocklab/finsight/internal/models"
)

// Three coordinate frames coexist in this pipeline: analyzer-normalized
// (0-1), analyzer-pixel at the analyzer DPI, and render-pixel at the
// rasterization DPI. All conversions live here; polygons never cross a
// component boundary without going through these helpers.

// PolygonBounds reduces a polygon to its axis-aligned bounding rectangle.
func PolygonBounds(points []models.Point) (minX, minY, maxX, maxY float64) {
	if len(points) == 0 {
		return 0, 0, 0, 0
	}
	minX, maxX = points[0].X, points[0].X
	minY, maxY = points[0].Y, points[0].Y
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	return minX, minY, maxX, maxY
}

// ScalePolygon maps a polygon from one pixel frame to another.
func ScalePolygon(points []models.Point, scaleX, scaleY float64) []models.Point {
	out := make([]models.Point, len(points))
	for i, p := range points {
		out[i] = models.Point{X: p.X * scaleX, Y: p.Y * scaleY}
	}
	return out
}

// NormalizeBBox converts a pixel polygon to [min_x, min_y, max_x, max_y]
// normalized against the page dimensions the polygon was measured in.
// 0 is the page top-left, 1 the bottom-right; values are clamped to [0,1].
func NormalizeBBox(points []models.Point, pageWidth, pageHeight float64) [4]float64 {
	if pageWidth <= 0 || pageHeight <= 0 {
		return [4]float64{}
	}
	minX, minY, maxX, maxY := PolygonBounds(points)
	return [4]float64{
		clamp01(minX / pageWidth),
		clamp01(minY / pageHeight),
		clamp01(maxX / pageWidth),
		clamp01(maxY / pageHeight),
	}
}

// DenormalizeBBox maps a normalized box back to pixel coordinates.
func DenormalizeBBox(norm [4]float64, pageWidth, pageHeight float64) (minX, minY, maxX, maxY float64) {
	return norm[0] * pageWidth, norm[1] * pageHeight, norm[2] * pageWidth, norm[3] * pageHeight
}

// PixelRect converts a polygon to an integer crop rectangle clamped to the
// given image bounds. The rectangle is grown outward to whole pixels so no
// content is lost.
func PixelRect(points []models.Point, bounds image.Rectangle) image.Rectangle {
	minX, minY, maxX, maxY := PolygonBounds(points)
	rect := image.Rect(
		int(math.Floor(minX)),
		int(math.Floor(minY)),
		int(math.Ceil(maxX)),
		int(math.Ceil(maxY)),
	)
	return rect.Intersect(bounds)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
