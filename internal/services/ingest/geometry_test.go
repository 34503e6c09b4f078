package ingest

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kstocklab/finsight/internal/models"
)

func TestPolygonBounds(t *testing.T) {
	poly := []models.Point{
		{X: 100, Y: 600}, {X: 500, Y: 600}, {X: 500, Y: 200}, {X: 100, Y: 200},
	}
	minX, minY, maxX, maxY := PolygonBounds(poly)
	assert.Equal(t, 100.0, minX)
	assert.Equal(t, 200.0, minY)
	assert.Equal(t, 500.0, maxX)
	assert.Equal(t, 600.0, maxY)
}

func TestScalePolygon(t *testing.T) {
	poly := []models.Point{{X: 10, Y: 20}, {X: 30, Y: 40}}
	scaled := ScalePolygon(poly, 2, 0.5)
	assert.Equal(t, []models.Point{{X: 20, Y: 10}, {X: 60, Y: 20}}, scaled)
}

func TestNormalizeBBox(t *testing.T) {
	poly := []models.Point{
		{X: 100, Y: 200}, {X: 500, Y: 200}, {X: 500, Y: 600}, {X: 100, Y: 600},
	}
	norm := NormalizeBBox(poly, 1241, 1754)
	assert.InDelta(t, 0.0806, norm[0], 0.0005)
	assert.InDelta(t, 0.1141, norm[1], 0.0005)
	assert.InDelta(t, 0.4029, norm[2], 0.0005)
	assert.InDelta(t, 0.3421, norm[3], 0.0005)
}

func TestNormalizeBBoxClampsOutOfPage(t *testing.T) {
	poly := []models.Point{{X: -50, Y: 10}, {X: 2000, Y: 10}, {X: 2000, Y: 3000}, {X: -50, Y: 3000}}
	norm := NormalizeBBox(poly, 1241, 1754)
	assert.Equal(t, 0.0, norm[0])
	assert.Equal(t, 1.0, norm[2])
	assert.Equal(t, 1.0, norm[3])
}

func TestPixelRectGrowsAndClips(t *testing.T) {
	bounds := image.Rect(0, 0, 1000, 1000)
	poly := []models.Point{{X: 10.4, Y: 20.6}, {X: 99.2, Y: 80.1}}
	rect := PixelRect(poly, bounds)
	assert.Equal(t, 10, rect.Min.X)
	assert.Equal(t, 20, rect.Min.Y)
	assert.Equal(t, 100, rect.Max.X)
	assert.Equal(t, 81, rect.Max.Y)

	outside := PixelRect([]models.Point{{X: 990, Y: 990}, {X: 2000, Y: 2000}}, bounds)
	assert.Equal(t, 1000, outside.Max.X)
	assert.Equal(t, 1000, outside.Max.Y)
}
