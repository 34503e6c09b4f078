package ingest

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/models"
)

// Vision-model input constraints. Every cropped image must satisfy all
// three; the enforcement pipeline self-heals violations without ever
// discarding content.
const (
	MaxSidePx      = 2240
	MinSidePx      = 4
	MaxAspectRatio = 5.0

	// padRatioTarget is the ratio the padding step aims for. Slightly
	// under the hard limit so later integer rounding cannot push the
	// result back over it.
	padRatioTarget = 4.9

	// safetyRatioTarget is the divisor for the post-resize safety pad.
	safetyRatioTarget = 4.95
)

// Cropper renders pages and cuts out figure and table regions as PNG files
// satisfying the vision-model constraints.
type Cropper struct {
	renderer    Renderer
	analyzerDPI int
	renderDPI   int
	logger      arbor.ILogger
}

// NewCropper creates a cropper converting analyzer-frame boxes into crops
// of pages rendered at renderDPI.
func NewCropper(renderer Renderer, analyzerDPI, renderDPI int, logger arbor.ILogger) *Cropper {
	return &Cropper{
		renderer:    renderer,
		analyzerDPI: analyzerDPI,
		renderDPI:   renderDPI,
		logger:      logger,
	}
}

// CropElement renders the element's global page, converts the analyzer
// bbox into the render-pixel frame, crops, enforces the constraints and
// writes outDir/{element_id}.png. Returns the written path.
func (c *Cropper) CropElement(pdfPath string, el models.Element, analyzerDims models.AnalyzerPage, outDir string) (string, error) {
	page, err := c.renderer.RenderPage(pdfPath, el.Page+1, c.renderDPI)
	if err != nil {
		return "", err
	}

	bounds := page.Bounds()
	scaleX := float64(bounds.Dx()) / analyzerDims.Width
	scaleY := float64(bounds.Dy()) / analyzerDims.Height
	if analyzerDims.Width <= 0 || analyzerDims.Height <= 0 {
		scale := float64(c.renderDPI) / float64(c.analyzerDPI)
		scaleX, scaleY = scale, scale
	}

	rect := PixelRect(ScalePolygon(el.BBox, scaleX, scaleY), bounds)
	if rect.Empty() {
		return "", fmt.Errorf("element %d bbox is empty after clamping to page %d", el.ID, el.Page)
	}

	crop := imaging.Crop(page, rect)
	final := EnforceConstraints(crop)

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create crop directory: %w", err)
	}
	outPath := filepath.Join(outDir, strconv.Itoa(el.ID)+".png")
	if err := imaging.Save(final, outPath); err != nil {
		return "", fmt.Errorf("failed to save crop for element %d: %w", el.ID, err)
	}
	return outPath, nil
}

// EnforceConstraints self-heals an image into the vision-model envelope.
//
// Order matters: the ratio fix runs before any scaling because downscaling
// a borderline ratio can round it into a violation, while padding before
// scaling never worsens the ratio. All steps preserve content; only white
// padding and uniform scaling are applied.
func EnforceConstraints(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)

	// 1. Aspect-ratio fix by centered white padding.
	if aspectRatio(out) > padRatioTarget {
		out = padToRatio(out, padRatioTarget, 0)
	}

	// 2. Downscale so the longest side is exactly MaxSidePx.
	if w, h := dims(out); w > MaxSidePx || h > MaxSidePx {
		if w >= h {
			out = imaging.Resize(out, MaxSidePx, 0, imaging.Lanczos)
		} else {
			out = imaging.Resize(out, 0, MaxSidePx, imaging.Lanczos)
		}
	}

	// 3. Upscale so the shortest side is at least MinSidePx.
	if w, h := dims(out); min(w, h) < MinSidePx {
		if w <= h {
			out = imaging.Resize(out, MinSidePx, 0, imaging.Lanczos)
		} else {
			out = imaging.Resize(out, 0, MinSidePx, imaging.Lanczos)
		}
	}

	// 4. Safety pass: integer rounding in steps 2-3 can reintroduce a
	// ratio violation.
	if aspectRatio(out) > MaxAspectRatio {
		out = padToRatio(out, safetyRatioTarget, 0)
	}
	if aspectRatio(out) > MaxAspectRatio {
		out = padToRatio(out, MaxAspectRatio, 1)
	}

	return out
}

// padToRatio extends the shorter side with centered white padding until
// longest/shortest <= divisor. Ceiling arithmetic plus slack guarantees the
// post-pad ratio satisfies the target.
func padToRatio(img *image.NRGBA, divisor float64, slack int) *image.NRGBA {
	w, h := dims(img)
	if w >= h {
		needed := int(math.Ceil(float64(w)/divisor)) + slack
		if needed <= h {
			return img
		}
		bg := imaging.New(w, needed, color.White)
		return imaging.PasteCenter(bg, img)
	}
	needed := int(math.Ceil(float64(h)/divisor)) + slack
	if needed <= w {
		return img
	}
	bg := imaging.New(needed, h, color.White)
	return imaging.PasteCenter(bg, img)
}

func dims(img image.Image) (int, int) {
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func aspectRatio(img image.Image) float64 {
	w, h := dims(img)
	if w == 0 || h == 0 {
		return math.Inf(1)
	}
	return float64(max(w, h)) / float64(min(w, h))
}
