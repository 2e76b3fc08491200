package pipeline

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/facetrace/facetrace/pkg/types"
)

// CropBuilder computes padded, clamped crop rectangles around accepted
// detections for downstream inference. Crops from the original frame, never
// from the detector's internal representation.
type CropBuilder struct {
	padRatio float64
	minSize  int
}

// NewCropBuilder creates a builder with the given pad ratio and minimum
// usable crop size.
func NewCropBuilder(padRatio float64, minSize int) *CropBuilder {
	return &CropBuilder{padRatio: padRatio, minSize: minSize}
}

// Rect computes the padded crop bounds, clamped to [0,W]x[0,H].
func (b *CropBuilder) Rect(d types.Detection, width, height int) image.Rectangle {
	pad := int(b.padRatio * float64(max(d.W, d.H)))

	x1 := max(0, d.X-pad)
	y1 := max(0, d.Y-pad)
	x2 := min(width, d.X+d.W+pad)
	y2 := min(height, d.Y+d.H+pad)

	return image.Rect(x1, y1, x2, y2)
}

// Build extracts the padded crop from the frame. A crop below the minimum
// usable size is flagged, never discarded: the inference collaborator
// upscales flagged crops before analysis.
func (b *CropBuilder) Build(frame types.Frame, d types.Detection) types.FaceCrop {
	rect := b.Rect(d, frame.Width, frame.Height)
	return types.FaceCrop{
		Img:      imaging.Crop(frame.Img, rect),
		Rect:     rect,
		Box:      d,
		TooSmall: rect.Dx() < b.minSize || rect.Dy() < b.minSize,
	}
}
