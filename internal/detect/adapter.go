package detect

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/facetrace/facetrace/pkg/types"
)

// Adapter invokes a Detector on a downscaled copy of each frame and
// reprojects the results to native resolution.
type Adapter struct {
	det   Detector
	scale float64
}

// NewAdapter wraps a detector with a downscale factor in (0,1].
// A scale of 1.0 skips downscaling entirely.
func NewAdapter(det Detector, scale float64) (*Adapter, error) {
	if scale <= 0 || scale > 1 {
		return nil, fmt.Errorf("detection scale must be in (0,1], got %g", scale)
	}
	return &Adapter{det: det, scale: scale}, nil
}

// Detect runs the backend on the (possibly downscaled) frame and returns
// detections in native coordinates, clamped to the frame bounds.
func (a *Adapter) Detect(frame types.Frame) ([]types.Detection, error) {
	img := frame.Img
	if a.scale < 1 {
		img = downscale(frame.Img, a.scale)
	}

	raws, err := a.det.Detect(img)
	if err != nil {
		return nil, err
	}

	dets := make([]types.Detection, 0, len(raws))
	for _, r := range raws {
		d := Reproject(r, a.scale, frame.Width, frame.Height)
		if d.W <= 0 || d.H <= 0 {
			continue
		}
		dets = append(dets, d)
	}
	return dets, nil
}

// Reproject maps a detection from the downscaled coordinate space back to
// native coordinates. Floor semantics throughout: rounding up here would
// grow boxes past the documented bounds.
func Reproject(r types.RawDetection, scale float64, width, height int) types.Detection {
	x := int(math.Floor(float64(r.X) / scale))
	y := int(math.Floor(float64(r.Y) / scale))
	w := int(math.Floor(float64(r.W) / scale))
	h := int(math.Floor(float64(r.H) / scale))

	// Clamp to [0,W) x [0,H) with w,h >= 1.
	if x < 0 {
		x = 0
	}
	if x > width-1 {
		x = width - 1
	}
	if y < 0 {
		y = 0
	}
	if y > height-1 {
		y = height - 1
	}
	if w < 1 {
		w = 1
	}
	if w > width-x {
		w = width - x
	}
	if h < 1 {
		h = 1
	}
	if h > height-y {
		h = height - y
	}

	return types.Detection{
		X: x, Y: y, W: w, H: h,
		Confidence:    r.Confidence,
		HasConfidence: r.HasConfidence,
	}
}

// downscale resizes img by factor using a cheap bilinear kernel. Detection
// quality tolerates the approximation and the win is per-frame latency.
func downscale(img image.Image, factor float64) image.Image {
	b := img.Bounds()
	dw := int(math.Floor(float64(b.Dx()) * factor))
	dh := int(math.Floor(float64(b.Dy()) * factor))
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
