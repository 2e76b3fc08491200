package pipeline

import (
	"image"
	"testing"

	"github.com/facetrace/facetrace/pkg/types"
)

func TestCropRectPadding(t *testing.T) {
	b := NewCropBuilder(0.15, 48)

	// pad = floor(0.15 * 50) = 7
	rect := b.Rect(types.Detection{X: 100, Y: 100, W: 50, H: 50}, 640, 480)
	want := image.Rect(93, 93, 157, 157)
	if rect != want {
		t.Errorf("Rect = %v, want %v", rect, want)
	}
}

func TestCropRectUsesLargerSide(t *testing.T) {
	b := NewCropBuilder(0.2, 48)

	// pad = floor(0.2 * max(20, 60)) = 12 on every side
	rect := b.Rect(types.Detection{X: 100, Y: 100, W: 20, H: 60}, 640, 480)
	want := image.Rect(88, 88, 132, 172)
	if rect != want {
		t.Errorf("Rect = %v, want %v", rect, want)
	}
}

func TestCropRectClampsToFrame(t *testing.T) {
	b := NewCropBuilder(0.15, 48)

	tests := []struct {
		name string
		d    types.Detection
		want image.Rectangle
	}{
		{
			"top-left corner",
			types.Detection{X: 0, Y: 0, W: 40, H: 40},
			image.Rect(0, 0, 46, 46),
		},
		{
			"bottom-right corner",
			types.Detection{X: 600, Y: 440, W: 50, H: 50},
			image.Rect(593, 433, 640, 480),
		},
	}
	for _, tt := range tests {
		if got := b.Rect(tt.d, 640, 480); got != tt.want {
			t.Errorf("%s: Rect = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCropBuildFlagsSmallCrops(t *testing.T) {
	b := NewCropBuilder(0.15, 48)
	frame := types.Frame{
		Index:  0,
		Img:    image.NewRGBA(image.Rect(0, 0, 640, 480)),
		Width:  640,
		Height: 480,
	}

	small := b.Build(frame, types.Detection{X: 0, Y: 0, W: 30, H: 30})
	if !small.TooSmall {
		t.Error("undersized crop not flagged")
	}
	if small.Img == nil {
		t.Error("flagged crop must still carry image data")
	}

	large := b.Build(frame, types.Detection{X: 100, Y: 100, W: 80, H: 80})
	if large.TooSmall {
		t.Error("adequate crop flagged as too small")
	}
	if got := large.Rect.Dx(); got != large.Img.Bounds().Dx() {
		t.Errorf("crop image width %d does not match rect width %d",
			large.Img.Bounds().Dx(), got)
	}
}
