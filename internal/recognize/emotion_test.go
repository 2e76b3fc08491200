package recognize

import (
	"image"
	"image/color"
	"testing"

	"github.com/facetrace/facetrace/pkg/types"
)

func cropOfSize(w, h int, tooSmall bool) types.FaceCrop {
	return types.FaceCrop{
		Img:      image.NewRGBA(image.Rect(0, 0, w, h)),
		Rect:     image.Rect(0, 0, w, h),
		TooSmall: tooSmall,
	}
}

func TestPrepareCropUpscalesSmallCrops(t *testing.T) {
	small := prepareCrop(cropOfSize(30, 30, true))
	if got := small.Bounds(); got.Dx() != 96 || got.Dy() != 96 {
		t.Errorf("upscaled crop is %dx%d, want 96x96", got.Dx(), got.Dy())
	}

	// A flagged crop is upscaled even if its pixels measure large enough.
	flagged := prepareCrop(cropOfSize(64, 64, true))
	if got := flagged.Bounds(); got.Dx() != 96 {
		t.Errorf("flagged crop not upscaled, got %dx%d", got.Dx(), got.Dy())
	}
}

func TestPrepareCropKeepsAdequateCrops(t *testing.T) {
	crop := cropOfSize(64, 64, false)
	out := prepareCrop(crop)
	if out != crop.Img {
		t.Error("adequate crop was resized")
	}
}

func TestImageToRGBLayout(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	img.SetRGBA(1, 0, color.RGBA{B: 255, A: 255})

	data, w, h := imageToRGB(img)
	if w != 2 || h != 1 {
		t.Fatalf("dims %dx%d, want 2x1", w, h)
	}
	if len(data) != 6 {
		t.Fatalf("len(data) = %d, want 6", len(data))
	}
	if data[0] != 255 || data[1] != 0 || data[2] != 0 {
		t.Errorf("pixel 0 = %v, want red", data[:3])
	}
	if data[3] != 0 || data[4] != 0 || data[5] != 255 {
		t.Errorf("pixel 1 = %v, want blue", data[3:])
	}
}
