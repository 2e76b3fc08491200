package source

import (
	"image"
	"image/color"
	"io"
)

// SyntheticProvider generates flat gray frames. It backs tests and demo
// runs where no real footage is available.
type SyntheticProvider struct {
	FrameWidth  int
	FrameHeight int
	FrameCount  int

	// OpenErr, when set, makes Open fail (for source-unavailable tests).
	OpenErr error

	produced int
}

// Open validates dimensions and resets the generator.
func (p *SyntheticProvider) Open() (int, int, error) {
	if p.OpenErr != nil {
		return 0, 0, p.OpenErr
	}
	p.produced = 0
	return p.FrameWidth, p.FrameHeight, nil
}

// Next generates the next frame, or io.EOF after FrameCount frames.
func (p *SyntheticProvider) Next() (image.Image, error) {
	if p.produced >= p.FrameCount {
		return nil, io.EOF
	}
	img := image.NewRGBA(image.Rect(0, 0, p.FrameWidth, p.FrameHeight))
	gray := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	for y := 0; y < p.FrameHeight; y++ {
		for x := 0; x < p.FrameWidth; x++ {
			img.SetRGBA(x, y, gray)
		}
	}
	p.produced++
	return img, nil
}

// Close releases nothing.
func (p *SyntheticProvider) Close() error { return nil }
