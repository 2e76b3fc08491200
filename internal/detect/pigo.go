package detect

import (
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/facetrace/facetrace/internal/logger"
	"github.com/facetrace/facetrace/pkg/types"
)

const (
	// Pigo detection parameters
	pigoMinSize      = 20   // Minimum face size (pixels)
	pigoMaxSize      = 1000 // Maximum face size (pixels)
	pigoShiftFactor  = 0.1  // Shift factor for detection window
	pigoScaleFactor  = 1.1  // Scale factor for image pyramid
	pigoIoUThreshold = 0.2  // IoU threshold for NMS clustering
	pigoMinQuality   = 5.0  // Minimum quality score
)

// PigoDetector is the bundled pure-Go face detector. Pigo quality scores
// are not calibrated probabilities, so detections carry no confidence and
// the confidence filter auto-passes them.
type PigoDetector struct {
	classifier *pigo.Pigo
}

// NewPigoDetector loads and unpacks a facefinder cascade.
func NewPigoDetector(cascadePath string) (*PigoDetector, error) {
	cascade, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}

	logger.Info("Pigo", "cascade loaded (minSize=%d, minQuality=%.1f)", pigoMinSize, pigoMinQuality)
	return &PigoDetector{classifier: classifier}, nil
}

// Detect runs the cascade over the image and returns quality-filtered
// detections in the image's own coordinate space.
func (p *PigoDetector) Detect(img image.Image) ([]types.RawDetection, error) {
	bounds := img.Bounds()
	cParams := pigo.CascadeParams{
		MinSize:     pigoMinSize,
		MaxSize:     pigoMaxSize,
		ShiftFactor: pigoShiftFactor,
		ScaleFactor: pigoScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: toGrayscale(img),
			Rows:   bounds.Dy(),
			Cols:   bounds.Dx(),
			Dim:    bounds.Dx(),
		},
	}

	dets := p.classifier.RunCascade(cParams, 0.0)
	dets = p.classifier.ClusterDetections(dets, pigoIoUThreshold)

	out := make([]types.RawDetection, 0, len(dets))
	for _, det := range dets {
		if det.Q < pigoMinQuality {
			continue
		}
		// Pigo reports center (Row, Col) and Scale (box side); convert
		// to a top-left bounding box.
		size := det.Scale
		out = append(out, types.RawDetection{
			X: det.Col - size/2,
			Y: det.Row - size/2,
			W: size,
			H: size,
		})
	}
	return out, nil
}

// toGrayscale converts an image to the flat grayscale buffer pigo expects.
func toGrayscale(img image.Image) []uint8 {
	bounds := img.Bounds()
	gray := make([]uint8, bounds.Dx()*bounds.Dy())

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			gray[(y-bounds.Min.Y)*bounds.Dx()+(x-bounds.Min.X)] = uint8((r*299 + g*587 + b*114) / 1000 >> 8)
		}
	}
	return gray
}
