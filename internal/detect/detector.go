// Package detect wraps the face-detection backends and reprojects their
// results from the downscaled detection space back to native coordinates.
package detect

import (
	"image"

	"github.com/facetrace/facetrace/pkg/types"
)

// Detector is the external detection capability. A frame with zero faces
// yields an empty slice, not an error. Confidence is optional: backends
// that cannot score detections leave HasConfidence false.
type Detector interface {
	Detect(img image.Image) ([]types.RawDetection, error)
}

// DetectorFunc adapts a plain function to the Detector interface.
type DetectorFunc func(img image.Image) ([]types.RawDetection, error)

// Detect calls f.
func (f DetectorFunc) Detect(img image.Image) ([]types.RawDetection, error) {
	return f(img)
}
