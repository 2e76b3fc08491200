package types

import "image"

// Frame is one decoded video frame. Frames are immutable once produced and
// owned exclusively by the pipeline stage that currently holds them.
type Frame struct {
	Index  int         // Monotonically increasing frame index
	Img    image.Image // Decoded pixels at native resolution
	Width  int         // Native width
	Height int         // Native height
}

// RawDetection is a detector result in the downscaled frame's coordinate
// space. Confidence is optional: some backends never report it.
type RawDetection struct {
	X, Y          int
	W, H          int
	Confidence    float64
	HasConfidence bool
}

// Detection is a reprojected bounding box in native frame coordinates,
// clamped so that X,Y are inside the frame and W,H are at least 1.
type Detection struct {
	X, Y          int
	W, H          int
	Confidence    float64
	HasConfidence bool
}

// Area returns the box area in native pixels.
func (d Detection) Area() int {
	return d.W * d.H
}

// AspectRatio returns width divided by height.
func (d Detection) AspectRatio() float64 {
	if d.H == 0 {
		return 0
	}
	return float64(d.W) / float64(d.H)
}

// Thresholds are the acceptance bounds derived from the warm-up phase.
// They are computed exactly once per run and never change afterwards.
// Areas are float64 so a permissive upper bound can be +Inf.
type Thresholds struct {
	MinArea       float64
	MaxArea       float64
	MinAR         float64
	MaxAR         float64
	MinConfidence float64
}

// FaceCrop is a padded sub-image around an accepted detection, handed to
// external identity/emotion inference. TooSmall marks crops below the
// minimum usable size; the inference collaborator upscales those before
// analysis, the crop itself stays valid and in-bounds.
type FaceCrop struct {
	Img      image.Image
	Rect     image.Rectangle // Crop bounds in native frame coordinates
	Box      Detection       // The detection the crop was built from
	TooSmall bool
}

// Face is a fully characterized detection: box plus the emotion and
// identity labels resolved by the inference collaborators.
type Face struct {
	Box          Detection
	Emotion      string
	EmotionScore float64 // Score of the dominant emotion, 0-100
	Name         string  // Resolved identity or "Unknown"
}
