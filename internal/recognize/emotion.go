package recognize

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/facetrace/facetrace/internal/logger"
	"github.com/facetrace/facetrace/pkg/types"
)

const (
	// Crops below this edge length are upscaled before classification;
	// the emotion model destabilizes on tiny inputs.
	minEmotionSize = 48
	upscaleSize    = 96
)

// Emotion is a dominant label plus its score from the distribution.
type Emotion struct {
	Label string
	Score float64 // 0-100
}

// Classifier labels the emotion on an already-located face crop.
type Classifier interface {
	Classify(crop types.FaceCrop) (Emotion, error)
}

// SidecarClassifier classifies through the inference sidecar with the
// two-tier convention: a no-redetection fast path first, then a fallback
// with relaxed detection enforcement.
type SidecarClassifier struct {
	client *SidecarClient
}

// NewSidecarClassifier creates a classifier over an existing sidecar client.
func NewSidecarClassifier(client *SidecarClient) *SidecarClassifier {
	return &SidecarClassifier{client: client}
}

// Classify runs emotion analysis on the crop.
func (s *SidecarClassifier) Classify(crop types.FaceCrop) (Emotion, error) {
	img := prepareCrop(crop)
	data, w, h := imageToRGB(img)

	req := sidecarRequest{Op: "emotion", Width: w, Height: h, Data: data, SkipDetect: true}
	resp, err := s.client.call(req)
	if err != nil {
		// Fallback path: let the sidecar re-detect within the crop.
		logger.Debug("Emotion", "fast path failed, retrying with detection: %v", err)
		req.SkipDetect = false
		resp, err = s.client.call(req)
		if err != nil {
			return Emotion{}, err
		}
	}

	return Emotion{
		Label: resp.Label,
		Score: resp.Scores[resp.Label],
	}, nil
}

// prepareCrop upscales undersized crops to a stable input size. Uses the
// TooSmall flag the crop builder set rather than re-measuring.
func prepareCrop(crop types.FaceCrop) image.Image {
	if !crop.TooSmall && crop.Rect.Dx() >= minEmotionSize && crop.Rect.Dy() >= minEmotionSize {
		return crop.Img
	}
	return imaging.Resize(crop.Img, upscaleSize, upscaleSize, imaging.Linear)
}
