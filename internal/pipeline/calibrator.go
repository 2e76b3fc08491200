package pipeline

import (
	"math"

	"github.com/facetrace/facetrace/internal/logger"
	"github.com/facetrace/facetrace/pkg/types"
)

// CalibratorState is the calibration lifecycle phase.
type CalibratorState int

const (
	// StateWarmingUp: samples are collected, nothing is forwarded.
	StateWarmingUp CalibratorState = iota
	// StateCalibrated: thresholds are fixed for the rest of the run.
	StateCalibrated
)

const (
	// outlierGuardRatio excludes warm-up boxes covering most of the frame.
	outlierGuardRatio = 0.6
	// arCollapseWidth is the minimum usable AR window; narrower windows
	// are replaced with the fallback bounds.
	arCollapseWidth = 0.15
	arFallbackMin   = 0.6
	arFallbackMax   = 1.6
)

// Calibrator accumulates warm-up statistics and derives percentile-based
// acceptance bounds from the video itself. The transition WARMING_UP ->
// CALIBRATED happens exactly once; thresholds never change afterwards.
type Calibrator struct {
	minSamples int
	frameArea  int

	areas []float64
	ars   []float64
	confs []float64

	state      CalibratorState
	thresholds types.Thresholds
	underflow  bool
}

// NewCalibrator creates a calibrator requiring minSamples warm-up samples
// for a frame of the given area.
func NewCalibrator(minSamples, frameArea int) *Calibrator {
	return &Calibrator{
		minSamples: minSamples,
		frameArea:  frameArea,
		state:      StateWarmingUp,
	}
}

// State returns the current lifecycle phase.
func (c *Calibrator) State() CalibratorState {
	return c.state
}

// SampleCount returns the number of collected geometry samples.
func (c *Calibrator) SampleCount() int {
	return len(c.areas)
}

// Observe records one warm-up sample. Detections covering 60% or more of
// the frame are outliers and skipped. Once the configured minimum is
// reached the calibrator computes thresholds and flips to CALIBRATED.
// No-op after calibration.
func (c *Calibrator) Observe(d types.Detection) {
	if c.state == StateCalibrated {
		return
	}
	area := d.Area()
	if area <= 0 {
		return
	}
	if float64(area) >= outlierGuardRatio*float64(c.frameArea) {
		return
	}

	c.areas = append(c.areas, float64(area))
	c.ars = append(c.ars, d.AspectRatio())
	if d.HasConfidence {
		c.confs = append(c.confs, d.Confidence)
	}

	if len(c.areas) >= c.minSamples {
		c.compute()
	}
}

// Finalize forces calibration with whatever samples exist. Called when the
// stream ends before the minimum sample count: calibration must complete
// rather than block the run. Idempotent.
func (c *Calibrator) Finalize() types.Thresholds {
	if c.state == StateCalibrated {
		return c.thresholds
	}
	c.underflow = true
	if len(c.areas) == 0 {
		// Nothing observed at all: permissive bounds let everything
		// through rather than rejecting the whole video.
		c.thresholds = types.Thresholds{
			MinArea:       0,
			MaxArea:       math.Inf(1),
			MinAR:         0,
			MaxAR:         math.Inf(1),
			MinConfidence: 0,
		}
		c.state = StateCalibrated
		logger.Warn("Calibrator", "warm-up ended with zero samples, using permissive thresholds")
		return c.thresholds
	}
	logger.Warn("Calibrator", "warm-up underflow: calibrating from %d samples (wanted %d)",
		len(c.areas), c.minSamples)
	c.compute()
	return c.thresholds
}

// Underflow reports whether calibration completed with fewer samples than
// configured.
func (c *Calibrator) Underflow() bool {
	return c.underflow
}

// Thresholds returns the calibrated bounds. Only meaningful once the state
// is CALIBRATED.
func (c *Calibrator) Thresholds() types.Thresholds {
	return c.thresholds
}

func (c *Calibrator) compute() {
	t := types.Thresholds{
		MinArea: Percentile(c.areas, 10),
		MaxArea: Percentile(c.areas, 95),
		MinAR:   Percentile(c.ars, 5),
		MaxAR:   Percentile(c.ars, 95),
	}

	// Guardrail: a degenerate warm-up (a single static face) collapses
	// the AR window to near-zero width and would reject everything.
	if t.MaxAR-t.MinAR < arCollapseWidth {
		t.MinAR = arFallbackMin
		t.MaxAR = arFallbackMax
	}

	if len(c.confs) > 0 {
		t.MinConfidence = Percentile(c.confs, 20)
	}

	c.thresholds = t
	c.state = StateCalibrated

	logger.Info("Calibrator", "thresholds set from %d samples: area=[%.0f,%.0f] ar=[%.3f,%.3f] conf>=%.3f",
		len(c.areas), t.MinArea, t.MaxArea, t.MinAR, t.MaxAR, t.MinConfidence)
}
