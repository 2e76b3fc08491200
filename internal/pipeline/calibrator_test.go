package pipeline

import (
	"math"
	"testing"

	"github.com/facetrace/facetrace/pkg/types"
)

// warmupBox builds a detection with the given width and a fixed height of 10.
func warmupBox(w int, conf float64, hasConf bool) types.Detection {
	return types.Detection{X: 50, Y: 50, W: w, H: 10, Confidence: conf, HasConfidence: hasConf}
}

func TestCalibratorComputesPercentileBounds(t *testing.T) {
	c := NewCalibrator(5, 640*480)

	// Areas 100..500, aspect ratios 1..5.
	for _, w := range []int{10, 20, 30, 40, 50} {
		c.Observe(warmupBox(w, 0, false))
	}

	if c.State() != StateCalibrated {
		t.Fatalf("state = %v, want StateCalibrated after %d samples", c.State(), 5)
	}

	th := c.Thresholds()
	if got, want := th.MinArea, 140.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("MinArea = %g, want %g", got, want)
	}
	if got, want := th.MaxArea, 480.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("MaxArea = %g, want %g", got, want)
	}
	if got, want := th.MinAR, 1.2; math.Abs(got-want) > 1e-9 {
		t.Errorf("MinAR = %g, want %g", got, want)
	}
	if got, want := th.MaxAR, 4.8; math.Abs(got-want) > 1e-9 {
		t.Errorf("MaxAR = %g, want %g", got, want)
	}
	if th.MinConfidence != 0 {
		t.Errorf("MinConfidence = %g, want 0 with no confidence samples", th.MinConfidence)
	}
	if c.Underflow() {
		t.Error("Underflow() = true for a full warm-up")
	}
}

func TestCalibratorConfidencePercentile(t *testing.T) {
	c := NewCalibrator(5, 640*480)
	confs := []float64{0.5, 0.6, 0.7, 0.8, 0.9}
	for i, w := range []int{10, 20, 30, 40, 50} {
		c.Observe(warmupBox(w, confs[i], true))
	}

	// P20 over [0.5..0.9] interpolates between 0.5 and 0.6.
	if got, want := c.Thresholds().MinConfidence, 0.58; math.Abs(got-want) > 1e-9 {
		t.Errorf("MinConfidence = %g, want %g", got, want)
	}
}

func TestCalibratorTransitionIsOneWay(t *testing.T) {
	c := NewCalibrator(3, 640*480)
	for _, w := range []int{10, 20, 30} {
		c.Observe(warmupBox(w, 0, false))
	}
	if c.State() != StateCalibrated {
		t.Fatal("expected calibrated state")
	}
	th := c.Thresholds()

	// Further observations must not shift the thresholds.
	c.Observe(warmupBox(500, 0, false))
	c.Observe(warmupBox(1, 0, false))
	if c.Thresholds() != th {
		t.Error("thresholds changed after calibration")
	}
	if c.SampleCount() != 3 {
		t.Errorf("SampleCount = %d, want 3 (observations after calibration are ignored)", c.SampleCount())
	}
}

func TestCalibratorOutlierGuard(t *testing.T) {
	// Frame 100x100: any box with area >= 6000 is excluded from warm-up.
	c := NewCalibrator(10, 100*100)

	c.Observe(types.Detection{W: 80, H: 80}) // 6400, excluded
	if c.SampleCount() != 0 {
		t.Errorf("SampleCount = %d after outlier, want 0", c.SampleCount())
	}

	c.Observe(types.Detection{W: 70, H: 70}) // 4900, kept
	if c.SampleCount() != 1 {
		t.Errorf("SampleCount = %d, want 1", c.SampleCount())
	}

	c.Observe(types.Detection{W: 0, H: 10}) // degenerate, excluded
	if c.SampleCount() != 1 {
		t.Errorf("SampleCount = %d after degenerate box, want 1", c.SampleCount())
	}
}

func TestCalibratorARCollapseFallback(t *testing.T) {
	c := NewCalibrator(5, 640*480)

	// A static face: every sample has the same aspect ratio, so the
	// percentile window has zero width.
	for i := 0; i < 5; i++ {
		c.Observe(types.Detection{X: 50, Y: 50, W: 30, H: 30})
	}

	th := c.Thresholds()
	if th.MinAR != 0.6 || th.MaxAR != 1.6 {
		t.Errorf("AR bounds = [%g, %g], want fallback [0.6, 1.6]", th.MinAR, th.MaxAR)
	}
}

func TestCalibratorUnderflowFinalize(t *testing.T) {
	c := NewCalibrator(150, 640*480)
	for _, w := range []int{10, 20, 30} {
		c.Observe(warmupBox(w, 0, false))
	}
	if c.State() != StateWarmingUp {
		t.Fatal("calibrated before reaching the minimum sample count")
	}

	th := c.Finalize()
	if c.State() != StateCalibrated {
		t.Error("Finalize did not transition to calibrated")
	}
	if !c.Underflow() {
		t.Error("Underflow() = false after short warm-up")
	}
	if math.IsNaN(th.MinArea) || math.IsInf(th.MaxArea, 1) {
		t.Errorf("expected thresholds derived from existing samples, got %+v", th)
	}

	// Finalize is idempotent.
	if again := c.Finalize(); again != th {
		t.Error("second Finalize changed the thresholds")
	}
}

func TestCalibratorZeroSamplesPermissive(t *testing.T) {
	c := NewCalibrator(150, 640*480)
	th := c.Finalize()

	if th.MinArea != 0 || !math.IsInf(th.MaxArea, 1) {
		t.Errorf("area bounds = [%g, %g], want [0, +Inf]", th.MinArea, th.MaxArea)
	}
	if th.MinAR != 0 || !math.IsInf(th.MaxAR, 1) {
		t.Errorf("AR bounds = [%g, %g], want [0, +Inf]", th.MinAR, th.MaxAR)
	}
	if th.MinConfidence != 0 {
		t.Errorf("MinConfidence = %g, want 0", th.MinConfidence)
	}

	// The permissive bounds must accept an arbitrary detection.
	f := NewFilter(th)
	if !f.Pass(types.Detection{W: 3, H: 200, Confidence: 0.01, HasConfidence: true}) {
		t.Error("permissive thresholds rejected a detection")
	}
}
