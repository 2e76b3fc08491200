// Package pipeline implements the adaptive detection-filtering and
// temporal-persistence engine: temporal sampling, warm-up threshold
// calibration, geometric/confidence filtering, grid-based persistence
// tracking, and crop extraction.
package pipeline

import "fmt"

// Admit reports whether a frame index is subject to heavy analysis.
// Deterministic and side-effect-free: the admitted set for a fixed step is
// identical across runs.
func Admit(frameIdx, step int) (bool, error) {
	if step <= 0 {
		return false, fmt.Errorf("sampling step must be > 0, got %d", step)
	}
	return frameIdx%step == 0, nil
}
