package pipeline

import (
	"testing"

	"github.com/facetrace/facetrace/pkg/types"
)

func at(x, y int) types.Detection {
	return types.Detection{X: x, Y: y, W: 50, H: 50}
}

func TestTrackerRequiresPersistence(t *testing.T) {
	tr := NewTracker(60, 2, 10)

	// First sighting of a cell never reaches K=2.
	if tr.Accept(at(100, 100)) {
		t.Error("first sighting accepted, want rejected")
	}
	// Second sighting of the same cell does.
	if !tr.Accept(at(100, 100)) {
		t.Error("second sighting rejected, want accepted")
	}
	// Small jitter within the same grid cell still counts.
	if !tr.Accept(at(95, 104)) {
		t.Error("jittered sighting in the same cell rejected")
	}
}

func TestTrackerKOneAcceptsEverything(t *testing.T) {
	tr := NewTracker(60, 1, 10)
	for i, d := range []types.Detection{at(0, 0), at(500, 20), at(100, 400)} {
		if !tr.Accept(d) {
			t.Errorf("detection %d rejected with K=1", i)
		}
	}
}

func TestTrackerDistinctCellsDoNotReinforce(t *testing.T) {
	tr := NewTracker(60, 2, 10)

	// Detections scattered across different cells never accumulate.
	if tr.Accept(at(0, 0)) {
		t.Error("cell A first sighting accepted")
	}
	if tr.Accept(at(300, 300)) {
		t.Error("cell B first sighting accepted")
	}
	// Cell A again: its earlier entry is still in the window.
	if !tr.Accept(at(10, 10)) {
		t.Error("cell A second sighting rejected")
	}
}

func TestTrackerEviction(t *testing.T) {
	tr := NewTracker(60, 2, 3)

	tr.Accept(at(0, 0))     // history: [A]
	tr.Accept(at(300, 0))   // history: [A, B]
	tr.Accept(at(0, 300))   // history: [A, B, C]
	tr.Accept(at(300, 300)) // A evicted, history: [B, C, D]

	if tr.Len() != 3 {
		t.Fatalf("Len = %d, want capacity 3", tr.Len())
	}

	// A's original entry is gone, so this re-sighting counts as the first.
	if tr.Accept(at(0, 0)) {
		t.Error("evicted cell treated as persistent")
	}
}

func TestTrackerSharedHistoryInterleaves(t *testing.T) {
	// Two faces alternating frames both become persistent in the shared
	// window.
	tr := NewTracker(60, 2, 10)

	tr.Accept(at(0, 0))     // A: 1
	tr.Accept(at(400, 400)) // B: 1
	if !tr.Accept(at(0, 0)) {
		t.Error("face A not persistent on second sighting")
	}
	if !tr.Accept(at(400, 400)) {
		t.Error("face B not persistent on second sighting")
	}
}
