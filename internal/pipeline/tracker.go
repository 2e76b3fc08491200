package pipeline

import (
	"math"

	"github.com/facetrace/facetrace/pkg/types"
)

// gridID is a coarse spatial bucket: coordinates divided by the cell size
// and rounded. Nearby detections across frames land in the same bucket.
type gridID struct {
	X, Y int
}

// Tracker suppresses detection flicker by requiring spatial persistence.
// One history is shared across the whole run: the grid id itself
// disambiguates regions, so faces at different locations interleave in the
// same rolling window. A transient false positive occupies its cell once or
// twice and never accumulates K occurrences; a genuine face revisits the
// same cell frame after frame.
//
// Known trade-offs, accepted rather than corrected: a true face is
// suppressed for its first K-1 appearances, and fast lateral motion can
// alias across neighboring cells.
type Tracker struct {
	history  []gridID
	capacity int
	grid     int
	k        int
}

// NewTracker creates a tracker with the given grid cell size, persistence
// requirement K, and rolling history capacity.
func NewTracker(grid, k, capacity int) *Tracker {
	return &Tracker{
		history:  make([]gridID, 0, capacity),
		capacity: capacity,
		grid:     grid,
		k:        k,
	}
}

// Accept records the detection's grid id and reports whether it has
// persisted long enough. The append happens before the count, so the
// current observation contributes to its own tally.
func (t *Tracker) Accept(d types.Detection) bool {
	id := gridID{
		X: int(math.Round(float64(d.X) / float64(t.grid))),
		Y: int(math.Round(float64(d.Y) / float64(t.grid))),
	}

	if len(t.history) == t.capacity {
		t.history = t.history[1:]
	}
	t.history = append(t.history, id)

	if t.k <= 1 {
		return true
	}

	count := 0
	for _, h := range t.history {
		if h == id {
			count++
		}
	}
	return count >= t.k
}

// Len returns the current history length, at most the capacity.
func (t *Tracker) Len() int {
	return len(t.history)
}
