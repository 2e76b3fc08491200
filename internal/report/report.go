// Package report accumulates per-run results and renders the plain-text
// summary written at the end of a run.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/facetrace/facetrace/internal/pipeline"
	"github.com/facetrace/facetrace/pkg/types"
)

// Report collects accepted faces and run parameters for the final summary.
// Not safe for concurrent use; the pipeline callback runs on one goroutine.
type Report struct {
	RunID     string
	StartedAt time.Time

	SourceName string
	FrameStep  int
	K          int
	GridSize   int

	emotions   map[string]int
	identities map[string]int
	faces      int
}

// New creates an empty report with a fresh run id.
func New(sourceName string, frameStep, k, gridSize int) *Report {
	return &Report{
		RunID:      uuid.NewString(),
		StartedAt:  time.Now(),
		SourceName: sourceName,
		FrameStep:  frameStep,
		K:          k,
		GridSize:   gridSize,
		emotions:   make(map[string]int),
		identities: make(map[string]int),
	}
}

// AddFace records one fully analyzed face.
func (r *Report) AddFace(face types.Face) {
	r.faces++
	if face.Emotion != "" {
		r.emotions[face.Emotion]++
	}
	if face.Name != "" {
		r.identities[face.Name]++
	}
}

// Faces returns the number of faces recorded so far.
func (r *Report) Faces() int {
	return r.faces
}

// Write renders the summary as plain text.
func (r *Report) Write(w io.Writer, sum *pipeline.Summary) error {
	elapsed := time.Since(r.StartedAt).Round(time.Second)

	fmt.Fprintf(w, "=== Run Summary ===\n")
	fmt.Fprintf(w, "Run ID: %s\n", r.RunID)
	fmt.Fprintf(w, "Source: %s\n", r.SourceName)
	fmt.Fprintf(w, "Elapsed: %s\n", elapsed)
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Frames total: %d\n", sum.FramesTotal)
	fmt.Fprintf(w, "Frames analyzed: %d (step=%d)\n", sum.FramesAnalyzed, r.FrameStep)
	fmt.Fprintf(w, "Raw detections: %d\n", sum.RawDetections)
	fmt.Fprintf(w, "Detector errors: %d\n", sum.DetectorErrors)
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Calibration samples: %d", sum.CalibrationSamples)
	if sum.CalibrationUnderflow {
		fmt.Fprintf(w, " (underflow)")
	}
	fmt.Fprintf(w, "\n")
	writeThresholds(w, sum.Thresholds)
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Rejected by geometry: %d\n", sum.RejectedGeometry)
	fmt.Fprintf(w, "Rejected by confidence: %d\n", sum.RejectedConfidence)
	fmt.Fprintf(w, "Rejected by persistence (K=%d, grid=%d): %d\n",
		r.K, r.GridSize, sum.RejectedPersistence)
	fmt.Fprintf(w, "Faces accepted: %d\n", sum.Accepted)
	fmt.Fprintf(w, "Faces analyzed: %d\n", r.faces)
	fmt.Fprintf(w, "\n")

	writeCounts(w, "Emotions", r.emotions)
	writeCounts(w, "Identities", r.identities)
	return nil
}

// Save writes the summary to a file, creating parent directories as needed.
func (r *Report) Save(path string, sum *pipeline.Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer f.Close()
	return r.Write(f, sum)
}

func writeThresholds(w io.Writer, t types.Thresholds) {
	fmt.Fprintf(w, "Thresholds:\n")
	fmt.Fprintf(w, "  area: [%.0f, %s]\n", t.MinArea, formatArea(t.MaxArea))
	fmt.Fprintf(w, "  aspect ratio: [%.2f, %.2f]\n", t.MinAR, t.MaxAR)
	fmt.Fprintf(w, "  min confidence: %.2f\n", t.MinConfidence)
}

func formatArea(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.0f", v)
}

// writeCounts prints a counter map ordered by count descending, name
// ascending on ties.
func writeCounts(w io.Writer, title string, counts map[string]int) {
	fmt.Fprintf(w, "%s:\n", title)
	if len(counts) == 0 {
		fmt.Fprintf(w, "  (none)\n")
		return
	}
	type kv struct {
		name  string
		count int
	}
	rows := make([]kv, 0, len(counts))
	for name, c := range counts {
		rows = append(rows, kv{name, c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].name < rows[j].name
	})
	for _, row := range rows {
		fmt.Fprintf(w, "  %s: %d\n", row.name, row.count)
	}
}
