package pipeline

import (
	"context"

	"github.com/facetrace/facetrace/internal/detect"
	"github.com/facetrace/facetrace/internal/logger"
	"github.com/facetrace/facetrace/internal/metrics"
	"github.com/facetrace/facetrace/internal/source"
	"github.com/facetrace/facetrace/pkg/types"
)

// Config are the engine tunables. Values are validated by the config
// package before the engine is built.
type Config struct {
	FrameStep        int
	WarmupMinSamples int
	GridSize         int
	K                int
	HistorySize      int
	PadRatio         float64
	MinCropSize      int
}

// Accepted is one detection that survived every filter stage, paired with
// its crop for downstream inference.
type Accepted struct {
	Box  types.Detection
	Crop types.FaceCrop
}

// FrameResult is emitted once per analyzed frame. Failed marks a detector
// invocation failure: the consumer must drop any stale annotations rather
// than carry them forward.
type FrameResult struct {
	FrameIndex int
	Accepted   []Accepted
	Failed     bool
}

// Summary holds the per-run counters reported after the stream ends.
type Summary struct {
	FramesTotal         int
	FramesAnalyzed      int
	RawDetections       int
	CalibrationSamples  int
	RejectedGeometry    int
	RejectedConfidence  int
	RejectedPersistence int
	Accepted            int
	DetectorErrors      int

	Thresholds           types.Thresholds
	CalibrationUnderflow bool
}

// Engine is the consumer lane: it pulls frames from a Source, runs them
// through sampling, detection, calibration or filtering, persistence
// tracking, and crop extraction, and hands accepted faces to a callback.
// All temporal state (calibrator, tracker) is owned by this single
// goroutine and needs no locking.
type Engine struct {
	cfg     Config
	adapter *detect.Adapter
	met     *metrics.Metrics

	cal     *Calibrator
	filter  *Filter
	tracker *Tracker
	cropper *CropBuilder

	sum Summary
}

// NewEngine builds an engine for frames of the given native dimensions.
func NewEngine(cfg Config, adapter *detect.Adapter, met *metrics.Metrics, frameWidth, frameHeight int) *Engine {
	return &Engine{
		cfg:     cfg,
		adapter: adapter,
		met:     met,
		cal:     NewCalibrator(cfg.WarmupMinSamples, frameWidth*frameHeight),
		tracker: NewTracker(cfg.GridSize, cfg.K, cfg.HistorySize),
		cropper: NewCropBuilder(cfg.PadRatio, cfg.MinCropSize),
	}
}

// Run consumes the source until end-of-stream or cancellation and returns
// the run summary. Per-frame failures are converted into counters and the
// run continues; only an invalid sampling step aborts.
func (e *Engine) Run(ctx context.Context, src *source.Source, handle func(types.Frame, FrameResult)) (*Summary, error) {
	logger.Info("Engine", "pipeline started (step=%d, warmup=%d, k=%d, grid=%d)",
		e.cfg.FrameStep, e.cfg.WarmupMinSamples, e.cfg.K, e.cfg.GridSize)

	for {
		var frame types.Frame
		var ok bool
		select {
		case <-ctx.Done():
			ok = false
		case frame, ok = <-src.Frames():
		}
		if !ok {
			break
		}

		e.sum.FramesTotal++
		e.met.FramesRead.Add(1)

		admit, err := Admit(frame.Index, e.cfg.FrameStep)
		if err != nil {
			return nil, err
		}
		if !admit {
			e.met.FramesSkipped.Add(1)
			continue
		}

		e.processFrame(frame, handle)
	}

	if e.cal.State() != StateCalibrated {
		e.cal.Finalize()
	}
	e.sum.Thresholds = e.cal.Thresholds()
	e.sum.CalibrationUnderflow = e.cal.Underflow()
	e.sum.CalibrationSamples = e.cal.SampleCount()

	logger.Info("Engine", "pipeline finished: %d frames, %d analyzed, %d faces accepted",
		e.sum.FramesTotal, e.sum.FramesAnalyzed, e.sum.Accepted)
	return &e.sum, nil
}

// processFrame is the per-frame failure boundary: detector errors become
// bookkeeping, never a pipeline abort.
func (e *Engine) processFrame(frame types.Frame, handle func(types.Frame, FrameResult)) {
	e.sum.FramesAnalyzed++
	e.met.FramesAnalyzed.Add(1)

	dets, err := e.adapter.Detect(frame)
	if err != nil {
		e.sum.DetectorErrors++
		e.met.DetectorErrors.Add(1)
		logger.Warn("Engine", "detector failed on frame %d: %v", frame.Index, err)
		if handle != nil {
			handle(frame, FrameResult{FrameIndex: frame.Index, Failed: true})
		}
		return
	}

	e.sum.RawDetections += len(dets)
	e.met.RawDetections.Add(uint64(len(dets)))

	result := FrameResult{FrameIndex: frame.Index}
	for _, d := range dets {
		if acc, ok := e.evaluate(frame, d); ok {
			result.Accepted = append(result.Accepted, acc)
		}
	}

	if handle != nil {
		handle(frame, result)
	}
}

// evaluate runs one detection through the stage order fixed by the design:
// calibration observation (warm-up) or geometry -> confidence -> persistence
// (steady state), then crop extraction. No stage re-checks a prior stage's
// criterion.
func (e *Engine) evaluate(frame types.Frame, d types.Detection) (Accepted, bool) {
	if e.cal.State() == StateWarmingUp {
		// Observational phase: the sample is recorded, nothing is
		// forwarded downstream.
		before := e.cal.SampleCount()
		e.cal.Observe(d)
		if e.cal.SampleCount() > before {
			e.met.CalibrationSamples.Add(1)
		}
		return Accepted{}, false
	}

	if e.filter == nil {
		e.filter = NewFilter(e.cal.Thresholds())
	}

	if !e.filter.PassGeometry(d) {
		e.sum.RejectedGeometry++
		e.met.RejectedGeometry.Add(1)
		return Accepted{}, false
	}
	if !e.filter.PassConfidence(d) {
		e.sum.RejectedConfidence++
		e.met.RejectedConfidence.Add(1)
		return Accepted{}, false
	}
	if !e.tracker.Accept(d) {
		e.sum.RejectedPersistence++
		e.met.RejectedPersistence.Add(1)
		return Accepted{}, false
	}

	e.sum.Accepted++
	e.met.FacesAccepted.Add(1)
	return Accepted{Box: d, Crop: e.cropper.Build(frame, d)}, true
}
