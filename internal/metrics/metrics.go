package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline counters. Counters are atomics so the consumer
// lane can bump them without locking while the metrics server reads.
type Metrics struct {
	// Frame flow
	FramesRead     atomic.Uint64
	FramesAnalyzed atomic.Uint64
	FramesSkipped  atomic.Uint64 // Not admitted by the sampler

	// Detection flow
	RawDetections       atomic.Uint64
	CalibrationSamples  atomic.Uint64
	RejectedGeometry    atomic.Uint64
	RejectedConfidence  atomic.Uint64
	RejectedPersistence atomic.Uint64
	FacesAccepted       atomic.Uint64

	// Error counters
	DetectorErrors  atomic.Uint64
	EmotionErrors   atomic.Uint64
	IdentityErrors  atomic.Uint64
	FrameReadErrors atomic.Uint64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauge := func(name, help string, load func() uint64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help},
			func() float64 { return float64(load()) },
		))
	}

	gauge("facetrace_frames_read_total", "Total frames read from the source", m.FramesRead.Load)
	gauge("facetrace_frames_analyzed_total", "Total frames admitted by the sampler and analyzed", m.FramesAnalyzed.Load)
	gauge("facetrace_frames_skipped_total", "Total frames skipped by temporal sampling", m.FramesSkipped.Load)

	gauge("facetrace_detections_raw_total", "Total raw detections returned by the detector", m.RawDetections.Load)
	gauge("facetrace_calibration_samples_total", "Total samples collected during warm-up", m.CalibrationSamples.Load)
	gauge("facetrace_rejected_geometry_total", "Detections rejected by area/aspect-ratio bounds", m.RejectedGeometry.Load)
	gauge("facetrace_rejected_confidence_total", "Detections rejected by the confidence bound", m.RejectedConfidence.Load)
	gauge("facetrace_rejected_persistence_total", "Detections rejected by the persistence tracker", m.RejectedPersistence.Load)
	gauge("facetrace_faces_accepted_total", "Detections accepted by all filter stages", m.FacesAccepted.Load)

	gauge("facetrace_detector_errors_total", "Detector invocation failures", m.DetectorErrors.Load)
	gauge("facetrace_emotion_errors_total", "Emotion classification failures", m.EmotionErrors.Load)
	gauge("facetrace_identity_errors_total", "Identity encoding failures", m.IdentityErrors.Load)
	gauge("facetrace_frame_read_errors_total", "Frame acquisition failures", m.FrameReadErrors.Load)
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
