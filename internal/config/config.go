package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig marks configuration failures. They are fatal at startup:
// the pipeline never starts on an invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete facetrace configuration
type Config struct {
	Source      SourceConfig      `yaml:"source"`
	Sampling    SamplingConfig    `yaml:"sampling"`
	Detector    DetectorConfig    `yaml:"detector"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Crop        CropConfig        `yaml:"crop"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	MetricsAddr string            `yaml:"metrics_addr"`
	SummaryPath string            `yaml:"summary_path"`
}

// SourceConfig describes where frames come from
type SourceConfig struct {
	FramesDir     string `yaml:"frames_dir"`     // Directory of pre-extracted numbered frames
	QueueCapacity int    `yaml:"queue_capacity"` // Bounded frame queue size (default 128)
}

// SamplingConfig controls temporal frame sampling
type SamplingConfig struct {
	FrameStep int `yaml:"frame_step"` // Analyze every Nth frame (default 3)
}

// DetectorConfig selects and tunes the detection backend
type DetectorConfig struct {
	Backend     string  `yaml:"backend"`      // pigo or yunet
	Scale       float64 `yaml:"scale"`        // Downscale factor in (0,1], 1 skips downscaling
	CascadePath string  `yaml:"cascade_path"` // Pigo facefinder cascade
	ModelPath   string  `yaml:"model_path"`   // YuNet ONNX model
}

// CalibrationConfig controls the warm-up threshold calibration
type CalibrationConfig struct {
	MinSamples int `yaml:"min_samples"` // Samples required before thresholds are computed (default 150)
}

// PersistenceConfig controls the temporal persistence tracker
type PersistenceConfig struct {
	K           int `yaml:"k"`            // Occurrences required before acceptance (default 2)
	GridSize    int `yaml:"grid_size"`    // Spatial grid cell size in pixels (default 60)
	HistorySize int `yaml:"history_size"` // Rolling history capacity (default 10)
}

// CropConfig controls crop extraction for downstream inference
type CropConfig struct {
	PadRatio float64 `yaml:"pad_ratio"` // Padding as a fraction of max(w,h) (default 0.15)
	MinSize  int     `yaml:"min_size"`  // Below this the collaborator upscales (default 48)
}

// RecognitionConfig wires the external inference sidecar and gallery
type RecognitionConfig struct {
	SocketPath     string  `yaml:"socket_path"`     // Unix socket of the inference sidecar
	GalleryPath    string  `yaml:"gallery_path"`    // JSON file of known face embeddings
	MatchThreshold float64 `yaml:"match_threshold"` // Nearest-neighbor acceptance distance (default 0.55)
}

// MonitorConfig controls the live annotated preview
type MonitorConfig struct {
	Addr string `yaml:"addr"` // HTTP address, empty disables the monitor
}

// Default returns a configuration with all defaults applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Source.QueueCapacity == 0 {
		c.Source.QueueCapacity = 128
	}
	if c.Sampling.FrameStep == 0 {
		c.Sampling.FrameStep = 3
	}
	if c.Detector.Backend == "" {
		c.Detector.Backend = "pigo"
	}
	if c.Detector.Scale == 0 {
		c.Detector.Scale = 1.0
	}
	if c.Calibration.MinSamples == 0 {
		c.Calibration.MinSamples = 150
	}
	if c.Persistence.K == 0 {
		c.Persistence.K = 2
	}
	if c.Persistence.GridSize == 0 {
		c.Persistence.GridSize = 60
	}
	if c.Persistence.HistorySize == 0 {
		c.Persistence.HistorySize = 10
	}
	if c.Crop.PadRatio == 0 {
		c.Crop.PadRatio = 0.15
	}
	if c.Crop.MinSize == 0 {
		c.Crop.MinSize = 48
	}
	if c.Recognition.MatchThreshold == 0 {
		c.Recognition.MatchThreshold = 0.55
	}
	if c.SummaryPath == "" {
		c.SummaryPath = "outputs/summary.txt"
	}
}

// Validate checks every tunable for sanity. All violations are fatal.
func (c *Config) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.Source.QueueCapacity <= 0 {
		return fail("source.queue_capacity must be > 0, got %d", c.Source.QueueCapacity)
	}
	if c.Sampling.FrameStep <= 0 {
		return fail("sampling.frame_step must be > 0, got %d", c.Sampling.FrameStep)
	}
	if c.Detector.Scale <= 0 || c.Detector.Scale > 1 {
		return fail("detector.scale must be in (0,1], got %g", c.Detector.Scale)
	}
	switch c.Detector.Backend {
	case "pigo", "yunet":
	default:
		return fail("detector.backend must be pigo or yunet, got %q", c.Detector.Backend)
	}
	if c.Calibration.MinSamples <= 0 {
		return fail("calibration.min_samples must be > 0, got %d", c.Calibration.MinSamples)
	}
	if c.Persistence.K < 0 {
		return fail("persistence.k must be >= 0, got %d", c.Persistence.K)
	}
	if c.Persistence.GridSize <= 0 {
		return fail("persistence.grid_size must be > 0, got %d", c.Persistence.GridSize)
	}
	if c.Persistence.HistorySize <= 0 {
		return fail("persistence.history_size must be > 0, got %d", c.Persistence.HistorySize)
	}
	if c.Crop.PadRatio < 0 {
		return fail("crop.pad_ratio must be >= 0, got %g", c.Crop.PadRatio)
	}
	if c.Crop.MinSize <= 0 {
		return fail("crop.min_size must be > 0, got %d", c.Crop.MinSize)
	}
	if c.Recognition.MatchThreshold <= 0 {
		return fail("recognition.match_threshold must be > 0, got %g", c.Recognition.MatchThreshold)
	}
	return nil
}
