package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"

	"github.com/facetrace/facetrace/internal/config"
	"github.com/facetrace/facetrace/internal/detect"
	"github.com/facetrace/facetrace/internal/logger"
	"github.com/facetrace/facetrace/internal/metrics"
	"github.com/facetrace/facetrace/internal/monitor"
	"github.com/facetrace/facetrace/internal/pipeline"
	"github.com/facetrace/facetrace/internal/recognize"
	"github.com/facetrace/facetrace/internal/report"
	"github.com/facetrace/facetrace/internal/source"
	"github.com/facetrace/facetrace/pkg/types"
)

var (
	// Command-line flags. Non-empty/non-negative values override the
	// config file.
	configPath  = flag.String("config", "", "Config file path (YAML)")
	framesDir   = flag.String("frames", "", "Directory of frame images to analyze")
	frameStep   = flag.Int("step", 0, "Analyze every Nth frame (0 = config default)")
	backend     = flag.String("backend", "", "Detector backend (pigo, yunet)")
	cascadePath = flag.String("cascade", "", "Pigo cascade file path")
	modelPath   = flag.String("model", "", "YuNet ONNX model path")
	scale       = flag.Float64("scale", 0, "Detection downscale factor in (0,1]")
	galleryPath = flag.String("gallery", "", "Identity gallery JSON path")
	sidecarSock = flag.String("sidecar", "", "Inference sidecar Unix socket path")
	monitorAddr = flag.String("monitor", "", "MJPEG preview server address (empty = disabled)")
	metricsAddr = flag.String("metrics", "", "Prometheus metrics address (empty = disabled)")
	summaryPath = flag.String("out", "", "Summary output file path")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
	progress    = flag.Bool("progress", true, "Show a progress bar")
)

func main() {
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("Main", "%v", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Main", "received %s, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Main", "run failed: %v", err)
		os.Exit(1)
	}
}

// loadConfig merges the config file (or defaults) with flag overrides, then
// validates the result.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if *framesDir != "" {
		cfg.Source.FramesDir = *framesDir
	}
	if *frameStep > 0 {
		cfg.Sampling.FrameStep = *frameStep
	}
	if *backend != "" {
		cfg.Detector.Backend = *backend
	}
	if *cascadePath != "" {
		cfg.Detector.CascadePath = *cascadePath
	}
	if *modelPath != "" {
		cfg.Detector.ModelPath = *modelPath
	}
	if *scale > 0 {
		cfg.Detector.Scale = *scale
	}
	if *galleryPath != "" {
		cfg.Recognition.GalleryPath = *galleryPath
	}
	if *sidecarSock != "" {
		cfg.Recognition.SocketPath = *sidecarSock
	}
	if *monitorAddr != "" {
		cfg.Monitor.Addr = *monitorAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *summaryPath != "" {
		cfg.SummaryPath = *summaryPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	met := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			logger.Info("Main", "metrics server on %s", cfg.MetricsAddr)
			if err := met.StartServer(cfg.MetricsAddr); err != nil {
				logger.Error("Main", "metrics server failed: %v", err)
			}
		}()
	}

	provider := source.NewDirProvider(cfg.Source.FramesDir)
	src, err := source.Open(ctx, provider, cfg.Source.QueueCapacity)
	if err != nil {
		return err
	}
	defer src.Close()

	detector, err := buildDetector(cfg)
	if err != nil {
		return err
	}
	adapter, err := detect.NewAdapter(detector, cfg.Detector.Scale)
	if err != nil {
		return err
	}

	gallery, err := recognize.LoadGallery(cfg.Recognition.GalleryPath, cfg.Recognition.MatchThreshold)
	if err != nil {
		return err
	}
	logger.Info("Main", "gallery loaded: %d identities", gallery.Size())

	var classifier recognize.Classifier
	var encoder recognize.Encoder
	if cfg.Recognition.SocketPath != "" {
		client := recognize.NewSidecarClient(cfg.Recognition.SocketPath)
		classifier = recognize.NewSidecarClassifier(client)
		encoder = recognize.NewSidecarEncoder(client)
	} else {
		logger.Warn("Main", "no inference sidecar configured, emotion and identity disabled")
	}

	var mon *monitor.Monitor
	if cfg.Monitor.Addr != "" {
		mon = monitor.New()
		mon.StartServer(cfg.Monitor.Addr)
	}

	var bar *progressbar.ProgressBar
	if *progress {
		if total := provider.Count(); total > 0 {
			bar = progressbar.Default(int64(total), "analyzing")
		}
	}

	engine := pipeline.NewEngine(pipeline.Config{
		FrameStep:        cfg.Sampling.FrameStep,
		WarmupMinSamples: cfg.Calibration.MinSamples,
		GridSize:         cfg.Persistence.GridSize,
		K:                cfg.Persistence.K,
		HistorySize:      cfg.Persistence.HistorySize,
		PadRatio:         cfg.Crop.PadRatio,
		MinCropSize:      cfg.Crop.MinSize,
	}, adapter, met, src.Width(), src.Height())

	rep := report.New(cfg.Source.FramesDir, cfg.Sampling.FrameStep,
		cfg.Persistence.K, cfg.Persistence.GridSize)

	app := &app{
		met:        met,
		classifier: classifier,
		encoder:    encoder,
		gallery:    gallery,
		mon:        mon,
		rep:        rep,
		bar:        bar,
	}

	sum, err := engine.Run(ctx, src, app.handleResult)
	if err != nil {
		return err
	}
	if bar != nil {
		bar.Finish()
	}
	if srcErr := src.Err(); srcErr != nil {
		logger.Warn("Main", "source ended with error: %v", srcErr)
		met.FrameReadErrors.Add(1)
	}
	if sum.CalibrationUnderflow {
		logger.Warn("Main", "calibration underflow: thresholds derived from %d samples",
			sum.CalibrationSamples)
	}

	if err := rep.Save(cfg.SummaryPath, sum); err != nil {
		return err
	}
	logger.Info("Main", "summary written to %s", cfg.SummaryPath)
	rep.Write(os.Stdout, sum)
	return nil
}

// app holds the per-face collaborators the pipeline callback drives.
type app struct {
	met        *metrics.Metrics
	classifier recognize.Classifier
	encoder    recognize.Encoder
	gallery    *recognize.Gallery
	mon        *monitor.Monitor
	rep        *report.Report
	bar        *progressbar.ProgressBar
}

// handleResult runs emotion and identity inference on every accepted face.
// A face whose emotion analysis fails is dropped from the report; identity
// failures degrade to Unknown. A failed detector frame clears the preview so
// stale boxes never persist.
func (a *app) handleResult(frame types.Frame, res pipeline.FrameResult) {
	if a.bar != nil {
		a.bar.Add(1)
	}

	if res.Failed {
		if a.mon != nil {
			a.mon.Clear(frame)
		}
		return
	}

	var faces []types.Face
	for _, acc := range res.Accepted {
		face := types.Face{Box: acc.Box}

		if a.classifier != nil {
			emo, err := a.classifier.Classify(acc.Crop)
			if err != nil {
				a.met.EmotionErrors.Add(1)
				logger.Warn("Main", "emotion analysis failed on frame %d: %v", res.FrameIndex, err)
				continue
			}
			face.Emotion = emo.Label
			face.EmotionScore = emo.Score
		}

		if a.encoder != nil && a.gallery.Size() > 0 {
			vec, err := a.encoder.Encode(acc.Crop)
			if err != nil {
				a.met.IdentityErrors.Add(1)
				logger.Warn("Main", "identity encoding failed on frame %d: %v", res.FrameIndex, err)
				face.Name = recognize.UnknownName
			} else {
				face.Name, _ = a.gallery.Resolve(vec)
			}
		}

		a.rep.AddFace(face)
		faces = append(faces, face)
	}

	if a.mon != nil {
		a.mon.Publish(frame, faces)
	}
}

func buildDetector(cfg *config.Config) (detect.Detector, error) {
	switch cfg.Detector.Backend {
	case "pigo":
		return detect.NewPigoDetector(cfg.Detector.CascadePath)
	case "yunet":
		return detect.NewYuNetDetector(cfg.Detector.ModelPath)
	default:
		return nil, fmt.Errorf("%w: unknown detector backend %q",
			config.ErrInvalidConfig, cfg.Detector.Backend)
	}
}
