package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/logging"
	"github.com/toothsense-analysis-server/internal/metrics"
)

// PacingPolicy holds the waits that keep each stage visible long enough to
// be perceived. Zero durations disable a wait.
type PacingPolicy struct {
	Uploading     time.Duration
	Preprocessing time.Duration
	Generating    time.Duration
}

// DefaultPacing is the pacing used when nothing is configured.
var DefaultPacing = PacingPolicy{
	Uploading:     800 * time.Millisecond,
	Preprocessing: 800 * time.Millisecond,
	Generating:    500 * time.Millisecond,
}

// PacingFromConfig converts configured pacing into a policy.
func PacingFromConfig(cfg domain.PacingConfig) PacingPolicy {
	return PacingPolicy{
		Uploading:     cfg.Uploading,
		Preprocessing: cfg.Preprocessing,
		Generating:    cfg.Generating,
	}
}

// OrchestratorConfig holds the limits and pacing of the workflow.
type OrchestratorConfig struct {
	Pacing        PacingPolicy
	MaxImageBytes int64
	MaxDimension  int
}

// Orchestrator drives one analysis from upload to a unified result.
// It is safe for concurrent use; every run gets its own tracker.
type Orchestrator struct {
	inference domain.InferenceClient
	augmenter *Augmenter
	config    OrchestratorConfig
	logger    *logrus.Logger
	recorder  *metrics.Recorder
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(inference domain.InferenceClient, augmenter *Augmenter, config OrchestratorConfig, logger *logrus.Logger, recorder *metrics.Recorder) *Orchestrator {
	if logger == nil {
		logger = logging.Discard()
	}
	if config.MaxImageBytes <= 0 {
		config.MaxImageBytes = 10 << 20
	}
	return &Orchestrator{
		inference: inference,
		augmenter: augmenter,
		config:    config,
		logger:    logger,
		recorder:  recorder,
	}
}

// RunAnalysis runs the staged workflow. Stage events go to observer, which
// may be nil. On failure the tracker is reset to idle, no result is returned
// and the error is an *domain.AnalysisFailedError carrying the failure code.
// A recommendation failure never fails the run.
func (o *Orchestrator) RunAnalysis(ctx context.Context, req domain.AnalysisRequest, observer domain.StageObserver) (*domain.UnifiedResult, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	start := time.Now()
	log := o.logger.WithFields(logrus.Fields{
		"analysis_id": req.ID,
		"image_kind":  req.Kind,
	})

	if cause := o.ValidateRequest(&req); cause != nil {
		log.WithField("code", cause.Code).Warnf("Analysis rejected: %v", cause.Err)
		o.recorder.ObserveAnalysis(req.Kind, cause.Code, time.Since(start))
		return nil, domain.NewAnalysisFailedError(req.ID, domain.StageIdle, cause)
	}

	tracker := NewProgressTracker(req.ID, observer, o.recorder)
	fail := func(stage domain.ProcessingStage, cause *domain.AnalysisError) (*domain.UnifiedResult, error) {
		tracker.Reset()
		log.WithFields(logrus.Fields{
			"stage": stage,
			"code":  cause.Code,
		}).Errorf("Analysis failed: %v", cause.Err)
		o.recorder.ObserveAnalysis(req.Kind, cause.Code, time.Since(start))
		return nil, domain.NewAnalysisFailedError(req.ID, stage, cause)
	}

	log.WithField("bytes", len(req.Image.Data)).Info("Starting analysis")

	// Uploading
	tracker.Advance()
	if err := pause(ctx, o.config.Pacing.Uploading); err != nil {
		return fail(domain.StageUploading, cancelled("upload", err))
	}

	// Preprocessing
	tracker.Advance()
	image := o.preprocess(log, req.Image)
	if err := pause(ctx, o.config.Pacing.Preprocessing); err != nil {
		return fail(domain.StagePreprocessing, cancelled("preprocess", err))
	}

	// Analyzing
	tracker.Advance()
	result, cause := o.analyze(ctx, req.Kind, image)
	if cause != nil {
		return fail(domain.StageAnalyzing, cause)
	}

	// Generating: cancellation no longer aborts the run
	tracker.Advance()
	augmentCtx := context.WithoutCancel(ctx)
	result = o.augmenter.Augment(augmentCtx, result, AugmentationContext(result))
	_ = pause(ctx, o.config.Pacing.Generating)

	tracker.Advance()

	elapsed := time.Since(start)
	o.recorder.ObserveAnalysis(req.Kind, "", elapsed)
	log.WithFields(logrus.Fields{
		"disease":         result.PrimaryLabel,
		"confidence":      result.ConfidencePercent,
		"severity":        result.Severity,
		"recommendations": result.HasRecommendations(),
		"duration_ms":     elapsed.Milliseconds(),
	}).Info("Analysis complete")

	return &result, nil
}

// ValidateRequest checks the request before any stage starts and fills in
// the sniffed content type.
func (o *Orchestrator) ValidateRequest(req *domain.AnalysisRequest) *domain.AnalysisError {
	const op = "validate"

	if len(req.Image.Data) == 0 {
		return domain.InvalidInput(op, "no image provided")
	}
	if !req.Kind.IsValid() {
		return domain.InvalidInput(op, "unknown image kind %q", req.Kind)
	}
	if int64(len(req.Image.Data)) > o.config.MaxImageBytes {
		return domain.InvalidInput(op, "image is %d bytes, limit is %d", len(req.Image.Data), o.config.MaxImageBytes)
	}

	contentType, ok := sniffContentType(req.Image)
	if !ok {
		return domain.InvalidInput(op, "content type %s is not an image", contentType)
	}
	req.Image.ContentType = contentType
	return nil
}

func (o *Orchestrator) preprocess(log *logrus.Entry, img domain.Image) domain.Image {
	resized, changed, err := Downscale(img, o.config.MaxDimension)
	if err != nil {
		log.WithError(err).Debug("Image left unchanged")
		return img
	}
	if changed {
		log.WithFields(logrus.Fields{
			"bytes_before": len(img.Data),
			"bytes_after":  len(resized.Data),
		}).Debug("Image downscaled")
	}
	return resized
}

func (o *Orchestrator) analyze(ctx context.Context, kind domain.ImageKind, img domain.Image) (domain.UnifiedResult, *domain.AnalysisError) {
	var (
		result domain.UnifiedResult
		err    error
	)

	switch kind {
	case domain.ImageKindRadiograph:
		var raw *domain.RawRadiographResponse
		if raw, err = o.inference.AnalyzeRadiograph(ctx, img); err == nil {
			result, err = NormalizeRadiograph(raw)
		}
	case domain.ImageKindGumPhoto:
		var raw *domain.RawGumPhotoResponse
		if raw, err = o.inference.AnalyzeGumPhoto(ctx, img); err == nil {
			result, err = NormalizeGumPhoto(raw)
		}
	default:
		err = domain.InvalidInput("analyze", "unknown image kind %q", kind)
	}

	if err != nil {
		var ae *domain.AnalysisError
		if errors.As(err, &ae) {
			return domain.UnifiedResult{}, ae
		}
		return domain.UnifiedResult{}, domain.NewAnalysisError(domain.ErrTransportFailure, "analyze "+kind.WireID(), err)
	}
	return result, nil
}

// pause waits for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cancelled(op string, err error) *domain.AnalysisError {
	return domain.NewAnalysisError(domain.ErrTransportFailure, op, err)
}

// Session enforces one analysis at a time for a single owner, such as one
// websocket connection or one CLI invocation. A second Run while one is in
// flight returns domain.ErrAnalysisInFlight; it neither queues nor cancels.
type Session struct {
	orchestrator *Orchestrator
	running      atomic.Bool
}

// NewSession creates a session bound to orchestrator.
func NewSession(orchestrator *Orchestrator) *Session {
	return &Session{orchestrator: orchestrator}
}

// Run starts an analysis unless one is already running.
func (s *Session) Run(ctx context.Context, req domain.AnalysisRequest, observer domain.StageObserver) (*domain.UnifiedResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, domain.ErrAnalysisInFlight
	}
	defer s.running.Store(false)
	return s.orchestrator.RunAnalysis(ctx, req, observer)
}

// Busy reports whether an analysis is in flight.
func (s *Session) Busy() bool {
	return s.running.Load()
}
