package service

import (
	"sync"
	"time"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/metrics"
)

// ProgressTracker follows one analysis run through its stages. It only moves
// forward along the stage order, or back to idle on failure.
type ProgressTracker struct {
	mu         sync.RWMutex
	analysisID string
	stage      domain.ProcessingStage
	observer   domain.StageObserver
	recorder   *metrics.Recorder
	now        func() time.Time
}

// NewProgressTracker creates a tracker at idle. observer may be nil.
func NewProgressTracker(analysisID string, observer domain.StageObserver, recorder *metrics.Recorder) *ProgressTracker {
	return &ProgressTracker{
		analysisID: analysisID,
		stage:      domain.StageIdle,
		observer:   observer,
		recorder:   recorder,
		now:        time.Now,
	}
}

// Advance moves to the next stage and emits its event. It returns the new
// stage, or false when the run is already complete.
func (p *ProgressTracker) Advance() (domain.ProcessingStage, bool) {
	p.mu.Lock()
	next, ok := p.stage.Next()
	if !ok {
		p.mu.Unlock()
		return p.stage, false
	}
	p.stage = next
	p.mu.Unlock()

	p.emit(next)
	return next, true
}

// Reset returns the tracker to idle and emits the idle event. Resetting an
// idle tracker emits nothing.
func (p *ProgressTracker) Reset() {
	p.mu.Lock()
	if p.stage == domain.StageIdle {
		p.mu.Unlock()
		return
	}
	p.stage = domain.StageIdle
	p.mu.Unlock()

	p.emit(domain.StageIdle)
}

// Stage returns the current stage.
func (p *ProgressTracker) Stage() domain.ProcessingStage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stage
}

// Progress returns the current progress percentage.
func (p *ProgressTracker) Progress() int {
	return p.Stage().Progress()
}

func (p *ProgressTracker) emit(stage domain.ProcessingStage) {
	p.recorder.ObserveStage(stage)
	if p.observer == nil {
		return
	}
	p.observer.OnStage(domain.StageEvent{
		AnalysisID: p.analysisID,
		Stage:      stage,
		Progress:   stage.Progress(),
		Message:    stage.Message(),
		At:         p.now().UTC(),
	})
}
