package domain

import "time"

// ProcessingStage is one step of the analysis workflow.
type ProcessingStage string

const (
	StageIdle          ProcessingStage = "idle"
	StageUploading     ProcessingStage = "uploading"
	StagePreprocessing ProcessingStage = "preprocessing"
	StageAnalyzing     ProcessingStage = "analyzing"
	StageGenerating    ProcessingStage = "generating"
	StageComplete      ProcessingStage = "complete"
)

// StageOrder lists the stages of a successful run in emission order.
var StageOrder = []ProcessingStage{
	StageUploading,
	StagePreprocessing,
	StageAnalyzing,
	StageGenerating,
	StageComplete,
}

// Progress returns the progress percentage associated with the stage.
func (s ProcessingStage) Progress() int {
	switch s {
	case StageUploading:
		return 10
	case StagePreprocessing:
		return 30
	case StageAnalyzing:
		return 60
	case StageGenerating:
		return 90
	case StageComplete:
		return 100
	default:
		return 0
	}
}

// Message returns the step text shown while the stage is active.
func (s ProcessingStage) Message() string {
	switch s {
	case StageUploading:
		return "Uploading image..."
	case StagePreprocessing:
		return "Preprocessing image data..."
	case StageAnalyzing:
		return "Running AI analysis..."
	case StageGenerating:
		return "Generating recommendations..."
	case StageComplete:
		return "Analysis complete"
	default:
		return ""
	}
}

// Next returns the stage that follows s on a successful run, and false when
// s is terminal.
func (s ProcessingStage) Next() (ProcessingStage, bool) {
	switch s {
	case StageIdle:
		return StageUploading, true
	case StageUploading:
		return StagePreprocessing, true
	case StagePreprocessing:
		return StageAnalyzing, true
	case StageAnalyzing:
		return StageGenerating, true
	case StageGenerating:
		return StageComplete, true
	default:
		return "", false
	}
}

// StageEvent is emitted on every stage transition.
type StageEvent struct {
	AnalysisID string          `json:"analysis_id"`
	Stage      ProcessingStage `json:"stage"`
	Progress   int             `json:"progress"`
	Message    string          `json:"message,omitempty"`
	At         time.Time       `json:"at"`
}

// StageObserver receives stage events in emission order. Implementations
// must not block for long: the workflow waits for each call to return.
type StageObserver interface {
	OnStage(event StageEvent)
}

// StageObserverFunc adapts a function to StageObserver.
type StageObserverFunc func(event StageEvent)

// OnStage calls f(event).
func (f StageObserverFunc) OnStage(event StageEvent) { f(event) }
