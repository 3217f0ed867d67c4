package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error codes for the analysis failure taxonomy.
const (
	ErrInvalidInput              = "INVALID_INPUT"
	ErrTransportFailure          = "TRANSPORT_FAILURE"
	ErrMalformedResponse         = "MALFORMED_RESPONSE"
	ErrRecommendationUnavailable = "RECOMMENDATION_UNAVAILABLE"
	ErrInternalServer            = "INTERNAL_SERVER_ERROR"
)

var (
	// ErrAnalysisFailed matches every fatal analysis failure via errors.Is.
	ErrAnalysisFailed = errors.New("analysis failed")

	// ErrAnalysisInFlight is returned when a session already runs an analysis.
	ErrAnalysisInFlight = errors.New("an analysis is already in progress")
)

// AnalysisError carries the fine-grained failure code for diagnostics.
type AnalysisError struct {
	Code string
	Op   string
	Err  error
}

// Error implements the error interface
func (e *AnalysisError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

// Unwrap returns the underlying cause
func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// NewAnalysisError creates an AnalysisError
func NewAnalysisError(code, op string, err error) *AnalysisError {
	return &AnalysisError{Code: code, Op: op, Err: err}
}

// InvalidInput is shorthand for an INVALID_INPUT error with a message.
func InvalidInput(op, format string, args ...interface{}) *AnalysisError {
	return NewAnalysisError(ErrInvalidInput, op, fmt.Errorf(format, args...))
}

// MalformedResponse is shorthand for a MALFORMED_RESPONSE error with a message.
func MalformedResponse(op, format string, args ...interface{}) *AnalysisError {
	return NewAnalysisError(ErrMalformedResponse, op, fmt.Errorf(format, args...))
}

// CodeOf returns the failure code carried by err, or ErrInternalServer when
// err carries none.
func CodeOf(err error) string {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrInternalServer
}

// AnalysisFailedError is the only failure a workflow caller sees. The cause
// keeps the code for logs and metrics.
type AnalysisFailedError struct {
	AnalysisID string
	Stage      ProcessingStage
	Cause      *AnalysisError
	Timestamp  time.Time
}

// NewAnalysisFailedError wraps cause as the outward failure of a run.
func NewAnalysisFailedError(analysisID string, stage ProcessingStage, cause *AnalysisError) *AnalysisFailedError {
	return &AnalysisFailedError{
		AnalysisID: analysisID,
		Stage:      stage,
		Cause:      cause,
		Timestamp:  time.Now().UTC(),
	}
}

// Error implements the error interface
func (e *AnalysisFailedError) Error() string {
	if e.Cause == nil {
		return ErrAnalysisFailed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrAnalysisFailed.Error(), e.Cause)
}

// Unwrap exposes the coded cause to errors.As.
func (e *AnalysisFailedError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Is makes errors.Is(err, ErrAnalysisFailed) true.
func (e *AnalysisFailedError) Is(target error) bool {
	return target == ErrAnalysisFailed
}

// Code returns the cause's failure code.
func (e *AnalysisFailedError) Code() string {
	if e.Cause == nil {
		return ErrInternalServer
	}
	return e.Cause.Code
}

// APIError is the JSON error body returned by the HTTP layer.
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}
