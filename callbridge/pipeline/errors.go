package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrDuplicateTool     = errors.New("duplicate tool definition")
	ErrUnboundTool       = errors.New("tool binding cannot be resolved")
	ErrInvalidDefinition = errors.New("invalid tool definition")
	ErrInvalidRequest    = errors.New("invalid turn request")
	ErrInvalidTransition = errors.New("invalid tool call transition")
)

// ErrorKind classifies a per-call failure.
type ErrorKind string

const (
	KindUnknownTool           ErrorKind = "UnknownTool"
	KindMissingParameter      ErrorKind = "MissingParameter"
	KindTypeMismatch          ErrorKind = "TypeMismatch"
	KindConstraintViolation   ErrorKind = "ConstraintViolation"
	KindToolNotAllowed        ErrorKind = "ToolNotAllowed"
	KindBackendExecutionError ErrorKind = "BackendExecutionError"
)

// CallError is the failure recorded on a single tool call.
type CallError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
}

func (e *CallError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsValidation reports whether the error came from argument checking.
func (e *CallError) IsValidation() bool {
	switch e.Kind {
	case KindMissingParameter, KindTypeMismatch, KindConstraintViolation:
		return true
	}
	return false
}

// DiagnosticKind classifies non-fatal findings.
type DiagnosticKind string

const (
	DiagParse           DiagnosticKind = "ParseDiagnostic"
	DiagUnknownArgument DiagnosticKind = "UnknownArgument"
)

// Diagnostic is a non-fatal note produced while parsing or validating.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Message string         `json:"message"`
	Offset  int            `json:"offset,omitempty"`
	Snippet string         `json:"snippet,omitempty"`
}

// FailureKind names why a turn ended in StateFailed.
type FailureKind string

const (
	FailureNone                 FailureKind = ""
	FailureInferenceUnavailable FailureKind = "InferenceUnavailable"
	FailureCancelled            FailureKind = "Cancelled"
	FailureSession              FailureKind = "SessionError"
)
