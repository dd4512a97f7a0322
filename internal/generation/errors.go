package generation

import (
	"context"
	"errors"
	"strings"
)

// Error kinds. Every error returned by Generate matches exactly one of these
// with errors.Is.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrConfiguration     = errors.New("configuration error")
	ErrSubmission        = errors.New("submission failed")
	ErrBackendJobFailure = errors.New("backend job failed")
	ErrTimedOut          = errors.New("timed out waiting for backend")
	ErrArtifactNotFound  = errors.New("no artifact in job outputs")
	ErrMaterialization   = errors.New("materialization failed")
)

// Error codes exposed to API clients.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeConfiguration   = "CONFIGURATION_ERROR"
	CodeSubmission      = "SUBMISSION_ERROR"
	CodeJobFailed       = "JOB_FAILED"
	CodeTimedOut        = "TIMED_OUT"
	CodeArtifactMissing = "ARTIFACT_NOT_FOUND"
	CodeMaterialization = "MATERIALIZATION_ERROR"
	CodeCanceled        = "CANCELED"
	CodeInternal        = "INTERNAL_ERROR"
)

// Error is a classified generation failure. It unwraps to both its Kind and
// its underlying cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func newError(kind error, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

func (e *Error) Error() string {
	parts := make([]string, 0, 4)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Kind != nil {
		parts = append(parts, e.Kind.Error())
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Code maps err to its API error code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	case errors.Is(err, ErrSubmission):
		return CodeSubmission
	case errors.Is(err, ErrBackendJobFailure):
		return CodeJobFailed
	case errors.Is(err, ErrTimedOut):
		return CodeTimedOut
	case errors.Is(err, ErrArtifactNotFound):
		return CodeArtifactMissing
	case errors.Is(err, ErrMaterialization):
		return CodeMaterialization
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	default:
		return CodeInternal
	}
}

// Message returns the text shown to API clients. Backend failures carry the
// backend's own message.
func Message(err error) string {
	var genErr *Error
	if errors.As(err, &genErr) {
		if genErr.Msg != "" {
			return genErr.Msg
		}
		if genErr.Kind != nil {
			return genErr.Kind.Error()
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
