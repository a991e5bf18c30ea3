package services

import "fmt"

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }

// GenerationFailedError aborts a generation before anything is persisted.
type GenerationFailedError struct{ Message string }

func (e *GenerationFailedError) Error() string { return e.Message }

// UpstreamError wraps a failed call to one of the remote content endpoints.
type UpstreamError struct {
	Endpoint string
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
