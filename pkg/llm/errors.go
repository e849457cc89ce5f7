package llm

import (
	"errors"
	"fmt"
	"time"
)

// ConnectionError means the backend could not be reached: dial failure,
// DNS, broken transport. Retried inside the client with backoff before it
// surfaces.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("llm: %s: connection failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError means the call exceeded its deadline. A distinct type so the
// API layer can map it to 504 instead of 502.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("llm: %s: timeout after %s", e.Op, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ModelNotAvailableError means the backend does not serve the requested
// model. Never retried against the same model; the retry engine moves to
// the next fallback instead.
type ModelNotAvailableError struct {
	Model string
}

func (e *ModelNotAvailableError) Error() string {
	return fmt.Sprintf("llm: model not available: %s", e.Model)
}

// GenerationError means the backend accepted the call but produced no
// usable completion: server error, rejected request, empty or malformed
// response body. Status is the HTTP status when one applies, 0 otherwise.
type GenerationError struct {
	Status int
	Msg    string
}

func (e *GenerationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm: generation failed (status %d): %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("llm: generation failed: %s", e.Msg)
}

// IsModelNotAvailable reports whether err is a missing-model failure.
func IsModelNotAvailable(err error) bool {
	var target *ModelNotAvailableError
	return errors.As(err, &target)
}

// IsTimeout reports whether err is a backend deadline failure.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// IsConnection reports whether err is a transport-level failure, timeouts
// included.
func IsConnection(err error) bool {
	if IsTimeout(err) {
		return true
	}
	var target *ConnectionError
	return errors.As(err, &target)
}
