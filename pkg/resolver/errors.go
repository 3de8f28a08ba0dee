package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors returned by the resolver and its endpoints.
var (
	// ErrRetryExhausted is logged when all attempts for a number failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrShortBody is returned when a response body is too short to be a result.
	ErrShortBody = errors.New("empty or invalid response body")

	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("session closed")
)

// ErrorClass represents a classification of failed attempts.
type ErrorClass string

const (
	// ErrorClassNetwork represents transport errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents attempts that hit their timeout.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassStatus represents non-success HTTP statuses.
	ErrorClassStatus ErrorClass = "status"

	// ErrorClassShortBody represents empty or truncated bodies.
	ErrorClassShortBody ErrorClass = "short_body"
)

// AttemptError describes one failed lookup attempt.
type AttemptError struct {
	Number     string
	Attempt    int
	Class      ErrorClass
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *AttemptError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("lookup %s attempt %d: %s error (status %d): %v",
			e.Number, e.Attempt, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("lookup %s attempt %d: %s error: %v",
		e.Number, e.Attempt, e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AttemptError) Unwrap() error {
	return e.Err
}

// classifyTransportError distinguishes timeouts from other transport failures.
func classifyTransportError(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}
	return ErrorClassNetwork
}
