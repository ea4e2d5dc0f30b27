package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout          = errors.New("model call timed out")
	ErrFreeModelBlocked = errors.New("free-tier model not allowed in production")
	ErrEmptyCompletion  = errors.New("empty completion")
	ErrNoModels         = errors.New("no candidate models")
)

// StatusError is a non-2xx answer from a provider.
type StatusError struct {
	Provider string
	Model    string
	Status   int
	Message  string
	Attempts int
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "upstream error"
	}
	return fmt.Sprintf("%s %s: status=%d: %s", e.Provider, e.Model, e.Status, msg)
}

// TimeoutError is raised when a per-call budget elapses.
type TimeoutError struct {
	Kind  Kind
	Model string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s call to %s timed out after %s", e.Kind, e.Model, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ExhaustedError is raised when every candidate model failed.
type ExhaustedError struct {
	Models []string
	Last   error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return "All vision models failed."
	}
	return "All vision models failed. Last error: " + e.Last.Error()
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
