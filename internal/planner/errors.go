package planner

import (
	"errors"
	"fmt"
	"net/http"

	"tradecoach/internal/gateway/provider"
)

// Error codes returned to clients.
const (
	CodeMissingFile     = "missing_file"
	CodeMissingPrevious = "missing_previous"
	CodeMissingInput    = "missing_input"
	CodeBadRequest      = "bad_request"
	CodeInvalidImage    = "invalid_image"
	CodeImageTooLarge   = "image_too_large"
	CodeRateLimited     = "rate_limited"
	CodeTimeout         = "timeout"
	CodeUpstream        = "upstream_error"
	CodePlannerEmpty    = "planner_empty"
	CodeParseFailed     = "parse_failed"
	CodeInternal        = "internal"
)

// Error is a failure that maps directly onto an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// AsError converts any error into an *Error, defaulting to 500 internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: err.Error(), Err: err}
}

// classifyGatewayError maps a model gateway failure for the named stage.
func classifyGatewayError(stage string, err error) *Error {
	switch {
	case provider.IsTimeout(err):
		return &Error{Status: http.StatusGatewayTimeout, Code: CodeTimeout, Message: stage + " timed out", Err: err}
	case provider.StatusOf(err) != 0:
		status := provider.StatusOf(err)
		return &Error{
			Status:  http.StatusBadGateway,
			Code:    CodeUpstream,
			Message: fmt.Sprintf("%s upstream failed with status %d: %v", stage, status, err),
			Err:     err,
		}
	case errors.Is(err, provider.ErrEmptyCompletion), errors.Is(err, provider.ErrNoModels):
		return &Error{Status: http.StatusBadGateway, Code: CodeUpstream, Message: fmt.Sprintf("%s upstream failed: %v", stage, err), Err: err}
	}
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: fmt.Sprintf("%s failed: %v", stage, err), Err: err}
}
