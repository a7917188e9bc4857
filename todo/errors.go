package todo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-errors"
)

// Error categories produced by the sync engine.
var (
	CategoryNetworkFailure    = errors.CategoryExternal.Extend("network_failure")
	CategoryMalformedResponse = errors.CategoryBadInput.Extend("malformed_response")
	CategoryValidationFailure = errors.CategoryValidation
)

// Text codes attached to categorized errors.
const (
	TextCodeTransport = "TRANSPORT"
	TextCodeMalformed = "MALFORMED_RESPONSE"
	TextCodeTitle     = "INVALID_TITLE"
)

// NewHTTPFailure builds the error returned for a non-2xx response. The message
// reads "<action>: <status line> - <body>", e.g.
// "Failed to update todo: 500 Internal Server Error - boom". The body part is
// dropped when the body is empty.
// Server errors and throttling are flagged retryable so callers can offer a
// manual retry; nothing retries on its own.
func NewHTTPFailure(action string, status int, statusLine, body string) error {
	msg := fmt.Sprintf("%s: %s", action, statusLine)
	if body = strings.TrimSpace(body); body != "" {
		msg += " - " + body
	}
	retryable := status >= 500 || status == 429

	return errors.NewRetryable(msg, CategoryNetworkFailure).
		WithRetryable(retryable).
		WithCode(status).
		WithTextCode("HTTP_" + strconv.Itoa(status)).
		WithMetadata(map[string]any{"status": status})
}

// NewTransportFailure wraps an error raised before any response was read.
func NewTransportFailure(action string, err error) error {
	return errors.WrapRetryable(err, CategoryNetworkFailure, action).
		WithTextCode(TextCodeTransport)
}

// NewMalformedResponse reports a body that could not be decoded at all.
func NewMalformedResponse(err error, message string) error {
	return errors.Wrap(err, CategoryMalformedResponse, message).
		WithTextCode(TextCodeMalformed).
		WithSeverity(errors.SeverityWarning)
}

func newValidationFailure(err error, message string) *errors.Error {
	return errors.FromOzzoValidation(err, message).
		WithSeverity(errors.SeverityInfo)
}

// IsNetworkFailure reports whether err came from a failed remote call.
func IsNetworkFailure(err error) bool {
	return errors.IsCategory(err, CategoryNetworkFailure)
}

// IsMalformedResponse reports whether err came from an undecodable body.
func IsMalformedResponse(err error) bool {
	return errors.IsCategory(err, CategoryMalformedResponse)
}

// IsValidationFailure reports whether err is a local input rejection.
func IsValidationFailure(err error) bool {
	return errors.IsValidation(err)
}

// IsRetryable reports whether a manual retry might succeed.
func IsRetryable(err error) bool {
	var r *errors.RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0 when none was received.
func StatusCode(err error) int {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return 0
}

// Message returns the human readable part of err without category decorations.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := AsError(err); ok && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// AsError extracts the categorized error from err, looking through the
// retryable wrapper.
func AsError(err error) (*errors.Error, bool) {
	var r *errors.RetryableError
	if errors.As(err, &r) && r.BaseError != nil {
		return r.BaseError, true
	}
	var e *errors.Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
