package dataverse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed platform call. Classification happens once,
// here at the gateway boundary; callers branch on Kind instead of re-parsing
// status codes or message text.
type ErrorKind string

const (
	// KindNotFound means the resource does not exist (404). On deletes this is
	// treated by callers as "already absent".
	KindNotFound ErrorKind = "not_found"
	// KindTransient covers lock/customization-in-progress responses that are
	// expected to clear on retry (503, 429, 409, and known message patterns).
	KindTransient ErrorKind = "transient"
	// KindTimeout means the call exceeded its deadline before the platform
	// answered. The remote operation may still have completed.
	KindTimeout ErrorKind = "timeout"
	// KindFatal covers everything else; retrying will not help.
	KindFatal ErrorKind = "fatal"
)

// APIError is the typed error returned for any non-2xx platform response.
type APIError struct {
	Op         string
	StatusCode int
	Kind       ErrorKind
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d, %s)", e.Op, e.Message, e.StatusCode, e.Kind)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Kind)
}

// Retryable reports whether a retry wrapper should attempt the call again.
func (e *APIError) Retryable() bool {
	return e.Kind == KindTransient
}

// IsNotFound reports whether err is a platform not-found response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindNotFound
}

// IsRetryable reports whether err is a transient platform error.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

// IsTimeout reports whether err is a client-side call timeout.
func IsTimeout(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindTimeout
}

// transientPatterns are substrings the platform embeds in lock and
// customization-in-progress responses regardless of status code.
var transientPatterns = []string{
	"customization",
	"in progress",
	"lock",
	"busy",
	"try again",
	"timeout",
	"concurrent",
	"unexpected error",
}

type odataErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// classify maps an HTTP response to an APIError. Status codes win; message
// patterns catch the lock errors the platform reports as plain 500s.
func classify(op string, statusCode int, body []byte) *APIError {
	message := extractMessage(body)
	if message == "" {
		message = http.StatusText(statusCode)
	}

	kind := KindFatal
	switch {
	case statusCode == http.StatusNotFound:
		kind = KindNotFound
	case statusCode == http.StatusServiceUnavailable,
		statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusConflict:
		kind = KindTransient
	case statusCode >= 500 && matchesTransientPattern(message):
		kind = KindTransient
	}

	return &APIError{Op: op, StatusCode: statusCode, Kind: kind, Message: message}
}

func matchesTransientPattern(message string) bool {
	lowered := strings.ToLower(message)
	for _, pattern := range transientPatterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}

func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var envelope odataErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}

	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 512 {
		trimmed = trimmed[:512]
	}
	return trimmed
}
