package notion

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRetryExhausted is wrapped by errors returned after the final retry
// attempt failed. The last attempt's error is wrapped alongside it.
var ErrRetryExhausted = errors.New("notion: retry attempts exhausted")

// APIError is a non-2xx response from the remote API.
type APIError struct {
	Status  int    // HTTP status code
	Code    string // remote error code, e.g. "object_not_found"
	Message string
	Method  string
	Path    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion: %s %s: %d %s: %s", e.Method, e.Path, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("notion: %s %s: %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// Retryable reports whether the status is worth retrying.
func (e *APIError) Retryable() bool {
	return retryableStatus(e.Status)
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the remote.
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsRateLimited reports whether err is a 429 from the remote.
func IsRateLimited(err error) bool {
	return statusOf(err) == http.StatusTooManyRequests
}

// IsConflict reports whether err is a 409 from the remote.
func IsConflict(err error) bool {
	return statusOf(err) == http.StatusConflict
}

// IsRetryable reports whether err is an API error with a retryable status.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}
