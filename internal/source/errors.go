package source

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// SourceError wraps errors with the reference being fetched
type SourceError struct {
	Ref       string // Script reference (path or URL)
	Operation string // Operation that failed (e.g., "read", "request")
	Err       error  // Underlying error
	Retryable bool   // Whether this error is retryable
}

func (e *SourceError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("script %q: %s failed: %v", e.Ref, e.Operation, e.Err)
	}
	return fmt.Sprintf("script %q: %v", e.Ref, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *SourceError) IsRetryable() bool {
	return e.Retryable
}

// NotFoundError means the referenced script does not exist.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Failed to load %s", e.Ref)
}

// TimeoutError represents a fetch that ran past its deadline
type TimeoutError struct {
	Ref      string
	Duration string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("script %q: fetch timed out after %s", e.Ref, e.Duration)
}

// ValidationError represents a reference that may not be fetched
type ValidationError struct {
	Ref    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("script %q: invalid reference: %s", e.Ref, e.Reason)
}

// CircuitOpenError means the script's host failed repeatedly and fetches
// from it are paused.
type CircuitOpenError struct {
	Ref        string
	Host       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("script %q: host %s is unavailable, retry in %s", e.Ref, e.Host, e.RetryAfter.Round(time.Second))
}

// HTTPError represents an HTTP error response
type HTTPError struct {
	Ref        string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("script %q: HTTP %d %s: %s", e.Ref, e.StatusCode, e.Status, e.Body)
	}
	return fmt.Sprintf("script %q: HTTP %d %s", e.Ref, e.StatusCode, e.Status)
}

// IsRetryable returns true for 5xx errors and 429 (rate limit)
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// NewSourceError creates a SourceError with retryable detection
func NewSourceError(ref, operation string, err error) *SourceError {
	return &SourceError{
		Ref:       ref,
		Operation: operation,
		Err:       err,
		Retryable: isRetryableError(err),
	}
}

// isRetryableError checks if an error is retryable
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"try again",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// UserFriendlyMessage returns the message shown in place of a script that
// could not be loaded.
func UserFriendlyMessage(err error) string {
	if err == nil {
		return ""
	}

	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return notFound.Error()
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 401 || httpErr.StatusCode == 403:
			return fmt.Sprintf("Failed to load %s (access denied)", httpErr.Ref)
		case httpErr.StatusCode == 429:
			return fmt.Sprintf("Failed to load %s (too many requests)", httpErr.Ref)
		case httpErr.StatusCode >= 500:
			return fmt.Sprintf("Failed to load %s (server error)", httpErr.Ref)
		default:
			return fmt.Sprintf("Failed to load %s (HTTP %d)", httpErr.Ref, httpErr.StatusCode)
		}
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return fmt.Sprintf("Failed to load %s (timed out after %s)", timeoutErr.Ref, timeoutErr.Duration)
	}

	var openErr *CircuitOpenError
	if errors.As(err, &openErr) {
		return fmt.Sprintf("Failed to load %s (host unavailable)", openErr.Ref)
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return fmt.Sprintf("Invalid script reference %s: %s", validationErr.Ref, validationErr.Reason)
	}

	var sourceErr *SourceError
	if errors.As(err, &sourceErr) {
		return fmt.Sprintf("Failed to load %s", sourceErr.Ref)
	}

	return err.Error()
}
