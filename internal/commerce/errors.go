package commerce

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// maxBodyExcerpt bounds how much of an error response body is kept.
const maxBodyExcerpt = 300

// UpstreamError is a non-2xx response or an undecodable 2xx body.
type UpstreamError struct {
	Resource   Resource
	Status     int
	Body       string        // excerpt of the response body
	Message    string        // set when the body could not be decoded
	RetryAfter time.Duration // from Retry-After on 429/503, zero if absent
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream %s: %s (status %d)", e.Resource, e.Message, e.Status)
	}
	if e.Body != "" {
		return fmt.Sprintf("upstream %s: status %d: %s", e.Resource, e.Status, e.Body)
	}
	return fmt.Sprintf("upstream %s: status %d", e.Resource, e.Status)
}

// Temporary reports whether the request may succeed if repeated:
// throttling and server-side failures.
func (e *UpstreamError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// TransientError is a network-level failure (no response received).
type TransientError struct {
	Resource Resource
	Err      error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("upstream %s: transport: %v", e.Resource, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Temporary always returns true.
func (e *TransientError) Temporary() bool {
	return true
}

// IsTemporary reports whether err is a transport failure or a retryable
// upstream status. Uses errors.As to handle wrapped errors.
func IsTemporary(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Temporary()
	}
	return false
}

// RetryAfter returns the server-requested delay carried by err, if any.
func RetryAfter(err error) time.Duration {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.RetryAfter
	}
	return 0
}

func excerpt(b []byte) string {
	s := string(b)
	if len(s) > maxBodyExcerpt {
		return s[:maxBodyExcerpt]
	}
	return s
}
