package invoke

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/leofalp/devforge/providers/ai"
)

// ErrorKind classifies a failed model call.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindQuota
	KindUnauthorized
	KindTimeout
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindQuota:
		return "quota"
	case KindUnauthorized:
		return "unauthorized"
	case KindTimeout:
		return "timeout"
	default:
		return "other"
	}
}

// IsRetryable reports whether the same tier may be tried again.
func IsRetryable(kind ErrorKind) bool {
	return kind == KindTimeout || kind == KindOther
}

// ErrEmptyResponse is returned when a tier answers without any text.
var ErrEmptyResponse = errors.New("empty response from model")

// Error is the terminal failure of an invocation.
type Error struct {
	Kind     ErrorKind
	Tier     string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invoke %s failed on tier %q after %d attempt(s): %v", e.Kind, e.Tier, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err. A nil error is KindNone and an
// unclassified error is KindOther.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var invokeErr *Error
	if errors.As(err, &invokeErr) {
		return invokeErr.Kind
	}
	return Classify(err)
}

var (
	quotaMarkers = []string{
		"exceeded your current quota", "resource_exhausted", "rate limit", "ratelimit",
		"too many requests", "quota", "429",
	}
	unauthorizedMarkers = []string{
		"unauthorized", "permission denied", "permission_denied", "api key not valid",
		"invalid api key", "incorrect api key", "api key is not set",
	}
	timeoutMarkers = []string{"timeout", "timed out", "deadline exceeded"}
)

// Classify maps a provider error to an ErrorKind. Typed information (HTTP
// status, context deadline, net.Error) wins over message matching.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	switch ai.StatusCode(err) {
	case http.StatusTooManyRequests:
		return KindQuota
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	}

	if errors.Is(err, ai.ErrMissingAPIKey) {
		return KindUnauthorized
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, quotaMarkers):
		return KindQuota
	case containsAny(msg, unauthorizedMarkers):
		return KindUnauthorized
	case containsAny(msg, timeoutMarkers):
		return KindTimeout
	}
	return KindOther
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
