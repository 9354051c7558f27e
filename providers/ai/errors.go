package ai

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned by providers invoked without credentials.
var ErrMissingAPIKey = errors.New("api key is not set")

// APIError is returned when a provider answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("non-2xx status %d: %s", e.StatusCode, e.Body)
}

// StatusCode extracts the HTTP status from err, or 0 when err carries none.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
