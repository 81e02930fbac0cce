package httpclient

import (
	"errors"
	"fmt"
	"time"
)

// RetryableError carries the upstream status for callers that map failures
// themselves. A non-nil *http.Response accompanies it from Client.Do.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status from an error chain, or 0.
func StatusCode(err error) int {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}
