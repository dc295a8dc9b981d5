package marketapi

import (
	"errors"
	"fmt"
)

var (
	// ErrEndpointsExhausted matches every *ExhaustedError through errors.Is.
	ErrEndpointsExhausted = errors.New("all endpoints exhausted")
	// ErrNoEndpoints means the candidate list was empty. It is a configuration
	// error and never an exhaustion.
	ErrNoEndpoints = errors.New("no endpoints configured")
	// ErrMalformedPayload is recorded when a 2xx body is not valid JSON or does not
	// have the expected shape.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnexpectedStatus is recorded for a non-2xx status outside the retry set.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrRetryableStatus is recorded for a status in the retry set.
	ErrRetryableStatus = errors.New("retryable status")
)

const maxBodySnippet = 200

// ExhaustedError reports that every endpoint and retry failed. It carries the last
// observed failure.
type ExhaustedError struct {
	Path       string
	StatusCode int // 0 when the last failure was a transport error
	URL        string
	Body       string // at most 200 bytes
	Attempts   int
	Err        error
}

func (e *ExhaustedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s after %d attempts: last status %d from %s: %s",
			ErrEndpointsExhausted, e.Attempts, e.StatusCode, e.URL, e.Body)
	}
	return fmt.Sprintf("%s after %d attempts: last error from %s: %v",
		ErrEndpointsExhausted, e.Attempts, e.URL, e.Err)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrEndpointsExhausted }

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsExhausted reports whether err (or anything it wraps) is an exhaustion.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrEndpointsExhausted)
}

// AsExhausted extracts the *ExhaustedError from err.
func AsExhausted(err error) (*ExhaustedError, bool) {
	var e *ExhaustedError
	ok := errors.As(err, &e)
	return e, ok
}

func truncate(b []byte) string {
	if len(b) > maxBodySnippet {
		b = b[:maxBodySnippet]
	}
	return string(b)
}
