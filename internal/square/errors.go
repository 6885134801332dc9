package square

import (
	"errors"
	"fmt"
)

// ErrMissingCredentials indicates no access token is configured
var ErrMissingCredentials = errors.New("square access token is not configured")

// ErrUnauthorized indicates the access token was rejected
var ErrUnauthorized = errors.New("invalid or expired Square access token")

// ErrRateLimited indicates the API rate limit was exceeded
var ErrRateLimited = errors.New("square API rate limit exceeded")

// ErrMalformedPayload indicates a response body that could not be decoded
var ErrMalformedPayload = errors.New("malformed Square response")

// ErrNoLocations indicates a location scoped fetch before any location is mirrored
var ErrNoLocations = errors.New("no mirrored locations to scope the fetch by, sync locations first")

// ServerError represents a 5xx error from the Square API
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("Square server error: HTTP %d", e.StatusCode)
}

// APIError is a non-retryable 4xx response.
type APIError struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("Square API error: HTTP %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("Square API error: HTTP %d %s: %s", e.StatusCode, e.Code, e.Detail)
}

// TransportError wraps a failure below HTTP: refused connections, resets,
// per-request deadlines.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func isRetryableError(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return true
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
