package embedding

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidConfig is returned by NewClient and Config.Validate.
	ErrInvalidConfig = errors.New("embedding: invalid config")

	// ErrMalformedResponse is returned when the endpoint answered 2xx but the
	// body could not be decoded into vectors.
	ErrMalformedResponse = errors.New("embedding: malformed response")

	// ErrCountMismatch is returned when the number of vectors differs from
	// the number of inputs.
	ErrCountMismatch = errors.New("embedding: vector count mismatch")
)

// APIError is returned when the endpoint answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("embedding: %s returned %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("embedding: %s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

// IsAPIError reports whether err carries an *APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == code
}

// IsUnauthorized checks if the endpoint rejected the credentials.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized) || IsStatus(err, http.StatusForbidden)
}

// IsMalformedResponseError checks if the response body could not be decoded.
func IsMalformedResponseError(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}

// IsCountMismatchError checks if the endpoint returned the wrong number of vectors.
func IsCountMismatchError(err error) bool {
	return errors.Is(err, ErrCountMismatch)
}
