package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound matches any *APIError carrying a 404 status.
	ErrNotFound = errors.New("sonarqube: not found")

	// ErrInvalidBatchSize is returned by Partition for a batch size below 1.
	ErrInvalidBatchSize = errors.New("batch size must be at least 1")
)

// APIError is returned when SonarQube answers with a non-2xx status.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("API request %s %s failed with status %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsAPIError reports whether err is (or wraps) a remote rejection rather than a transport failure.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
