package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized matches any APIError carrying an authorization failure.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is returned when the server answers with a non-2xx status.
type APIError struct {
	Status  int
	Message string
	Data    json.RawMessage
	Method  string
	URL     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, e.Message)
}

// Is reports authorization failures as ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// IsUnauthorized reports whether err is an authorization failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// Message returns the human-readable reason for err: the server's message
// when the failure carried one, otherwise the error's own text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

// StatusCode returns the HTTP status carried by err, or 0 for transport
// failures.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
