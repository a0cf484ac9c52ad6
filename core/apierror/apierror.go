// Package apierror holds the error shape shared by the clients of external
// HTTP services.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteAPIError is a non-success response from an external service.
// StatusCode is 0 when the request never produced a response.
type RemoteAPIError struct {
	Service    string // "github", "agent"
	Operation  string // e.g. "create_repo"
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteAPIError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Service, e.Operation)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": HTTP %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteAPIError) Unwrap() error {
	return e.Err
}

// HasResponse reports whether the service answered at all; false means a
// transport failure.
func (e *RemoteAPIError) HasResponse() bool {
	return e.StatusCode != 0
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *RemoteAPIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsConflict reports whether err is a 409 response.
func IsConflict(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

// IsUnauthorized reports whether the service rejected the credential.
func IsUnauthorized(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized
}
