package completion

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingCredential is returned before any network I/O when no API
	// key is configured.
	ErrMissingCredential = errors.New("not authenticated: set ANTHROPIC_API_KEY or api_key in config.toml")
	// ErrNetwork wraps transport-level failures.
	ErrNetwork = errors.New("network error")
	// ErrAuth is returned when the API rejects the credential.
	ErrAuth = errors.New("authentication rejected")
	// ErrRemote covers non-success or unparseable API responses.
	ErrRemote = errors.New("remote error")
	// ErrMalformedResponse is returned when the response has no completion text.
	ErrMalformedResponse = errors.New("malformed response")
)

// APIError is an error body returned by the messages endpoint.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("API error (status %d, %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Is matches ErrAuth for 401/403 and ErrRemote for everything else.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.isAuth()
	case ErrRemote:
		return !e.isAuth()
	}
	return false
}

func (e *APIError) isAuth() bool {
	return e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode == http.StatusForbidden ||
		e.Type == "authentication_error" ||
		e.Type == "permission_error"
}
