package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnavailable is returned while an upstream's circuit breaker is open.
	ErrUnavailable = errors.New("upstream: service unavailable")
	// ErrInvalidResponse is returned when a success body cannot be decoded.
	ErrInvalidResponse = errors.New("upstream: invalid response body")
	// ErrSessionExpired is returned by session transports when a 401 could not be
	// recovered by refreshing the caller's tokens.
	ErrSessionExpired = errors.New("upstream: session expired")
)

// Error is a non-2xx response from a backend service. Message carries the
// service's own explanation and is safe to show to shoppers.
type Error struct {
	Service string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream: %s status %d", e.Service, e.Status)
	}
	return fmt.Sprintf("upstream: %s status %d: %s", e.Service, e.Status, e.Message)
}

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr.Status
	}
	return 0
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsUnauthorized reports whether err is an upstream 401.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// Message returns the server-provided message carried by err, or "".
func Message(err error) string {
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr.Message
	}
	return ""
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Errors  []struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
	} `json:"errors"`
}

func decodeErrorMessage(body []byte) string {
	var payload errorBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, candidate := range []string{payload.Message, payload.Error} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return clip(trimmed)
		}
	}
	for _, item := range payload.Errors {
		if msg := strings.TrimSpace(item.Msg + item.Message); msg != "" {
			return clip(msg)
		}
	}
	return ""
}

func clip(s string) string {
	const limit = 300
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
