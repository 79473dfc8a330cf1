package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// DefaultBodyLimit bounds JSON request bodies accepted from the browser.
const DefaultBodyLimit int64 = 64 * 1024

var (
	// ErrEmptyBody reports a request without a body.
	ErrEmptyBody = errors.New("httpx: request body is empty")
	// ErrBodyTooLarge reports a body exceeding the configured limit.
	ErrBodyTooLarge = errors.New("httpx: request body too large")
	// ErrInvalidJSON reports a body that is not a single JSON object.
	ErrInvalidJSON = errors.New("httpx: invalid json body")
)

// DecodeJSON reads at most limit bytes from the request and decodes them into dst.
// Unknown fields are rejected.
func DecodeJSON(r *http.Request, limit int64, dst any) error {
	if r == nil || r.Body == nil {
		return ErrEmptyBody
	}
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return ErrEmptyBody
	}
	if int64(len(data)) > limit {
		return ErrBodyTooLarge
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(ErrInvalidJSON, err)
	}
	if dec.More() {
		return ErrInvalidJSON
	}
	return nil
}

// BodyError maps DecodeJSON failures to envelopes.
func BodyError(err error) Error {
	switch {
	case errors.Is(err, ErrEmptyBody):
		return NewError("invalid_request", "request body is required", http.StatusBadRequest)
	case errors.Is(err, ErrBodyTooLarge):
		return NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge)
	default:
		return NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest)
	}
}
