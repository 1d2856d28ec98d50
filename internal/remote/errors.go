package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoFilter is the cause of an Update or Delete issued without a filter.
var ErrNoFilter = errors.New("filter required")

// Error is the single failure shape every remote operation returns.
type Error struct {
	Message string
	Status  int
	Code    string
	Details string
	Hint    string

	cause error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("remote error (status %d): %s", e.Status, e.Message)
	}
	return "remote error: " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// IsRemote reports whether err carries an *Error.
func IsRemote(err error) bool {
	var re *Error
	return errors.As(err, &re)
}

// IsNotFound reports whether err is a single-row lookup that matched nothing.
func IsNotFound(err error) bool {
	var re *Error
	return errors.As(err, &re) && (re.Code == "PGRST116" || re.Status == http.StatusNotFound)
}

// DecodeError understands both the REST ({message, code, details, hint}) and
// the auth ({error, error_description} / {msg}) error bodies.
func DecodeError(status int, data []byte) *Error {
	var payload struct {
		Message          string          `json:"message"`
		Code             json.RawMessage `json:"code"`
		Details          string          `json:"details"`
		Hint             string          `json:"hint"`
		Error            string          `json:"error"`
		ErrorDescription string          `json:"error_description"`
		Msg              string          `json:"msg"`
	}
	e := &Error{Status: status}
	if err := json.Unmarshal(data, &payload); err == nil {
		e.Message = firstNonEmpty(payload.Message, payload.ErrorDescription, payload.Msg, payload.Error)
		e.Code = strings.Trim(string(payload.Code), `"`)
		e.Details = payload.Details
		e.Hint = payload.Hint
		if e.Code == "" {
			e.Code = payload.Error
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(data))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
