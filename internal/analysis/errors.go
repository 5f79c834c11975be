package analysis

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
)

// ErrMissingID is returned when an upload succeeds at the transport level but
// the response carries no usable analysis id.
var ErrMissingID = errors.New("upload response has no analysis id")

// UploadError reports a failed submission. The caller should offer a fresh capture.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	if e == nil {
		return ""
	}
	name := filepath.Base(e.Path)
	if e.Path == "" {
		name = "image"
	}
	return fmt.Sprintf("upload %s: %v", name, e.Err)
}

func (e *UploadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PollError reports a status round that failed. It ends the polling session.
type PollError struct {
	AnalysisID string
	Round      int
	Err        error
}

func (e *PollError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("poll analysis %s (round %d): %v", e.AnalysisID, e.Round, e.Err)
}

func (e *PollError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	code := e.Code
	if code == "" {
		code = http.StatusText(e.StatusCode)
	}
	if e.Message == "" {
		return fmt.Sprintf("analysis api returned %d %s", e.StatusCode, code)
	}
	return fmt.Sprintf("analysis api returned %d %s: %s", e.StatusCode, code, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
