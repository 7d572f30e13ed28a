package catalog

import (
	"errors"
	"fmt"
)

// Error classes of the ingestion pipeline. Per-endpoint (ErrTransport,
// ErrParse) and per-record (ErrMissingField) errors are absorbed by the
// orchestrator; the rest reach the caller.
var (
	ErrTransport          = errors.New("transport error")
	ErrParse              = errors.New("parse error")
	ErrMissingField       = errors.New("missing field")
	ErrAllEndpointsFailed = errors.New("all endpoints failed")
	ErrStorage            = errors.New("storage error")
	ErrInvalidFormat      = errors.New("invalid m3u format")
)

// TransportError reports a failed request to a provider endpoint. StatusCode
// is zero when no response was received.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// ParseError reports a body that could not be interpreted as JSON or M3U.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

// MissingFieldError reports a raw record lacking a required field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }
