package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Pipeline Errors.

	// ErrCursorConflict indicates another run already holds the importer's cursor.
	ErrCursorConflict = errors.New("cursor conflict: importer run already in progress")

	// ErrUnknownImporter indicates no binding is registered under the given id.
	ErrUnknownImporter = errors.New("unknown importer")

	// ErrImporterDisabled indicates the binding exists but is switched off.
	ErrImporterDisabled = errors.New("importer disabled")

	// ErrIdentityImmutable indicates an update tried to change a record's identity key.
	ErrIdentityImmutable = errors.New("identity key is immutable")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// ErrorClass is the operator-facing classification of a terminal run error.
type ErrorClass string

// Error classes recorded on run summaries and cursors.
const (
	ErrorClassNone               ErrorClass = ""
	ErrorClassConfiguration      ErrorClass = "configuration"
	ErrorClassTransportTransient ErrorClass = "transport-transient"
	ErrorClassTransportFatal     ErrorClass = "transport-fatal"
	ErrorClassCursorConflict     ErrorClass = "cursor-conflict"
	ErrorClassCancelled          ErrorClass = "cancelled"
	ErrorClassStorage            ErrorClass = "storage"
	ErrorClassInternal           ErrorClass = "internal"
)

// Transient reports whether a later run is expected to succeed without a code
// or configuration change.
func (c ErrorClass) Transient() bool {
	return c == ErrorClassTransportTransient || c == ErrorClassCancelled
}

// ConfigurationError is a fatal, pre-run error such as an unresolved
// endpoint placeholder or a binding that names an unregistered resource.
type ConfigurationError struct {
	Subject string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Subject, e.Reason)
}

// NewConfigurationError builds a ConfigurationError.
func NewConfigurationError(subject, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Subject: subject, Reason: fmt.Sprintf(format, args...)}
}

// TransportError wraps a failed HTTP exchange.
type TransportError struct {
	// Status is the HTTP status code, zero for network failures and timeouts.
	Status int

	// URL is the request URL with credentials removed.
	URL string

	// Retryable is true for timeouts, 429 and 5xx responses.
	Retryable bool

	// RetryAfter is the server-requested delay, if any.
	RetryAfter time.Duration

	Err error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("transport error")
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " (%s)", e.URL)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRetryableStatus reports whether an HTTP status warrants a retry.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// ParseErrorKind distinguishes parser failures.
type ParseErrorKind string

// Parse error kinds.
const (
	UnknownResponseType ParseErrorKind = "unknown-response-type"
	MalformedPayload    ParseErrorKind = "malformed-payload"
)

// ParseError reports a payload the response registry could not normalise.
type ParseError struct {
	Kind         ParseErrorKind
	ResponseType string

	// Path is the dotted path of the offending field for MalformedPayload.
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case UnknownResponseType:
		if e.ResponseType == "" {
			return "unknown response type: discriminator missing"
		}
		return fmt.Sprintf("unknown response type %q", e.ResponseType)
	default:
		msg := fmt.Sprintf("malformed %s payload at %q", e.ResponseType, e.Path)
		if e.Reason != "" {
			msg += ": " + e.Reason
		}
		return msg
	}
}

// IsUnknownResponseType reports whether err is a ParseError of kind UnknownResponseType.
func IsUnknownResponseType(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) && pe.Kind == UnknownResponseType
}

// StorageError wraps a failure of a persistence collaborator.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ClassifyError maps a terminal run error to its ErrorClass.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassNone
	}

	var (
		cfgErr       *ConfigurationError
		transportErr *TransportError
		storageErr   *StorageError
	)
	switch {
	case errors.Is(err, ErrCursorConflict):
		return ErrorClassCursorConflict
	case errors.As(err, &cfgErr), errors.Is(err, ErrUnknownImporter), errors.Is(err, ErrImporterDisabled):
		return ErrorClassConfiguration
	case errors.As(err, &transportErr):
		if transportErr.Retryable {
			return ErrorClassTransportTransient
		}
		return ErrorClassTransportFatal
	case errors.Is(err, context.Canceled):
		return ErrorClassCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorClassTransportTransient
	case errors.As(err, &storageErr):
		return ErrorClassStorage
	default:
		return ErrorClassInternal
	}
}
