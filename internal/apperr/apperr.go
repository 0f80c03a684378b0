package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping
type Kind string

const (
	KindConfiguration       Kind = "configuration"
	KindValidation          Kind = "validation"
	KindUnknownConnector    Kind = "unknown_connector"
	KindArchiveUnavailable  Kind = "archive_unavailable"
	KindArchiveClientError  Kind = "archive_client_error"
	KindArchiveServerError  Kind = "archive_server_error"
	KindArchiveNoAccess     Kind = "archive_no_access"
	KindNoCompatibleVersion Kind = "no_compatible_version"
	KindDuplicatePreference Kind = "duplicate_preference"
)

// Sentinels usable with errors.Is
var (
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrUnknownConnector    = &Error{Kind: KindUnknownConnector}
	ErrArchiveUnavailable  = &Error{Kind: KindArchiveUnavailable}
	ErrArchiveClientError  = &Error{Kind: KindArchiveClientError}
	ErrArchiveServerError  = &Error{Kind: KindArchiveServerError}
	ErrArchiveNoAccess     = &Error{Kind: KindArchiveNoAccess}
	ErrNoCompatibleVersion = &Error{Kind: KindNoCompatibleVersion}
	ErrDuplicatePreference = &Error{Kind: KindDuplicatePreference}
)

// Error is a classified error
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// New creates a classified error
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies an underlying error
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a classified error with a formatted message
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first classified error in the chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether a caller may retry with backoff
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindArchiveUnavailable, KindArchiveServerError:
		return true
	}
	return false
}

// HTTPStatus maps an error to the status code surfaced to clients
func HTTPStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch KindOf(err) {
	case KindValidation, KindUnknownConnector:
		return http.StatusBadRequest
	case KindNoCompatibleVersion:
		return http.StatusUpgradeRequired
	case KindArchiveNoAccess:
		return http.StatusForbidden
	case KindArchiveClientError:
		return http.StatusBadRequest
	case KindArchiveUnavailable, KindArchiveServerError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
