package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Type is the client-facing error category carried in the response envelope.
type Type string

const (
	TypeUndefined    Type = "UNDEFINED"
	TypeBadRequest   Type = "BAD_REQUEST"
	TypeInvalidValue Type = "INVALID_VALUE"
	TypeAccessDenied Type = "ACCESS_DENIED"
	TypeNotFound     Type = "NOT_FOUND"
)

// Detail is one path-annotated problem inside an error.
type Detail struct {
	Message string   `json:"message"`
	Type    Type     `json:"type"`
	Path    []string `json:"path"`
}

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string   `json:"code"`
	Type    Type     `json:"type"`
	Message string   `json:"message"`
	Status  int      `json:"status"`
	Path    []string `json:"path,omitempty"`
	Details []Detail `json:"details,omitempty"`
	Err     error    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so cloned values still compare equal to the predefined ones.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Entries flattens the error into envelope rows.
func (e *Error) Entries() []Detail {
	if e == nil {
		return nil
	}
	if len(e.Details) > 0 {
		return e.Details
	}
	path := e.Path
	if path == nil {
		path = []string{}
	}
	return []Detail{{Message: e.Message, Type: e.Type, Path: path}}
}

// New creates a new Error instance.
func New(code string, status int, typ Type, message string) *Error {
	return &Error{Code: code, Status: status, Type: typ, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Type: typeForStatus(status), Message: message, Err: err}
}

// Internal wraps err as an internal failure with the supplied message.
func Internal(err error, message string) *Error {
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, message)
}

// Taxonomy of domain failures.
var (
	ErrValidation                  = New("VALIDATION_ERROR", http.StatusBadRequest, TypeInvalidValue, "validation failed")
	ErrSchema                      = New("SCHEMA_ERROR", http.StatusUnprocessableEntity, TypeBadRequest, "request does not match schema")
	ErrUnauthorized                = New("UNAUTHORIZED", http.StatusUnauthorized, TypeAccessDenied, "unauthorized")
	ErrAccessDenied                = New("ACCESS_DENIED", http.StatusForbidden, TypeAccessDenied, "access denied")
	ErrNotFound                    = New("NOT_FOUND", http.StatusNotFound, TypeNotFound, "resource not found")
	ErrConflict                    = New("CONFLICT", http.StatusConflict, TypeBadRequest, "conflict")
	ErrReferentialViolation        = New("REFERENTIAL_VIOLATION", http.StatusConflict, TypeBadRequest, "entity is still referenced")
	ErrMalformedVersionKey         = New("MALFORMED_VERSION_KEY", http.StatusBadRequest, TypeInvalidValue, "malformed version key")
	ErrVersionAlreadyExists        = New("VERSION_ALREADY_EXISTS", http.StatusInternalServerError, TypeUndefined, "history version already exists")
	ErrInconsistentSubmissionGroup = New("INCONSISTENT_SUBMISSION_GROUP", http.StatusBadRequest, TypeBadRequest, "submission group is inconsistent")
	ErrUnknownAppletVersion        = New("UNKNOWN_APPLET_VERSION", http.StatusNotFound, TypeNotFound, "applet version does not exist")
	ErrActivityNotInAppletVersion  = New("ACTIVITY_NOT_IN_APPLET_VERSION", http.StatusNotFound, TypeNotFound, "activity does not belong to applet version")
	ErrSubmitIDConflict            = New("SUBMIT_ID_CONFLICT", http.StatusConflict, TypeBadRequest, "submit id already used for a different submission")
	ErrReencryptionInProgress      = New("REENCRYPTION_IN_PROGRESS", http.StatusConflict, TypeBadRequest, "answer reencryption is still running")
	ErrStorageUnavailable          = New("STORAGE_UNAVAILABLE", http.StatusServiceUnavailable, TypeUndefined, "storage is unavailable")
	ErrInternal                    = New("INTERNAL_ERROR", http.StatusInternalServerError, TypeUndefined, "internal server error")
)

// ErrCacheMiss signals that a cache lookup found nothing.
var ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, TypeNotFound, "cache miss")

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithPath returns a copy of err annotated with the offending field path.
func WithPath(err *Error, message string, path ...string) *Error {
	clone := Clone(err, message)
	clone.Path = append([]string(nil), path...)
	return clone
}

// Validation builds a validation error carrying every detail at once.
func Validation(details ...Detail) *Error {
	clone := Clone(ErrValidation, "")
	clone.Details = append([]Detail(nil), details...)
	if len(details) == 1 {
		clone.Message = details[0].Message
		clone.Path = details[0].Path
	}
	return clone
}

func typeForStatus(status int) Type {
	switch status {
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return TypeBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return TypeAccessDenied
	case http.StatusNotFound:
		return TypeNotFound
	default:
		return TypeUndefined
	}
}
