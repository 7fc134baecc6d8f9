// Package apperr defines the coded errors shared by services and handlers.
// Handlers translate an *Error into the response envelope using its Status
// and Code; anything else is reported as an internal error.
package apperr

import (
	"errors"
	"net/http"
)

// Error is a domain error with a stable machine-readable code.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// New builds a coded error.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

var (
	ErrUnauthorized           = New(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	ErrForbidden              = New(http.StatusForbidden, "FORBIDDEN", "Access denied")
	ErrInvalidItemType        = New(http.StatusBadRequest, "INVALID_ITEM_TYPE", "Invalid item type")
	ErrItemNotFound           = New(http.StatusNotFound, "ITEM_NOT_FOUND", "Item not found")
	ErrUnauthorizedUniversity = New(http.StatusForbidden, "UNAUTHORIZED_UNIVERSITY", "Cannot access items from other universities")
	ErrAlreadyDecided         = New(http.StatusConflict, "ITEM_ALREADY_DECIDED", "Item has already been reviewed")
	ErrNoCV                   = New(http.StatusNotFound, "NO_CV", "No active CV found")
	ErrNoFile                 = New(http.StatusBadRequest, "NO_FILE", "File is required")
	ErrStudentNotFound        = New(http.StatusNotFound, "STUDENT_NOT_FOUND", "Student not found")
	ErrProfileNotFound        = New(http.StatusNotFound, "PROFILE_NOT_FOUND", "Student profile not found")
	ErrUniversityExists       = New(http.StatusConflict, "UNIVERSITY_EXISTS", "A university with this domain already exists")
)

// Validation wraps a request validation failure.
func Validation(message string) *Error {
	return New(http.StatusBadRequest, "VALIDATION_ERROR", message)
}

// As extracts the coded error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Code returns the code carried by err, or "" when err is not coded.
func Code(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return Code(err) == code
}
