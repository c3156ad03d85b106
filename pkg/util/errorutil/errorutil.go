package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Stable error codes rendered in API responses.
const (
	CodeValidation   = "VALIDATION_FAILED"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewDomainError(CodeNotFound, "resource not found", http.StatusNotFound, nil)
	}
	return NewInternalError(err).(*DomainError)
}

// MapError is ToDomainError typed as a plain error for return statements.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}
