package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes carried by DomainError.
const (
	CodeParseError      = "PARSE_ERROR"
	CodeInvalidPolicy   = "INVALID_POLICY"
	CodeDataSourceError = "DATA_SOURCE_ERROR"
	CodeActionFailed    = "ACTION_FAILED"
	CodeValidation      = "VALIDATION_FAILED"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeInternal        = "INTERNAL_ERROR"
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

// NewParseError flags malformed timestamp or duration input.
func NewParseError(input string, err error) error {
	return &DomainError{
		Code:       CodeParseError,
		Message:    fmt.Sprintf("malformed value %q", input),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"input": input},
		Err:        err,
	}
}

// NewInvalidPolicy flags a service-level policy that violates its invariants.
// Always a hard failure: a malformed policy is never coerced into a workable one.
func NewInvalidPolicy(policyID string, err error) error {
	return &DomainError{
		Code:       CodeInvalidPolicy,
		Message:    "service level policy invalid",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"policy_id": policyID},
		Err:        err,
	}
}

// NewDataSourceError wraps a remote fetch failure with the failing source name.
func NewDataSourceError(source string, err error) error {
	return &DomainError{
		Code:       CodeDataSourceError,
		Message:    fmt.Sprintf("%s unavailable", source),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"source": source},
		Err:        err,
	}
}

// NewActionError reports a single failed escalation action.
func NewActionError(action string, err error) error {
	return &DomainError{
		Code:       CodeActionFailed,
		Message:    fmt.Sprintf("escalation action %s failed", action),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"action": action},
		Err:        err,
	}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsCode reports whether err is a DomainError carrying the given code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound reports whether err is a NOT_FOUND domain error.
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
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
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
