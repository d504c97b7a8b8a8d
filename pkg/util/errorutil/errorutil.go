package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/lock"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// Error codes exposed to API callers.
const (
	CodeValidation             = "VALIDATION_FAILED"
	CodeNotFound               = "NOT_FOUND"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeNoEligibleAgent        = "NO_ELIGIBLE_AGENT"
	CodeAgentUnavailable       = "AGENT_UNAVAILABLE"
	CodeNoPendingTransfer      = "NO_PENDING_TRANSFER"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeUnavailable            = "SERVICE_UNAVAILABLE"
	CodeInternal               = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks. Matching is by Code, so any DomainError carrying
// details still matches its sentinel.
var (
	ErrNotFound               = NewDomainError(CodeNotFound, "not found", http.StatusNotFound, nil)
	ErrNoEligibleAgent        = NewDomainError(CodeNoEligibleAgent, "no eligible agent", http.StatusConflict, nil)
	ErrAgentUnavailable       = NewDomainError(CodeAgentUnavailable, "agent unavailable", http.StatusConflict, nil)
	ErrNoPendingTransfer      = NewDomainError(CodeNoPendingTransfer, "no pending transfer", http.StatusConflict, nil)
	ErrConcurrentModification = NewDomainError(CodeConcurrentModification, "concurrent modification", http.StatusConflict, nil)
	ErrUnavailable            = NewDomainError(CodeUnavailable, "storage temporarily unavailable", http.StatusServiceUnavailable, nil)
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

// Is matches another DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
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

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewNoEligibleAgent(details map[string]any) error {
	return NewDomainError(CodeNoEligibleAgent, "no eligible agent for ticket", http.StatusConflict, details)
}

func NewAgentUnavailable(details map[string]any) error {
	return NewDomainError(CodeAgentUnavailable, "agent is not active", http.StatusConflict, details)
}

func NewNoPendingTransfer(details map[string]any) error {
	return NewDomainError(CodeNoPendingTransfer, "ticket has no pending transfer", http.StatusConflict, details)
}

func NewConcurrentModification(resource string, details map[string]any) error {
	return NewDomainError(CodeConcurrentModification,
		fmt.Sprintf("%s was modified concurrently; reload and retry", resource),
		http.StatusConflict, details)
}

func NewUnavailable(err error) error {
	return &DomainError{
		Code:       CodeUnavailable,
		Message:    "storage temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// FromRepository maps store errors onto the domain taxonomy for the named resource.
func FromRepository(err error, resource string, details map[string]any) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	switch {
	case errors.As(err, &domainErr):
		return domainErr
	case errors.Is(err, repository.ErrNotFound):
		return NewNotFound(resource, details)
	case errors.Is(err, repository.ErrVersionConflict):
		return NewConcurrentModification(resource, details)
	case errors.Is(err, repository.ErrCorruptRecord):
		// an unreadable stored row is a server fault, not bad input
		return NewInternalError(err)
	case errors.Is(err, domain.ErrUnknownValue), errors.Is(err, repository.ErrInvalidValue):
		return &DomainError{Code: CodeValidation, Message: err.Error(), HTTPStatus: http.StatusBadRequest, Details: details, Err: err}
	case errors.Is(err, repository.ErrUnavailable),
		errors.Is(err, lock.ErrNotAcquired),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return NewUnavailable(err)
	}
	return NewInternalError(err)
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
	if mapped, ok := FromRepository(err, "resource", nil).(*DomainError); ok {
		return mapped
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
