// Package errors defines the error taxonomy shared by the storefront
// managers and storage backends.
//
// Every typed error wraps one sentinel so callers can branch with errors.Is
// or the Is* helpers without depending on concrete types.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound               = stderrors.New("not found")
	ErrInsufficientStock      = stderrors.New("insufficient stock")
	ErrInvalidState           = stderrors.New("invalid state")
	ErrDuplicatePending       = stderrors.New("duplicate pending application")
	ErrAuthenticationRequired = stderrors.New("authentication required")
	ErrForbidden              = stderrors.New("forbidden")
	ErrInvalidInput           = stderrors.New("invalid input")
	ErrStoreFailure           = stderrors.New("store failure")
)

// NotFoundError reports a lookup miss on an entity that should exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InsufficientStockError reports a request for more units than are available.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func NewInsufficientStockError(productID string, requested, available int) *InsufficientStockError {
	return &InsufficientStockError{ProductID: productID, Requested: requested, Available: available}
}

func (e *InsufficientStockError) Error() string {
	if e.Available < 0 {
		return fmt.Sprintf("insufficient stock available for product %s: requested %d", e.ProductID, e.Requested)
	}
	return fmt.Sprintf("insufficient stock available for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InvalidStateError reports an operation attempted from a state that forbids it.
type InvalidStateError struct {
	Resource  string
	ID        string
	State     string
	Operation string
}

func NewInvalidStateError(resource, id, state, operation string) *InvalidStateError {
	return &InvalidStateError{Resource: resource, ID: id, State: state, Operation: operation}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in state %s", e.Operation, e.Resource, e.ID, e.State)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// DuplicatePendingApplicationError reports a second application while one is pending.
type DuplicatePendingApplicationError struct {
	UserID string
}

func NewDuplicatePendingApplicationError(userID string) *DuplicatePendingApplicationError {
	return &DuplicatePendingApplicationError{UserID: userID}
}

func (e *DuplicatePendingApplicationError) Error() string {
	return fmt.Sprintf("user %s already has a pending application", e.UserID)
}

func (e *DuplicatePendingApplicationError) Unwrap() error { return ErrDuplicatePending }

// AuthenticationRequiredError reports an operation invoked without a principal.
type AuthenticationRequiredError struct {
	Operation string
}

func NewAuthenticationRequiredError(operation string) *AuthenticationRequiredError {
	return &AuthenticationRequiredError{Operation: operation}
}

func (e *AuthenticationRequiredError) Error() string {
	if e.Operation == "" {
		return "not authenticated"
	}
	return fmt.Sprintf("%s: not authenticated", e.Operation)
}

func (e *AuthenticationRequiredError) Unwrap() error { return ErrAuthenticationRequired }

// ForbiddenError reports a principal acting outside its role or ownership.
type ForbiddenError struct {
	Resource string
	ID       string
	ActorID  string
	Reason   string
}

func NewForbiddenError(resource, id, actorID string) *ForbiddenError {
	return &ForbiddenError{Resource: resource, ID: id, ActorID: actorID}
}

func (e *ForbiddenError) Error() string {
	msg := fmt.Sprintf("access denied to %s", e.Resource)
	if e.ID != "" {
		msg += fmt.Sprintf(" %q", e.ID)
	}
	if e.ActorID != "" {
		msg += " for user " + e.ActorID
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RequiredError is a ValidationError for a missing field.
func RequiredError(field string) *ValidationError {
	return NewValidationError(field, "is required")
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// StoreFailure carries the underlying data store error for an operation.
type StoreFailure struct {
	Op  string
	Err error
}

func (e *StoreFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreFailure) Unwrap() []error { return []error{ErrStoreFailure, e.Err} }

// WrapStore tags err as a StoreFailure for op. Nil stays nil and errors that
// already belong to the taxonomy pass through unchanged.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &StoreFailure{Op: op, Err: err}
}

// Classified reports whether err wraps one of the taxonomy sentinels.
func Classified(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrInsufficientStock, ErrInvalidState, ErrDuplicatePending,
		ErrAuthenticationRequired, ErrForbidden, ErrInvalidInput, ErrStoreFailure,
	} {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool { return stderrors.Is(err, ErrNotFound) }
func IsInsufficientStock(err error) bool { return stderrors.Is(err, ErrInsufficientStock) }
func IsInvalidState(err error) bool { return stderrors.Is(err, ErrInvalidState) }
func IsDuplicatePending(err error) bool { return stderrors.Is(err, ErrDuplicatePending) }
func IsAuthenticationRequired(err error) bool {
	return stderrors.Is(err, ErrAuthenticationRequired)
}
func IsForbidden(err error) bool { return stderrors.Is(err, ErrForbidden) }
func IsValidationError(err error) bool { return stderrors.Is(err, ErrInvalidInput) }
func IsStoreFailure(err error) bool { return stderrors.Is(err, ErrStoreFailure) }

// HTTPStatus maps err to the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInsufficientStock(err), IsInvalidState(err), IsDuplicatePending(err):
		return http.StatusConflict
	case IsAuthenticationRequired(err):
		return http.StatusUnauthorized
	case IsForbidden(err):
		return http.StatusForbidden
	case IsValidationError(err):
		return http.StatusBadRequest
	case IsStoreFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-facing text for err. Store failures keep the
// store's own message; unclassified errors are not leaked.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if !Classified(err) {
		return "internal error"
	}
	return err.Error()
}
