package domain

import (
	"errors"
	"fmt"
)

// ErrInsufficientFunds is returned by any debit whose amount exceeds the
// account balance. No mutation happens when it is returned.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ValidationError rejects a request before any mutation takes place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError covers entities that are absent or not owned by the caller.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func NotFound(resource string, id int64) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError signals an invalid state transition, such as repaying a
// paid loan or cashing out an inactive investment.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func Conflict(reason string) error {
	return &ConflictError{Reason: reason}
}

// ExternalServiceError wraps a gateway timeout or failure. The engine
// resolves it with a compensating ledger entry, never a half-applied
// mutation.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func ExternalFailure(service string, err error) error {
	return &ExternalServiceError{Service: service, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsExternal reports whether err is an ExternalServiceError.
func IsExternal(err error) bool {
	var xe *ExternalServiceError
	return errors.As(err, &xe)
}
