package application

import (
	"errors"
	"fmt"

	"github.com/example/workforce-calendar/internal/persistence"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrInvalidTransition is returned when a status change is not allowed from the current state.
	ErrInvalidTransition = errors.New("application: invalid status transition")
	// ErrScheduleNotPublished is returned when a batch sync targets an unpublished schedule.
	ErrScheduleNotPublished = errors.New("application: schedule not published")
	// ErrConflict is returned when a concurrent writer changed the record first.
	ErrConflict = errors.New("application: concurrent update")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another field map into the receiver.
func (v *ValidationError) merge(fields map[string]string) {
	for field, msg := range fields {
		v.add(field, msg)
	}
}

// ProvisioningError reports a failure to create or resolve a calendar or membership.
type ProvisioningError struct {
	Operation string
	Subject   string
	Err       error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning %s for %s: %v", e.Operation, e.Subject, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

func provisioningError(operation, subject string, err error) error {
	if err == nil {
		return nil
	}
	var existing *ProvisioningError
	if errors.As(err, &existing) {
		return err
	}
	return &ProvisioningError{Operation: operation, Subject: subject, Err: mapRepoError(err)}
}

// ShiftSyncError reports the failure of a single shift inside a sync run.
type ShiftSyncError struct {
	ShiftID string
	Err     error
}

func (e *ShiftSyncError) Error() string {
	return fmt.Sprintf("sync shift %s: %v", e.ShiftID, e.Err)
}

func (e *ShiftSyncError) Unwrap() error { return e.Err }

// mapRepoError translates persistence sentinels into application errors.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, persistence.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return err
	}
}
