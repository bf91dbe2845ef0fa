package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTrigger is the sentinel wrapped by InvalidTriggerError
	ErrInvalidTrigger = errors.New("invalid trigger")

	// ErrPermissions is the sentinel wrapped by PermissionsError
	ErrPermissions = errors.New("permission denied")

	// ErrValidation is the sentinel wrapped by ValidationError
	ErrValidation = errors.New("validation failed")
)

// InvalidTriggerError is returned by Machine.Fire when no transition row
// matches the entity's current state and the requested trigger. It carries
// the full set of triggers that are valid from the current state so the
// caller can report them.
type InvalidTriggerError struct {
	Trigger Trigger
	State   State
	Valid   []Trigger
}

func (e *InvalidTriggerError) Error() string {
	valid := make([]string, len(e.Valid))
	for i, t := range e.Valid {
		valid[i] = t.String()
	}
	return fmt.Sprintf("cannot fire trigger %q from state %q; valid triggers: [%s]",
		e.Trigger, e.State, strings.Join(valid, ", "))
}

func (e *InvalidTriggerError) Unwrap() error {
	return ErrInvalidTrigger
}

// MachineError reports a structurally impossible trigger on a sanction's
// approval machine with a human message the HTTP layer can surface directly
// ("already rejected, cannot approve" rather than a bare state name).
type MachineError struct {
	Message string
	Cause   error
}

func (e *MachineError) Error() string {
	return e.Message
}

func (e *MachineError) Unwrap() error {
	return e.Cause
}

// PermissionsError is raised by a validation hook when the acting user lacks
// the capability the matched transition requires. It is never treated as a
// guard miss: the fire aborts instead of falling through to another row.
type PermissionsError struct {
	ActorID    string
	Capability string
}

func (e *PermissionsError) Error() string {
	if e.Capability == "" {
		return fmt.Sprintf("user %q does not have permission to perform this action", e.ActorID)
	}
	return fmt.Sprintf("user %q does not have permission %q", e.ActorID, e.Capability)
}

func (e *PermissionsError) Unwrap() error {
	return ErrPermissions
}

// ValidationError reports a domain precondition failure raised from a
// save-changes hook (e.g. publishing without a primary file). The fire
// aborts before any persistence.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError from a format string
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
