package scheduling

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// ValidationError reports malformed input. It is raised before any
// repository access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError carries every collision found for a candidate booking.
// It is raised before any write; the operation has no side effects.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s (%s)", c.AppointmentID, c.Resource))
	}
	return "appointment conflicts with: " + strings.Join(parts, ", ")
}

// InvalidTransitionError reports a status change the state machine does
// not permit, including edits to appointments in a terminal status.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("appointment in terminal status %q cannot be modified", e.From)
	}
	return fmt.Sprintf("cannot transition appointment from %q to %q", e.From, e.To)
}
