package scheduling

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// transitions maps each status to the statuses reachable from it.
// Completed and cancelled are terminal and have no entry.
var transitions = map[Status][]Status{
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether the state machine permits moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// TimeOfDay is a wall-clock time within a single day, stored as minutes
// since midnight. All scheduling comparisons are same-day and naive; the
// engine does not deal in time zones.
type TimeOfDay int

const MinutesPerDay = 24 * 60

// ParseTimeOfDay parses "15:04" style clock strings.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < MinutesPerDay
}

func (t TimeOfDay) Minutes() int {
	return int(t)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Overlaps reports whether [s1,e1) and [s2,e2) intersect. Touching
// intervals (e1 == s2) do not overlap.
func Overlaps(s1, e1, s2, e2 TimeOfDay) bool {
	return s1 < e2 && s2 < e1
}

// DateOnly truncates t to its calendar day in UTC. Appointment dates are
// stored this way so equality means "same day".
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type Appointment struct {
	ID             uuid.UUID
	ClinicID       uuid.UUID
	PractitionerID uuid.UUID
	RoomID         uuid.UUID
	ServiceID      uuid.UUID
	CustomerID     uuid.UUID
	Date           time.Time // calendar day, midnight UTC
	Start          TimeOfDay
	End            TimeOfDay
	Status         Status
	Notes          string
	Price          decimal.NullDecimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

func (a *Appointment) Deleted() bool {
	return a.DeletedAt != nil
}

// AppointmentDetail is the read-side projection for list and calendar
// views: the appointment plus display names resolved by the repository
// adapter from the foreign keys. The core never consumes the names.
type AppointmentDetail struct {
	Appointment
	PractitionerName string
	CustomerName     string
	RoomName         string
	ServiceName      string
}

// WorkWindow is one bookable interval of a practitioner's day.
type WorkWindow struct {
	Start TimeOfDay
	End   TimeOfDay
}

// TimeSlot is a computed bookable interval of a requested duration.
// Derived, never persisted.
type TimeSlot struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

type ResourceKind string

const (
	ResourcePractitioner ResourceKind = "practitioner"
	ResourceRoom         ResourceKind = "room"
	ResourceBoth         ResourceKind = "both"
)

// Conflict identifies an existing appointment that collides with a
// candidate booking, and which resource collided.
type Conflict struct {
	AppointmentID uuid.UUID    `json:"appointment_id"`
	Resource      ResourceKind `json:"resource"`
}

// Candidate is a prospective booking to be checked for conflicts.
// ExcludeID lets an update skip the appointment being edited.
type Candidate struct {
	ClinicID       uuid.UUID
	PractitionerID uuid.UUID
	RoomID         uuid.UUID
	Date           time.Time
	Start          TimeOfDay
	End            TimeOfDay
	ExcludeID      *uuid.UUID
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
