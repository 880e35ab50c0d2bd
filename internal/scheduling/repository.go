package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListFilters narrows period queries. Zero values mean "no filter";
// defaults are resolved once at the API boundary, never threaded through
// as loose maps.
type ListFilters struct {
	Status         *Status
	PractitionerID *uuid.UUID
	Search         string // matches customer or practitioner name
}

// Page is 1-based. A zero Page means "everything" and is only used
// internally by the calendar projection.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	if p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Normalized applies the default and maximum page size and clamps the
// page number to 1. List endpoints report the normalized values back.
func (p Page) Normalized() Page {
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	if p.Number <= 0 {
		p.Number = 1
	}
	return p
}

type PeriodStats struct {
	Total    int
	ByStatus map[Status]int
	Today    int
	Revenue  decimal.Decimal
}

// Repository contains all persistence interactions the engine needs.
// Every method is tenant-scoped by clinic id, and every query excludes
// soft-deleted rows; callers never filter those themselves.
type Repository interface {
	GetByID(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error)
	GetDetail(ctx context.Context, clinicID, id uuid.UUID) (*AppointmentDetail, error)

	// FindOverlapping returns every non-cancelled appointment on the
	// candidate's date whose practitioner OR room matches and whose
	// interval intersects the candidate's, honoring Candidate.ExcludeID.
	FindOverlapping(ctx context.Context, cand Candidate) ([]Appointment, error)

	// FindByPractitionerAndDate returns the practitioner's non-cancelled
	// appointments for one day, sorted by start time.
	FindByPractitionerAndDate(ctx context.Context, clinicID, practitionerID uuid.UUID, date time.Time) ([]Appointment, error)

	// FindByPeriod returns appointments whose date falls in [from, to],
	// filtered and paginated, along with the unpaginated total.
	FindByPeriod(ctx context.Context, clinicID uuid.UUID, from, to time.Time, f ListFilters, p Page) ([]AppointmentDetail, int, error)

	// StatsByPeriod aggregates counts per status over [from, to], the
	// count of appointments on today's date, and the price sum over
	// appointments whose status is in revenueStatuses.
	StatsByPeriod(ctx context.Context, clinicID uuid.UUID, from, to, today time.Time, revenueStatuses []Status) (*PeriodStats, error)

	// Save inserts the appointment or updates it if the id exists.
	Save(ctx context.Context, a *Appointment) error

	// SoftDelete marks the appointment deleted at the given instant.
	// Deleted rows disappear from every other query.
	SoftDelete(ctx context.Context, clinicID, id uuid.UUID, at time.Time) error

	InsertEvent(ctx context.Context, ev EventLog) error
}

// ScheduleStore reads per-practitioner weekly availability. The
// scheduling core never writes schedules; that belongs to the profile
// management flow.
type ScheduleStore interface {
	// WorkWindows returns the practitioner's working windows for one
	// weekday, sorted by start time. Only is_work entries are returned.
	// An empty result means "does not work that day", not an error.
	WorkWindows(ctx context.Context, clinicID, practitionerID uuid.UUID, weekday time.Weekday) ([]WorkWindow, error)
}

// RevenuePolicy is injected by the financial collaborator: the engine
// itself does not know which statuses count as paid.
type RevenuePolicy interface {
	RevenueStatuses() []Status
}

// StatusRevenuePolicy is the simplest policy: a fixed status set.
type StatusRevenuePolicy []Status

func (p StatusRevenuePolicy) RevenueStatuses() []Status { return p }
