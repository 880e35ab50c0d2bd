package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	redisclient "github.com/clinicore/scheduling/internal/redis"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled   = "APPOINTMENT_RESCHEDULED"
	EventAppointmentUpdated       = "APPOINTMENT_UPDATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentDeleted       = "APPOINTMENT_DELETED"
)

var (
	// ErrResourceBusy means another booking currently holds the
	// practitioner or room lock. The caller should retry.
	ErrResourceBusy = errors.New("practitioner or room is currently being booked, please retry")
)

// Service orchestrates appointment mutations and period reads. It holds
// no mutable state of its own; correctness under concurrency comes from
// running every conflict-check-then-save sequence inside the booking
// lock.
type Service struct {
	repo       Repository
	schedules  ScheduleStore
	detector   *ConflictDetector
	calculator *AvailabilityCalculator
	locker     redisclient.Locker
	clock      Clock
	revenue    RevenuePolicy
	log        zerolog.Logger
}

func NewService(repo Repository, schedules ScheduleStore, locker redisclient.Locker, clock Clock, revenue RevenuePolicy, log zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		schedules:  schedules,
		detector:   NewConflictDetector(repo),
		calculator: NewAvailabilityCalculator(schedules, repo),
		locker:     locker,
		clock:      clock,
		revenue:    revenue,
		log:        log.With().Str("component", "scheduling").Logger(),
	}
}

type CreateRequest struct {
	ClinicID       uuid.UUID
	PractitionerID uuid.UUID
	RoomID         uuid.UUID
	ServiceID      uuid.UUID
	CustomerID     uuid.UUID
	Date           time.Time
	Start          TimeOfDay
	End            TimeOfDay
	Notes          string
	Price          decimal.NullDecimal
}

// UpdateRequest carries a partial edit; nil fields are left unchanged.
type UpdateRequest struct {
	PractitionerID *uuid.UUID
	RoomID         *uuid.UUID
	ServiceID      *uuid.UUID
	CustomerID     *uuid.UUID
	Date           *time.Time
	Start          *TimeOfDay
	End            *TimeOfDay
	Notes          *string
	Price          *decimal.NullDecimal
}

func validateInterval(start, end TimeOfDay) error {
	if !start.Valid() {
		return &ValidationError{Field: "start", Reason: "must be within 00:00-23:59"}
	}
	if end < 0 || end > MinutesPerDay {
		return &ValidationError{Field: "end", Reason: "must be within 00:00-24:00"}
	}
	if start >= end {
		return &ValidationError{Field: "start", Reason: "must be before end"}
	}
	return nil
}

// Create books a new appointment. The conflict check and the write run
// as one unit under the booking lock so that two concurrent requests
// for the same practitioner or room cannot both pass the check.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	if err := validateInterval(req.Start, req.End); err != nil {
		return nil, err
	}

	var created *Appointment

	err := s.locker.WithBookingLock(ctx, req.PractitionerID, req.RoomID, func(lockCtx context.Context) error {
		conflicts, err := s.detector.Check(lockCtx, Candidate{
			ClinicID:       req.ClinicID,
			PractitionerID: req.PractitionerID,
			RoomID:         req.RoomID,
			Date:           DateOnly(req.Date),
			Start:          req.Start,
			End:            req.End,
		})
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ConflictError{Conflicts: conflicts}
		}

		now := s.clock.Now()
		appt := &Appointment{
			ID:             uuid.New(),
			ClinicID:       req.ClinicID,
			PractitionerID: req.PractitionerID,
			RoomID:         req.RoomID,
			ServiceID:      req.ServiceID,
			CustomerID:     req.CustomerID,
			Date:           DateOnly(req.Date),
			Start:          req.Start,
			End:            req.End,
			Status:         StatusScheduled,
			Notes:          req.Notes,
			Price:          req.Price,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := s.repo.Save(lockCtx, appt); err != nil {
			return fmt.Errorf("save appointment: %w", err)
		}

		created = appt
		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"practitioner_id": appt.PractitionerID.String(),
			"room_id":         appt.RoomID.String(),
			"date":            appt.Date.Format(time.DateOnly),
			"start":           appt.Start.String(),
			"end":             appt.End.String(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrResourceBusy
		}
		return nil, err
	}

	return created, nil
}

// Update edits or reschedules an appointment. When the date, times,
// practitioner or room change, conflicts are re-checked with the
// appointment itself excluded. Terminal appointments cannot be edited.
func (s *Service) Update(ctx context.Context, clinicID, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	existing, err := s.repo.GetByID(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if existing.Status.Terminal() {
		return nil, &InvalidTransitionError{From: existing.Status, To: existing.Status}
	}

	updated := *existing
	if req.PractitionerID != nil {
		updated.PractitionerID = *req.PractitionerID
	}
	if req.RoomID != nil {
		updated.RoomID = *req.RoomID
	}
	if req.ServiceID != nil {
		updated.ServiceID = *req.ServiceID
	}
	if req.CustomerID != nil {
		updated.CustomerID = *req.CustomerID
	}
	if req.Date != nil {
		updated.Date = DateOnly(*req.Date)
	}
	if req.Start != nil {
		updated.Start = *req.Start
	}
	if req.End != nil {
		updated.End = *req.End
	}
	if req.Notes != nil {
		updated.Notes = *req.Notes
	}
	if req.Price != nil {
		updated.Price = *req.Price
	}

	if err := validateInterval(updated.Start, updated.End); err != nil {
		return nil, err
	}

	rescheduled := !updated.Date.Equal(existing.Date) ||
		updated.Start != existing.Start ||
		updated.End != existing.End ||
		updated.PractitionerID != existing.PractitionerID ||
		updated.RoomID != existing.RoomID

	save := func(saveCtx context.Context) error {
		if rescheduled {
			conflicts, err := s.detector.Check(saveCtx, Candidate{
				ClinicID:       clinicID,
				PractitionerID: updated.PractitionerID,
				RoomID:         updated.RoomID,
				Date:           updated.Date,
				Start:          updated.Start,
				End:            updated.End,
				ExcludeID:      &id,
			})
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return &ConflictError{Conflicts: conflicts}
			}
		}

		updated.UpdatedAt = s.clock.Now()
		if err := s.repo.Save(saveCtx, &updated); err != nil {
			return fmt.Errorf("save appointment: %w", err)
		}

		event := EventAppointmentUpdated
		if rescheduled {
			event = EventAppointmentRescheduled
		}
		s.logEvent(saveCtx, updated.ID, event, map[string]any{
			"date":  updated.Date.Format(time.DateOnly),
			"start": updated.Start.String(),
			"end":   updated.End.String(),
		})
		return nil
	}

	if rescheduled {
		err = s.locker.WithBookingLock(ctx, updated.PractitionerID, updated.RoomID, save)
	} else {
		err = save(ctx)
	}
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrResourceBusy
		}
		return nil, err
	}

	return &updated, nil
}

// UpdateStatus moves an appointment through the state machine. Time and
// resources are unchanged, so no conflict re-check is needed.
func (s *Service) UpdateStatus(ctx context.Context, clinicID, id uuid.UUID, next Status) (*Appointment, error) {
	if !next.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", next)}
	}

	appt, err := s.repo.GetByID(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanTransitionTo(next) {
		return nil, &InvalidTransitionError{From: appt.Status, To: next}
	}

	prev := appt.Status
	appt.Status = next
	appt.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, appt); err != nil {
		return nil, fmt.Errorf("save appointment: %w", err)
	}

	s.logEvent(ctx, appt.ID, EventAppointmentStatusChanged, map[string]any{
		"from": string(prev),
		"to":   string(next),
	})
	return appt, nil
}

// Delete soft-deletes the appointment, immediately freeing its time
// slot for future bookings.
func (s *Service) Delete(ctx context.Context, clinicID, id uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, clinicID, id, s.clock.Now()); err != nil {
		return err
	}
	s.logEvent(ctx, id, EventAppointmentDeleted, map[string]any{})
	return nil
}

func (s *Service) Get(ctx context.Context, clinicID, id uuid.UUID) (*AppointmentDetail, error) {
	return s.repo.GetDetail(ctx, clinicID, id)
}

// CheckConflicts is the pre-flight check: "would this booking collide?"
// without committing anything.
func (s *Service) CheckConflicts(ctx context.Context, cand Candidate) ([]Conflict, error) {
	if err := validateInterval(cand.Start, cand.End); err != nil {
		return nil, err
	}
	cand.Date = DateOnly(cand.Date)
	return s.detector.Check(ctx, cand)
}

func (s *Service) AvailableSlots(ctx context.Context, clinicID, practitionerID uuid.UUID, date time.Time, durationMinutes int) ([]TimeSlot, error) {
	return s.calculator.AvailableSlots(ctx, clinicID, practitionerID, date, durationMinutes)
}

// ListForPeriod returns one page of appointments in [from, to] plus the
// unpaginated total.
func (s *Service) ListForPeriod(ctx context.Context, clinicID uuid.UUID, from, to time.Time, f ListFilters, p Page) ([]AppointmentDetail, int, error) {
	return s.repo.FindByPeriod(ctx, clinicID, DateOnly(from), DateOnly(to), f, p.Normalized())
}

// CalendarDay groups one day's appointments for calendar rendering.
type CalendarDay struct {
	Date         time.Time
	Appointments []AppointmentDetail
}

// Calendar projects the period onto days, sorted by date then start
// time. Pure read, no mutation.
func (s *Service) Calendar(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]CalendarDay, error) {
	items, _, err := s.repo.FindByPeriod(ctx, clinicID, DateOnly(from), DateOnly(to), ListFilters{}, Page{})
	if err != nil {
		return nil, err
	}

	var days []CalendarDay
	for _, item := range items {
		if len(days) == 0 || !days[len(days)-1].Date.Equal(item.Date) {
			days = append(days, CalendarDay{Date: item.Date})
		}
		last := &days[len(days)-1]
		last.Appointments = append(last.Appointments, item)
	}
	return days, nil
}

// Stats aggregates period counts and the revenue sum. Which statuses
// count as revenue-bearing comes from the injected policy.
func (s *Service) Stats(ctx context.Context, clinicID uuid.UUID, from, to time.Time) (*PeriodStats, error) {
	today := DateOnly(s.clock.Now())
	return s.repo.StatsByPeriod(ctx, clinicID, DateOnly(from), DateOnly(to), today, s.revenue.RevenueStatuses())
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("event", eventType).
			Stringer("appointment_id", appointmentID).
			Msg("insert event log")
	}
}
