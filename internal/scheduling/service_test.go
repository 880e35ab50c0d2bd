package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/clinicore/scheduling/internal/redis"
)

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

// mutexLocker serializes bookings in-process the way the Redis locker
// does across processes.
type mutexLocker struct {
	mu sync.Mutex
}

func (l *mutexLocker) WithBookingLock(ctx context.Context, _, _ uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

type testEnv struct {
	svc       *Service
	repo      *MemoryRepository
	schedules *MemoryScheduleStore
	clock     fixedClock
	clinic    uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := NewMemoryRepository()
	schedules := NewMemoryScheduleStore()
	clock := fixedClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	revenue := StatusRevenuePolicy{StatusCompleted}
	svc := NewService(repo, schedules, redisclient.NopLocker{}, clock, revenue, zerolog.Nop())
	return &testEnv{
		svc:       svc,
		repo:      repo,
		schedules: schedules,
		clock:     clock,
		clinic:    uuid.New(),
	}
}

func (e *testEnv) createRequest(practitioner, room uuid.UUID, date time.Time, start, end TimeOfDay) CreateRequest {
	return CreateRequest{
		ClinicID:       e.clinic,
		PractitionerID: practitioner,
		RoomID:         room,
		ServiceID:      uuid.New(),
		CustomerID:     uuid.New(),
		Date:           date,
		Start:          start,
		End:            end,
	}
}

func TestServiceCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("success persists a scheduled appointment", func(t *testing.T) {
		env := newTestEnv(t)
		date := mustDate(t, "2025-03-10")

		appt, err := env.svc.Create(ctx, env.createRequest(uuid.New(), uuid.New(), date, at(9, 0), at(9, 30)))
		require.NoError(t, err)
		assert.Equal(t, StatusScheduled, appt.Status)
		assert.Equal(t, env.clock.t, appt.CreatedAt)

		stored, err := env.repo.GetByID(ctx, env.clinic, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, appt.ID, stored.ID)

		events := env.repo.Events()
		require.Len(t, events, 1)
		assert.Equal(t, EventAppointmentCreated, events[0].EventType)
	})

	t.Run("start must be before end", func(t *testing.T) {
		env := newTestEnv(t)
		date := mustDate(t, "2025-03-10")

		var validationErr *ValidationError
		_, err := env.svc.Create(ctx, env.createRequest(uuid.New(), uuid.New(), date, at(10, 0), at(10, 0)))
		require.ErrorAs(t, err, &validationErr)

		_, err = env.svc.Create(ctx, env.createRequest(uuid.New(), uuid.New(), date, at(11, 0), at(10, 0)))
		require.ErrorAs(t, err, &validationErr)
	})

	t.Run("conflict fails without partial write", func(t *testing.T) {
		env := newTestEnv(t)
		date := mustDate(t, "2025-03-10")
		practitioner := uuid.New()

		first, err := env.svc.Create(ctx, env.createRequest(practitioner, uuid.New(), date, at(9, 0), at(10, 0)))
		require.NoError(t, err)

		var conflictErr *ConflictError
		_, err = env.svc.Create(ctx, env.createRequest(practitioner, uuid.New(), date, at(9, 30), at(10, 30)))
		require.ErrorAs(t, err, &conflictErr)
		require.Len(t, conflictErr.Conflicts, 1)
		assert.Equal(t, first.ID, conflictErr.Conflicts[0].AppointmentID)
		assert.Equal(t, ResourcePractitioner, conflictErr.Conflicts[0].Resource)

		_, total, err := env.repo.FindByPeriod(ctx, env.clinic, date, date, ListFilters{}, Page{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("concurrent bookings for the same slot admit exactly one", func(t *testing.T) {
		env := newTestEnv(t)
		env.svc.locker = &mutexLocker{}
		date := mustDate(t, "2025-03-10")
		practitioner := uuid.New()

		const attempts = 16
		var (
			wg        sync.WaitGroup
			successes int
			conflicts int
			mu        sync.Mutex
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := env.svc.Create(ctx, env.createRequest(practitioner, uuid.New(), date, at(9, 0), at(10, 0)))
				mu.Lock()
				defer mu.Unlock()
				var conflictErr *ConflictError
				switch {
				case err == nil:
					successes++
				case assert.ErrorAs(t, err, &conflictErr):
					conflicts++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, attempts-1, conflicts)
	})
}

// The booking scenario: practitioner collision, room collision, then
// cancellation freeing the slot.
func TestServiceBookingScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	date := mustDate(t, "2025-03-10")

	practitionerP := uuid.New()
	roomR := uuid.New()

	// A: 09:00-09:30 with P in R.
	a, err := env.svc.Create(ctx, env.createRequest(practitionerP, roomR, date, at(9, 0), at(9, 30)))
	require.NoError(t, err)

	// B: same practitioner, overlapping time, different room.
	bReq := env.createRequest(practitionerP, uuid.New(), date, at(9, 15), at(9, 45))
	var conflictErr *ConflictError
	_, err = env.svc.Create(ctx, bReq)
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, a.ID, conflictErr.Conflicts[0].AppointmentID)
	assert.Equal(t, ResourcePractitioner, conflictErr.Conflicts[0].Resource)

	// C: same room, different practitioner.
	_, err = env.svc.Create(ctx, env.createRequest(uuid.New(), roomR, date, at(9, 15), at(9, 45)))
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, a.ID, conflictErr.Conflicts[0].AppointmentID)
	assert.Equal(t, ResourceRoom, conflictErr.Conflicts[0].Resource)

	// Cancel A; B now fits.
	_, err = env.svc.UpdateStatus(ctx, env.clinic, a.ID, StatusCancelled)
	require.NoError(t, err)

	_, err = env.svc.Create(ctx, bReq)
	require.NoError(t, err)
}

func TestServiceUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("editing notes never conflicts with itself", func(t *testing.T) {
		env := newTestEnv(t)
		date := mustDate(t, "2025-03-10")
		appt, err := env.svc.Create(ctx, env.createRequest(uuid.New(), uuid.New(), date, at(9, 0), at(10, 0)))
		require.NoError(t, err)

		notes := "patient asked for a reminder call"
		updated, err := env.svc.Update(ctx, env.clinic, appt.ID, UpdateRequest{Notes: &notes})
		require.NoError(t, err)
		assert.Equal(t, notes, updated.Notes)
		assert.Equal(t, appt.Start, updated.Start)
	})

	t.Run("reschedule into a free range succeeds", func(t *testing.T) {
		env := newTestEnv(t)
		date := mustDate(t, "2025-03-10")
		appt, err := env.svc.Create(ctx, env.createRequest(uuid.New(), uuid.New(), date, at(9, 0), at(10, 0)))
		require.NoError(t, err)

		start, end := at(14, 0), at(15, 0)
		updated, err := env.svc.Update(ctx, env.clinic, appt.ID, UpdateRequest{Start: &start, End: &end})
		require.NoError(t, err)
		assert.Equal(t, start, updated.Start)
		assert.Equal(t, end, updated.End)
	})

	t.Run("reschedule into an occupied range conflicts", func(t *testing.T) {
		env := newTestEnv(t)
		date := mustDate(t, "2025-03-10")
		practitioner := uuid.New()

		blocker, err := env.svc.Create(ctx, env.createRequest(practitioner, uuid.New(), date, at(11, 0), at(12, 0)))
		require.NoError(t, err)
		appt, err := env.svc.Create(ctx, env.createRequest(practitioner, uuid.New(), date, at(9, 0), at(10, 0)))
		require.NoError(t, err)

		start, end := at(11, 30), at(12, 30)
		var conflictErr *ConflictError
		_, err = env.svc.Update(ctx, env.clinic, appt.ID, UpdateRequest{Start: &start, End: &end})
		require.ErrorAs(t, err, &conflictErr)
		require.Len(t, conflictErr.Conflicts, 1)
		assert.Equal(t, blocker.ID, conflictErr.Conflicts[0].AppointmentID)

		// The stored record keeps its original time.
		stored, err := env.repo.GetByID(ctx, env.clinic, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, at(9, 0), stored.Start)
	})

	t.Run("terminal appointments cannot be edited", func(t *testing.T) {
		env := newTestEnv(t)
		date := mustDate(t, "2025-03-10")
		appt, err := env.svc.Create(ctx, env.createRequest(uuid.New(), uuid.New(), date, at(9, 0), at(10, 0)))
		require.NoError(t, err)
		_, err = env.svc.UpdateStatus(ctx, env.clinic, appt.ID, StatusCancelled)
		require.NoError(t, err)

		notes := "too late"
		var transitionErr *InvalidTransitionError
		_, err = env.svc.Update(ctx, env.clinic, appt.ID, UpdateRequest{Notes: &notes})
		require.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, StatusCancelled, transitionErr.From)
	})

	t.Run("unknown appointment is not found", func(t *testing.T) {
		env := newTestEnv(t)
		notes := "whatever"
		_, err := env.svc.Update(ctx, env.clinic, uuid.New(), UpdateRequest{Notes: &notes})
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	})
}

func TestServiceUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("full legal lifecycle", func(t *testing.T) {
		env := newTestEnv(t)
		date := mustDate(t, "2025-03-10")
		appt, err := env.svc.Create(ctx, env.createRequest(uuid.New(), uuid.New(), date, at(9, 0), at(10, 0)))
		require.NoError(t, err)

		for _, next := range []Status{StatusInProgress, StatusCompleted} {
			updated, err := env.svc.UpdateStatus(ctx, env.clinic, appt.ID, next)
			require.NoError(t, err)
			assert.Equal(t, next, updated.Status)
		}
	})

	t.Run("terminal statuses are immutable", func(t *testing.T) {
		env := newTestEnv(t)
		date := mustDate(t, "2025-03-10")

		for _, terminal := range []Status{StatusCompleted, StatusCancelled} {
			appt, err := env.svc.Create(ctx, env.createRequest(uuid.New(), uuid.New(), date, at(9, 0), at(10, 0)))
			require.NoError(t, err)
			if terminal == StatusCompleted {
				_, err = env.svc.UpdateStatus(ctx, env.clinic, appt.ID, StatusInProgress)
				require.NoError(t, err)
			}
			_, err = env.svc.UpdateStatus(ctx, env.clinic, appt.ID, terminal)
			require.NoError(t, err)

			var transitionErr *InvalidTransitionError
			_, err = env.svc.UpdateStatus(ctx, env.clinic, appt.ID, StatusScheduled)
			require.ErrorAs(t, err, &transitionErr)
			assert.Equal(t, terminal, transitionErr.From)
			assert.Equal(t, StatusScheduled, transitionErr.To)

			// Stored record unchanged.
			stored, err := env.repo.GetByID(ctx, env.clinic, appt.ID)
			require.NoError(t, err)
			assert.Equal(t, terminal, stored.Status)

			// Free the slot for the next iteration.
			require.NoError(t, env.svc.Delete(ctx, env.clinic, appt.ID))
		}
	})

	t.Run("skipping states is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		date := mustDate(t, "2025-03-10")
		appt, err := env.svc.Create(ctx, env.createRequest(uuid.New(), uuid.New(), date, at(9, 0), at(10, 0)))
		require.NoError(t, err)

		var transitionErr *InvalidTransitionError
		_, err = env.svc.UpdateStatus(ctx, env.clinic, appt.ID, StatusCompleted)
		require.ErrorAs(t, err, &transitionErr)
	})

	t.Run("unknown status is a validation error", func(t *testing.T) {
		env := newTestEnv(t)
		date := mustDate(t, "2025-03-10")
		appt, err := env.svc.Create(ctx, env.createRequest(uuid.New(), uuid.New(), date, at(9, 0), at(10, 0)))
		require.NoError(t, err)

		var validationErr *ValidationError
		_, err = env.svc.UpdateStatus(ctx, env.clinic, appt.ID, Status("archived"))
		require.ErrorAs(t, err, &validationErr)
	})
}

func TestServiceDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("soft delete frees the slot", func(t *testing.T) {
		env := newTestEnv(t)
		date := mustDate(t, "2025-03-10")
		practitioner := uuid.New()
		room := uuid.New()

		appt, err := env.svc.Create(ctx, env.createRequest(practitioner, room, date, at(9, 0), at(10, 0)))
		require.NoError(t, err)
		require.NoError(t, env.svc.Delete(ctx, env.clinic, appt.ID))

		_, err = env.svc.Get(ctx, env.clinic, appt.ID)
		assert.ErrorIs(t, err, ErrAppointmentNotFound)

		_, err = env.svc.Create(ctx, env.createRequest(practitioner, room, date, at(9, 0), at(10, 0)))
		require.NoError(t, err)
	})

	t.Run("deleting twice is not found", func(t *testing.T) {
		env := newTestEnv(t)
		date := mustDate(t, "2025-03-10")
		appt, err := env.svc.Create(ctx, env.createRequest(uuid.New(), uuid.New(), date, at(9, 0), at(10, 0)))
		require.NoError(t, err)

		require.NoError(t, env.svc.Delete(ctx, env.clinic, appt.ID))
		assert.ErrorIs(t, env.svc.Delete(ctx, env.clinic, appt.ID), ErrAppointmentNotFound)
	})
}

func TestServiceStatsAndCalendar(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	monday := mustDate(t, "2025-03-10") // same day as the fixed clock
	tuesday := mustDate(t, "2025-03-11")

	price := func(v int64) decimal.NullDecimal {
		return decimal.NewNullDecimal(decimal.NewFromInt(v))
	}

	mk := func(date time.Time, start TimeOfDay, status Status, p decimal.NullDecimal) {
		req := env.createRequest(uuid.New(), uuid.New(), date, start, start+30)
		req.Price = p
		appt, err := env.svc.Create(ctx, req)
		require.NoError(t, err)
		if status == StatusCompleted {
			_, err = env.svc.UpdateStatus(ctx, env.clinic, appt.ID, StatusInProgress)
			require.NoError(t, err)
			_, err = env.svc.UpdateStatus(ctx, env.clinic, appt.ID, StatusCompleted)
			require.NoError(t, err)
		} else if status != StatusScheduled {
			_, err = env.svc.UpdateStatus(ctx, env.clinic, appt.ID, status)
			require.NoError(t, err)
		}
	}

	mk(monday, at(9, 0), StatusCompleted, price(100))
	mk(monday, at(10, 0), StatusScheduled, price(70))
	mk(tuesday, at(9, 0), StatusCompleted, price(50))
	mk(tuesday, at(10, 0), StatusCancelled, price(999))
	mk(tuesday, at(11, 0), StatusCompleted, decimal.NullDecimal{}) // no price, no revenue

	stats, err := env.svc.Stats(ctx, env.clinic, monday, tuesday)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Today)
	assert.Equal(t, 3, stats.ByStatus[StatusCompleted])
	assert.Equal(t, 1, stats.ByStatus[StatusScheduled])
	assert.Equal(t, 1, stats.ByStatus[StatusCancelled])
	assert.True(t, stats.Revenue.Equal(decimal.NewFromInt(150)), "revenue = %s", stats.Revenue)

	days, err := env.svc.Calendar(ctx, env.clinic, monday, tuesday)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, monday, days[0].Date)
	require.Len(t, days[0].Appointments, 2)
	assert.Equal(t, at(9, 0), days[0].Appointments[0].Start)
	assert.Equal(t, at(10, 0), days[0].Appointments[1].Start)
	assert.Equal(t, tuesday, days[1].Date)
	assert.Len(t, days[1].Appointments, 3)
}

func TestServiceCheckConflictsPreflight(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	date := mustDate(t, "2025-03-10")
	practitioner := uuid.New()

	appt, err := env.svc.Create(ctx, env.createRequest(practitioner, uuid.New(), date, at(9, 0), at(10, 0)))
	require.NoError(t, err)

	conflicts, err := env.svc.CheckConflicts(ctx, Candidate{
		ClinicID:       env.clinic,
		PractitionerID: practitioner,
		RoomID:         uuid.New(),
		Date:           date,
		Start:          at(9, 30),
		End:            at(10, 30),
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, appt.ID, conflicts[0].AppointmentID)

	// Pre-flight never writes.
	_, total, err := env.repo.FindByPeriod(ctx, env.clinic, date, date, ListFilters{}, Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
