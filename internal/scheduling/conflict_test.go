package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, s)
	require.NoError(t, err)
	return DateOnly(d)
}

func seedAppointment(t *testing.T, repo *MemoryRepository, a Appointment) Appointment {
	t.Helper()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	require.NoError(t, repo.Save(context.Background(), &a))
	return a
}

func TestConflictDetector(t *testing.T) {
	ctx := context.Background()
	clinic := uuid.New()
	practitioner := uuid.New()
	room := uuid.New()
	date := mustDate(t, "2025-03-10")

	base := Appointment{
		ClinicID:       clinic,
		PractitionerID: practitioner,
		RoomID:         room,
		Date:           date,
		Start:          at(9, 0),
		End:            at(10, 0),
	}

	newCandidate := func(start, end TimeOfDay) Candidate {
		return Candidate{
			ClinicID:       clinic,
			PractitionerID: practitioner,
			RoomID:         room,
			Date:           date,
			Start:          start,
			End:            end,
		}
	}

	t.Run("touching intervals do not conflict", func(t *testing.T) {
		repo := NewMemoryRepository()
		seedAppointment(t, repo, base)
		detector := NewConflictDetector(repo)

		conflicts, err := detector.Check(ctx, newCandidate(at(10, 0), at(11, 0)))
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("overlap on both resources yields one conflict", func(t *testing.T) {
		repo := NewMemoryRepository()
		existing := seedAppointment(t, repo, base)
		detector := NewConflictDetector(repo)

		conflicts, err := detector.Check(ctx, newCandidate(at(9, 30), at(10, 30)))
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, existing.ID, conflicts[0].AppointmentID)
		assert.Equal(t, ResourceBoth, conflicts[0].Resource)
	})

	t.Run("practitioner collision classified", func(t *testing.T) {
		repo := NewMemoryRepository()
		existing := seedAppointment(t, repo, base)
		detector := NewConflictDetector(repo)

		cand := newCandidate(at(9, 15), at(9, 45))
		cand.RoomID = uuid.New() // different room
		conflicts, err := detector.Check(ctx, cand)
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, existing.ID, conflicts[0].AppointmentID)
		assert.Equal(t, ResourcePractitioner, conflicts[0].Resource)
	})

	t.Run("room collision classified", func(t *testing.T) {
		repo := NewMemoryRepository()
		existing := seedAppointment(t, repo, base)
		detector := NewConflictDetector(repo)

		cand := newCandidate(at(9, 15), at(9, 45))
		cand.PractitionerID = uuid.New() // different practitioner
		conflicts, err := detector.Check(ctx, cand)
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, existing.ID, conflicts[0].AppointmentID)
		assert.Equal(t, ResourceRoom, conflicts[0].Resource)
	})

	t.Run("cancelled appointments never participate", func(t *testing.T) {
		repo := NewMemoryRepository()
		cancelled := base
		cancelled.Status = StatusCancelled
		seedAppointment(t, repo, cancelled)
		detector := NewConflictDetector(repo)

		conflicts, err := detector.Check(ctx, newCandidate(at(9, 0), at(10, 0)))
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("soft-deleted appointments never participate", func(t *testing.T) {
		repo := NewMemoryRepository()
		existing := seedAppointment(t, repo, base)
		require.NoError(t, repo.SoftDelete(ctx, clinic, existing.ID, time.Now()))
		detector := NewConflictDetector(repo)

		conflicts, err := detector.Check(ctx, newCandidate(at(9, 0), at(10, 0)))
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("exclude id skips the appointment being edited", func(t *testing.T) {
		repo := NewMemoryRepository()
		existing := seedAppointment(t, repo, base)
		detector := NewConflictDetector(repo)

		cand := newCandidate(at(9, 0), at(10, 0))
		cand.ExcludeID = &existing.ID
		conflicts, err := detector.Check(ctx, cand)
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("other tenants are invisible", func(t *testing.T) {
		repo := NewMemoryRepository()
		seedAppointment(t, repo, base)
		detector := NewConflictDetector(repo)

		cand := newCandidate(at(9, 0), at(10, 0))
		cand.ClinicID = uuid.New()
		conflicts, err := detector.Check(ctx, cand)
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("different day does not conflict", func(t *testing.T) {
		repo := NewMemoryRepository()
		seedAppointment(t, repo, base)
		detector := NewConflictDetector(repo)

		cand := newCandidate(at(9, 0), at(10, 0))
		cand.Date = mustDate(t, "2025-03-11")
		conflicts, err := detector.Check(ctx, cand)
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})
}
