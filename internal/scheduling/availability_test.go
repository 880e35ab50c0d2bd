package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slotStarts(slots []TimeSlot) []string {
	starts := make([]string, 0, len(slots))
	for _, s := range slots {
		starts = append(starts, s.Start.String())
	}
	return starts
}

func TestAvailableSlots(t *testing.T) {
	ctx := context.Background()
	clinic := uuid.New()
	practitioner := uuid.New()
	monday := mustDate(t, "2025-03-10")

	t.Run("empty window yields back-to-back slots", func(t *testing.T) {
		repo := NewMemoryRepository()
		schedules := NewMemoryScheduleStore()
		schedules.AddWindow(clinic, practitioner, time.Monday, at(8, 0), at(12, 0), true)
		calc := NewAvailabilityCalculator(schedules, repo)

		slots, err := calc.AvailableSlots(ctx, clinic, practitioner, monday, 60)
		require.NoError(t, err)
		assert.Equal(t, []string{"08:00", "09:00", "10:00", "11:00"}, slotStarts(slots))
	})

	t.Run("booked interval is carved out", func(t *testing.T) {
		repo := NewMemoryRepository()
		schedules := NewMemoryScheduleStore()
		schedules.AddWindow(clinic, practitioner, time.Monday, at(8, 0), at(12, 0), true)
		seedAppointment(t, repo, Appointment{
			ClinicID:       clinic,
			PractitionerID: practitioner,
			RoomID:         uuid.New(),
			Date:           monday,
			Start:          at(10, 0),
			End:            at(11, 0),
		})
		calc := NewAvailabilityCalculator(schedules, repo)

		slots, err := calc.AvailableSlots(ctx, clinic, practitioner, monday, 60)
		require.NoError(t, err)
		assert.Equal(t, []string{"08:00", "09:00", "11:00"}, slotStarts(slots))
	})

	t.Run("no schedule means no availability", func(t *testing.T) {
		repo := NewMemoryRepository()
		schedules := NewMemoryScheduleStore()
		calc := NewAvailabilityCalculator(schedules, repo)

		slots, err := calc.AvailableSlots(ctx, clinic, practitioner, monday, 30)
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("non-working window is not bookable", func(t *testing.T) {
		repo := NewMemoryRepository()
		schedules := NewMemoryScheduleStore()
		schedules.AddWindow(clinic, practitioner, time.Monday, at(8, 0), at(12, 0), false)
		calc := NewAvailabilityCalculator(schedules, repo)

		slots, err := calc.AvailableSlots(ctx, clinic, practitioner, monday, 30)
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("window fully consumed yields zero slots, not an error", func(t *testing.T) {
		repo := NewMemoryRepository()
		schedules := NewMemoryScheduleStore()
		schedules.AddWindow(clinic, practitioner, time.Monday, at(8, 0), at(10, 0), true)
		seedAppointment(t, repo, Appointment{
			ClinicID:       clinic,
			PractitionerID: practitioner,
			RoomID:         uuid.New(),
			Date:           monday,
			Start:          at(8, 0),
			End:            at(10, 0),
		})
		calc := NewAvailabilityCalculator(schedules, repo)

		slots, err := calc.AvailableSlots(ctx, clinic, practitioner, monday, 30)
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("adjacent windows are never merged", func(t *testing.T) {
		repo := NewMemoryRepository()
		schedules := NewMemoryScheduleStore()
		// 08:00-09:30 and 09:30-11:00 touch, but a 60-minute slot must
		// not span the boundary.
		schedules.AddWindow(clinic, practitioner, time.Monday, at(8, 0), at(9, 30), true)
		schedules.AddWindow(clinic, practitioner, time.Monday, at(9, 30), at(11, 0), true)
		calc := NewAvailabilityCalculator(schedules, repo)

		slots, err := calc.AvailableSlots(ctx, clinic, practitioner, monday, 60)
		require.NoError(t, err)
		assert.Equal(t, []string{"08:00", "09:30"}, slotStarts(slots))
	})

	t.Run("morning and afternoon windows both contribute", func(t *testing.T) {
		repo := NewMemoryRepository()
		schedules := NewMemoryScheduleStore()
		schedules.AddWindow(clinic, practitioner, time.Monday, at(13, 0), at(15, 0), true)
		schedules.AddWindow(clinic, practitioner, time.Monday, at(8, 0), at(10, 0), true)
		calc := NewAvailabilityCalculator(schedules, repo)

		slots, err := calc.AvailableSlots(ctx, clinic, practitioner, monday, 60)
		require.NoError(t, err)
		assert.Equal(t, []string{"08:00", "09:00", "13:00", "14:00"}, slotStarts(slots))
	})

	t.Run("step equals duration, not a sliding window", func(t *testing.T) {
		repo := NewMemoryRepository()
		schedules := NewMemoryScheduleStore()
		schedules.AddWindow(clinic, practitioner, time.Monday, at(8, 0), at(10, 0), true)
		calc := NewAvailabilityCalculator(schedules, repo)

		// 90 minutes in a 2-hour window: exactly one slot, no offsets.
		slots, err := calc.AvailableSlots(ctx, clinic, practitioner, monday, 90)
		require.NoError(t, err)
		require.Len(t, slots, 1)
		assert.Equal(t, "08:00", slots[0].Start.String())
		assert.Equal(t, "09:30", slots[0].End.String())
	})

	t.Run("cancelled appointments do not block slots", func(t *testing.T) {
		repo := NewMemoryRepository()
		schedules := NewMemoryScheduleStore()
		schedules.AddWindow(clinic, practitioner, time.Monday, at(8, 0), at(10, 0), true)
		seedAppointment(t, repo, Appointment{
			ClinicID:       clinic,
			PractitionerID: practitioner,
			RoomID:         uuid.New(),
			Date:           monday,
			Start:          at(8, 0),
			End:            at(9, 0),
			Status:         StatusCancelled,
		})
		calc := NewAvailabilityCalculator(schedules, repo)

		slots, err := calc.AvailableSlots(ctx, clinic, practitioner, monday, 60)
		require.NoError(t, err)
		assert.Equal(t, []string{"08:00", "09:00"}, slotStarts(slots))
	})

	t.Run("non-positive duration is a validation error", func(t *testing.T) {
		repo := NewMemoryRepository()
		schedules := NewMemoryScheduleStore()
		calc := NewAvailabilityCalculator(schedules, repo)

		for _, duration := range []int{0, -15} {
			_, err := calc.AvailableSlots(ctx, clinic, practitioner, monday, duration)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
		}
	})

	t.Run("appointment straddling window edge is clipped", func(t *testing.T) {
		repo := NewMemoryRepository()
		schedules := NewMemoryScheduleStore()
		schedules.AddWindow(clinic, practitioner, time.Monday, at(9, 0), at(12, 0), true)
		seedAppointment(t, repo, Appointment{
			ClinicID:       clinic,
			PractitionerID: practitioner,
			RoomID:         uuid.New(),
			Date:           monday,
			Start:          at(8, 30),
			End:            at(10, 0),
		})
		calc := NewAvailabilityCalculator(schedules, repo)

		slots, err := calc.AvailableSlots(ctx, clinic, practitioner, monday, 60)
		require.NoError(t, err)
		assert.Equal(t, []string{"10:00", "11:00"}, slotStarts(slots))
	})
}
