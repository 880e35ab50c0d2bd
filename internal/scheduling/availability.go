package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AvailabilityCalculator computes free slots for a practitioner on a
// given day from their weekly work windows minus existing appointments.
type AvailabilityCalculator struct {
	schedules ScheduleStore
	repo      Repository
}

func NewAvailabilityCalculator(schedules ScheduleStore, repo Repository) *AvailabilityCalculator {
	return &AvailabilityCalculator{schedules: schedules, repo: repo}
}

// AvailableSlots returns bookable slots of durationMinutes, stepped
// back-to-back within each free region. Windows are walked
// independently and never merged, so a slot cannot spill from one
// window into an adjacent one. No configured schedule means no
// availability, regardless of appointment data.
func (c *AvailabilityCalculator) AvailableSlots(ctx context.Context, clinicID, practitionerID uuid.UUID, date time.Time, durationMinutes int) ([]TimeSlot, error) {
	if durationMinutes <= 0 {
		return nil, &ValidationError{Field: "duration", Reason: "must be a positive number of minutes"}
	}

	day := DateOnly(date)

	windows, err := c.schedules.WorkWindows(ctx, clinicID, practitionerID, day.Weekday())
	if err != nil {
		return nil, fmt.Errorf("load work windows: %w", err)
	}
	if len(windows) == 0 {
		return []TimeSlot{}, nil
	}

	booked, err := c.repo.FindByPractitionerAndDate(ctx, clinicID, practitionerID, day)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	duration := TimeOfDay(durationMinutes)
	slots := []TimeSlot{}
	for _, w := range windows {
		free := subtractBusy(w, booked)
		for _, f := range free {
			for start := f.Start; start+duration <= f.End; start += duration {
				slots = append(slots, TimeSlot{Start: start, End: start + duration})
			}
		}
	}

	return slots, nil
}

// subtractBusy removes every appointment interval intersecting the
// window and returns the remaining free sub-intervals in order.
// Appointments arrive sorted by start time from the repository.
func subtractBusy(w WorkWindow, booked []Appointment) []WorkWindow {
	free := []WorkWindow{}
	cursor := w.Start

	for _, a := range booked {
		if !Overlaps(cursor, w.End, a.Start, a.End) {
			continue
		}
		if a.Start > cursor {
			free = append(free, WorkWindow{Start: cursor, End: a.Start})
		}
		if a.End > cursor {
			cursor = a.End
		}
		if cursor >= w.End {
			return free
		}
	}

	if cursor < w.End {
		free = append(free, WorkWindow{Start: cursor, End: w.End})
	}
	return free
}
