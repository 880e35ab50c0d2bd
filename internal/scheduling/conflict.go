package scheduling

import (
	"context"
	"fmt"
)

// ConflictDetector classifies collisions between a candidate booking and
// existing appointments sharing its practitioner or room. Cancelled and
// soft-deleted appointments never participate; the repository already
// excludes them.
type ConflictDetector struct {
	repo Repository
}

func NewConflictDetector(repo Repository) *ConflictDetector {
	return &ConflictDetector{repo: repo}
}

// Check returns one Conflict per colliding appointment. An empty result
// is the success case, not an error.
func (d *ConflictDetector) Check(ctx context.Context, cand Candidate) ([]Conflict, error) {
	existing, err := d.repo.FindOverlapping(ctx, cand)
	if err != nil {
		return nil, fmt.Errorf("find overlapping appointments: %w", err)
	}

	conflicts := make([]Conflict, 0, len(existing))
	for _, a := range existing {
		samePractitioner := a.PractitionerID == cand.PractitionerID
		sameRoom := a.RoomID == cand.RoomID

		var kind ResourceKind
		switch {
		case samePractitioner && sameRoom:
			kind = ResourceBoth
		case samePractitioner:
			kind = ResourcePractitioner
		case sameRoom:
			kind = ResourceRoom
		default:
			// FindOverlapping only returns practitioner or room matches.
			continue
		}

		conflicts = append(conflicts, Conflict{AppointmentID: a.ID, Resource: kind})
	}

	return conflicts, nil
}
