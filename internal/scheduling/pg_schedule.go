package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgScheduleStore reads weekly work windows from Postgres. Windows with
// is_work = false mark explicit non-availability and are never returned.
type PgScheduleStore struct {
	pool *pgxpool.Pool
}

func NewPgScheduleStore(pool *pgxpool.Pool) *PgScheduleStore {
	return &PgScheduleStore{pool: pool}
}

func (s *PgScheduleStore) WorkWindows(ctx context.Context, clinicID, practitionerID uuid.UUID, weekday time.Weekday) ([]WorkWindow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT start_min, end_min
		FROM work_schedules
		WHERE clinic_id = $1
		  AND practitioner_id = $2
		  AND weekday = $3
		  AND is_work
		ORDER BY start_min
	`, clinicID, practitionerID, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	windows := []WorkWindow{}
	for rows.Next() {
		var start, end int
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		windows = append(windows, WorkWindow{Start: TimeOfDay(start), End: TimeOfDay(end)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return windows, nil
}
