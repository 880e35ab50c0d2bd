package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PgRepository is the Postgres-backed Repository. Soft-deleted rows are
// filtered in every query here, never by callers.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	a.id, a.clinic_id, a.practitioner_id, a.room_id, a.service_id, a.customer_id,
	a.date, a.start_min, a.end_min, a.status, a.notes, a.price::text,
	a.created_at, a.updated_at, a.deleted_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a     Appointment
		price *string
	)

	err := row.Scan(
		&a.ID,
		&a.ClinicID,
		&a.PractitionerID,
		&a.RoomID,
		&a.ServiceID,
		&a.CustomerID,
		&a.Date,
		&a.Start,
		&a.End,
		&a.Status,
		&a.Notes,
		&price,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if price != nil {
		d, err := decimal.NewFromString(*price)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", *price, err)
		}
		a.Price = decimal.NewNullDecimal(d)
	}
	a.Date = DateOnly(a.Date)
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func priceParam(p decimal.NullDecimal) *string {
	if !p.Valid {
		return nil
	}
	s := p.Decimal.String()
	return &s
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Interface methods

func (r *PgRepository) GetByID(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1 AND a.clinic_id = $2 AND a.deleted_at IS NULL
	`, id, clinicID)
	return scanAppointment(row)
}

func (r *PgRepository) GetDetail(ctx context.Context, clinicID, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`,
		       p.name, c.name, rm.name, s.name
		FROM appointments a
		JOIN practitioners p ON p.id = a.practitioner_id
		JOIN customers c     ON c.id = a.customer_id
		JOIN rooms rm        ON rm.id = a.room_id
		JOIN services s      ON s.id = a.service_id
		WHERE a.id = $1 AND a.clinic_id = $2 AND a.deleted_at IS NULL
	`, id, clinicID)
	return scanDetail(row)
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var (
		d     AppointmentDetail
		price *string
	)

	err := row.Scan(
		&d.ID, &d.ClinicID, &d.PractitionerID, &d.RoomID, &d.ServiceID, &d.CustomerID,
		&d.Date, &d.Start, &d.End, &d.Status, &d.Notes, &price,
		&d.CreatedAt, &d.UpdatedAt, &d.DeletedAt,
		&d.PractitionerName, &d.CustomerName, &d.RoomName, &d.ServiceName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if price != nil {
		dec, err := decimal.NewFromString(*price)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", *price, err)
		}
		d.Price = decimal.NewNullDecimal(dec)
	}
	d.Date = DateOnly(d.Date)
	return &d, nil
}

func (r *PgRepository) FindOverlapping(ctx context.Context, cand Candidate) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.clinic_id = $1
		  AND a.date = $2
		  AND a.deleted_at IS NULL
		  AND a.status <> 'cancelled'
		  AND (a.practitioner_id = $3 OR a.room_id = $4)
		  AND a.start_min < $6
		  AND $5 < a.end_min
		  AND ($7::uuid IS NULL OR a.id <> $7)
		ORDER BY a.start_min
	`, cand.ClinicID, cand.Date, cand.PractitionerID, cand.RoomID,
		cand.Start.Minutes(), cand.End.Minutes(), cand.ExcludeID)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) FindByPractitionerAndDate(ctx context.Context, clinicID, practitionerID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.clinic_id = $1
		  AND a.practitioner_id = $2
		  AND a.date = $3
		  AND a.deleted_at IS NULL
		  AND a.status <> 'cancelled'
		ORDER BY a.start_min
	`, clinicID, practitionerID, date)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) FindByPeriod(ctx context.Context, clinicID uuid.UUID, from, to time.Time, f ListFilters, p Page) ([]AppointmentDetail, int, error) {
	conds := []string{
		"a.clinic_id = $1",
		"a.deleted_at IS NULL",
		"a.date BETWEEN $2 AND $3",
	}
	args := []any{clinicID, from, to}

	if f.Status != nil {
		args = append(args, *f.Status)
		conds = append(conds, fmt.Sprintf("a.status = $%d", len(args)))
	}
	if f.PractitionerID != nil {
		args = append(args, *f.PractitionerID)
		conds = append(conds, fmt.Sprintf("a.practitioner_id = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conds = append(conds, fmt.Sprintf("(p.name ILIKE $%d OR c.name ILIKE $%d)", len(args), len(args)))
	}

	fromClause := `
		FROM appointments a
		JOIN practitioners p ON p.id = a.practitioner_id
		JOIN customers c     ON c.id = a.customer_id
		JOIN rooms rm        ON rm.id = a.room_id
		JOIN services s      ON s.id = a.service_id
		WHERE ` + strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT count(*)"+fromClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + appointmentColumns + `,
		       p.name, c.name, rm.name, s.name` +
		fromClause + `
		ORDER BY a.date, a.start_min`
	if p.Size > 0 {
		args = append(args, p.Size)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, p.Offset())
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func (r *PgRepository) StatsByPeriod(ctx context.Context, clinicID uuid.UUID, from, to, today time.Time, revenueStatuses []Status) (*PeriodStats, error) {
	stats := &PeriodStats{
		ByStatus: make(map[Status]int),
		Revenue:  decimal.Zero,
	}

	rows, err := r.pool.Query(ctx, `
		SELECT status, count(*)
		FROM appointments
		WHERE clinic_id = $1 AND deleted_at IS NULL AND date BETWEEN $2 AND $3
		GROUP BY status
	`, clinicID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE clinic_id = $1 AND deleted_at IS NULL AND date = $2
	`, clinicID, today).Scan(&stats.Today)
	if err != nil {
		return nil, err
	}

	var revenue *string
	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(price), 0)::text
		FROM appointments
		WHERE clinic_id = $1
		  AND deleted_at IS NULL
		  AND date BETWEEN $2 AND $3
		  AND price IS NOT NULL
		  AND status = ANY($4)
	`, clinicID, from, to, statusStrings(revenueStatuses)).Scan(&revenue)
	if err != nil {
		return nil, err
	}
	if revenue != nil {
		d, err := decimal.NewFromString(*revenue)
		if err != nil {
			return nil, fmt.Errorf("parse revenue %q: %w", *revenue, err)
		}
		stats.Revenue = d
	}

	return stats, nil
}

func (r *PgRepository) Save(ctx context.Context, a *Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments
			(id, clinic_id, practitioner_id, room_id, service_id, customer_id,
			 date, start_min, end_min, status, notes, price, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::numeric, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			practitioner_id = EXCLUDED.practitioner_id,
			room_id         = EXCLUDED.room_id,
			service_id      = EXCLUDED.service_id,
			customer_id     = EXCLUDED.customer_id,
			date            = EXCLUDED.date,
			start_min       = EXCLUDED.start_min,
			end_min         = EXCLUDED.end_min,
			status          = EXCLUDED.status,
			notes           = EXCLUDED.notes,
			price           = EXCLUDED.price,
			updated_at      = EXCLUDED.updated_at,
			deleted_at      = EXCLUDED.deleted_at
		WHERE appointments.clinic_id = EXCLUDED.clinic_id
	`, a.ID, a.ClinicID, a.PractitionerID, a.RoomID, a.ServiceID, a.CustomerID,
		a.Date, a.Start.Minutes(), a.End.Minutes(), a.Status, a.Notes, priceParam(a.Price),
		a.CreatedAt, a.UpdatedAt, a.DeletedAt)
	if err != nil {
		return fmt.Errorf("save appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) SoftDelete(ctx context.Context, clinicID, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET deleted_at = $3,
		    updated_at = $3
		WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL
	`, id, clinicID, at)
	if err != nil {
		return fmt.Errorf("soft delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
