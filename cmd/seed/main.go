package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinicore/scheduling/internal/db"
	"github.com/clinicore/scheduling/internal/scheduling"
)

var logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

func main() {
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.EnsureSchema(context.Background(), pool); err != nil {
		logger.Fatal().Err(err).Msg("ensure schema")
	}

	gofakeit.Seed(time.Now().UnixNano())

	seedCtx := context.Background()
	for i := 0; i < 3; i++ {
		if err := seedClinic(seedCtx, pool); err != nil {
			logger.Fatal().Err(err).Msg("seed clinic")
		}
	}

	logger.Info().Msg("seed complete")
}

// seedClinic creates one tenant with practitioners, rooms, services,
// customers, weekly schedules and a spread of appointments over the
// next two weeks.
func seedClinic(ctx context.Context, pool *pgxpool.Pool) error {
	clinicID := uuid.New()
	clinicName := gofakeit.Company() + " Clinic"

	if _, err := pool.Exec(ctx, `
		INSERT INTO clinics (id, name) VALUES ($1, $2)
	`, clinicID, clinicName); err != nil {
		return err
	}

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	practitioners, err := seedPractitioners(ctx, pool, clinicID, specialties, 8)
	if err != nil {
		return err
	}
	rooms, err := seedRooms(ctx, pool, clinicID, 5)
	if err != nil {
		return err
	}
	services, err := seedServices(ctx, pool, clinicID)
	if err != nil {
		return err
	}
	customers, err := seedCustomers(ctx, pool, clinicID, 200)
	if err != nil {
		return err
	}

	if err := seedWorkSchedules(ctx, pool, clinicID, practitioners); err != nil {
		return err
	}
	if err := seedAppointments(ctx, pool, clinicID, practitioners, rooms, services, customers); err != nil {
		return err
	}

	logger.Info().Str("clinic", clinicName).Msg("clinic seeded")
	return nil
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, clinicID uuid.UUID, specialties []string, count int) ([]uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO practitioners (id, clinic_id, name, specialty)
			VALUES ($1, $2, $3, $4)
		`, id, clinicID, "Dr. "+gofakeit.Name(), spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedRooms(ctx context.Context, pool *pgxpool.Pool, clinicID uuid.UUID, count int) ([]uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO rooms (id, clinic_id, name)
			VALUES ($1, $2, $3)
		`, id, clinicID, gofakeit.RandomString([]string{"Consultation", "Treatment", "Exam"})+" Room "+gofakeit.DigitN(2))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedServices(ctx context.Context, pool *pgxpool.Pool, clinicID uuid.UUID) ([]uuid.UUID, error) {
	type service struct {
		name     string
		duration int
		price    float64
	}
	catalog := []service{
		{"Initial Consultation", 30, 80},
		{"Follow-up Visit", 15, 45},
		{"Extended Consultation", 60, 140},
		{"Minor Procedure", 45, 220},
		{"Annual Check-up", 30, 95},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(catalog))
	for _, s := range catalog {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, clinic_id, name, duration_min, price)
			VALUES ($1, $2, $3, $4, $5)
		`, id, clinicID, s.name, s.duration, s.price)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedCustomers(ctx context.Context, pool *pgxpool.Pool, clinicID uuid.UUID, count int) ([]uuid.UUID, error) {
	const batchSize = 100

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO customers (id, clinic_id, name, email, phone)
				VALUES ($1, $2, $3, $4, $5)
			`, id, clinicID, gofakeit.Name(), gofakeit.Email(), gofakeit.Phone())
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
	}

	return ids, nil
}

// seedWorkSchedules gives every practitioner a Monday-Friday schedule
// with separate morning and afternoon windows, plus an explicit
// non-working Saturday entry for some of them.
func seedWorkSchedules(ctx context.Context, pool *pgxpool.Pool, clinicID uuid.UUID, practitioners []uuid.UUID) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, pid := range practitioners {
		for weekday := 1; weekday <= 5; weekday++ {
			windows := [][2]int{
				{8 * 60, 12 * 60},
				{13 * 60, 17 * 60},
			}
			for _, w := range windows {
				_, err := tx.Exec(ctx, `
					INSERT INTO work_schedules (clinic_id, practitioner_id, weekday, start_min, end_min, is_work)
					VALUES ($1, $2, $3, $4, $5, true)
				`, clinicID, pid, weekday, w[0], w[1])
				if err != nil {
					return err
				}
			}
		}

		if gofakeit.Bool() {
			_, err := tx.Exec(ctx, `
				INSERT INTO work_schedules (clinic_id, practitioner_id, weekday, start_min, end_min, is_work)
				VALUES ($1, $2, 6, $3, $4, false)
			`, clinicID, pid, 9*60, 13*60)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, clinicID uuid.UUID, practitioners, rooms, services, customers []uuid.UUID) error {
	repo := scheduling.NewPgRepository(pool)
	now := time.Now()

	statuses := []scheduling.Status{
		scheduling.StatusScheduled,
		scheduling.StatusScheduled,
		scheduling.StatusScheduled,
		scheduling.StatusCompleted,
		scheduling.StatusCancelled,
	}

	seeded := 0
	for day := 0; day < 14; day++ {
		date := scheduling.DateOnly(now.AddDate(0, 0, day))
		if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			continue
		}

		for _, pid := range practitioners {
			// Sparse bookings leave free slots for availability demos.
			for hour := 8; hour < 17; hour++ {
				if hour == 12 || gofakeit.Number(0, 2) != 0 {
					continue
				}

				start := scheduling.TimeOfDay(hour * 60)
				appt := &scheduling.Appointment{
					ID:             uuid.New(),
					ClinicID:       clinicID,
					PractitionerID: pid,
					RoomID:         rooms[gofakeit.Number(0, len(rooms)-1)],
					ServiceID:      services[gofakeit.Number(0, len(services)-1)],
					CustomerID:     customers[gofakeit.Number(0, len(customers)-1)],
					Date:           date,
					Start:          start,
					End:            start + 30,
					Status:         statuses[gofakeit.Number(0, len(statuses)-1)],
					Price:          decimal.NewNullDecimal(decimal.NewFromInt(int64(gofakeit.Number(40, 220)))),
					CreatedAt:      now,
					UpdatedAt:      now,
				}

				// Room overlaps are possible with random assignment;
				// the exclusion constraint simply rejects those rows.
				if err := repo.Save(ctx, appt); err != nil {
					continue
				}
				seeded++
			}
		}
	}

	logger.Info().Int("count", seeded).Msg("appointments seeded")
	return nil
}
