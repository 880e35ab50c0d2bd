// simulate is a load generator for the booking API. It aims many
// concurrent create requests at a small set of practitioners, rooms and
// overlapping time ranges, so nearly every request races another one for
// the same resource. At the end it reports how many bookings succeeded,
// how many were rejected as conflicts, and request latencies. The
// invariant to watch: for any contended practitioner/time pair, exactly
// one create wins.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling/internal/db"
)

var logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

type SimConfig struct {
	APIBaseURL  string
	PostgresDSN string
	Duration    time.Duration
	Workers     int
	// Contention knobs: fewer practitioners/hours means more collisions.
	PractitionerLimit int
	HourSpread        int
}

type DataPool struct {
	ClinicID      uuid.UUID
	Practitioners []uuid.UUID
	Rooms         []uuid.UUID
	Services      []uuid.UUID
	Customers     []uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95idx := len(latencies) * 95 / 100
	if p95idx >= len(latencies) {
		p95idx = len(latencies) - 1
	}
	p95 = latencies[p95idx]
	return avg, min, max, p50, p95
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	booking OperationMetrics
}

func main() {
	logger.Info().Msg("simulator starting")

	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	logger.Info().
		Int("practitioners", len(dataPool.Practitioners)).
		Int("rooms", len(dataPool.Rooms)).
		Int("customers", len(dataPool.Customers)).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:        getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		Duration:          getDuration("SIM_DURATION", 30*time.Second),
		Workers:           getInt("SIM_WORKERS", 10),
		PractitionerLimit: getInt("SIM_PRACTITIONER_LIMIT", 3),
		HourSpread:        getInt("SIM_HOUR_SPREAD", 4),
	}
	if cfg.PostgresDSN == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}
	return cfg
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{}

	err := pool.QueryRow(ctx, `SELECT id FROM clinics LIMIT 1`).Scan(&dp.ClinicID)
	if err != nil {
		return nil, fmt.Errorf("load clinic: %w", err)
	}

	queries := []struct {
		sql   string
		limit int
		dst   *[]uuid.UUID
	}{
		{`SELECT id FROM practitioners WHERE clinic_id = $1 LIMIT $2`, cfg.PractitionerLimit, &dp.Practitioners},
		{`SELECT id FROM rooms WHERE clinic_id = $1 LIMIT $2`, 3, &dp.Rooms},
		{`SELECT id FROM services WHERE clinic_id = $1 LIMIT $2`, 5, &dp.Services},
		{`SELECT id FROM customers WHERE clinic_id = $1 LIMIT $2`, 500, &dp.Customers},
	}

	for _, q := range queries {
		rows, err := pool.Query(ctx, q.sql, dp.ClinicID, q.limit)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			*q.dst = append(*q.dst, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if len(dp.Practitioners) == 0 || len(dp.Rooms) == 0 || len(dp.Services) == 0 || len(dp.Customers) == 0 {
		return nil, fmt.Errorf("database is not seeded, run cmd/seed first")
	}

	return dp, nil
}

func (s *Simulator) Run() {
	logger.Info().
		Dur("duration", s.config.Duration).
		Int("workers", s.config.Workers).
		Msg("running simulation")

	deadline := time.Now().Add(s.config.Duration)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				s.attemptBooking(rng)
			}
		}(int64(i) + time.Now().UnixNano())
	}

	wg.Wait()
}

func (s *Simulator) attemptBooking(rng *rand.Rand) {
	// Book far in the future so seeded appointments never interfere;
	// contention comes purely from other simulator workers.
	date := time.Now().AddDate(0, 2, rng.Intn(3)).Format(time.DateOnly)
	hour := 8 + rng.Intn(s.config.HourSpread)
	minute := 15 * rng.Intn(2) // offsets guarantee overlapping, non-identical ranges

	body := map[string]any{
		"practitioner_id": s.pool.Practitioners[rng.Intn(len(s.pool.Practitioners))].String(),
		"room_id":         s.pool.Rooms[rng.Intn(len(s.pool.Rooms))].String(),
		"service_id":      s.pool.Services[rng.Intn(len(s.pool.Services))].String(),
		"customer_id":     s.pool.Customers[rng.Intn(len(s.pool.Customers))].String(),
		"date":            date,
		"start":           fmt.Sprintf("%02d:%02d", hour, minute),
		"end":             fmt.Sprintf("%02d:%02d", hour, minute+30),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		s.booking.Record(0, false, false)
		return
	}

	req, err := http.NewRequest(http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(payload))
	if err != nil {
		s.booking.Record(0, false, false)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Clinic-ID", s.pool.ClinicID.String())

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.booking.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()

	success := resp.StatusCode == http.StatusCreated
	conflict := resp.StatusCode == http.StatusConflict
	s.booking.Record(latency, success, conflict)
}

func (s *Simulator) PrintReport() {
	avg, min, max, p50, p95 := s.booking.Stats()

	fmt.Println()
	fmt.Println("=== booking simulation report ===")
	fmt.Printf("total:     %d\n", s.booking.Total)
	fmt.Printf("created:   %d\n", s.booking.Success)
	fmt.Printf("conflicts: %d\n", s.booking.Conflict)
	fmt.Printf("errors:    %d\n", s.booking.Error)
	fmt.Printf("latency:   avg=%s min=%s max=%s p50=%s p95=%s\n", avg, min, max, p50, p95)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
