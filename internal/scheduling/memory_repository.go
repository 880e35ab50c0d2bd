package scheduling

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryRepository is an in-process Repository used by the test suite
// and by single-node setups without Postgres. Semantics mirror the
// Postgres adapter: tenant scoping, soft-delete exclusion, sorted reads.
type MemoryRepository struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]*Appointment
	events       []EventLog

	// display names for the detail projection
	practitioners map[uuid.UUID]string
	customers     map[uuid.UUID]string
	rooms         map[uuid.UUID]string
	services      map[uuid.UUID]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments:  make(map[uuid.UUID]*Appointment),
		practitioners: make(map[uuid.UUID]string),
		customers:     make(map[uuid.UUID]string),
		rooms:         make(map[uuid.UUID]string),
		services:      make(map[uuid.UUID]string),
	}
}

// RegisterNames records display names used to enrich detail reads.
func (r *MemoryRepository) RegisterPractitioner(id uuid.UUID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.practitioners[id] = name
}

func (r *MemoryRepository) RegisterCustomer(id uuid.UUID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[id] = name
}

func (r *MemoryRepository) RegisterRoom(id uuid.UUID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[id] = name
}

func (r *MemoryRepository) RegisterService(id uuid.UUID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[id] = name
}

func (r *MemoryRepository) GetByID(_ context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok || a.ClinicID != clinicID || a.Deleted() {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) GetDetail(ctx context.Context, clinicID, id uuid.UUID) (*AppointmentDetail, error) {
	a, err := r.GetByID(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.detail(*a), nil
}

func (r *MemoryRepository) detail(a Appointment) *AppointmentDetail {
	return &AppointmentDetail{
		Appointment:      a,
		PractitionerName: r.practitioners[a.PractitionerID],
		CustomerName:     r.customers[a.CustomerID],
		RoomName:         r.rooms[a.RoomID],
		ServiceName:      r.services[a.ServiceID],
	}
}

func (r *MemoryRepository) FindOverlapping(_ context.Context, cand Candidate) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.ClinicID != cand.ClinicID || a.Deleted() || a.Status == StatusCancelled {
			continue
		}
		if cand.ExcludeID != nil && a.ID == *cand.ExcludeID {
			continue
		}
		if !a.Date.Equal(cand.Date) {
			continue
		}
		if a.PractitionerID != cand.PractitionerID && a.RoomID != cand.RoomID {
			continue
		}
		if !Overlaps(cand.Start, cand.End, a.Start, a.End) {
			continue
		}
		result = append(result, *a)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Start < result[j].Start })
	return result, nil
}

func (r *MemoryRepository) FindByPractitionerAndDate(_ context.Context, clinicID, practitionerID uuid.UUID, date time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.ClinicID != clinicID || a.Deleted() || a.Status == StatusCancelled {
			continue
		}
		if a.PractitionerID != practitionerID || !a.Date.Equal(date) {
			continue
		}
		result = append(result, *a)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Start < result[j].Start })
	return result, nil
}

func (r *MemoryRepository) FindByPeriod(_ context.Context, clinicID uuid.UUID, from, to time.Time, f ListFilters, p Page) ([]AppointmentDetail, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []AppointmentDetail
	for _, a := range r.appointments {
		if a.ClinicID != clinicID || a.Deleted() {
			continue
		}
		if a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.PractitionerID != nil && a.PractitionerID != *f.PractitionerID {
			continue
		}
		d := r.detail(*a)
		if f.Search != "" {
			needle := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(d.CustomerName), needle) &&
				!strings.Contains(strings.ToLower(d.PractitionerName), needle) {
				continue
			}
		}
		matched = append(matched, *d)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.Before(matched[j].Date)
		}
		return matched[i].Start < matched[j].Start
	})

	total := len(matched)
	if p.Size > 0 {
		start := p.Offset()
		if start > total {
			start = total
		}
		end := start + p.Size
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}

	return matched, total, nil
}

func (r *MemoryRepository) StatsByPeriod(_ context.Context, clinicID uuid.UUID, from, to, today time.Time, revenueStatuses []Status) (*PeriodStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	revenueBearing := make(map[Status]bool, len(revenueStatuses))
	for _, s := range revenueStatuses {
		revenueBearing[s] = true
	}

	stats := &PeriodStats{
		ByStatus: make(map[Status]int),
		Revenue:  decimal.Zero,
	}

	for _, a := range r.appointments {
		if a.ClinicID != clinicID || a.Deleted() {
			continue
		}
		if a.Date.Equal(today) {
			stats.Today++
		}
		if a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		stats.Total++
		stats.ByStatus[a.Status]++
		if revenueBearing[a.Status] && a.Price.Valid {
			stats.Revenue = stats.Revenue.Add(a.Price.Decimal)
		}
	}

	return stats, nil
}

func (r *MemoryRepository) Save(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *a
	r.appointments[a.ID] = &cp
	return nil
}

func (r *MemoryRepository) SoftDelete(_ context.Context, clinicID, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.ClinicID != clinicID || a.Deleted() {
		return ErrAppointmentNotFound
	}
	deletedAt := at
	a.DeletedAt = &deletedAt
	a.UpdatedAt = at
	return nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log, oldest first.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

// MemoryScheduleStore holds weekly work windows in memory.
type MemoryScheduleStore struct {
	mu      sync.RWMutex
	entries []scheduleEntry
}

type scheduleEntry struct {
	clinicID       uuid.UUID
	practitionerID uuid.UUID
	weekday        time.Weekday
	window         WorkWindow
	isWork         bool
}

func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{}
}

// AddWindow registers one weekly window. Entries with isWork=false mark
// explicit non-availability and are never returned as bookable.
func (s *MemoryScheduleStore) AddWindow(clinicID, practitionerID uuid.UUID, weekday time.Weekday, start, end TimeOfDay, isWork bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, scheduleEntry{
		clinicID:       clinicID,
		practitionerID: practitionerID,
		weekday:        weekday,
		window:         WorkWindow{Start: start, End: end},
		isWork:         isWork,
	})
}

func (s *MemoryScheduleStore) WorkWindows(_ context.Context, clinicID, practitionerID uuid.UUID, weekday time.Weekday) ([]WorkWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	windows := []WorkWindow{}
	for _, e := range s.entries {
		if e.clinicID != clinicID || e.practitionerID != practitionerID || e.weekday != weekday || !e.isWork {
			continue
		}
		windows = append(windows, e.window)
	}

	sort.Slice(windows, func(i, j int) bool { return windows[i].Start < windows[j].Start })
	return windows, nil
}
