// Package storetest provides in-memory stores, a trigger queue and a calendar
// with the same contracts as the Postgres, Redis and Google backed ones.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paddle-club/backend/internal/attendance"
	"github.com/paddle-club/backend/internal/models"
)

// Registrations is an in-memory registrations collection.
type Registrations struct {
	mu   sync.Mutex
	regs map[uuid.UUID]models.Registration

	// FailSetStatus, when set, is returned by SetStatus.
	FailSetStatus error
}

// NewRegistrations returns an empty collection.
func NewRegistrations() *Registrations {
	return &Registrations{regs: make(map[uuid.UUID]models.Registration)}
}

// Create stores reg as PENDING with a generated id.
func (s *Registrations) Create(_ context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	reg.AttendanceStatus = models.StatusPending
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now()
	}
	s.regs[reg.ID] = *reg
	return nil
}

// GetByID returns a copy of the registration or models.ErrNotFound.
func (s *Registrations) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &reg, nil
}

// SetStatus moves a PENDING registration to status exactly once.
func (s *Registrations) SetStatus(_ context.Context, id uuid.UUID, status models.AttendanceStatus, errMsg string) (*models.Registration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSetStatus != nil {
		return nil, false, s.FailSetStatus
	}
	reg, ok := s.regs[id]
	if !ok {
		return nil, false, models.ErrNotFound
	}
	if reg.AttendanceStatus != models.StatusPending {
		return &reg, false, nil
	}
	now := time.Now()
	reg.AttendanceStatus = status
	reg.ErrorMessage = errMsg
	reg.ProcessedAt = &now
	s.regs[id] = reg
	return &reg, true, nil
}

// ListPending returns PENDING registrations created before olderThan, oldest first.
func (s *Registrations) ListPending(_ context.Context, olderThan time.Time, limit int) ([]models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Registration
	for _, reg := range s.regs {
		if reg.AttendanceStatus == models.StatusPending && reg.CreatedAt.Before(olderThan) {
			out = append(out, reg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Attendance is an in-memory attendance collection. Update holds a per-event
// lock for the whole read-modify-write, so events never block each other.
type Attendance struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	recs  map[string]models.AttendanceRecord

	// FailUpdate, when set, is returned by Update before anything is read.
	FailUpdate error
	// BeforeWrite, when set, runs inside Update after fn and before the write.
	BeforeWrite func(eventID string)
}

// NewAttendance returns an empty collection.
func NewAttendance() *Attendance {
	return &Attendance{
		locks: make(map[string]*sync.Mutex),
		recs:  make(map[string]models.AttendanceRecord),
	}
}

func (s *Attendance) eventLock(eventID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[eventID]
	if !ok {
		l = new(sync.Mutex)
		s.locks[eventID] = l
	}
	return l
}

// Update runs fn atomically for eventID.
func (s *Attendance) Update(_ context.Context, eventID string, fn attendance.UpdateFunc) (*models.AttendanceRecord, error) {
	if s.FailUpdate != nil {
		return nil, s.FailUpdate
	}
	l := s.eventLock(eventID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	cur, ok := s.recs[eventID]
	s.mu.Unlock()
	var current *models.AttendanceRecord
	if ok {
		cur.Emails = append([]string(nil), cur.Emails...)
		current = &cur
	}

	next, err := fn(current)
	if err != nil || next == nil {
		return nil, err
	}
	if s.BeforeWrite != nil {
		s.BeforeWrite(eventID)
	}
	next.EventID = eventID
	next.Count = len(next.Emails)
	next.CalendarUpdateStatus = models.CalendarUnset
	next.ErrorMessage = ""
	stored := *next
	stored.Emails = append([]string(nil), next.Emails...)

	s.mu.Lock()
	s.recs[eventID] = stored
	s.mu.Unlock()
	return next, nil
}

// Get returns a copy of the record or models.ErrNotFound.
func (s *Attendance) Get(_ context.Context, eventID string) (*models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[eventID]
	if !ok {
		return nil, models.ErrNotFound
	}
	rec.Emails = append([]string(nil), rec.Emails...)
	return &rec, nil
}

// List returns every record ordered by event id.
func (s *Attendance) List(_ context.Context) ([]models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AttendanceRecord, 0, len(s.recs))
	for _, rec := range s.recs {
		rec.Emails = append([]string(nil), rec.Emails...)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return out, nil
}

// ListUnsynced returns non-empty records without a calendar outcome last written before olderThan.
func (s *Attendance) ListUnsynced(ctx context.Context, olderThan time.Time, limit int) ([]models.AttendanceRecord, error) {
	all, _ := s.List(ctx)
	var out []models.AttendanceRecord
	for _, rec := range all {
		if rec.CalendarUpdateStatus == models.CalendarUnset && rec.Count > 0 && rec.LastUpdated.Before(olderThan) {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetCalendarStatus records a sync outcome if the record is unchanged since seen.
func (s *Attendance) SetCalendarStatus(_ context.Context, eventID string, seen time.Time, status models.CalendarUpdateStatus, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[eventID]
	if !ok || !rec.LastUpdated.Equal(seen) {
		return false, nil
	}
	rec.CalendarUpdateStatus = status
	rec.ErrorMessage = errMsg
	s.recs[eventID] = rec
	return true, nil
}

// Put stores rec as is, for seeding tests.
func (s *Attendance) Put(rec models.AttendanceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Emails = append([]string(nil), rec.Emails...)
	s.recs[rec.EventID] = rec
}
