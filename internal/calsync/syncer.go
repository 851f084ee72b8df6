// Package calsync pushes attendance records to the shared calendar.
package calsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/paddle-club/backend/internal/calendar"
	"github.com/paddle-club/backend/internal/models"
)

// Store is the attendance collection as seen by calendar sync.
type Store interface {
	Get(ctx context.Context, eventID string) (*models.AttendanceRecord, error)
	SetCalendarStatus(ctx context.Context, eventID string, seen time.Time, status models.CalendarUpdateStatus, errMsg string) (bool, error)
}

// RosterExporter receives the attendee list after a successful sync.
type RosterExporter interface {
	Export(ctx context.Context, rec *models.AttendanceRecord) error
}

// Syncer is the attendance-written trigger handler.
type Syncer struct {
	store      Store
	provider   calendar.Provider
	calendarID string
	rosters    RosterExporter
	logger     *zap.Logger
}

// NewSyncer creates a calendar syncer for calendarID. rosters may be nil.
func NewSyncer(store Store, provider calendar.Provider, calendarID string, rosters RosterExporter, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{store: store, provider: provider, calendarID: calendarID, rosters: rosters, logger: logger}
}

// Sync merges the current attendee emails of eventID into the calendar event and
// records the outcome on the attendance record. The record is read at sync time,
// so a late delivery pushes the newest list. Provider failures are recorded as
// ERROR and not returned; only a failed status write is.
func (s *Syncer) Sync(ctx context.Context, eventID string) error {
	log := s.logger.With(zap.String("event_id", eventID))

	rec, err := s.store.Get(ctx, eventID)
	if errors.Is(err, models.ErrNotFound) {
		log.Warn("attendance trigger for unknown document")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load attendance %s: %w", eventID, err)
	}
	if len(rec.Emails) == 0 {
		log.Info("no emails to invite")
		return nil
	}

	if err := s.push(ctx, rec); err != nil {
		log.Error("calendar update failed", zap.Error(err))
		return s.mark(ctx, log, rec, models.CalendarError, err.Error())
	}
	if err := s.mark(ctx, log, rec, models.CalendarCompleted, ""); err != nil {
		return err
	}
	if s.rosters != nil {
		if err := s.rosters.Export(ctx, rec); err != nil {
			log.Warn("roster export failed", zap.Error(err))
		}
	}
	return nil
}

func (s *Syncer) push(ctx context.Context, rec *models.AttendanceRecord) error {
	ev, err := s.provider.GetEvent(ctx, s.calendarID, rec.EventID)
	if err != nil {
		return err
	}
	ev.Attendees = calendar.MergeAttendees(ev.Attendees, rec.Emails)
	if _, err := s.provider.UpdateEvent(ctx, s.calendarID, ev, true); err != nil {
		return err
	}
	return nil
}

func (s *Syncer) mark(ctx context.Context, log *zap.Logger, rec *models.AttendanceRecord, status models.CalendarUpdateStatus, errMsg string) error {
	applied, err := s.store.SetCalendarStatus(ctx, rec.EventID, rec.LastUpdated, status, errMsg)
	if err != nil {
		return fmt.Errorf("record calendar status for %s: %w", rec.EventID, err)
	}
	if !applied {
		log.Info("attendance changed during sync, leaving status to the newer sync", zap.String("status", string(status)))
		return nil
	}
	log.Info("calendar sync recorded", zap.String("status", string(status)), zap.Int("attendees", rec.Count))
	return nil
}
