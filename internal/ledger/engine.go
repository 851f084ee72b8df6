// Package ledger applies registrations to the per-event attendance records.
//
// Each registration is applied once through an atomic read-modify-write on its
// event's record. An email already on the record is a no-op, which keeps the
// ledger idempotent under trigger redelivery. The outcome is written back to the
// registration as its terminal status; failures never escape as errors unless
// the status itself cannot be written.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paddle-club/backend/internal/attendance"
	"github.com/paddle-club/backend/internal/models"
)

// RegistrationStore is the registrations collection as seen by the ledger.
type RegistrationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.AttendanceStatus, errMsg string) (*models.Registration, bool, error)
}

// AttendanceStore provides the atomic per-event update.
type AttendanceStore interface {
	Update(ctx context.Context, eventID string, fn attendance.UpdateFunc) (*models.AttendanceRecord, error)
}

// Triggers fires the attendance-written trigger.
type Triggers interface {
	EnqueueAttendanceWritten(ctx context.Context, eventID string) error
}

// Notifier receives committed changes for live subscribers.
type Notifier interface {
	RegistrationChanged(change models.StatusChange)
	AttendanceChanged(summary models.AttendanceSummary)
}

// Outcome is what applying a registration did to the attendance record.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeCreated
	OutcomeAppended
	OutcomeDuplicate
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeAppended:
		return "appended"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeFailed:
		return "failed"
	}
	return "skipped"
}

// Engine is the ledger update trigger handler.
type Engine struct {
	regs       RegistrationStore
	attendance AttendanceStore
	triggers   Triggers
	notifier   Notifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewEngine creates a ledger engine. notifier may be nil.
func NewEngine(regs RegistrationStore, att AttendanceStore, triggers Triggers, notifier Notifier, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		regs:       regs,
		attendance: att,
		triggers:   triggers,
		notifier:   notifier,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Process handles the registration-created trigger for id. Registrations that
// already reached a terminal status are left alone.
func (e *Engine) Process(ctx context.Context, id uuid.UUID) error {
	reg, err := e.regs.GetByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		e.logger.Warn("registration trigger for unknown document", zap.String("registration_id", id.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load registration %s: %w", id, err)
	}
	if reg.AttendanceStatus.Terminal() {
		e.logger.Info("registration already processed",
			zap.String("registration_id", id.String()),
			zap.String("status", string(reg.AttendanceStatus)))
		return nil
	}
	_, err = e.Apply(ctx, reg)
	return err
}

// Apply validates reg, updates its event's attendance record and sets the
// terminal status. The returned error is non-nil only if the status could not be written.
func (e *Engine) Apply(ctx context.Context, reg *models.Registration) (Outcome, error) {
	log := e.logger.With(
		zap.String("registration_id", reg.ID.String()),
		zap.String("event_id", reg.SelectedEventID))

	if reg.MissingData() {
		log.Warn("missing required fields, skipping attendance update")
		return OutcomeSkipped, e.finish(ctx, log, reg.ID, models.StatusSkippedMissingData, "")
	}

	outcome, rec, err := e.record(ctx, reg)
	if err != nil {
		log.Error("attendance transaction failed", zap.Error(err))
		return OutcomeFailed, e.finish(ctx, log, reg.ID, models.StatusFailed, err.Error())
	}

	switch outcome {
	case OutcomeDuplicate:
		log.Info("email already counted for event")
	default:
		log.Info("attendance updated", zap.String("outcome", outcome.String()), zap.Int("count", rec.Count))
		if e.notifier != nil {
			e.notifier.AttendanceChanged(rec.Summary())
		}
		if err := e.triggers.EnqueueAttendanceWritten(ctx, rec.EventID); err != nil {
			// The record stays without calendar status; the sweeper re-fires it.
			log.Error("enqueue calendar sync failed", zap.Error(err))
		}
	}
	return outcome, e.finish(ctx, log, reg.ID, models.StatusSuccess, "")
}

// record runs the read-check-write for reg. Membership is an exact string
// match: the ledger does not fold case (the calendar merge does).
func (e *Engine) record(ctx context.Context, reg *models.Registration) (Outcome, *models.AttendanceRecord, error) {
	var outcome Outcome
	written, err := e.attendance.Update(ctx, reg.SelectedEventID, func(cur *models.AttendanceRecord) (*models.AttendanceRecord, error) {
		now := e.now()
		if cur == nil {
			outcome = OutcomeCreated
			return &models.AttendanceRecord{
				EventID:     reg.SelectedEventID,
				Emails:      []string{reg.Email},
				Count:       1,
				LastUpdated: now,
			}, nil
		}
		if cur.Contains(reg.Email) {
			outcome = OutcomeDuplicate
			return nil, nil
		}
		emails := make([]string, 0, len(cur.Emails)+1)
		emails = append(emails, cur.Emails...)
		emails = append(emails, reg.Email)
		outcome = OutcomeAppended
		return &models.AttendanceRecord{
			EventID:     reg.SelectedEventID,
			Emails:      emails,
			Count:       len(emails),
			LastUpdated: now,
		}, nil
	})
	if err != nil {
		return OutcomeFailed, nil, err
	}
	return outcome, written, nil
}

func (e *Engine) finish(ctx context.Context, log *zap.Logger, id uuid.UUID, status models.AttendanceStatus, errMsg string) error {
	reg, changed, err := e.regs.SetStatus(ctx, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("set registration %s status %s: %w", id, status, err)
	}
	if !changed {
		log.Info("registration status already terminal", zap.String("status", string(reg.AttendanceStatus)))
		return nil
	}
	log.Info("registration processed", zap.String("status", string(status)))
	if e.notifier != nil {
		e.notifier.RegistrationChanged(reg.Change())
	}
	return nil
}
