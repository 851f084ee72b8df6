package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paddle-club/backend/internal/models"
)

const sweepBatch = 100

// PendingLister finds registrations still waiting for the ledger.
type PendingLister interface {
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]models.Registration, error)
}

// UnsyncedLister finds attendance records without a calendar outcome.
type UnsyncedLister interface {
	ListUnsynced(ctx context.Context, olderThan time.Time, limit int) ([]models.AttendanceRecord, error)
}

// Triggers re-fires lost triggers.
type Triggers interface {
	EnqueueRegistrationCreated(ctx context.Context, registrationID uuid.UUID) error
	EnqueueAttendanceWritten(ctx context.Context, eventID string) error
}

// SweepResult counts the triggers re-fired by one sweep.
type SweepResult struct {
	Registrations int
	Attendance    int
}

// Sweeper re-fires triggers whose delivery was lost: registrations stuck in
// PENDING and attendance records never synced. Both handlers are idempotent,
// so a sweep racing a live delivery is harmless.
type Sweeper struct {
	regs       PendingLister
	attendance UnsyncedLister
	triggers   Triggers
	interval   time.Duration
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewSweeper creates a sweeper. attendance may be nil when calendar sync is off.
func NewSweeper(regs PendingLister, attendance UnsyncedLister, triggers Triggers, interval, staleAfter time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		regs:       regs,
		attendance: attendance,
		triggers:   triggers,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// SweepOnce re-fires the triggers of everything older than the stale threshold.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	cutoff := s.now().Add(-s.staleAfter)

	pending, err := s.regs.ListPending(ctx, cutoff, sweepBatch)
	if err != nil {
		return res, err
	}
	for i := range pending {
		if err := s.triggers.EnqueueRegistrationCreated(ctx, pending[i].ID); err != nil {
			return res, err
		}
		res.Registrations++
	}

	if s.attendance != nil {
		unsynced, err := s.attendance.ListUnsynced(ctx, cutoff, sweepBatch)
		if err != nil {
			return res, err
		}
		for i := range unsynced {
			if err := s.triggers.EnqueueAttendanceWritten(ctx, unsynced[i].EventID); err != nil {
				return res, err
			}
			res.Attendance++
		}
	}
	return res, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopping")
			return
		case <-ticker.C:
			res, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
				continue
			}
			if res.Registrations > 0 || res.Attendance > 0 {
				s.logger.Info("re-fired stale triggers",
					zap.Int("registrations", res.Registrations),
					zap.Int("attendance", res.Attendance))
			}
		}
	}
}
