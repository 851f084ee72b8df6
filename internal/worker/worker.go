package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paddle-club/backend/pkg/queue"
)

// JobQueue delivers trigger jobs.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// RegistrationHandler handles the registration-created trigger.
type RegistrationHandler interface {
	Process(ctx context.Context, id uuid.UUID) error
}

// AttendanceHandler handles the attendance-written trigger.
type AttendanceHandler interface {
	Sync(ctx context.Context, eventID string) error
}

// TriggerProcessor dispatches trigger jobs to the ledger and calendar sync.
type TriggerProcessor struct {
	queue        JobQueue
	registration RegistrationHandler
	attendance   AttendanceHandler
	logger       *zap.Logger
	backoff      time.Duration
}

// NewTriggerProcessor creates a trigger processor. attendance may be nil when
// calendar sync is not configured; its jobs are then acknowledged and dropped.
func NewTriggerProcessor(q JobQueue, registration RegistrationHandler, attendance AttendanceHandler, logger *zap.Logger) *TriggerProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriggerProcessor{
		queue:        q,
		registration: registration,
		attendance:   attendance,
		logger:       logger,
		backoff:      queue.RetryBackoff,
	}
}

// Process executes one trigger job.
func (p *TriggerProcessor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeRegistrationCreated:
		var payload queue.RegistrationCreatedPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.registration.Process(ctx, payload.RegistrationID)
	case queue.JobTypeAttendanceWritten:
		var payload queue.AttendanceWrittenPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		if p.attendance == nil {
			p.logger.Debug("calendar sync disabled, dropping trigger", zap.String("event_id", payload.EventID))
			return nil
		}
		return p.attendance.Sync(ctx, payload.EventID)
	}
	return fmt.Errorf("unknown job type: %s", job.Type)
}

// next takes one job off the queue. It reports whether a job was taken and
// the error it failed with; failed jobs are handed back to the queue.
func (p *TriggerProcessor) next(ctx context.Context) (bool, error) {
	job, key, err := p.queue.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if job == nil {
		return false, nil
	}

	p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.String("queue", key))
	if err := p.Process(ctx, job); err != nil {
		p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
		if reErr := p.queue.Retry(ctx, job); reErr != nil {
			p.logger.Error("retry enqueue failed", zap.Error(reErr))
		}
		return true, err
	}
	return true, nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *TriggerProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("trigger worker stopping")
			return
		default:
		}

		if _, err := p.next(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			select {
			case <-ctx.Done():
			case <-time.After(p.backoff):
			}
		}
	}
}
