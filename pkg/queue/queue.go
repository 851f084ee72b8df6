package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueRegistrations is the Redis list key for registration-created triggers.
	QueueRegistrations = "triggers:registrations"
	// QueueAttendance is the Redis list key for attendance-written triggers.
	QueueAttendance = "triggers:attendance"
	// QueueDLQ is the dead-letter list for triggers that kept failing infrastructure writes.
	QueueDLQ = "triggers:dlq"
	// MaxRetries is the number of deliveries before a job is moved to the DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// dequeueTimeout bounds BLPOP so the worker notices cancellation.
	dequeueTimeout = 5 * time.Second
)

// JobType identifies the document write that fired a trigger.
type JobType string

const (
	JobTypeRegistrationCreated JobType = "registration_created"
	JobTypeAttendanceWritten   JobType = "attendance_written"
)

// RegistrationCreatedPayload identifies the new registration document.
type RegistrationCreatedPayload struct {
	RegistrationID uuid.UUID `json:"registration_id"`
}

// AttendanceWrittenPayload identifies the written attendance document.
type AttendanceWrittenPayload struct {
	EventID string `json:"event_id"`
}

// Job is a generic trigger envelope. Delivery is at-least-once.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewJob builds a job envelope for payload.
func NewJob(t JobType, payload interface{}) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   body,
		CreatedAt: time.Now(),
	}, nil
}

// KeyFor returns the list a job type is delivered on.
func KeyFor(t JobType) string {
	if t == JobTypeAttendanceWritten {
		return QueueAttendance
	}
	return QueueRegistrations
}

// Queue enqueues and dequeues trigger jobs via Redis lists.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed trigger queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueRegistrationCreated fires the ledger trigger for a new registration.
func (q *Queue) EnqueueRegistrationCreated(ctx context.Context, registrationID uuid.UUID) error {
	job, err := NewJob(JobTypeRegistrationCreated, RegistrationCreatedPayload{RegistrationID: registrationID})
	if err != nil {
		return err
	}
	if err := q.push(ctx, KeyFor(job.Type), job); err != nil {
		return err
	}
	q.logger.Debug("enqueued registration trigger", zap.String("job_id", job.ID), zap.String("registration_id", registrationID.String()))
	return nil
}

// EnqueueAttendanceWritten fires the calendar sync trigger for an attendance record.
func (q *Queue) EnqueueAttendanceWritten(ctx context.Context, eventID string) error {
	job, err := NewJob(JobTypeAttendanceWritten, AttendanceWrittenPayload{EventID: eventID})
	if err != nil {
		return err
	}
	if err := q.push(ctx, KeyFor(job.Type), job); err != nil {
		return err
	}
	q.logger.Debug("enqueued attendance trigger", zap.String("job_id", job.ID), zap.String("event_id", eventID))
	return nil
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	return nil
}

// Dequeue blocks until a job is available on either trigger list, ctx is done,
// or the poll timeout elapses (nil job). Returns job and key (queue name).
func (q *Queue) Dequeue(ctx context.Context) (*Job, string, error) {
	result, err := q.client.BLPop(ctx, dequeueTimeout, QueueRegistrations, QueueAttendance).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, "", nil
	}
	return &job, result[0], nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		if err := q.push(ctx, QueueDLQ, job); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.push(ctx, KeyFor(job.Type), job); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
