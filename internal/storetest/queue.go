package storetest

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/paddle-club/backend/pkg/queue"
)

// Queue is an in-memory trigger queue with the Redis queue's retry and DLQ rules.
type Queue struct {
	mu   sync.Mutex
	jobs []*queue.Job
	DLQ  []*queue.Job

	// FailEnqueue, when set, is returned by the Enqueue methods.
	FailEnqueue error
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// EnqueueRegistrationCreated appends a registration trigger.
func (q *Queue) EnqueueRegistrationCreated(_ context.Context, id uuid.UUID) error {
	return q.enqueue(queue.JobTypeRegistrationCreated, queue.RegistrationCreatedPayload{RegistrationID: id})
}

// EnqueueAttendanceWritten appends an attendance trigger.
func (q *Queue) EnqueueAttendanceWritten(_ context.Context, eventID string) error {
	return q.enqueue(queue.JobTypeAttendanceWritten, queue.AttendanceWrittenPayload{EventID: eventID})
}

func (q *Queue) enqueue(t queue.JobType, payload interface{}) error {
	if q.FailEnqueue != nil {
		return q.FailEnqueue
	}
	job, err := queue.NewJob(t, payload)
	if err != nil {
		return err
	}
	q.Push(job)
	return nil
}

// Push appends job as is, e.g. to simulate a redelivery.
func (q *Queue) Push(job *queue.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
}

// Dequeue pops the oldest job. It returns a nil job when the queue is empty
// and ctx.Err() once ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*queue.Job, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, "", nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, queue.KeyFor(job.Type), nil
}

// Retry re-enqueues job or moves it to the DLQ after queue.MaxRetries.
func (q *Queue) Retry(_ context.Context, job *queue.Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	job.Attempt++
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.Attempt >= queue.MaxRetries {
		q.DLQ = append(q.DLQ, job)
		return nil
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Jobs returns a snapshot of the queued jobs.
func (q *Queue) Jobs() []*queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*queue.Job(nil), q.jobs...)
}
