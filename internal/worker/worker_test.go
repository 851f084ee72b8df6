package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddle-club/backend/internal/calendar"
	"github.com/paddle-club/backend/internal/calsync"
	"github.com/paddle-club/backend/internal/ledger"
	"github.com/paddle-club/backend/internal/models"
	"github.com/paddle-club/backend/internal/registrations"
	"github.com/paddle-club/backend/internal/storetest"
	"github.com/paddle-club/backend/pkg/queue"
)

type env struct {
	regs   *storetest.Registrations
	att    *storetest.Attendance
	queue  *storetest.Queue
	cal    *storetest.Calendar
	intake *registrations.Service
	proc   *TriggerProcessor
}

func newEnv(events ...calendar.Event) *env {
	e := &env{
		regs:  storetest.NewRegistrations(),
		att:   storetest.NewAttendance(),
		queue: storetest.NewQueue(),
		cal:   storetest.NewCalendar(events...),
	}
	e.intake = registrations.NewService(e.regs, e.queue, nil)
	engine := ledger.NewEngine(e.regs, e.att, e.queue, nil, nil)
	syncer := calsync.NewSyncer(e.att, e.cal, "club@group.calendar.google.com", nil, nil)
	e.proc = NewTriggerProcessor(e.queue, engine, syncer, nil)
	return e
}

// drain processes jobs until the queue is empty.
func (e *env) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 100; i++ {
		taken, _ := e.proc.next(context.Background())
		if !taken {
			return
		}
	}
	t.Fatal("queue did not drain")
}

func (e *env) submit(t *testing.T, name, email, eventID string) *models.Registration {
	t.Helper()
	id, err := e.intake.Submit(context.Background(), registrations.SubmitInput{Name: name, Email: email, EventID: eventID})
	require.NoError(t, err)
	reg, err := e.regs.GetByID(context.Background(), id)
	require.NoError(t, err)
	return reg
}

func (e *env) status(t *testing.T, reg *models.Registration) *models.Registration {
	t.Helper()
	got, err := e.regs.GetByID(context.Background(), reg.ID)
	require.NoError(t, err)
	return got
}

func TestFirstRegistrationReachesCalendar(t *testing.T) {
	e := newEnv(calendar.Event{ID: "E1", Summary: "Morning paddle"})
	reg := e.submit(t, "Alice", "alice@x.com", "E1")

	e.drain(t)

	assert.Equal(t, models.StatusSuccess, e.status(t, reg).AttendanceStatus)
	rec, err := e.att.Get(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@x.com"}, rec.Emails)
	assert.Equal(t, 1, rec.Count)
	assert.Equal(t, models.CalendarCompleted, rec.CalendarUpdateStatus)
	assert.Equal(t, []calendar.Attendee{{Email: "alice@x.com", ResponseStatus: calendar.ResponseNeedsAction}}, e.cal.Attendees("E1"))
}

func TestDuplicateEmailDoesNotResync(t *testing.T) {
	e := newEnv(calendar.Event{ID: "E1"})
	first := e.submit(t, "Bob", "bob@x.com", "E1")
	e.drain(t)
	second := e.submit(t, "Bob", "bob@x.com", "E1")
	e.drain(t)

	assert.Equal(t, models.StatusSuccess, e.status(t, first).AttendanceStatus)
	assert.Equal(t, models.StatusSuccess, e.status(t, second).AttendanceStatus)
	rec, _ := e.att.Get(context.Background(), "E1")
	assert.Equal(t, 1, rec.Count)
	assert.Equal(t, 1, e.cal.Updates)
}

func TestMissingEmailIsSkipped(t *testing.T) {
	e := newEnv(calendar.Event{ID: "E1"})
	reg := e.submit(t, "Carol", "", "E1")

	e.drain(t)

	assert.Equal(t, models.StatusSkippedMissingData, e.status(t, reg).AttendanceStatus)
	_, err := e.att.Get(context.Background(), "E1")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Zero(t, e.cal.Updates)
}

func TestAttendanceStoreFailureMarksFailed(t *testing.T) {
	e := newEnv(calendar.Event{ID: "E1"})
	e.att.FailUpdate = errors.New("transaction aborted")
	reg := e.submit(t, "Dan", "dan@x.com", "E1")

	e.drain(t)

	got := e.status(t, reg)
	assert.Equal(t, models.StatusFailed, got.AttendanceStatus)
	assert.Contains(t, got.ErrorMessage, "transaction aborted")
	assert.Empty(t, e.queue.DLQ)
}

func TestCalendarFailureRecordedOnAttendance(t *testing.T) {
	e := newEnv()
	reg := e.submit(t, "Eve", "eve@x.com", "E404")

	e.drain(t)

	assert.Equal(t, models.StatusSuccess, e.status(t, reg).AttendanceStatus)
	rec, _ := e.att.Get(context.Background(), "E404")
	assert.Equal(t, models.CalendarError, rec.CalendarUpdateStatus)
	assert.Contains(t, rec.ErrorMessage, "not found")
}

func TestStatusWriteFailureEndsInDLQ(t *testing.T) {
	e := newEnv(calendar.Event{ID: "E1"})
	e.regs.FailSetStatus = errors.New("connection reset")
	e.submit(t, "Finn", "finn@x.com", "E1")

	e.drain(t)

	require.Len(t, e.queue.DLQ, 1)
	assert.Equal(t, queue.JobTypeRegistrationCreated, e.queue.DLQ[0].Type)
	assert.Equal(t, queue.MaxRetries, e.queue.DLQ[0].Attempt)
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	e := newEnv(calendar.Event{ID: "E1"})
	reg := e.submit(t, "Gus", "gus@x.com", "E1")
	jobs := e.queue.Jobs()
	require.Len(t, jobs, 1)
	e.queue.Push(jobs[0])

	e.drain(t)

	assert.Equal(t, models.StatusSuccess, e.status(t, reg).AttendanceStatus)
	rec, _ := e.att.Get(context.Background(), "E1")
	assert.Equal(t, 1, rec.Count)
	assert.Equal(t, 1, e.cal.Updates)
}

func TestProcess_UnknownJobType(t *testing.T) {
	e := newEnv()
	job, err := queue.NewJob("mystery", struct{}{})
	require.NoError(t, err)

	assert.Error(t, e.proc.Process(context.Background(), job))
}

func TestProcess_AttendanceDroppedWithoutSyncer(t *testing.T) {
	q := storetest.NewQueue()
	p := NewTriggerProcessor(q, nil, nil, nil)
	job, err := queue.NewJob(queue.JobTypeAttendanceWritten, queue.AttendanceWrittenPayload{EventID: "E1"})
	require.NoError(t, err)

	assert.NoError(t, p.Process(context.Background(), job))
}

func TestRun_StopsOnCancel(t *testing.T) {
	e := newEnv(calendar.Event{ID: "E1"})
	reg := e.submit(t, "Hal", "hal@x.com", "E1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.proc.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := e.regs.GetByID(context.Background(), reg.ID)
		return err == nil && got.AttendanceStatus == models.StatusSuccess && e.queue.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestSweeper_RefiresLostTriggers(t *testing.T) {
	e := newEnv(calendar.Event{ID: "E1"}, calendar.Event{ID: "E2"})
	old := time.Now().Add(-time.Hour)

	lost := &models.Registration{Name: "Ivy", Email: "ivy@x.com", SelectedEventID: "E1", CreatedAt: old}
	require.NoError(t, e.regs.Create(context.Background(), lost))
	fresh := &models.Registration{Name: "Jay", Email: "jay@x.com", SelectedEventID: "E1"}
	require.NoError(t, e.regs.Create(context.Background(), fresh))
	e.att.Put(models.AttendanceRecord{EventID: "E2", Emails: []string{"kim@x.com"}, Count: 1, LastUpdated: old})
	e.att.Put(models.AttendanceRecord{EventID: "E3", LastUpdated: old})

	s := NewSweeper(e.regs, e.att, e.queue, time.Minute, 5*time.Minute, nil)
	res, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Registrations: 1, Attendance: 1}, res)

	e.drain(t)

	assert.Equal(t, models.StatusSuccess, e.status(t, lost).AttendanceStatus)
	assert.Equal(t, models.StatusPending, e.status(t, fresh).AttendanceStatus)
	rec, _ := e.att.Get(context.Background(), "E2")
	assert.Equal(t, models.CalendarCompleted, rec.CalendarUpdateStatus)
}

func TestSweeper_EnqueueFailure(t *testing.T) {
	e := newEnv()
	lost := &models.Registration{Name: "Lu", Email: "lu@x.com", SelectedEventID: "E1", CreatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, e.regs.Create(context.Background(), lost))
	e.queue.FailEnqueue = errors.New("redis down")

	s := NewSweeper(e.regs, nil, e.queue, time.Minute, time.Minute, nil)
	_, err := s.SweepOnce(context.Background())
	assert.Error(t, err)
}
