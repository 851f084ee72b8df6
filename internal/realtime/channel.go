package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paddle-club/backend/internal/models"
)

// RegistrationReader loads a registration snapshot.
type RegistrationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
}

// AttendanceLister loads all attendance records.
type AttendanceLister interface {
	List(ctx context.Context) ([]models.AttendanceRecord, error)
}

// Channel is the read-only status notification channel: callbacks observe a
// registration's status or the per-event attendance aggregate as they change.
type Channel struct {
	hub        *Hub
	regs       RegistrationReader
	attendance AttendanceLister
	logger     *zap.Logger
}

// NewChannel creates a notification channel on hub.
func NewChannel(hub *Hub, regs RegistrationReader, att AttendanceLister, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{hub: hub, regs: regs, attendance: att, logger: logger}
}

// WatchRegistration calls fn with the current status of registration id and then
// with every change. Repeated statuses are dropped. After a terminal status is
// delivered the subscription cancels itself.
func (c *Channel) WatchRegistration(ctx context.Context, id uuid.UUID, fn func(models.StatusChange)) (*Subscription, error) {
	var (
		mu   sync.Mutex
		last models.AttendanceStatus
		done bool
		sub  *Subscription
	)
	deliver := func(change models.StatusChange) {
		mu.Lock()
		if done || change.AttendanceStatus == last {
			mu.Unlock()
			return
		}
		last = change.AttendanceStatus
		done = change.AttendanceStatus.Terminal()
		s := sub
		fn(change)
		finished := done
		mu.Unlock()

		if finished && s != nil {
			s.Cancel()
		}
	}

	// Subscribe before reading so no change between the read and the subscribe is lost.
	s, err := c.hub.Subscribe(RegistrationTopic(id), func(event string, payload []byte) {
		if event != EventRegistrationStatus {
			return
		}
		var change models.StatusChange
		if err := json.Unmarshal(payload, &change); err != nil {
			c.logger.Warn("invalid status payload", zap.Error(err))
			return
		}
		deliver(change)
	})
	if err != nil {
		return nil, err
	}
	mu.Lock()
	sub = s
	mu.Unlock()

	reg, err := c.regs.GetByID(ctx, id)
	if err != nil {
		s.Cancel()
		return nil, err
	}
	deliver(reg.Change())

	mu.Lock()
	finished := done
	mu.Unlock()
	if finished {
		s.Cancel()
	}
	return s, nil
}

// WatchAttendance calls fn with the event id -> {count, emails} mapping of all
// attendance records, first as a snapshot and then after every change.
func (c *Channel) WatchAttendance(ctx context.Context, fn func(map[string]models.AttendanceSummary)) (*Subscription, error) {
	var (
		mu    sync.Mutex
		ready bool
		state = make(map[string]models.AttendanceSummary)
	)
	// merge keeps the larger list: attendee lists only grow, so a snapshot read
	// concurrently with a change never rolls an entry back.
	merge := func(s models.AttendanceSummary) {
		if cur, ok := state[s.EventID]; ok && cur.Count > s.Count {
			return
		}
		state[s.EventID] = s
	}
	emit := func() {
		out := make(map[string]models.AttendanceSummary, len(state))
		for k, v := range state {
			out[k] = v
		}
		fn(out)
	}

	s, err := c.hub.Subscribe(TopicAttendance, func(event string, payload []byte) {
		if event != EventAttendanceChanged {
			return
		}
		var summary models.AttendanceSummary
		if err := json.Unmarshal(payload, &summary); err != nil {
			c.logger.Warn("invalid attendance payload", zap.Error(err))
			return
		}
		mu.Lock()
		defer mu.Unlock()
		merge(summary)
		if ready {
			emit()
		}
	})
	if err != nil {
		return nil, err
	}

	list, err := c.attendance.List(ctx)
	if err != nil {
		s.Cancel()
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()
	for i := range list {
		merge(list[i].Summary())
	}
	ready = true
	emit()
	return s, nil
}
