package storetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/paddle-club/backend/internal/calendar"
)

// Calendar is an in-memory calendar.Provider keyed by event id.
type Calendar struct {
	mu      sync.Mutex
	events  map[string]calendar.Event
	Updates int
	Notify  []bool

	// FailGet and FailUpdate, when set, are returned by the matching call.
	FailGet    error
	FailUpdate error
}

// NewCalendar returns a calendar holding events.
func NewCalendar(events ...calendar.Event) *Calendar {
	c := &Calendar{events: make(map[string]calendar.Event)}
	for _, ev := range events {
		c.events[ev.ID] = ev
	}
	return c
}

// GetEvent returns a copy of the event.
func (c *Calendar) GetEvent(_ context.Context, _ string, eventID string) (*calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailGet != nil {
		return nil, c.FailGet
	}
	ev, ok := c.events[eventID]
	if !ok {
		return nil, fmt.Errorf("get event %s: 404 not found", eventID)
	}
	ev.Attendees = append([]calendar.Attendee(nil), ev.Attendees...)
	return &ev, nil
}

// UpdateEvent replaces the stored event.
func (c *Calendar) UpdateEvent(_ context.Context, _ string, ev *calendar.Event, notify bool) (*calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailUpdate != nil {
		return nil, c.FailUpdate
	}
	stored := *ev
	stored.Attendees = append([]calendar.Attendee(nil), ev.Attendees...)
	c.events[ev.ID] = stored
	c.Updates++
	c.Notify = append(c.Notify, notify)
	return &stored, nil
}

// Attendees returns the current attendee list of eventID.
func (c *Calendar) Attendees(eventID string) []calendar.Attendee {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]calendar.Attendee(nil), c.events[eventID].Attendees...)
}
