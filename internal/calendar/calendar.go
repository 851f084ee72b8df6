// Package calendar talks to the shared club calendar: attendee updates for
// calendar sync and the public list of upcoming events.
package calendar

import (
	"context"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
)

// ResponseNeedsAction is the response status given to attendees this system adds.
const ResponseNeedsAction = "needsAction"

// Attendee is one guest on a calendar event.
type Attendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"displayName,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`

	// raw is the provider's attendee entry, nil for attendees added here.
	raw *gcal.EventAttendee
}

// Event is a calendar event as the club app sees it.
type Event struct {
	ID          string     `json:"id"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	HTMLLink    string     `json:"htmlLink,omitempty"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	AllDay      bool       `json:"allDay,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`

	// raw keeps the provider's full event so an update writes back every field it read.
	raw *gcal.Event
}

// Provider reads and updates events of a calendar.
type Provider interface {
	GetEvent(ctx context.Context, calendarID, eventID string) (*Event, error)
	// UpdateEvent replaces the event, attendee list included. notify asks the
	// provider to email attendees about the change.
	UpdateEvent(ctx context.Context, calendarID string, ev *Event, notify bool) (*Event, error)
}

// Lister lists upcoming events of a calendar.
type Lister interface {
	ListUpcoming(ctx context.Context, calendarID string, from time.Time, max int) ([]Event, error)
}

// MergeAttendees returns the attendee list after adding emails to existing.
// Existing attendees whose address matches one of emails, ignoring case, are
// replaced by the new entry; all other existing attendees are kept in order.
// The new entries follow, each with a needsAction response.
//
// Matching here ignores case while the attendance ledger deduplicates exactly:
// "B@x.com" and "b@x.com" are two ledger entries, and an existing guest
// "b@x.com" is replaced by "B@x.com" instead of kept alongside it.
func MergeAttendees(existing []Attendee, emails []string) []Attendee {
	incoming := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		incoming[strings.ToLower(e)] = struct{}{}
	}
	merged := make([]Attendee, 0, len(existing)+len(emails))
	for _, a := range existing {
		if _, ok := incoming[strings.ToLower(a.Email)]; ok {
			continue
		}
		merged = append(merged, a)
	}
	for _, e := range emails {
		merged = append(merged, Attendee{Email: e, ResponseStatus: ResponseNeedsAction})
	}
	return merged
}

// Unavailable is a Provider that fails every call, used when credentials are missing.
type Unavailable struct {
	Err error
}

// GetEvent returns u.Err.
func (u Unavailable) GetEvent(context.Context, string, string) (*Event, error) { return nil, u.Err }

// UpdateEvent returns u.Err.
func (u Unavailable) UpdateEvent(context.Context, string, *Event, bool) (*Event, error) {
	return nil, u.Err
}
