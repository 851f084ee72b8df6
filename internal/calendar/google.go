package calendar

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const dateLayout = "2006-01-02"

// Google implements Provider and Lister on the Google Calendar v3 API.
type Google struct {
	svc    *gcal.Service
	logger *zap.Logger
}

// NewGoogleProvider authenticates with a base64 encoded service account key.
// The service account must have write access to the shared calendar.
func NewGoogleProvider(ctx context.Context, keyBase64 string, logger *zap.Logger) (*Google, error) {
	if keyBase64 == "" {
		return nil, errors.New("CALENDAR_KEY not set")
	}
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return nil, fmt.Errorf("decode calendar key: %w", err)
	}
	svc, err := gcal.NewService(ctx, option.WithCredentialsJSON(key), option.WithScopes(gcal.CalendarScope))
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	return newGoogle(svc, logger), nil
}

// NewGooglePublicLister reads a public calendar with an API key.
func NewGooglePublicLister(ctx context.Context, apiKey string, logger *zap.Logger) (*Google, error) {
	if apiKey == "" {
		return nil, errors.New("CALENDAR_API_KEY not set")
	}
	svc, err := gcal.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	return newGoogle(svc, logger), nil
}

func newGoogle(svc *gcal.Service, logger *zap.Logger) *Google {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Google{svc: svc, logger: logger}
}

// GetEvent fetches one event with its current attendees.
func (g *Google) GetEvent(ctx context.Context, calendarID, eventID string) (*Event, error) {
	ev, err := g.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return fromGoogle(ev), nil
}

// UpdateEvent writes ev back with its attendee list, preserving fields read by GetEvent.
func (g *Google) UpdateEvent(ctx context.Context, calendarID string, ev *Event, notify bool) (*Event, error) {
	body := &gcal.Event{}
	if ev.raw != nil {
		copied := *ev.raw
		body = &copied
	}
	body.Attendees = make([]*gcal.EventAttendee, 0, len(ev.Attendees))
	for _, a := range ev.Attendees {
		body.Attendees = append(body.Attendees, toGoogleAttendee(a))
	}
	sendUpdates := "none"
	if notify {
		sendUpdates = "all"
	}
	out, err := g.svc.Events.Update(calendarID, ev.ID, body).SendUpdates(sendUpdates).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("update event %s: %w", ev.ID, err)
	}
	g.logger.Info("calendar event updated", zap.String("event_id", ev.ID), zap.String("html_link", out.HtmlLink), zap.Int("attendees", len(out.Attendees)))
	return fromGoogle(out), nil
}

// ListUpcoming lists single (recurrences expanded) events starting from from, ordered by start time.
func (g *Google) ListUpcoming(ctx context.Context, calendarID string, from time.Time, max int) ([]Event, error) {
	call := g.svc.Events.List(calendarID).
		TimeMin(from.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)
	if max > 0 {
		call = call.MaxResults(int64(max))
	}
	res, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]Event, 0, len(res.Items))
	for _, item := range res.Items {
		ev := fromGoogle(item)
		ev.Attendees = nil // not part of the public listing
		out = append(out, *ev)
	}
	return out, nil
}

func fromGoogle(ev *gcal.Event) *Event {
	out := &Event{
		ID:          ev.Id,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		HTMLLink:    ev.HtmlLink,
		raw:         ev,
	}
	out.Start, out.AllDay = parseEventTime(ev.Start)
	out.End, _ = parseEventTime(ev.End)
	for _, a := range ev.Attendees {
		if a == nil {
			continue
		}
		out.Attendees = append(out.Attendees, Attendee{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			ResponseStatus: a.ResponseStatus,
			raw:            a,
		})
	}
	return out
}

// toGoogleAttendee starts from the entry GetEvent read, so fields such as
// optional, comment and additionalGuests are written back untouched.
func toGoogleAttendee(a Attendee) *gcal.EventAttendee {
	out := &gcal.EventAttendee{}
	if a.raw != nil {
		copied := *a.raw
		out = &copied
	}
	out.Email = a.Email
	out.DisplayName = a.DisplayName
	out.ResponseStatus = a.ResponseStatus
	return out
}

// parseEventTime reads a timed or all-day event boundary.
func parseEventTime(t *gcal.EventDateTime) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		if v, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return v, false
		}
	}
	if t.Date != "" {
		loc := time.UTC
		if t.TimeZone != "" {
			if l, err := time.LoadLocation(t.TimeZone); err == nil {
				loc = l
			}
		}
		if v, err := time.ParseInLocation(dateLayout, t.Date, loc); err == nil {
			return v, true
		}
	}
	return time.Time{}, false
}
