package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// CalendarUpdateStatus is the outcome of the last calendar sync of an attendance record.
// The zero value means no sync has completed since the last ledger write.
type CalendarUpdateStatus string

const (
	CalendarUnset     CalendarUpdateStatus = ""
	CalendarCompleted CalendarUpdateStatus = "COMPLETED"
	CalendarError     CalendarUpdateStatus = "ERROR"
)

// AttendanceRecord is the deduplicated attendee list of one calendar event.
// Count always equals len(Emails) after a committed write.
type AttendanceRecord struct {
	EventID              string               `json:"eventId"`
	Emails               []string             `json:"emails"`
	Count                int                  `json:"count"`
	LastUpdated          time.Time            `json:"lastUpdated"`
	CalendarUpdateStatus CalendarUpdateStatus `json:"calendarUpdateStatus,omitempty"`
	ErrorMessage         string               `json:"errorMessage,omitempty"`
}

// Contains reports whether email is already listed. The match is exact:
// addresses differing only in case are distinct entries here.
func (a *AttendanceRecord) Contains(email string) bool {
	for _, e := range a.Emails {
		if e == email {
			return true
		}
	}
	return false
}

// Summary returns the count/emails view pushed to aggregate subscribers.
func (a *AttendanceRecord) Summary() AttendanceSummary {
	emails := make([]string, len(a.Emails))
	copy(emails, a.Emails)
	return AttendanceSummary{EventID: a.EventID, Count: a.Count, Emails: emails}
}

// AttendanceSummary is the public per-event aggregate.
type AttendanceSummary struct {
	EventID string   `json:"eventId"`
	Count   int      `json:"count"`
	Emails  []string `json:"emails"`
}
