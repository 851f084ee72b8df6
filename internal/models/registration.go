package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceStatus is the processing state of a registration.
type AttendanceStatus string

const (
	StatusPending            AttendanceStatus = "PENDING"
	StatusSuccess            AttendanceStatus = "SUCCESS"
	StatusFailed             AttendanceStatus = "FAILED"
	StatusSkippedMissingData AttendanceStatus = "SKIPPED_MISSING_DATA"
)

// Terminal reports whether no further transition may happen from s.
func (s AttendanceStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkippedMissingData:
		return true
	}
	return false
}

// Registration is one submission attempt for a club event.
type Registration struct {
	ID               uuid.UUID        `json:"id"`
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	SelectedEventID  string           `json:"selectedEventId"`
	SessionUserID    string           `json:"sessionUserId,omitempty"` // correlation only, never an auth token
	AttendanceStatus AttendanceStatus `json:"attendanceStatus"`
	ErrorMessage     string           `json:"errorMessage,omitempty"`
	ProcessedAt      *time.Time       `json:"processedAt,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// MissingData reports whether any field required for the attendance update is empty.
func (r *Registration) MissingData() bool {
	return r.SelectedEventID == "" || r.Email == "" || r.Name == ""
}

// StatusChange is pushed to subscribers of a single registration.
type StatusChange struct {
	RegistrationID   uuid.UUID        `json:"registrationId"`
	AttendanceStatus AttendanceStatus `json:"attendanceStatus"`
	ErrorMessage     string           `json:"errorMessage,omitempty"`
	ProcessedAt      *time.Time       `json:"processedAt,omitempty"`
}

// Change returns the status view of r.
func (r *Registration) Change() StatusChange {
	return StatusChange{
		RegistrationID:   r.ID,
		AttendanceStatus: r.AttendanceStatus,
		ErrorMessage:     r.ErrorMessage,
		ProcessedAt:      r.ProcessedAt,
	}
}
