package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceStatus is the validity of a check-in.
type AttendanceStatus string

const (
	AttendanceValid       AttendanceStatus = "VALID"
	AttendanceInvalidated AttendanceStatus = "INVALIDATED"
)

// Attendance is one participant check-in at an event.
type Attendance struct {
	ID                uuid.UUID        `json:"id"`
	EventID           uuid.UUID        `json:"event_id"`
	ParticipantEmail  string           `json:"participant_email"`
	ParticipantName   string           `json:"participant_name"`
	Method            string           `json:"method"` // "qr" or "manual"
	Status            AttendanceStatus `json:"status"`
	CheckedInAt       time.Time        `json:"checked_in_at"`
	InvalidatedBy     *uuid.UUID       `json:"invalidated_by,omitempty"`
	InvalidatedAt     *time.Time       `json:"invalidated_at,omitempty"`
	InvalidatedReason string           `json:"invalidated_reason,omitempty"`
}
