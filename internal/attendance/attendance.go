package attendance

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/audit"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
)

// EventAttendanceCount is the realtime event carrying the live count.
const EventAttendanceCount = "attendance_count"

// Check-in methods.
const (
	MethodQR     = "qr"
	MethodManual = "manual"
)

// CheckInRequest is the body for POST /events/:eventId/attendance.
type CheckInRequest struct {
	ParticipantEmail string `json:"participant_email"`
	ParticipantName  string `json:"participant_name"`
	Method           string `json:"method"`
}

// CountUpdate is the payload of EventAttendanceCount.
type CountUpdate struct {
	EventID uuid.UUID `json:"event_id"`
	Count   int       `json:"count"`
}

func newCheckIn(eventID uuid.UUID, req CheckInRequest, now time.Time) (*models.Attendance, error) {
	email := strings.ToLower(strings.TrimSpace(req.ParticipantEmail))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.New("participant_email must be a valid email")
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		method = MethodManual
	}
	if method != MethodQR && method != MethodManual {
		return nil, errors.New("method must be qr or manual")
	}
	return &models.Attendance{
		ID:               uuid.New(),
		EventID:          eventID,
		ParticipantEmail: email,
		ParticipantName:  strings.TrimSpace(req.ParticipantName),
		Method:           method,
		Status:           models.AttendanceValid,
		CheckedInAt:      now,
	}, nil
}

// invalidate returns a copy of a with the invalidation applied.
func invalidate(a *models.Attendance, actor auth.Actor, reason string, at time.Time) (*models.Attendance, error) {
	if a.Status == models.AttendanceInvalidated {
		return nil, ErrAlreadyInvalidated
	}
	out := *a
	by := actor.UserID
	out.Status = models.AttendanceInvalidated
	out.InvalidatedBy = &by
	out.InvalidatedAt = &at
	out.InvalidatedReason = reason
	return &out, nil
}

func invalidationEntry(actor auth.Actor, before, after *models.Attendance, at time.Time) *models.AuditLog {
	actorID := actor.UserID
	eventID := before.EventID
	return &models.AuditLog{
		EntityType: models.EntityAttendance,
		EntityID:   before.ID,
		EventID:    &eventID,
		ActionType: "ATTENDANCE_INVALIDATED",
		ActorType:  actor.AuditType(),
		ActorID:    &actorID,
		ActorName:  actor.DisplayName(),
		Severity:   models.SeverityCritical,
		Reason:     after.InvalidatedReason,
		OldState:   audit.Snapshot(map[string]interface{}{"status": before.Status, "participant_email": before.ParticipantEmail}),
		NewState:   audit.Snapshot(map[string]interface{}{"status": after.Status, "invalidated_at": at}),
		CreatedAt:  at,
	}
}
