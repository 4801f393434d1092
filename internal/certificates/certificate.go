package certificates

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

// EventCertificateRevoked is pushed to the event room after a revocation.
const EventCertificateRevoked = "certificate_revoked"

// IssueRequest is the body for POST /events/:eventId/certificates.
type IssueRequest struct {
	ParticipantEmail string `json:"participant_email"`
	ParticipantName  string `json:"participant_name"`
}

// NewCode returns a verification code such as CERT-1A2B3C4D5E6F.
func NewCode() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "CERT-" + strings.ToUpper(raw[:12])
}

func newCertificate(eventID uuid.UUID, req IssueRequest, issuer uuid.UUID, now time.Time) (*models.Certificate, error) {
	email := strings.ToLower(strings.TrimSpace(req.ParticipantEmail))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.New("participant_email must be a valid email")
	}
	name := strings.TrimSpace(req.ParticipantName)
	if name == "" {
		return nil, errors.New("participant_name is required")
	}
	return &models.Certificate{
		ID:               uuid.New(),
		EventID:          eventID,
		ParticipantEmail: email,
		ParticipantName:  name,
		Code:             NewCode(),
		Status:           models.CertificateIssued,
		IssuedBy:         issuer,
		IssuedAt:         now,
	}, nil
}

func revoke(c *models.Certificate, actor auth.Actor, reason string, at time.Time) (*models.Certificate, error) {
	if c.Status == models.CertificateRevoked {
		return nil, ErrAlreadyRevoked
	}
	out := *c
	by := actor.UserID
	out.Status = models.CertificateRevoked
	out.RevokedBy = &by
	out.RevokedAt = &at
	out.RevokedReason = reason
	return &out, nil
}

func revocationEntry(actor auth.Actor, before, after *models.Certificate, at time.Time) *models.AuditLog {
	actorID := actor.UserID
	eventID := before.EventID
	return &models.AuditLog{
		EntityType: models.EntityCertificate,
		EntityID:   before.ID,
		EventID:    &eventID,
		ActionType: "CERTIFICATE_REVOKED",
		ActorType:  actor.AuditType(),
		ActorID:    &actorID,
		ActorName:  actor.DisplayName(),
		Severity:   models.SeverityCritical,
		Reason:     after.RevokedReason,
		OldState:   audit.Snapshot(map[string]interface{}{"status": before.Status, "code": before.Code}),
		NewState:   audit.Snapshot(map[string]interface{}{"status": after.Status, "revoked_at": at}),
		CreatedAt:  at,
	}
}
