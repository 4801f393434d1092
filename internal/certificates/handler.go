package certificates

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/audit"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/internal/permissions"
	"github.com/eventdesk/backend/pkg/response"
)

// Store is the persistence the handler needs. *Repository implements it.
type Store interface {
	Issue(ctx context.Context, c *models.Certificate) error
	Get(ctx context.Context, id uuid.UUID) (*models.Certificate, error)
	GetByCode(ctx context.Context, code string) (*models.Certificate, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.Certificate, error)
	Revoke(ctx context.Context, id uuid.UUID, actor auth.Actor, reason string, at time.Time) (*models.Certificate, error)
}

// Gate checks event-scoped permissions.
type Gate interface {
	Allowed(ctx context.Context, actor auth.Actor, eventID uuid.UUID, key permissions.Key) bool
}

// Notifier pushes realtime updates to an event room.
type Notifier interface {
	Publish(eventID uuid.UUID, event string, payload interface{})
}

// Handler handles certificate HTTP endpoints.
type Handler struct {
	store    Store
	gate     Gate
	notifier Notifier
	logger   *zap.Logger
}

// NewHandler creates a certificates handler. notifier may be nil.
func NewHandler(store Store, gate Gate, notifier Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, gate: gate, notifier: notifier, logger: logger}
}

// RevokeRequest is the body for PUT /certificates/:id/revoke.
type RevokeRequest struct {
	Reason string `json:"reason"`
}

// VerifyResponse is the public view of a certificate.
type VerifyResponse struct {
	Code            string                   `json:"code"`
	ParticipantName string                   `json:"participant_name"`
	EventID         uuid.UUID                `json:"event_id"`
	Status          models.CertificateStatus `json:"status"`
	IssuedAt        time.Time                `json:"issued_at"`
	Valid           bool                     `json:"valid"`
}

// Issue handles POST /events/:eventId/certificates.
func (h *Handler) Issue(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	actor := auth.MustActor(c)
	cert, err := newCertificate(eventID, req, actor.UserID, time.Now().UTC())
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.store.Issue(c.Request.Context(), cert); err != nil {
		if errors.Is(err, ErrAlreadyIssued) {
			response.Conflict(c, err.Error())
			return
		}
		h.logger.Error("issue certificate failed", zap.Error(err))
		response.Internal(c, "failed to issue certificate")
		return
	}
	response.Created(c, cert)
}

// List handles GET /events/:eventId/certificates.
func (h *Handler) List(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.store.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list certificates failed", zap.Error(err))
		response.Internal(c, "failed to list certificates")
		return
	}
	if list == nil {
		list = []*models.Certificate{}
	}
	response.OK(c, list)
}

// Verify handles GET /certificates/verify/:code (public).
func (h *Handler) Verify(c *gin.Context) {
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	cert, err := h.store.GetByCode(c.Request.Context(), code)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, VerifyResponse{
		Code:            cert.Code,
		ParticipantName: cert.ParticipantName,
		EventID:         cert.EventID,
		Status:          cert.Status,
		IssuedAt:        cert.IssuedAt,
		Valid:           cert.Status == models.CertificateIssued,
	})
}

// Revoke handles PUT /certificates/:id/revoke.
func (h *Handler) Revoke(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid certificate id")
		return
	}
	var req RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	reason, err := audit.ValidateReason(req.Reason)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	actor := auth.MustActor(c)
	current, err := h.store.Get(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.gate != nil && !h.gate.Allowed(ctx, actor, current.EventID, permissions.CertificatesManage) {
		response.Forbidden(c, "missing permission "+string(permissions.CertificatesManage))
		return
	}
	cert, err := h.store.Revoke(ctx, id, actor, reason, time.Now().UTC())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Warn("certificate revoked",
		zap.String("certificate_id", id.String()),
		zap.String("actor", actor.DisplayName()),
		zap.String("reason", reason))
	if h.notifier != nil {
		h.notifier.Publish(cert.EventID, EventCertificateRevoked, cert)
	}
	response.OK(c, cert)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrAlreadyRevoked):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error("certificate request failed", zap.Error(err))
		response.Internal(c, "failed to update certificate")
	}
}
