package attendance

import (
	"context"
	"errors"
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
	CheckIn(ctx context.Context, a *models.Attendance) error
	Get(ctx context.Context, id uuid.UUID) (*models.Attendance, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.Attendance, error)
	CountValid(ctx context.Context, eventID uuid.UUID) (int, error)
	Invalidate(ctx context.Context, id uuid.UUID, actor auth.Actor, reason string, at time.Time) (*models.Attendance, error)
}

// Gate checks event-scoped permissions.
type Gate interface {
	Allowed(ctx context.Context, actor auth.Actor, eventID uuid.UUID, key permissions.Key) bool
}

// Notifier pushes realtime updates to an event room.
type Notifier interface {
	Publish(eventID uuid.UUID, event string, payload interface{})
}

// Handler handles attendance HTTP endpoints.
type Handler struct {
	store    Store
	gate     Gate
	notifier Notifier
	logger   *zap.Logger
}

// NewHandler creates an attendance handler. notifier may be nil.
func NewHandler(store Store, gate Gate, notifier Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, gate: gate, notifier: notifier, logger: logger}
}

// InvalidateRequest is the body for PUT /attendance/:id/invalidate.
type InvalidateRequest struct {
	Reason string `json:"reason"`
}

// CheckIn handles POST /events/:eventId/attendance.
func (h *Handler) CheckIn(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	a, err := newCheckIn(eventID, req, time.Now().UTC())
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.store.CheckIn(c.Request.Context(), a); err != nil {
		if errors.Is(err, ErrAlreadyCheckedIn) {
			response.Conflict(c, err.Error())
			return
		}
		h.logger.Error("check-in failed", zap.Error(err))
		response.Internal(c, "failed to check in")
		return
	}
	h.pushCount(c.Request.Context(), eventID)
	response.Created(c, a)
}

// List handles GET /events/:eventId/attendance.
func (h *Handler) List(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.store.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list attendance failed", zap.Error(err))
		response.Internal(c, "failed to list attendance")
		return
	}
	if list == nil {
		list = []*models.Attendance{}
	}
	response.OK(c, list)
}

// Count handles GET /events/:eventId/attendance/count.
func (h *Handler) Count(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	n, err := h.store.CountValid(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("count attendance failed", zap.Error(err))
		response.Internal(c, "failed to count attendance")
		return
	}
	response.OK(c, CountUpdate{EventID: eventID, Count: n})
}

// Invalidate handles PUT /attendance/:id/invalidate.
func (h *Handler) Invalidate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid attendance id")
		return
	}
	var req InvalidateRequest
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
	if h.gate != nil && !h.gate.Allowed(ctx, actor, current.EventID, permissions.AttendanceManage) {
		response.Forbidden(c, "missing permission "+string(permissions.AttendanceManage))
		return
	}
	a, err := h.store.Invalidate(ctx, id, actor, reason, time.Now().UTC())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Warn("attendance invalidated",
		zap.String("attendance_id", id.String()),
		zap.String("actor", actor.DisplayName()),
		zap.String("reason", reason))
	h.pushCount(ctx, a.EventID)
	response.OK(c, a)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrAlreadyInvalidated):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error("attendance request failed", zap.Error(err))
		response.Internal(c, "failed to update attendance")
	}
}

func (h *Handler) pushCount(ctx context.Context, eventID uuid.UUID) {
	if h.notifier == nil {
		return
	}
	n, err := h.store.CountValid(ctx, eventID)
	if err != nil {
		h.logger.Warn("attendance count for push failed", zap.Error(err))
		return
	}
	h.notifier.Publish(eventID, EventAttendanceCount, CountUpdate{EventID: eventID, Count: n})
}
