package permissions

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/pkg/response"
)

// Handler exposes the caller's permission set to the dashboard.
type Handler struct {
	gate *Gate
}

// NewHandler creates a permissions handler.
func NewHandler(gate *Gate) *Handler {
	return &Handler{gate: gate}
}

// Mine handles GET /events/:eventId/permissions.
func (h *Handler) Mine(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	actor := auth.MustActor(c)
	s, err := h.gate.Resolve(c.Request.Context(), actor, eventID)
	if err != nil {
		// The client applies the same deny-on-error default.
		response.OK(c, gin.H{"event_id": eventID, "permissions": []Key{}, "mode": ErrorDefault.String()})
		return
	}
	response.OK(c, gin.H{"event_id": eventID, "permissions": s.Keys(), "mode": "resolved"})
}
