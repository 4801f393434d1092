package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/internal/permissions"
	"github.com/eventdesk/backend/pkg/response"
)

// Invalidator drops cached permission sets after a membership change.
type Invalidator interface {
	Invalidate(ctx context.Context, userID, eventID uuid.UUID)
}

// Handler handles event and team HTTP endpoints.
type Handler struct {
	repo   *Repository
	perms  Invalidator
	logger *zap.Logger
}

// NewHandler creates an events handler.
func NewHandler(repo *Repository, perms Invalidator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, perms: perms, logger: logger}
}

// EventRequest is the body for POST /events and PUT /events/:eventId.
type EventRequest struct {
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	Venue       string     `json:"venue"`
	StartsAt    time.Time  `json:"starts_at" binding:"required"`
	EndsAt      *time.Time `json:"ends_at"`
}

// MemberRequest is the body for PUT /events/:eventId/members.
type MemberRequest struct {
	Email  string   `json:"email" binding:"required,email"`
	Role   string   `json:"role" binding:"required"`
	Grants []string `json:"grants"`
}

func (req EventRequest) validate() (string, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 255 {
		return "", errors.New("name must be 1-255 characters")
	}
	if req.EndsAt != nil && req.EndsAt.Before(req.StartsAt) {
		return "", errors.New("ends_at must not be before starts_at")
	}
	return name, nil
}

// normalizeMember validates the role and drops duplicate grants. Unknown
// grant keys are rejected so typos do not silently do nothing.
func normalizeMember(req MemberRequest) (models.TeamRole, []string, error) {
	role := models.TeamRole(strings.ToUpper(strings.TrimSpace(req.Role)))
	if !role.Valid() {
		return "", nil, errors.New("role must be TEAM_LEAD, ORGANIZER or VOLUNTEER")
	}
	seen := map[string]bool{}
	grants := []string{}
	for _, g := range req.Grants {
		g = strings.TrimSpace(g)
		if !permissions.Key(g).Valid() {
			return "", nil, errors.New("unknown permission " + g)
		}
		if !seen[g] {
			seen[g] = true
			grants = append(grants, g)
		}
	}
	return role, grants, nil
}

// Create handles POST /events. The creator becomes the team lead.
func (h *Handler) Create(c *gin.Context) {
	actor := auth.MustActor(c)
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "name and starts_at required")
		return
	}
	name, err := req.validate()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	e := &models.Event{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Venue:       strings.TrimSpace(req.Venue),
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		CreatedBy:   actor.UserID,
	}
	if err := h.repo.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, e)
}

// List handles GET /events. Admins see every event, others their teams' events.
func (h *Handler) List(c *gin.Context) {
	actor := auth.MustActor(c)
	var member *uuid.UUID
	if !actor.IsAdmin() {
		member = &actor.UserID
	}
	list, err := h.repo.List(c.Request.Context(), member)
	if err != nil {
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, list)
}

// Get handles GET /events/:eventId.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrEventNotFound) {
		response.NotFound(c, err.Error())
		return
	}
	if err != nil {
		response.Internal(c, "failed to load event")
		return
	}
	response.OK(c, e)
}

// Update handles PUT /events/:eventId. Mount behind the team.manage gate.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "name and starts_at required")
		return
	}
	name, err := req.validate()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	e := &models.Event{ID: id, Name: name, Description: strings.TrimSpace(req.Description), Venue: strings.TrimSpace(req.Venue), StartsAt: req.StartsAt, EndsAt: req.EndsAt}
	if err := h.repo.Update(c.Request.Context(), e); err != nil {
		if errors.Is(err, ErrEventNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Internal(c, "failed to update event")
		return
	}
	updated, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load event")
		return
	}
	response.OK(c, updated)
}

// ListMembers handles GET /events/:eventId/members.
func (h *Handler) ListMembers(c *gin.Context) {
	id, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.repo.ListMembers(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load team")
		return
	}
	response.OK(c, list)
}

// UpsertMember handles PUT /events/:eventId/members. Mount behind the team.manage gate.
func (h *Handler) UpsertMember(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req MemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "email and role required")
		return
	}
	role, grants, err := normalizeMember(req)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.repo.UpsertMember(c.Request.Context(), eventID, strings.ToLower(strings.TrimSpace(req.Email)), role, grants)
	if errors.Is(err, ErrUserNotFound) {
		response.NotFound(c, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("upsert member", zap.Error(err))
		response.Internal(c, "failed to save team member")
		return
	}
	h.perms.Invalidate(c.Request.Context(), m.UserID, eventID)
	response.OK(c, m)
}

// RemoveMember handles DELETE /events/:eventId/members/:userId. Mount behind the team.manage gate.
func (h *Handler) RemoveMember(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	removed, err := h.repo.RemoveMember(c.Request.Context(), eventID, userID)
	if err != nil {
		response.Internal(c, "failed to remove team member")
		return
	}
	if !removed {
		response.NotFound(c, "not a team member")
		return
	}
	h.perms.Invalidate(c.Request.Context(), userID, eventID)
	response.NoContent(c)
}
