package audit

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/response"
)

// Handler serves the audit log to admins.
type Handler struct {
	repo *Repository
}

// NewHandler creates an audit log handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /audit-logs?entity_type=&entity_id=&event_id=&severity=&limit=.
// Mount behind RequireRole(admin).
func (h *Handler) List(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	logs, err := h.repo.List(c.Request.Context(), f)
	if err != nil {
		response.Internal(c, "failed to load audit logs")
		return
	}
	response.OK(c, logs)
}

type filterError string

func (e filterError) Error() string { return string(e) }

func parseFilter(c *gin.Context) (Filter, error) {
	f := Filter{EntityType: c.Query("entity_type")}
	if s := c.Query("entity_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return f, filterError("invalid entity_id")
		}
		f.EntityID = &id
	}
	if s := c.Query("event_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return f, filterError("invalid event_id")
		}
		f.EventID = &id
	}
	if s := c.Query("severity"); s != "" {
		sev := models.Severity(s)
		switch sev {
		case models.SeverityInfo, models.SeverityWarning, models.SeverityCritical:
			f.Severity = sev
		default:
			return f, filterError("severity must be INFO, WARNING or CRITICAL")
		}
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return f, filterError("invalid limit")
		}
		f.Limit = n
	}
	return f, nil
}
