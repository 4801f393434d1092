package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/models"
)

// Actor is the authenticated principal of a request. It is built once from
// the bearer token by the JWT middleware and passed explicitly to services.
type Actor struct {
	UserID uuid.UUID   `json:"user_id"`
	Email  string      `json:"email"`
	Name   string      `json:"name"`
	Role   models.Role `json:"role"`
}

// IsAdmin reports whether the actor holds the platform admin role.
func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// AuditType maps the actor to the audit log actor type.
func (a Actor) AuditType() models.ActorType {
	if a.IsAdmin() {
		return models.ActorAdmin
	}
	return models.ActorOrganizer
}

// DisplayName returns the name shown in audit trails.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}

// ContextActor is the gin context key holding the request Actor.
const ContextActor = "actor"

// ActorFrom returns the Actor stored by the JWT middleware.
func ActorFrom(c *gin.Context) (Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return Actor{}, false
	}
	a, ok := v.(Actor)
	return a, ok
}

// MustActor returns the request Actor and panics when the route is not behind the JWT middleware.
func MustActor(c *gin.Context) Actor {
	return c.MustGet(ContextActor).(Actor)
}
