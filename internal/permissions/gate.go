package permissions

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/response"
)

// MemberSource looks up event team membership. It returns nil, nil when the
// user is not on the team.
type MemberSource interface {
	GetMember(ctx context.Context, eventID, userID uuid.UUID) (*models.TeamMember, error)
}

// Gate answers permission questions for an actor on an event.
type Gate struct {
	source MemberSource
	cache  Cache
	logger *zap.Logger
}

// NewGate creates a gate. cache may be nil.
func NewGate(source MemberSource, cache Cache, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{source: source, cache: cache, logger: logger}
}

// Resolve returns the actor's set on an event. Platform admins hold every key.
// uuid.Nil means no event is selected and NoContextDefault applies. On a
// lookup failure the set is empty and the error is returned.
func (g *Gate) Resolve(ctx context.Context, actor auth.Actor, eventID uuid.UUID) (Set, error) {
	if actor.IsAdmin() {
		return NewSet(AllKeys...), nil
	}
	if eventID == uuid.Nil {
		return modeSet(NoContextDefault), nil
	}
	if g.cache != nil {
		s, ok, err := g.cache.Get(ctx, actor.UserID, eventID)
		if err != nil {
			g.logger.Warn("permission cache read failed", zap.Error(err))
		} else if ok {
			return s, nil
		}
	}
	m, err := g.source.GetMember(ctx, eventID, actor.UserID)
	if err != nil {
		return modeSet(ErrorDefault), err
	}
	s := ForMember(m)
	if g.cache != nil {
		if err := g.cache.Set(ctx, actor.UserID, eventID, s); err != nil {
			g.logger.Warn("permission cache write failed", zap.Error(err))
		}
	}
	return s, nil
}

// Allowed reports whether actor holds key on the event.
func (g *Gate) Allowed(ctx context.Context, actor auth.Actor, eventID uuid.UUID, key Key) bool {
	s, err := g.Resolve(ctx, actor, eventID)
	if err != nil {
		g.logger.Error("permission lookup failed",
			zap.String("user_id", actor.UserID.String()),
			zap.String("event_id", eventID.String()),
			zap.String("key", string(key)),
			zap.Error(err))
		return ErrorDefault == Permit
	}
	return s.Has(key)
}

// Invalidate drops the cached set after a membership change.
func (g *Gate) Invalidate(ctx context.Context, userID, eventID uuid.UUID) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Invalidate(ctx, userID, eventID); err != nil {
		g.logger.Warn("permission cache invalidate failed", zap.Error(err))
	}
}

// RequireParam returns a middleware that checks key against the event id in
// the named URL parameter.
func (g *Gate) RequireParam(param string, key Key) gin.HandlerFunc {
	return g.requireParam(param, "missing permission "+string(key), func(s Set) bool { return s.Has(key) })
}

// RequireMember admits platform admins and anyone on the event's team,
// whatever their keys.
func (g *Gate) RequireMember(param string) gin.HandlerFunc {
	return g.requireParam(param, "not a member of this event", func(s Set) bool { return len(s) > 0 })
}

func (g *Gate) requireParam(param, denied string, ok func(Set) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, found := auth.ActorFrom(c)
		if !found {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		eventID, err := uuid.Parse(c.Param(param))
		if err != nil {
			response.BadRequest(c, "invalid event id")
			c.Abort()
			return
		}
		s, err := g.Resolve(c.Request.Context(), actor, eventID)
		if err != nil {
			g.logger.Error("permission lookup failed",
				zap.String("user_id", actor.UserID.String()),
				zap.String("event_id", eventID.String()),
				zap.Error(err))
		}
		if !ok(s) {
			response.Forbidden(c, denied)
			c.Abort()
			return
		}
		c.Next()
	}
}

func modeSet(m Mode) Set {
	if m == Permit {
		return NewSet(AllKeys...)
	}
	return Set{}
}
