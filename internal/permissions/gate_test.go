package permissions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
)

type fakeSource struct {
	members map[uuid.UUID]*models.TeamMember
	err     error
	calls   int
}

func (f *fakeSource) GetMember(_ context.Context, eventID, userID uuid.UUID) (*models.TeamMember, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	m := f.members[userID]
	if m == nil || m.EventID != eventID {
		return nil, nil
	}
	return m, nil
}

type memCache struct {
	sets map[string]Set
}

func (m *memCache) Get(_ context.Context, u, e uuid.UUID) (Set, bool, error) {
	s, ok := m.sets[cacheKey(u, e)]
	return s, ok, nil
}

func (m *memCache) Set(_ context.Context, u, e uuid.UUID, s Set) error {
	m.sets[cacheKey(u, e)] = s
	return nil
}

func (m *memCache) Invalidate(_ context.Context, u, e uuid.UUID) error {
	delete(m.sets, cacheKey(u, e))
	return nil
}

func TestForMember(t *testing.T) {
	volunteer := &models.TeamMember{Role: models.TeamRoleVolunteer, Grants: []string{"finance.view", "bogus"}}
	s := ForMember(volunteer)
	if !s.Has(FinanceView) || !s.Has(FinanceLogExpense) {
		t.Fatalf("volunteer set = %v", s.Keys())
	}
	if s.Has(FinanceRequestBudget) || s.Has(Key("bogus")) {
		t.Fatalf("volunteer should not hold %v", s.Keys())
	}
	if len(ForMember(nil)) != 0 {
		t.Fatal("non-member should hold nothing")
	}
	if len(ForMember(&models.TeamMember{Role: models.TeamRoleLead})) != len(AllKeys) {
		t.Fatal("team lead should hold every key")
	}
}

func TestGateModes(t *testing.T) {
	ctx := context.Background()
	eventID := uuid.New()
	user := auth.Actor{UserID: uuid.New(), Role: models.RoleOrganizer}
	src := &fakeSource{members: map[uuid.UUID]*models.TeamMember{
		user.UserID: {EventID: eventID, UserID: user.UserID, Role: models.TeamRoleVolunteer},
	}}
	g := NewGate(src, nil, nil)

	if !g.Allowed(ctx, user, uuid.Nil, TeamManage) {
		t.Fatal("no event context should permit")
	}
	if g.Allowed(ctx, user, eventID, FinanceRequestBudget) {
		t.Fatal("volunteer should not request budgets")
	}
	if !g.Allowed(ctx, user, eventID, FinanceLogExpense) {
		t.Fatal("volunteer should log expenses")
	}
	if g.Allowed(ctx, user, uuid.New(), FinanceView) {
		t.Fatal("non-member should be denied")
	}

	src.err = errors.New("db down")
	if g.Allowed(ctx, user, eventID, FinanceLogExpense) {
		t.Fatal("lookup error should deny")
	}

	admin := auth.Actor{UserID: uuid.New(), Role: models.RoleAdmin}
	if !g.Allowed(ctx, admin, eventID, TeamManage) {
		t.Fatal("admin should hold every key")
	}
}

func TestGateCacheAndInvalidate(t *testing.T) {
	ctx := context.Background()
	eventID := uuid.New()
	user := auth.Actor{UserID: uuid.New(), Role: models.RoleOrganizer}
	member := &models.TeamMember{EventID: eventID, UserID: user.UserID, Role: models.TeamRoleVolunteer}
	src := &fakeSource{members: map[uuid.UUID]*models.TeamMember{user.UserID: member}}
	g := NewGate(src, &memCache{sets: map[string]Set{}}, nil)

	g.Allowed(ctx, user, eventID, FinanceView)
	g.Allowed(ctx, user, eventID, FinanceView)
	if src.calls != 1 {
		t.Fatalf("source calls = %d, want 1", src.calls)
	}

	member.Role = models.TeamRoleLead
	if g.Allowed(ctx, user, eventID, TeamManage) {
		t.Fatal("cached set should still apply before invalidation")
	}
	g.Invalidate(ctx, user.UserID, eventID)
	if !g.Allowed(ctx, user, eventID, TeamManage) {
		t.Fatal("promotion should apply after invalidation")
	}
}

func TestRequireParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	eventID := uuid.New()
	user := auth.Actor{UserID: uuid.New(), Role: models.RoleOrganizer}
	src := &fakeSource{members: map[uuid.UUID]*models.TeamMember{
		user.UserID: {EventID: eventID, UserID: user.UserID, Role: models.TeamRoleVolunteer},
	}}
	g := NewGate(src, nil, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(auth.ContextActor, user) })
	r.GET("/events/:eventId/budget", g.RequireParam("eventId", FinanceRequestBudget), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/events/:eventId/expenses", g.RequireParam("eventId", FinanceLogExpense), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/events/:eventId", g.RequireMember("eventId"), func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		path string
		want int
	}{
		{"/events/" + eventID.String() + "/budget", http.StatusForbidden},
		{"/events/" + eventID.String() + "/expenses", http.StatusOK},
		{"/events/not-a-uuid/expenses", http.StatusBadRequest},
		{"/events/" + eventID.String(), http.StatusOK},
		{"/events/" + uuid.New().String(), http.StatusForbidden},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if w.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.path, w.Code, tc.want)
		}
	}
}
