package auth

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/models"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("secret", 1)
	u := &models.User{ID: uuid.New(), Email: "lead@example.com", FullName: "Team Lead", Role: models.RoleOrganizer}
	token, err := svc.Generate(u)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatal(err)
	}
	actor := claims.Actor()
	if actor.UserID != u.ID || actor.Role != models.RoleOrganizer || actor.DisplayName() != "Team Lead" {
		t.Fatalf("actor = %+v", actor)
	}
	if actor.IsAdmin() || actor.AuditType() != models.ActorOrganizer {
		t.Fatal("organizer treated as admin")
	}
}

func TestJWTRejects(t *testing.T) {
	u := &models.User{ID: uuid.New(), Email: "a@example.com", Role: models.RoleAdmin}
	other, _ := NewJWTService("other-secret", 1).Generate(u)
	expired, _ := NewJWTService("secret", -1).Generate(u)

	svc := NewJWTService("secret", 1)
	for name, token := range map[string]string{"wrong secret": other, "expired": expired, "garbage": "not.a.token"} {
		if _, err := svc.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: err = %v", name, err)
		}
	}
}

func TestActorDisplayName(t *testing.T) {
	a := Actor{Email: "admin@example.com", Role: models.RoleAdmin}
	if a.DisplayName() != "admin@example.com" || a.AuditType() != models.ActorAdmin {
		t.Fatalf("actor = %+v", a)
	}
}
