package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is an event managed on the platform. Budgets, expenses, attendance and
// certificates all hang off an event.
type Event struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Venue       string     `json:"venue"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	CreatedBy   uuid.UUID  `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TeamRole is a user's event-scoped role.
type TeamRole string

const (
	TeamRoleLead      TeamRole = "TEAM_LEAD"
	TeamRoleOrganizer TeamRole = "ORGANIZER"
	TeamRoleVolunteer TeamRole = "VOLUNTEER"
)

// Valid reports whether r is a known team role.
func (r TeamRole) Valid() bool {
	switch r {
	case TeamRoleLead, TeamRoleOrganizer, TeamRoleVolunteer:
		return true
	}
	return false
}

// TeamMember links a user to an event with a role and extra permission grants.
type TeamMember struct {
	EventID   uuid.UUID `json:"event_id"`
	UserID    uuid.UUID `json:"user_id"`
	FullName  string    `json:"full_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      TeamRole  `json:"role"`
	Grants    []string  `json:"grants"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
