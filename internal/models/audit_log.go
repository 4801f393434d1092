package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Severity classifies audit log entries.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// ActorType says what kind of principal performed an audited action.
type ActorType string

const (
	ActorAdmin     ActorType = "ADMIN"
	ActorOrganizer ActorType = "ORGANIZER"
	ActorSystem    ActorType = "SYSTEM"
)

// Entity types that show up in the audit log.
const (
	EntityBudget      = "BUDGET"
	EntityAmendment   = "AMENDMENT"
	EntityExpense     = "EXPENSE"
	EntityAttendance  = "ATTENDANCE"
	EntityCertificate = "CERTIFICATE"
)

// AuditLog is an append-only record of a privileged or state-changing action.
type AuditLog struct {
	ID         uuid.UUID       `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	EventID    *uuid.UUID      `json:"event_id,omitempty"`
	ActionType string          `json:"action_type"`
	ActorType  ActorType       `json:"actor_type"`
	ActorID    *uuid.UUID      `json:"actor_id,omitempty"`
	ActorName  string          `json:"actor_name"`
	Severity   Severity        `json:"severity"`
	Reason     string          `json:"reason,omitempty"`
	OldState   json.RawMessage `json:"old_state,omitempty"`
	NewState   json.RawMessage `json:"new_state,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
