package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventdesk/backend/internal/models"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx, so an entry can be written
// inside the transaction that made the change.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Filter narrows List. Zero values are ignored.
type Filter struct {
	EntityType string
	EntityID   *uuid.UUID
	EventID    *uuid.UUID
	Severity   models.Severity
	Limit      int
}

// Repository handles audit_logs persistence. Rows are only ever inserted.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an audit log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertAudit = `INSERT INTO audit_logs (id, entity_type, entity_id, event_id, action_type, actor_type, actor_id, actor_name, severity, reason, old_state, new_state, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// Insert writes an entry using the pool.
func (r *Repository) Insert(ctx context.Context, entry *models.AuditLog) error {
	return InsertWith(ctx, r.pool, entry)
}

// InsertWith writes an entry through ex. ID and CreatedAt are filled in when zero.
func InsertWith(ctx context.Context, ex Execer, entry *models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	var reason *string
	if entry.Reason != "" {
		reason = &entry.Reason
	}
	_, err := ex.Exec(ctx, insertAudit,
		entry.ID, entry.EntityType, entry.EntityID, entry.EventID, entry.ActionType, entry.ActorType,
		entry.ActorID, entry.ActorName, entry.Severity, reason, nullJSON(entry.OldState), nullJSON(entry.NewState), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func nullJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

// List returns entries matching f, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]*models.AuditLog, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.EntityType != "" {
		add("entity_type = $%d", f.EntityType)
	}
	if f.EntityID != nil {
		add("entity_id = $%d", *f.EntityID)
	}
	if f.EventID != nil {
		add("event_id = $%d", *f.EventID)
	}
	if f.Severity != "" {
		add("severity = $%d", f.Severity)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id, entity_type, entity_id, event_id, action_type, actor_type, actor_id, actor_name, severity, reason, old_state, new_state, created_at
		FROM audit_logs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.AuditLog{}
	for rows.Next() {
		var a models.AuditLog
		var reason *string
		if err := rows.Scan(&a.ID, &a.EntityType, &a.EntityID, &a.EventID, &a.ActionType, &a.ActorType, &a.ActorID,
			&a.ActorName, &a.Severity, &reason, &a.OldState, &a.NewState, &a.CreatedAt); err != nil {
			return nil, err
		}
		if reason != nil {
			a.Reason = *reason
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}
