package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventdesk/backend/internal/audit"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
)

var (
	ErrNotFound           = errors.New("attendance record not found")
	ErrAlreadyInvalidated = errors.New("attendance already invalidated")
	ErrAlreadyCheckedIn   = errors.New("participant already checked in")
)

// Repository handles attendance persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const attendanceColumns = `id, event_id, participant_email, participant_name, method, status, checked_in_at,
	invalidated_by, invalidated_at, COALESCE(invalidated_reason, '')`

func scanAttendance(row pgx.Row) (*models.Attendance, error) {
	var a models.Attendance
	err := row.Scan(&a.ID, &a.EventID, &a.ParticipantEmail, &a.ParticipantName, &a.Method, &a.Status,
		&a.CheckedInAt, &a.InvalidatedBy, &a.InvalidatedAt, &a.InvalidatedReason)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CheckIn inserts a VALID check-in. A participant holds at most one VALID
// check-in per event.
func (r *Repository) CheckIn(ctx context.Context, a *models.Attendance) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO attendance (id, event_id, participant_email, participant_name, method, status, checked_in_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id, participant_email) WHERE status = 'VALID' DO NOTHING`,
		a.ID, a.EventID, a.ParticipantEmail, a.ParticipantName, a.Method, a.Status, a.CheckedInAt)
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyCheckedIn
	}
	return nil
}

// Get returns one record.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Attendance, error) {
	a, err := scanAttendance(r.pool.QueryRow(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return a, nil
}

// ListByEvent returns the event's check-ins, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.Attendance, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE event_id = $1 ORDER BY checked_in_at DESC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()
	var list []*models.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// CountValid returns the number of VALID check-ins for an event.
func (r *Repository) CountValid(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM attendance WHERE event_id = $1 AND status = 'VALID'`, eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return n, nil
}

// Invalidate marks a record INVALIDATED and writes the CRITICAL audit entry in
// the same transaction. reason must already be validated.
func (r *Repository) Invalidate(ctx context.Context, id uuid.UUID, actor auth.Actor, reason string, at time.Time) (*models.Attendance, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	before, err := scanAttendance(tx.QueryRow(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock attendance: %w", err)
	}
	after, err := invalidate(before, actor, reason, at)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `UPDATE attendance SET status = $2, invalidated_by = $3, invalidated_at = $4, invalidated_reason = $5 WHERE id = $1`,
		id, after.Status, after.InvalidatedBy, after.InvalidatedAt, after.InvalidatedReason)
	if err != nil {
		return nil, fmt.Errorf("update attendance: %w", err)
	}
	if err := audit.InsertWith(ctx, tx, invalidationEntry(actor, before, after, at)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return after, nil
}
