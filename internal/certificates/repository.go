package certificates

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
	ErrNotFound       = errors.New("certificate not found")
	ErrAlreadyRevoked = errors.New("certificate already revoked")
	ErrAlreadyIssued  = errors.New("certificate already issued to this participant")
)

// Repository handles certificate persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a certificate repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const certificateColumns = `id, event_id, participant_email, participant_name, code, status, issued_by, issued_at,
	revoked_by, revoked_at, COALESCE(revoked_reason, '')`

func scanCertificate(row pgx.Row) (*models.Certificate, error) {
	var c models.Certificate
	err := row.Scan(&c.ID, &c.EventID, &c.ParticipantEmail, &c.ParticipantName, &c.Code, &c.Status,
		&c.IssuedBy, &c.IssuedAt, &c.RevokedBy, &c.RevokedAt, &c.RevokedReason)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Issue inserts a certificate. A participant holds at most one ISSUED
// certificate per event.
func (r *Repository) Issue(ctx context.Context, c *models.Certificate) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO certificates (id, event_id, participant_email, participant_name, code, status, issued_by, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id, participant_email) WHERE status = 'ISSUED' DO NOTHING`,
		c.ID, c.EventID, c.ParticipantEmail, c.ParticipantName, c.Code, c.Status, c.IssuedBy, c.IssuedAt)
	if err != nil {
		return fmt.Errorf("insert certificate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyIssued
	}
	return nil
}

// Get returns one certificate.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	return r.getWhere(ctx, `id = $1`, id)
}

// GetByCode returns the certificate with a verification code.
func (r *Repository) GetByCode(ctx context.Context, code string) (*models.Certificate, error) {
	return r.getWhere(ctx, `code = $1`, code)
}

func (r *Repository) getWhere(ctx context.Context, cond string, arg any) (*models.Certificate, error) {
	c, err := scanCertificate(r.pool.QueryRow(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE `+cond, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get certificate: %w", err)
	}
	return c, nil
}

// ListByEvent returns the event's certificates, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.Certificate, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE event_id = $1 ORDER BY issued_at DESC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()
	var list []*models.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// Revoke marks a certificate REVOKED and writes the CRITICAL audit entry in
// the same transaction. reason must already be validated.
func (r *Repository) Revoke(ctx context.Context, id uuid.UUID, actor auth.Actor, reason string, at time.Time) (*models.Certificate, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	before, err := scanCertificate(tx.QueryRow(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock certificate: %w", err)
	}
	after, err := revoke(before, actor, reason, at)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `UPDATE certificates SET status = $2, revoked_by = $3, revoked_at = $4, revoked_reason = $5 WHERE id = $1`,
		id, after.Status, after.RevokedBy, after.RevokedAt, after.RevokedReason)
	if err != nil {
		return nil, fmt.Errorf("update certificate: %w", err)
	}
	if err := audit.InsertWith(ctx, tx, revocationEntry(actor, before, after, at)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return after, nil
}
