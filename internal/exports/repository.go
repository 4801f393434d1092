package exports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventdesk/backend/internal/models"
)

var ErrNotFound = errors.New("export not found")

// Repository handles report_exports persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a report export repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a queued export.
func (r *Repository) Create(ctx context.Context, e *models.ReportExport) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO report_exports (id, kind, status, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Kind, e.Status, e.RequestedBy, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert export: %w", err)
	}
	return nil
}

// Get returns one export.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.ReportExport, error) {
	var e models.ReportExport
	err := r.pool.QueryRow(ctx, `
		SELECT id, kind, status, COALESCE(s3_key, ''), COALESCE(error_message, ''), requested_by, created_at, completed_at
		FROM report_exports WHERE id = $1`, id).
		Scan(&e.ID, &e.Kind, &e.Status, &e.S3Key, &e.ErrorMessage, &e.RequestedBy, &e.CreatedAt, &e.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get export: %w", err)
	}
	return &e, nil
}

// MarkCompleted records the uploaded object key.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, key string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE report_exports SET status = $2, s3_key = $3, error_message = NULL, completed_at = $4 WHERE id = $1`,
		id, models.ExportStatusCompleted, key, at)
	if err != nil {
		return fmt.Errorf("complete export: %w", err)
	}
	return nil
}

// MarkFailed records the last error. The export stays failed until requested again.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, msg string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE report_exports SET status = $2, error_message = $3, completed_at = $4 WHERE id = $1`,
		id, models.ExportStatusFailed, msg, at)
	if err != nil {
		return fmt.Errorf("fail export: %w", err)
	}
	return nil
}
