package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventdesk/backend/internal/models"
)

// ErrEventNotFound is returned when an event does not exist.
var ErrEventNotFound = errors.New("event not found")

// ErrUserNotFound is returned when a member is added by an unknown email.
var ErrUserNotFound = errors.New("no user with that email")

// Repository handles events and event_members persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, name, description, venue, starts_at, ends_at, created_by, created_at, updated_at`

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	var desc, venue *string
	if err := row.Scan(&e.ID, &e.Name, &desc, &venue, &e.StartsAt, &e.EndsAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if desc != nil {
		e.Description = *desc
	}
	if venue != nil {
		e.Venue = *venue
	}
	return &e, nil
}

// Create inserts an event and makes its creator the team lead, in one transaction.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const q = `INSERT INTO events (id, name, description, venue, starts_at, ends_at, created_by)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, q, e.Name, e.Description, e.Venue, e.StartsAt, e.EndsAt, e.CreatedBy).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return err
	}
	const qm = `INSERT INTO event_members (event_id, user_id, role, grants) VALUES ($1, $2, $3, '{}')`
	if _, err := tx.Exec(ctx, qm, e.ID, e.CreatedBy, models.TeamRoleLead); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return e, err
}

// List returns events, soonest first. A non-nil memberID limits the list to
// events the user is on the team of.
func (r *Repository) List(ctx context.Context, memberID *uuid.UUID) ([]*models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if memberID != nil {
		q += ` WHERE id IN (SELECT event_id FROM event_members WHERE user_id = $1)`
		args = append(args, *memberID)
	}
	rows, err := r.pool.Query(ctx, q+` ORDER BY starts_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Update saves name, description, venue and dates.
func (r *Repository) Update(ctx context.Context, e *models.Event) error {
	const q = `UPDATE events SET name = $2, description = $3, venue = $4, starts_at = $5, ends_at = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, e.ID, e.Name, e.Description, e.Venue, e.StartsAt, e.EndsAt).Scan(&e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrEventNotFound
	}
	return err
}

const memberColumns = `m.event_id, m.user_id, u.full_name, u.email, m.role, m.grants, m.added_at, m.updated_at`

func scanMember(row pgx.Row) (*models.TeamMember, error) {
	var m models.TeamMember
	if err := row.Scan(&m.EventID, &m.UserID, &m.FullName, &m.Email, &m.Role, &m.Grants, &m.AddedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if m.Grants == nil {
		m.Grants = []string{}
	}
	return &m, nil
}

// GetMember returns the user's membership, or nil when the user is not on the team.
func (r *Repository) GetMember(ctx context.Context, eventID, userID uuid.UUID) (*models.TeamMember, error) {
	const q = `SELECT ` + memberColumns + ` FROM event_members m JOIN users u ON u.id = m.user_id
		WHERE m.event_id = $1 AND m.user_id = $2`
	m, err := scanMember(r.pool.QueryRow(ctx, q, eventID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// ListMembers returns the event team ordered by name.
func (r *Repository) ListMembers(ctx context.Context, eventID uuid.UUID) ([]*models.TeamMember, error) {
	const q = `SELECT ` + memberColumns + ` FROM event_members m JOIN users u ON u.id = m.user_id
		WHERE m.event_id = $1 ORDER BY u.full_name`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.TeamMember{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// UpsertMember adds the user with the given email to the team, or updates
// their role and grants.
func (r *Repository) UpsertMember(ctx context.Context, eventID uuid.UUID, email string, role models.TeamRole, grants []string) (*models.TeamMember, error) {
	var userID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	const q = `INSERT INTO event_members (event_id, user_id, role, grants) VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, user_id) DO UPDATE SET role = EXCLUDED.role, grants = EXCLUDED.grants, updated_at = NOW()`
	if _, err := r.pool.Exec(ctx, q, eventID, userID, role, grants); err != nil {
		return nil, err
	}
	return r.GetMember(ctx, eventID, userID)
}

// RemoveMember takes the user off the team. It reports whether a row was removed.
func (r *Repository) RemoveMember(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM event_members WHERE event_id = $1 AND user_id = $2`, eventID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
