package finance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/eventdesk/backend/internal/models"
)

// Repository is the Postgres Store. Budget sub-documents (categories, history,
// amendments) live in JSONB columns; totals are kept in NUMERIC columns for reporting.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a finance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const budgetColumns = `id, event_id, status, categories,
	approval_notes, approved_by, created_by, history, amendments, version, created_at, updated_at`

func scanBudget(row pgx.Row) (*models.Budget, error) {
	var b models.Budget
	var cats, hist, amends []byte
	var notes *string
	if err := row.Scan(&b.ID, &b.EventID, &b.Status, &cats, &notes, &b.ApprovedBy,
		&b.CreatedBy, &hist, &amends, &b.Version, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cats, &b.Categories); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	if err := json.Unmarshal(hist, &b.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if err := json.Unmarshal(amends, &b.Amendments); err != nil {
		return nil, fmt.Errorf("decode amendments: %w", err)
	}
	if notes != nil {
		b.ApprovalNotes = *notes
	}
	// Totals are derived from the categories; the total_* columns only
	// serve SQL reports.
	b.RecomputeTotals()
	return &b, nil
}

// GetBudget returns the budget of an event.
func (r *Repository) GetBudget(ctx context.Context, eventID uuid.UUID) (*models.Budget, error) {
	b, err := scanBudget(r.pool.QueryRow(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE event_id = $1`, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBudgetNotFound
	}
	return b, err
}

// ListBudgets returns budgets matching f, most recently updated first.
func (r *Repository) ListBudgets(ctx context.Context, f BudgetFilter) ([]*models.Budget, error) {
	var where []string
	var args []any
	if f.Status != nil {
		args = append(args, *f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.PendingAmendment {
		where = append(where, `amendments @> '[{"status":"PENDING"}]'`)
	}
	q := `SELECT ` + budgetColumns + ` FROM budgets`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := r.pool.Query(ctx, q+" ORDER BY updated_at DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// MutateBudget runs fn on the event budget inside one transaction. The row is
// locked with FOR UPDATE; an advisory lock on the event id also serializes the
// very first request, when there is no row to lock yet.
func (r *Repository) MutateBudget(ctx context.Context, eventID uuid.UUID, fn func(current *models.Budget) (*models.Budget, error)) (*models.Budget, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "budget:"+eventID.String()); err != nil {
		return nil, fmt.Errorf("lock budget: %w", err)
	}
	current, err := scanBudget(tx.QueryRow(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE event_id = $1 FOR UPDATE`, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		current = nil
	} else if err != nil {
		return nil, err
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	cats, err := json.Marshal(next.Categories)
	if err != nil {
		return nil, err
	}
	hist, err := json.Marshal(next.History)
	if err != nil {
		return nil, err
	}
	amendments := next.Amendments
	if amendments == nil {
		amendments = []models.Amendment{}
	}
	amends, err := json.Marshal(amendments)
	if err != nil {
		return nil, err
	}
	var notes *string
	if next.ApprovalNotes != "" {
		notes = &next.ApprovalNotes
	}

	if current == nil {
		const q = `INSERT INTO budgets (id, event_id, status, categories, total_requested_amount, total_allocated_amount,
			approval_notes, approved_by, created_by, history, amendments, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, $11, 1, $12, $13)
			RETURNING version`
		err = tx.QueryRow(ctx, q, next.ID, next.EventID, next.Status, cats, next.TotalRequestedAmount.String(),
			next.TotalAllocatedAmount.String(), notes, next.ApprovedBy, next.CreatedBy, hist, amends, next.CreatedAt, next.UpdatedAt).
			Scan(&next.Version)
	} else {
		const q = `UPDATE budgets SET status = $2, categories = $3, total_requested_amount = $4::numeric,
			total_allocated_amount = $5::numeric, approval_notes = $6, approved_by = $7, history = $8, amendments = $9,
			version = version + 1, updated_at = $10
			WHERE id = $1
			RETURNING version`
		err = tx.QueryRow(ctx, q, next.ID, next.Status, cats, next.TotalRequestedAmount.String(),
			next.TotalAllocatedAmount.String(), notes, next.ApprovedBy, hist, amends, next.UpdatedAt).
			Scan(&next.Version)
	}
	if err != nil {
		return nil, fmt.Errorf("save budget: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return next, nil
}

const expenseColumns = `id, event_id, incurred_by, category, amount::text, description, type, status, receipt_url,
	admin_notes, approved_by, approved_at, reimbursed_by, reimbursed_at, payment_reference, created_at, updated_at`

func scanExpense(row pgx.Row) (*models.Expense, error) {
	var e models.Expense
	var amount string
	var receipt, notes, ref *string
	if err := row.Scan(&e.ID, &e.EventID, &e.IncurredBy, &e.Category, &amount, &e.Description, &e.Type, &e.Status,
		&receipt, &notes, &e.ApprovedBy, &e.ApprovedAt, &e.ReimbursedBy, &e.ReimbursedAt, &ref, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if receipt != nil {
		e.ReceiptURL = *receipt
	}
	if notes != nil {
		e.AdminNotes = *notes
	}
	if ref != nil {
		e.PaymentReference = *ref
	}
	return &e, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateExpense inserts a new expense.
func (r *Repository) CreateExpense(ctx context.Context, e *models.Expense) error {
	const q = `INSERT INTO expenses (id, event_id, incurred_by, category, amount, description, type, status, receipt_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11)`
	_, err := r.pool.Exec(ctx, q, e.ID, e.EventID, e.IncurredBy, e.Category, e.Amount.String(), e.Description,
		e.Type, e.Status, nullString(e.ReceiptURL), e.CreatedAt, e.UpdatedAt)
	return err
}

// GetExpense returns an expense by ID.
func (r *Repository) GetExpense(ctx context.Context, id uuid.UUID) (*models.Expense, error) {
	e, err := scanExpense(r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExpenseNotFound
	}
	return e, err
}

// ListExpenses returns expenses matching f, oldest first.
func (r *Repository) ListExpenses(ctx context.Context, f ExpenseFilter) ([]*models.Expense, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.EventID != nil {
		add("event_id = $%d", *f.EventID)
	}
	if f.IncurredBy != nil {
		add("incurred_by = $%d", *f.IncurredBy)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.Type != nil {
		add("type = $%d", *f.Type)
	}
	q := `SELECT ` + expenseColumns + ` FROM expenses`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := r.pool.Query(ctx, q+" ORDER BY created_at", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// MutateExpense locks the expense row, runs fn and saves the result.
func (r *Repository) MutateExpense(ctx context.Context, id uuid.UUID, fn func(e *models.Expense) error) (*models.Expense, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	e, err := scanExpense(tx.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExpenseNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := fn(e); err != nil {
		return nil, err
	}
	const q = `UPDATE expenses SET category = $2, amount = $3::numeric, description = $4, status = $5, receipt_url = $6,
		admin_notes = $7, approved_by = $8, approved_at = $9, reimbursed_by = $10, reimbursed_at = $11,
		payment_reference = $12, updated_at = $13
		WHERE id = $1`
	if _, err := tx.Exec(ctx, q, e.ID, e.Category, e.Amount.String(), e.Description, e.Status, nullString(e.ReceiptURL),
		nullString(e.AdminNotes), e.ApprovedBy, e.ApprovedAt, e.ReimbursedBy, e.ReimbursedAt,
		nullString(e.PaymentReference), e.UpdatedAt); err != nil {
		return nil, fmt.Errorf("save expense: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return e, nil
}
