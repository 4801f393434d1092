package finance

import (
	"context"

	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/models"
)

// BudgetFilter narrows ListBudgets.
type BudgetFilter struct {
	Status           *models.BudgetStatus
	PendingAmendment bool
}

// ExpenseFilter narrows ListExpenses. Zero value lists everything.
type ExpenseFilter struct {
	EventID    *uuid.UUID
	IncurredBy *uuid.UUID
	Status     *models.ExpenseStatus
	Type       *models.ExpenseType
}

// Store persists budgets and expenses. Mutate* run fn while holding an
// exclusive lock on the record, so concurrent writers are serialized and each
// sees the result of the previous one. When fn returns an error nothing is written.
type Store interface {
	GetBudget(ctx context.Context, eventID uuid.UUID) (*models.Budget, error)
	ListBudgets(ctx context.Context, f BudgetFilter) ([]*models.Budget, error)
	// MutateBudget passes nil to fn when the event has no budget yet.
	MutateBudget(ctx context.Context, eventID uuid.UUID, fn func(current *models.Budget) (*models.Budget, error)) (*models.Budget, error)

	CreateExpense(ctx context.Context, e *models.Expense) error
	GetExpense(ctx context.Context, id uuid.UUID) (*models.Expense, error)
	ListExpenses(ctx context.Context, f ExpenseFilter) ([]*models.Expense, error)
	MutateExpense(ctx context.Context, id uuid.UUID, fn func(e *models.Expense) error) (*models.Expense, error)
}
