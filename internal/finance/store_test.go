package finance

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/models"
)

// memStore is an in-memory Store. Records are deep-copied through JSON so a
// failed mutation never leaks into stored state.
type memStore struct {
	mu       sync.Mutex
	budgets  map[uuid.UUID]*models.Budget
	expenses map[uuid.UUID]*models.Expense
}

func newMemStore() *memStore {
	return &memStore{
		budgets:  make(map[uuid.UUID]*models.Budget),
		expenses: make(map[uuid.UUID]*models.Expense),
	}
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(b, out); err != nil {
		panic(err)
	}
	return out
}

func (m *memStore) GetBudget(_ context.Context, eventID uuid.UUID) (*models.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.budgets[eventID]
	if !ok {
		return nil, ErrBudgetNotFound
	}
	return clone(b), nil
}

func (m *memStore) ListBudgets(_ context.Context, f BudgetFilter) ([]*models.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Budget{}
	for _, b := range m.budgets {
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		if f.PendingAmendment && b.PendingAmendment() == nil {
			continue
		}
		out = append(out, clone(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID.String() < out[j].EventID.String() })
	return out, nil
}

func (m *memStore) MutateBudget(_ context.Context, eventID uuid.UUID, fn func(*models.Budget) (*models.Budget, error)) (*models.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(clone(m.budgets[eventID]))
	if err != nil {
		return nil, err
	}
	next.Version++
	m.budgets[eventID] = clone(next)
	return next, nil
}

func (m *memStore) CreateExpense(_ context.Context, e *models.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expenses[e.ID] = clone(e)
	return nil
}

func (m *memStore) GetExpense(_ context.Context, id uuid.UUID) (*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.expenses[id]
	if !ok {
		return nil, ErrExpenseNotFound
	}
	return clone(e), nil
}

func (m *memStore) ListExpenses(_ context.Context, f ExpenseFilter) ([]*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Expense{}
	for _, e := range m.expenses {
		if f.EventID != nil && e.EventID != *f.EventID {
			continue
		}
		if f.IncurredBy != nil && e.IncurredBy != *f.IncurredBy {
			continue
		}
		if f.Status != nil && e.Status != *f.Status {
			continue
		}
		if f.Type != nil && e.Type != *f.Type {
			continue
		}
		out = append(out, clone(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) MutateExpense(_ context.Context, id uuid.UUID, fn func(*models.Expense) error) (*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.expenses[id]
	if !ok {
		return nil, ErrExpenseNotFound
	}
	e := clone(cur)
	if err := fn(e); err != nil {
		return nil, err
	}
	m.expenses[id] = clone(e)
	return e, nil
}

type memAuditor struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (a *memAuditor) Record(_ context.Context, e *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *memAuditor) last() *models.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return nil
	}
	return a.entries[len(a.entries)-1]
}

type memNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *memNotifier) Publish(_ uuid.UUID, event string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}
