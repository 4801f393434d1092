package finance

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eventdesk/backend/internal/models"
)

// EventReport summarizes one event budget. Spent counts APPROVED and
// REIMBURSED expenses; Pending is what still awaits review.
type EventReport struct {
	EventID              uuid.UUID           `json:"event_id"`
	BudgetStatus         models.BudgetStatus `json:"budget_status"`
	TotalRequestedAmount decimal.Decimal     `json:"total_requested_amount"`
	TotalAllocatedAmount decimal.Decimal     `json:"total_allocated_amount"`
	TotalSpent           decimal.Decimal     `json:"total_spent"`
	PendingAmount        decimal.Decimal     `json:"pending_amount"`
	Remaining            decimal.Decimal     `json:"remaining"`
	ExpenseCount         int                 `json:"expense_count"`
}

// CategoryReport aggregates one category across every event.
type CategoryReport struct {
	Category             models.CategoryName `json:"category"`
	TotalRequestedAmount decimal.Decimal     `json:"total_requested_amount"`
	TotalAllocatedAmount decimal.Decimal     `json:"total_allocated_amount"`
	TotalSpent           decimal.Decimal     `json:"total_spent"`
	Remaining            decimal.Decimal     `json:"remaining"`
	EventCount           int                 `json:"event_count"`
}

// OverBudgetItem is an event category whose counted spend exceeds its allocation.
type OverBudgetItem struct {
	EventID         uuid.UUID           `json:"event_id"`
	Category        models.CategoryName `json:"category"`
	AllocatedAmount decimal.Decimal     `json:"allocated_amount"`
	Spent           decimal.Decimal     `json:"spent"`
	Overrun         decimal.Decimal     `json:"overrun"`
}

type spendKey struct {
	event    uuid.UUID
	category models.CategoryName
}

type spendIndex struct {
	counted map[spendKey]decimal.Decimal
	pending map[uuid.UUID]decimal.Decimal
	count   map[uuid.UUID]int
}

func indexSpend(expenses []*models.Expense) spendIndex {
	idx := spendIndex{
		counted: make(map[spendKey]decimal.Decimal),
		pending: make(map[uuid.UUID]decimal.Decimal),
		count:   make(map[uuid.UUID]int),
	}
	for _, e := range expenses {
		idx.count[e.EventID]++
		switch {
		case e.Counted():
			k := spendKey{e.EventID, e.Category}
			idx.counted[k] = idx.counted[k].Add(e.Amount)
		case e.Status == models.ExpensePending:
			idx.pending[e.EventID] = idx.pending[e.EventID].Add(e.Amount)
		}
	}
	return idx
}

func (idx spendIndex) eventSpent(eventID uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for k, v := range idx.counted {
		if k.event == eventID {
			total = total.Add(v)
		}
	}
	return total
}

// BuildEventReports produces one row per budget, ordered by event id.
func BuildEventReports(budgets []*models.Budget, expenses []*models.Expense) []EventReport {
	idx := indexSpend(expenses)
	out := make([]EventReport, 0, len(budgets))
	for _, b := range budgets {
		spent := idx.eventSpent(b.EventID)
		out = append(out, EventReport{
			EventID:              b.EventID,
			BudgetStatus:         b.Status,
			TotalRequestedAmount: b.TotalRequestedAmount,
			TotalAllocatedAmount: b.TotalAllocatedAmount,
			TotalSpent:           spent,
			PendingAmount:        idx.pending[b.EventID].Add(decimal.Zero),
			Remaining:            b.TotalAllocatedAmount.Sub(spent),
			ExpenseCount:         idx.count[b.EventID],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID.String() < out[j].EventID.String() })
	return out
}

// BuildCategoryReports produces one row per fixed category that appears in
// any budget, in category display order.
func BuildCategoryReports(budgets []*models.Budget, expenses []*models.Expense) []CategoryReport {
	idx := indexSpend(expenses)
	rows := make(map[models.CategoryName]*CategoryReport)
	for _, b := range budgets {
		for _, c := range b.Categories {
			r, ok := rows[c.Name]
			if !ok {
				r = &CategoryReport{Category: c.Name}
				rows[c.Name] = r
			}
			r.TotalRequestedAmount = r.TotalRequestedAmount.Add(c.RequestedAmount)
			r.TotalAllocatedAmount = r.TotalAllocatedAmount.Add(c.AllocatedAmount)
			r.TotalSpent = r.TotalSpent.Add(idx.counted[spendKey{b.EventID, c.Name}])
			r.EventCount++
		}
	}
	out := make([]CategoryReport, 0, len(rows))
	for _, name := range models.Categories {
		if r, ok := rows[name]; ok {
			r.Remaining = r.TotalAllocatedAmount.Sub(r.TotalSpent)
			out = append(out, *r)
		}
	}
	return out
}

// BuildOverBudget lists every event category where counted spend exceeds the
// allocation, largest overrun first.
func BuildOverBudget(budgets []*models.Budget, expenses []*models.Expense) []OverBudgetItem {
	idx := indexSpend(expenses)
	out := []OverBudgetItem{}
	for _, b := range budgets {
		for _, c := range b.Categories {
			spent := idx.counted[spendKey{b.EventID, c.Name}]
			if spent.GreaterThan(c.AllocatedAmount) {
				out = append(out, OverBudgetItem{
					EventID:         b.EventID,
					Category:        c.Name,
					AllocatedAmount: c.AllocatedAmount,
					Spent:           spent,
					Overrun:         spent.Sub(c.AllocatedAmount),
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Overrun.GreaterThan(out[j].Overrun) })
	return out
}

func (s *Service) reportInputs(ctx context.Context) ([]*models.Budget, []*models.Expense, error) {
	budgets, err := s.store.ListBudgets(ctx, BudgetFilter{})
	if err != nil {
		return nil, nil, err
	}
	expenses, err := s.store.ListExpenses(ctx, ExpenseFilter{})
	if err != nil {
		return nil, nil, err
	}
	return budgets, expenses, nil
}

// EventReports returns the per-event summary.
func (s *Service) EventReports(ctx context.Context) ([]EventReport, error) {
	budgets, expenses, err := s.reportInputs(ctx)
	if err != nil {
		return nil, err
	}
	return BuildEventReports(budgets, expenses), nil
}

// CategoryReports returns the per-category summary.
func (s *Service) CategoryReports(ctx context.Context) ([]CategoryReport, error) {
	budgets, expenses, err := s.reportInputs(ctx)
	if err != nil {
		return nil, err
	}
	return BuildCategoryReports(budgets, expenses), nil
}

// OverBudget returns the categories that overran their allocation.
func (s *Service) OverBudget(ctx context.Context) ([]OverBudgetItem, error) {
	budgets, expenses, err := s.reportInputs(ctx)
	if err != nil {
		return nil, err
	}
	return BuildOverBudget(budgets, expenses), nil
}
