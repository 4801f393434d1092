package finance

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// ReportKind names a CSV export.
type ReportKind string

const (
	ReportEventWise    ReportKind = "event-wise"
	ReportCategoryWise ReportKind = "category-wise"
	ReportOverBudget   ReportKind = "over-budget"
	ReportExpenses     ReportKind = "expenses"
)

// ParseReportKind validates a report type from a query string or job payload.
func ParseReportKind(s string) (ReportKind, error) {
	switch k := ReportKind(s); k {
	case ReportEventWise, ReportCategoryWise, ReportOverBudget, ReportExpenses:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidReportKind, s)
}

// Filename is the download name for a report generated at t.
func (k ReportKind) Filename(t time.Time) string {
	return fmt.Sprintf("%s-report-%s.csv", k, t.UTC().Format("20060102-150405"))
}

// ExportCSV renders the report of the given kind to w.
func (s *Service) ExportCSV(ctx context.Context, kind ReportKind, w io.Writer) error {
	budgets, expenses, err := s.reportInputs(ctx)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	switch kind {
	case ReportEventWise:
		_ = cw.Write([]string{"event_id", "budget_status", "total_requested", "total_allocated", "total_spent", "pending", "remaining", "expense_count"})
		for _, r := range BuildEventReports(budgets, expenses) {
			_ = cw.Write([]string{
				r.EventID.String(), string(r.BudgetStatus), r.TotalRequestedAmount.StringFixed(2),
				r.TotalAllocatedAmount.StringFixed(2), r.TotalSpent.StringFixed(2), r.PendingAmount.StringFixed(2),
				r.Remaining.StringFixed(2), fmt.Sprint(r.ExpenseCount),
			})
		}
	case ReportCategoryWise:
		_ = cw.Write([]string{"category", "total_requested", "total_allocated", "total_spent", "remaining", "event_count"})
		for _, r := range BuildCategoryReports(budgets, expenses) {
			_ = cw.Write([]string{
				string(r.Category), r.TotalRequestedAmount.StringFixed(2), r.TotalAllocatedAmount.StringFixed(2),
				r.TotalSpent.StringFixed(2), r.Remaining.StringFixed(2), fmt.Sprint(r.EventCount),
			})
		}
	case ReportOverBudget:
		_ = cw.Write([]string{"event_id", "category", "allocated", "spent", "overrun"})
		for _, r := range BuildOverBudget(budgets, expenses) {
			_ = cw.Write([]string{
				r.EventID.String(), string(r.Category), r.AllocatedAmount.StringFixed(2),
				r.Spent.StringFixed(2), r.Overrun.StringFixed(2),
			})
		}
	case ReportExpenses:
		_ = cw.Write([]string{"expense_id", "event_id", "incurred_by", "category", "amount", "type", "status", "description", "payment_reference", "created_at"})
		for _, e := range expenses {
			_ = cw.Write([]string{
				e.ID.String(), e.EventID.String(), e.IncurredBy.String(), string(e.Category), e.Amount.StringFixed(2),
				string(e.Type), string(e.Status), e.Description, e.PaymentReference, e.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidReportKind, kind)
	}
	cw.Flush()
	return cw.Error()
}
