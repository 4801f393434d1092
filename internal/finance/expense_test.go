package finance

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/models"
)

func TestCheckExpenseTransition_Total(t *testing.T) {
	legal := map[[2]models.ExpenseStatus]bool{
		{models.ExpensePending, models.ExpenseApproved}:         true,
		{models.ExpensePending, models.ExpenseChangesRequested}: true,
		{models.ExpensePending, models.ExpenseRejected}:         true,
		{models.ExpenseApproved, models.ExpenseReimbursed}:      true,
		{models.ExpenseChangesRequested, models.ExpensePending}: true,
	}
	for _, from := range ExpenseStatuses {
		for _, to := range ExpenseStatuses {
			err := CheckExpenseTransition(from, to)
			if legal[[2]models.ExpenseStatus{from, to}] {
				if err != nil {
					t.Fatalf("%s -> %s: unexpected %v", from, to, err)
				}
				continue
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("%s -> %s: expected ErrInvalidTransition, got %v", from, to, err)
			}
		}
	}
}

func newTestExpense(t *testing.T, typ models.ExpenseType) *models.Expense {
	t.Helper()
	e, err := newExpense(ExpenseInput{
		EventID: uuid.New(), Category: models.CategoryFood, Amount: dec("3000"), Type: typ, Description: "snacks",
	}, uuid.New(), testNow)
	if err != nil {
		t.Fatalf("newExpense: %v", err)
	}
	return e
}

func TestNewExpense_Validation(t *testing.T) {
	base := ExpenseInput{EventID: uuid.New(), Category: models.CategoryFood, Amount: dec("10"), Type: models.ExpenseAdminPaid, Description: "tea"}
	cases := []struct {
		name   string
		mutate func(*ExpenseInput)
		want   error
	}{
		{"zero amount", func(in *ExpenseInput) { in.Amount = dec("0") }, ErrInvalidAmount},
		{"negative amount", func(in *ExpenseInput) { in.Amount = dec("-5") }, ErrInvalidAmount},
		{"sub-cent amount", func(in *ExpenseInput) { in.Amount = dec("0.004") }, ErrAmountPrecision},
		{"amount too large", func(in *ExpenseInput) { in.Amount = dec("1000000000000") }, ErrAmountOutOfRange},
		{"bad category", func(in *ExpenseInput) { in.Category = "Snacks" }, ErrInvalidCategory},
		{"bad type", func(in *ExpenseInput) { in.Type = "CASH" }, ErrInvalidExpenseType},
		{"blank description", func(in *ExpenseInput) { in.Description = "  " }, ErrDescriptionRequired},
		{"no event", func(in *ExpenseInput) { in.EventID = uuid.Nil }, ErrEventRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			if _, err := newExpense(in, uuid.New(), testNow); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
	e, err := newExpense(base, uuid.New(), testNow)
	if err != nil || e.Status != models.ExpensePending {
		t.Fatalf("valid input: %v, %+v", err, e)
	}
}

func TestReimburse_OnlyApprovedPersonalSpend(t *testing.T) {
	admin := uuid.New()

	personal := newTestExpense(t, models.ExpensePersonalSpend)
	if err := applyExpenseStatus(personal, admin, StatusUpdate{Status: models.ExpenseReimbursed}, testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reimburse PENDING: got %v", err)
	}
	if err := applyExpenseStatus(personal, admin, StatusUpdate{Status: models.ExpenseApproved}, testNow); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := applyExpenseStatus(personal, admin, StatusUpdate{Status: models.ExpenseReimbursed, PaymentReference: "UTR123"}, testNow); err != nil {
		t.Fatalf("reimburse: %v", err)
	}
	if personal.ReimbursedBy == nil || *personal.ReimbursedBy != admin || personal.PaymentReference != "UTR123" {
		t.Fatalf("reimbursement fields not set: %+v", personal)
	}

	adminPaid := newTestExpense(t, models.ExpenseAdminPaid)
	_ = applyExpenseStatus(adminPaid, admin, StatusUpdate{Status: models.ExpenseApproved}, testNow)
	if err := applyExpenseStatus(adminPaid, admin, StatusUpdate{Status: models.ExpenseReimbursed}, testNow); !errors.Is(err, ErrNotReimbursable) {
		t.Fatalf("reimburse ADMIN_PAID: got %v", err)
	}
	if adminPaid.Status != models.ExpenseApproved {
		t.Fatalf("status changed to %s", adminPaid.Status)
	}
}

func TestApplyExpenseStatus_NotesRequired(t *testing.T) {
	for _, status := range []models.ExpenseStatus{models.ExpenseChangesRequested, models.ExpenseRejected} {
		e := newTestExpense(t, models.ExpensePersonalSpend)
		if err := applyExpenseStatus(e, uuid.New(), StatusUpdate{Status: status, AdminNotes: "   "}, testNow); !errors.Is(err, ErrNotesRequired) {
			t.Fatalf("%s without notes: got %v", status, err)
		}
		if err := applyExpenseStatus(e, uuid.New(), StatusUpdate{Status: status, AdminNotes: "receipt is blurry"}, testNow); err != nil {
			t.Fatalf("%s with notes: %v", status, err)
		}
		if e.AdminNotes != "receipt is blurry" {
			t.Fatalf("notes = %q", e.AdminNotes)
		}
	}
}

func TestApplyExpenseStatus_TerminalStates(t *testing.T) {
	e := newTestExpense(t, models.ExpensePersonalSpend)
	_ = applyExpenseStatus(e, uuid.New(), StatusUpdate{Status: models.ExpenseRejected, AdminNotes: "duplicate"}, testNow)
	for _, to := range []models.ExpenseStatus{models.ExpenseApproved, models.ExpenseReimbursed, models.ExpenseChangesRequested} {
		if err := applyExpenseStatus(e, uuid.New(), StatusUpdate{Status: to, AdminNotes: "retry"}, testNow); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("REJECTED -> %s: got %v", to, err)
		}
	}
	if err := applyExpenseStatus(e, uuid.New(), StatusUpdate{Status: models.ExpensePending}, testNow); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("direct PENDING: got %v", err)
	}
}

func TestApplyResubmit(t *testing.T) {
	e := newTestExpense(t, models.ExpensePersonalSpend)
	owner := e.IncurredBy
	amount := dec("2500")

	if err := applyResubmit(e, owner, ResubmitInput{Amount: &amount}, testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("resubmit PENDING: got %v", err)
	}
	_ = applyExpenseStatus(e, uuid.New(), StatusUpdate{Status: models.ExpenseChangesRequested, AdminNotes: "split the bill"}, testNow)

	if err := applyResubmit(e, uuid.New(), ResubmitInput{Amount: &amount}, testNow); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("resubmit by stranger: got %v", err)
	}
	zero := dec("0")
	if err := applyResubmit(e, owner, ResubmitInput{Amount: &zero}, testNow); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("resubmit zero amount: got %v", err)
	}
	fraction := dec("12.345")
	if err := applyResubmit(e, owner, ResubmitInput{Amount: &fraction}, testNow); !errors.Is(err, ErrAmountPrecision) {
		t.Fatalf("resubmit three decimals: got %v", err)
	}
	if err := applyResubmit(e, owner, ResubmitInput{Amount: &amount}, testNow); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if e.Status != models.ExpensePending || !e.Amount.Equal(amount) {
		t.Fatalf("after resubmit: %s %s", e.Status, e.Amount)
	}
}
