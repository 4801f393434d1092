package finance

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eventdesk/backend/internal/models"
)

// ExpenseStatuses lists every expense state.
var ExpenseStatuses = []models.ExpenseStatus{
	models.ExpensePending, models.ExpenseApproved, models.ExpenseChangesRequested,
	models.ExpenseRejected, models.ExpenseReimbursed,
}

// expenseTransitions holds the legal edges. REJECTED and REIMBURSED are terminal.
// CHANGES_REQUESTED goes back to PENDING only through resubmission.
var expenseTransitions = map[models.ExpenseStatus]map[models.ExpenseStatus]bool{
	models.ExpensePending: {
		models.ExpenseApproved:         true,
		models.ExpenseChangesRequested: true,
		models.ExpenseRejected:         true,
	},
	models.ExpenseApproved: {
		models.ExpenseReimbursed: true,
	},
	models.ExpenseChangesRequested: {
		models.ExpensePending: true,
	},
	models.ExpenseRejected:   {},
	models.ExpenseReimbursed: {},
}

// CheckExpenseTransition reports whether an expense may move from `from` to
// `to`. It is defined for every pair of states.
func CheckExpenseTransition(from, to models.ExpenseStatus) error {
	edges, ok := expenseTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown expense status %q", ErrInvalidTransition, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if !edges[to] {
		return fmt.Errorf("%w: expense cannot move from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ExpenseInput is the body of a new expense.
type ExpenseInput struct {
	EventID     uuid.UUID           `json:"event_id"`
	Category    models.CategoryName `json:"category"`
	Amount      decimal.Decimal     `json:"amount"`
	Type        models.ExpenseType  `json:"type"`
	Description string              `json:"description"`
	ReceiptURL  string              `json:"receipt_url"`
}

// StatusUpdate is an admin decision on an expense.
type StatusUpdate struct {
	Status           models.ExpenseStatus `json:"status"`
	AdminNotes       string               `json:"admin_notes"`
	PaymentReference string               `json:"payment_reference"`
}

// ResubmitInput carries the corrections an organizer makes after CHANGES_REQUESTED.
// Nil fields keep their current value.
type ResubmitInput struct {
	Category    *models.CategoryName `json:"category"`
	Amount      *decimal.Decimal     `json:"amount"`
	Description *string              `json:"description"`
	ReceiptURL  *string              `json:"receipt_url"`
}

func newExpense(in ExpenseInput, actor uuid.UUID, now time.Time) (*models.Expense, error) {
	if in.EventID == uuid.Nil {
		return nil, ErrEventRequired
	}
	if !in.Category.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, in.Category)
	}
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if err := checkMoney(in.Amount); err != nil {
		return nil, err
	}
	if !in.Type.Valid() {
		return nil, ErrInvalidExpenseType
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return nil, ErrDescriptionRequired
	}
	return &models.Expense{
		ID:          uuid.New(),
		EventID:     in.EventID,
		IncurredBy:  actor,
		Category:    in.Category,
		Amount:      in.Amount,
		Description: desc,
		Type:        in.Type,
		Status:      models.ExpensePending,
		ReceiptURL:  strings.TrimSpace(in.ReceiptURL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// validateStatusUpdate checks the parts of an update that do not depend on the
// expense itself, so bulk requests can fail fast.
func validateStatusUpdate(in StatusUpdate) error {
	if in.Status == models.ExpensePending {
		return fmt.Errorf("%w: expenses return to PENDING only by resubmission", ErrInvalidStatus)
	}
	if !in.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}
	if (in.Status == models.ExpenseChangesRequested || in.Status == models.ExpenseRejected) &&
		strings.TrimSpace(in.AdminNotes) == "" {
		return fmt.Errorf("%w: admin notes", ErrNotesRequired)
	}
	return nil
}

func applyExpenseStatus(e *models.Expense, actor uuid.UUID, in StatusUpdate, now time.Time) error {
	if err := validateStatusUpdate(in); err != nil {
		return err
	}
	if err := CheckExpenseTransition(e.Status, in.Status); err != nil {
		return err
	}
	notes := strings.TrimSpace(in.AdminNotes)

	switch in.Status {
	case models.ExpenseApproved:
		e.ApprovedBy = &actor
		e.ApprovedAt = &now
		if notes != "" {
			e.AdminNotes = notes
		}
	case models.ExpenseChangesRequested, models.ExpenseRejected:
		e.AdminNotes = notes
	case models.ExpenseReimbursed:
		if e.Type != models.ExpensePersonalSpend {
			return ErrNotReimbursable
		}
		e.ReimbursedBy = &actor
		e.ReimbursedAt = &now
		e.PaymentReference = strings.TrimSpace(in.PaymentReference)
		if notes != "" {
			e.AdminNotes = notes
		}
	}
	e.Status = in.Status
	e.UpdatedAt = now
	return nil
}

func applyResubmit(e *models.Expense, actor uuid.UUID, in ResubmitInput, now time.Time) error {
	if e.IncurredBy != actor {
		return ErrNotOwner
	}
	if err := CheckExpenseTransition(e.Status, models.ExpensePending); err != nil {
		return err
	}
	if in.Category != nil {
		if !in.Category.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidCategory, *in.Category)
		}
		e.Category = *in.Category
	}
	if in.Amount != nil {
		if !in.Amount.IsPositive() {
			return ErrInvalidAmount
		}
		if err := checkMoney(*in.Amount); err != nil {
			return err
		}
		e.Amount = *in.Amount
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		if desc == "" {
			return ErrDescriptionRequired
		}
		e.Description = desc
	}
	if in.ReceiptURL != nil {
		e.ReceiptURL = strings.TrimSpace(*in.ReceiptURL)
	}
	e.Status = models.ExpensePending
	e.ApprovedBy = nil
	e.ApprovedAt = nil
	e.UpdatedAt = now
	return nil
}
