package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExpenseType says who paid for an expense.
type ExpenseType string

const (
	ExpensePersonalSpend ExpenseType = "PERSONAL_SPEND" // paid by a team member, reimbursed later
	ExpenseAdminPaid     ExpenseType = "ADMIN_PAID"
)

// Valid reports whether t is a known expense type.
func (t ExpenseType) Valid() bool {
	return t == ExpensePersonalSpend || t == ExpenseAdminPaid
}

// ExpenseStatus is the review state of an expense.
type ExpenseStatus string

const (
	ExpensePending          ExpenseStatus = "PENDING"
	ExpenseApproved         ExpenseStatus = "APPROVED"
	ExpenseChangesRequested ExpenseStatus = "CHANGES_REQUESTED"
	ExpenseRejected         ExpenseStatus = "REJECTED"
	ExpenseReimbursed       ExpenseStatus = "REIMBURSED"
)

// Valid reports whether s is a known expense status.
func (s ExpenseStatus) Valid() bool {
	switch s {
	case ExpensePending, ExpenseApproved, ExpenseChangesRequested, ExpenseRejected, ExpenseReimbursed:
		return true
	}
	return false
}

// Expense is a single spend record against an event's budget.
type Expense struct {
	ID               uuid.UUID       `json:"id"`
	EventID          uuid.UUID       `json:"event_id"`
	IncurredBy       uuid.UUID       `json:"incurred_by"`
	Category         CategoryName    `json:"category"`
	Amount           decimal.Decimal `json:"amount"`
	Description      string          `json:"description"`
	Type             ExpenseType     `json:"type"`
	Status           ExpenseStatus   `json:"status"`
	ReceiptURL       string          `json:"receipt_url,omitempty"`
	AdminNotes       string          `json:"admin_notes,omitempty"`
	ApprovedBy       *uuid.UUID      `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	ReimbursedBy     *uuid.UUID      `json:"reimbursed_by,omitempty"`
	ReimbursedAt     *time.Time      `json:"reimbursed_at,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Counted reports whether the expense counts as spent against the budget.
func (e *Expense) Counted() bool {
	return e.Status == ExpenseApproved || e.Status == ExpenseReimbursed
}
