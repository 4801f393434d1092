package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetStatus is the lifecycle state of an event budget.
type BudgetStatus string

const (
	BudgetDraft             BudgetStatus = "DRAFT"
	BudgetRequested         BudgetStatus = "REQUESTED"
	BudgetApproved          BudgetStatus = "APPROVED"
	BudgetPartiallyApproved BudgetStatus = "PARTIALLY_APPROVED"
	BudgetRejected          BudgetStatus = "REJECTED"
	BudgetClosed            BudgetStatus = "CLOSED"
)

// IsFunded reports whether the budget has been granted (fully or partially).
func (s BudgetStatus) IsFunded() bool {
	return s == BudgetApproved || s == BudgetPartiallyApproved
}

// CategoryName is one of the fixed budget categories.
type CategoryName string

const (
	CategoryFood      CategoryName = "Food"
	CategoryPrinting  CategoryName = "Printing"
	CategoryTravel    CategoryName = "Travel"
	CategoryMarketing CategoryName = "Marketing"
	CategoryLogistics CategoryName = "Logistics"
	CategoryPrizes    CategoryName = "Prizes"
	CategoryEquipment CategoryName = "Equipment"
	CategoryOther     CategoryName = "Other"
)

// Categories lists every budget category in display order.
var Categories = []CategoryName{
	CategoryFood, CategoryPrinting, CategoryTravel, CategoryMarketing,
	CategoryLogistics, CategoryPrizes, CategoryEquipment, CategoryOther,
}

// Valid reports whether n is one of the fixed categories.
func (n CategoryName) Valid() bool {
	for _, c := range Categories {
		if c == n {
			return true
		}
	}
	return false
}

// Category is one line of a budget.
type Category struct {
	Name            CategoryName    `json:"name"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	Justification   string          `json:"justification"`
}

// CategoryRequest is a requested category line, used by budget requests and amendments.
type CategoryRequest struct {
	Name            CategoryName    `json:"name"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	Justification   string          `json:"justification"`
}

// Allocation is an amount granted to a category.
type Allocation struct {
	Name            CategoryName    `json:"name"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
}

// AmendmentStatus is the review state of an amendment.
type AmendmentStatus string

const (
	AmendmentPending  AmendmentStatus = "PENDING"
	AmendmentApproved AmendmentStatus = "APPROVED"
	AmendmentRejected AmendmentStatus = "REJECTED"
)

// Amendment is a follow-up request to change an already granted budget.
type Amendment struct {
	ID                  uuid.UUID         `json:"id"`
	RequestedBy         uuid.UUID         `json:"requested_by"`
	RequestedAt         time.Time         `json:"requested_at"`
	Reason              string            `json:"reason"`
	RequestedCategories []CategoryRequest `json:"requested_categories"`
	Status              AmendmentStatus   `json:"status"`
	AdminNotes          string            `json:"admin_notes,omitempty"`
	ReviewedBy          *uuid.UUID        `json:"reviewed_by,omitempty"`
	ReviewedAt          *time.Time        `json:"reviewed_at,omitempty"`
	Allocations         []Allocation      `json:"allocations,omitempty"`
}

// HistoryAction names a state-changing action on a budget.
type HistoryAction string

const (
	HistoryCreated            HistoryAction = "CREATED"
	HistoryUpdated            HistoryAction = "UPDATED"
	HistoryApproved           HistoryAction = "APPROVED"
	HistoryPartiallyApproved  HistoryAction = "PARTIALLY_APPROVED"
	HistoryRejected           HistoryAction = "REJECTED"
	HistoryAmendmentRequested HistoryAction = "AMENDMENT_REQUESTED"
	HistoryAmendmentApproved  HistoryAction = "AMENDMENT_APPROVED"
	HistoryAmendmentRejected  HistoryAction = "AMENDMENT_REJECTED"
	HistoryClosed             HistoryAction = "CLOSED"
)

// HistoryEntry is one record of the budget's audit trail.
type HistoryEntry struct {
	Action      HistoryAction `json:"action"`
	PerformedBy uuid.UUID     `json:"performed_by"`
	Timestamp   time.Time     `json:"timestamp"`
	Note        string        `json:"note,omitempty"`
	NewStatus   BudgetStatus  `json:"new_status"`
}

// History is the append-only trail of a budget. Entries can be appended and
// read back as copies; nothing edits or removes them.
type History struct {
	entries []HistoryEntry
}

// Append adds e to the end of the trail.
func (h *History) Append(e HistoryEntry) {
	h.entries = append(h.entries, e)
}

// Entries returns a copy of the trail, oldest first.
func (h History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of entries.
func (h History) Len() int { return len(h.entries) }

// Last returns the newest entry.
func (h History) Last() (HistoryEntry, bool) {
	if len(h.entries) == 0 {
		return HistoryEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// MarshalJSON encodes the trail as a JSON array.
func (h History) MarshalJSON() ([]byte, error) {
	if h.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.entries)
}

// UnmarshalJSON decodes a stored trail.
func (h *History) UnmarshalJSON(b []byte) error {
	var entries []HistoryEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	h.entries = entries
	return nil
}

// Budget is the per-event funding envelope.
type Budget struct {
	ID                   uuid.UUID       `json:"id"`
	EventID              uuid.UUID       `json:"event_id"`
	Status               BudgetStatus    `json:"status"`
	Categories           []Category      `json:"categories"`
	TotalRequestedAmount decimal.Decimal `json:"total_requested_amount"`
	TotalAllocatedAmount decimal.Decimal `json:"total_allocated_amount"`
	ApprovalNotes        string          `json:"approval_notes,omitempty"`
	ApprovedBy           *uuid.UUID      `json:"approved_by,omitempty"`
	CreatedBy            uuid.UUID       `json:"created_by"`
	History              History         `json:"history"`
	Amendments           []Amendment     `json:"amendments"`
	Version              int             `json:"version"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// RecomputeTotals derives both totals from the category list.
func (b *Budget) RecomputeTotals() {
	requested, allocated := decimal.Zero, decimal.Zero
	for _, c := range b.Categories {
		requested = requested.Add(c.RequestedAmount)
		allocated = allocated.Add(c.AllocatedAmount)
	}
	b.TotalRequestedAmount = requested
	b.TotalAllocatedAmount = allocated
}

// Category returns a pointer to the named category line, or nil.
func (b *Budget) Category(name CategoryName) *Category {
	for i := range b.Categories {
		if b.Categories[i].Name == name {
			return &b.Categories[i]
		}
	}
	return nil
}

// Amendment returns a pointer to the amendment with the given ID, or nil.
func (b *Budget) Amendment(id uuid.UUID) *Amendment {
	for i := range b.Amendments {
		if b.Amendments[i].ID == id {
			return &b.Amendments[i]
		}
	}
	return nil
}

// PendingAmendment returns the open amendment, if any.
func (b *Budget) PendingAmendment() *Amendment {
	for i := range b.Amendments {
		if b.Amendments[i].Status == AmendmentPending {
			return &b.Amendments[i]
		}
	}
	return nil
}
