package finance

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eventdesk/backend/internal/models"
)

// BudgetEvent is an input to the budget state machine.
type BudgetEvent string

const (
	BudgetEventRequest          BudgetEvent = "REQUEST"
	BudgetEventApprove          BudgetEvent = "APPROVE"
	BudgetEventPartiallyApprove BudgetEvent = "PARTIALLY_APPROVE"
	BudgetEventReject           BudgetEvent = "REJECT"
	BudgetEventAmend            BudgetEvent = "AMEND"
	BudgetEventAmendFunded      BudgetEvent = "AMEND_FUNDED"
	BudgetEventAmendPartial     BudgetEvent = "AMEND_PARTIAL"
	BudgetEventClose            BudgetEvent = "CLOSE"
)

// BudgetEvents lists every state machine input.
var BudgetEvents = []BudgetEvent{
	BudgetEventRequest, BudgetEventApprove, BudgetEventPartiallyApprove,
	BudgetEventReject, BudgetEventAmend, BudgetEventAmendFunded, BudgetEventAmendPartial,
	BudgetEventClose,
}

// BudgetStatuses lists every budget state.
var BudgetStatuses = []models.BudgetStatus{
	models.BudgetDraft, models.BudgetRequested, models.BudgetApproved,
	models.BudgetPartiallyApproved, models.BudgetRejected, models.BudgetClosed,
}

// budgetTransitions holds the legal edges. Pairs missing here are illegal.
// AMEND opens an amendment and keeps the status; an approved amendment fires
// AMEND_FUNDED or AMEND_PARTIAL depending on the new totals.
var budgetTransitions = map[models.BudgetStatus]map[BudgetEvent]models.BudgetStatus{
	models.BudgetDraft: {
		BudgetEventRequest: models.BudgetRequested,
	},
	models.BudgetRequested: {
		BudgetEventApprove:          models.BudgetApproved,
		BudgetEventPartiallyApprove: models.BudgetPartiallyApproved,
		BudgetEventReject:           models.BudgetRejected,
	},
	models.BudgetApproved: {
		BudgetEventRequest:      models.BudgetRequested,
		BudgetEventAmend:        models.BudgetApproved,
		BudgetEventAmendFunded:  models.BudgetApproved,
		BudgetEventAmendPartial: models.BudgetPartiallyApproved,
		BudgetEventClose:        models.BudgetClosed,
	},
	models.BudgetPartiallyApproved: {
		BudgetEventRequest:      models.BudgetRequested,
		BudgetEventAmend:        models.BudgetPartiallyApproved,
		BudgetEventAmendFunded:  models.BudgetApproved,
		BudgetEventAmendPartial: models.BudgetPartiallyApproved,
		BudgetEventClose:        models.BudgetClosed,
	},
	models.BudgetRejected: {
		BudgetEventRequest: models.BudgetRequested,
	},
	models.BudgetClosed: {},
}

// NextBudgetStatus returns the state reached from `from` on `ev`. It is defined
// for every (state, event) pair: illegal pairs return ErrInvalidTransition.
func NextBudgetStatus(from models.BudgetStatus, ev BudgetEvent) (models.BudgetStatus, error) {
	edges, ok := budgetTransitions[from]
	if !ok {
		return "", fmt.Errorf("%w: unknown budget status %q", ErrInvalidTransition, from)
	}
	to, ok := edges[ev]
	if !ok {
		return "", fmt.Errorf("%w: %s is not allowed while the budget is %s", ErrInvalidTransition, ev, from)
	}
	return to, nil
}

// AllocationInput is an admin-supplied grant for one category. A missing
// amount is rejected rather than read as zero.
type AllocationInput struct {
	Name            models.CategoryName `json:"name"`
	AllocatedAmount *decimal.Decimal    `json:"allocated_amount"`
}

// ApprovalInput is the admin decision on a requested budget.
type ApprovalInput struct {
	Status        models.BudgetStatus `json:"status"`
	Allocations   []AllocationInput   `json:"allocations"`
	ApprovalNotes string              `json:"approval_notes"`
}

// AmendmentInput is an organizer request to change a granted budget.
type AmendmentInput struct {
	RequestedCategories []models.CategoryRequest `json:"requested_categories"`
	Reason              string                   `json:"reason"`
}

// ReviewInput is the admin decision on a pending amendment.
type ReviewInput struct {
	Status      models.AmendmentStatus `json:"status"`
	AdminNotes  string                 `json:"admin_notes"`
	Allocations []AllocationInput      `json:"allocations"`
}

func validateCategoryRequests(in []models.CategoryRequest, requireJustification bool) ([]models.CategoryRequest, error) {
	if len(in) == 0 {
		return nil, ErrNoCategories
	}
	seen := make(map[models.CategoryName]bool, len(in))
	out := make([]models.CategoryRequest, 0, len(in))
	for _, c := range in {
		if !c.Name.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, c.Name)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCategory, c.Name)
		}
		seen[c.Name] = true
		if c.RequestedAmount.IsNegative() {
			return nil, fmt.Errorf("%w: %s", ErrNegativeAmount, c.Name)
		}
		if err := checkMoney(c.RequestedAmount); err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		c.Justification = strings.TrimSpace(c.Justification)
		if requireJustification && c.Justification == "" {
			return nil, fmt.Errorf("%w: %s", ErrJustificationRequired, c.Name)
		}
		out = append(out, c)
	}
	return out, nil
}

// validateAllocations checks names, amounts and uniqueness. known limits
// names to an existing category set; nil accepts any fixed category.
func validateAllocations(in []AllocationInput, known func(models.CategoryName) bool) ([]models.Allocation, error) {
	seen := make(map[models.CategoryName]bool, len(in))
	out := make([]models.Allocation, 0, len(in))
	for _, a := range in {
		if !a.Name.Valid() || (known != nil && !known(a.Name)) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, a.Name)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCategory, a.Name)
		}
		seen[a.Name] = true
		if a.AllocatedAmount == nil || a.AllocatedAmount.IsNegative() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAllocation, a.Name)
		}
		if err := checkMoney(*a.AllocatedAmount); err != nil {
			return nil, fmt.Errorf("%s: %w", a.Name, err)
		}
		out = append(out, models.Allocation{Name: a.Name, AllocatedAmount: *a.AllocatedAmount})
	}
	return out, nil
}

// fullyFunded reports whether the grant matches the request exactly. Any
// difference, over-allocation included, is a partial approval.
func fullyFunded(b *models.Budget) bool {
	return b.TotalAllocatedAmount.Equal(b.TotalRequestedAmount)
}

// requestBudget creates the event budget or re-requests an existing one.
// A re-request replaces the category list and clears prior allocations.
func requestBudget(b *models.Budget, eventID, actor uuid.UUID, categories []models.CategoryRequest, now time.Time) (*models.Budget, error) {
	cats, err := validateCategoryRequests(categories, true)
	if err != nil {
		return nil, err
	}
	action, note := models.HistoryUpdated, "Budget re-requested"
	if b == nil {
		b = &models.Budget{
			ID:        uuid.New(),
			EventID:   eventID,
			Status:    models.BudgetDraft,
			CreatedBy: actor,
			CreatedAt: now,
		}
		action, note = models.HistoryCreated, "Budget requested"
	}
	to, err := NextBudgetStatus(b.Status, BudgetEventRequest)
	if err != nil {
		return nil, err
	}
	if b.PendingAmendment() != nil {
		return nil, ErrAmendmentPending
	}

	b.Categories = make([]models.Category, 0, len(cats))
	for _, c := range cats {
		b.Categories = append(b.Categories, models.Category{
			Name:            c.Name,
			RequestedAmount: c.RequestedAmount,
			AllocatedAmount: decimal.Zero,
			Justification:   c.Justification,
		})
	}
	b.RecomputeTotals()
	if err := checkTotals(b); err != nil {
		return nil, err
	}
	b.Status = to
	b.ApprovalNotes = ""
	b.ApprovedBy = nil
	b.UpdatedAt = now
	b.History.Append(models.HistoryEntry{
		Action: action, PerformedBy: actor, Timestamp: now, Note: note, NewStatus: to,
	})
	return b, nil
}

// approveBudget applies the admin decision to a REQUESTED budget.
func approveBudget(b *models.Budget, actor uuid.UUID, in ApprovalInput, now time.Time) error {
	notes := strings.TrimSpace(in.ApprovalNotes)
	if notes == "" {
		return fmt.Errorf("%w: approval notes", ErrNotesRequired)
	}

	var ev BudgetEvent
	switch in.Status {
	case models.BudgetApproved, models.BudgetPartiallyApproved:
		ev = BudgetEventApprove
	case models.BudgetRejected:
		ev = BudgetEventReject
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}
	if _, err := NextBudgetStatus(b.Status, ev); err != nil {
		return err
	}

	if ev == BudgetEventReject {
		for i := range b.Categories {
			b.Categories[i].AllocatedAmount = decimal.Zero
		}
	} else {
		allocs, err := validateAllocations(in.Allocations, func(n models.CategoryName) bool { return b.Category(n) != nil })
		if err != nil {
			return err
		}
		granted := make(map[models.CategoryName]decimal.Decimal, len(allocs))
		for _, a := range allocs {
			granted[a.Name] = a.AllocatedAmount
		}
		for i := range b.Categories {
			b.Categories[i].AllocatedAmount = granted[b.Categories[i].Name]
		}
	}
	b.RecomputeTotals()
	if err := checkTotals(b); err != nil {
		return err
	}

	if ev == BudgetEventApprove && !fullyFunded(b) {
		ev = BudgetEventPartiallyApprove
	}
	to, err := NextBudgetStatus(b.Status, ev)
	if err != nil {
		return err
	}

	b.Status = to
	b.ApprovalNotes = notes
	b.ApprovedBy = &actor
	b.UpdatedAt = now
	b.History.Append(models.HistoryEntry{
		Action: historyActionFor(to), PerformedBy: actor, Timestamp: now, Note: notes, NewStatus: to,
	})
	return nil
}

func historyActionFor(s models.BudgetStatus) models.HistoryAction {
	switch s {
	case models.BudgetApproved:
		return models.HistoryApproved
	case models.BudgetPartiallyApproved:
		return models.HistoryPartiallyApproved
	case models.BudgetRejected:
		return models.HistoryRejected
	case models.BudgetClosed:
		return models.HistoryClosed
	}
	return models.HistoryUpdated
}

// requestAmendment appends a PENDING amendment to a granted budget.
func requestAmendment(b *models.Budget, actor uuid.UUID, in AmendmentInput, now time.Time) (*models.Amendment, error) {
	to, err := NextBudgetStatus(b.Status, BudgetEventAmend)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	cats, err := validateCategoryRequests(in.RequestedCategories, false)
	if err != nil {
		return nil, err
	}
	if b.PendingAmendment() != nil {
		return nil, ErrAmendmentPending
	}

	b.Amendments = append(b.Amendments, models.Amendment{
		ID:                  uuid.New(),
		RequestedBy:         actor,
		RequestedAt:         now,
		Reason:              reason,
		RequestedCategories: cats,
		Status:              models.AmendmentPending,
	})
	b.UpdatedAt = now
	b.History.Append(models.HistoryEntry{
		Action: models.HistoryAmendmentRequested, PerformedBy: actor, Timestamp: now, Note: reason, NewStatus: to,
	})
	return &b.Amendments[len(b.Amendments)-1], nil
}

// reviewAmendment resolves a pending amendment. Rejection never touches the
// category list, whatever allocations were sent.
func reviewAmendment(b *models.Budget, actor, amendmentID uuid.UUID, in ReviewInput, now time.Time) error {
	am := b.Amendment(amendmentID)
	if am == nil {
		return ErrAmendmentNotFound
	}
	if am.Status != models.AmendmentPending {
		return fmt.Errorf("%w: amendment is already %s", ErrInvalidTransition, am.Status)
	}
	notes := strings.TrimSpace(in.AdminNotes)
	if notes == "" {
		return fmt.Errorf("%w: admin notes", ErrNotesRequired)
	}
	if _, err := NextBudgetStatus(b.Status, BudgetEventAmend); err != nil {
		return err
	}

	switch in.Status {
	case models.AmendmentRejected:
		am.Status = models.AmendmentRejected
		b.History.Append(models.HistoryEntry{
			Action: models.HistoryAmendmentRejected, PerformedBy: actor, Timestamp: now, Note: notes, NewStatus: b.Status,
		})

	case models.AmendmentApproved:
		requested := make(map[models.CategoryName]models.CategoryRequest, len(am.RequestedCategories))
		for _, c := range am.RequestedCategories {
			requested[c.Name] = c
		}
		input := in.Allocations
		if len(input) == 0 {
			// No explicit grant: fund exactly what the amendment asked for.
			for _, c := range am.RequestedCategories {
				amt := c.RequestedAmount
				input = append(input, AllocationInput{Name: c.Name, AllocatedAmount: &amt})
			}
		}
		// Grants may touch the categories the amendment asked for or ones
		// already in the budget.
		allocs, err := validateAllocations(input, func(n models.CategoryName) bool {
			_, asked := requested[n]
			return asked || b.Category(n) != nil
		})
		if err != nil {
			return err
		}
		for _, a := range allocs {
			if cat := b.Category(a.Name); cat != nil {
				cat.AllocatedAmount = a.AllocatedAmount
				continue
			}
			req := requested[a.Name]
			justification := req.Justification
			if justification == "" {
				justification = am.Reason
			}
			b.Categories = append(b.Categories, models.Category{
				Name:            a.Name,
				RequestedAmount: req.RequestedAmount,
				AllocatedAmount: a.AllocatedAmount,
				Justification:   justification,
			})
		}
		b.RecomputeTotals()
		if err := checkTotals(b); err != nil {
			return err
		}
		ev := BudgetEventAmendPartial
		if fullyFunded(b) {
			ev = BudgetEventAmendFunded
		}
		to, err := NextBudgetStatus(b.Status, ev)
		if err != nil {
			return err
		}
		b.Status = to
		am.Status = models.AmendmentApproved
		am.Allocations = allocs
		b.History.Append(models.HistoryEntry{
			Action: models.HistoryAmendmentApproved, PerformedBy: actor, Timestamp: now, Note: notes, NewStatus: b.Status,
		})

	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}

	am.AdminNotes = notes
	am.ReviewedBy = &actor
	am.ReviewedAt = &now
	b.UpdatedAt = now
	return nil
}

// closeBudget ends the budget's life; no further requests or amendments.
func closeBudget(b *models.Budget, actor uuid.UUID, note string, now time.Time) error {
	to, err := NextBudgetStatus(b.Status, BudgetEventClose)
	if err != nil {
		return err
	}
	if b.PendingAmendment() != nil {
		return ErrAmendmentPending
	}
	b.Status = to
	b.UpdatedAt = now
	b.History.Append(models.HistoryEntry{
		Action: models.HistoryClosed, PerformedBy: actor, Timestamp: now, Note: strings.TrimSpace(note), NewStatus: to,
	})
	return nil
}
