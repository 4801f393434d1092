package finance

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eventdesk/backend/internal/models"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func cat(name models.CategoryName, amount string) models.CategoryRequest {
	return models.CategoryRequest{Name: name, RequestedAmount: dec(amount), Justification: "needed for the event"}
}

func alloc(name models.CategoryName, amount string) AllocationInput {
	return AllocationInput{Name: name, AllocatedAmount: decp(amount)}
}

func requested(t *testing.T, cats ...models.CategoryRequest) *models.Budget {
	t.Helper()
	b, err := requestBudget(nil, uuid.New(), uuid.New(), cats, testNow)
	if err != nil {
		t.Fatalf("requestBudget: %v", err)
	}
	return b
}

func approved(t *testing.T, allocs []AllocationInput, cats ...models.CategoryRequest) *models.Budget {
	t.Helper()
	b := requested(t, cats...)
	if err := approveBudget(b, uuid.New(), ApprovalInput{Status: models.BudgetApproved, Allocations: allocs, ApprovalNotes: "ok"}, testNow); err != nil {
		t.Fatalf("approveBudget: %v", err)
	}
	return b
}

func TestNextBudgetStatus_Total(t *testing.T) {
	legal := map[models.BudgetStatus]map[BudgetEvent]models.BudgetStatus{
		models.BudgetDraft:     {BudgetEventRequest: models.BudgetRequested},
		models.BudgetRequested: {BudgetEventApprove: models.BudgetApproved, BudgetEventPartiallyApprove: models.BudgetPartiallyApproved, BudgetEventReject: models.BudgetRejected},
		models.BudgetApproved: {
			BudgetEventRequest: models.BudgetRequested, BudgetEventAmend: models.BudgetApproved, BudgetEventClose: models.BudgetClosed,
			BudgetEventAmendFunded: models.BudgetApproved, BudgetEventAmendPartial: models.BudgetPartiallyApproved,
		},
		models.BudgetPartiallyApproved: {
			BudgetEventRequest: models.BudgetRequested, BudgetEventAmend: models.BudgetPartiallyApproved, BudgetEventClose: models.BudgetClosed,
			BudgetEventAmendFunded: models.BudgetApproved, BudgetEventAmendPartial: models.BudgetPartiallyApproved,
		},
		models.BudgetRejected: {BudgetEventRequest: models.BudgetRequested},
	}
	for _, from := range BudgetStatuses {
		for _, ev := range BudgetEvents {
			to, err := NextBudgetStatus(from, ev)
			want, ok := legal[from][ev]
			if ok {
				if err != nil || to != want {
					t.Fatalf("%s --%s--> got (%s, %v), want %s", from, ev, to, err, want)
				}
				continue
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("%s --%s--> expected ErrInvalidTransition, got (%s, %v)", from, ev, to, err)
			}
		}
	}
	if _, err := NextBudgetStatus("ARCHIVED", BudgetEventRequest); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("unknown status: got %v", err)
	}
}

func TestRequestBudget_Validation(t *testing.T) {
	cases := []struct {
		name string
		cats []models.CategoryRequest
		want error
	}{
		{"empty", nil, ErrNoCategories},
		{"unknown category", []models.CategoryRequest{cat("Catering", "10")}, ErrInvalidCategory},
		{"duplicate", []models.CategoryRequest{cat(models.CategoryFood, "10"), cat(models.CategoryFood, "20")}, ErrDuplicateCategory},
		{"negative", []models.CategoryRequest{cat(models.CategoryFood, "-1")}, ErrNegativeAmount},
		{"blank justification", []models.CategoryRequest{{Name: models.CategoryFood, RequestedAmount: dec("10"), Justification: "   "}}, ErrJustificationRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := requestBudget(nil, uuid.New(), uuid.New(), tc.cats, testNow)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRequestBudget_CreatesRequested(t *testing.T) {
	b := requested(t, cat(models.CategoryFood, "1000"), cat(models.CategoryTravel, "500"))
	if b.Status != models.BudgetRequested {
		t.Fatalf("status = %s", b.Status)
	}
	if !b.TotalRequestedAmount.Equal(dec("1500")) || !b.TotalAllocatedAmount.IsZero() {
		t.Fatalf("totals = %s / %s", b.TotalRequestedAmount, b.TotalAllocatedAmount)
	}
	last, _ := b.History.Last()
	if b.History.Len() != 1 || last.Action != models.HistoryCreated || last.NewStatus != models.BudgetRequested {
		t.Fatalf("history = %+v", b.History.Entries())
	}
}

func TestRequestBudget_DuplicatePendingRequest(t *testing.T) {
	b := requested(t, cat(models.CategoryFood, "1000"))
	if _, err := requestBudget(b, b.EventID, uuid.New(), []models.CategoryRequest{cat(models.CategoryFood, "2000")}, testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRequestBudget_ReRequestResetsAllocations(t *testing.T) {
	b := approved(t, []AllocationInput{alloc(models.CategoryFood, "1000")}, cat(models.CategoryFood, "1000"))
	b, err := requestBudget(b, b.EventID, uuid.New(), []models.CategoryRequest{cat(models.CategoryFood, "1500"), cat(models.CategoryPrizes, "300")}, testNow)
	if err != nil {
		t.Fatalf("re-request: %v", err)
	}
	if b.Status != models.BudgetRequested || !b.TotalAllocatedAmount.IsZero() || !b.TotalRequestedAmount.Equal(dec("1800")) {
		t.Fatalf("after re-request: status=%s requested=%s allocated=%s", b.Status, b.TotalRequestedAmount, b.TotalAllocatedAmount)
	}
	last, _ := b.History.Last()
	if last.Action != models.HistoryUpdated {
		t.Fatalf("last action = %s", last.Action)
	}
}

func TestApproveBudget_PartialApproval(t *testing.T) {
	b := requested(t, cat(models.CategoryFood, "10000"), cat(models.CategoryTravel, "5000"))
	err := approveBudget(b, uuid.New(), ApprovalInput{
		Status:        models.BudgetApproved,
		Allocations:   []AllocationInput{alloc(models.CategoryFood, "8000"), alloc(models.CategoryTravel, "5000")},
		ApprovalNotes: "Food trimmed",
	}, testNow)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if b.Status != models.BudgetPartiallyApproved {
		t.Fatalf("status = %s, want PARTIALLY_APPROVED", b.Status)
	}
	if !b.TotalAllocatedAmount.Equal(dec("13000")) {
		t.Fatalf("total allocated = %s, want 13000", b.TotalAllocatedAmount)
	}
	last, _ := b.History.Last()
	if last.Action != models.HistoryPartiallyApproved || last.Note != "Food trimmed" {
		t.Fatalf("last history = %+v", last)
	}
}

func TestApproveBudget_TotalIsSumOfAllocations(t *testing.T) {
	b := requested(t, cat(models.CategoryFood, "100"), cat(models.CategoryPrinting, "50"), cat(models.CategoryOther, "25.50"))
	err := approveBudget(b, uuid.New(), ApprovalInput{
		Status:        models.BudgetPartiallyApproved,
		Allocations:   []AllocationInput{alloc(models.CategoryFood, "120"), alloc(models.CategoryPrinting, "50"), alloc(models.CategoryOther, "30")},
		ApprovalNotes: "generous",
	}, testNow)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	sum := decimal.Zero
	for _, c := range b.Categories {
		sum = sum.Add(c.AllocatedAmount)
	}
	if !b.TotalAllocatedAmount.Equal(sum) || !sum.Equal(dec("200")) {
		t.Fatalf("total = %s, sum = %s", b.TotalAllocatedAmount, sum)
	}
	// Totals differ (200 granted against 175.50 asked), so the grant is partial.
	if b.Status != models.BudgetPartiallyApproved {
		t.Fatalf("status = %s, want PARTIALLY_APPROVED", b.Status)
	}
}

func TestApproveBudget_BlankNotesRejected(t *testing.T) {
	for _, notes := range []string{"", "   ", "\t\n"} {
		b := requested(t, cat(models.CategoryFood, "100"))
		err := approveBudget(b, uuid.New(), ApprovalInput{
			Status: models.BudgetApproved, Allocations: []AllocationInput{alloc(models.CategoryFood, "100")}, ApprovalNotes: notes,
		}, testNow)
		if !errors.Is(err, ErrNotesRequired) {
			t.Fatalf("notes %q: got %v", notes, err)
		}
		if b.Status != models.BudgetRequested || b.History.Len() != 1 {
			t.Fatalf("budget changed on rejected input: %s, %d entries", b.Status, b.History.Len())
		}
	}
}

func TestApproveBudget_TwiceFails(t *testing.T) {
	b := approved(t, []AllocationInput{alloc(models.CategoryFood, "100")}, cat(models.CategoryFood, "100"))
	err := approveBudget(b, uuid.New(), ApprovalInput{
		Status: models.BudgetApproved, Allocations: []AllocationInput{alloc(models.CategoryFood, "100")}, ApprovalNotes: "again",
	}, testNow)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestApproveBudget_UnknownAllocationName(t *testing.T) {
	b := requested(t, cat(models.CategoryFood, "100"))
	err := approveBudget(b, uuid.New(), ApprovalInput{
		Status: models.BudgetApproved, Allocations: []AllocationInput{alloc(models.CategoryTravel, "100")}, ApprovalNotes: "ok",
	}, testNow)
	if !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
	err = approveBudget(b, uuid.New(), ApprovalInput{
		Status: models.BudgetApproved, Allocations: []AllocationInput{{Name: models.CategoryFood}}, ApprovalNotes: "ok",
	}, testNow)
	if !errors.Is(err, ErrInvalidAllocation) {
		t.Fatalf("expected ErrInvalidAllocation for missing amount, got %v", err)
	}
}

func TestApproveBudget_RejectZeroesAllocations(t *testing.T) {
	b := requested(t, cat(models.CategoryFood, "100"))
	err := approveBudget(b, uuid.New(), ApprovalInput{
		Status: models.BudgetRejected, Allocations: []AllocationInput{alloc(models.CategoryFood, "100")}, ApprovalNotes: "not this term",
	}, testNow)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if b.Status != models.BudgetRejected || !b.TotalAllocatedAmount.IsZero() {
		t.Fatalf("status=%s allocated=%s", b.Status, b.TotalAllocatedAmount)
	}
}

func TestRequestAmendment(t *testing.T) {
	b := requested(t, cat(models.CategoryFood, "100"))
	in := AmendmentInput{RequestedCategories: []models.CategoryRequest{cat(models.CategoryPrizes, "50")}, Reason: "sponsor dropped out"}
	if _, err := requestAmendment(b, uuid.New(), in, testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("amendment on REQUESTED: got %v", err)
	}

	b = approved(t, []AllocationInput{alloc(models.CategoryFood, "100")}, cat(models.CategoryFood, "100"))
	if _, err := requestAmendment(b, uuid.New(), AmendmentInput{RequestedCategories: in.RequestedCategories, Reason: "  "}, testNow); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("blank reason: got %v", err)
	}
	am, err := requestAmendment(b, uuid.New(), in, testNow)
	if err != nil {
		t.Fatalf("request amendment: %v", err)
	}
	if am.Status != models.AmendmentPending || b.Status != models.BudgetApproved {
		t.Fatalf("amendment=%s budget=%s", am.Status, b.Status)
	}
	if _, err := requestAmendment(b, uuid.New(), in, testNow); !errors.Is(err, ErrAmendmentPending) {
		t.Fatalf("second pending amendment: got %v", err)
	}
}

func TestReviewAmendment_RejectNeverMutatesAllocations(t *testing.T) {
	b := approved(t, []AllocationInput{alloc(models.CategoryFood, "80")}, cat(models.CategoryFood, "100"))
	am, err := requestAmendment(b, uuid.New(), AmendmentInput{
		RequestedCategories: []models.CategoryRequest{cat(models.CategoryFood, "200"), cat(models.CategoryTravel, "40")},
		Reason:              "more guests",
	}, testNow)
	if err != nil {
		t.Fatalf("request amendment: %v", err)
	}
	before := append([]models.Category(nil), b.Categories...)
	totalBefore := b.TotalAllocatedAmount

	err = reviewAmendment(b, uuid.New(), am.ID, ReviewInput{
		Status:      models.AmendmentRejected,
		AdminNotes:  "no funds left",
		Allocations: []AllocationInput{alloc(models.CategoryFood, "999"), alloc(models.CategoryTravel, "999")},
	}, testNow)
	if err != nil {
		t.Fatalf("reject amendment: %v", err)
	}
	if !reflect.DeepEqual(before, b.Categories) || !b.TotalAllocatedAmount.Equal(totalBefore) {
		t.Fatalf("categories changed on rejection: %+v", b.Categories)
	}
	if got := b.Amendment(am.ID).Status; got != models.AmendmentRejected {
		t.Fatalf("amendment status = %s", got)
	}
	last, _ := b.History.Last()
	if last.Action != models.HistoryAmendmentRejected {
		t.Fatalf("last action = %s", last.Action)
	}
	err = reviewAmendment(b, uuid.New(), am.ID, ReviewInput{Status: models.AmendmentApproved, AdminNotes: "changed my mind"}, testNow)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second review: got %v", err)
	}
}

func TestReviewAmendment_ApproveAppliesAllocations(t *testing.T) {
	b := approved(t, []AllocationInput{alloc(models.CategoryFood, "100")}, cat(models.CategoryFood, "100"))
	am, err := requestAmendment(b, uuid.New(), AmendmentInput{
		RequestedCategories: []models.CategoryRequest{{Name: models.CategoryPrizes, RequestedAmount: dec("50")}},
		Reason:              "quiz prizes",
	}, testNow)
	if err != nil {
		t.Fatalf("request amendment: %v", err)
	}
	if err := reviewAmendment(b, uuid.New(), am.ID, ReviewInput{Status: models.AmendmentApproved, AdminNotes: "fine"}, testNow); err != nil {
		t.Fatalf("approve amendment: %v", err)
	}
	prizes := b.Category(models.CategoryPrizes)
	if prizes == nil || !prizes.AllocatedAmount.Equal(dec("50")) || prizes.Justification != "quiz prizes" {
		t.Fatalf("prizes = %+v", prizes)
	}
	if !b.TotalAllocatedAmount.Equal(dec("150")) || !b.TotalRequestedAmount.Equal(dec("150")) {
		t.Fatalf("totals = %s / %s", b.TotalRequestedAmount, b.TotalAllocatedAmount)
	}
	if b.Status != models.BudgetApproved {
		t.Fatalf("status = %s", b.Status)
	}
}

func TestReviewAmendment_BlankNotes(t *testing.T) {
	b := approved(t, []AllocationInput{alloc(models.CategoryFood, "100")}, cat(models.CategoryFood, "100"))
	am, _ := requestAmendment(b, uuid.New(), AmendmentInput{RequestedCategories: []models.CategoryRequest{cat(models.CategoryFood, "150")}, Reason: "more"}, testNow)
	if err := reviewAmendment(b, uuid.New(), am.ID, ReviewInput{Status: models.AmendmentApproved, AdminNotes: " "}, testNow); !errors.Is(err, ErrNotesRequired) {
		t.Fatalf("got %v", err)
	}
	if err := reviewAmendment(b, uuid.New(), uuid.New(), ReviewInput{Status: models.AmendmentApproved, AdminNotes: "ok"}, testNow); !errors.Is(err, ErrAmendmentNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestCloseBudget(t *testing.T) {
	b := approved(t, []AllocationInput{alloc(models.CategoryFood, "100")}, cat(models.CategoryFood, "100"))
	if err := closeBudget(b, uuid.New(), "event done", testNow); err != nil {
		t.Fatalf("close: %v", err)
	}
	if b.Status != models.BudgetClosed {
		t.Fatalf("status = %s", b.Status)
	}
	if _, err := requestBudget(b, b.EventID, uuid.New(), []models.CategoryRequest{cat(models.CategoryFood, "1")}, testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("request after close: got %v", err)
	}
}

func TestHistory_EntriesAreCopies(t *testing.T) {
	b := requested(t, cat(models.CategoryFood, "100"))
	entries := b.History.Entries()
	entries[0].Note = "tampered"
	if first := b.History.Entries()[0]; first.Note == "tampered" {
		t.Fatal("history entry was modified through a returned copy")
	}
}

func TestApproveBudget_StatusDerivedFromTotals(t *testing.T) {
	over := requested(t, cat(models.CategoryFood, "10000"))
	err := approveBudget(over, uuid.New(), ApprovalInput{
		Status: models.BudgetPartiallyApproved, Allocations: []AllocationInput{alloc(models.CategoryFood, "12000")}, ApprovalNotes: "extra headroom",
	}, testNow)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if over.Status != models.BudgetPartiallyApproved {
		t.Fatalf("over-allocated budget status = %s, want PARTIALLY_APPROVED", over.Status)
	}

	exact := requested(t, cat(models.CategoryFood, "10000"))
	err = approveBudget(exact, uuid.New(), ApprovalInput{
		Status: models.BudgetPartiallyApproved, Allocations: []AllocationInput{alloc(models.CategoryFood, "10000.00")}, ApprovalNotes: "all of it",
	}, testNow)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if exact.Status != models.BudgetApproved {
		t.Fatalf("fully funded budget status = %s, want APPROVED", exact.Status)
	}
}

func TestReviewAmendment_StatusFollowsTotals(t *testing.T) {
	b := approved(t, []AllocationInput{alloc(models.CategoryFood, "10000")}, cat(models.CategoryFood, "10000"))

	amend := func(amount string) {
		t.Helper()
		am, err := requestAmendment(b, uuid.New(), AmendmentInput{
			RequestedCategories: []models.CategoryRequest{cat(models.CategoryFood, amount)},
			Reason:              "headcount changed",
		}, testNow)
		if err != nil {
			t.Fatalf("request amendment: %v", err)
		}
		if err := reviewAmendment(b, uuid.New(), am.ID, ReviewInput{Status: models.AmendmentApproved, AdminNotes: "ok"}, testNow); err != nil {
			t.Fatalf("approve amendment: %v", err)
		}
	}

	amend("4000")
	if b.Status != models.BudgetPartiallyApproved || !b.TotalAllocatedAmount.Equal(dec("4000")) {
		t.Fatalf("after cut: %s %s", b.Status, b.TotalAllocatedAmount)
	}
	if last, _ := b.History.Last(); last.NewStatus != models.BudgetPartiallyApproved {
		t.Fatalf("history status = %s", last.NewStatus)
	}

	amend("10000")
	if b.Status != models.BudgetApproved {
		t.Fatalf("after restore: %s", b.Status)
	}
}

func TestReviewAmendment_GrantOutsideRequest(t *testing.T) {
	b := approved(t, []AllocationInput{alloc(models.CategoryFood, "100")}, cat(models.CategoryFood, "100"))
	am, err := requestAmendment(b, uuid.New(), AmendmentInput{
		RequestedCategories: []models.CategoryRequest{cat(models.CategoryPrizes, "50")},
		Reason:              "quiz prizes",
	}, testNow)
	if err != nil {
		t.Fatalf("request amendment: %v", err)
	}
	err = reviewAmendment(b, uuid.New(), am.ID, ReviewInput{
		Status: models.AmendmentApproved, AdminNotes: "travel instead", Allocations: []AllocationInput{alloc(models.CategoryTravel, "50")},
	}, testNow)
	if !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("grant for unrequested category: got %v", err)
	}
	if b.Category(models.CategoryTravel) != nil {
		t.Fatal("unrequested category appended")
	}

	err = reviewAmendment(b, uuid.New(), am.ID, ReviewInput{
		Status: models.AmendmentApproved, AdminNotes: "prizes and food",
		Allocations: []AllocationInput{alloc(models.CategoryPrizes, "50"), alloc(models.CategoryFood, "120")},
	}, testNow)
	if err != nil {
		t.Fatalf("grant for requested and existing categories: %v", err)
	}
	if !b.TotalAllocatedAmount.Equal(dec("170")) {
		t.Fatalf("total allocated = %s", b.TotalAllocatedAmount)
	}
}

func TestMoneyScale(t *testing.T) {
	if _, err := requestBudget(nil, uuid.New(), uuid.New(), []models.CategoryRequest{cat(models.CategoryFood, "0.004")}, testNow); !errors.Is(err, ErrAmountPrecision) {
		t.Fatalf("sub-cent request: got %v", err)
	}
	_, err := requestBudget(nil, uuid.New(), uuid.New(), []models.CategoryRequest{
		cat(models.CategoryFood, "999999999999.99"), cat(models.CategoryTravel, "1"),
	}, testNow)
	if !errors.Is(err, ErrAmountOutOfRange) {
		t.Fatalf("total past column range: got %v", err)
	}

	b := requested(t, cat(models.CategoryFood, "10.50"))
	err = approveBudget(b, uuid.New(), ApprovalInput{
		Status: models.BudgetApproved, Allocations: []AllocationInput{alloc(models.CategoryFood, "10.499")}, ApprovalNotes: "ok",
	}, testNow)
	if !errors.Is(err, ErrAmountPrecision) || !IsValidation(err) {
		t.Fatalf("sub-cent allocation: got %v", err)
	}
	if b.Status != models.BudgetRequested {
		t.Fatalf("status changed on failed approval: %s", b.Status)
	}
}
