package finance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/audit"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
)

// Realtime events pushed to event dashboards.
const (
	EventBudgetUpdated  = "budget_updated"
	EventExpenseUpdated = "expense_updated"
)

// Auditor records finance actions in the audit log.
type Auditor interface {
	Record(ctx context.Context, entry *models.AuditLog) error
}

// Notifier pushes updates to clients watching an event.
type Notifier interface {
	Publish(eventID uuid.UUID, event string, payload interface{})
}

// Service runs the budget and expense workflows.
type Service struct {
	store    Store
	audit    Auditor
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a finance service. auditor and notifier may be nil.
func NewService(store Store, auditor Auditor, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		audit:    auditor,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PendingAmendment is an open amendment together with its budget, for the admin worklist.
type PendingAmendment struct {
	EventID              uuid.UUID           `json:"event_id"`
	BudgetStatus         models.BudgetStatus `json:"budget_status"`
	TotalAllocatedAmount decimal.Decimal     `json:"total_allocated_amount"`
	Categories           []models.Category   `json:"categories"`
	Amendment            models.Amendment    `json:"amendment"`
}

// BulkUpdateInput applies one status update to many expenses.
type BulkUpdateInput struct {
	ExpenseIDs []uuid.UUID `json:"expense_ids"`
	StatusUpdate
}

// BulkFailure explains why one expense in a bulk request was not updated.
type BulkFailure struct {
	ExpenseID uuid.UUID `json:"expense_id"`
	Message   string    `json:"message"`
}

// BulkResult itemizes a bulk update. Items succeed or fail independently.
type BulkResult struct {
	Updated      []*models.Expense `json:"updated"`
	Failed       []BulkFailure     `json:"failed"`
	UpdatedCount int               `json:"updated_count"`
	FailedCount  int               `json:"failed_count"`
}

// PayeeReimbursement groups a user's approved, unpaid personal spends into one payout.
type PayeeReimbursement struct {
	UserID       uuid.UUID         `json:"user_id"`
	TotalAmount  decimal.Decimal   `json:"total_amount"`
	ExpenseCount int               `json:"expense_count"`
	Expenses     []*models.Expense `json:"expenses"`
}

// RequestBudget creates the event budget, or re-requests it.
func (s *Service) RequestBudget(ctx context.Context, actor auth.Actor, eventID uuid.UUID, categories []models.CategoryRequest) (*models.Budget, error) {
	if eventID == uuid.Nil {
		return nil, ErrEventRequired
	}
	var before models.BudgetStatus
	b, err := s.store.MutateBudget(ctx, eventID, func(current *models.Budget) (*models.Budget, error) {
		if current != nil {
			before = current.Status
		}
		return requestBudget(current, eventID, actor.UserID, categories, s.now())
	})
	if err != nil {
		return nil, err
	}
	action := "BUDGET_REQUESTED"
	if before != "" {
		action = "BUDGET_REREQUESTED"
	}
	s.record(ctx, actor, models.EntityBudget, b.ID, eventID, action, models.SeverityInfo, "",
		statusState(before), budgetState(b))
	s.publish(eventID, EventBudgetUpdated, b)
	return b, nil
}

// GetBudget returns the event's budget.
func (s *Service) GetBudget(ctx context.Context, eventID uuid.UUID) (*models.Budget, error) {
	return s.store.GetBudget(ctx, eventID)
}

// ListBudgets returns budgets matching f.
func (s *Service) ListBudgets(ctx context.Context, f BudgetFilter) ([]*models.Budget, error) {
	return s.store.ListBudgets(ctx, f)
}

// ApproveBudget records the admin decision on a requested budget.
func (s *Service) ApproveBudget(ctx context.Context, actor auth.Actor, eventID uuid.UUID, in ApprovalInput) (*models.Budget, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminRequired
	}
	var before models.BudgetStatus
	b, err := s.store.MutateBudget(ctx, eventID, func(current *models.Budget) (*models.Budget, error) {
		if current == nil {
			return nil, ErrBudgetNotFound
		}
		before = current.Status
		if err := approveBudget(current, actor.UserID, in, s.now()); err != nil {
			return nil, err
		}
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	severity := models.SeverityInfo
	if b.Status == models.BudgetRejected {
		severity = models.SeverityWarning
	}
	s.record(ctx, actor, models.EntityBudget, b.ID, eventID, "BUDGET_"+string(b.Status), severity, b.ApprovalNotes,
		statusState(before), budgetState(b))
	s.publish(eventID, EventBudgetUpdated, b)
	return b, nil
}

// RequestAmendment opens an amendment on a granted budget.
func (s *Service) RequestAmendment(ctx context.Context, actor auth.Actor, eventID uuid.UUID, in AmendmentInput) (*models.Budget, error) {
	var amendmentID uuid.UUID
	b, err := s.store.MutateBudget(ctx, eventID, func(current *models.Budget) (*models.Budget, error) {
		if current == nil {
			return nil, ErrBudgetNotFound
		}
		am, err := requestAmendment(current, actor.UserID, in, s.now())
		if err != nil {
			return nil, err
		}
		amendmentID = am.ID
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, models.EntityAmendment, amendmentID, eventID, "AMENDMENT_REQUESTED", models.SeverityInfo,
		in.Reason, nil, b.Amendment(amendmentID))
	s.publish(eventID, EventBudgetUpdated, b)
	return b, nil
}

// ReviewAmendment approves or rejects a pending amendment.
func (s *Service) ReviewAmendment(ctx context.Context, actor auth.Actor, eventID, amendmentID uuid.UUID, in ReviewInput) (*models.Budget, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminRequired
	}
	var before []models.Category
	b, err := s.store.MutateBudget(ctx, eventID, func(current *models.Budget) (*models.Budget, error) {
		if current == nil {
			return nil, ErrBudgetNotFound
		}
		before = append([]models.Category(nil), current.Categories...)
		if err := reviewAmendment(current, actor.UserID, amendmentID, in, s.now()); err != nil {
			return nil, err
		}
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	severity := models.SeverityInfo
	if in.Status == models.AmendmentRejected {
		severity = models.SeverityWarning
	}
	s.record(ctx, actor, models.EntityAmendment, amendmentID, eventID, "AMENDMENT_"+string(in.Status), severity,
		in.AdminNotes, map[string]interface{}{"categories": before}, map[string]interface{}{"categories": b.Categories})
	s.publish(eventID, EventBudgetUpdated, b)
	return b, nil
}

// CloseBudget closes a granted budget.
func (s *Service) CloseBudget(ctx context.Context, actor auth.Actor, eventID uuid.UUID, note string) (*models.Budget, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminRequired
	}
	var before models.BudgetStatus
	b, err := s.store.MutateBudget(ctx, eventID, func(current *models.Budget) (*models.Budget, error) {
		if current == nil {
			return nil, ErrBudgetNotFound
		}
		before = current.Status
		if err := closeBudget(current, actor.UserID, note, s.now()); err != nil {
			return nil, err
		}
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, models.EntityBudget, b.ID, eventID, "BUDGET_CLOSED", models.SeverityInfo, note,
		statusState(before), budgetState(b))
	s.publish(eventID, EventBudgetUpdated, b)
	return b, nil
}

// ListPendingAmendments returns every open amendment, oldest first.
func (s *Service) ListPendingAmendments(ctx context.Context) ([]PendingAmendment, error) {
	budgets, err := s.store.ListBudgets(ctx, BudgetFilter{PendingAmendment: true})
	if err != nil {
		return nil, err
	}
	out := make([]PendingAmendment, 0, len(budgets))
	for _, b := range budgets {
		am := b.PendingAmendment()
		if am == nil {
			continue
		}
		out = append(out, PendingAmendment{
			EventID:              b.EventID,
			BudgetStatus:         b.Status,
			TotalAllocatedAmount: b.TotalAllocatedAmount,
			Categories:           b.Categories,
			Amendment:            *am,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Amendment.RequestedAt.Before(out[j].Amendment.RequestedAt) })
	return out, nil
}

// LogExpense records a PENDING expense against a granted budget category.
// The amount is not checked against the remaining allocation; overruns show
// up in the over-budget report.
func (s *Service) LogExpense(ctx context.Context, actor auth.Actor, in ExpenseInput) (*models.Expense, error) {
	e, err := newExpense(in, actor.UserID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.checkBudgetCategory(ctx, e.EventID, e.Category); err != nil {
		return nil, err
	}
	if err := s.store.CreateExpense(ctx, e); err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}
	s.record(ctx, actor, models.EntityExpense, e.ID, e.EventID, "EXPENSE_LOGGED", models.SeverityInfo, "", nil, expenseState(e))
	s.publish(e.EventID, EventExpenseUpdated, e)
	return e, nil
}

func (s *Service) checkBudgetCategory(ctx context.Context, eventID uuid.UUID, category models.CategoryName) error {
	b, err := s.store.GetBudget(ctx, eventID)
	if errors.Is(err, ErrBudgetNotFound) {
		return ErrBudgetNotFunded
	}
	if err != nil {
		return err
	}
	if !b.Status.IsFunded() {
		return fmt.Errorf("%w (status %s)", ErrBudgetNotFunded, b.Status)
	}
	if b.Category(category) == nil {
		return fmt.Errorf("%w: %s", ErrCategoryNotBudgeted, category)
	}
	return nil
}

// GetExpense returns one expense.
func (s *Service) GetExpense(ctx context.Context, id uuid.UUID) (*models.Expense, error) {
	return s.store.GetExpense(ctx, id)
}

// ListExpenses returns expenses matching f.
func (s *Service) ListExpenses(ctx context.Context, f ExpenseFilter) ([]*models.Expense, error) {
	return s.store.ListExpenses(ctx, f)
}

// ListPendingExpenses returns every expense awaiting admin review.
func (s *Service) ListPendingExpenses(ctx context.Context) ([]*models.Expense, error) {
	pending := models.ExpensePending
	return s.store.ListExpenses(ctx, ExpenseFilter{Status: &pending})
}

// UpdateExpenseStatus moves an expense through review and reimbursement.
func (s *Service) UpdateExpenseStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, in StatusUpdate) (*models.Expense, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminRequired
	}
	if err := validateStatusUpdate(in); err != nil {
		return nil, err
	}
	var before models.ExpenseStatus
	e, err := s.store.MutateExpense(ctx, id, func(e *models.Expense) error {
		before = e.Status
		return applyExpenseStatus(e, actor.UserID, in, s.now())
	})
	if err != nil {
		return nil, err
	}
	severity := models.SeverityInfo
	if e.Status == models.ExpenseRejected {
		severity = models.SeverityWarning
	}
	s.record(ctx, actor, models.EntityExpense, e.ID, e.EventID, "EXPENSE_"+string(e.Status), severity, e.AdminNotes,
		map[string]interface{}{"status": before}, expenseState(e))
	s.publish(e.EventID, EventExpenseUpdated, e)
	return e, nil
}

// ResubmitExpense sends a CHANGES_REQUESTED expense back to review.
func (s *Service) ResubmitExpense(ctx context.Context, actor auth.Actor, id uuid.UUID, in ResubmitInput) (*models.Expense, error) {
	if in.Category != nil {
		current, err := s.store.GetExpense(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.checkBudgetCategory(ctx, current.EventID, *in.Category); err != nil {
			return nil, err
		}
	}
	e, err := s.store.MutateExpense(ctx, id, func(e *models.Expense) error {
		return applyResubmit(e, actor.UserID, in, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, models.EntityExpense, e.ID, e.EventID, "EXPENSE_RESUBMITTED", models.SeverityInfo, "",
		map[string]interface{}{"status": models.ExpenseChangesRequested}, expenseState(e))
	s.publish(e.EventID, EventExpenseUpdated, e)
	return e, nil
}

// BulkUpdateExpenses applies one transition to many expenses. Each expense is
// updated in its own transaction; a failure on one does not roll back the others.
func (s *Service) BulkUpdateExpenses(ctx context.Context, actor auth.Actor, in BulkUpdateInput) (*BulkResult, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminRequired
	}
	if len(in.ExpenseIDs) == 0 {
		return nil, ErrNoExpenses
	}
	if err := validateStatusUpdate(in.StatusUpdate); err != nil {
		return nil, err
	}
	result := &BulkResult{Updated: []*models.Expense{}, Failed: []BulkFailure{}}
	seen := make(map[uuid.UUID]bool, len(in.ExpenseIDs))
	for _, id := range in.ExpenseIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		e, err := s.UpdateExpenseStatus(ctx, actor, id, in.StatusUpdate)
		if err != nil {
			result.Failed = append(result.Failed, BulkFailure{ExpenseID: id, Message: err.Error()})
			continue
		}
		result.Updated = append(result.Updated, e)
	}
	result.UpdatedCount = len(result.Updated)
	result.FailedCount = len(result.Failed)
	s.logger.Info("bulk expense update",
		zap.String("status", string(in.Status)),
		zap.Int("updated", result.UpdatedCount),
		zap.Int("failed", result.FailedCount))
	return result, nil
}

// PendingReimbursementsByUser groups approved, unpaid personal spends by payee,
// largest payout first.
func (s *Service) PendingReimbursementsByUser(ctx context.Context) ([]PayeeReimbursement, error) {
	approved, personal := models.ExpenseApproved, models.ExpensePersonalSpend
	expenses, err := s.store.ListExpenses(ctx, ExpenseFilter{Status: &approved, Type: &personal})
	if err != nil {
		return nil, err
	}
	return groupByPayee(expenses), nil
}

func groupByPayee(expenses []*models.Expense) []PayeeReimbursement {
	byUser := make(map[uuid.UUID]*PayeeReimbursement)
	for _, e := range expenses {
		p, ok := byUser[e.IncurredBy]
		if !ok {
			p = &PayeeReimbursement{UserID: e.IncurredBy, TotalAmount: decimal.Zero}
			byUser[e.IncurredBy] = p
		}
		p.TotalAmount = p.TotalAmount.Add(e.Amount)
		p.ExpenseCount++
		p.Expenses = append(p.Expenses, e)
	}
	out := make([]PayeeReimbursement, 0, len(byUser))
	for _, p := range byUser {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalAmount.Cmp(out[j].TotalAmount); c != 0 {
			return c > 0
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out
}

// MarkUserReimbursed settles every approved personal spend of one payee after
// the out-of-band payment went through.
func (s *Service) MarkUserReimbursed(ctx context.Context, actor auth.Actor, userID uuid.UUID, paymentReference string) (*BulkResult, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminRequired
	}
	approved, personal := models.ExpenseApproved, models.ExpensePersonalSpend
	expenses, err := s.store.ListExpenses(ctx, ExpenseFilter{Status: &approved, Type: &personal, IncurredBy: &userID})
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(expenses))
	for _, e := range expenses {
		ids = append(ids, e.ID)
	}
	if len(ids) == 0 {
		return &BulkResult{Updated: []*models.Expense{}, Failed: []BulkFailure{}}, nil
	}
	return s.BulkUpdateExpenses(ctx, actor, BulkUpdateInput{
		ExpenseIDs:   ids,
		StatusUpdate: StatusUpdate{Status: models.ExpenseReimbursed, PaymentReference: paymentReference},
	})
}

func (s *Service) record(ctx context.Context, actor auth.Actor, entityType string, entityID, eventID uuid.UUID,
	action string, severity models.Severity, reason string, before, after interface{}) {
	if s.audit == nil {
		return
	}
	actorID := actor.UserID
	entry := &models.AuditLog{
		EntityType: entityType,
		EntityID:   entityID,
		EventID:    &eventID,
		ActionType: action,
		ActorType:  actor.AuditType(),
		ActorID:    &actorID,
		ActorName:  actor.DisplayName(),
		Severity:   severity,
		Reason:     reason,
		OldState:   audit.Snapshot(before),
		NewState:   audit.Snapshot(after),
	}
	// The budget history already holds the authoritative trail; a failed audit
	// write is logged and does not undo the committed change.
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("audit record failed", zap.String("action", action), zap.String("entity_id", entityID.String()), zap.Error(err))
	}
}

func (s *Service) publish(eventID uuid.UUID, event string, payload interface{}) {
	if s.notifier != nil {
		s.notifier.Publish(eventID, event, payload)
	}
}

func statusState(status models.BudgetStatus) interface{} {
	if status == "" {
		return nil
	}
	return map[string]interface{}{"status": status}
}

func budgetState(b *models.Budget) map[string]interface{} {
	return map[string]interface{}{
		"status":                 b.Status,
		"total_requested_amount": b.TotalRequestedAmount,
		"total_allocated_amount": b.TotalAllocatedAmount,
	}
}

func expenseState(e *models.Expense) map[string]interface{} {
	return map[string]interface{}{
		"status":   e.Status,
		"amount":   e.Amount,
		"category": e.Category,
		"type":     e.Type,
	}
}
