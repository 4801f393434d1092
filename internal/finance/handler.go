package finance

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/internal/permissions"
	"github.com/eventdesk/backend/pkg/response"
)

// Gate checks event-scoped permissions for requests whose event id is in the body.
type Gate interface {
	Allowed(ctx context.Context, actor auth.Actor, eventID uuid.UUID, key permissions.Key) bool
}

// UserLookup resolves payee details for the reimbursement worklist.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Handler handles finance HTTP endpoints.
type Handler struct {
	svc    *Service
	gate   Gate
	users  UserLookup
	logger *zap.Logger
}

// NewHandler creates a finance handler. users may be nil.
func NewHandler(svc *Service, gate Gate, users UserLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, gate: gate, users: users, logger: logger}
}

// RequestBudgetRequest is the body for POST /finance/budget/request.
type RequestBudgetRequest struct {
	EventID    uuid.UUID                `json:"event_id"`
	Categories []models.CategoryRequest `json:"categories"`
}

// CloseRequest is the body for PUT /finance/budget/:eventId/close.
type CloseRequest struct {
	Note string `json:"note"`
}

// MarkPaidRequest is the body for PUT /finance/reimbursements/:userId/mark-paid.
type MarkPaidRequest struct {
	PaymentReference string `json:"payment_reference"`
}

// PayeeResponse is one row of the reimbursement worklist.
type PayeeResponse struct {
	PayeeReimbursement
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	UPIID    string `json:"upi_id,omitempty"`
}

// fail maps service errors to the response envelope.
func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	switch {
	case IsValidation(err):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrBudgetNotFound), errors.Is(err, ErrExpenseNotFound), errors.Is(err, ErrAmendmentNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAmendmentPending),
		errors.Is(err, ErrBudgetNotFunded), errors.Is(err, ErrNotReimbursable):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrAdminRequired):
		response.Forbidden(c, err.Error())
	default:
		h.logger.Error(fallback, zap.Error(err))
		response.Internal(c, fallback)
	}
}

func (h *Handler) allowed(c *gin.Context, actor auth.Actor, eventID uuid.UUID, key permissions.Key) bool {
	if h.gate == nil || h.gate.Allowed(c.Request.Context(), actor, eventID, key) {
		return true
	}
	response.Forbidden(c, "missing permission "+string(key))
	return false
}

func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// RequestBudget handles POST /finance/budget/request.
func (h *Handler) RequestBudget(c *gin.Context) {
	actor := auth.MustActor(c)
	var req RequestBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.EventID == uuid.Nil {
		response.BadRequest(c, ErrEventRequired.Error())
		return
	}
	if !h.allowed(c, actor, req.EventID, permissions.FinanceRequestBudget) {
		return
	}
	b, err := h.svc.RequestBudget(c.Request.Context(), actor, req.EventID, req.Categories)
	if err != nil {
		h.fail(c, err, "failed to request budget")
		return
	}
	response.Created(c, b)
}

// GetBudget handles GET /finance/budget/:eventId.
func (h *Handler) GetBudget(c *gin.Context) {
	eventID, ok := paramUUID(c, "eventId")
	if !ok {
		return
	}
	b, err := h.svc.GetBudget(c.Request.Context(), eventID)
	if err != nil {
		h.fail(c, err, "failed to load budget")
		return
	}
	response.OK(c, b)
}

// ListBudgets handles GET /finance/budgets?status=.
func (h *Handler) ListBudgets(c *gin.Context) {
	var f BudgetFilter
	if s := c.Query("status"); s != "" {
		st := models.BudgetStatus(strings.ToUpper(s))
		f.Status = &st
	}
	list, err := h.svc.ListBudgets(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err, "failed to list budgets")
		return
	}
	response.OK(c, list)
}

// ApproveBudget handles PUT /finance/budget/:eventId/approval.
func (h *Handler) ApproveBudget(c *gin.Context) {
	eventID, ok := paramUUID(c, "eventId")
	if !ok {
		return
	}
	var req ApprovalInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	b, err := h.svc.ApproveBudget(c.Request.Context(), auth.MustActor(c), eventID, req)
	if err != nil {
		h.fail(c, err, "failed to update budget")
		return
	}
	response.OK(c, b)
}

// RequestAmendment handles POST /finance/budget/:eventId/amendment.
func (h *Handler) RequestAmendment(c *gin.Context) {
	eventID, ok := paramUUID(c, "eventId")
	if !ok {
		return
	}
	var req AmendmentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	b, err := h.svc.RequestAmendment(c.Request.Context(), auth.MustActor(c), eventID, req)
	if err != nil {
		h.fail(c, err, "failed to request amendment")
		return
	}
	response.Created(c, b)
}

// ReviewAmendment handles PUT /finance/budget/:eventId/amendment/:amendmentId.
func (h *Handler) ReviewAmendment(c *gin.Context) {
	eventID, ok := paramUUID(c, "eventId")
	if !ok {
		return
	}
	amendmentID, ok := paramUUID(c, "amendmentId")
	if !ok {
		return
	}
	var req ReviewInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	b, err := h.svc.ReviewAmendment(c.Request.Context(), auth.MustActor(c), eventID, amendmentID, req)
	if err != nil {
		h.fail(c, err, "failed to review amendment")
		return
	}
	response.OK(c, b)
}

// CloseBudget handles PUT /finance/budget/:eventId/close.
func (h *Handler) CloseBudget(c *gin.Context) {
	eventID, ok := paramUUID(c, "eventId")
	if !ok {
		return
	}
	var req CloseRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	b, err := h.svc.CloseBudget(c.Request.Context(), auth.MustActor(c), eventID, strings.TrimSpace(req.Note))
	if err != nil {
		h.fail(c, err, "failed to close budget")
		return
	}
	response.OK(c, b)
}

// ListPendingAmendments handles GET /finance/amendments/pending.
func (h *Handler) ListPendingAmendments(c *gin.Context) {
	list, err := h.svc.ListPendingAmendments(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to list amendments")
		return
	}
	response.OK(c, list)
}

// LogExpense handles POST /finance/expense.
func (h *Handler) LogExpense(c *gin.Context) {
	actor := auth.MustActor(c)
	var req ExpenseInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.EventID == uuid.Nil {
		response.BadRequest(c, ErrEventRequired.Error())
		return
	}
	if !h.allowed(c, actor, req.EventID, permissions.FinanceLogExpense) {
		return
	}
	e, err := h.svc.LogExpense(c.Request.Context(), actor, req)
	if err != nil {
		h.fail(c, err, "failed to log expense")
		return
	}
	response.Created(c, e)
}

// ListEventExpenses handles GET /finance/budget/:eventId/expenses?status=.
func (h *Handler) ListEventExpenses(c *gin.Context) {
	eventID, ok := paramUUID(c, "eventId")
	if !ok {
		return
	}
	f := ExpenseFilter{EventID: &eventID}
	if s := c.Query("status"); s != "" {
		st := models.ExpenseStatus(strings.ToUpper(s))
		f.Status = &st
	}
	list, err := h.svc.ListExpenses(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err, "failed to list expenses")
		return
	}
	response.OK(c, list)
}

// ListMyExpenses handles GET /finance/expenses/mine.
func (h *Handler) ListMyExpenses(c *gin.Context) {
	actor := auth.MustActor(c)
	list, err := h.svc.ListExpenses(c.Request.Context(), ExpenseFilter{IncurredBy: &actor.UserID})
	if err != nil {
		h.fail(c, err, "failed to list expenses")
		return
	}
	response.OK(c, list)
}

// ListPendingExpenses handles GET /finance/expenses/pending/all.
func (h *Handler) ListPendingExpenses(c *gin.Context) {
	list, err := h.svc.ListPendingExpenses(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to list expenses")
		return
	}
	response.OK(c, list)
}

// UpdateExpenseStatus handles PUT /finance/expense/:expenseId/status.
func (h *Handler) UpdateExpenseStatus(c *gin.Context) {
	id, ok := paramUUID(c, "expenseId")
	if !ok {
		return
	}
	var req StatusUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	e, err := h.svc.UpdateExpenseStatus(c.Request.Context(), auth.MustActor(c), id, req)
	if err != nil {
		h.fail(c, err, "failed to update expense")
		return
	}
	response.OK(c, e)
}

// ResubmitExpense handles PUT /finance/expense/:expenseId/resubmit.
func (h *Handler) ResubmitExpense(c *gin.Context) {
	actor := auth.MustActor(c)
	id, ok := paramUUID(c, "expenseId")
	if !ok {
		return
	}
	var req ResubmitInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	current, err := h.svc.GetExpense(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to load expense")
		return
	}
	if !h.allowed(c, actor, current.EventID, permissions.FinanceLogExpense) {
		return
	}
	e, err := h.svc.ResubmitExpense(c.Request.Context(), actor, id, req)
	if err != nil {
		h.fail(c, err, "failed to resubmit expense")
		return
	}
	response.OK(c, e)
}

// BulkUpdateExpenses handles PUT /finance/expenses/bulk-update.
func (h *Handler) BulkUpdateExpenses(c *gin.Context) {
	var req BulkUpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.BulkUpdateExpenses(c.Request.Context(), auth.MustActor(c), req)
	if err != nil {
		h.fail(c, err, "failed to update expenses")
		return
	}
	response.OK(c, res)
}

// PendingReimbursements handles GET /finance/reimbursements/pending.
func (h *Handler) PendingReimbursements(c *gin.Context) {
	ctx := c.Request.Context()
	list, err := h.svc.PendingReimbursementsByUser(ctx)
	if err != nil {
		h.fail(c, err, "failed to load reimbursements")
		return
	}
	out := make([]PayeeResponse, 0, len(list))
	for _, p := range list {
		row := PayeeResponse{PayeeReimbursement: p}
		if h.users != nil {
			if u, err := h.users.GetByID(ctx, p.UserID); err == nil {
				row.FullName, row.Email, row.UPIID = u.FullName, u.Email, u.UPIID
			}
		}
		out = append(out, row)
	}
	response.OK(c, out)
}

// MarkUserReimbursed handles PUT /finance/reimbursements/:userId/mark-paid.
func (h *Handler) MarkUserReimbursed(c *gin.Context) {
	userID, ok := paramUUID(c, "userId")
	if !ok {
		return
	}
	var req MarkPaidRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	res, err := h.svc.MarkUserReimbursed(c.Request.Context(), auth.MustActor(c), userID, strings.TrimSpace(req.PaymentReference))
	if err != nil {
		h.fail(c, err, "failed to mark reimbursed")
		return
	}
	response.OK(c, res)
}

// EventReport handles GET /finance/reports/event-wise.
func (h *Handler) EventReport(c *gin.Context) {
	list, err := h.svc.EventReports(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to build report")
		return
	}
	response.OK(c, list)
}

// CategoryReport handles GET /finance/reports/category-wise.
func (h *Handler) CategoryReport(c *gin.Context) {
	list, err := h.svc.CategoryReports(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to build report")
		return
	}
	response.OK(c, list)
}

// OverBudgetReport handles GET /finance/reports/over-budget.
func (h *Handler) OverBudgetReport(c *gin.Context) {
	list, err := h.svc.OverBudget(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to build report")
		return
	}
	response.OK(c, list)
}

// ExportReport handles GET /finance/reports/export?type=. The CSV is rendered
// in full before any byte is written so errors still get the JSON envelope.
func (h *Handler) ExportReport(c *gin.Context) {
	kind, err := ParseReportKind(c.DefaultQuery("type", string(ReportEventWise)))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := h.svc.ExportCSV(c.Request.Context(), kind, &buf); err != nil {
		h.fail(c, err, "failed to export report")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+kind.Filename(time.Now())+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// bindOptionalJSON binds a body that may be omitted entirely. A body that is
// present but malformed is still a 400.
func bindOptionalJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid request: "+err.Error())
		return false
	}
	return true
}
