package finance

import "errors"

// Lookup errors.
var (
	ErrBudgetNotFound    = errors.New("budget not found")
	ErrExpenseNotFound   = errors.New("expense not found")
	ErrAmendmentNotFound = errors.New("amendment not found")
)

// Workflow errors. Anything wrapping ErrInvalidTransition is a state conflict
// rather than bad input.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAmendmentPending  = errors.New("an amendment is already pending review")
	ErrBudgetNotFunded   = errors.New("budget has not been approved for this event")
	ErrNotReimbursable   = errors.New("only approved personal-spend expenses can be reimbursed")
	ErrNotOwner          = errors.New("only the person who logged the expense can resubmit it")
	ErrAdminRequired     = errors.New("admin role required")
)

// Validation errors.
var (
	ErrNoCategories          = errors.New("at least one category is required")
	ErrInvalidCategory       = errors.New("unknown budget category")
	ErrDuplicateCategory     = errors.New("category listed more than once")
	ErrJustificationRequired = errors.New("justification is required for every category")
	ErrNegativeAmount        = errors.New("requested amount must not be negative")
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrAmountPrecision       = errors.New("amount must have at most two decimal places")
	ErrAmountOutOfRange      = errors.New("amount is too large")
	ErrInvalidAllocation     = errors.New("allocation must be a non-negative amount")
	ErrNotesRequired         = errors.New("notes are required")
	ErrReasonRequired        = errors.New("reason is required")
	ErrInvalidStatus         = errors.New("invalid target status")
	ErrInvalidExpenseType    = errors.New("expense type must be PERSONAL_SPEND or ADMIN_PAID")
	ErrDescriptionRequired   = errors.New("description is required")
	ErrCategoryNotBudgeted   = errors.New("category is not part of the event budget")
	ErrNoExpenses            = errors.New("at least one expense id is required")
	ErrEventRequired         = errors.New("event id is required")
	ErrInvalidReportKind     = errors.New("unknown report type")
)

// IsValidation reports whether err is caused by bad client input.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrNoCategories, ErrInvalidCategory, ErrDuplicateCategory, ErrJustificationRequired,
		ErrNegativeAmount, ErrInvalidAmount, ErrAmountPrecision, ErrAmountOutOfRange, ErrInvalidAllocation, ErrNotesRequired, ErrReasonRequired,
		ErrInvalidStatus, ErrInvalidExpenseType, ErrDescriptionRequired, ErrCategoryNotBudgeted,
		ErrNoExpenses, ErrEventRequired, ErrInvalidReportKind,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
