package finance

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eventdesk/backend/internal/models"
)

// Money columns are NUMERIC(14,2).
const moneyScale = 2

var maxMoney = decimal.RequireFromString("999999999999.99")

// checkMoney rejects amounts the database would round or refuse.
func checkMoney(d decimal.Decimal) error {
	if !d.Equal(d.Round(moneyScale)) {
		return fmt.Errorf("%w: %s", ErrAmountPrecision, d)
	}
	if d.Abs().GreaterThan(maxMoney) {
		return fmt.Errorf("%w: %s", ErrAmountOutOfRange, d)
	}
	return nil
}

// checkTotals verifies the derived totals still fit their columns.
func checkTotals(b *models.Budget) error {
	if err := checkMoney(b.TotalRequestedAmount); err != nil {
		return fmt.Errorf("total requested: %w", err)
	}
	if err := checkMoney(b.TotalAllocatedAmount); err != nil {
		return fmt.Errorf("total allocated: %w", err)
	}
	return nil
}
