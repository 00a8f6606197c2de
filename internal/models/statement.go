package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statement is a client's history over [Since, Till] with derived balances and totals
type Statement struct {
	ClientName       string          `json:"client"`
	Since            time.Time       `json:"since"`
	Till             time.Time       `json:"till"`
	PreviousBalance  decimal.Decimal `json:"previous_balance"`
	Rows             []StatementRow  `json:"rows"`
	TotalDeposits    decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
	ClosingBalance   decimal.Decimal `json:"closing_balance"`
}

// StatementRow is one operation as it appears on a statement
type StatementRow struct {
	Date        time.Time           `json:"date"`
	Description string              `json:"description"`
	Withdrawal  decimal.NullDecimal `json:"withdrawal"`
	Deposit     decimal.NullDecimal `json:"deposit"`
	Balance     decimal.Decimal     `json:"balance"`
}

// ShowTotalDeposits reports whether the deposits total should be displayed
func (s *Statement) ShowTotalDeposits() bool {
	return s.TotalDeposits.IsPositive()
}

// ShowTotalWithdrawals reports whether the withdrawals total should be displayed
func (s *Statement) ShowTotalWithdrawals() bool {
	return s.TotalWithdrawals.IsPositive()
}
