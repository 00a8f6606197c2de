package writer

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/client-ledger/internal/models"
)

// DateLayout is the timestamp format statements are printed with.
const DateLayout = "2006-01-02 15:04:05"

// CSVWriter writes statements in the layout of a printed bank statement:
// a previous balance row, one row per operation, then totals.
type CSVWriter struct {
	IncludeMeta bool // leading "# Client", "# Since" and "# Till" rows
}

// Write writes the statement in CSV format to the given writer.
func (w *CSVWriter) Write(out io.Writer, stmt *models.Statement) error {
	writer := csv.NewWriter(out)

	if w.IncludeMeta {
		meta := [][]string{
			{"# Client", stmt.ClientName},
			{"# Since", stmt.Since.UTC().Format(DateLayout)},
			{"# Till", stmt.Till.UTC().Format(DateLayout)},
		}
		for _, record := range meta {
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write CSV metadata: %w", err)
			}
		}
	}

	header := []string{"Date", "Description", "Withdrawals", "Deposits", "Balance"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	if err := writer.Write([]string{"", "Previous balance", "", "", formatAmount(stmt.PreviousBalance)}); err != nil {
		return fmt.Errorf("failed to write CSV row: %w", err)
	}

	for _, row := range stmt.Rows {
		record := []string{
			row.Date.UTC().Format(DateLayout),
			row.Description,
			formatNullAmount(row.Withdrawal),
			formatNullAmount(row.Deposit),
			formatAmount(row.Balance),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	totals := []string{"", "Totals", "", "", formatAmount(stmt.ClosingBalance)}
	if stmt.ShowTotalWithdrawals() {
		totals[2] = formatAmount(stmt.TotalWithdrawals)
	}
	if stmt.ShowTotalDeposits() {
		totals[3] = formatAmount(stmt.TotalDeposits)
	}
	if err := writer.Write(totals); err != nil {
		return fmt.Errorf("failed to write CSV totals: %w", err)
	}

	writer.Flush()
	return writer.Error()
}

func formatAmount(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "-$" + amount.Neg().StringFixed(2)
	}
	return "$" + amount.StringFixed(2)
}

func formatNullAmount(amount decimal.NullDecimal) string {
	if !amount.Valid {
		return ""
	}
	return formatAmount(amount.Decimal)
}
