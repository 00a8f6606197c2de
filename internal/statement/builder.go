// Package statement reconstructs a client's statement for a date range from the
// operation history. Nothing is cached: every call recomputes from the store.
package statement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/client-ledger/internal/apperrors"
	interfaces "github.com/sheikh-saqib/client-ledger/internal/interfaces"
	"github.com/sheikh-saqib/client-ledger/internal/models"
)

// Viewer gives the builder a consistent snapshot of the history.
type Viewer interface {
	View(ctx context.Context, fn func(r interfaces.OperationReader) error) error
}

type Builder struct {
	store  Viewer
	logger *zap.Logger
}

func NewBuilder(store Viewer, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{store: store, logger: logger}
}

// Build returns the client's statement for the inclusive range [since, till].
// It fails with apperrors.ErrNoData when no operation falls in the range.
func (b *Builder) Build(ctx context.Context, clientName string, since, till time.Time) (*models.Statement, error) {
	if strings.TrimSpace(clientName) == "" {
		return nil, apperrors.ErrInvalidClientName
	}
	if since.After(till) {
		return nil, fmt.Errorf("%w: %s > %s", apperrors.ErrInvalidRange, since.Format(time.RFC3339), till.Format(time.RFC3339))
	}

	var (
		previous *models.Operation
		rows     []models.Operation
	)
	err := b.store.View(ctx, func(r interfaces.OperationReader) error {
		var err error
		previous, err = r.GetLastOperationBefore(ctx, clientName, since)
		if err != nil {
			return fmt.Errorf("load previous operation: %w", err)
		}
		rows, err = r.GetOperations(ctx, clientName, since, till)
		if err != nil {
			return fmt.Errorf("load operations: %w", err)
		}
		return nil
	})
	if err != nil {
		b.logger.Error("failed to read statement data",
			zap.String("client", clientName),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrStorageFailure, err)
	}

	if len(rows) == 0 {
		return nil, apperrors.ErrNoData
	}

	stmt := &models.Statement{
		ClientName:       clientName,
		Since:            since,
		Till:             till,
		PreviousBalance:  decimal.Zero,
		Rows:             make([]models.StatementRow, 0, len(rows)),
		TotalDeposits:    decimal.Zero,
		TotalWithdrawals: decimal.Zero,
	}
	if previous != nil {
		stmt.PreviousBalance = previous.Balance
	}

	for _, op := range rows {
		if op.Deposit.Valid {
			stmt.TotalDeposits = stmt.TotalDeposits.Add(op.Deposit.Decimal)
		}
		if op.Withdrawal.Valid {
			stmt.TotalWithdrawals = stmt.TotalWithdrawals.Add(op.Withdrawal.Decimal)
		}
		stmt.Rows = append(stmt.Rows, models.StatementRow{
			Date:        op.CreatedAt,
			Description: op.Description,
			Withdrawal:  op.Withdrawal,
			Deposit:     op.Deposit,
			Balance:     op.Balance,
		})
	}
	stmt.ClosingBalance = rows[len(rows)-1].Balance

	b.logger.Debug("statement built",
		zap.String("client", clientName),
		zap.Int("rows", len(stmt.Rows)),
	)
	return stmt, nil
}
