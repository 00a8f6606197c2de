package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/client-ledger/internal/apperrors"
	interfaces "github.com/sheikh-saqib/client-ledger/internal/interfaces"
	"github.com/sheikh-saqib/client-ledger/internal/metrics"
	"github.com/sheikh-saqib/client-ledger/internal/models"
	"github.com/sheikh-saqib/client-ledger/internal/models/events"
)

// Ledger applies deposits and withdrawals to client balances.
// It holds a reference to the storage layer and a mutex per client for concurrency control.
type Ledger struct {
	store          interfaces.LedgerStore
	publisher      interfaces.EventPublisher // optional
	metrics        *metrics.Metrics          // optional
	logger         *zap.Logger
	now            func() time.Time
	allowOverdraft bool

	muMap map[string]*sync.Mutex // stores the *sync.Mutex for each client in a map
	mapMu sync.Mutex             // protects the muMap itself
}

const publishTimeout = 5 * time.Second

type Option func(*Ledger)

func WithPublisher(p interfaces.EventPublisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock replaces time.Now as the source of operation timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithOverdraft controls whether a withdrawal may take a balance below zero.
func WithOverdraft(allow bool) Option {
	return func(l *Ledger) { l.allowOverdraft = allow }
}

// NewLedger creates a Ledger over any storage implementation (memory, sqlite, postgres).
// Overdrafts are allowed unless WithOverdraft(false) is passed.
func NewLedger(store interfaces.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:          store,
		logger:         zap.NewNop(),
		now:            time.Now,
		allowOverdraft: true,
		muMap:          make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) getClientLock(clientName string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[clientName]; !exists {
		l.muMap[clientName] = &sync.Mutex{}
	}
	return l.muMap[clientName]
}

// Deposit adds amount to the client's balance and returns the new balance.
func (l *Ledger) Deposit(ctx context.Context, clientName string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	op, err := l.ApplyOperation(ctx, clientName, amount, description, models.Deposit)
	if err != nil {
		return decimal.Zero, err
	}
	return op.Balance, nil
}

// Withdraw subtracts amount from the client's balance and returns the new balance.
func (l *Ledger) Withdraw(ctx context.Context, clientName string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	op, err := l.ApplyOperation(ctx, clientName, amount, description, models.Withdrawal)
	if err != nil {
		return decimal.Zero, err
	}
	return op.Balance, nil
}

// ApplyOperation validates the request, records it and returns the stored operation.
// The client is created on its first operation.
func (l *Ledger) ApplyOperation(ctx context.Context, clientName string, amount decimal.Decimal, description string, kind models.OperationKind) (models.Operation, error) {
	op, err := l.applyOperation(ctx, clientName, amount, description, kind)
	l.observe(kind, err)
	return op, err
}

func (l *Ledger) applyOperation(ctx context.Context, clientName string, amount decimal.Decimal, description string, kind models.OperationKind) (models.Operation, error) {
	if strings.TrimSpace(clientName) == "" {
		return models.Operation{}, apperrors.ErrInvalidClientName
	}
	if !amount.IsPositive() {
		return models.Operation{}, fmt.Errorf("%w: got %s", apperrors.ErrInvalidAmount, amount)
	}
	if !kind.Valid() {
		return models.Operation{}, fmt.Errorf("%w: got %q", apperrors.ErrInvalidKind, kind)
	}

	op, err := l.commit(ctx, clientName, amount, description, kind)
	if err != nil {
		return models.Operation{}, err
	}

	l.logger.Info("operation applied",
		zap.String("client", op.ClientName),
		zap.String("kind", string(kind)),
		zap.String("amount", amount.String()),
		zap.String("balance", op.Balance.String()),
		zap.Int64("sequence", op.Sequence),
	)

	// outside the client lock
	l.publish(ctx, op)
	return op, nil
}

// commit reads the balance, computes and appends under the client lock.
func (l *Ledger) commit(ctx context.Context, clientName string, amount decimal.Decimal, description string, kind models.OperationKind) (models.Operation, error) {
	mu := l.getClientLock(clientName)
	mu.Lock()
	defer mu.Unlock()

	if kind == models.Withdrawal && !l.allowOverdraft {
		if err := l.checkFunds(ctx, clientName, amount); err != nil {
			return models.Operation{}, err
		}
	}

	req := models.OperationRequest{
		ID:          uuid.NewString(),
		ClientName:  clientName,
		Kind:        kind,
		Amount:      amount,
		Description: description,
		CreatedAt:   l.now().UTC().Truncate(time.Second),
	}

	op, err := l.store.ApplyOperation(ctx, req)
	if err != nil {
		l.logger.Error("failed to apply operation",
			zap.String("client", clientName),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return models.Operation{}, fmt.Errorf("%w: %w", apperrors.ErrStorageFailure, err)
	}
	return op, nil
}

func (l *Ledger) observe(kind models.OperationKind, err error) {
	if l.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case apperrors.IsValidation(err), errors.Is(err, apperrors.ErrInsufficientFunds):
		result = "rejected"
	default:
		result = "error"
	}
	l.metrics.OperationsTotal.WithLabelValues(string(kind), result).Inc()
}

func (l *Ledger) checkFunds(ctx context.Context, clientName string, amount decimal.Decimal) error {
	balance := decimal.Zero
	client, err := l.store.GetClient(ctx, clientName)
	switch {
	case errors.Is(err, apperrors.ErrClientNotFound):
	case err != nil:
		return fmt.Errorf("%w: %w", apperrors.ErrStorageFailure, err)
	default:
		balance = client.Balance
	}

	if balance.LessThan(amount) {
		return fmt.Errorf("%w: balance %s, requested %s", apperrors.ErrInsufficientFunds, balance, amount)
	}
	return nil
}

// publish announces a committed operation. A failure here is logged only:
// the operation is already part of the history.
func (l *Ledger) publish(ctx context.Context, op models.Operation) {
	if l.publisher == nil {
		return
	}

	amount := op.Deposit.Decimal
	if op.Withdrawal.Valid {
		amount = op.Withdrawal.Decimal
	}
	event := events.OperationApplied{
		OperationID: op.ID,
		Sequence:    op.Sequence,
		ClientName:  op.ClientName,
		Kind:        string(op.Kind()),
		Amount:      amount,
		Description: op.Description,
		Balance:     op.Balance,
		OccurredAt:  op.CreatedAt,
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := l.publisher.Publish(ctx, event); err != nil {
		l.logger.Warn("failed to publish operation event",
			zap.String("operation_id", op.ID),
			zap.Error(err),
		)
	}
}

// GetBalance returns the client's current balance.
func (l *Ledger) GetBalance(ctx context.Context, clientName string) (decimal.Decimal, error) {
	if strings.TrimSpace(clientName) == "" {
		return decimal.Zero, apperrors.ErrInvalidClientName
	}

	client, err := l.store.GetClient(ctx, clientName)
	if errors.Is(err, apperrors.ErrClientNotFound) {
		return decimal.Zero, err
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", apperrors.ErrStorageFailure, err)
	}
	return client.Balance, nil
}

func (l *Ledger) GetClients(ctx context.Context) ([]models.Client, error) {
	clients, err := l.store.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrStorageFailure, err)
	}
	return clients, nil
}
