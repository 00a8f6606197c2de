package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/client-ledger/internal/apperrors"
	interfaces "github.com/sheikh-saqib/client-ledger/internal/interfaces"
	"github.com/sheikh-saqib/client-ledger/internal/models"
)

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// Writers take the exclusive lock, readers and View share the read lock.
type MemoryLedgerStore struct {
	mu         sync.RWMutex             // protects everything below
	clients    map[string]models.Client // client name -> current balance
	operations []models.Operation       // append-only history in insertion order
	ids        map[string]struct{}      // operation ids already recorded
	sequence   int64                    // last sequence handed out
}

// NewMemoryLedgerStore creates an empty store
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		clients:    make(map[string]models.Client),
		operations: make([]models.Operation, 0),
		ids:        make(map[string]struct{}),
	}
}

// ApplyOperation updates (or creates) the client and appends the operation under one lock,
// so no reader ever sees one without the other.
func (m *MemoryLedgerStore) ApplyOperation(ctx context.Context, req models.OperationRequest) (models.Operation, error) {
	if err := ctx.Err(); err != nil {
		return models.Operation{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.ids[req.ID]; dup {
		return models.Operation{}, fmt.Errorf("%w: %s", apperrors.ErrDuplicateID, req.ID)
	}

	client, exists := m.clients[req.ClientName]
	if !exists {
		client = models.Client{Name: req.ClientName, Balance: decimal.Zero}
	}
	client.Balance = client.Balance.Add(req.Delta())

	m.sequence++
	op := models.NewOperation(req, m.sequence, client.Balance)

	m.clients[req.ClientName] = client
	m.operations = append(m.operations, op)
	m.ids[op.ID] = struct{}{}
	return op, nil
}

func (m *MemoryLedgerStore) GetOperations(ctx context.Context, clientName string, since, till time.Time) ([]models.Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshot{m}.GetOperations(ctx, clientName, since, till)
}

func (m *MemoryLedgerStore) GetLastOperationBefore(ctx context.Context, clientName string, since time.Time) (*models.Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshot{m}.GetLastOperationBefore(ctx, clientName, since)
}

func (m *MemoryLedgerStore) GetClient(ctx context.Context, name string) (*models.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshot{m}.GetClient(ctx, name)
}

func (m *MemoryLedgerStore) ListClients(ctx context.Context) ([]models.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	clients := make([]models.Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	slices.SortFunc(clients, func(a, b models.Client) int {
		return strings.Compare(a.Name, b.Name)
	})
	return clients, nil
}

// View holds the read lock for the whole callback so writes cannot interleave.
func (m *MemoryLedgerStore) View(ctx context.Context, fn func(r interfaces.OperationReader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(snapshot{m})
}

func (m *MemoryLedgerStore) Close() error {
	return nil
}

// snapshot reads the store without locking; callers must hold m.mu.
type snapshot struct {
	m *MemoryLedgerStore
}

func (s snapshot) GetOperations(_ context.Context, clientName string, since, till time.Time) ([]models.Operation, error) {
	result := make([]models.Operation, 0)
	for _, op := range s.m.operations {
		if op.ClientName != clientName {
			continue
		}
		if op.CreatedAt.Before(since) || op.CreatedAt.After(till) {
			continue
		}
		result = append(result, op)
	}
	// the clock may step backwards between writes, so insertion order alone is not enough
	slices.SortStableFunc(result, models.CompareOperations)
	return result, nil
}

func (s snapshot) GetLastOperationBefore(_ context.Context, clientName string, since time.Time) (*models.Operation, error) {
	var last *models.Operation
	for i := range s.m.operations {
		op := s.m.operations[i]
		if op.ClientName != clientName || !op.CreatedAt.Before(since) {
			continue
		}
		if last == nil || models.CompareOperations(op, *last) > 0 {
			found := op
			last = &found
		}
	}
	return last, nil
}

func (s snapshot) GetClient(_ context.Context, name string) (*models.Client, error) {
	client, ok := s.m.clients[name]
	if !ok {
		return nil, apperrors.ErrClientNotFound
	}
	return &client, nil
}

// Compile-time check: ensure MemoryLedgerStore implements LedgerStore interface
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
