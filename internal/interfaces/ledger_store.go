package interfaces

import (
	"context"
	"time"

	"github.com/sheikh-saqib/client-ledger/internal/models"
)

// OperationReader is the read side of the ledger used to build statements.
type OperationReader interface {
	// GetOperations returns the client's operations with since <= CreatedAt <= till,
	// ordered by (CreatedAt, Sequence). No match yields an empty slice.
	GetOperations(ctx context.Context, clientName string, since, till time.Time) ([]models.Operation, error)
	// GetLastOperationBefore returns the latest operation strictly before since, or nil.
	GetLastOperationBefore(ctx context.Context, clientName string, since time.Time) (*models.Operation, error)
	GetClient(ctx context.Context, name string) (*models.Client, error)
}

// LedgerStore owns the clients and operations relations.
type LedgerStore interface {
	OperationReader

	// ApplyOperation creates or updates the client row and appends the operation
	// as a single atomic unit, returning the stored operation.
	ApplyOperation(ctx context.Context, req models.OperationRequest) (models.Operation, error)
	ListClients(ctx context.Context) ([]models.Client, error)
	// View runs fn against a consistent snapshot of the store.
	View(ctx context.Context, fn func(r OperationReader) error) error
	Close() error
}
