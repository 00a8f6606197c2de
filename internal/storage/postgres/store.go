package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/client-ledger/internal/apperrors"
	interfaces "github.com/sheikh-saqib/client-ledger/internal/interfaces" // interface LedgerStore
	"github.com/sheikh-saqib/client-ledger/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS clients (
	name    TEXT PRIMARY KEY CHECK (name <> ''),
	balance NUMERIC NOT NULL
);

CREATE TABLE IF NOT EXISTS operations (
	sequence    BIGSERIAL PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	client_name TEXT NOT NULL REFERENCES clients (name),
	description TEXT NOT NULL DEFAULT '',
	withdrawal  NUMERIC,
	deposit     NUMERIC,
	balance     NUMERIC NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	CHECK ((withdrawal IS NULL) <> (deposit IS NULL))
);

CREATE INDEX IF NOT EXISTS operations_client_created_idx
	ON operations (client_name, created_at, sequence);
`

const operationColumns = `sequence, id, client_name, description, withdrawal, deposit, balance, created_at`

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

// Open connects to dsn, verifies the connection and makes sure the schema exists.
func Open(ctx context.Context, dsn string) (*PostgresLedgerStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := NewPostgresLedgerStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (p *PostgresLedgerStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate postgres schema: %w", err)
	}
	return nil
}

// ApplyOperation upserts the client balance and inserts the operation in one transaction.
// The upsert row lock serializes concurrent writers for the same client.
func (p *PostgresLedgerStore) ApplyOperation(ctx context.Context, req models.OperationRequest) (op models.Operation, err error) {
	const upsertClient = `INSERT INTO clients (name, balance) VALUES ($1, $2)
	ON CONFLICT (name) DO UPDATE SET balance = clients.balance + EXCLUDED.balance
	RETURNING balance`

	const insertOperation = `INSERT INTO operations (id, client_name, description, withdrawal, deposit, balance, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING sequence`

	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Operation{}, err
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	var balance decimal.Decimal
	err = dbTx.QueryRowContext(ctx, upsertClient, req.ClientName, req.Delta()).Scan(&balance)
	if err != nil {
		return models.Operation{}, fmt.Errorf("upsert client: %w", err)
	}

	op = models.NewOperation(req, 0, balance)
	err = dbTx.QueryRowContext(ctx, insertOperation,
		op.ID, op.ClientName, op.Description, op.Withdrawal, op.Deposit, op.Balance, op.CreatedAt,
	).Scan(&op.Sequence)
	if err != nil {
		return models.Operation{}, fmt.Errorf("insert operation: %w", err)
	}

	if err = dbTx.Commit(); err != nil {
		return models.Operation{}, err
	}
	return op, nil
}

func (p *PostgresLedgerStore) GetOperations(ctx context.Context, clientName string, since, till time.Time) ([]models.Operation, error) {
	return reader{p.db}.GetOperations(ctx, clientName, since, till)
}

func (p *PostgresLedgerStore) GetLastOperationBefore(ctx context.Context, clientName string, since time.Time) (*models.Operation, error) {
	return reader{p.db}.GetLastOperationBefore(ctx, clientName, since)
}

func (p *PostgresLedgerStore) GetClient(ctx context.Context, name string) (*models.Client, error) {
	return reader{p.db}.GetClient(ctx, name)
}

func (p *PostgresLedgerStore) ListClients(ctx context.Context) ([]models.Client, error) {
	const query = `SELECT name, balance FROM clients ORDER BY name`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]models.Client, 0)
	for rows.Next() {
		var c models.Client
		if err := rows.Scan(&c.Name, &c.Balance); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return clients, nil
}

// View runs fn inside a read-only repeatable-read transaction so every query sees one snapshot.
func (p *PostgresLedgerStore) View(ctx context.Context, fn func(r interfaces.OperationReader) error) error {
	dbTx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	if err := fn(reader{dbTx}); err != nil {
		return err
	}
	return dbTx.Commit()
}

func (p *PostgresLedgerStore) Close() error {
	return p.db.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type reader struct {
	q queryer
}

func (r reader) GetOperations(ctx context.Context, clientName string, since, till time.Time) ([]models.Operation, error) {
	const query = `SELECT ` + operationColumns + ` FROM operations
	WHERE client_name = $1 AND created_at >= $2 AND created_at <= $3
	ORDER BY created_at ASC, sequence ASC`

	rows, err := r.q.QueryContext(ctx, query, clientName, since, till)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	operations := make([]models.Operation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		operations = append(operations, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return operations, nil
}

func (r reader) GetLastOperationBefore(ctx context.Context, clientName string, since time.Time) (*models.Operation, error) {
	const query = `SELECT ` + operationColumns + ` FROM operations
	WHERE client_name = $1 AND created_at < $2
	ORDER BY created_at DESC, sequence DESC
	LIMIT 1`

	op, err := scanOperation(r.q.QueryRowContext(ctx, query, clientName, since))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (r reader) GetClient(ctx context.Context, name string) (*models.Client, error) {
	const query = `SELECT name, balance FROM clients WHERE name = $1`

	var c models.Client
	err := r.q.QueryRowContext(ctx, query, name).Scan(&c.Name, &c.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(s scanner) (models.Operation, error) {
	var op models.Operation
	err := s.Scan(
		&op.Sequence,
		&op.ID,
		&op.ClientName,
		&op.Description,
		&op.Withdrawal,
		&op.Deposit,
		&op.Balance,
		&op.CreatedAt,
	)
	if err != nil {
		return models.Operation{}, err
	}
	op.CreatedAt = op.CreatedAt.UTC()
	return op, nil
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
