package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/sheikh-saqib/client-ledger/internal/apperrors"
	interfaces "github.com/sheikh-saqib/client-ledger/internal/interfaces"
	"github.com/sheikh-saqib/client-ledger/internal/models"
)

// SQLiteLedgerStore keeps the ledger in a SQLite database through gorm.
type SQLiteLedgerStore struct {
	db *gorm.DB
}

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for a throwaway database.
func Open(path string, logMode bool) (*SQLiteLedgerStore, error) {
	gormLogger := logger.Default
	if !logMode {
		gormLogger = gormLogger.LogMode(logger.Silent)
	}

	db, err := gorm.Open(sqlite.Open(dsn(path)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	// a single connection serializes writers and keeps ":memory:" databases alive
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := db.AutoMigrate(&clientRow{}, &operationRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &SQLiteLedgerStore{db: db}, nil
}

// dsn appends the foreign key pragma, keeping any query the path already carries.
func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path + "&_foreign_keys=on"
	}
	return path + "?_foreign_keys=on"
}

func (s *SQLiteLedgerStore) ApplyOperation(ctx context.Context, req models.OperationRequest) (models.Operation, error) {
	var op models.Operation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var client clientRow
		err := tx.Where("name = ?", req.ClientName).Take(&client).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			client = clientRow{Name: req.ClientName, Balance: req.Delta()}
			if err := tx.Create(&client).Error; err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to load client: %w", err)
		default:
			client.Balance = client.Balance.Add(req.Delta())
			if err := tx.Model(&clientRow{}).Where("name = ?", client.Name).Update("balance", client.Balance).Error; err != nil {
				return fmt.Errorf("failed to update client balance: %w", err)
			}
		}

		op = models.NewOperation(req, 0, client.Balance)
		row := toRow(op)
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to save operation: %w", err)
		}
		op.Sequence = row.Sequence
		return nil
	})
	if err != nil {
		return models.Operation{}, err
	}
	return op, nil
}

func (s *SQLiteLedgerStore) GetOperations(ctx context.Context, clientName string, since, till time.Time) ([]models.Operation, error) {
	return reader{s.db.WithContext(ctx)}.GetOperations(ctx, clientName, since, till)
}

func (s *SQLiteLedgerStore) GetLastOperationBefore(ctx context.Context, clientName string, since time.Time) (*models.Operation, error) {
	return reader{s.db.WithContext(ctx)}.GetLastOperationBefore(ctx, clientName, since)
}

func (s *SQLiteLedgerStore) GetClient(ctx context.Context, name string) (*models.Client, error) {
	return reader{s.db.WithContext(ctx)}.GetClient(ctx, name)
}

func (s *SQLiteLedgerStore) ListClients(ctx context.Context) ([]models.Client, error) {
	var rows []clientRow
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	clients := make([]models.Client, 0, len(rows))
	for _, r := range rows {
		clients = append(clients, models.Client{Name: r.Name, Balance: r.Balance})
	}
	return clients, nil
}

// View runs fn in one transaction; with a single connection no writer can interleave.
func (s *SQLiteLedgerStore) View(ctx context.Context, fn func(r interfaces.OperationReader) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(reader{tx})
	})
}

func (s *SQLiteLedgerStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type reader struct {
	db *gorm.DB
}

func (r reader) GetOperations(_ context.Context, clientName string, since, till time.Time) ([]models.Operation, error) {
	var rows []operationRow
	err := r.db.
		Where("client_name = ? AND created_at >= ? AND created_at <= ?", clientName, lowerBound(since), upperBound(till)).
		Order("created_at ASC").
		Order("sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}

	operations := make([]models.Operation, 0, len(rows))
	for _, row := range rows {
		op, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		operations = append(operations, op)
	}
	return operations, nil
}

func (r reader) GetLastOperationBefore(_ context.Context, clientName string, since time.Time) (*models.Operation, error) {
	var row operationRow
	err := r.db.
		Where("client_name = ? AND created_at < ?", clientName, lowerBound(since)).
		Order("created_at DESC").
		Order("sequence DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query previous operation: %w", err)
	}

	op, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (r reader) GetClient(_ context.Context, name string) (*models.Client, error) {
	var row clientRow
	err := r.db.Where("name = ?", name).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	return &models.Client{Name: row.Name, Balance: row.Balance}, nil
}

func toRow(op models.Operation) operationRow {
	return operationRow{
		ID:          op.ID,
		ClientName:  op.ClientName,
		Description: op.Description,
		Withdrawal:  op.Withdrawal,
		Deposit:     op.Deposit,
		Balance:     op.Balance,
		Timestamp:   formatTimestamp(op.CreatedAt),
	}
}

func fromRow(row operationRow) (models.Operation, error) {
	createdAt, err := time.ParseInLocation(timestampLayout, row.Timestamp, time.UTC)
	if err != nil {
		return models.Operation{}, fmt.Errorf("failed to parse timestamp %q: %w", row.Timestamp, err)
	}
	return models.Operation{
		ID:          row.ID,
		Sequence:    row.Sequence,
		ClientName:  row.ClientName,
		Description: row.Description,
		Withdrawal:  row.Withdrawal,
		Deposit:     row.Deposit,
		Balance:     row.Balance,
		CreatedAt:   createdAt,
	}, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Stored timestamps have whole seconds, so a fractional bound is rounded inwards.
func lowerBound(since time.Time) string {
	if t := since.Truncate(time.Second); !t.Equal(since) {
		return formatTimestamp(t.Add(time.Second))
	}
	return formatTimestamp(since)
}

func upperBound(till time.Time) string {
	return formatTimestamp(till.Truncate(time.Second))
}

var _ interfaces.LedgerStore = (*SQLiteLedgerStore)(nil)
