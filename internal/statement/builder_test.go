package statement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sheikh-saqib/client-ledger/internal/apperrors"
	interfaces "github.com/sheikh-saqib/client-ledger/internal/interfaces"
	"github.com/sheikh-saqib/client-ledger/internal/ledger"
	"github.com/sheikh-saqib/client-ledger/internal/models"
	"github.com/sheikh-saqib/client-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/client-ledger/internal/storage/sqlite"
)

var t0 = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

// clock hands out the given instants in order.
func clock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		now := times[i]
		i++
		return now
	}
}

type brokenViewer struct{ err error }

func (b brokenViewer) View(context.Context, func(interfaces.OperationReader) error) error {
	return b.err
}

func stores(t *testing.T) map[string]interfaces.LedgerStore {
	lite, err := sqlite.Open(":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { lite.Close() })

	return map[string]interfaces.LedgerStore{
		"memory": memory.NewMemoryLedgerStore(),
		"sqlite": lite,
	}
}

func TestBuild_AliceStatement(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := ledger.NewLedger(store, ledger.WithClock(clock(t0.Add(time.Hour), t0.Add(2*time.Hour))))
			_, err := l.Deposit(ctx, "Alice", dec("100"), "init")
			require.NoError(t, err)
			_, err = l.Withdraw(ctx, "Alice", dec("30"), "atm")
			require.NoError(t, err)

			stmt, err := NewBuilder(store, zaptest.NewLogger(t)).Build(ctx, "Alice", t0, t0.Add(3*time.Hour))
			require.NoError(t, err)

			assert.Equal(t, "Alice", stmt.ClientName)
			assertDecimal(t, "0", stmt.PreviousBalance)
			require.Len(t, stmt.Rows, 2)

			assert.Equal(t, "init", stmt.Rows[0].Description)
			assert.True(t, stmt.Rows[0].Deposit.Valid)
			assert.False(t, stmt.Rows[0].Withdrawal.Valid)
			assertDecimal(t, "100", stmt.Rows[0].Deposit.Decimal)
			assertDecimal(t, "100", stmt.Rows[0].Balance)
			assert.True(t, t0.Add(time.Hour).Equal(stmt.Rows[0].Date))

			assert.Equal(t, "atm", stmt.Rows[1].Description)
			assert.True(t, stmt.Rows[1].Withdrawal.Valid)
			assert.False(t, stmt.Rows[1].Deposit.Valid)
			assertDecimal(t, "30", stmt.Rows[1].Withdrawal.Decimal)
			assertDecimal(t, "70", stmt.Rows[1].Balance)

			assertDecimal(t, "100", stmt.TotalDeposits)
			assertDecimal(t, "30", stmt.TotalWithdrawals)
			assertDecimal(t, "70", stmt.ClosingBalance)
			assert.True(t, stmt.ShowTotalDeposits())
			assert.True(t, stmt.ShowTotalWithdrawals())
		})
	}
}

func TestBuild_PreviousBalanceAndBounds(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			day := 24 * time.Hour
			l := ledger.NewLedger(store, ledger.WithClock(clock(
				t0,
				t0.Add(day),
				t0.Add(2*day),
				t0.Add(3*day),
			)))
			_, err := l.Deposit(ctx, "Alice", dec("100"), "salary")
			require.NoError(t, err)
			_, err = l.Withdraw(ctx, "Alice", dec("20"), "rent")
			require.NoError(t, err)
			_, err = l.Deposit(ctx, "Alice", dec("5"), "refund")
			require.NoError(t, err)
			_, err = l.Withdraw(ctx, "Alice", dec("1"), "fee")
			require.NoError(t, err)

			// both bounds fall exactly on operations
			stmt, err := NewBuilder(store, nil).Build(ctx, "Alice", t0.Add(day), t0.Add(2*day))
			require.NoError(t, err)

			assertDecimal(t, "100", stmt.PreviousBalance)
			require.Len(t, stmt.Rows, 2)
			assert.Equal(t, "rent", stmt.Rows[0].Description)
			assert.Equal(t, "refund", stmt.Rows[1].Description)
			assertDecimal(t, "5", stmt.TotalDeposits)
			assertDecimal(t, "20", stmt.TotalWithdrawals)
			assertDecimal(t, "85", stmt.ClosingBalance)

			// closing = previous + deposits - withdrawals
			assert.True(t, stmt.PreviousBalance.Add(stmt.TotalDeposits).Sub(stmt.TotalWithdrawals).Equal(stmt.ClosingBalance))
		})
	}
}

func TestBuild_TotalsHiddenWhenZero(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryLedgerStore()
	l := ledger.NewLedger(store, ledger.WithClock(clock(t0)))
	_, err := l.Deposit(ctx, "Bob", dec("50"), "")
	require.NoError(t, err)

	stmt, err := NewBuilder(store, nil).Build(ctx, "Bob", t0, t0)
	require.NoError(t, err)
	assert.True(t, stmt.ShowTotalDeposits())
	assert.False(t, stmt.ShowTotalWithdrawals())
	assertDecimal(t, "0", stmt.TotalWithdrawals)
}

func TestBuild_SameSecondOperationsKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryLedgerStore()
	l := ledger.NewLedger(store, ledger.WithClock(func() time.Time { return t0 }))
	for _, d := range []string{"first", "second", "third"} {
		_, err := l.Deposit(ctx, "Alice", dec("1"), d)
		require.NoError(t, err)
	}

	stmt, err := NewBuilder(store, nil).Build(ctx, "Alice", t0, t0)
	require.NoError(t, err)
	require.Len(t, stmt.Rows, 3)
	assert.Equal(t, "first", stmt.Rows[0].Description)
	assert.Equal(t, "third", stmt.Rows[2].Description)
	assertDecimal(t, "3", stmt.ClosingBalance)
}

func TestBuild_NoData(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryLedgerStore()
	l := ledger.NewLedger(store, ledger.WithClock(clock(t0)))
	_, err := l.Deposit(ctx, "Alice", dec("10"), "")
	require.NoError(t, err)

	b := NewBuilder(store, nil)

	stmt, err := b.Build(ctx, "Alice", t0.Add(time.Second), t0.Add(time.Hour))
	assert.ErrorIs(t, err, apperrors.ErrNoData)
	assert.Nil(t, stmt)

	stmt, err = b.Build(ctx, "Nobody", t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, apperrors.ErrNoData)
	assert.Nil(t, stmt)
}

func TestBuild_InvalidInput(t *testing.T) {
	b := NewBuilder(memory.NewMemoryLedgerStore(), nil)

	_, err := b.Build(context.Background(), "", t0, t0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidClientName)

	_, err = b.Build(context.Background(), "Alice", t0.Add(time.Second), t0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRange)
}

func TestBuild_StorageFailure(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := NewBuilder(brokenViewer{err: boom}, nil).Build(context.Background(), "Alice", t0, t0)
	assert.ErrorIs(t, err, apperrors.ErrStorageFailure)
	assert.ErrorIs(t, err, boom)
}

func TestBuild_IdempotentReads(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryLedgerStore()
	l := ledger.NewLedger(store, ledger.WithClock(clock(t0, t0.Add(time.Minute))))
	_, err := l.Deposit(ctx, "Alice", dec("100"), "init")
	require.NoError(t, err)
	_, err = l.Withdraw(ctx, "Alice", dec("0.1"), "coffee")
	require.NoError(t, err)

	b := NewBuilder(store, nil)
	first, err := b.Build(ctx, "Alice", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	second, err := b.Build(ctx, "Alice", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuild_ReflectsNewOperations(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryLedgerStore()
	l := ledger.NewLedger(store, ledger.WithClock(clock(t0, t0.Add(time.Minute))))
	b := NewBuilder(store, nil)

	_, err := l.Deposit(ctx, "Alice", dec("100"), "")
	require.NoError(t, err)
	before, err := b.Build(ctx, "Alice", t0, t0.Add(time.Hour))
	require.NoError(t, err)

	_, err = l.Withdraw(ctx, "Alice", dec("40"), "")
	require.NoError(t, err)
	after, err := b.Build(ctx, "Alice", t0, t0.Add(time.Hour))
	require.NoError(t, err)

	assertDecimal(t, "100", before.ClosingBalance)
	assertDecimal(t, "60", after.ClosingBalance)
	assert.Len(t, after.Rows, 2)
}

// checkConsistent asserts a statement is internally coherent: every row
// continues the running balance and the totals reconcile.
func checkConsistent(t *testing.T, stmt *models.Statement) {
	t.Helper()
	running := stmt.PreviousBalance
	for i, row := range stmt.Rows {
		running = running.Add(row.Deposit.Decimal).Sub(row.Withdrawal.Decimal)
		assert.Truef(t, running.Equal(row.Balance), "row %d: running %s, snapshot %s", i, running, row.Balance)
	}
	reconciled := stmt.PreviousBalance.Add(stmt.TotalDeposits).Sub(stmt.TotalWithdrawals)
	assert.Truef(t, reconciled.Equal(stmt.ClosingBalance), "previous+deposits-withdrawals %s, closing %s", reconciled, stmt.ClosingBalance)
}

func TestBuild_ConsistentUnderConcurrentWrites(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var tick atomic.Int64
			l := ledger.NewLedger(store, ledger.WithClock(func() time.Time {
				return t0.Add(time.Duration(tick.Add(1)) * time.Second)
			}))
			builder := NewBuilder(store, nil)

			const writers, perWriter = 4, 25
			var wg sync.WaitGroup
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < perWriter; i++ {
						var err error
						if (w+i)%3 == 0 {
							_, err = l.Withdraw(ctx, "Alice", dec("2.5"), "out")
						} else {
							_, err = l.Deposit(ctx, "Alice", dec("4"), "in")
						}
						assert.NoError(t, err)
					}
				}(w)
			}

			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()

			since, till := t0.Add(10*time.Second), t0.Add(time.Hour)
			built := 0
			for {
				stmt, err := builder.Build(ctx, "Alice", since, till)
				switch {
				case errors.Is(err, apperrors.ErrNoData):
				case err != nil:
					require.NoError(t, err)
				default:
					built++
					checkConsistent(t, stmt)
				}

				select {
				case <-done:
					stmt, err := builder.Build(ctx, "Alice", t0, till)
					require.NoError(t, err)
					require.Len(t, stmt.Rows, writers*perWriter)
					checkConsistent(t, stmt)
					t.Logf("%d statements built during writes", built)
					return
				default:
				}
			}
		})
	}
}
