// Package storetest holds the behaviour every interfaces.LedgerStore must satisfy.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/client-ledger/internal/apperrors"
	interfaces "github.com/sheikh-saqib/client-ledger/internal/interfaces"
	"github.com/sheikh-saqib/client-ledger/internal/models"
)

// Base is the timestamp the suite builds its histories around.
var Base = time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC)

// Run executes the suite; newStore must return an empty store for every call.
func Run(t *testing.T, newStore func(t *testing.T) interfaces.LedgerStore) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store interfaces.LedgerStore)
	}{
		{"ApplyCreatesClient", testApplyCreatesClient},
		{"ApplyUpdatesBalance", testApplyUpdatesBalance},
		{"WithdrawalMayOverdraw", testWithdrawalMayOverdraw},
		{"BalanceInvariant", testBalanceInvariant},
		{"AppendOnly", testAppendOnly},
		{"OrderingTieBreak", testOrderingTieBreak},
		{"RangeInclusive", testRangeInclusive},
		{"LastOperationBefore", testLastOperationBefore},
		{"ClientLookup", testClientLookup},
		{"ViewSnapshot", testViewSnapshot},
		{"DecimalPrecision", testDecimalPrecision},
		{"FailedApplyLeavesNoTrace", testFailedApplyLeavesNoTrace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			t.Cleanup(func() { store.Close() })
			tt.fn(t, store)
		})
	}
}

// Apply stores one operation and fails the test on error.
func Apply(t *testing.T, store interfaces.LedgerStore, client string, kind models.OperationKind, amount string, description string, at time.Time) models.Operation {
	t.Helper()
	op, err := store.ApplyOperation(context.Background(), models.OperationRequest{
		ID:          uuid.NewString(),
		ClientName:  client,
		Kind:        kind,
		Amount:      decimal.RequireFromString(amount),
		Description: description,
		CreatedAt:   at,
	})
	require.NoError(t, err)
	return op
}

// AssertDecimal compares decimals by value, ignoring scale.
func AssertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func all(t *testing.T, store interfaces.LedgerStore, client string) []models.Operation {
	t.Helper()
	ops, err := store.GetOperations(context.Background(), client, Base.AddDate(-1, 0, 0), Base.AddDate(1, 0, 0))
	require.NoError(t, err)
	return ops
}

func sequences(ops []models.Operation) []int64 {
	seqs := make([]int64, 0, len(ops))
	for _, op := range ops {
		seqs = append(seqs, op.Sequence)
	}
	return seqs
}

func testApplyCreatesClient(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()

	_, err := store.GetClient(ctx, "Bob")
	require.ErrorIs(t, err, apperrors.ErrClientNotFound)

	op := Apply(t, store, "Bob", models.Deposit, "50", "", Base)

	assert.Equal(t, "Bob", op.ClientName)
	assert.True(t, op.Deposit.Valid)
	assert.False(t, op.Withdrawal.Valid)
	AssertDecimal(t, "50", op.Deposit.Decimal)
	AssertDecimal(t, "50", op.Balance)
	assert.Positive(t, op.Sequence)

	client, err := store.GetClient(ctx, "Bob")
	require.NoError(t, err)
	AssertDecimal(t, "50", client.Balance)
}

func testApplyUpdatesBalance(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()

	Apply(t, store, "Alice", models.Deposit, "100", "init", Base)
	op := Apply(t, store, "Alice", models.Withdrawal, "30", "atm", Base.Add(time.Minute))

	assert.True(t, op.Withdrawal.Valid)
	assert.False(t, op.Deposit.Valid)
	AssertDecimal(t, "30", op.Withdrawal.Decimal)
	AssertDecimal(t, "70", op.Balance)
	assert.Equal(t, "atm", op.Description)

	client, err := store.GetClient(ctx, "Alice")
	require.NoError(t, err)
	AssertDecimal(t, "70", client.Balance)
}

func testWithdrawalMayOverdraw(t *testing.T, store interfaces.LedgerStore) {
	op := Apply(t, store, "Carol", models.Withdrawal, "25", "", Base)
	AssertDecimal(t, "-25", op.Balance)

	client, err := store.GetClient(context.Background(), "Carol")
	require.NoError(t, err)
	AssertDecimal(t, "-25", client.Balance)
}

func testBalanceInvariant(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	steps := []struct {
		kind   models.OperationKind
		amount string
	}{
		{models.Deposit, "100"},
		{models.Withdrawal, "30.25"},
		{models.Deposit, "0.75"},
		{models.Withdrawal, "200"},
		{models.Deposit, "12.5"},
	}
	for i, s := range steps {
		Apply(t, store, "Alice", s.kind, s.amount, "", Base.Add(time.Duration(i)*time.Hour))
		Apply(t, store, "Bob", models.Deposit, "1", "", Base.Add(time.Duration(i)*time.Hour))
	}

	for _, name := range []string{"Alice", "Bob"} {
		running := decimal.Zero
		for _, op := range all(t, store, name) {
			running = running.Add(op.Delta())
			assert.Truef(t, running.Equal(op.Balance), "%s: running %s, snapshot %s", name, running, op.Balance)
		}
		client, err := store.GetClient(ctx, name)
		require.NoError(t, err)
		assert.Truef(t, running.Equal(client.Balance), "%s: sum %s, balance %s", name, running, client.Balance)
	}

	alice, err := store.GetClient(ctx, "Alice")
	require.NoError(t, err)
	AssertDecimal(t, "-117", alice.Balance)
}

func testAppendOnly(t *testing.T, store interfaces.LedgerStore) {
	Apply(t, store, "Alice", models.Deposit, "100", "init", Base)
	Apply(t, store, "Alice", models.Withdrawal, "30", "atm", Base.Add(time.Second))
	before := all(t, store, "Alice")

	Apply(t, store, "Bob", models.Deposit, "50", "", Base.Add(2*time.Second))
	Apply(t, store, "Alice", models.Deposit, "5", "", Base.Add(3*time.Second))

	after := all(t, store, "Alice")
	require.Len(t, after, len(before)+1)
	assert.Equal(t, before, after[:len(before)])
}

func testOrderingTieBreak(t *testing.T, store interfaces.LedgerStore) {
	first := Apply(t, store, "Alice", models.Deposit, "1", "first", Base)
	second := Apply(t, store, "Alice", models.Deposit, "2", "second", Base)
	third := Apply(t, store, "Alice", models.Withdrawal, "1", "third", Base)
	// recorded last but stamped earlier, e.g. after a clock adjustment
	early := Apply(t, store, "Alice", models.Deposit, "4", "early", Base.Add(-time.Hour))

	ops := all(t, store, "Alice")
	require.Len(t, ops, 4)
	assert.Equal(t,
		[]int64{early.Sequence, first.Sequence, second.Sequence, third.Sequence},
		sequences(ops))

	for i := 1; i < len(ops); i++ {
		assert.False(t, ops[i].CreatedAt.Before(ops[i-1].CreatedAt))
	}
}

func testRangeInclusive(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	t1, t2, t3 := Base, Base.Add(time.Hour), Base.Add(2*time.Hour)
	a := Apply(t, store, "Alice", models.Deposit, "10", "", t1)
	b := Apply(t, store, "Alice", models.Deposit, "20", "", t2)
	c := Apply(t, store, "Alice", models.Deposit, "30", "", t3)
	Apply(t, store, "Bob", models.Deposit, "99", "", t2)

	ops, err := store.GetOperations(ctx, "Alice", t1, t3)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.Sequence, b.Sequence, c.Sequence}, sequences(ops))

	ops, err = store.GetOperations(ctx, "Alice", t1.Add(time.Second), t3.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, []int64{b.Sequence}, sequences(ops))

	ops, err = store.GetOperations(ctx, "Alice", t2, t2)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.Sequence}, sequences(ops))

	ops, err = store.GetOperations(ctx, "Alice", t3.Add(time.Hour), t3.Add(2*time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, ops)
	assert.Empty(t, ops)

	ops, err = store.GetOperations(ctx, "Nobody", t1, t3)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func testLastOperationBefore(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()

	prev, err := store.GetLastOperationBefore(ctx, "Alice", Base)
	require.NoError(t, err)
	assert.Nil(t, prev)

	Apply(t, store, "Alice", models.Deposit, "10", "", Base)
	tie := Apply(t, store, "Alice", models.Deposit, "20", "", Base)
	at := Apply(t, store, "Alice", models.Deposit, "30", "", Base.Add(time.Hour))

	prev, err = store.GetLastOperationBefore(ctx, "Alice", Base)
	require.NoError(t, err)
	assert.Nil(t, prev, "an operation at since is not before since")

	prev, err = store.GetLastOperationBefore(ctx, "Alice", Base.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, tie.Sequence, prev.Sequence)
	AssertDecimal(t, "30", prev.Balance)

	prev, err = store.GetLastOperationBefore(ctx, "Alice", Base.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, at.Sequence, prev.Sequence)

	prev, err = store.GetLastOperationBefore(ctx, "Bob", Base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, prev)
}

func testClientLookup(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()

	clients, err := store.ListClients(ctx)
	require.NoError(t, err)
	assert.Empty(t, clients)

	Apply(t, store, "bob", models.Deposit, "1", "", Base)
	Apply(t, store, "Bob", models.Deposit, "2", "", Base)
	Apply(t, store, "Alice", models.Deposit, "3", "", Base)

	clients, err = store.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 3)
	assert.Equal(t, "Alice", clients[0].Name)
	assert.Equal(t, "Bob", clients[1].Name)
	assert.Equal(t, "bob", clients[2].Name)
	AssertDecimal(t, "2", clients[1].Balance)
	AssertDecimal(t, "1", clients[2].Balance)
}

func testViewSnapshot(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	Apply(t, store, "Alice", models.Deposit, "100", "", Base)
	Apply(t, store, "Alice", models.Withdrawal, "40", "", Base.Add(time.Hour))

	var (
		prev *models.Operation
		rows []models.Operation
	)
	err := store.View(ctx, func(r interfaces.OperationReader) error {
		var err error
		if prev, err = r.GetLastOperationBefore(ctx, "Alice", Base.Add(time.Minute)); err != nil {
			return err
		}
		rows, err = r.GetOperations(ctx, "Alice", Base.Add(time.Minute), Base.Add(2*time.Hour))
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, prev)
	AssertDecimal(t, "100", prev.Balance)
	require.Len(t, rows, 1)
	AssertDecimal(t, "60", rows[0].Balance)

	err = store.View(ctx, func(r interfaces.OperationReader) error {
		_, err := r.GetClient(ctx, "Nobody")
		return err
	})
	assert.ErrorIs(t, err, apperrors.ErrClientNotFound)
}

func testDecimalPrecision(t *testing.T, store interfaces.LedgerStore) {
	for i := 0; i < 10; i++ {
		Apply(t, store, "Alice", models.Deposit, "0.1", "", Base.Add(time.Duration(i)*time.Second))
	}
	client, err := store.GetClient(context.Background(), "Alice")
	require.NoError(t, err)
	AssertDecimal(t, "1", client.Balance)
}

func testFailedApplyLeavesNoTrace(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	first := Apply(t, store, "Alice", models.Deposit, "10", "", Base)

	// the client update succeeds but the operation insert hits the unique id
	_, err := store.ApplyOperation(ctx, models.OperationRequest{
		ID:         first.ID,
		ClientName: "Alice",
		Kind:       models.Deposit,
		Amount:     decimal.NewFromInt(5),
		CreatedAt:  Base.Add(time.Minute),
	})
	require.Error(t, err)

	client, err := store.GetClient(ctx, "Alice")
	require.NoError(t, err)
	AssertDecimal(t, "10", client.Balance)
	assert.Len(t, all(t, store, "Alice"), 1)

	// a new client must not appear either
	_, err = store.ApplyOperation(ctx, models.OperationRequest{
		ID:         first.ID,
		ClientName: "Bob",
		Kind:       models.Deposit,
		Amount:     decimal.NewFromInt(5),
		CreatedAt:  Base.Add(time.Minute),
	})
	require.Error(t, err)
	_, err = store.GetClient(ctx, "Bob")
	assert.ErrorIs(t, err, apperrors.ErrClientNotFound)

	op := Apply(t, store, "Alice", models.Deposit, "1", "", Base.Add(2*time.Minute))
	AssertDecimal(t, "11", op.Balance)
}
