package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OperationKind says whether an operation adds money to or removes money from a client
type OperationKind string

const (
	Deposit    OperationKind = "deposit"
	Withdrawal OperationKind = "withdrawal"
)

// Valid reports whether k is one of the known kinds
func (k OperationKind) Valid() bool {
	return k == Deposit || k == Withdrawal
}

// OperationRequest represents an intent to move money in or out of a client's balance
type OperationRequest struct {
	ID          string
	ClientName  string
	Kind        OperationKind
	Amount      decimal.Decimal // always positive, the sign comes from Kind
	Description string
	CreatedAt   time.Time
}

// Delta returns the signed amount the request applies to the client's balance
func (r OperationRequest) Delta() decimal.Decimal {
	if r.Kind == Withdrawal {
		return r.Amount.Neg()
	}
	return r.Amount
}

// Operation is one immutable row of a client's history
type Operation struct {
	ID          string
	Sequence    int64 // insertion order, breaks ties between equal timestamps
	ClientName  string
	Description string
	Withdrawal  decimal.NullDecimal // set only for withdrawals
	Deposit     decimal.NullDecimal // set only for deposits
	Balance     decimal.Decimal     // client balance after this operation
	CreatedAt   time.Time
}

// NewOperation builds the history row for req given the client balance after applying it
func NewOperation(req OperationRequest, sequence int64, balance decimal.Decimal) Operation {
	op := Operation{
		ID:          req.ID,
		Sequence:    sequence,
		ClientName:  req.ClientName,
		Description: req.Description,
		Balance:     balance,
		CreatedAt:   req.CreatedAt,
	}
	if req.Kind == Withdrawal {
		op.Withdrawal = decimal.NewNullDecimal(req.Amount)
	} else {
		op.Deposit = decimal.NewNullDecimal(req.Amount)
	}
	return op
}

// Kind derives the operation kind from whichever amount column is set
func (o Operation) Kind() OperationKind {
	if o.Withdrawal.Valid {
		return Withdrawal
	}
	return Deposit
}

// Delta returns the signed effect this operation had on the balance
func (o Operation) Delta() decimal.Decimal {
	if o.Withdrawal.Valid {
		return o.Withdrawal.Decimal.Neg()
	}
	return o.Deposit.Decimal
}

// CompareOperations orders operations by timestamp, then by insertion sequence
func CompareOperations(a, b Operation) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.Sequence < b.Sequence:
		return -1
	case a.Sequence > b.Sequence:
		return 1
	}
	return 0
}
