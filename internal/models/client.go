package models

import "github.com/shopspring/decimal"

// Client represents a named ledger account
type Client struct {
	Name    string          // unique, case-sensitive
	Balance decimal.Decimal // cached projection of the client's operations
}
