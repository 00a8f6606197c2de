package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const OperationAppliedTopic = "operation_applied"

type OperationApplied struct {
	OperationID string          `json:"operation_id"`
	Sequence    int64           `json:"sequence"`
	ClientName  string          `json:"client"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
