package sqlite

import "github.com/shopspring/decimal"

// timestampLayout is the statement date format; in UTC it sorts lexicographically.
const timestampLayout = "2006-01-02 15:04:05"

type clientRow struct {
	Name    string          `gorm:"primaryKey"`
	Balance decimal.Decimal `gorm:"type:text;not null"`
}

func (clientRow) TableName() string { return "clients" }

type operationRow struct {
	Sequence    int64               `gorm:"primaryKey;autoIncrement"`
	ID          string              `gorm:"uniqueIndex;not null"`
	ClientName  string              `gorm:"index:idx_operations_client_time,priority:1;not null"`
	Client      clientRow           `gorm:"foreignKey:ClientName;references:Name;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
	Description string              `gorm:"not null;default:''"`
	Withdrawal  decimal.NullDecimal `gorm:"type:text"`
	Deposit     decimal.NullDecimal `gorm:"type:text"`
	Balance     decimal.Decimal     `gorm:"type:text;not null"`
	Timestamp   string              `gorm:"column:created_at;index:idx_operations_client_time,priority:2;not null"`
}

func (operationRow) TableName() string { return "operations" }
