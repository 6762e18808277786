package models

import (
	"time"

	"github.com/google/uuid"
)

type BankMovement struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	RowIndex        int       `gorm:"index"`
	BankCode        string
	TransactionDate *time.Time `gorm:"column:transaction_date"`
	Description     string
	Reference       string
	Currency        string
	Amount          float64 `gorm:"index"`
	SettledAmount   *float64
	CreatedAt       time.Time
}

// Settled returns the amount normalized to the settlement currency. When no
// conversion was recorded the original amount is the settled amount.
func (m *BankMovement) Settled() float64 {
	if m.SettledAmount != nil {
		return *m.SettledAmount
	}
	return m.Amount
}
