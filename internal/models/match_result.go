package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MatchResult is the per-invoice outcome of a reconciliation run. A null
// MovementID means no payment was found for the invoice.
type MatchResult struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	RunID           uuid.UUID `gorm:"index"`
	InvoiceDoc      string    `gorm:"index"`
	CustomerName    string
	Subtotal        *float64
	TaxAmount       *float64
	Total           *float64
	Withholding     *float64
	NetExpected     *float64
	MovementID      *uuid.UUID
	MovementAmount  *float64
	MovementSettled *float64
	AmountDiff      float64
	Similarity      float64
	Category        string `gorm:"index"`
	Rationale       string
	Breakdown       datatypes.JSON
	CreatedAt       time.Time
}
