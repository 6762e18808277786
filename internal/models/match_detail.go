package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchDetail is the audit trail: one row per candidate movement evaluated
// for an invoice, winner or not.
type MatchDetail struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	RunID              uuid.UUID `gorm:"index"`
	InvoiceDoc         string    `gorm:"index"`
	CustomerName       string
	TaxID              string
	MovementID         uuid.UUID `gorm:"index"`
	BankCode           string
	MovementDate       *time.Time
	Description        string
	Reference          string
	Currency           string
	MovementAmount     float64
	MovementSettled    float64
	AmountBasis        string
	AmountDiff         float64
	RuleSimilarity     float64
	AdvisorySimilarity *float64
	FlexibleTerms      bool
	WindowStart        *time.Time
	WindowEnd          *time.Time
	Score              float64
	Rejected           bool
	CreatedAt          time.Time
}
