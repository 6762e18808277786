package models

import (
	"time"

	"github.com/google/uuid"
)

type Invoice struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	ExternalRef  string    `gorm:"index"`
	Series       string
	Number       string
	CustomerName string `gorm:"index"`
	TaxID        string
	IssueDate    *time.Time
	DueDate      *time.Time
	WindowStart  *time.Time
	WindowEnd    *time.Time
	Currency     string
	Subtotal     *float64
	TaxAmount    *float64
	Total        *float64
	Withholding  *float64
	NetExpected  *float64
	CreatedAt    time.Time
}

// DocumentID resolves the invoice identity: external reference first, then
// series+number, then the row UUID. Never empty.
func (i *Invoice) DocumentID() string {
	if i.ExternalRef != "" {
		return i.ExternalRef
	}
	if i.Series != "" || i.Number != "" {
		return i.Series + "-" + i.Number
	}
	return i.ID.String()
}

// HasAmount reports whether any amount field usable as a comparison
// reference is present.
func (i *Invoice) HasAmount() bool {
	return i.NetExpected != nil || i.Total != nil || i.Subtotal != nil
}
