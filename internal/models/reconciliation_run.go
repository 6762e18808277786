package models

import (
	"time"

	"github.com/google/uuid"
)

type ReconciliationRun struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	TotalInvoices  int
	TotalMovements int
	ProcessedCount int
	MatchedCount   int
	UncertainCount int
	WeakNameCount  int
	NoMatchCount   int
	Status         string
	StartedAt      time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
}
