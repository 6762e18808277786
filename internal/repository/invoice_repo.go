package repository

import (
	"invoice-reconciliation-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Expose DB if needed
func (r *InvoiceRepository) DB() *gorm.DB {
	return r.db
}

// GetAll returns every invoice in creation order. Output order of a matching
// run follows this order.
func (r *InvoiceRepository) GetAll() ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.Order("created_at ASC, id ASC").Find(&invoices).Error
	return invoices, err
}

func (r *InvoiceRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Invoice{}).Count(&count).Error
	return count, err
}

// Create inserts an invoice, ignoring duplicates on conflict.
func (r *InvoiceRepository) Create(inv *models.Invoice) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(inv).Error
}
