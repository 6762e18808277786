package repository

import (
	"invoice-reconciliation-backend/internal/models"

	"gorm.io/gorm"
)

type MovementRepository struct {
	db *gorm.DB
}

func NewMovementRepository(db *gorm.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// GetAll returns every movement ordered by row index, the stable iteration
// order the engine relies on for reproducible tie-breaks.
func (r *MovementRepository) GetAll() ([]models.BankMovement, error) {
	var movements []models.BankMovement
	err := r.db.Order("row_index ASC, id ASC").Find(&movements).Error
	return movements, err
}

func (r *MovementRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.BankMovement{}).Count(&count).Error
	return count, err
}

// NextRowIndex returns the first free positional index for new uploads.
func (r *MovementRepository) NextRowIndex() (int, error) {
	var max *int
	err := r.db.Model(&models.BankMovement{}).Select("MAX(row_index)").Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

func (r *MovementRepository) Create(mov *models.BankMovement) error {
	return r.db.Create(mov).Error
}
