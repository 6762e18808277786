package repository

import (
	"invoice-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// SaveResults bulk-inserts the per-invoice outcomes of a run.
func (r *MatchRepository) SaveResults(results []models.MatchResult) error {
	if len(results) == 0 {
		return nil
	}
	return r.db.CreateInBatches(results, 200).Error
}

// SaveDetails bulk-inserts the audit trail of a run.
func (r *MatchRepository) SaveDetails(details []models.MatchDetail) error {
	if len(details) == 0 {
		return nil
	}
	return r.db.CreateInBatches(details, 200).Error
}

// ListResults pages through a run's results ordered by id, optionally
// filtered by category. Returns the page, the next cursor and whether more
// rows remain.
func (r *MatchRepository) ListResults(runID uuid.UUID, category, cursor string, limit int) ([]models.MatchResult, string, bool, error) {
	var results []models.MatchResult

	query := r.db.
		Where("run_id = ?", runID).
		Order("id ASC").
		Limit(limit + 1)

	if category != "" && category != "all" {
		query = query.Where("category = ?", category)
	}
	if cursor != "" {
		query = query.Where("id > ?", cursor)
	}

	if err := query.Find(&results).Error; err != nil {
		return nil, "", false, err
	}

	hasMore := false
	var nextCursor string
	if len(results) > limit {
		hasMore = true
		nextCursor = results[limit-1].ID.String()
		results = results[:limit]
	}

	return results, nextCursor, hasMore, nil
}

// ListDetails returns the full audit trail for one invoice within a run.
func (r *MatchRepository) ListDetails(runID uuid.UUID, invoiceDoc string) ([]models.MatchDetail, error) {
	var details []models.MatchDetail
	err := r.db.
		Where("run_id = ? AND invoice_doc = ?", runID, invoiceDoc).
		Order("score DESC, id ASC").
		Find(&details).Error
	return details, err
}

type CategoryStat struct {
	Category string
	Count    int64
	Sum      float64
}

// StatsByCategory aggregates a run's results per match category.
func (r *MatchRepository) StatsByCategory(runID uuid.UUID) ([]CategoryStat, error) {
	var rows []CategoryStat
	err := r.db.Model(&models.MatchResult{}).
		Where("run_id = ?", runID).
		Select("category, COUNT(*) as count, COALESCE(SUM(movement_settled),0) as sum").
		Group("category").
		Scan(&rows).Error
	return rows, err
}
