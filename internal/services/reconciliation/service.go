package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"invoice-reconciliation-backend/internal/models"
	"invoice-reconciliation-backend/internal/repository"
	"invoice-reconciliation-backend/internal/services/matching"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service runs the matching engine over the stored invoices and movements
// and persists the outcome of each run.
type Service struct {
	invoiceRepo  *repository.InvoiceRepository
	movementRepo *repository.MovementRepository
	matchRepo    *repository.MatchRepository
	engine       *matching.Engine
	db           *gorm.DB
	logger       *slog.Logger

	progressCache sync.Map // runID -> *Progress
	statsCache    sync.Map // runID -> []repository.CategoryStat
}

type Progress struct {
	ProcessedCount int
	Total          int
	Status         string
}

func NewService(
	invoiceRepo *repository.InvoiceRepository,
	movementRepo *repository.MovementRepository,
	matchRepo *repository.MatchRepository,
	engine *matching.Engine,
	logger *slog.Logger,
) *Service {
	return &Service{
		invoiceRepo:  invoiceRepo,
		movementRepo: movementRepo,
		matchRepo:    matchRepo,
		engine:       engine,
		db:           invoiceRepo.DB(),
		logger:       logger,
	}
}

// CreateRun creates a new ReconciliationRun in DB
func (s *Service) CreateRun() *models.ReconciliationRun {
	run := &models.ReconciliationRun{
		ID:        uuid.New(),
		Status:    "processing",
		StartedAt: time.Now(),
		CreatedAt: time.Now(),
	}

	s.db.Create(run)
	s.progressCache.Store(run.ID, &Progress{Status: "processing"})
	return run
}

// Run loads all invoices and movements, matches them and persists one result
// per invoice plus the candidate audit trail. A run never aborts mid-way for
// a single bad row; the engine degrades such rows to NO_MATCH.
func (s *Service) Run(ctx context.Context, runID uuid.UUID) error {
	invoices, err := s.invoiceRepo.GetAll()
	if err != nil {
		s.markRunFailed(runID)
		return fmt.Errorf("load invoices: %w", err)
	}

	movements, err := s.movementRepo.GetAll()
	if err != nil {
		s.markRunFailed(runID)
		return fmt.Errorf("load movements: %w", err)
	}

	s.updateProgress(runID, 0, len(invoices))

	s.db.Model(&models.ReconciliationRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"total_invoices":  len(invoices),
			"total_movements": len(movements),
		})

	results, details := s.engine.Match(ctx, invoices, movements)

	now := time.Now()
	for i := range results {
		results[i].ID = uuid.New()
		results[i].RunID = runID
		results[i].CreatedAt = now
	}
	for i := range details {
		details[i].ID = uuid.New()
		details[i].RunID = runID
		details[i].CreatedAt = now
	}

	if err := s.matchRepo.SaveResults(results); err != nil {
		s.markRunFailed(runID)
		return fmt.Errorf("save results: %w", err)
	}
	if err := s.matchRepo.SaveDetails(details); err != nil {
		s.markRunFailed(runID)
		return fmt.Errorf("save details: %w", err)
	}

	counts := map[string]int{}
	for i := range results {
		counts[results[i].Category]++
	}

	if err := s.markRunCompleted(runID, len(invoices), counts); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}

	s.updateProgress(runID, len(invoices), len(invoices))
	s.logger.Info("reconciliation run completed",
		"run_id", runID,
		"invoices", len(invoices),
		"movements", len(movements),
		"matched", counts[matching.CategoryMatch],
		"uncertain", counts[matching.CategoryUncertain],
		"weak_name", counts[matching.CategoryWeakName],
		"no_match", counts[matching.CategoryNoMatch],
	)
	return nil
}

func (s *Service) GetRun(runID uuid.UUID) (*models.ReconciliationRun, error) {
	var run models.ReconciliationRun
	if err := s.db.First(&run, "id = ?", runID).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// GetProgress prefers the in-memory cache and falls back to the run row.
func (s *Service) GetProgress(runID uuid.UUID) (*Progress, error) {
	if val, ok := s.progressCache.Load(runID); ok {
		return val.(*Progress), nil
	}

	run, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}
	return &Progress{
		ProcessedCount: run.ProcessedCount,
		Total:          run.TotalInvoices,
		Status:         run.Status,
	}, nil
}

// ListResults pages a run's results; see repository.MatchRepository.
func (s *Service) ListResults(runID uuid.UUID, category, cursor string, limit int) ([]models.MatchResult, string, bool, error) {
	return s.matchRepo.ListResults(runID, category, cursor, limit)
}

func (s *Service) ListDetails(runID uuid.UUID, invoiceDoc string) ([]models.MatchDetail, error) {
	return s.matchRepo.ListDetails(runID, invoiceDoc)
}

// GetStats returns per-category aggregates, cached once a run has completed.
func (s *Service) GetStats(runID uuid.UUID) ([]repository.CategoryStat, error) {
	if val, ok := s.statsCache.Load(runID); ok {
		return val.([]repository.CategoryStat), nil
	}

	stats, err := s.matchRepo.StatsByCategory(runID)
	if err != nil {
		return nil, err
	}

	if run, err := s.GetRun(runID); err == nil && run.Status == "completed" {
		s.statsCache.Store(runID, stats)
	}
	return stats, nil
}

func (s *Service) updateProgress(runID uuid.UUID, processed, total int) {
	val, _ := s.progressCache.LoadOrStore(runID, &Progress{Status: "processing"})
	p := val.(*Progress)
	p.ProcessedCount = processed
	p.Total = total
	if processed == total && total > 0 {
		p.Status = "completed"
	}
	s.progressCache.Store(runID, p)
}

func (s *Service) markRunCompleted(runID uuid.UUID, processed int, counts map[string]int) error {
	return s.db.Model(&models.ReconciliationRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"processed_count": processed,
			"matched_count":   counts[matching.CategoryMatch],
			"uncertain_count": counts[matching.CategoryUncertain],
			"weak_name_count": counts[matching.CategoryWeakName],
			"no_match_count":  counts[matching.CategoryNoMatch],
			"status":          "completed",
			"completed_at":    time.Now(),
		}).Error
}

func (s *Service) markRunFailed(runID uuid.UUID) {
	if val, ok := s.progressCache.Load(runID); ok {
		val.(*Progress).Status = "failed"
	}
	s.db.Model(&models.ReconciliationRun{}).
		Where("id = ?", runID).
		Update("status", "failed")
}

func (s *Service) InvoiceRepo() *repository.InvoiceRepository {
	return s.invoiceRepo
}

func (s *Service) MovementRepo() *repository.MovementRepository {
	return s.movementRepo
}
