package routes

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"invoice-reconciliation-backend/internal/config"
	handler "invoice-reconciliation-backend/internal/handlers"
	"invoice-reconciliation-backend/internal/repository"
	"invoice-reconciliation-backend/internal/services/advisory"
	"invoice-reconciliation-backend/internal/services/matching"
	service "invoice-reconciliation-backend/internal/services/reconciliation"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config, logger *slog.Logger) {
	invoiceRepo := repository.NewInvoiceRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	matchRepo := repository.NewMatchRepository(db)

	var advisor advisory.Advisor = advisory.Noop{}
	if cfg.Advisory.Enabled && cfg.Advisory.APIKey != "" {
		advisor = advisory.NewOpenAIAdvisor(
			cfg.Advisory.APIKey,
			cfg.Advisory.Model,
			time.Duration(cfg.Advisory.TimeoutSeconds)*time.Second,
		)
	}

	engineCfg := matching.DefaultConfig()
	engineCfg.AmountTolerance = cfg.Matching.AmountTolerance
	engineCfg.WindowSlackDays = cfg.Matching.WindowSlackDays
	engineCfg.MatchSimilarity = cfg.Matching.MatchSimilarity
	engineCfg.UncertainSimilarity = cfg.Matching.UncertainSimilarity

	engine := matching.NewEngine(engineCfg, advisor, logger)

	reconService := service.NewService(
		invoiceRepo,
		movementRepo,
		matchRepo,
		engine,
		logger,
	)

	reconHandler := handler.NewReconciliationHandler(reconService, logger)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	api.GET("/stats", reconHandler.DatasetStats)

	// Reconciliation run routes
	recon := api.Group("/reconciliation")
	recon.POST("/run", reconHandler.StartRun)
	recon.GET("/:runId", reconHandler.GetRunProgress)
	recon.GET("/:runId/results", reconHandler.ListResults)
	recon.GET("/:runId/results/:invoiceDoc/details", reconHandler.ListDetails)

	// Upload routes
	invoices := api.Group("/invoices")
	{
		invoices.POST("/upload", reconHandler.UploadInvoices)
	}
	movements := api.Group("/movements")
	{
		movements.POST("/upload", reconHandler.UploadMovements)
	}
}
