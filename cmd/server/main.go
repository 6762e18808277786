package main

import (
	"log"
	"time"

	"invoice-reconciliation-backend/internal/config"
	"invoice-reconciliation-backend/internal/models"
	"invoice-reconciliation-backend/internal/observability"
	"invoice-reconciliation-backend/internal/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	cfg := config.LoadOrEnv()
	logger := observability.NewLogger(cfg.Logging)

	db, err := config.InitDB(cfg.Database)
	if err != nil {
		log.Fatal("failed to connect database: ", err)
	}

	db.AutoMigrate(
		&models.Invoice{},
		&models.BankMovement{},
		&models.ReconciliationRun{},
		&models.MatchResult{},
		&models.MatchDetail{},
	)

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, db, cfg, logger)

	r.Run(cfg.Server.Addr)
}
