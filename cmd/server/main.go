package main

import (
	"net/http"

	"rankpulse/internal/api"
	"rankpulse/internal/config"
	"rankpulse/internal/database"
	"rankpulse/internal/scraper"
	"rankpulse/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	cfg := config.Load()

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	policy := scraper.NewThrottlePolicy(cfg.FetchMinDelay(), cfg.FetchMaxDelay())
	fetcher := scraper.NewFetcher(cfg.ListingBaseURL, policy)

	ingestor := services.NewIngestor(db, fetcher)
	ingestor.EnrichListedAt = cfg.EnrichListedAt
	analyzer := services.NewTrendAnalyzer(db, cfg.RankSurgeThreshold, cfg.ConsistentRankCeiling)

	var source services.OperationalSource
	if cfg.OperationalSourceURL != "" {
		source = services.NewHTTPOperationalSource(cfg.OperationalSourceURL)
	}
	operational := services.NewOperationalService(db, source, services.ScoringConfig{
		LowStockDaysThreshold:         cfg.LowStockDaysThreshold,
		LowStockHighFactor:            cfg.LowStockHighFactor,
		NegativeReviewWindowDays:      cfg.NegativeReviewWindowDays,
		NegativeReviewMediumThreshold: cfg.NegativeReviewMediumThreshold,
		NegativeReviewHighCount:       cfg.NegativeReviewHighCount,
		StaleAfter:                    cfg.OperationalStaleAfter(),
	})
	reporter := services.NewReporter(db)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := r.Group("/api/v1")
	api.SetupRoutes(apiGroup, db, ingestor, analyzer, operational, reporter)

	logrus.Infof("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		logrus.Fatalf("Server stopped: %v", err)
	}
}
