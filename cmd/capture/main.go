// Command capture is the scheduler-facing CLI: it syncs the category
// configuration, captures one snapshot for a category and runs trend
// analysis. Cron-style triggering lives outside this repository.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rankpulse/internal/config"
	"rankpulse/internal/database"
	"rankpulse/internal/models"
	"rankpulse/internal/scraper"
	"rankpulse/internal/services"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	syncCategories := flag.Bool("sync", false, "sync categories from the configured JSON file")
	categoryID := flag.Uint("category", 0, "internal category id to capture")
	listingType := flag.String("type", string(models.ListingBestSellers), "listing type: BestSellers, NewReleases or MoversAndShakers")
	analyze := flag.Bool("analyze", true, "run trend analysis after a successful capture")
	analyzeOnly := flag.Int64("analyze-snapshot", 0, "re-run trend analysis for an existing snapshot id")
	operational := flag.Bool("operational", false, "pull one payload from the operational data source")
	report := flag.Bool("report", false, "print the latest report")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}
	cfg := config.Load()

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := scraper.NewThrottlePolicy(cfg.FetchMinDelay(), cfg.FetchMaxDelay())
	fetcher := scraper.NewFetcher(cfg.ListingBaseURL, policy)
	ingestor := services.NewIngestor(db, fetcher)
	ingestor.EnrichListedAt = cfg.EnrichListedAt
	analyzer := services.NewTrendAnalyzer(db, cfg.RankSurgeThreshold, cfg.ConsistentRankCeiling)

	if *syncCategories {
		inputs, err := config.LoadCategoryFile(cfg.CategoryConfigPath)
		if err != nil {
			logrus.Fatalf("Category config: %v", err)
		}
		affected, err := ingestor.SyncCategories(ctx, inputs)
		if err != nil {
			logrus.Fatalf("Category sync failed: %v", err)
		}
		logrus.Infof("Category sync done, %d rows affected", affected)
	}

	if *analyzeOnly > 0 {
		count, err := analyzer.AnalyzeSnapshot(ctx, *analyzeOnly)
		if err != nil {
			logrus.Fatalf("Analysis of snapshot %d failed: %v", *analyzeOnly, err)
		}
		logrus.Infof("Snapshot %d: %d trends", *analyzeOnly, count)
	}

	if *categoryID > 0 {
		lt, err := models.ParseListingType(*listingType)
		if err != nil {
			logrus.Fatal(err)
		}
		snapshotID, err := ingestor.CaptureSnapshot(ctx, *categoryID, lt)
		if err != nil {
			logrus.Fatalf("Capture failed (snapshot %d kept as audit trail): %v", snapshotID, err)
		}
		logrus.Infof("Captured snapshot %d", snapshotID)

		if *analyze {
			count, err := analyzer.AnalyzeSnapshot(ctx, snapshotID)
			if err != nil {
				logrus.Fatalf("Analysis failed: %v", err)
			}
			logrus.Infof("Snapshot %d: %d trends", snapshotID, count)
		}
	}

	if *operational {
		if cfg.OperationalSourceURL == "" {
			logrus.Fatal("OPERATIONAL_SOURCE_URL is not configured")
		}
		svc := services.NewOperationalService(db,
			services.NewHTTPOperationalSource(cfg.OperationalSourceURL),
			services.ScoringConfig{
				LowStockDaysThreshold:         cfg.LowStockDaysThreshold,
				LowStockHighFactor:            cfg.LowStockHighFactor,
				NegativeReviewWindowDays:      cfg.NegativeReviewWindowDays,
				NegativeReviewMediumThreshold: cfg.NegativeReviewMediumThreshold,
				NegativeReviewHighCount:       cfg.NegativeReviewHighCount,
				StaleAfter:                    cfg.OperationalStaleAfter(),
			})
		snapshotID, stored, err := svc.IngestMetrics(ctx)
		if err != nil {
			logrus.Fatalf("Operational ingestion failed: %v", err)
		}
		logrus.Infof("Operational snapshot %d stored %d metrics", snapshotID, stored)
	}

	if *report {
		rep, err := services.NewReporter(db).LatestReport(ctx)
		if err != nil {
			logrus.Fatalf("Report failed: %v", err)
		}
		fmt.Print(services.FormatReport(rep))
	}
}
