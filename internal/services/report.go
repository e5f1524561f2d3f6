package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rankpulse/internal/models"

	"gorm.io/gorm"
)

// reportSectionCap limits each trend section to a representative sample.
const reportSectionCap = 10

// ReportSection groups a snapshot's trends of one type.
type ReportSection struct {
	Type    models.TrendType `json:"type"`
	Total   int              `json:"total"`
	Entries []string         `json:"entries"`
}

// SnapshotReport is the structured aggregate of one snapshot's data points
// and trends.
type SnapshotReport struct {
	SnapshotID   int64                    `json:"snapshot_id"`
	CategoryName string                   `json:"category_name"`
	ListingType  models.ListingType       `json:"listing_type"`
	Status       models.SnapshotStatus    `json:"status"`
	CapturedAt   string                   `json:"captured_at"`
	ProductCount int                      `json:"product_count"`
	TrendCounts  map[models.TrendType]int `json:"trend_counts"`
	Sections     []ReportSection          `json:"sections"`
}

// Reporter folds a snapshot's metrics and trends into a structured report.
// Read-only; no new business logic lives here.
type Reporter struct {
	db *gorm.DB
}

// NewReporter creates a reporter.
func NewReporter(db *gorm.DB) *Reporter {
	return &Reporter{db: db}
}

// BuildReport loads one snapshot and aggregates it. A missing snapshot
// yields (nil, nil) — "not found" is data here, not an error.
func (r *Reporter) BuildReport(ctx context.Context, snapshotID int64) (*SnapshotReport, error) {
	db := r.db.WithContext(ctx)

	var snapshot models.Snapshot
	err := db.Preload("Category").First(&snapshot, snapshotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var productCount int64
	err = db.Model(&models.ProductDataPoint{}).
		Where("snapshot_id = ?", snapshotID).
		Distinct("product_id").
		Count(&productCount).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	var trends []models.Trend
	err = db.Preload("Product").
		Where("snapshot_id = ?", snapshotID).
		Order("id asc").
		Find(&trends).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load trends: %w", err)
	}

	report := &SnapshotReport{
		SnapshotID:   snapshot.ID,
		CategoryName: snapshot.Category.Name,
		ListingType:  snapshot.ListingType,
		Status:       snapshot.Status,
		CapturedAt:   snapshot.CapturedAt.Format("2006-01-02 15:04:05 MST"),
		ProductCount: int(productCount),
		TrendCounts:  map[models.TrendType]int{},
	}

	grouped := map[models.TrendType][]string{}
	for _, trend := range trends {
		report.TrendCounts[trend.Type]++
		grouped[trend.Type] = append(grouped[trend.Type], fmt.Sprintf("%s — %s", trend.Product.Title, trend.Description))
	}
	for _, trendType := range []models.TrendType{models.TrendNewEntry, models.TrendRankSurge, models.TrendConsistentPerformer} {
		entries, ok := grouped[trendType]
		if !ok {
			continue
		}
		total := len(entries)
		if len(entries) > reportSectionCap {
			entries = entries[:reportSectionCap]
		}
		report.Sections = append(report.Sections, ReportSection{
			Type:    trendType,
			Total:   total,
			Entries: entries,
		})
	}
	return report, nil
}

// LatestReport builds the report for the most recent analyzed or completed
// snapshot. Returns (nil, nil) when no snapshot qualifies yet.
func (r *Reporter) LatestReport(ctx context.Context) (*SnapshotReport, error) {
	var snapshot models.Snapshot
	err := r.db.WithContext(ctx).
		Where("status IN ?", []models.SnapshotStatus{models.SnapshotAnalyzed, models.SnapshotCompleted, models.SnapshotCompletedWithNoData}).
		Order("captured_at DESC").
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.BuildReport(ctx, snapshot.ID)
}

var sectionHeadings = map[models.TrendType]string{
	models.TrendNewEntry:            "NEW ENTRIES",
	models.TrendRankSurge:           "RANK SURGES",
	models.TrendConsistentPerformer: "CONSISTENT PERFORMERS",
}

// FormatReport renders the fixed-structure text block. A nil report renders
// as a not-found notice.
func FormatReport(report *SnapshotReport) string {
	if report == nil {
		return "Report not found: no matching snapshot.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Bestseller Report — %s (%s)\n", report.CategoryName, report.ListingType)
	fmt.Fprintf(&b, "Snapshot #%d captured %s\n", report.SnapshotID, report.CapturedAt)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Products tracked: %d\n", report.ProductCount)
	fmt.Fprintf(&b, "Trends: %d new entries, %d rank surges, %d consistent performers\n",
		report.TrendCounts[models.TrendNewEntry],
		report.TrendCounts[models.TrendRankSurge],
		report.TrendCounts[models.TrendConsistentPerformer])

	for _, section := range report.Sections {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s (%d)\n", sectionHeadings[section.Type], section.Total)
		for _, entry := range section.Entries {
			fmt.Fprintf(&b, "  - %s\n", entry)
		}
	}
	return b.String()
}
