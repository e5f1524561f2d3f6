package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"rankpulse/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OperationalMetricInput is one product's operational KPIs as delivered by
// an external operational data source.
type OperationalMetricInput struct {
	ASIN                      string     `json:"asin"`
	InventoryQuantity         *int       `json:"inventory_quantity"`
	InventoryDays             *float64   `json:"inventory_days"`
	UnitsSold7d               *int       `json:"units_sold_7d"`
	Stockout                  *bool      `json:"stockout"`
	NegativeReviewCount       int        `json:"negative_review_count"`
	LastNegativeReviewAt      *time.Time `json:"last_negative_review_at"`
	LastNegativeReviewExcerpt string     `json:"last_negative_review_excerpt"`
	LastNegativeReviewURL     string     `json:"last_negative_review_url"`
	BuyBoxPrice               *float64   `json:"buy_box_price"`
}

// OperationalPayload is one pull from an operational data source.
type OperationalPayload struct {
	CapturedAt       time.Time                `json:"captured_at"`
	SourceSnapshotID *int64                   `json:"source_snapshot_id"`
	Metrics          []OperationalMetricInput `json:"metrics"`
}

// OperationalSource supplies operational metrics from outside the pipeline.
type OperationalSource interface {
	Fetch(ctx context.Context) (*OperationalPayload, error)
}

// HTTPOperationalSource pulls a JSON payload from a configured endpoint.
type HTTPOperationalSource struct {
	client *resty.Client
	url    string
}

// NewHTTPOperationalSource creates a source reading from url.
func NewHTTPOperationalSource(url string) *HTTPOperationalSource {
	return &HTTPOperationalSource{
		client: resty.New().SetTimeout(30 * time.Second).SetRetryCount(0),
		url:    url,
	}
}

// Fetch retrieves and decodes the operational payload.
func (s *HTTPOperationalSource) Fetch(ctx context.Context) (*OperationalPayload, error) {
	var payload OperationalPayload
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&payload).
		Get(s.url)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("operational source returned status %d", resp.StatusCode())
	}
	return &payload, nil
}

// ScoringConfig holds the named thresholds of both classifiers. Zero-valued
// low-stock thresholds disable the days-based tiers.
type ScoringConfig struct {
	LowStockDaysThreshold         float64
	LowStockHighFactor            float64
	NegativeReviewWindowDays      int
	NegativeReviewMediumThreshold int
	NegativeReviewHighCount       int
	StaleAfter                    time.Duration
}

// IssueFilter narrows and pages the derived issue list.
type IssueFilter struct {
	Type     models.IssueType
	Severity models.Severity
	Search   string
	Page     int
	PageSize int
}

// IssueTypeSummary aggregates issue counts for one issue type.
type IssueTypeSummary struct {
	Total  int `json:"total"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// OperationalSummary is the aggregate health view of the latest operational
// snapshot.
type OperationalSummary struct {
	SnapshotID     int64            `json:"snapshot_id"`
	CapturedAt     time.Time        `json:"captured_at"`
	Stale          bool             `json:"stale"`
	LowStock       IssueTypeSummary `json:"low_stock"`
	NegativeReview IssueTypeSummary `json:"negative_review"`
}

// OperationalService ingests operational metrics and derives severity-tiered
// issues from the most recent snapshot. Issues are recomputed on every query
// and never stored.
type OperationalService struct {
	db     *gorm.DB
	source OperationalSource
	cfg    ScoringConfig

	// now is injectable for window and staleness tests.
	now func() time.Time
}

// NewOperationalService creates the service. source may be nil when
// ingestion is never triggered in-process.
func NewOperationalService(db *gorm.DB, source OperationalSource, cfg ScoringConfig) *OperationalService {
	return &OperationalService{db: db, source: source, cfg: cfg, now: time.Now}
}

// IngestMetrics pulls one payload from the operational source and persists
// it. Metrics for ASINs with no matching product are skipped, never fatal.
// Returns the operational snapshot id and the number of metrics stored.
func (s *OperationalService) IngestMetrics(ctx context.Context) (int64, int, error) {
	if s.source == nil {
		return 0, 0, errors.New("no operational source configured")
	}

	payload, err := s.source.Fetch(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("operational source fetch failed: %w", err)
	}

	capturedAt := payload.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = s.now().UTC()
	}

	db := s.db.WithContext(ctx)
	snapshot := models.OperationalSnapshot{
		CapturedAt: capturedAt,
		SnapshotID: payload.SourceSnapshotID,
		Status:     models.SnapshotInProgress,
	}
	if err := db.Create(&snapshot).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to create operational snapshot: %w", err)
	}

	stored := 0
	for _, in := range payload.Metrics {
		var product models.Product
		err := db.Where("asin = ?", in.ASIN).First(&product).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.Warnf("Skipping operational metric for unknown product %s", in.ASIN)
			continue
		}
		if err != nil {
			s.markOperationalFailed(ctx, snapshot.ID, err)
			return snapshot.ID, stored, err
		}

		metric := models.ProductOperationalMetric{
			OperationalSnapshotID:     snapshot.ID,
			ProductID:                 product.ID,
			CapturedAt:                capturedAt,
			InventoryQuantity:         in.InventoryQuantity,
			InventoryDays:             in.InventoryDays,
			UnitsSold7d:               in.UnitsSold7d,
			Stockout:                  in.Stockout,
			NegativeReviewCount:       in.NegativeReviewCount,
			LastNegativeReviewAt:      in.LastNegativeReviewAt,
			LastNegativeReviewExcerpt: in.LastNegativeReviewExcerpt,
			LastNegativeReviewURL:     in.LastNegativeReviewURL,
			BuyBoxPrice:               in.BuyBoxPrice,
		}
		if err := db.Create(&metric).Error; err != nil {
			logrus.Warnf("Skipping unstorable metric for %s: %v", in.ASIN, err)
			continue
		}
		stored++
	}

	if err := db.Model(&models.OperationalSnapshot{}).
		Where("id = ?", snapshot.ID).
		Update("status", models.SnapshotCompleted).Error; err != nil {
		return snapshot.ID, stored, err
	}

	logrus.Infof("Operational snapshot %d stored %d/%d metrics", snapshot.ID, stored, len(payload.Metrics))
	return snapshot.ID, stored, nil
}

func (s *OperationalService) markOperationalFailed(ctx context.Context, id int64, cause error) {
	err := s.db.WithContext(ctx).
		Model(&models.OperationalSnapshot{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.SnapshotFailed,
			"error_message": cause.Error(),
		}).Error
	if err != nil {
		logrus.Errorf("Could not record failure on operational snapshot %d: %v", id, err)
	}
}

// latestSnapshot returns the most recent completed operational snapshot, or
// nil when none exists yet.
func (s *OperationalService) latestSnapshot(ctx context.Context) (*models.OperationalSnapshot, error) {
	var snapshot models.OperationalSnapshot
	err := s.db.WithContext(ctx).
		Where("status = ?", models.SnapshotCompleted).
		Order("captured_at DESC").
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// LatestIssues derives, filters and pages the issue list from the latest
// operational snapshot. An empty list with total 0 means no data yet.
func (s *OperationalService) LatestIssues(ctx context.Context, filter IssueFilter) ([]models.OperationalIssue, int, error) {
	issues, err := s.computeLatestIssues(ctx)
	if err != nil {
		return nil, 0, err
	}

	filtered := issues[:0:0]
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	for _, issue := range issues {
		if filter.Type != "" && issue.Type != filter.Type {
			continue
		}
		if filter.Severity != "" && issue.Severity != filter.Severity {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(issue.Title), search) &&
			!strings.Contains(strings.ToLower(issue.ASIN), search) {
			continue
		}
		filtered = append(filtered, issue)
	}

	total := len(filtered)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	start := (page - 1) * size
	if start >= total {
		return []models.OperationalIssue{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return filtered[start:end], total, nil
}

// Summary aggregates issue counts per type for the latest operational
// snapshot. Returns nil when no snapshot exists yet.
func (s *OperationalService) Summary(ctx context.Context) (*OperationalSummary, error) {
	snapshot, err := s.latestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, nil
	}

	issues, err := s.computeLatestIssues(ctx)
	if err != nil {
		return nil, err
	}

	summary := &OperationalSummary{
		SnapshotID: snapshot.ID,
		CapturedAt: snapshot.CapturedAt,
		Stale:      s.cfg.StaleAfter > 0 && s.now().Sub(snapshot.CapturedAt) > s.cfg.StaleAfter,
	}
	for _, issue := range issues {
		bucket := &summary.LowStock
		if issue.Type == models.IssueNegativeReview {
			bucket = &summary.NegativeReview
		}
		bucket.Total++
		switch issue.Severity {
		case models.SeverityHigh:
			bucket.High++
		case models.SeverityMedium:
			bucket.Medium++
		case models.SeverityLow:
			bucket.Low++
		}
	}
	return summary, nil
}

func (s *OperationalService) computeLatestIssues(ctx context.Context) ([]models.OperationalIssue, error) {
	snapshot, err := s.latestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return []models.OperationalIssue{}, nil
	}

	var metrics []models.ProductOperationalMetric
	err = s.db.WithContext(ctx).
		Preload("Product").
		Where("operational_snapshot_id = ?", snapshot.ID).
		Find(&metrics).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load operational metrics: %w", err)
	}

	now := s.now().UTC()
	issues := make([]models.OperationalIssue, 0, len(metrics))
	for _, metric := range metrics {
		if severity, ok := s.cfg.classifyLowStock(metric); ok {
			issues = append(issues, models.OperationalIssue{
				ProductID:         metric.ProductID,
				ASIN:              metric.Product.ASIN,
				Title:             metric.Product.Title,
				Type:              models.IssueLowStock,
				Severity:          severity,
				InventoryQuantity: metric.InventoryQuantity,
				InventoryDays:     metric.InventoryDays,
				Recommendation:    s.cfg.lowStockRecommendation(metric, severity),
				CapturedAt:        metric.CapturedAt,
			})
		}
		if severity, ok := s.cfg.classifyNegativeReview(metric, now); ok {
			issues = append(issues, models.OperationalIssue{
				ProductID:           metric.ProductID,
				ASIN:                metric.Product.ASIN,
				Title:               metric.Product.Title,
				Type:                models.IssueNegativeReview,
				Severity:            severity,
				NegativeReviewCount: metric.NegativeReviewCount,
				Recommendation:      s.cfg.negativeReviewRecommendation(metric),
				CapturedAt:          metric.CapturedAt,
			})
		}
	}

	severityRank := map[models.Severity]int{
		models.SeverityHigh:   3,
		models.SeverityMedium: 2,
		models.SeverityLow:    1,
	}
	sort.SliceStable(issues, func(i, j int) bool {
		if severityRank[issues[i].Severity] != severityRank[issues[j].Severity] {
			return severityRank[issues[i].Severity] > severityRank[issues[j].Severity]
		}
		return issues[i].Title < issues[j].Title
	})
	return issues, nil
}

// classifyLowStock evaluates the low-stock tiers in priority order. The
// second return value is false when no threshold is crossed.
func (c ScoringConfig) classifyLowStock(m models.ProductOperationalMetric) (models.Severity, bool) {
	if (m.Stockout != nil && *m.Stockout) || (m.InventoryQuantity != nil && *m.InventoryQuantity <= 0) {
		return models.SeverityHigh, true
	}
	if m.InventoryDays == nil {
		return "", false
	}
	days := *m.InventoryDays
	if days <= 0 {
		return models.SeverityHigh, true
	}
	if c.LowStockDaysThreshold <= 0 {
		return "", false
	}
	if c.LowStockHighFactor > 0 {
		highBoundary := math.Floor(c.LowStockDaysThreshold * c.LowStockHighFactor)
		if highBoundary < 1 {
			highBoundary = 1
		}
		if days <= highBoundary {
			return models.SeverityHigh, true
		}
	}
	if days < c.LowStockDaysThreshold {
		return models.SeverityMedium, true
	}
	return "", false
}

// classifyNegativeReview scores negative-review pressure. Metrics whose
// latest review falls outside the trailing window are a stale signal and are
// ignored even above the high threshold.
func (c ScoringConfig) classifyNegativeReview(m models.ProductOperationalMetric, now time.Time) (models.Severity, bool) {
	if m.NegativeReviewCount <= 0 {
		return "", false
	}
	if m.LastNegativeReviewAt != nil && c.NegativeReviewWindowDays > 0 {
		window := time.Duration(c.NegativeReviewWindowDays) * 24 * time.Hour
		if now.Sub(*m.LastNegativeReviewAt) > window {
			return "", false
		}
	}

	high := c.NegativeReviewHighCount
	if c.NegativeReviewMediumThreshold > high {
		high = c.NegativeReviewMediumThreshold
	}
	switch {
	case m.NegativeReviewCount >= high:
		return models.SeverityHigh, true
	case m.NegativeReviewCount >= c.NegativeReviewMediumThreshold:
		return models.SeverityMedium, true
	default:
		return models.SeverityLow, true
	}
}

func (c ScoringConfig) lowStockRecommendation(m models.ProductOperationalMetric, severity models.Severity) string {
	if (m.Stockout != nil && *m.Stockout) || (m.InventoryQuantity != nil && *m.InventoryQuantity <= 0) {
		return "Out of stock: replenish immediately to avoid losing the listing's rank momentum."
	}
	if m.InventoryDays != nil {
		if severity == models.SeverityHigh {
			return fmt.Sprintf("Critical: about %.0f days of supply left (threshold %.0f days); expedite a replenishment order.", *m.InventoryDays, c.LowStockDaysThreshold)
		}
		return fmt.Sprintf("About %.0f days of supply left (threshold %.0f days); schedule a replenishment order.", *m.InventoryDays, c.LowStockDaysThreshold)
	}
	return "Inventory is running low; review replenishment."
}

func (c ScoringConfig) negativeReviewRecommendation(m models.ProductOperationalMetric) string {
	return fmt.Sprintf("%d negative reviews within the last %d days; investigate recent complaints and respond to reviewers.",
		m.NegativeReviewCount, c.NegativeReviewWindowDays)
}
