package models

import (
	"fmt"
	"time"
)

// ListingType identifies which bestseller chart a snapshot was captured from.
type ListingType string

const (
	ListingBestSellers      ListingType = "BestSellers"
	ListingNewReleases      ListingType = "NewReleases"
	ListingMoversAndShakers ListingType = "MoversAndShakers"
)

// ParseListingType validates a listing type received at an API boundary.
func ParseListingType(s string) (ListingType, error) {
	switch ListingType(s) {
	case ListingBestSellers, ListingNewReleases, ListingMoversAndShakers:
		return ListingType(s), nil
	}
	return "", fmt.Errorf("unknown listing type %q", s)
}

// SnapshotStatus tracks the lifecycle of a ranking snapshot.
type SnapshotStatus string

const (
	SnapshotInProgress          SnapshotStatus = "InProgress"
	SnapshotCompleted           SnapshotStatus = "Completed"
	SnapshotCompletedWithNoData SnapshotStatus = "CompletedWithNoData"
	SnapshotFailed              SnapshotStatus = "Failed"
	SnapshotAnalyzed            SnapshotStatus = "Analyzed"
)

// TrendType labels the outcome of comparing a data point against the
// product's previous data point.
type TrendType string

const (
	TrendNewEntry            TrendType = "NewEntry"
	TrendRankSurge           TrendType = "RankSurge"
	TrendConsistentPerformer TrendType = "ConsistentPerformer"
)

// IssueType classifies an operational issue.
type IssueType string

const (
	IssueLowStock       IssueType = "LowStock"
	IssueNegativeReview IssueType = "NegativeReview"
)

// Severity is the three-tier urgency of an operational issue.
type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

// Category represents a listing-site category being tracked.
type Category struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ExternalID string    `json:"external_id" gorm:"uniqueIndex;size:64;not null"`
	Name       string    `json:"name" gorm:"not null"`
	ParentID   *uint     `json:"parent_id"`
	Parent     *Category `json:"-" gorm:"foreignKey:ParentID"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Product is a listed item identified by its stable 10-character code.
type Product struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	ASIN       string     `json:"asin" gorm:"uniqueIndex;size:10;not null"`
	Title      string     `json:"title" gorm:"not null"`
	Brand      string     `json:"brand"`
	CategoryID uint       `json:"category_id" gorm:"index;not null"`
	Category   Category   `json:"-" gorm:"foreignKey:CategoryID"`
	ListedAt   *time.Time `json:"listed_at"`
	ImageURL   string     `json:"image_url"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Snapshot is one point-in-time capture of a bestseller listing.
type Snapshot struct {
	ID           int64          `json:"id" gorm:"primaryKey"`
	CapturedAt   time.Time      `json:"captured_at" gorm:"index;not null"`
	CategoryID   uint           `json:"category_id" gorm:"index;not null"`
	Category     Category       `json:"-" gorm:"foreignKey:CategoryID"`
	ListingType  ListingType    `json:"listing_type" gorm:"size:32;index;not null"`
	Status       SnapshotStatus `json:"status" gorm:"size:32;index;not null"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ProductDataPoint stores one product's observed metrics in one snapshot.
// Rows are append-only; rank 0 means the rank could not be parsed.
type ProductDataPoint struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ProductID    uint      `json:"product_id" gorm:"uniqueIndex:idx_point_product_snapshot;not null"`
	Product      Product   `json:"-" gorm:"foreignKey:ProductID"`
	SnapshotID   int64     `json:"snapshot_id" gorm:"uniqueIndex:idx_point_product_snapshot;index;not null"`
	CapturedAt   time.Time `json:"captured_at" gorm:"index;not null"`
	Rank         int       `json:"rank" gorm:"not null"`
	Price        *float64  `json:"price"`
	Rating       *float64  `json:"rating"`
	ReviewsCount *int      `json:"reviews_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Trend is a derived label comparing a product's current and prior data
// point. Trends are regenerated wholesale per snapshot.
type Trend struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	ProductID   uint      `json:"product_id" gorm:"index;not null"`
	Product     Product   `json:"-" gorm:"foreignKey:ProductID"`
	SnapshotID  int64     `json:"snapshot_id" gorm:"index;not null"`
	Type        TrendType `json:"type" gorm:"size:32;index;not null"`
	Description string    `json:"description"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// OperationalSnapshot is one capture of inventory and review-health metrics,
// independent of ranking snapshots.
type OperationalSnapshot struct {
	ID           int64          `json:"id" gorm:"primaryKey"`
	CapturedAt   time.Time      `json:"captured_at" gorm:"index;not null"`
	SnapshotID   *int64         `json:"snapshot_id"`
	Status       SnapshotStatus `json:"status" gorm:"size:32;index;not null"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ProductOperationalMetric holds one product's operational KPIs within an
// operational snapshot.
type ProductOperationalMetric struct {
	ID                        uint       `json:"id" gorm:"primaryKey"`
	OperationalSnapshotID     int64      `json:"operational_snapshot_id" gorm:"index;not null"`
	ProductID                 uint       `json:"product_id" gorm:"index;not null"`
	Product                   Product    `json:"-" gorm:"foreignKey:ProductID"`
	CapturedAt                time.Time  `json:"captured_at"`
	InventoryQuantity         *int       `json:"inventory_quantity"`
	InventoryDays             *float64   `json:"inventory_days"`
	UnitsSold7d               *int       `json:"units_sold_7d"`
	Stockout                  *bool      `json:"stockout"`
	NegativeReviewCount       int        `json:"negative_review_count" gorm:"default:0"`
	LastNegativeReviewAt      *time.Time `json:"last_negative_review_at"`
	LastNegativeReviewExcerpt string     `json:"last_negative_review_excerpt"`
	LastNegativeReviewURL     string     `json:"last_negative_review_url"`
	BuyBoxPrice               *float64   `json:"buy_box_price"`
	CreatedAt                 time.Time  `json:"created_at"`
}

// OperationalIssue is derived from the latest operational snapshot on every
// query. It is never persisted.
type OperationalIssue struct {
	ProductID           uint      `json:"product_id"`
	ASIN                string    `json:"asin"`
	Title               string    `json:"title"`
	Type                IssueType `json:"type"`
	Severity            Severity  `json:"severity"`
	InventoryQuantity   *int      `json:"inventory_quantity,omitempty"`
	InventoryDays       *float64  `json:"inventory_days,omitempty"`
	NegativeReviewCount int       `json:"negative_review_count,omitempty"`
	Recommendation      string    `json:"recommendation"`
	CapturedAt          time.Time `json:"captured_at"`
}
