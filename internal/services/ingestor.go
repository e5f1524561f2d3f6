package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"rankpulse/internal/config"
	"rankpulse/internal/models"
	"rankpulse/internal/scraper"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ListingFetcher is the narrow transport interface the ingestor needs.
// *scraper.Fetcher satisfies it; tests inject fixtures.
type ListingFetcher interface {
	FetchListing(ctx context.Context, externalCategoryID string, listingType models.ListingType) ([]byte, error)
	FetchProductPage(ctx context.Context, asin string) ([]byte, error)
}

// Ingestor orchestrates category sync and turns extractor output into
// persisted Snapshot + Product + DataPoint rows.
type Ingestor struct {
	db      *gorm.DB
	fetcher ListingFetcher

	// EnrichListedAt enables the optional detail-page fetch that back-fills
	// a newly sighted product's first-listed date.
	EnrichListedAt bool
}

// NewIngestor creates an ingestor. fetcher may be nil when only manual
// imports are used.
func NewIngestor(db *gorm.DB, fetcher ListingFetcher) *Ingestor {
	return &Ingestor{db: db, fetcher: fetcher}
}

// SyncCategories upserts the configured categories by external id: insert if
// absent, update the name if changed, link parents, never delete. Returns the
// number of rows affected.
func (s *Ingestor) SyncCategories(ctx context.Context, inputs []config.CategoryInput) (int, error) {
	if err := config.ValidateCategories(inputs); err != nil {
		return 0, err
	}

	db := s.db.WithContext(ctx)
	affected := 0

	for _, in := range inputs {
		var cat models.Category
		err := db.Where("external_id = ?", in.ExternalID).First(&cat).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			cat = models.Category{ExternalID: in.ExternalID, Name: in.Name}
			if err := db.Create(&cat).Error; err != nil {
				return affected, fmt.Errorf("failed to create category %s: %w", in.ExternalID, err)
			}
			affected++
		case err != nil:
			return affected, fmt.Errorf("failed to look up category %s: %w", in.ExternalID, err)
		case cat.Name != in.Name:
			if err := db.Model(&cat).Update("name", in.Name).Error; err != nil {
				return affected, fmt.Errorf("failed to rename category %s: %w", in.ExternalID, err)
			}
			affected++
		}
	}

	// Parent links resolve in a second pass so ordering in the config file
	// does not matter.
	for _, in := range inputs {
		if in.ParentExternalID == "" {
			continue
		}
		var cat, parent models.Category
		if err := db.Where("external_id = ?", in.ExternalID).First(&cat).Error; err != nil {
			return affected, fmt.Errorf("failed to reload category %s: %w", in.ExternalID, err)
		}
		if err := db.Where("external_id = ?", in.ParentExternalID).First(&parent).Error; err != nil {
			logrus.Warnf("Parent category %s for %s not found, leaving unlinked", in.ParentExternalID, in.ExternalID)
			continue
		}
		if cat.ParentID == nil || *cat.ParentID != parent.ID {
			if err := db.Model(&cat).Update("parent_id", parent.ID).Error; err != nil {
				return affected, fmt.Errorf("failed to link category %s: %w", in.ExternalID, err)
			}
			affected++
		}
	}

	logrus.Infof("Category sync affected %d rows", affected)
	return affected, nil
}

// CaptureSnapshot fetches and persists one listing capture for a category.
// The snapshot row is kept as an audit trail on failure and the error is
// returned to the caller unchanged.
func (s *Ingestor) CaptureSnapshot(ctx context.Context, categoryID uint, listingType models.ListingType) (int64, error) {
	if s.fetcher == nil {
		return 0, errors.New("no fetcher configured; use ImportSnapshot for out-of-process captures")
	}

	db := s.db.WithContext(ctx)
	var category models.Category
	if err := db.First(&category, categoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("category %d: %w", categoryID, ErrNotFound)
		}
		return 0, err
	}

	snapshot := models.Snapshot{
		CapturedAt:  time.Now().UTC(),
		CategoryID:  category.ID,
		ListingType: listingType,
		Status:      models.SnapshotInProgress,
	}
	if err := db.Create(&snapshot).Error; err != nil {
		return 0, fmt.Errorf("failed to create snapshot: %w", err)
	}

	body, err := s.fetcher.FetchListing(ctx, category.ExternalID, listingType)
	if err != nil {
		s.markSnapshotFailed(ctx, &snapshot, err)
		return snapshot.ID, err
	}

	result, err := scraper.ParseListing(bytes.NewReader(body))
	if err != nil {
		s.markSnapshotFailed(ctx, &snapshot, err)
		return snapshot.ID, err
	}

	if result.NodesFound == 0 {
		logrus.Warnf("Snapshot %d: no listing nodes found for category %s, likely markup drift", snapshot.ID, category.ExternalID)
		if err := s.setSnapshotStatus(ctx, snapshot.ID, models.SnapshotCompletedWithNoData); err != nil {
			return snapshot.ID, err
		}
		return snapshot.ID, nil
	}

	if err := s.persistEntries(ctx, &snapshot, result.Entries); err != nil {
		s.markSnapshotFailed(ctx, &snapshot, err)
		return snapshot.ID, err
	}

	if err := s.setSnapshotStatus(ctx, snapshot.ID, models.SnapshotCompleted); err != nil {
		return snapshot.ID, err
	}
	logrus.Infof("Snapshot %d completed with %d entries", snapshot.ID, len(result.Entries))
	return snapshot.ID, nil
}

// ImportSnapshot persists a pre-extracted entry list, bypassing the fetcher
// and extractor. Used by scraping tools that run out-of-process.
func (s *Ingestor) ImportSnapshot(ctx context.Context, categoryID uint, listingType models.ListingType, capturedAt time.Time, entries []scraper.ListingEntry) (int64, error) {
	db := s.db.WithContext(ctx)
	var category models.Category
	if err := db.First(&category, categoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("category %d: %w", categoryID, ErrNotFound)
		}
		return 0, err
	}

	snapshot := models.Snapshot{
		CapturedAt:  capturedAt.UTC(),
		CategoryID:  category.ID,
		ListingType: listingType,
		Status:      models.SnapshotInProgress,
	}
	if err := db.Create(&snapshot).Error; err != nil {
		return 0, fmt.Errorf("failed to create snapshot: %w", err)
	}

	if len(entries) == 0 {
		if err := s.setSnapshotStatus(ctx, snapshot.ID, models.SnapshotCompletedWithNoData); err != nil {
			return snapshot.ID, err
		}
		return snapshot.ID, nil
	}

	if err := s.persistEntries(ctx, &snapshot, entries); err != nil {
		s.markSnapshotFailed(ctx, &snapshot, err)
		return snapshot.ID, err
	}

	if err := s.setSnapshotStatus(ctx, snapshot.ID, models.SnapshotCompleted); err != nil {
		return snapshot.ID, err
	}
	return snapshot.ID, nil
}

func (s *Ingestor) persistEntries(ctx context.Context, snapshot *models.Snapshot, entries []scraper.ListingEntry) error {
	db := s.db.WithContext(ctx)
	points := make([]models.ProductDataPoint, 0, len(entries))

	for _, entry := range entries {
		if entry.ASIN == "" {
			logrus.Warn("Skipping entry without product code")
			continue
		}

		product, err := s.upsertProduct(ctx, snapshot.CategoryID, entry)
		if err != nil {
			return err
		}

		price := entry.Price
		rating := entry.Rating
		reviews := entry.ReviewsCount
		points = append(points, models.ProductDataPoint{
			ProductID:    product.ID,
			SnapshotID:   snapshot.ID,
			CapturedAt:   snapshot.CapturedAt,
			Rank:         entry.Rank,
			Price:        &price,
			Rating:       &rating,
			ReviewsCount: &reviews,
		})
	}

	if len(points) == 0 {
		return nil
	}

	// Batch insert first; a constraint violation anywhere falls back to
	// per-row inserts so one bad row never rolls back the whole batch.
	if err := db.Create(&points).Error; err != nil {
		logrus.Warnf("Batch insert of %d data points failed (%v), retrying row by row", len(points), err)
		inserted := 0
		for i := range points {
			row := points[i]
			row.ID = 0
			if rowErr := db.Create(&row).Error; rowErr != nil {
				logrus.Warnf("Skipping data point for product %d in snapshot %d: %v", row.ProductID, row.SnapshotID, rowErr)
				continue
			}
			inserted++
		}
		logrus.Infof("Recovered %d/%d data points for snapshot %d", inserted, len(points), snapshot.ID)
	}
	return nil
}

// upsertProduct creates the product on first sighting and refreshes
// title/brand/image on later sightings. The listed-at date is back-filled
// only while unset; category linkage is corrected if the product moved.
func (s *Ingestor) upsertProduct(ctx context.Context, categoryID uint, entry scraper.ListingEntry) (*models.Product, error) {
	db := s.db.WithContext(ctx)

	var product models.Product
	err := db.Where("asin = ?", entry.ASIN).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		product = models.Product{
			ASIN:       entry.ASIN,
			Title:      entry.Title,
			Brand:      entry.Brand,
			ImageURL:   entry.ImageURL,
			CategoryID: categoryID,
		}
		if s.EnrichListedAt {
			product.ListedAt = s.fetchListedAt(ctx, entry.ASIN)
		}
		if err := db.Create(&product).Error; err != nil {
			return nil, fmt.Errorf("failed to create product %s: %w", entry.ASIN, err)
		}
		return &product, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up product %s: %w", entry.ASIN, err)
	}

	updates := map[string]interface{}{}
	if entry.Title != "" && entry.Title != scraper.UnknownTitle && entry.Title != product.Title {
		updates["title"] = entry.Title
	}
	if entry.Brand != "" && entry.Brand != product.Brand {
		updates["brand"] = entry.Brand
	}
	if entry.ImageURL != "" && entry.ImageURL != product.ImageURL {
		updates["image_url"] = entry.ImageURL
	}
	if product.CategoryID != categoryID {
		updates["category_id"] = categoryID
	}
	if product.ListedAt == nil && s.EnrichListedAt {
		if listedAt := s.fetchListedAt(ctx, entry.ASIN); listedAt != nil {
			updates["listed_at"] = listedAt
		}
	}
	if len(updates) > 0 {
		if err := db.Model(&product).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to refresh product %s: %w", entry.ASIN, err)
		}
	}
	return &product, nil
}

// fetchListedAt is a best-effort enrichment; absence is a missed enrichment,
// never an error.
func (s *Ingestor) fetchListedAt(ctx context.Context, asin string) *time.Time {
	if s.fetcher == nil {
		return nil
	}
	body, err := s.fetcher.FetchProductPage(ctx, asin)
	if err != nil {
		logrus.Debugf("Detail page fetch for %s failed: %v", asin, err)
		return nil
	}
	return scraper.ParseFirstListedDate(bytes.NewReader(body))
}

func (s *Ingestor) setSnapshotStatus(ctx context.Context, snapshotID int64, status models.SnapshotStatus) error {
	return s.db.WithContext(ctx).
		Model(&models.Snapshot{}).
		Where("id = ?", snapshotID).
		Update("status", status).Error
}

func (s *Ingestor) markSnapshotFailed(ctx context.Context, snapshot *models.Snapshot, cause error) {
	logrus.Errorf("Snapshot %d failed: %v", snapshot.ID, cause)
	err := s.db.WithContext(ctx).
		Model(&models.Snapshot{}).
		Where("id = ?", snapshot.ID).
		Updates(map[string]interface{}{
			"status":        models.SnapshotFailed,
			"error_message": cause.Error(),
		}).Error
	if err != nil {
		logrus.Errorf("Could not record failure on snapshot %d: %v", snapshot.ID, err)
	}
}
