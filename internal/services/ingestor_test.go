package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"rankpulse/internal/config"
	"rankpulse/internal/models"
	"rankpulse/internal/scraper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingFixture = `<html><body><div id="gridItemRoot">
<div class="p13n-sc-uncoverable-faceout">
  <a class="a-link-normal" href="/dp/B0GADGET01/ref=zg_bs_electronics"><span>link</span></a>
  <span class="zg-bdg-text">#1</span>
  <div class="_cDEzb_p13n-sc-css-line-clamp-3_g3dy1">Wireless Earbuds Pro</div>
  <span class="_cDEzb_p13n-sc-price_3mJ9Z">$29.99</span>
  <i class="a-icon-star-small"><span class="a-icon-alt">4.5 out of 5 stars</span></i>
  <span class="a-size-small">12,345</span>
  <img src="https://images.example.com/earbuds.jpg">
</div>
<div class="p13n-sc-uncoverable-faceout">
  <a class="a-link-normal" href="/dp/B0GADGET02"><span>link</span></a>
  <span class="zg-badge-text">#2</span>
  <div class="p13n-sc-truncate">USB-C Charger</div>
  <span class="p13n-sc-price">$19.99</span>
  <span class="a-icon-alt">4.7 out of 5 stars</span>
  <span class="a-size-small">2,001</span>
</div>
</div></body></html>`

const noNodesFixture = `<html><body><div class="totally-different-layout"></div></body></html>`

const detailFixture = `<html><body><div id="detailBullets_feature_div"><ul>
<li><span class="a-list-item"><span class="a-text-bold">Date First Available :</span> <span>March 5, 2024</span></span></li>
</ul></div></body></html>`

type fakeFetcher struct {
	listingBody  []byte
	listingErr   error
	detailBody   []byte
	detailErr    error
	listingCalls int
}

func (f *fakeFetcher) FetchListing(ctx context.Context, externalCategoryID string, listingType models.ListingType) ([]byte, error) {
	f.listingCalls++
	return f.listingBody, f.listingErr
}

func (f *fakeFetcher) FetchProductPage(ctx context.Context, asin string) ([]byte, error) {
	return f.detailBody, f.detailErr
}

func TestSyncCategories(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ingestor := NewIngestor(db, nil)

	inputs := []config.CategoryInput{
		{ExternalID: "electronics", Name: "Electronics"},
		{ExternalID: "audio", Name: "Audio", ParentExternalID: "electronics"},
	}

	affected, err := ingestor.SyncCategories(ctx, inputs)
	require.NoError(t, err)
	// Two inserts plus one parent link.
	assert.Equal(t, 3, affected)

	// Re-running with identical config is a no-op.
	affected, err = ingestor.SyncCategories(ctx, inputs)
	require.NoError(t, err)
	assert.Equal(t, 0, affected)

	// A rename only touches the renamed row.
	inputs[1].Name = "Audio & Headphones"
	affected, err = ingestor.SyncCategories(ctx, inputs)
	require.NoError(t, err)
	assert.Equal(t, 1, affected)

	var audio models.Category
	require.NoError(t, db.Where("external_id = ?", "audio").First(&audio).Error)
	assert.Equal(t, "Audio & Headphones", audio.Name)
	require.NotNil(t, audio.ParentID)

	var parent models.Category
	require.NoError(t, db.First(&parent, *audio.ParentID).Error)
	assert.Equal(t, "electronics", parent.ExternalID)

	var total int64
	require.NoError(t, db.Model(&models.Category{}).Count(&total).Error)
	assert.Equal(t, int64(2), total)
}

func TestSyncCategoriesRejectsDuplicates(t *testing.T) {
	db := newTestDB(t)
	ingestor := NewIngestor(db, nil)

	_, err := ingestor.SyncCategories(context.Background(), []config.CategoryInput{
		{ExternalID: "books", Name: "Books"},
		{ExternalID: "books", Name: "Books again"},
	})
	assert.Error(t, err)
}

func TestCaptureSnapshotCompleted(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	cat := seedCategory(t, db, "electronics", "Electronics")

	fetcher := &fakeFetcher{listingBody: []byte(listingFixture)}
	ingestor := NewIngestor(db, fetcher)

	snapID, err := ingestor.CaptureSnapshot(ctx, cat.ID, models.ListingBestSellers)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.listingCalls)

	var snapshot models.Snapshot
	require.NoError(t, db.First(&snapshot, snapID).Error)
	assert.Equal(t, models.SnapshotCompleted, snapshot.Status)

	var products []models.Product
	require.NoError(t, db.Order("asin asc").Find(&products).Error)
	require.Len(t, products, 2)
	assert.Equal(t, "Wireless Earbuds Pro", products[0].Title)
	assert.Equal(t, "https://images.example.com/earbuds.jpg", products[0].ImageURL)

	var points []models.ProductDataPoint
	require.NoError(t, db.Where("snapshot_id = ?", snapID).Order("`rank` asc").Find(&points).Error)
	require.Len(t, points, 2)
	assert.Equal(t, 1, points[0].Rank)
	assert.Equal(t, 2, points[1].Rank)
	require.NotNil(t, points[0].Price)
	assert.InDelta(t, 29.99, *points[0].Price, 0.001)
	require.NotNil(t, points[1].Rating)
	assert.InDelta(t, 4.7, *points[1].Rating, 0.001)
	require.NotNil(t, points[0].ReviewsCount)
	assert.Equal(t, 12345, *points[0].ReviewsCount)
}

func TestCaptureSnapshotNoData(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	cat := seedCategory(t, db, "electronics", "Electronics")

	ingestor := NewIngestor(db, &fakeFetcher{listingBody: []byte(noNodesFixture)})

	snapID, err := ingestor.CaptureSnapshot(ctx, cat.ID, models.ListingBestSellers)
	require.NoError(t, err)

	var snapshot models.Snapshot
	require.NoError(t, db.First(&snapshot, snapID).Error)
	assert.Equal(t, models.SnapshotCompletedWithNoData, snapshot.Status)

	var total int64
	require.NoError(t, db.Model(&models.ProductDataPoint{}).Count(&total).Error)
	assert.Equal(t, int64(0), total)
}

func TestCaptureSnapshotFetchFailure(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	cat := seedCategory(t, db, "electronics", "Electronics")

	fetchErr := errors.New("request to listing returned status 503")
	ingestor := NewIngestor(db, &fakeFetcher{listingErr: fetchErr})

	snapID, err := ingestor.CaptureSnapshot(ctx, cat.ID, models.ListingBestSellers)
	require.ErrorIs(t, err, fetchErr)

	// The snapshot row is preserved as an audit trail of the failure.
	var snapshot models.Snapshot
	require.NoError(t, db.First(&snapshot, snapID).Error)
	assert.Equal(t, models.SnapshotFailed, snapshot.Status)
	assert.Contains(t, snapshot.ErrorMessage, "503")
}

func TestCaptureSnapshotUnknownCategory(t *testing.T) {
	db := newTestDB(t)
	ingestor := NewIngestor(db, &fakeFetcher{listingBody: []byte(listingFixture)})

	_, err := ingestor.CaptureSnapshot(context.Background(), 42, models.ListingBestSellers)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCaptureSnapshotEnrichesListedAt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	cat := seedCategory(t, db, "electronics", "Electronics")

	ingestor := NewIngestor(db, &fakeFetcher{
		listingBody: []byte(listingFixture),
		detailBody:  []byte(detailFixture),
	})
	ingestor.EnrichListedAt = true

	_, err := ingestor.CaptureSnapshot(ctx, cat.ID, models.ListingBestSellers)
	require.NoError(t, err)

	var product models.Product
	require.NoError(t, db.Where("asin = ?", "B0GADGET01").First(&product).Error)
	require.NotNil(t, product.ListedAt)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), product.ListedAt.UTC())
}

func TestImportSnapshotRefreshesProduct(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	catA := seedCategory(t, db, "electronics", "Electronics")
	catB := seedCategory(t, db, "audio", "Audio")

	ingestor := NewIngestor(db, nil)
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	_, err := ingestor.ImportSnapshot(ctx, catA.ID, models.ListingBestSellers, base, []scraper.ListingEntry{
		{ASIN: "B0GADGET01", Title: "Old Title", Rank: 5},
	})
	require.NoError(t, err)

	_, err = ingestor.ImportSnapshot(ctx, catB.ID, models.ListingBestSellers, base.Add(time.Hour), []scraper.ListingEntry{
		{ASIN: "B0GADGET01", Title: "New Title", Brand: "Acme", ImageURL: "https://img/x.jpg", Rank: 3},
	})
	require.NoError(t, err)

	var product models.Product
	require.NoError(t, db.Where("asin = ?", "B0GADGET01").First(&product).Error)
	assert.Equal(t, "New Title", product.Title)
	assert.Equal(t, "Acme", product.Brand)
	assert.Equal(t, "https://img/x.jpg", product.ImageURL)
	assert.Equal(t, catB.ID, product.CategoryID)

	var total int64
	require.NoError(t, db.Model(&models.ProductDataPoint{}).Where("product_id = ?", product.ID).Count(&total).Error)
	assert.Equal(t, int64(2), total)
}

func TestImportSnapshotSkipsDuplicateRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	cat := seedCategory(t, db, "electronics", "Electronics")

	ingestor := NewIngestor(db, nil)
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	snapID, err := ingestor.ImportSnapshot(ctx, cat.ID, models.ListingBestSellers, base, []scraper.ListingEntry{
		{ASIN: "B0GADGET01", Title: "Gadget", Rank: 1},
		{ASIN: "B0GADGET02", Title: "Other Gadget", Rank: 2},
		{ASIN: "B0GADGET01", Title: "Gadget", Rank: 7},
	})
	require.NoError(t, err)

	// The duplicate (product, snapshot) row is skipped, the rest commits.
	var snapshot models.Snapshot
	require.NoError(t, db.First(&snapshot, snapID).Error)
	assert.Equal(t, models.SnapshotCompleted, snapshot.Status)

	var total int64
	require.NoError(t, db.Model(&models.ProductDataPoint{}).Where("snapshot_id = ?", snapID).Count(&total).Error)
	assert.Equal(t, int64(2), total)
}

func TestImportSnapshotEmptyEntries(t *testing.T) {
	db := newTestDB(t)
	cat := seedCategory(t, db, "electronics", "Electronics")

	ingestor := NewIngestor(db, nil)
	snapID, err := ingestor.ImportSnapshot(context.Background(), cat.ID, models.ListingMoversAndShakers, time.Now(), nil)
	require.NoError(t, err)

	var snapshot models.Snapshot
	require.NoError(t, db.First(&snapshot, snapID).Error)
	assert.Equal(t, models.SnapshotCompletedWithNoData, snapshot.Status)
}
