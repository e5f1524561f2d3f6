package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"rankpulse/internal/config"
	"rankpulse/internal/export"
	"rankpulse/internal/models"
	"rankpulse/internal/scraper"
	"rankpulse/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// APIHandler bundles the pipeline services behind the REST surface.
type APIHandler struct {
	db          *gorm.DB
	ingestor    *services.Ingestor
	analyzer    *services.TrendAnalyzer
	operational *services.OperationalService
	reporter    *services.Reporter
}

// SetupRoutes registers all API routes on the given group.
func SetupRoutes(r *gin.RouterGroup, db *gorm.DB, ingestor *services.Ingestor, analyzer *services.TrendAnalyzer, operational *services.OperationalService, reporter *services.Reporter) *APIHandler {
	handler := &APIHandler{
		db:          db,
		ingestor:    ingestor,
		analyzer:    analyzer,
		operational: operational,
		reporter:    reporter,
	}

	r.POST("/categories/sync", handler.SyncCategories)

	snapshots := r.Group("/snapshots")
	{
		snapshots.POST("/capture", handler.CaptureSnapshot)
		snapshots.POST("/import", handler.ImportSnapshot)
		snapshots.POST("/:id/analyze", handler.AnalyzeSnapshot)
	}

	r.GET("/metrics/latest", handler.LatestMetrics)
	r.GET("/products", handler.ListProducts)
	r.GET("/products/:asin/history", handler.ProductHistory)
	r.GET("/trends", handler.LatestTrends)
	r.GET("/reports/latest", handler.LatestReport)

	operations := r.Group("/operations")
	{
		operations.POST("/ingest", handler.IngestOperational)
		operations.GET("/summary", handler.OperationalSummary)
		operations.GET("/issues", handler.OperationalIssues)
		operations.GET("/issues/export", handler.ExportOperationalIssues)
	}

	return handler
}

func respondError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

type syncCategoriesRequest struct {
	Categories []config.CategoryInput `json:"categories" binding:"required"`
}

// SyncCategories upserts the posted category configuration.
func (h *APIHandler) SyncCategories(c *gin.Context) {
	var req syncCategoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	affected, err := h.ingestor.SyncCategories(c.Request.Context(), req.Categories)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affected": affected})
}

type captureRequest struct {
	CategoryID  uint   `json:"category_id" binding:"required"`
	ListingType string `json:"listing_type" binding:"required"`
}

// CaptureSnapshot triggers one fetch-parse-persist capture.
func (h *APIHandler) CaptureSnapshot(c *gin.Context) {
	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	listingType, err := models.ParseListingType(req.ListingType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshotID, err := h.ingestor.CaptureSnapshot(c.Request.Context(), req.CategoryID, listingType)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			respondError(c, err)
			return
		}
		// The snapshot row is preserved as a failure audit trail.
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "snapshot_id": snapshotID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot_id": snapshotID})
}

type importRequest struct {
	CategoryID  uint                   `json:"category_id" binding:"required"`
	ListingType string                 `json:"listing_type" binding:"required"`
	CapturedAt  time.Time              `json:"captured_at" binding:"required"`
	Entries     []scraper.ListingEntry `json:"entries"`
}

// ImportSnapshot accepts a pre-extracted entry list from an out-of-process
// scraping tool.
func (h *APIHandler) ImportSnapshot(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	listingType, err := models.ParseListingType(req.ListingType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshotID, err := h.ingestor.ImportSnapshot(c.Request.Context(), req.CategoryID, listingType, req.CapturedAt, req.Entries)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot_id": snapshotID})
}

// AnalyzeSnapshot runs trend analysis for one snapshot id.
func (h *APIHandler) AnalyzeSnapshot(c *gin.Context) {
	snapshotID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot id"})
		return
	}

	count, err := h.analyzer.AnalyzeSnapshot(c.Request.Context(), snapshotID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trend_count": count})
}

// LatestMetrics returns the core metrics of the most recent usable snapshot.
// 204 when nothing has been captured yet.
func (h *APIHandler) LatestMetrics(c *gin.Context) {
	report, err := h.reporter.LatestReport(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if report == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshot_id":   report.SnapshotID,
		"category_name": report.CategoryName,
		"listing_type":  report.ListingType,
		"status":        report.Status,
		"captured_at":   report.CapturedAt,
		"product_count": report.ProductCount,
		"trend_counts":  report.TrendCounts,
	})
}

// ListProducts returns a paged, filterable product list.
func (h *APIHandler) ListProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := h.db.WithContext(c.Request.Context()).Model(&models.Product{})
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("title LIKE ? OR asin LIKE ?", like, like)
	}
	if categoryID := c.Query("category_id"); categoryID != "" {
		query = query.Where("category_id = ?", categoryID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}

	var products []models.Product
	err := query.Order("title asc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&products).Error
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"products":  products,
	})
}

// ProductHistory returns one product's data points in capture order.
func (h *APIHandler) ProductHistory(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())

	var product models.Product
	err := db.Where("asin = ?", c.Param("asin")).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	var points []models.ProductDataPoint
	err = db.Where("product_id = ?", product.ID).
		Order("captured_at asc").
		Find(&points).Error
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product": product,
		"history": points,
	})
}

// LatestTrends returns the trends of the most recent analyzed snapshot,
// optionally filtered by type. 204 when no snapshot has been analyzed yet.
func (h *APIHandler) LatestTrends(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())

	var snapshot models.Snapshot
	err := db.Where("status = ?", models.SnapshotAnalyzed).
		Order("captured_at DESC").
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	query := db.Preload("Product").Where("snapshot_id = ?", snapshot.ID)
	if typeParam := c.Query("type"); typeParam != "" {
		query = query.Where("type = ?", typeParam)
	}

	var trends []models.Trend
	if err := query.Order("id asc").Find(&trends).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshot_id": snapshot.ID,
		"captured_at": snapshot.CapturedAt,
		"trends":      trends,
	})
}

// LatestReport returns the latest structured report; pass ?format=text for
// the rendered text block.
func (h *APIHandler) LatestReport(c *gin.Context) {
	report, err := h.reporter.LatestReport(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if report == nil {
		c.Status(http.StatusNoContent)
		return
	}

	if c.Query("format") == "text" {
		c.String(http.StatusOK, services.FormatReport(report))
		return
	}
	c.JSON(http.StatusOK, report)
}

// IngestOperational pulls one payload from the operational data source.
func (h *APIHandler) IngestOperational(c *gin.Context) {
	snapshotID, stored, err := h.operational.IngestMetrics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"operational_snapshot_id": snapshotID,
		"metrics_stored":          stored,
	})
}

// OperationalSummary returns aggregate issue counts; 204 when no
// operational snapshot exists yet.
func (h *APIHandler) OperationalSummary(c *gin.Context) {
	summary, err := h.operational.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if summary == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func issueFilterFromQuery(c *gin.Context) services.IssueFilter {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return services.IssueFilter{
		Type:     models.IssueType(c.Query("type")),
		Severity: models.Severity(c.Query("severity")),
		Search:   c.Query("search"),
		Page:     page,
		PageSize: pageSize,
	}
}

// OperationalIssues returns the derived, filtered, paged issue list.
func (h *APIHandler) OperationalIssues(c *gin.Context) {
	issues, total, err := h.operational.LatestIssues(c.Request.Context(), issueFilterFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"issues": issues,
	})
}

// ExportOperationalIssues streams the full current issue list as XLSX.
func (h *APIHandler) ExportOperationalIssues(c *gin.Context) {
	filter := issueFilterFromQuery(c)
	filter.Page = 1
	filter.PageSize = 100

	var all []models.OperationalIssue
	for {
		pageIssues, total, err := h.operational.LatestIssues(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		all = append(all, pageIssues...)
		if len(all) >= total || len(pageIssues) == 0 {
			break
		}
		filter.Page++
	}

	workbook, err := export.IssuesWorkbook(all)
	if err != nil {
		respondError(c, err)
		return
	}
	buf, err := workbook.WriteToBuffer()
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="operational-issues.xlsx"`)
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		buf.Bytes())
}
