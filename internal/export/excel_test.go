package export

import (
	"testing"
	"time"

	"rankpulse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuesWorkbook(t *testing.T) {
	qty := 0
	days := 3.5
	capturedAt := time.Date(2025, 7, 1, 6, 30, 0, 0, time.UTC)

	issues := []models.OperationalIssue{
		{
			ASIN:              "B0GADGET01",
			Title:             "Wireless Earbuds Pro",
			Type:              models.IssueLowStock,
			Severity:          models.SeverityHigh,
			InventoryQuantity: &qty,
			InventoryDays:     &days,
			Recommendation:    "Out of stock: replenish immediately to avoid losing the listing's rank momentum.",
			CapturedAt:        capturedAt,
		},
		{
			ASIN:                "B0GADGET03",
			Title:               "Laptop Dock",
			Type:                models.IssueNegativeReview,
			Severity:            models.SeverityMedium,
			NegativeReviewCount: 4,
			Recommendation:      "4 negative reviews within the last 30 days; investigate recent complaints and respond to reviewers.",
			CapturedAt:          capturedAt,
		},
	}

	f, err := IssuesWorkbook(issues)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{issueSheet}, f.GetSheetList())

	header, err := f.GetCellValue(issueSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "ASIN", header)

	asin, err := f.GetCellValue(issueSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "B0GADGET01", asin)

	severity, err := f.GetCellValue(issueSheet, "D2")
	require.NoError(t, err)
	assert.Equal(t, string(models.SeverityHigh), severity)

	reviews, err := f.GetCellValue(issueSheet, "G3")
	require.NoError(t, err)
	assert.Equal(t, "4", reviews)

	captured, err := f.GetCellValue(issueSheet, "I2")
	require.NoError(t, err)
	assert.Equal(t, "2025-07-01 06:30", captured)
}

func TestIssuesWorkbookEmpty(t *testing.T) {
	f, err := IssuesWorkbook(nil)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(issueSheet)
	require.NoError(t, err)
	// Header row only.
	require.Len(t, rows, 1)
	assert.Equal(t, issueHeaders, rows[0])
}
