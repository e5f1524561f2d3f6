package export

import (
	"fmt"

	"rankpulse/internal/models"

	"github.com/xuri/excelize/v2"
)

const issueSheet = "Operational Issues"

var issueHeaders = []string{
	"ASIN", "Title", "Issue Type", "Severity",
	"Inventory Qty", "Inventory Days", "Negative Reviews",
	"Recommendation", "Captured At",
}

// IssuesWorkbook renders the derived issue list as an XLSX workbook for
// merchandising teams.
func IssuesWorkbook(issues []models.OperationalIssue) (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(issueSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	for col, header := range issueHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(issueSheet, cell, header); err != nil {
			return nil, err
		}
	}

	for i, issue := range issues {
		row := []interface{}{
			issue.ASIN,
			issue.Title,
			string(issue.Type),
			string(issue.Severity),
			optionalInt(issue.InventoryQuantity),
			optionalFloat(issue.InventoryDays),
			issue.NegativeReviewCount,
			issue.Recommendation,
			issue.CapturedAt.Format("2006-01-02 15:04"),
		}
		for col, value := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(issueSheet, cell, value); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

func optionalInt(v *int) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func optionalFloat(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
