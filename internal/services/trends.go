package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rankpulse/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TrendAnalyzer compares each data point of a snapshot against the product's
// prior data point and regenerates the snapshot's trend rows. Re-running on
// the same snapshot id is idempotent: existing trends are replaced
// transactionally, so the result always reflects the current comparison
// logic.
type TrendAnalyzer struct {
	db             *gorm.DB
	surgeThreshold int
	rankCeiling    int
}

// NewTrendAnalyzer creates an analyzer with the configured rank-surge
// threshold and consistent-performer ceiling.
func NewTrendAnalyzer(db *gorm.DB, surgeThreshold, rankCeiling int) *TrendAnalyzer {
	return &TrendAnalyzer{
		db:             db,
		surgeThreshold: surgeThreshold,
		rankCeiling:    rankCeiling,
	}
}

// AnalyzeSnapshot runs trend analysis for one snapshot and returns the
// number of trends produced. The snapshot's data points must already be
// persisted.
func (a *TrendAnalyzer) AnalyzeSnapshot(ctx context.Context, snapshotID int64) (int, error) {
	db := a.db.WithContext(ctx)

	var snapshot models.Snapshot
	if err := db.First(&snapshot, snapshotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("snapshot %d: %w", snapshotID, ErrNotFound)
		}
		return 0, err
	}

	var points []models.ProductDataPoint
	if err := db.Where("snapshot_id = ?", snapshotID).Order("`rank` asc").Find(&points).Error; err != nil {
		return 0, fmt.Errorf("failed to load data points: %w", err)
	}

	// Prior point: the most recent data point for the same product captured
	// strictly before this snapshot's timestamp, across all snapshots.
	prior := make(map[uint]*models.ProductDataPoint, len(points))
	for _, point := range points {
		var prev models.ProductDataPoint
		err := db.Where("product_id = ? AND captured_at < ?", point.ProductID, snapshot.CapturedAt).
			Order("captured_at DESC").
			First(&prev).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to load prior data point: %w", err)
		}
		prevCopy := prev
		prior[point.ProductID] = &prevCopy
	}

	trends := buildTrends(points, prior, a.surgeThreshold, a.rankCeiling, time.Now().UTC())

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("snapshot_id = ?", snapshotID).Delete(&models.Trend{}).Error; err != nil {
			return fmt.Errorf("failed to clear existing trends: %w", err)
		}
		if len(trends) > 0 {
			if err := tx.Create(&trends).Error; err != nil {
				return fmt.Errorf("failed to insert trends: %w", err)
			}
		}
		return tx.Model(&models.Snapshot{}).
			Where("id = ?", snapshotID).
			Update("status", models.SnapshotAnalyzed).Error
	})
	if err != nil {
		return 0, err
	}

	logrus.Infof("Snapshot %d analyzed: %d trends", snapshotID, len(trends))
	return len(trends), nil
}

// buildTrends is the pure comparison step: given a snapshot's data points and
// each product's prior point, it produces the full trend set. A product may
// receive both RankSurge and ConsistentPerformer for the same snapshot.
func buildTrends(points []models.ProductDataPoint, prior map[uint]*models.ProductDataPoint, surgeThreshold, rankCeiling int, recordedAt time.Time) []models.Trend {
	trends := make([]models.Trend, 0, len(points))

	for _, point := range points {
		prev, ok := prior[point.ProductID]
		if !ok {
			trends = append(trends, models.Trend{
				ProductID:   point.ProductID,
				SnapshotID:  point.SnapshotID,
				Type:        models.TrendNewEntry,
				Description: fmt.Sprintf("New entry at rank #%d", point.Rank),
				RecordedAt:  recordedAt,
			})
			continue
		}

		if point.Rank > 0 && prev.Rank > 0 {
			if delta := prev.Rank - point.Rank; delta >= surgeThreshold {
				trends = append(trends, models.Trend{
					ProductID:   point.ProductID,
					SnapshotID:  point.SnapshotID,
					Type:        models.TrendRankSurge,
					Description: fmt.Sprintf("Climbed from #%d to #%d (up %d places)", prev.Rank, point.Rank, delta),
					RecordedAt:  recordedAt,
				})
			}
		}

		if point.Rank <= rankCeiling && prev.Rank <= rankCeiling {
			trends = append(trends, models.Trend{
				ProductID:   point.ProductID,
				SnapshotID:  point.SnapshotID,
				Type:        models.TrendConsistentPerformer,
				Description: fmt.Sprintf("Held a top-%d position at rank #%d", rankCeiling, point.Rank),
				RecordedAt:  recordedAt,
			})
		}
	}

	return trends
}
