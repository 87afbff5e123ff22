package repository

import (
	"context"
	"encoding/json"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"alphasniper/src/database"
	"alphasniper/src/model"
)

// SnapshotRepository writes position snapshots.
type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{db: database.MainDB}
}

func (r *SnapshotRepository) WithDB(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Write stores one snapshot with the given meta map.
func (r *SnapshotRepository) Write(ctx context.Context, symbol string, baseQty, avgEntryPrice float64, meta map[string]interface{}) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	snap := model.PositionSnapshot{
		Symbol:        symbol,
		BaseQty:       baseQty,
		AvgEntryPrice: avgEntryPrice,
		MetaJSON:      string(payload),
	}

	if err := r.db.WithContext(ctx).Create(&snap).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SnapshotRepository",
			"op":     "Write",
			"symbol": symbol,
		}).WithError(err).Error("Failed to write position snapshot")
		return err
	}

	return nil
}
