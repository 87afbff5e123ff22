package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alphasniper/src/database"
	"alphasniper/src/model"
)

// MarketDataRepository handles candles, the versioned feature cache and the
// precompute task queue.
type MarketDataRepository struct {
	db *gorm.DB
}

func NewMarketDataRepository() *MarketDataRepository {
	return &MarketDataRepository{db: database.MainDB}
}

func (r *MarketDataRepository) WithDB(db *gorm.DB) *MarketDataRepository {
	return &MarketDataRepository{db: db}
}

// ---------------------------------------------------
// market_data
// ---------------------------------------------------

// InsertCandles writes candles with insert-ignore semantics on the bar key.
// Returns the number of newly inserted rows.
func (r *MarketDataRepository) InsertCandles(ctx context.Context, candles []model.MarketData) (int64, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "bar_interval"}, {Name: "open_time_ms"}},
			DoNothing: true,
		}).
		Create(&candles)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "MarketDataRepository",
			"op":   "InsertCandles",
			"rows": len(candles),
		}).WithError(res.Error).Error("Failed to insert candles")
		return 0, res.Error
	}

	return res.RowsAffected, nil
}

// LatestOpenTime returns the newest stored open_time_ms for a symbol, or 0
// when no candles exist.
func (r *MarketDataRepository) LatestOpenTime(ctx context.Context, symbol, interval string) (int64, error) {
	var latest *int64
	err := r.db.WithContext(ctx).
		Model(&model.MarketData{}).
		Select("MAX(open_time_ms)").
		Where("symbol = ? AND bar_interval = ?", symbol, interval).
		Scan(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if latest == nil {
		return 0, nil
	}
	return *latest, nil
}

// RecentCandles returns the last limit candles ascending by open time.
func (r *MarketDataRepository) RecentCandles(ctx context.Context, symbol, interval string, limit int) ([]model.MarketData, error) {
	var desc []model.MarketData
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND bar_interval = ?", symbol, interval).
		Order("open_time_ms DESC").
		Limit(limit).
		Find(&desc).Error
	if err != nil {
		return nil, err
	}

	// reverse into ascending order for indicator computation
	out := make([]model.MarketData, len(desc))
	for i := range desc {
		out[len(desc)-1-i] = desc[i]
	}
	return out, nil
}

// FindGaps scans stored open times in [fromMs, toMs] and returns the open
// times of missing bars, detected wherever consecutive stored bars differ by
// more than the interval.
func (r *MarketDataRepository) FindGaps(ctx context.Context, symbol, interval string, stepMs, fromMs, toMs int64) ([]int64, error) {
	var opens []int64
	err := r.db.WithContext(ctx).
		Model(&model.MarketData{}).
		Where("symbol = ? AND bar_interval = ? AND open_time_ms BETWEEN ? AND ?", symbol, interval, fromMs, toMs).
		Order("open_time_ms ASC").
		Pluck("open_time_ms", &opens).Error
	if err != nil {
		return nil, err
	}

	var missing []int64
	for i := 1; i < len(opens); i++ {
		for t := opens[i-1] + stepMs; t < opens[i]; t += stepMs {
			missing = append(missing, t)
		}
	}
	return missing, nil
}

// ---------------------------------------------------
// market_data_cache (versioned feature cache)
// ---------------------------------------------------

// UpsertCache writes feature rows at their feature version. Rows at other
// versions are never touched.
func (r *MarketDataRepository) UpsertCache(ctx context.Context, rows []model.MarketDataCache) error {
	if len(rows) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "symbol"}, {Name: "bar_interval"},
				{Name: "open_time_ms"}, {Name: "feature_version"},
			},
			DoNothing: true,
		}).
		Create(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "MarketDataRepository",
			"op":   "UpsertCache",
			"rows": len(rows),
		}).WithError(err).Error("Failed to write feature cache")
		return err
	}
	return nil
}

// LatestCache returns the newest cache row at the given feature version, or
// (nil, nil) when none exists.
func (r *MarketDataRepository) LatestCache(ctx context.Context, symbol, interval string, featureVersion int) (*model.MarketDataCache, error) {
	var row model.MarketDataCache
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND bar_interval = ? AND feature_version = ?", symbol, interval, featureVersion).
		Order("open_time_ms DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// LastTwoCache returns the last two cache rows newest-first at the given
// feature version, for prev-bar comparisons.
func (r *MarketDataRepository) LastTwoCache(ctx context.Context, symbol, interval string, featureVersion int) ([]model.MarketDataCache, error) {
	var rows []model.MarketDataCache
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND bar_interval = ? AND feature_version = ?", symbol, interval, featureVersion).
		Order("open_time_ms DESC").
		Limit(2).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ---------------------------------------------------
// precompute_tasks
// ---------------------------------------------------

// EnqueueTasks inserts PENDING precompute tasks, ignoring bars that already
// have a task at that version.
func (r *MarketDataRepository) EnqueueTasks(ctx context.Context, tasks []model.PrecomputeTask) (int64, error) {
	if len(tasks) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "symbol"}, {Name: "bar_interval"},
				{Name: "open_time_ms"}, {Name: "feature_version"},
			},
			DoNothing: true,
		}).
		Create(&tasks)
	if res.Error != nil {
		return 0, res.Error
	}

	if res.RowsAffected > 0 {
		logger.WithFields(map[string]interface{}{
			"repo": "MarketDataRepository",
			"op":   "EnqueueTasks",
			"rows": res.RowsAffected,
		}).Info("Precompute tasks enqueued")
	}

	return res.RowsAffected, nil
}

// PendingTasks returns up to limit PENDING tasks for one symbol, oldest bar
// first.
func (r *MarketDataRepository) PendingTasks(ctx context.Context, symbol, interval string, featureVersion, limit int) ([]model.PrecomputeTask, error) {
	var tasks []model.PrecomputeTask
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND bar_interval = ? AND feature_version = ? AND status = ?",
			symbol, interval, featureVersion, model.TaskStatusPending).
		Order("open_time_ms ASC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// MarkTaskDone transitions a task to DONE.
func (r *MarketDataRepository) MarkTaskDone(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&model.PrecomputeTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": model.TaskStatusDone, "last_error": ""}).Error
}

// MarkTaskError increments try_count and records the failure.
func (r *MarketDataRepository) MarkTaskError(ctx context.Context, id uint, reason string) error {
	return r.db.WithContext(ctx).
		Model(&model.PrecomputeTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.TaskStatusError,
			"try_count":  gorm.Expr("try_count + 1"),
			"last_error": reason,
		}).Error
}

// ---------------------------------------------------
// archival
// ---------------------------------------------------

// ArchiveCandleRange moves market_data rows with open_time_ms < cutoffMs
// into market_data_history in one bounded transactional batch:
// insert-ignore into history, then delete the same range from the hot table.
// Returns the number of rows deleted from the hot table. Re-runs over the
// same range move zero rows.
func (r *MarketDataRepository) ArchiveCandleRange(ctx context.Context, cutoffMs int64, batch int) (int64, error) {
	var moved int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []model.MarketData
		if err := tx.
			Where("open_time_ms < ?", cutoffMs).
			Order("open_time_ms ASC").
			Limit(batch).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		history := make([]model.MarketDataHistory, 0, len(rows))
		ids := make([]uint, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
			history = append(history, model.MarketDataHistory{
				Symbol:     row.Symbol,
				Interval:   row.Interval,
				OpenTimeMs: row.OpenTimeMs,
				Open:       row.Open,
				High:       row.High,
				Low:        row.Low,
				Close:      row.Close,
				Volume:     row.Volume,
				CreatedAt:  row.CreatedAt,
			})
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "bar_interval"}, {Name: "open_time_ms"}},
			DoNothing: true,
		}).Create(&history).Error; err != nil {
			return err
		}

		res := tx.Where("id IN ?", ids).Delete(&model.MarketData{})
		if res.Error != nil {
			return res.Error
		}
		moved = res.RowsAffected
		return nil
	})

	return moved, err
}

// ArchiveCacheRange is ArchiveCandleRange for market_data_cache.
func (r *MarketDataRepository) ArchiveCacheRange(ctx context.Context, cutoffMs int64, batch int) (int64, error) {
	var moved int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []model.MarketDataCache
		if err := tx.
			Where("open_time_ms < ?", cutoffMs).
			Order("open_time_ms ASC").
			Limit(batch).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		history := make([]model.MarketDataCacheHistory, 0, len(rows))
		ids := make([]uint, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
			history = append(history, model.MarketDataCacheHistory{
				Symbol:         row.Symbol,
				Interval:       row.Interval,
				OpenTimeMs:     row.OpenTimeMs,
				FeatureVersion: row.FeatureVersion,
				FeaturesJSON:   row.FeaturesJSON,
				CreatedAt:      row.CreatedAt,
			})
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "symbol"}, {Name: "bar_interval"},
				{Name: "open_time_ms"}, {Name: "feature_version"},
			},
			DoNothing: true,
		}).Create(&history).Error; err != nil {
			return err
		}

		res := tx.Where("id IN ?", ids).Delete(&model.MarketDataCache{})
		if res.Error != nil {
			return res.Error
		}
		moved = res.RowsAffected
		return nil
	})

	return moved, err
}

// RecordArchiveRun appends one archive_audit row.
func (r *MarketDataRepository) RecordArchiveRun(ctx context.Context, audit *model.ArchiveAudit) error {
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(audit).Error
}
