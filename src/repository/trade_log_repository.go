package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"alphasniper/src/database"
	"alphasniper/src/model"
)

// TradeLogRepository handles position lifecycle rows.
type TradeLogRepository struct {
	db *gorm.DB
}

func NewTradeLogRepository() *TradeLogRepository {
	return &TradeLogRepository{db: database.MainDB}
}

func (r *TradeLogRepository) WithDB(db *gorm.DB) *TradeLogRepository {
	return &TradeLogRepository{db: db}
}

// Open inserts the OPEN row for a freshly filled position.
func (r *TradeLogRepository) Open(ctx context.Context, trade *model.TradeLog) error {
	trade.Status = model.TradeStatusOpen
	if err := r.db.WithContext(ctx).Create(trade).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TradeLogRepository",
			"op":     "Open",
			"symbol": trade.Symbol,
		}).WithError(err).Error("Failed to create trade log")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":             "TradeLogRepository",
		"op":               "Open",
		"trade_id":         trade.ID,
		"symbol":           trade.Symbol,
		"qty":              trade.Qty,
		"leverage":         trade.Leverage,
		"open_reason_code": trade.OpenReasonCode,
	}).Info("Trade opened")

	return nil
}

// Close completes the lifecycle row with exit price, pnl and reason.
func (r *TradeLogRepository) Close(ctx context.Context, id uint, exitPrice, pnl float64, exitTimeMs int64, reasonCode, reason string) error {
	err := r.db.WithContext(ctx).
		Model(&model.TradeLog{}).
		Where("id = ? AND status = ?", id, model.TradeStatusOpen).
		Updates(map[string]interface{}{
			"status":            model.TradeStatusClosed,
			"exit_price":        exitPrice,
			"pnl":               pnl,
			"exit_time_ms":      exitTimeMs,
			"close_reason_code": reasonCode,
			"close_reason":      reason,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "TradeLogRepository",
			"op":       "Close",
			"trade_id": id,
		}).WithError(err).Error("Failed to close trade log")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":              "TradeLogRepository",
		"op":                "Close",
		"trade_id":          id,
		"pnl":               pnl,
		"close_reason_code": reasonCode,
	}).Info("Trade closed")

	return nil
}

// FindOpenBySymbol returns the open trade for a symbol, or (nil, nil).
func (r *TradeLogRepository) FindOpenBySymbol(ctx context.Context, symbol string) (*model.TradeLog, error) {
	var trade model.TradeLog
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND status = ?", symbol, model.TradeStatusOpen).
		Order("id DESC").
		First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

// FindAllOpen returns every open trade.
func (r *TradeLogRepository) FindAllOpen(ctx context.Context) ([]model.TradeLog, error) {
	var trades []model.TradeLog
	err := r.db.WithContext(ctx).
		Where("status = ?", model.TradeStatusOpen).
		Order("id ASC").
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// RealizedPnlSince sums pnl of trades closed at or after sinceMs. Used by
// the circuit breaker drawdown check.
func (r *TradeLogRepository) RealizedPnlSince(ctx context.Context, sinceMs int64) (float64, error) {
	var total *float64
	err := r.db.WithContext(ctx).
		Model(&model.TradeLog{}).
		Select("SUM(pnl)").
		Where("status = ? AND exit_time_ms >= ?", model.TradeStatusClosed, sinceMs).
		Scan(&total).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
