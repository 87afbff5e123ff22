package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"alphasniper/src/lock"
	"alphasniper/src/model"
)

const softStopPollInterval = 2 * time.Second

// runSoftStopWatcher guards open positions between ticks: when the mark
// price crosses below an open trade's stop price, the position is closed
// at market with STOP_LOSS. This is the only exit path for positions whose
// exchange stop failed to arm; for the rest it is a second line of defense
// behind the resting exchange stop.
func (e *Engine) runSoftStopWatcher(ctx context.Context) {
	if e.marks == nil {
		logger.WithField("service", serviceName).
			Warn("No mark price source, software stop watcher disabled")
		return
	}

	ticker := time.NewTicker(softStopPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.checkSoftStops(ctx)
		}
	}
}

func (e *Engine) checkSoftStops(ctx context.Context) {
	trades, err := e.trades.FindAllOpen(ctx)
	if err != nil {
		logger.WithError(err).Error("Soft stop watcher: failed to list open trades")
		return
	}

	for i := range trades {
		trade := trades[i]
		price, ok := e.markPrice(trade.Symbol)
		if !ok || price <= 0 {
			continue
		}
		if price > trade.StopPrice {
			continue
		}

		traceID := uuid.NewString()
		logger.WithFields(map[string]interface{}{
			"service":     serviceName,
			"symbol":      trade.Symbol,
			"mark":        price,
			"stop":        trade.StopPrice,
			"trace_id":    traceID,
			"reason_code": model.ReasonStopLoss,
		}).Warn("Software stop triggered")

		// serialize with the tick pipeline for this symbol
		key := lock.TradeLockKey(trade.Symbol)
		token, locked, err := e.locker.TryAcquire(ctx, key, e.cfg.TradeLockTTL())
		if err != nil || !locked {
			continue
		}

		reason := fmt.Sprintf("mark price %.2f crossed stop %.2f", price, trade.StopPrice)
		if err := e.closePositionMarket(ctx, &trade, traceID, model.ReasonStopLoss, reason); err != nil {
			logger.WithError(err).WithField("symbol", trade.Symbol).
				Error("Software stop close failed")
		}

		if err := e.locker.Release(ctx, key, token); err != nil {
			logger.WithError(err).WithField("symbol", trade.Symbol).
				Warn("Soft stop lock release failed")
		}
	}
}
