package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"alphasniper/src/connectors"
	"alphasniper/src/model"
)

// manageOpenPosition runs under the symbol lock on each tick while a
// position is open: it reconciles the exchange stop state and closes the
// trade when the stop has filled.
func (e *Engine) manageOpenPosition(ctx context.Context, trade *model.TradeLog, traceID string) error {
	stopID := trade.ClientOrderID + StopOrderSuffix

	state, err := e.gw.GetOrder(ctx, trade.Symbol, stopID)
	if err != nil {
		// no exchange stop (software fallback) or transient failure; the
		// software stop watcher still covers the position
		logger.WithError(err).WithFields(map[string]interface{}{
			"service": serviceName,
			"symbol":  trade.Symbol,
		}).Debug("Stop order state unavailable")
		return nil
	}

	if state.Status != "FILLED" {
		return nil
	}

	exitPrice := state.AvgPrice.InexactFloat64()
	if exitPrice <= 0 {
		exitPrice = trade.StopPrice
	}

	exchangeOrderID := state.ExchangeOrderID
	if _, err := e.events.Append(ctx, &model.OrderEvent{
		TraceID:         traceID,
		Service:         serviceName,
		Exchange:        e.gw.ExchangeName(),
		Symbol:          trade.Symbol,
		ClientOrderID:   stopID,
		ExchangeOrderID: &exchangeOrderID,
		EventType:       model.EventStopFilled,
		Side:            model.SideSell,
		Qty:             state.ExecutedQty.InexactFloat64(),
		Price:           &exitPrice,
		Status:          "FILLED",
		ReasonCode:      model.ReasonStopLoss,
		Reason:          "exchange protective stop filled",
		Action:          "STOP_FILL",
		Actor:           "system",
	}, state.Raw); err != nil {
		return err
	}

	return e.finalizeClose(ctx, trade, traceID, exitPrice, model.ReasonStopLoss, "exchange protective stop filled")
}

// closePositionMarket closes one open trade at market with an idempotent
// exit client order id.
func (e *Engine) closePositionMarket(ctx context.Context, trade *model.TradeLog, traceID, reasonCode, reason string) error {
	exitID := trade.ClientOrderID + ExitOrderSuffix

	if _, err := e.events.Append(ctx, &model.OrderEvent{
		TraceID:       traceID,
		Service:       serviceName,
		Exchange:      e.gw.ExchangeName(),
		Symbol:        trade.Symbol,
		ClientOrderID: exitID,
		EventType:     model.EventStopTriggered,
		Side:          model.SideSell,
		Qty:           trade.Qty,
		Status:        "TRIGGERED",
		ReasonCode:    reasonCode,
		Reason:        reason,
		Action:        "CLOSE_POSITION",
		Actor:         "system",
	}, nil); err != nil {
		return err
	}

	order, err := e.gw.PlaceOrder(ctx, connectors.OrderRequest{
		Symbol:        trade.Symbol,
		Side:          model.SideSell,
		Type:          "MARKET",
		Quantity:      decimal.NewFromFloat(trade.Qty),
		ClientOrderID: exitID,
		ReduceOnly:    true,
	})
	if err != nil {
		e.breaker.RecordOrderError(ctx, traceID)
		_, appendErr := e.events.Append(ctx, &model.OrderEvent{
			TraceID:       traceID,
			Service:       serviceName,
			Exchange:      e.gw.ExchangeName(),
			Symbol:        trade.Symbol,
			ClientOrderID: exitID,
			EventType:     model.EventError,
			Side:          model.SideSell,
			Qty:           trade.Qty,
			Status:        "FAILED",
			ReasonCode:    reasonCode,
			Reason:        fmt.Sprintf("close order failed: %v", err),
			Action:        "CLOSE_POSITION",
			Actor:         "system",
		}, nil)
		if appendErr != nil {
			logger.WithError(appendErr).Error("Failed to record close failure")
		}
		return err
	}
	e.breaker.RecordOrderSuccess()

	exitPrice := order.AvgPrice.InexactFloat64()
	if exitPrice <= 0 {
		if p, ok := e.markPrice(trade.Symbol); ok {
			exitPrice = p
		} else {
			exitPrice = trade.StopPrice
		}
	}

	exchangeOrderID := order.ExchangeOrderID
	if _, err := e.events.Append(ctx, &model.OrderEvent{
		TraceID:         traceID,
		Service:         serviceName,
		Exchange:        e.gw.ExchangeName(),
		Symbol:          trade.Symbol,
		ClientOrderID:   exitID,
		ExchangeOrderID: &exchangeOrderID,
		EventType:       model.EventFilled,
		Side:            model.SideSell,
		Qty:             order.ExecutedQty.InexactFloat64(),
		Price:           &exitPrice,
		Status:          "FILLED",
		ReasonCode:      reasonCode,
		Reason:          reason,
		Action:          "CLOSE_POSITION",
		Actor:           "system",
	}, order.Raw); err != nil {
		return err
	}

	// best effort: cancel the resting exchange stop so it cannot fire later
	stopID := trade.ClientOrderID + StopOrderSuffix
	if err := e.gw.CancelOrder(ctx, trade.Symbol, stopID); err != nil {
		logger.WithError(err).WithField("symbol", trade.Symbol).Debug("Stop cancel after close failed")
	}

	return e.finalizeClose(ctx, trade, traceID, exitPrice, reasonCode, reason)
}

// finalizeClose completes the trade log, writes the final snapshot and
// feeds the realized outcome back into the scorer.
func (e *Engine) finalizeClose(ctx context.Context, trade *model.TradeLog, traceID string, exitPrice float64, reasonCode, reason string) error {
	pnl := (exitPrice - trade.EntryPrice) * trade.Qty
	exitTime := e.now().UnixMilli()

	if err := e.trades.Close(ctx, trade.ID, exitPrice, pnl, exitTime, reasonCode, reason); err != nil {
		return err
	}

	if err := e.snapshots.Write(ctx, trade.Symbol, 0, 0, map[string]interface{}{
		"note":              "position_closed",
		"trace_id":          traceID,
		"client_order_id":   trade.ClientOrderID,
		"close_reason_code": reasonCode,
		"pnl":               pnl,
	}); err != nil {
		logger.WithError(err).Error("Close snapshot write failed")
	}

	e.notifier.SendTradeAlert("POSITION_CLOSED", traceID, map[string]string{
		"symbol":      trade.Symbol,
		"pnl":         fmt.Sprintf("%.2f", pnl),
		"exit_price":  fmt.Sprintf("%.2f", exitPrice),
		"reason_code": reasonCode,
	})

	e.learnFromOutcome(ctx, trade, pnl)

	// drawdown check rides on every realized close
	if account, err := e.gw.GetAccount(ctx); err == nil {
		if realized, err := e.trades.RealizedPnlSince(ctx, e.now().Add(-24*time.Hour).UnixMilli()); err == nil {
			e.breaker.CheckDrawdown(ctx, traceID, realized, account.EquityUSDT.InexactFloat64())
		}
	}

	return nil
}

// learnFromOutcome runs partial_fit with the realized label and persists
// the updated learner state.
func (e *Engine) learnFromOutcome(ctx context.Context, trade *model.TradeLog, pnl float64) {
	rows, err := e.marketData.LastTwoCache(ctx, trade.Symbol, e.cfg.Timeframe, e.state.Current().FeatureVersion)
	if err != nil || len(rows) == 0 {
		return
	}
	features, err := model.ParseFeatureSet(rows[0].FeaturesJSON)
	if err != nil {
		return
	}

	label := 0
	if pnl > 0 {
		label = 1
	}
	e.scorer.Scorer.PartialFit(features.Vector(), label)
	e.scorer.ColdStart = false

	if err := e.registry.Persist(ctx, e.scorer, 0); err != nil {
		logger.WithError(err).Error("Failed to persist learner state")
	}
}

// reconcileOnStartup checks every OPEN trade log row against the exchange
// by its entry client order id and appends a RECONCILED event with the
// exchange's status. Entries left UNCONFIRMED by a previous run have no
// trade log row and are not reconciled here.
func (e *Engine) reconcileOnStartup(ctx context.Context) error {
	trades, err := e.trades.FindAllOpen(ctx)
	if err != nil {
		return err
	}

	for _, trade := range trades {
		state, err := e.gw.GetOrder(ctx, trade.Symbol, trade.ClientOrderID)
		if err != nil {
			continue
		}

		traceID := "reconcile-" + trade.ClientOrderID
		if _, err := e.events.Append(ctx, &model.OrderEvent{
			TraceID:       traceID,
			Service:       serviceName,
			Exchange:      e.gw.ExchangeName(),
			Symbol:        trade.Symbol,
			ClientOrderID: trade.ClientOrderID,
			EventType:     model.EventReconciled,
			Side:          trade.Side,
			Qty:           trade.Qty,
			Status:        state.Status,
			ReasonCode:    model.ReasonReconcile,
			Reason:        fmt.Sprintf("startup reconciliation: exchange reports %s", state.Status),
			Action:        "RECONCILE",
			Actor:         "system",
		}, state.Raw); err != nil {
			logger.WithError(err).Error("Failed to append reconcile event")
		}
	}

	return nil
}
