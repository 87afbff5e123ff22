package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"alphasniper/src/connectors"
	"alphasniper/src/gateway"
	"alphasniper/src/lock"
	"alphasniper/src/model"
	"alphasniper/src/risk"
	"alphasniper/src/signal"
	"alphasniper/src/utils"

	"alphasniper/src/ai"
)

const (
	stopAtrMult       = 2.0
	defaultStartLever = 5
	fillPollInterval  = 500 * time.Millisecond
	staleCacheFactor  = 2
)

// processSymbol runs the full entry pipeline for one symbol under the
// distributed trade lock.
func (e *Engine) processSymbol(ctx context.Context, symbol, traceID string) error {
	state := e.state.Current()

	openTrade, err := e.trades.FindOpenBySymbol(ctx, symbol)
	if err != nil {
		return err
	}

	// HALT with nothing open: nothing to manage, nothing to enter
	if state.HaltTrading && openTrade == nil {
		return nil
	}

	key := lock.TradeLockKey(symbol)
	token, ok, err := e.locker.TryAcquire(ctx, key, e.cfg.TradeLockTTL())
	if err != nil {
		return err
	}
	if !ok {
		logger.WithFields(map[string]interface{}{
			"service": serviceName,
			"symbol":  symbol,
		}).Info("Trade lock contended, skipping this tick")
		return nil
	}
	defer func() {
		if err := e.locker.Release(ctx, key, token); err != nil {
			logger.WithError(err).WithField("symbol", symbol).Warn("Trade lock release failed")
		}
	}()

	if openTrade != nil {
		return e.manageOpenPosition(ctx, openTrade, traceID)
	}
	if state.HaltTrading || e.breaker.Tripped() {
		return nil
	}

	return e.tryEnter(ctx, symbol, traceID, state.FeatureVersion)
}

// tryEnter evaluates Setup B on the cached features and walks the order
// state machine when the signal fires.
func (e *Engine) tryEnter(ctx context.Context, symbol, traceID string, featureVersion int) error {
	interval, _ := utils.ParseInterval(e.cfg.Timeframe)

	rows, err := e.marketData.LastTwoCache(ctx, symbol, e.cfg.Timeframe, featureVersion)
	if err != nil {
		return err
	}
	if len(rows) < 2 {
		logger.WithFields(map[string]interface{}{
			"service":     serviceName,
			"symbol":      symbol,
			"reason_code": model.ReasonStaleCache,
		}).Warn("Feature cache missing, skipping")
		return nil
	}

	curr, prev := rows[0], rows[1]
	barCloseMs := utils.BarCloseMs(curr.OpenTimeMs, interval)
	age := e.now().UnixMilli() - barCloseMs
	if age > staleCacheFactor*interval.Milliseconds() {
		logger.WithFields(map[string]interface{}{
			"service":     serviceName,
			"symbol":      symbol,
			"age_ms":      age,
			"reason_code": model.ReasonStaleCache,
		}).Warn("Feature cache stale, skipping")
		return nil
	}

	currFeat, err := model.ParseFeatureSet(curr.FeaturesJSON)
	if err != nil {
		return fmt.Errorf("parse current features: %w", err)
	}
	prevFeat, err := model.ParseFeatureSet(prev.FeaturesJSON)
	if err != nil {
		return fmt.Errorf("parse previous features: %w", err)
	}

	aiScore := ai.ColdStartScore
	if !e.scorer.ColdStart {
		aiScore = ai.ScoreToPercent(e.scorer.Scorer.Score(currFeat.Vector()))
	}

	state := e.state.Current()
	decision := signal.CheckSetupBLong(currFeat, prevFeat, aiScore, signal.Thresholds{
		AdxMin:      state.AdxMin,
		VolRatioMin: state.VolRatioMin,
		AiScoreMin:  state.AiScoreMin,
	})
	if !decision.Enter {
		return nil
	}

	logger.WithFields(map[string]interface{}{
		"service":     serviceName,
		"symbol":      symbol,
		"trace_id":    traceID,
		"reason_code": decision.ReasonCode,
	}).Info("Signal found: " + decision.Reason)

	account, err := e.gw.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("pre-trade account check: %w", err)
	}
	equity := account.EquityUSDT.InexactFloat64()

	entryPrice := currFeat.Ema21
	if p, ok := e.markPrice(symbol); ok {
		entryPrice = p
	}
	stopPrice := entryPrice - stopAtrMult*currFeat.Atr20
	clientOrderID := BuildClientOrderID(symbol, model.SideBuy, e.cfg.Timeframe, barCloseMs, Nonce(traceID))

	sizing, rejection := risk.CalculatePositionSize(
		equity, aiScore, entryPrice, stopPrice, defaultStartLever, !e.scorer.ColdStart)
	if rejection != nil {
		_, err := e.events.Append(ctx, &model.OrderEvent{
			TraceID:       traceID,
			Service:       serviceName,
			Exchange:      e.gw.ExchangeName(),
			Symbol:        symbol,
			ClientOrderID: clientOrderID,
			EventType:     model.EventRejected,
			Side:          model.SideBuy,
			Status:        "REJECTED",
			ReasonCode:    rejection.ReasonCode,
			Reason:        rejection.Reason,
			Action:        "RISK_CHECK",
			Actor:         "system",
		}, nil)
		return err
	}

	return e.submitEntry(ctx, symbol, traceID, clientOrderID, decision, sizing, currFeat, aiScore, entryPrice, stopPrice, barCloseMs)
}

// submitEntry walks CREATED -> SUBMITTED -> FILLED, then opens the trade
// log, snapshots and arms the protective stop.
func (e *Engine) submitEntry(ctx context.Context, symbol, traceID, clientOrderID string,
	decision signal.Decision, sizing *risk.Sizing, features model.FeatureSet,
	aiScore, entryPrice, stopPrice float64, barCloseMs int64) error {

	exchange := e.gw.ExchangeName()
	qty := sizing.Quantity.InexactFloat64()

	inserted, err := e.events.Append(ctx, &model.OrderEvent{
		TraceID:       traceID,
		Service:       serviceName,
		Exchange:      exchange,
		Symbol:        symbol,
		ClientOrderID: clientOrderID,
		EventType:     model.EventCreated,
		Side:          model.SideBuy,
		Qty:           qty,
		Status:        "NEW",
		ReasonCode:    decision.ReasonCode,
		Reason:        decision.Reason + " | " + sizing.Reason,
		Action:        "OPEN_LONG",
		Actor:         "system",
	}, nil)
	if err != nil {
		return err
	}
	if !inserted {
		// a CREATED row already exists for this client order id
		logger.WithFields(map[string]interface{}{
			"service":         serviceName,
			"symbol":          symbol,
			"client_order_id": clientOrderID,
		}).Info("Duplicate decision for this bar suppressed")
		return nil
	}

	if err := e.gw.SetLeverage(ctx, symbol, sizing.Leverage); err != nil {
		logger.WithError(err).WithField("symbol", symbol).Warn("Set leverage failed, proceeding with account default")
	}

	order, err := e.gw.PlaceOrder(ctx, connectors.OrderRequest{
		Symbol:        symbol,
		Side:          model.SideBuy,
		Type:          "MARKET",
		Quantity:      sizing.Quantity,
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		e.breaker.RecordOrderError(ctx, traceID)
		eventType := model.EventError
		if gateway.IsTerminal(err) {
			eventType = model.EventRejected
		}
		reasonCode := model.ReasonExchangeError
		var ce *gateway.CallError
		if errors.As(err, &ce) {
			reasonCode = ce.ReasonCode
		}
		_, appendErr := e.events.Append(ctx, &model.OrderEvent{
			TraceID:       traceID,
			Service:       serviceName,
			Exchange:      exchange,
			Symbol:        symbol,
			ClientOrderID: clientOrderID,
			EventType:     eventType,
			Side:          model.SideBuy,
			Qty:           qty,
			Status:        "FAILED",
			ReasonCode:    reasonCode,
			Reason:        utils.TruncateString(err.Error(), 480),
			Action:        "OPEN_LONG",
			Actor:         "system",
		}, nil)
		if appendErr != nil {
			logger.WithError(appendErr).Error("Failed to record placement failure")
		}
		e.notifier.SendSystemAlert("ORDER_FAILED", traceID, map[string]string{
			"symbol":      symbol,
			"reason_code": reasonCode,
		})
		return nil
	}
	e.breaker.RecordOrderSuccess()

	exchangeOrderID := order.ExchangeOrderID
	if _, err := e.events.Append(ctx, &model.OrderEvent{
		TraceID:         traceID,
		Service:         serviceName,
		Exchange:        exchange,
		Symbol:          symbol,
		ClientOrderID:   clientOrderID,
		ExchangeOrderID: &exchangeOrderID,
		EventType:       model.EventSubmitted,
		Side:            model.SideBuy,
		Qty:             qty,
		Status:          order.Status,
		ReasonCode:      decision.ReasonCode,
		Reason:          "order accepted by exchange",
		Action:          "OPEN_LONG",
		Actor:           "system",
	}, order.Raw); err != nil {
		return err
	}

	filled, err := e.awaitFill(ctx, symbol, clientOrderID, order)
	if err != nil {
		_, appendErr := e.events.Append(ctx, &model.OrderEvent{
			TraceID:         traceID,
			Service:         serviceName,
			Exchange:        exchange,
			Symbol:          symbol,
			ClientOrderID:   clientOrderID,
			ExchangeOrderID: &exchangeOrderID,
			EventType:       model.EventError,
			Side:            model.SideBuy,
			Qty:             qty,
			Status:          "UNCONFIRMED",
			ReasonCode:      model.ReasonOrderConfirmTimeout,
			Reason:          "fill not confirmed inside the timeout",
			Action:          "OPEN_LONG",
			Actor:           "system",
		}, nil)
		return appendErr
	}

	fillPrice := filled.AvgPrice.InexactFloat64()
	if fillPrice <= 0 {
		fillPrice = entryPrice
	}
	fillPricePtr := fillPrice

	if _, err := e.events.Append(ctx, &model.OrderEvent{
		TraceID:         traceID,
		Service:         serviceName,
		Exchange:        exchange,
		Symbol:          symbol,
		ClientOrderID:   clientOrderID,
		ExchangeOrderID: &exchangeOrderID,
		EventType:       model.EventFilled,
		Side:            model.SideBuy,
		Qty:             filled.ExecutedQty.InexactFloat64(),
		Price:           &fillPricePtr,
		Status:          "FILLED",
		ReasonCode:      decision.ReasonCode,
		Reason:          decision.Reason,
		Action:          "OPEN_LONG",
		Actor:           "system",
	}, filled.Raw); err != nil {
		return err
	}

	stopDistPct := (fillPrice - stopPrice) / fillPrice
	trade := &model.TradeLog{
		Symbol:          symbol,
		Side:            model.SideBuy,
		Qty:             filled.ExecutedQty.InexactFloat64(),
		Leverage:        sizing.Leverage,
		EntryPrice:      fillPrice,
		StopPrice:       stopPrice,
		StopDistPct:     stopDistPct,
		ClientOrderID:   clientOrderID,
		ExchangeOrderID: &exchangeOrderID,
		RobotScore:      features.Adx,
		AiProb:          aiScore / 100,
		OpenReasonCode:  decision.ReasonCode,
		OpenReason:      decision.Reason,
		EntryTimeMs:     e.now().UnixMilli(),
	}
	if err := e.trades.Open(ctx, trade); err != nil {
		return err
	}

	if err := e.snapshots.Write(ctx, symbol, trade.Qty, fillPrice, map[string]interface{}{
		"note":             "position_opened",
		"trace_id":         traceID,
		"client_order_id":  clientOrderID,
		"open_reason_code": decision.ReasonCode,
	}); err != nil {
		logger.WithError(err).Error("Open snapshot write failed")
	}

	e.notifier.SendTradeAlert("POSITION_OPENED", traceID, map[string]string{
		"symbol":      symbol,
		"qty":         fmt.Sprintf("%.6f", trade.Qty),
		"price":       fmt.Sprintf("%.2f", fillPrice),
		"stop":        fmt.Sprintf("%.2f", stopPrice),
		"leverage":    fmt.Sprintf("%d", sizing.Leverage),
		"reason_code": decision.ReasonCode,
		"reason":      decision.Reason,
	})

	e.armStop(ctx, trade, traceID)
	return nil
}

// awaitFill polls order state until FILLED or the confirm timeout expires.
func (e *Engine) awaitFill(ctx context.Context, symbol, clientOrderID string, last connectors.OrderState) (connectors.OrderState, error) {
	if last.Status == "FILLED" {
		return last, nil
	}

	deadline := e.now().Add(e.cfg.OrderConfirmTimeout())
	for e.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(fillPollInterval):
		}

		state, err := e.gw.GetOrder(ctx, symbol, clientOrderID)
		if err != nil {
			continue
		}
		last = state
		if state.Status == "FILLED" {
			return state, nil
		}
	}

	return last, fmt.Errorf("order %s unconfirmed after %s", clientOrderID, e.cfg.OrderConfirmTimeout())
}

// armStop submits the protective stop. On failure the position falls back
// to the software-tracked stop, which is terminal for this position.
func (e *Engine) armStop(ctx context.Context, trade *model.TradeLog, traceID string) {
	stopID := trade.ClientOrderID + StopOrderSuffix
	stopPrice := decimal.NewFromFloat(trade.StopPrice)

	_, err := e.gw.SetStop(ctx, connectors.OrderRequest{
		Symbol:        trade.Symbol,
		Side:          model.SideSell,
		Quantity:      decimal.NewFromFloat(trade.Qty),
		StopPrice:     &stopPrice,
		ClientOrderID: stopID,
	})

	if err != nil {
		logger.WithError(err).WithFields(map[string]interface{}{
			"service":     serviceName,
			"symbol":      trade.Symbol,
			"reason_code": model.ReasonStopArmFallback,
		}).Error("Exchange stop rejected, falling back to software stop")

		if _, appendErr := e.events.Append(ctx, &model.OrderEvent{
			TraceID:       traceID,
			Service:       serviceName,
			Exchange:      e.gw.ExchangeName(),
			Symbol:        trade.Symbol,
			ClientOrderID: stopID,
			EventType:     model.EventError,
			Side:          model.SideSell,
			Qty:           trade.Qty,
			Status:        "FALLBACK",
			ReasonCode:    model.ReasonStopArmFallback,
			Reason:        "exchange stop order failed, position is software-stop tracked",
			Action:        "ARM_STOP",
			Actor:         "system",
		}, nil); appendErr != nil {
			logger.WithError(appendErr).Error("Failed to record stop fallback event")
		}
		return
	}

	stopPx := trade.StopPrice
	if _, appendErr := e.events.Append(ctx, &model.OrderEvent{
		TraceID:       traceID,
		Service:       serviceName,
		Exchange:      e.gw.ExchangeName(),
		Symbol:        trade.Symbol,
		ClientOrderID: stopID,
		EventType:     model.EventStopArmed,
		Side:          model.SideSell,
		Qty:           trade.Qty,
		Price:         &stopPx,
		Status:        "ARMED",
		ReasonCode:    trade.OpenReasonCode,
		Reason:        fmt.Sprintf("protective stop armed at %.2f", trade.StopPrice),
		Action:        "ARM_STOP",
		Actor:         "system",
	}, nil); appendErr != nil {
		logger.WithError(appendErr).Error("Failed to record stop armed event")
	}
}

func (e *Engine) markPrice(symbol string) (float64, bool) {
	if e.marks == nil {
		return 0, false
	}
	p, ok := e.marks.Price(symbol)
	if !ok {
		return 0, false
	}
	return p.InexactFloat64(), true
}
