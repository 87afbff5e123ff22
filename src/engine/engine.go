package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"alphasniper/src/config"
	"alphasniper/src/gateway"
	"alphasniper/src/lock"
	"alphasniper/src/model"
	"alphasniper/src/notify"
	"alphasniper/src/repository"
	"alphasniper/src/utils"

	"alphasniper/src/ai"
)

const serviceName = "strategy-engine"

// tickToleranceSeconds is how deep into the boundary minute a tick may
// still fire.
const tickToleranceSeconds = 3

// PriceSource exposes the latest mark price per symbol, fed by the
// websocket stream between ticks.
type PriceSource interface {
	Price(symbol string) (decimal.Decimal, bool)
}

// Engine is the strategy tick loop service.
type Engine struct {
	cfg   *config.Config
	state *config.StateHolder

	gw       *gateway.Gateway
	locker   lock.Locker
	notifier notify.Notifier
	marks    PriceSource

	events     *repository.EventRepository
	configs    *repository.ConfigRepository
	commands   *repository.CommandRepository
	statuses   *repository.StatusRepository
	marketData *repository.MarketDataRepository
	trades     *repository.TradeLogRepository
	snapshots  *repository.SnapshotRepository

	registry *ai.Registry
	scorer   *ai.LoadedScorer
	breaker  *Breaker

	instanceID string
	now        func() time.Time
	ready      chan struct{}
	readyOnce  bool

	lastTickHK time.Time
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Config     *config.Config
	Gateway    *gateway.Gateway
	Locker     lock.Locker
	Notifier   notify.Notifier
	Marks      PriceSource
	Events     *repository.EventRepository
	Configs    *repository.ConfigRepository
	Commands   *repository.CommandRepository
	Statuses   *repository.StatusRepository
	MarketData *repository.MarketDataRepository
	Trades     *repository.TradeLogRepository
	Snapshots  *repository.SnapshotRepository
	Registry   *ai.Registry
}

func New(deps Deps) *Engine {
	e := &Engine{
		cfg:        deps.Config,
		state:      config.NewStateHolder(nil),
		gw:         deps.Gateway,
		locker:     deps.Locker,
		notifier:   deps.Notifier,
		marks:      deps.Marks,
		events:     deps.Events,
		configs:    deps.Configs,
		commands:   deps.Commands,
		statuses:   deps.Statuses,
		marketData: deps.MarketData,
		trades:     deps.Trades,
		snapshots:  deps.Snapshots,
		registry:   deps.Registry,
		instanceID: utils.InstanceID(serviceName),
		now:        time.Now,
		ready:      make(chan struct{}),
	}
	e.breaker = NewBreaker(deps.Configs, deps.Notifier)
	return e
}

// Breaker exposes the circuit breaker so the rate limiter's signal can be
// wired to it at bootstrap.
func (e *Engine) Breaker() *Breaker { return e.breaker }

// Ready is closed after the first successful heartbeat.
func (e *Engine) Ready() <-chan struct{} { return e.ready }

// Run starts all engine workers and blocks until the context is canceled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.refreshState(ctx); err != nil {
		return fmt.Errorf("load initial control state: %w", err)
	}

	loaded, err := e.registry.Load(ctx, e.state.Current().AiModelImpl)
	if err != nil {
		return fmt.Errorf("load ai model: %w", err)
	}
	e.scorer = loaded

	if err := e.reconcileOnStartup(ctx); err != nil {
		logger.WithError(err).Error("Startup reconciliation failed")
	}

	go e.runControlConsumer(ctx)
	go e.runHeartbeat(ctx)
	go e.runPeriodicSnapshots(ctx)
	go e.runSoftStopWatcher(ctx)

	logger.WithFields(map[string]interface{}{
		"service":  serviceName,
		"instance": e.instanceID,
		"symbols":  e.cfg.SymbolList(),
	}).Info("Strategy engine started")

	return e.runTickLoop(ctx)
}

// runTickLoop fires one tick per 15-minute HK boundary. A tick fires when
// minute % 15 == 0 within the first seconds of the minute, once per bar.
func (e *Engine) runTickLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	interval, ok := utils.ParseInterval(e.cfg.Timeframe)
	if !ok {
		return fmt.Errorf("unsupported timeframe %q", e.cfg.Timeframe)
	}
	intervalMinutes := int(interval.Minutes())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			hk := utils.ToHK(e.now())
			if !utils.IsTickBoundary(hk, intervalMinutes, tickToleranceSeconds) {
				continue
			}
			// one tick per boundary: skip when this bar already ticked
			if !e.lastTickHK.IsZero() && hk.Truncate(interval).Equal(e.lastTickHK) {
				continue
			}
			e.lastTickHK = hk.Truncate(interval)

			e.runTick(ctx)
		}
	}
}

// runTick executes the per-symbol pipeline for every configured symbol
// within the tick budget. Symbols left over when the budget expires are
// deferred to the next tick.
func (e *Engine) runTick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, e.cfg.TickBudget())
	defer cancel()

	traceID := uuid.NewString()
	started := e.now()

	logger.WithFields(map[string]interface{}{
		"service":  serviceName,
		"trace_id": traceID,
		"tick_hk":  utils.ToHK(started).Format("15:04:05"),
	}).Info("Tick triggered")

	done := make(chan string, len(e.cfg.SymbolList()))
	for _, symbol := range e.cfg.SymbolList() {
		sym := symbol
		go func() {
			defer func() {
				if r := recover(); r != nil {
					e.recordLoopError(ctx, sym, traceID, fmt.Errorf("panic: %v", r))
				}
				done <- sym
			}()

			if err := e.processSymbol(tickCtx, sym, traceID); err != nil {
				e.recordLoopError(ctx, sym, traceID, err)
			}
		}()
	}

	finished := 0
	total := len(e.cfg.SymbolList())
	for finished < total {
		select {
		case <-done:
			finished++
		case <-tickCtx.Done():
			logger.WithFields(map[string]interface{}{
				"service":     serviceName,
				"trace_id":    traceID,
				"finished":    finished,
				"total":       total,
				"reason_code": "TICK_TIMEOUT",
			}).Warn("Tick budget exhausted, deferring remaining symbols to next tick")
			return
		}
	}

	logger.WithFields(map[string]interface{}{
		"service":  serviceName,
		"trace_id": traceID,
		"elapsed":  e.now().Sub(started).String(),
	}).Info("Tick complete")
}

// recordLoopError lands unhandled worker failures in the unified audit
// stream instead of losing them.
func (e *Engine) recordLoopError(ctx context.Context, symbol, traceID string, err error) {
	logger.WithError(err).WithFields(map[string]interface{}{
		"service":  serviceName,
		"symbol":   symbol,
		"trace_id": traceID,
	}).Error("Symbol pipeline failed")

	ev := &model.OrderEvent{
		TraceID:       traceID,
		Service:       serviceName,
		Exchange:      e.gw.ExchangeName(),
		Symbol:        symbol,
		ClientOrderID: "loop-" + traceID,
		EventType:     model.EventError,
		ReasonCode:    model.ReasonExchangeError,
		Reason:        utils.TruncateString(err.Error(), 480),
		Action:        "LOOP_ERROR",
		Actor:         "system",
	}
	if _, appendErr := e.events.Append(ctx, ev, nil); appendErr != nil {
		logger.WithError(appendErr).Error("Failed to record pipeline error event")
	}
}

func (e *Engine) refreshState(ctx context.Context) error {
	rows, err := e.configs.GetAll(ctx)
	if err != nil {
		return err
	}
	defaults := config.RuntimeState{
		FeatureVersion: e.cfg.FeatureVersion,
		AiModelImpl:    e.cfg.AiModelImpl,
		AdxMin:         25,
		VolRatioMin:    1.5,
		AiScoreMin:     50,
	}
	e.state.Replace(config.StateFromConfigRows(rows, defaults))
	return nil
}

// runHeartbeat upserts the service_status row. The first success raises
// readiness.
func (e *Engine) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.HeartbeatInterval())
	defer ticker.Stop()

	beat := func() {
		state := e.state.Current()
		status := map[string]interface{}{
			"last_tick_utc": e.lastTickHK.UTC().Format(time.RFC3339),
			"last_tick_hk":  e.lastTickHK.Format(time.RFC3339),
			"halt_trading":  state.HaltTrading,
			"paper_trading": e.cfg.PaperTrading,
			"breaker":       e.breaker.Tripped(),
		}
		if err := e.statuses.Upsert(ctx, serviceName, e.instanceID, status); err != nil {
			return
		}
		if !e.readyOnce {
			e.readyOnce = true
			close(e.ready)
		}
	}

	beat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}

// runPeriodicSnapshots writes a snapshot for every open position between
// ticks.
func (e *Engine) runPeriodicSnapshots(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SnapshotInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trades, err := e.trades.FindAllOpen(ctx)
			if err != nil {
				logger.WithError(err).Error("Periodic snapshot: failed to list open trades")
				continue
			}
			for _, trade := range trades {
				meta := map[string]interface{}{
					"note":            "periodic_snapshot",
					"client_order_id": trade.ClientOrderID,
				}
				if err := e.snapshots.Write(ctx, trade.Symbol, trade.Qty, trade.EntryPrice, meta); err != nil {
					logger.WithError(err).WithField("symbol", trade.Symbol).
						Error("Periodic snapshot write failed")
				}
			}
		}
	}
}
