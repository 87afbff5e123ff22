package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"alphasniper/src/config"
	"alphasniper/src/connectors"
	"alphasniper/src/gateway"
	"alphasniper/src/indicators"
	"alphasniper/src/model"
	"alphasniper/src/notify"
	"alphasniper/src/repository"
	"alphasniper/src/utils"
)

const serviceName = "data-syncer"

const (
	pollInterval      = 15 * time.Second
	firstPullLimit    = 1000
	incrementalLimit  = 200
	correlationSymbol = "BTCUSDT"
)

// Syncer ingests candles incrementally, heals gaps, precomputes features
// at the current feature version and archives old rows once per HK day.
type Syncer struct {
	cfg *config.Config

	gw         *gateway.Gateway
	marketData *repository.MarketDataRepository
	events     *repository.EventRepository
	statuses   *repository.StatusRepository
	configs    *repository.ConfigRepository
	notifier   notify.Notifier

	instanceID string
	now        func() time.Time

	lastLagAlert   map[string]time.Time
	lastArchiveDay string
	latestBarClose map[string]int64

	ready     chan struct{}
	readyOnce bool
}

type Deps struct {
	Config     *config.Config
	Gateway    *gateway.Gateway
	MarketData *repository.MarketDataRepository
	Events     *repository.EventRepository
	Statuses   *repository.StatusRepository
	Configs    *repository.ConfigRepository
	Notifier   notify.Notifier
}

func New(deps Deps) *Syncer {
	return &Syncer{
		cfg:            deps.Config,
		gw:             deps.Gateway,
		marketData:     deps.MarketData,
		events:         deps.Events,
		statuses:       deps.Statuses,
		configs:        deps.Configs,
		notifier:       deps.Notifier,
		instanceID:     utils.InstanceID(serviceName),
		now:            time.Now,
		lastLagAlert:   make(map[string]time.Time),
		latestBarClose: make(map[string]int64),
		ready:          make(chan struct{}),
	}
}

// Ready is closed after the first successful heartbeat.
func (s *Syncer) Ready() <-chan struct{} { return s.ready }

// Run is the main loop. Uncaught per-symbol errors are recorded on the
// unified order_events stream and the loop continues.
func (s *Syncer) Run(ctx context.Context) error {
	logger.WithFields(map[string]interface{}{
		"service":  serviceName,
		"instance": s.instanceID,
		"symbols":  s.cfg.SymbolList(),
	}).Info("Data syncer started")

	for {
		for _, symbol := range s.cfg.SymbolList() {
			if err := s.syncSymbol(ctx, symbol); err != nil {
				s.recordLoopError(ctx, symbol, err)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}

		s.heartbeat(ctx)
		s.checkLag(ctx)
		s.maybeArchive(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pollInterval):
		}
	}
}

// syncSymbol pulls new closed candles, heals gaps and refreshes the
// feature cache for one symbol.
func (s *Syncer) syncSymbol(ctx context.Context, symbol string) error {
	interval, ok := utils.ParseInterval(s.cfg.Timeframe)
	if !ok {
		return fmt.Errorf("unsupported timeframe %q", s.cfg.Timeframe)
	}
	stepMs := interval.Milliseconds()

	latest, err := s.marketData.LatestOpenTime(ctx, symbol, s.cfg.Timeframe)
	if err != nil {
		return err
	}

	startMs := int64(0)
	limit := firstPullLimit
	if latest > 0 {
		startMs = latest + stepMs
		limit = incrementalLimit
	}

	klines, err := s.gw.GetKlines(ctx, symbol, s.cfg.Timeframe, startMs, limit)
	if err != nil {
		return fmt.Errorf("pull klines: %w", err)
	}

	closed := FilterClosed(klines, s.now())
	if len(closed) > 0 {
		candles := make([]model.MarketData, 0, len(closed))
		for _, k := range closed {
			candles = append(candles, model.MarketData{
				Symbol:     symbol,
				Interval:   s.cfg.Timeframe,
				OpenTimeMs: k.OpenTimeMs,
				Open:       k.Open,
				High:       k.High,
				Low:        k.Low,
				Close:      k.Close,
				Volume:     k.Volume,
			})
		}

		inserted, err := s.marketData.InsertCandles(ctx, candles)
		if err != nil {
			return err
		}
		if inserted > 0 {
			logger.WithFields(map[string]interface{}{
				"service": serviceName,
				"symbol":  symbol,
				"rows":    inserted,
			}).Info("Candles stored")
		}
		s.latestBarClose[symbol] = closed[len(closed)-1].CloseTimeMs
	}

	if err := s.healGaps(ctx, symbol, stepMs); err != nil {
		return err
	}

	return s.refreshCache(ctx, symbol)
}

// healGaps detects missing bars in the stored series, enqueues precompute
// tasks for them and re-pulls each missing bar individually.
func (s *Syncer) healGaps(ctx context.Context, symbol string, stepMs int64) error {
	featureVersion := s.featureVersion(ctx)

	nowMs := s.now().UnixMilli()
	fromMs := nowMs - int64(firstPullLimit)*stepMs

	missing, err := s.marketData.FindGaps(ctx, symbol, s.cfg.Timeframe, stepMs, fromMs, nowMs)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	traceID := uuid.NewString()
	logger.WithFields(map[string]interface{}{
		"service":  serviceName,
		"symbol":   symbol,
		"missing":  len(missing),
		"trace_id": traceID,
	}).Warn("Gap detected in stored candles, backfilling")

	tasks := make([]model.PrecomputeTask, 0, len(missing))
	for _, openMs := range missing {
		tasks = append(tasks, model.PrecomputeTask{
			Symbol:         symbol,
			Interval:       s.cfg.Timeframe,
			OpenTimeMs:     openMs,
			FeatureVersion: featureVersion,
			Status:         model.TaskStatusPending,
			TraceID:        traceID,
		})
	}
	if _, err := s.marketData.EnqueueTasks(ctx, tasks); err != nil {
		return err
	}

	for _, openMs := range missing {
		klines, err := s.gw.GetKlines(ctx, symbol, s.cfg.Timeframe, openMs, 1)
		if err != nil {
			return fmt.Errorf("backfill pull at %d: %w", openMs, err)
		}
		closed := FilterClosed(klines, s.now())
		if len(closed) == 0 {
			continue
		}
		k := closed[0]
		if _, err := s.marketData.InsertCandles(ctx, []model.MarketData{{
			Symbol:     symbol,
			Interval:   s.cfg.Timeframe,
			OpenTimeMs: k.OpenTimeMs,
			Open:       k.Open,
			High:       k.High,
			Low:        k.Low,
			Close:      k.Close,
			Volume:     k.Volume,
		}}); err != nil {
			return err
		}
	}

	return nil
}

// refreshCache recomputes features over the recent buffer and writes cache
// rows at the current version, resolving any pending precompute tasks.
func (s *Syncer) refreshCache(ctx context.Context, symbol string) error {
	featureVersion := s.featureVersion(ctx)

	buffer, err := s.marketData.RecentCandles(ctx, symbol, s.cfg.Timeframe, firstPullLimit)
	if err != nil {
		return err
	}
	if len(buffer) == 0 {
		return nil
	}

	var btcCloses []float64
	if symbol != correlationSymbol {
		btcCloses = s.referenceCloses(ctx, len(buffer))
		if btcCloses != nil && len(btcCloses) != len(buffer) {
			btcCloses = nil
		}
	}

	features := indicators.Compute(buffer, btcCloses)

	rows := make([]model.MarketDataCache, 0, len(buffer))
	for i := indicators.WarmupBars; i < len(buffer); i++ {
		encoded, err := features[i].Encode()
		if err != nil {
			return err
		}
		rows = append(rows, model.MarketDataCache{
			Symbol:         symbol,
			Interval:       s.cfg.Timeframe,
			OpenTimeMs:     buffer[i].OpenTimeMs,
			FeatureVersion: featureVersion,
			FeaturesJSON:   encoded,
		})
	}
	if err := s.marketData.UpsertCache(ctx, rows); err != nil {
		return err
	}

	// resolve pending backfill tasks whose bar now has data and features
	tasks, err := s.marketData.PendingTasks(ctx, symbol, s.cfg.Timeframe, featureVersion, 100)
	if err != nil {
		return err
	}
	cached := make(map[int64]struct{}, len(rows))
	for _, row := range rows {
		cached[row.OpenTimeMs] = struct{}{}
	}
	for _, task := range tasks {
		if _, ok := cached[task.OpenTimeMs]; ok {
			if err := s.marketData.MarkTaskDone(ctx, task.ID); err != nil {
				logger.WithError(err).WithField("task_id", task.ID).Error("Failed to mark task done")
			}
			continue
		}
		if task.TryCount >= 5 {
			continue
		}
		if err := s.marketData.MarkTaskError(ctx, task.ID, "bar still missing after backfill pull"); err != nil {
			logger.WithError(err).WithField("task_id", task.ID).Error("Failed to mark task error")
		}
	}

	return nil
}

// referenceCloses loads the BTC close series for correlation, best effort.
func (s *Syncer) referenceCloses(ctx context.Context, n int) []float64 {
	candles, err := s.marketData.RecentCandles(ctx, correlationSymbol, s.cfg.Timeframe, n)
	if err != nil || len(candles) == 0 {
		return nil
	}
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close.InexactFloat64()
	}
	return out
}

func (s *Syncer) featureVersion(ctx context.Context) int {
	raw, err := s.configs.Get(ctx, model.ConfigKeyFeatureVersion, "")
	if err == nil && raw != "" {
		var v int
		if _, err := fmt.Sscanf(raw, "%d", &v); err == nil && v > 0 {
			return v
		}
	}
	return s.cfg.FeatureVersion
}

func (s *Syncer) heartbeat(ctx context.Context) {
	status := map[string]interface{}{
		"symbols":          s.cfg.SymbolList(),
		"feature_version":  s.featureVersion(ctx),
		"latest_bar_close": s.latestBarClose,
		"ts_hk":            utils.ToHK(s.now()).Format(time.RFC3339),
	}
	if err := s.statuses.Upsert(ctx, serviceName, s.instanceID, status); err != nil {
		logger.WithError(err).Error("Heartbeat failed")
		return
	}
	if !s.readyOnce {
		s.readyOnce = true
		close(s.ready)
	}
}

// checkLag raises a DATA_LAG alert when the freshest bar is too old,
// subject to a per-symbol cooldown.
func (s *Syncer) checkLag(ctx context.Context) {
	now := s.now()
	threshold := time.Duration(s.cfg.LagAlertSeconds) * time.Second
	cooldown := time.Duration(s.cfg.LagAlertCooldownSeconds) * time.Second

	for symbol, closeMs := range s.latestBarClose {
		lag := now.Sub(utils.MsToUTC(closeMs))
		if lag <= threshold {
			continue
		}
		if last, ok := s.lastLagAlert[symbol]; ok && now.Sub(last) < cooldown {
			continue
		}
		s.lastLagAlert[symbol] = now

		traceID := uuid.NewString()
		logger.WithFields(map[string]interface{}{
			"service":     serviceName,
			"symbol":      symbol,
			"lag":         lag.String(),
			"reason_code": model.ReasonDataLag,
			"trace_id":    traceID,
		}).Warn("Market data lagging")

		s.notifier.SendSystemAlert("DATA_LAG", traceID, map[string]string{
			"symbol":      symbol,
			"lag_seconds": fmt.Sprintf("%.0f", lag.Seconds()),
			"reason_code": model.ReasonDataLag,
		})
	}
}

// recordLoopError lands sync failures in the unified audit stream.
func (s *Syncer) recordLoopError(ctx context.Context, symbol string, err error) {
	logger.WithError(err).WithFields(map[string]interface{}{
		"service": serviceName,
		"symbol":  symbol,
	}).Error("Sync loop error")

	traceID := uuid.NewString()
	ev := &model.OrderEvent{
		TraceID:       traceID,
		Service:       serviceName,
		Exchange:      s.gw.ExchangeName(),
		Symbol:        symbol,
		ClientOrderID: "sync-" + traceID,
		EventType:     model.EventError,
		ReasonCode:    model.ReasonExchangeError,
		Reason:        utils.TruncateString(err.Error(), 480),
		Action:        "SYNC_LOOP",
		Actor:         "system",
	}
	if _, appendErr := s.events.Append(ctx, ev, nil); appendErr != nil {
		logger.WithError(appendErr).Error("Failed to record sync error event")
	}
}

// FilterClosed drops candles that have not fully closed yet. A bar whose
// close time is in the future must never be stored.
func FilterClosed(klines []connectors.Kline, now time.Time) []connectors.Kline {
	nowMs := now.UnixMilli()
	out := make([]connectors.Kline, 0, len(klines))
	for _, k := range klines {
		if k.CloseTimeMs <= nowMs {
			out = append(out, k)
		}
	}
	return out
}
