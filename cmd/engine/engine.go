package engine

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	appcfg "alphasniper/src/config"
	"alphasniper/src/connectors"
	"alphasniper/src/database"
	enginesvc "alphasniper/src/engine"
	"alphasniper/src/gateway"
	"alphasniper/src/lock"
	"alphasniper/src/model"
	"alphasniper/src/notify"
	"alphasniper/src/ratelimit"
	"alphasniper/src/repository"
	"alphasniper/src/security"

	"alphasniper/src/ai"
)

// Engine is the strategy-engine service bootstrap.
type Engine struct{}

func (e *Engine) Start() error {
	cfg := appcfg.GetConfig()
	GetConfig()

	if err := database.InitMainDB(); err != nil {
		return fmt.Errorf("database init: %w", err)
	}

	events := repository.NewEventRepository()
	configs := repository.NewConfigRepository()
	commands := repository.NewCommandRepository()
	statuses := repository.NewStatusRepository()
	marketData := repository.NewMarketDataRepository()
	trades := repository.NewTradeLogRepository()
	snapshots := repository.NewSnapshotRepository()
	models := repository.NewAiModelRepository()

	notifier := buildNotifier(cfg)
	client, err := buildExchangeClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	// every 429 backoff lands in the audit stream
	limiterOpts := []ratelimit.Option{
		ratelimit.WithBackoffObserver(func(ev ratelimit.BackoffEvent) {
			_, appendErr := events.Append(ctx, &model.OrderEvent{
				TraceID:       uuid.NewString(),
				Service:       "strategy-engine",
				Exchange:      client.Name(),
				Symbol:        ev.Group,
				ClientOrderID: fmt.Sprintf("ratelimit-%s-%d-%d", ev.Group, ev.Stage, time.Now().UnixMilli()),
				EventType:     model.EventError,
				Status:        fmt.Sprintf("HTTP %d", ev.Status),
				ReasonCode:    model.ReasonRateLimitBackoff,
				Reason:        fmt.Sprintf("backing off %s after %d", ev.Backoff, ev.Status),
				Action:        "RATE_LIMIT",
				Actor:         "system",
			}, nil)
			if appendErr != nil {
				logger.WithError(appendErr).Error("Failed to record backoff event")
			}
		}),
	}

	var breakerHook func(group string, count int)
	limiterOpts = append(limiterOpts, ratelimit.WithBreakerSignal(10, time.Minute, func(group string, count int) {
		if breakerHook != nil {
			breakerHook(group, count)
		}
	}))

	limiter := ratelimit.New(limiterOpts...)
	gw := gateway.New(client, limiter)

	locker, err := buildLocker(cfg)
	if err != nil {
		return err
	}
	defer locker.Close()

	marks := connectors.NewMarkPriceStream(cfg.ExchangeWsURL, cfg.SymbolList())
	go marks.Run(ctx)

	// paper fills execute at the live mark price
	if paper, ok := client.(*connectors.PaperClient); ok {
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					for _, symbol := range cfg.SymbolList() {
						if price, ok := marks.Price(symbol); ok {
							paper.SetMarkPrice(symbol, price)
						}
					}
				}
			}
		}()
	}

	svc := enginesvc.New(enginesvc.Deps{
		Config:     cfg,
		Gateway:    gw,
		Locker:     locker,
		Notifier:   notifier,
		Marks:      marks,
		Events:     events,
		Configs:    configs,
		Commands:   commands,
		Statuses:   statuses,
		MarketData: marketData,
		Trades:     trades,
		Snapshots:  snapshots,
		Registry:   ai.NewRegistry(models),
	})

	breakerHook = func(group string, count int) {
		svc.Breaker().RecordRateLimit(ctx, uuid.NewString())
	}

	go func() {
		<-svc.Ready()
		logger.WithField("service", "strategy-engine").Info("Service ready")
	}()

	return svc.Run(ctx)
}

func buildNotifier(cfg *appcfg.Config) notify.Notifier {
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		return notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	}
	logger.Warn("No telegram credentials, alerts go to the log only")
	return notify.NewLogNotifier()
}

func buildExchangeClient(cfg *appcfg.Config) (connectors.ExchangeClient, error) {
	if cfg.PaperTrading {
		real := connectors.NewBinanceClient("", "", cfg.ExchangeBaseURL)
		paper := connectors.NewPaperClient(decimal.NewFromFloat(cfg.PaperEquity), real)
		logger.WithField("equity", cfg.PaperEquity).Info("Paper trading mode")
		return paper, nil
	}

	apiSecret := cfg.APISecret
	if sealed := os.Getenv("API_SECRET_ENC"); sealed != "" {
		plain, err := security.DecryptString(sealed)
		if err != nil {
			return nil, fmt.Errorf("decrypt api secret: %w", err)
		}
		apiSecret = plain
	}
	if cfg.APIKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("live trading requires API_KEY and API_SECRET")
	}

	return connectors.NewBinanceClient(cfg.APIKey, apiSecret, cfg.ExchangeBaseURL), nil
}

func buildLocker(cfg *appcfg.Config) (lock.Locker, error) {
	svcCfg := GetConfig()
	if !svcCfg.UseRedisLock {
		logger.Warn("Redis lock disabled, running with in-process lock only")
		return lock.NewNopLocker(), nil
	}

	locker, err := lock.NewRedisLocker(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis locker: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := locker.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return locker, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("Shutdown signal received")
		cancel()
	}()
	return ctx, cancel
}
