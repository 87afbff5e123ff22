package syncer

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logger "github.com/sirupsen/logrus"

	appcfg "alphasniper/src/config"
	"alphasniper/src/connectors"
	"alphasniper/src/database"
	"alphasniper/src/gateway"
	"alphasniper/src/notify"
	"alphasniper/src/ratelimit"
	"alphasniper/src/repository"
	syncersvc "alphasniper/src/syncer"
)

// Syncer is the data-syncer service bootstrap.
type Syncer struct{}

func (s *Syncer) Start() error {
	cfg := appcfg.GetConfig()
	GetConfig()

	if err := database.InitMainDB(); err != nil {
		return fmt.Errorf("database init: %w", err)
	}

	// candle ingestion only needs public endpoints
	client := connectors.NewBinanceClient("", "", cfg.ExchangeBaseURL)
	limiter := ratelimit.New()
	gw := gateway.New(client, limiter)

	var notifier notify.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifier = notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	} else {
		notifier = notify.NewLogNotifier()
	}

	svc := syncersvc.New(syncersvc.Deps{
		Config:     cfg,
		Gateway:    gw,
		MarketData: repository.NewMarketDataRepository(),
		Events:     repository.NewEventRepository(),
		Statuses:   repository.NewStatusRepository(),
		Configs:    repository.NewConfigRepository(),
		Notifier:   notifier,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("Shutdown signal received")
		cancel()
	}()

	go func() {
		<-svc.Ready()
		logger.WithField("service", "data-syncer").Info("Service ready")
	}()

	return svc.Run(ctx)
}
