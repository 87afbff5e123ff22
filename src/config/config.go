package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the process-level environment configuration shared by all
// services. Runtime-mutable trading state lives in system_config instead.
type Config struct {
	ExchangeName    string `envconfig:"EXCHANGE_NAME" default:"binance"`
	ExchangeBaseURL string `envconfig:"EXCHANGE_BASE_URL" default:""`
	ExchangeWsURL   string `envconfig:"EXCHANGE_WS_URL" default:""`
	APIKey          string `envconfig:"API_KEY" default:""`
	APISecret       string `envconfig:"API_SECRET" default:""`

	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	Symbols       string `envconfig:"SYMBOLS" default:"BTCUSDT,ETHUSDT"`
	Timeframe     string `envconfig:"TIMEFRAME" default:"15m"`
	EnableTrading bool   `envconfig:"ENABLE_TRADING" default:"false"`
	PaperTrading  bool   `envconfig:"PAPER_TRADING" default:"true"`
	PaperEquity   float64 `envconfig:"PAPER_EQUITY" default:"500"`

	TickBudgetSeconds       int `envconfig:"TICK_BUDGET_SECONDS" default:"10"`
	ControlPollSeconds      int `envconfig:"CONTROL_POLL_SECONDS" default:"2"`
	SnapshotIntervalSeconds int `envconfig:"POSITION_SNAPSHOT_INTERVAL_SECONDS" default:"300"`
	HeartbeatSeconds        int `envconfig:"HEARTBEAT_INTERVAL_SECONDS" default:"30"`
	OrderConfirmSeconds     int `envconfig:"ORDER_CONFIRM_TIMEOUT_SECONDS" default:"8"`

	FeatureVersion int `envconfig:"FEATURE_VERSION" default:"1"`

	LagAlertSeconds         int `envconfig:"MARKET_DATA_LAG_ALERT_SECONDS" default:"120"`
	LagAlertCooldownSeconds int `envconfig:"MARKET_DATA_LAG_ALERT_COOLDOWN_SECONDS" default:"300"`

	AiModelImpl string `envconfig:"AI_MODEL_IMPL" default:"online_lr"`

	TradeLockTTLSeconds int `envconfig:"TRADE_LOCK_TTL_SECONDS" default:"30"`

	TelegramBotToken string `envconfig:"TG_BOT_TOKEN" default:""`
	TelegramChatID   string `envconfig:"TG_CHAT_ID" default:""`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}

// SymbolList splits the SYMBOLS value into trimmed upper-case symbols.
func (c *Config) SymbolList() []string {
	parts := strings.Split(c.Symbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.ToUpper(strings.TrimSpace(p)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) TickBudget() time.Duration {
	return time.Duration(c.TickBudgetSeconds) * time.Second
}

func (c *Config) ControlPoll() time.Duration {
	return time.Duration(c.ControlPollSeconds) * time.Second
}

func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalSeconds) * time.Second
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

func (c *Config) OrderConfirmTimeout() time.Duration {
	return time.Duration(c.OrderConfirmSeconds) * time.Second
}

func (c *Config) TradeLockTTL() time.Duration {
	return time.Duration(c.TradeLockTTLSeconds) * time.Second
}
