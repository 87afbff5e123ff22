package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketData is one OHLCV candle. Only fully closed candles are stored.
// Times are UTC epoch milliseconds.
type MarketData struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Symbol     string          `json:"symbol"        gorm:"type:varchar(50);not null;uniqueIndex:ux_market_data_bar,priority:1"`
	Interval   string          `json:"interval"      gorm:"type:varchar(10);not null;uniqueIndex:ux_market_data_bar,priority:2;column:bar_interval"`
	OpenTimeMs int64           `json:"open_time_ms"  gorm:"not null;uniqueIndex:ux_market_data_bar,priority:3;index:idx_market_data_open_time"`
	Open       decimal.Decimal `json:"open"   gorm:"type:double precision;not null"`
	High       decimal.Decimal `json:"high"   gorm:"type:double precision;not null"`
	Low        decimal.Decimal `json:"low"    gorm:"type:double precision;not null"`
	Close      decimal.Decimal `json:"close"  gorm:"type:double precision;not null"`
	Volume     decimal.Decimal `json:"volume" gorm:"type:double precision;not null"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (MarketData) TableName() string {
	return "market_data"
}

// MarketDataHistory mirrors market_data for archived rows. The shared
// unique key makes archival re-runs insert zero rows.
type MarketDataHistory struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Symbol     string          `json:"symbol"        gorm:"type:varchar(50);not null;uniqueIndex:ux_market_data_history_bar,priority:1"`
	Interval   string          `json:"interval"      gorm:"type:varchar(10);not null;uniqueIndex:ux_market_data_history_bar,priority:2;column:bar_interval"`
	OpenTimeMs int64           `json:"open_time_ms"  gorm:"not null;uniqueIndex:ux_market_data_history_bar,priority:3"`
	Open       decimal.Decimal `json:"open"   gorm:"type:double precision;not null"`
	High       decimal.Decimal `json:"high"   gorm:"type:double precision;not null"`
	Low        decimal.Decimal `json:"low"    gorm:"type:double precision;not null"`
	Close      decimal.Decimal `json:"close"  gorm:"type:double precision;not null"`
	Volume     decimal.Decimal `json:"volume" gorm:"type:double precision;not null"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (MarketDataHistory) TableName() string {
	return "market_data_history"
}

// MarketDataCache holds precomputed features for one bar at one feature
// version. Different versions coexist; readers always filter by version.
type MarketDataCache struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Symbol         string    `json:"symbol"          gorm:"type:varchar(50);not null;uniqueIndex:ux_market_data_cache_bar,priority:1"`
	Interval       string    `json:"interval"        gorm:"type:varchar(10);not null;uniqueIndex:ux_market_data_cache_bar,priority:2;column:bar_interval"`
	OpenTimeMs     int64     `json:"open_time_ms"    gorm:"not null;uniqueIndex:ux_market_data_cache_bar,priority:3"`
	FeatureVersion int       `json:"feature_version" gorm:"not null;uniqueIndex:ux_market_data_cache_bar,priority:4"`
	FeaturesJSON   string    `json:"features_json"   gorm:"type:text;not null"`
	CreatedAt      time.Time `json:"created_at"`
}

func (MarketDataCache) TableName() string {
	return "market_data_cache"
}

// MarketDataCacheHistory mirrors market_data_cache for archived rows.
type MarketDataCacheHistory struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Symbol         string    `json:"symbol"          gorm:"type:varchar(50);not null;uniqueIndex:ux_market_data_cache_history_bar,priority:1"`
	Interval       string    `json:"interval"        gorm:"type:varchar(10);not null;uniqueIndex:ux_market_data_cache_history_bar,priority:2;column:bar_interval"`
	OpenTimeMs     int64     `json:"open_time_ms"    gorm:"not null;uniqueIndex:ux_market_data_cache_history_bar,priority:3"`
	FeatureVersion int       `json:"feature_version" gorm:"not null;uniqueIndex:ux_market_data_cache_history_bar,priority:4"`
	FeaturesJSON   string    `json:"features_json"   gorm:"type:text;not null"`
	CreatedAt      time.Time `json:"created_at"`
}

func (MarketDataCacheHistory) TableName() string {
	return "market_data_cache_history"
}

// Precompute task states.
const (
	TaskStatusPending = "PENDING"
	TaskStatusDone    = "DONE"
	TaskStatusError   = "ERROR"
)

// PrecomputeTask drives idempotent back-fill of missing cache rows. Its key
// is identical to the market_data_cache key.
type PrecomputeTask struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Symbol         string    `json:"symbol"          gorm:"type:varchar(50);not null;uniqueIndex:ux_precompute_task_bar,priority:1"`
	Interval       string    `json:"interval"        gorm:"type:varchar(10);not null;uniqueIndex:ux_precompute_task_bar,priority:2;column:bar_interval"`
	OpenTimeMs     int64     `json:"open_time_ms"    gorm:"not null;uniqueIndex:ux_precompute_task_bar,priority:3"`
	FeatureVersion int       `json:"feature_version" gorm:"not null;uniqueIndex:ux_precompute_task_bar,priority:4"`
	Status         string    `json:"status"          gorm:"size:20;not null;default:PENDING;index"`
	TryCount       int       `json:"try_count"       gorm:"not null;default:0"`
	LastError      string    `json:"last_error"      gorm:"size:500"`
	TraceID        string    `json:"trace_id"        gorm:"size:64"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (PrecomputeTask) TableName() string {
	return "precompute_tasks"
}
