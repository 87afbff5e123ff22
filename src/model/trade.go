package model

import "time"

// Trade log lifecycle states.
const (
	TradeStatusOpen   = "OPEN"
	TradeStatusClosed = "CLOSED"
)

// TradeLog is the lifecycle row for one position, written at open and
// completed at close.
type TradeLog struct {
	ID              uint     `gorm:"primaryKey" json:"id"`
	Symbol          string   `gorm:"size:50;not null;index" json:"symbol"`
	Side            string   `gorm:"size:10;not null" json:"side"`
	Qty             float64  `json:"qty"`
	Leverage        int      `json:"leverage"`
	EntryPrice      float64  `json:"entry_price"`
	ExitPrice       *float64 `json:"exit_price,omitempty"`
	Pnl             *float64 `json:"pnl,omitempty"`
	StopPrice       float64  `json:"stop_price"`
	StopDistPct     float64  `json:"stop_dist_pct"`
	ClientOrderID   string   `gorm:"size:80;not null;index" json:"client_order_id"`
	ExchangeOrderID *string  `gorm:"size:100" json:"exchange_order_id,omitempty"`
	RobotScore      float64  `json:"robot_score"`
	AiProb          float64  `json:"ai_prob"`
	OpenReasonCode  string   `gorm:"size:64" json:"open_reason_code"`
	OpenReason      string   `gorm:"size:500" json:"open_reason"`
	CloseReasonCode string   `gorm:"size:64" json:"close_reason_code,omitempty"`
	CloseReason     string   `gorm:"size:500" json:"close_reason,omitempty"`
	EntryTimeMs     int64    `json:"entry_time_ms"`
	ExitTimeMs      *int64   `json:"exit_time_ms,omitempty"`
	Status          string   `gorm:"size:20;not null;default:OPEN;index" json:"status"`
}

func (TradeLog) TableName() string {
	return "trade_logs"
}

// PositionSnapshot captures the position state of one symbol, periodically
// and on lifecycle events.
type PositionSnapshot struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Symbol        string    `gorm:"size:50;not null;index" json:"symbol"`
	BaseQty       float64   `json:"base_qty"`
	AvgEntryPrice float64   `json:"avg_entry_price"`
	MetaJSON      string    `gorm:"type:text" json:"meta_json"`
	CreatedAt     time.Time `json:"created_at"`
}

func (PositionSnapshot) TableName() string {
	return "position_snapshots"
}
