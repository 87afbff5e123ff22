package model

import "time"

// Order event types, in lifecycle order.
const (
	EventCreated       = "CREATED"
	EventSubmitted     = "SUBMITTED"
	EventAck           = "ACK"
	EventPartial       = "PARTIAL"
	EventFilled        = "FILLED"
	EventCanceled      = "CANCELED"
	EventRejected      = "REJECTED"
	EventError         = "ERROR"
	EventReconciled    = "RECONCILED"
	EventStopArmed     = "STOP_ARMED"
	EventStopTriggered = "STOP_TRIGGERED"
	EventStopFilled    = "STOP_FILLED"
)

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Reason codes attached to events, alerts and audits.
const (
	ReasonSetupBSqueezeRelease = "SETUP_B_SQUEEZE_RELEASE"
	ReasonRiskBudgetExceeded   = "RISK_BUDGET_EXCEEDED"
	ReasonStaleCache           = "STALE_CACHE"
	ReasonTickTimeout          = "TICK_TIMEOUT"
	ReasonOrderConfirmTimeout  = "ORDER_CONFIRM_TIMEOUT"
	ReasonStopArmFallback      = "STOP_ARM_FAILED_FALLBACK"
	ReasonStopLoss             = "STOP_LOSS"
	ReasonEmergencyExit        = "EMERGENCY_EXIT"
	ReasonManualClose          = "MANUAL_CLOSE"
	ReasonRateLimitBackoff     = "RATE_LIMIT_BACKOFF"
	ReasonDataLag              = "DATA_LAG"
	ReasonExchangeError        = "EXCHANGE_ERROR"
	ReasonBreakerOrderErrors   = "CIRCUIT_BREAKER_ORDER_ERRORS"
	ReasonBreakerRateLimit     = "CIRCUIT_BREAKER_RATE_LIMIT"
	ReasonBreakerDrawdown      = "CIRCUIT_BREAKER_DRAWDOWN"
	ReasonReconcile            = "RECONCILE"
	ReasonAdminHalt            = "ADMIN_HALT"
	ReasonAdminResume          = "ADMIN_RESUME"
	ReasonAdminConfig          = "ADMIN_UPDATE_CONFIG"
)

// OrderEvent is the append-only audit stream. Rows are never updated or
// deleted; idempotency rides on the (exchange, symbol, client_order_id,
// event_type) unique key.
type OrderEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	TraceID         string    `gorm:"size:64;index" json:"trace_id"`
	Service         string    `gorm:"size:50;not null" json:"service"`
	Exchange        string    `gorm:"size:30;not null;uniqueIndex:ux_order_event,priority:1" json:"exchange"`
	Symbol          string    `gorm:"size:50;not null;uniqueIndex:ux_order_event,priority:2" json:"symbol"`
	ClientOrderID   string    `gorm:"size:80;not null;uniqueIndex:ux_order_event,priority:3" json:"client_order_id"`
	ExchangeOrderID *string   `gorm:"size:100" json:"exchange_order_id,omitempty"`
	EventType       string    `gorm:"size:20;not null;uniqueIndex:ux_order_event,priority:4" json:"event_type"`
	Side            string    `gorm:"size:10" json:"side"`
	Qty             float64   `json:"qty"`
	Price           *float64  `json:"price,omitempty"`
	Status          string    `gorm:"size:30" json:"status"`
	ReasonCode      string    `gorm:"size:64" json:"reason_code"`
	Reason          string    `gorm:"size:500" json:"reason"`
	Action          string    `gorm:"size:50" json:"action"`
	Actor           string    `gorm:"size:100" json:"actor"`
	EventTsUTC      time.Time `gorm:"not null" json:"event_ts_utc"`
	EventTsHK       time.Time `gorm:"not null" json:"event_ts_hk"`
	RawPayloadJSON  string    `gorm:"type:text" json:"raw_payload_json"`
}

func (OrderEvent) TableName() string {
	return "order_events"
}
