package connectors

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// Kline is one exchange candle. OpenTimeMs/CloseTimeMs are UTC epoch millis.
type Kline struct {
	OpenTimeMs  int64
	CloseTimeMs int64
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
}

// OrderRequest is a new-order submission. ClientOrderID is mandatory: it is
// the idempotency key shared by all retries of the same decision.
type OrderRequest struct {
	Symbol        string
	Side          string
	Type          string
	Quantity      decimal.Decimal
	Price         *decimal.Decimal
	StopPrice     *decimal.Decimal
	ClientOrderID string
	ReduceOnly    bool
}

// OrderState is the exchange's view of one order.
type OrderState struct {
	ClientOrderID   string
	ExchangeOrderID string
	Symbol          string
	Side            string
	Status          string
	ExecutedQty     decimal.Decimal
	AvgPrice        decimal.Decimal
	Raw             map[string]interface{}
}

// AccountState carries equity and per-symbol position sizes.
type AccountState struct {
	EquityUSDT decimal.Decimal
	Positions  map[string]Position
}

// Position is one open position on the exchange.
type Position struct {
	Symbol     string
	BaseQty    decimal.Decimal
	EntryPrice decimal.Decimal
	Leverage   int
}

// Response carries the transport-level result alongside the decoded value,
// so the caller can feed status and headers to the rate limiter.
type Response struct {
	Status  int
	Headers http.Header
}

// ExchangeClient is the low-level exchange REST surface. Every call returns
// the transport response for rate-limiter observation, even on error.
type ExchangeClient interface {
	Name() string

	GetKlines(ctx context.Context, symbol, interval string, startMs int64, limit int) ([]Kline, Response, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderState, Response, error)
	CancelOrder(ctx context.Context, symbol, clientOrderID string) (Response, error)
	GetOrder(ctx context.Context, symbol, clientOrderID string) (OrderState, Response, error)
	GetAccount(ctx context.Context) (AccountState, Response, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) (Response, error)
}
