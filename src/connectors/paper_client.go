package connectors

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// PaperClient simulates the exchange for PAPER_TRADING mode: orders fill
// immediately at the configured mark price, balances live in memory. Kline
// requests pass through to a real client when one is provided so paper runs
// use live market data.
type PaperClient struct {
	mu        sync.Mutex
	equity    decimal.Decimal
	marks     map[string]decimal.Decimal
	orders    map[string]OrderState
	positions map[string]Position
	seq       int64
	klines    ExchangeClient
}

func NewPaperClient(startingEquity decimal.Decimal, klineSource ExchangeClient) *PaperClient {
	return &PaperClient{
		equity:    startingEquity,
		marks:     make(map[string]decimal.Decimal),
		orders:    make(map[string]OrderState),
		positions: make(map[string]Position),
		klines:    klineSource,
	}
}

func (c *PaperClient) Name() string { return "paper" }

// SetMarkPrice sets the simulated fill price for a symbol.
func (c *PaperClient) SetMarkPrice(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marks[symbol] = price
}

func okResponse() Response {
	return Response{Status: http.StatusOK, Headers: http.Header{}}
}

func (c *PaperClient) GetKlines(ctx context.Context, symbol, interval string, startMs int64, limit int) ([]Kline, Response, error) {
	if c.klines != nil {
		return c.klines.GetKlines(ctx, symbol, interval, startMs, limit)
	}
	return nil, okResponse(), nil
}

func (c *PaperClient) PlaceOrder(ctx context.Context, req OrderRequest) (OrderState, Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// idempotent on client order id: a retry returns the original fill
	if existing, ok := c.orders[req.ClientOrderID]; ok {
		return existing, okResponse(), nil
	}

	mark, ok := c.marks[req.Symbol]
	if !ok || mark.IsZero() {
		return OrderState{}, Response{Status: http.StatusBadRequest, Headers: http.Header{}},
			fmt.Errorf("paper: no mark price for %s", req.Symbol)
	}

	c.seq++
	state := OrderState{
		ClientOrderID:   req.ClientOrderID,
		ExchangeOrderID: strconv.FormatInt(c.seq, 10),
		Symbol:          req.Symbol,
		Side:            req.Side,
		Status:          "FILLED",
		ExecutedQty:     req.Quantity,
		AvgPrice:        mark,
		Raw: map[string]interface{}{
			"paper":  true,
			"symbol": req.Symbol,
			"price":  mark.String(),
		},
	}

	// stop orders rest until triggered; treat them as acknowledged only
	if req.StopPrice != nil {
		state.Status = "NEW"
		state.ExecutedQty = decimal.Zero
	} else {
		c.applyFill(req, mark)
	}

	c.orders[req.ClientOrderID] = state

	logger.WithFields(map[string]interface{}{
		"component":       "paper",
		"symbol":          req.Symbol,
		"side":            req.Side,
		"qty":             req.Quantity.String(),
		"client_order_id": req.ClientOrderID,
	}).Info("Paper order filled")

	return state, okResponse(), nil
}

func (c *PaperClient) applyFill(req OrderRequest, mark decimal.Decimal) {
	pos := c.positions[req.Symbol]
	pos.Symbol = req.Symbol
	if req.Side == "BUY" {
		pos.BaseQty = pos.BaseQty.Add(req.Quantity)
		pos.EntryPrice = mark
	} else {
		pos.BaseQty = pos.BaseQty.Sub(req.Quantity)
	}
	if pos.BaseQty.IsZero() {
		delete(c.positions, req.Symbol)
		return
	}
	c.positions[req.Symbol] = pos
}

func (c *PaperClient) CancelOrder(ctx context.Context, symbol, clientOrderID string) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state, ok := c.orders[clientOrderID]; ok && state.Status == "NEW" {
		state.Status = "CANCELED"
		c.orders[clientOrderID] = state
	}
	return okResponse(), nil
}

func (c *PaperClient) GetOrder(ctx context.Context, symbol, clientOrderID string) (OrderState, Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.orders[clientOrderID]
	if !ok {
		return OrderState{}, Response{Status: http.StatusNotFound, Headers: http.Header{}},
			fmt.Errorf("paper: order %s not found", clientOrderID)
	}
	return state, okResponse(), nil
}

func (c *PaperClient) GetAccount(ctx context.Context) (AccountState, Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	positions := make(map[string]Position, len(c.positions))
	for k, v := range c.positions {
		positions[k] = v
	}
	return AccountState{EquityUSDT: c.equity, Positions: positions}, okResponse(), nil
}

func (c *PaperClient) SetLeverage(ctx context.Context, symbol string, leverage int) (Response, error) {
	return okResponse(), nil
}

var _ ExchangeClient = (*PaperClient)(nil)
