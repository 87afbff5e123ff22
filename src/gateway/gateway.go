package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"alphasniper/src/connectors"
	"alphasniper/src/ratelimit"
)

// Failure categories for exchange calls.
type ErrorKind int

const (
	ErrKindTransient ErrorKind = iota // timeout, 5xx, connection reset
	ErrKindRateLimited
	ErrKindTerminal // other 4xx, validation
)

// CallError is the gateway's classified failure.
type CallError struct {
	Kind       ErrorKind
	Status     int
	ReasonCode string
	Err        error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s (status %d): %v", e.ReasonCode, e.Status, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// IsTerminal reports whether err is a terminal gateway failure.
func IsTerminal(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Kind == ErrKindTerminal
}

// Default transient retry budget: one initial attempt plus three retries.
const defaultMaxRetries = 3

// Gateway is the single choke point for all exchange I/O. Every call
// acquires its group from the limiter first and reports the response back,
// so no request can bypass the adaptive budget.
type Gateway struct {
	client     connectors.ExchangeClient
	limiter    *ratelimit.Limiter
	maxRetries int
	sleep      func(context.Context, time.Duration) error
}

func New(client connectors.ExchangeClient, limiter *ratelimit.Limiter) *Gateway {
	return &Gateway{
		client:     client,
		limiter:    limiter,
		maxRetries: defaultMaxRetries,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// ExchangeName identifies the backing exchange in persisted events.
func (g *Gateway) ExchangeName() string { return g.client.Name() }

func classify(resp connectors.Response, err error) *CallError {
	if err == nil {
		return nil
	}

	status := resp.Status
	switch {
	case status == http.StatusTooManyRequests || status == 418:
		return &CallError{Kind: ErrKindRateLimited, Status: status, ReasonCode: "RATE_LIMIT_REJECTED", Err: err}
	case status >= 500, status == 0, status == http.StatusRequestTimeout:
		return &CallError{Kind: ErrKindTransient, Status: status, ReasonCode: "EXCHANGE_TRANSIENT", Err: err}
	default:
		return &CallError{Kind: ErrKindTerminal, Status: status, ReasonCode: terminalReason(err), Err: err}
	}
}

func terminalReason(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient"):
		return "EXCHANGE_INSUFFICIENT_BALANCE"
	case strings.Contains(msg, "lot size"), strings.Contains(msg, "quantity"):
		return "EXCHANGE_INVALID_QTY"
	case strings.Contains(msg, "price"):
		return "EXCHANGE_INVALID_PRICE"
	default:
		return "EXCHANGE_REJECTED"
	}
}

// call runs one guarded exchange request with transient retries. The
// original request (and its client order id) is reused verbatim on retry.
func (g *Gateway) call(ctx context.Context, group string, fn func() (connectors.Response, error)) error {
	var lastErr *CallError

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if err := g.limiter.Acquire(ctx, group); err != nil {
			return err
		}

		resp, err := fn()
		g.limiter.Observe(group, resp.Status, resp.Headers)

		ce := classify(resp, err)
		if ce == nil {
			return nil
		}
		lastErr = ce

		logger.WithFields(map[string]interface{}{
			"component":   "gateway",
			"group":       group,
			"attempt":     attempt,
			"status":      ce.Status,
			"reason_code": ce.ReasonCode,
		}).WithError(err).Warn("Exchange call failed")

		switch ce.Kind {
		case ErrKindTerminal:
			return ce
		case ErrKindRateLimited:
			// the limiter now carries the penalty; the next Acquire waits it out
			continue
		case ErrKindTransient:
			if attempt < g.maxRetries {
				if err := g.sleep(ctx, time.Duration(attempt+1)*500*time.Millisecond); err != nil {
					return err
				}
			}
		}
	}

	return lastErr
}

// GetKlines fetches candles through the market budget.
func (g *Gateway) GetKlines(ctx context.Context, symbol, interval string, startMs int64, limit int) ([]connectors.Kline, error) {
	var out []connectors.Kline
	err := g.call(ctx, ratelimit.GroupMarket, func() (connectors.Response, error) {
		klines, resp, err := g.client.GetKlines(ctx, symbol, interval, startMs, limit)
		if err == nil {
			out = klines
		}
		return resp, err
	})
	return out, err
}

// PlaceOrder submits an order through the order budget. Retries reuse the
// same client order id so the exchange deduplicates.
func (g *Gateway) PlaceOrder(ctx context.Context, req connectors.OrderRequest) (connectors.OrderState, error) {
	var out connectors.OrderState
	err := g.call(ctx, ratelimit.GroupOrder, func() (connectors.Response, error) {
		state, resp, err := g.client.PlaceOrder(ctx, req)
		if err == nil {
			out = state
		}
		return resp, err
	})
	return out, err
}

// CancelOrder cancels by client order id through the order budget.
func (g *Gateway) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	return g.call(ctx, ratelimit.GroupOrder, func() (connectors.Response, error) {
		return g.client.CancelOrder(ctx, symbol, clientOrderID)
	})
}

// GetOrder reads order state through the order budget.
func (g *Gateway) GetOrder(ctx context.Context, symbol, clientOrderID string) (connectors.OrderState, error) {
	var out connectors.OrderState
	err := g.call(ctx, ratelimit.GroupOrder, func() (connectors.Response, error) {
		state, resp, err := g.client.GetOrder(ctx, symbol, clientOrderID)
		if err == nil {
			out = state
		}
		return resp, err
	})
	return out, err
}

// GetAccount reads balances through the account budget.
func (g *Gateway) GetAccount(ctx context.Context) (connectors.AccountState, error) {
	var out connectors.AccountState
	err := g.call(ctx, ratelimit.GroupAccount, func() (connectors.Response, error) {
		state, resp, err := g.client.GetAccount(ctx)
		if err == nil {
			out = state
		}
		return resp, err
	})
	return out, err
}

// SetStop arms a protective stop-market order through the order budget.
func (g *Gateway) SetStop(ctx context.Context, req connectors.OrderRequest) (connectors.OrderState, error) {
	req.Type = "STOP_MARKET"
	req.ReduceOnly = true
	return g.PlaceOrder(ctx, req)
}

// SetLeverage configures symbol leverage through the account budget.
func (g *Gateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return g.call(ctx, ratelimit.GroupAccount, func() (connectors.Response, error) {
		return g.client.SetLeverage(ctx, symbol, leverage)
	})
}
