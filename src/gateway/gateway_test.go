package gateway

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"alphasniper/src/connectors"
	"alphasniper/src/ratelimit"
)

// faultClient scripts one response per call, in order.
type faultClient struct {
	script []scripted
	calls  int
	ids    []string
}

type scripted struct {
	status     int
	retryAfter string
	err        error
}

func (f *faultClient) next() connectors.Response {
	s := f.script[f.calls]
	f.calls++
	h := http.Header{}
	if s.retryAfter != "" {
		h.Set("Retry-After", s.retryAfter)
	}
	return connectors.Response{Status: s.status, Headers: h}
}

func (f *faultClient) Name() string { return "fault" }

func (f *faultClient) PlaceOrder(_ context.Context, req connectors.OrderRequest) (connectors.OrderState, connectors.Response, error) {
	f.ids = append(f.ids, req.ClientOrderID)
	s := f.script[f.calls]
	resp := f.next()
	if s.err != nil {
		return connectors.OrderState{}, resp, s.err
	}
	return connectors.OrderState{
		ClientOrderID: req.ClientOrderID,
		Status:        "FILLED",
		ExecutedQty:   req.Quantity,
	}, resp, nil
}

func (f *faultClient) GetKlines(context.Context, string, string, int64, int) ([]connectors.Kline, connectors.Response, error) {
	return nil, f.next(), nil
}
func (f *faultClient) CancelOrder(context.Context, string, string) (connectors.Response, error) {
	return f.next(), nil
}
func (f *faultClient) GetOrder(context.Context, string, string) (connectors.OrderState, connectors.Response, error) {
	return connectors.OrderState{}, f.next(), nil
}
func (f *faultClient) GetAccount(context.Context) (connectors.AccountState, connectors.Response, error) {
	return connectors.AccountState{}, f.next(), nil
}
func (f *faultClient) SetLeverage(context.Context, string, int) (connectors.Response, error) {
	return f.next(), nil
}

type testClock struct{ at time.Time }

func (c *testClock) now() time.Time          { return c.at }
func (c *testClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newTestGateway(client connectors.ExchangeClient, clock *testClock, backoffs *[]ratelimit.BackoffEvent) *Gateway {
	opts := []ratelimit.Option{
		ratelimit.WithClock(clock.now),
		ratelimit.WithSleeper(func(_ context.Context, d time.Duration) error {
			clock.advance(d)
			return nil
		}),
	}
	if backoffs != nil {
		opts = append(opts, ratelimit.WithBackoffObserver(func(ev ratelimit.BackoffEvent) {
			*backoffs = append(*backoffs, ev)
		}))
	}
	limiter := ratelimit.New(opts...)

	g := New(client, limiter)
	g.sleep = func(_ context.Context, d time.Duration) error {
		clock.advance(d)
		return nil
	}
	return g
}

func orderReq(cid string) connectors.OrderRequest {
	return connectors.OrderRequest{
		Symbol:        "BTCUSDT",
		Side:          "BUY",
		Type:          "MARKET",
		Quantity:      decimal.NewFromFloat(0.01),
		ClientOrderID: cid,
	}
}

func TestThree429sBackOffAtLeastRetryAfterSum(t *testing.T) {
	clock := &testClock{at: time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)}

	var backoffs []ratelimit.BackoffEvent
	client := &faultClient{script: []scripted{
		{status: 429, retryAfter: "2", err: fmt.Errorf("rate limited")},
		{status: 429, retryAfter: "2", err: fmt.Errorf("rate limited")},
		{status: 429, retryAfter: "2", err: fmt.Errorf("rate limited")},
		{status: 200},
	}}
	g := newTestGateway(client, clock, &backoffs)

	start := clock.at
	state, err := g.PlaceOrder(context.Background(), orderReq("cid-429"))
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if state.Status != "FILLED" {
		t.Fatalf("expected fill after backoff, got %s", state.Status)
	}

	// three Retry-After=2 penalties: the final attempt starts >= 6s after the first
	if elapsed := clock.at.Sub(start); elapsed < 6*time.Second {
		t.Fatalf("expected >= 6s total backoff, got %v", elapsed)
	}
	if len(backoffs) != 3 {
		t.Fatalf("expected 3 RATE_LIMIT_BACKOFF events, got %d", len(backoffs))
	}
	if m := g.limiter.Metrics()[ratelimit.GroupOrder]; m.Total429 < 3 {
		t.Fatalf("expected 429_total >= 3 in metrics, got %d", m.Total429)
	}
}

func TestTransientErrorsRetryWithSameClientOrderID(t *testing.T) {
	clock := &testClock{at: time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)}

	client := &faultClient{script: []scripted{
		{status: 503, err: fmt.Errorf("service unavailable")},
		{status: 0, err: fmt.Errorf("connection reset")},
		{status: 200},
	}}
	g := newTestGateway(client, clock, nil)

	if _, err := g.PlaceOrder(context.Background(), orderReq("cid-stable")); err != nil {
		t.Fatalf("expected success after transient retries, got %v", err)
	}

	if len(client.ids) != 3 {
		t.Fatalf("expected 3 submissions, got %d", len(client.ids))
	}
	for _, id := range client.ids {
		if id != "cid-stable" {
			t.Fatalf("client order id changed across retries: %v", client.ids)
		}
	}
}

func TestTerminalErrorReturnsImmediately(t *testing.T) {
	clock := &testClock{at: time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)}

	client := &faultClient{script: []scripted{
		{status: 400, err: fmt.Errorf("Account has insufficient balance")},
		{status: 200},
	}}
	g := newTestGateway(client, clock, nil)

	_, err := g.PlaceOrder(context.Background(), orderReq("cid-term"))
	if err == nil {
		t.Fatalf("expected terminal error")
	}
	if !IsTerminal(err) {
		t.Fatalf("expected terminal classification, got %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("terminal errors must not retry, got %d calls", client.calls)
	}
}

func TestTransientBudgetExhaustionSurfacesLastError(t *testing.T) {
	clock := &testClock{at: time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)}

	client := &faultClient{script: []scripted{
		{status: 500, err: fmt.Errorf("boom")},
		{status: 500, err: fmt.Errorf("boom")},
		{status: 500, err: fmt.Errorf("boom")},
		{status: 500, err: fmt.Errorf("boom")},
	}}
	g := newTestGateway(client, clock, nil)

	_, err := g.PlaceOrder(context.Background(), orderReq("cid-exhaust"))
	if err == nil {
		t.Fatalf("expected failure after exhausting retries")
	}
	if IsTerminal(err) {
		t.Fatalf("transient exhaustion should stay transient, got terminal")
	}
	if client.calls != 4 {
		t.Fatalf("expected 1 attempt + 3 retries, got %d calls", client.calls)
	}
}
