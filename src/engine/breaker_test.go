package engine

import (
	"context"
	"testing"
	"time"

	"alphasniper/src/model"
	"alphasniper/src/repository"
)

type recordingConfigWriter struct {
	writes []repository.WriteInput
}

func (w *recordingConfigWriter) Write(_ context.Context, in repository.WriteInput) error {
	w.writes = append(w.writes, in)
	return nil
}

type recordingNotifier struct {
	system []string
	trade  []string
}

func (n *recordingNotifier) SendSystemAlert(event, traceID string, kv map[string]string) {
	n.system = append(n.system, event+":"+kv["reason_code"])
}

func (n *recordingNotifier) SendTradeAlert(event, traceID string, kv map[string]string) {
	n.trade = append(n.trade, event)
}

func newTestBreaker() (*Breaker, *recordingConfigWriter, *recordingNotifier, *time.Time) {
	writer := &recordingConfigWriter{}
	notifier := &recordingNotifier{}
	at := time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)

	b := NewBreaker(writer, notifier)
	b.now = func() time.Time { return at }
	return b, writer, notifier, &at
}

func TestBreakerTripsOnConsecutiveOrderErrors(t *testing.T) {
	b, writer, notifier, _ := newTestBreaker()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.RecordOrderError(ctx, "trace-err")
	}

	if !b.Tripped() {
		t.Fatalf("expected breaker to trip after 5 order errors")
	}
	if len(writer.writes) != 1 {
		t.Fatalf("expected exactly one HALT_TRADING write, got %d", len(writer.writes))
	}
	w := writer.writes[0]
	if w.Key != model.ConfigKeyHaltTrading || w.Value != "true" {
		t.Fatalf("expected HALT_TRADING=true, got %s=%s", w.Key, w.Value)
	}
	if w.ReasonCode != model.ReasonBreakerOrderErrors {
		t.Fatalf("expected reason %s, got %s", model.ReasonBreakerOrderErrors, w.ReasonCode)
	}
	if len(notifier.system) != 1 {
		t.Fatalf("expected one system alert, got %d", len(notifier.system))
	}
}

func TestBreakerSuccessResetsErrorStreak(t *testing.T) {
	b, writer, _, _ := newTestBreaker()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		b.RecordOrderError(ctx, "t")
	}
	b.RecordOrderSuccess()
	for i := 0; i < 4; i++ {
		b.RecordOrderError(ctx, "t")
	}

	if b.Tripped() {
		t.Fatalf("a success between errors must reset the streak")
	}
	if len(writer.writes) != 0 {
		t.Fatalf("no halt expected, got %d writes", len(writer.writes))
	}
}

func TestBreakerWindowExpiresOldErrors(t *testing.T) {
	b, _, _, at := newTestBreaker()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		b.RecordOrderError(ctx, "t")
	}
	*at = at.Add(2 * time.Minute)
	b.RecordOrderError(ctx, "t")

	if b.Tripped() {
		t.Fatalf("errors outside the 60s window must not count")
	}
}

func TestBreakerTripsOnRateLimitFlood(t *testing.T) {
	b, writer, _, _ := newTestBreaker()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		b.RecordRateLimit(ctx, "trace-429")
	}

	if !b.Tripped() {
		t.Fatalf("expected breaker to trip after 10 rate limits in the window")
	}
	if writer.writes[0].ReasonCode != model.ReasonBreakerRateLimit {
		t.Fatalf("expected %s, got %s", model.ReasonBreakerRateLimit, writer.writes[0].ReasonCode)
	}
}

func TestBreakerTripsOnDrawdown(t *testing.T) {
	b, writer, _, _ := newTestBreaker()
	ctx := context.Background()

	// 5% of 500 is 25; a 30 USDT realized loss breaches
	b.CheckDrawdown(ctx, "trace-dd", -30, 500)

	if !b.Tripped() {
		t.Fatalf("expected drawdown trip")
	}
	if writer.writes[0].ReasonCode != model.ReasonBreakerDrawdown {
		t.Fatalf("expected %s, got %s", model.ReasonBreakerDrawdown, writer.writes[0].ReasonCode)
	}

	// breaker never self-clears: further profits change nothing
	b.CheckDrawdown(ctx, "trace-dd", 100, 500)
	if !b.Tripped() {
		t.Fatalf("breaker must stay tripped until an operator resumes")
	}
}

func TestBreakerTripsOnlyOnce(t *testing.T) {
	b, writer, _, _ := newTestBreaker()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		b.RecordOrderError(ctx, "t")
	}

	if len(writer.writes) != 1 {
		t.Fatalf("breaker must write HALT_TRADING exactly once, got %d", len(writer.writes))
	}
}
