package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"
)

type fakeClock struct {
	at time.Time
}

func (c *fakeClock) now() time.Time { return c.at }

func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newTestLimiter(clock *fakeClock, opts ...Option) *Limiter {
	base := []Option{
		WithClock(clock.now),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			clock.advance(d)
			return nil
		}),
	}
	return New(append(base, opts...)...)
}

func resp429(retryAfter string) http.Header {
	h := http.Header{}
	if retryAfter != "" {
		h.Set("Retry-After", retryAfter)
	}
	return h
}

func TestConsecutive429sProduceMonotonicallyIncreasingBackoff(t *testing.T) {
	clock := &fakeClock{at: time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)}

	var backoffs []time.Duration
	l := newTestLimiter(clock, WithBackoffObserver(func(ev BackoffEvent) {
		backoffs = append(backoffs, ev.Backoff)
	}))

	for i := 0; i < 8; i++ {
		l.Observe(GroupOrder, http.StatusTooManyRequests, resp429(""))
	}

	if len(backoffs) != 8 {
		t.Fatalf("expected 8 backoff events, got %d", len(backoffs))
	}
	for i := 1; i < len(backoffs); i++ {
		if backoffs[i] < backoffs[i-1] {
			t.Fatalf("backoff must not decrease: step %d went %v -> %v", i, backoffs[i-1], backoffs[i])
		}
	}
	for _, b := range backoffs {
		if b > 30*time.Second {
			t.Fatalf("backoff exceeded 30s cap: %v", b)
		}
	}
	if last := backoffs[len(backoffs)-1]; last != 30*time.Second {
		t.Fatalf("deep stages should hit the cap, got %v", last)
	}
}

func TestRetryAfterHeaderDominatesComputedBackoff(t *testing.T) {
	clock := &fakeClock{at: time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock)

	start := clock.at
	l.Observe(GroupOrder, http.StatusTooManyRequests, resp429("5"))

	// the next acquire must wait out the full Retry-After window
	if err := l.Acquire(context.Background(), GroupOrder); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if waited := clock.at.Sub(start); waited < 5*time.Second {
		t.Fatalf("expected >= 5s of backoff before next call, got %v", waited)
	}
}

func TestSuccessfulCallResetsBackoffStage(t *testing.T) {
	clock := &fakeClock{at: time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)}

	var backoffs []time.Duration
	l := newTestLimiter(clock, WithBackoffObserver(func(ev BackoffEvent) {
		backoffs = append(backoffs, ev.Backoff)
	}))

	for i := 0; i < 4; i++ {
		l.Observe(GroupOrder, http.StatusTooManyRequests, resp429(""))
	}
	l.Observe(GroupOrder, http.StatusOK, http.Header{})
	l.Observe(GroupOrder, http.StatusTooManyRequests, resp429(""))

	first := backoffs[0]
	afterReset := backoffs[len(backoffs)-1]
	// stage restarts from the base schedule after one clean call
	if afterReset > 2*first {
		t.Fatalf("expected backoff to reset near base after a clean call, got %v (first %v)", afterReset, first)
	}
}

func TestUsedWeightHeaderUpdatesBudget(t *testing.T) {
	clock := &fakeClock{at: time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock)

	h := http.Header{}
	h.Set("X-Mbx-Used-Weight-1m", "1100")
	l.Observe(GroupMarket, http.StatusOK, h)

	m := l.Metrics()[GroupMarket]
	if m.UsedWeight != 1100 {
		t.Fatalf("expected used weight 1100 from header, got %d", m.UsedWeight)
	}
}

func TestMetricsCount429s(t *testing.T) {
	clock := &fakeClock{at: time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock)

	for i := 0; i < 3; i++ {
		l.Observe(GroupOrder, http.StatusTooManyRequests, resp429("2"))
	}

	m := l.Metrics()[GroupOrder]
	if m.Total429 < 3 {
		t.Fatalf("expected 429_total >= 3, got %d", m.Total429)
	}
}

func TestBreakerSignalFiresOnRepeated429s(t *testing.T) {
	clock := &fakeClock{at: time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)}

	tripped := 0
	l := newTestLimiter(clock, WithBreakerSignal(3, time.Minute, func(group string, count int) {
		tripped++
		if group != GroupOrder {
			t.Fatalf("unexpected group in breaker signal: %s", group)
		}
	}))

	for i := 0; i < 3; i++ {
		l.Observe(GroupOrder, http.StatusTooManyRequests, resp429(""))
	}

	if tripped == 0 {
		t.Fatalf("expected breaker signal after 3 429s inside the window")
	}
}
