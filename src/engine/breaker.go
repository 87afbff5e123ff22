package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"alphasniper/src/model"
	"alphasniper/src/notify"
	"alphasniper/src/repository"
)

const (
	breakerOrderErrorMax = 5
	breakerRateLimitMax  = 10
	breakerWindow        = time.Minute
	breakerDrawdownPct   = 0.05
)

// ConfigWriter is the slice of ConfigRepository the breaker needs.
type ConfigWriter interface {
	Write(ctx context.Context, in repository.WriteInput) error
}

// Breaker aggregates failure signals and self-halts trading when any
// threshold breaches. It never clears itself; resumption is an explicit
// operator command.
type Breaker struct {
	mu sync.Mutex

	orderErrAt []time.Time
	rateLimAt  []time.Time
	tripped    bool

	configs  ConfigWriter
	notifier notify.Notifier
	now      func() time.Time
}

func NewBreaker(configs ConfigWriter, notifier notify.Notifier) *Breaker {
	return &Breaker{
		configs:  configs,
		notifier: notifier,
		now:      time.Now,
	}
}

// Tripped reports whether the breaker has already halted trading.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// RecordOrderError registers one failed order submission. Five consecutive
// errors inside the window trip the breaker.
func (b *Breaker) RecordOrderError(ctx context.Context, traceID string) {
	b.mu.Lock()
	now := b.now()
	b.orderErrAt = prune(append(b.orderErrAt, now), now, breakerWindow)
	trip := !b.tripped && len(b.orderErrAt) >= breakerOrderErrorMax
	if trip {
		b.tripped = true
	}
	count := len(b.orderErrAt)
	b.mu.Unlock()

	if trip {
		b.halt(ctx, traceID, model.ReasonBreakerOrderErrors,
			fmt.Sprintf("%d consecutive order errors within %s", count, breakerWindow))
	}
}

// RecordOrderSuccess resets the consecutive order error count.
func (b *Breaker) RecordOrderSuccess() {
	b.mu.Lock()
	b.orderErrAt = nil
	b.mu.Unlock()
}

// RecordRateLimit registers one 429/418 observation, wired to the rate
// limiter's breaker signal.
func (b *Breaker) RecordRateLimit(ctx context.Context, traceID string) {
	b.mu.Lock()
	now := b.now()
	b.rateLimAt = prune(append(b.rateLimAt, now), now, breakerWindow)
	trip := !b.tripped && len(b.rateLimAt) >= breakerRateLimitMax
	if trip {
		b.tripped = true
	}
	count := len(b.rateLimAt)
	b.mu.Unlock()

	if trip {
		b.halt(ctx, traceID, model.ReasonBreakerRateLimit,
			fmt.Sprintf("%d rate-limit rejections within %s", count, breakerWindow))
	}
}

// CheckDrawdown trips when realized losses exceed 5% of equity.
func (b *Breaker) CheckDrawdown(ctx context.Context, traceID string, realizedPnl, equity float64) {
	if equity <= 0 || realizedPnl >= 0 {
		return
	}
	if -realizedPnl <= equity*breakerDrawdownPct {
		return
	}

	b.mu.Lock()
	trip := !b.tripped
	if trip {
		b.tripped = true
	}
	b.mu.Unlock()

	if trip {
		b.halt(ctx, traceID, model.ReasonBreakerDrawdown,
			fmt.Sprintf("realized drawdown %.2f exceeds %.0f%% of equity %.2f", -realizedPnl, breakerDrawdownPct*100, equity))
	}
}

func (b *Breaker) halt(ctx context.Context, traceID, reasonCode, reason string) {
	logger.WithFields(map[string]interface{}{
		"component":   "breaker",
		"reason_code": reasonCode,
		"trace_id":    traceID,
	}).Error("Circuit breaker tripped, halting trading: " + reason)

	if err := b.configs.Write(ctx, repository.WriteInput{
		Actor:      "circuit-breaker",
		Key:        model.ConfigKeyHaltTrading,
		Value:      "true",
		TraceID:    traceID,
		ReasonCode: reasonCode,
		Reason:     reason,
	}); err != nil {
		logger.WithError(err).Error("Breaker failed to persist HALT_TRADING")
	}

	if b.notifier != nil {
		b.notifier.SendSystemAlert("CIRCUIT_BREAKER", traceID, map[string]string{
			"reason_code": reasonCode,
			"reason":      reason,
		})
	}
}

func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cut := now.Add(-window)
	out := ts[:0]
	for _, t := range ts {
		if t.After(cut) {
			out = append(out, t)
		}
	}
	return out
}
