package ratelimit

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

// Request groups. Each group owns an independent weight budget and backoff
// state shared by every caller in the process.
const (
	GroupMarket  = "market"
	GroupAccount = "account"
	GroupOrder   = "order"
)

const (
	backoffBase   = 500 * time.Millisecond
	backoffFactor = 2
	backoffCap    = 30 * time.Second
	jitterPct     = 0.20
)

// Header names advertised by binance-style exchanges.
const (
	headerUsedWeight = "X-Mbx-Used-Weight-1m"
	headerOrderCount = "X-Mbx-Order-Count-10s"
	headerRetryAfter = "Retry-After"
)

// BackoffEvent describes one rate-limit penalty, reported to the observer
// so it can land in the audit stream.
type BackoffEvent struct {
	Group      string
	Status     int
	Backoff    time.Duration
	RetryAfter time.Duration
	Stage      int
}

// GroupMetrics is a point-in-time snapshot of one group's counters.
type GroupMetrics struct {
	Requests     int64         `json:"requests"`
	Total429     int64         `json:"total_429"`
	TotalWait    time.Duration `json:"total_wait"`
	UsedWeight   int           `json:"used_weight"`
	BackoffUntil time.Time     `json:"backoff_until"`
}

type groupState struct {
	ceiling      int
	used         int
	windowStart  time.Time
	window       time.Duration
	backoffUntil time.Time
	backoffStage int
	consecutive  int
	firstIn      time.Time

	requests  int64
	total429  int64
	totalWait time.Duration
}

// Limiter is the process-wide adaptive rate limiter. No exchange call may
// bypass Acquire/Observe.
type Limiter struct {
	mu     sync.Mutex
	groups map[string]*groupState

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
	rand  *rand.Rand

	onBackoff     func(BackoffEvent)
	onBreakerTrip func(group string, count429 int)
	breakerMax429 int
	breakerWindow time.Duration
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSleeper injects the cooperative wait primitive. Used by tests.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// WithBackoffObserver registers the RATE_LIMIT_BACKOFF event sink.
func WithBackoffObserver(fn func(BackoffEvent)) Option {
	return func(l *Limiter) { l.onBackoff = fn }
}

// WithBreakerSignal registers the consecutive-429 circuit breaker signal.
func WithBreakerSignal(max429 int, window time.Duration, fn func(group string, count429 int)) Option {
	return func(l *Limiter) {
		l.breakerMax429 = max429
		l.breakerWindow = window
		l.onBreakerTrip = fn
	}
}

// New creates a limiter with the three standard groups.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		groups: map[string]*groupState{
			GroupMarket:  {ceiling: 1200, window: time.Minute},
			GroupAccount: {ceiling: 1200, window: time.Minute},
			GroupOrder:   {ceiling: 50, window: 10 * time.Second},
		},
		now:           time.Now,
		rand:          rand.New(rand.NewSource(time.Now().UnixNano())),
		breakerMax429: 10,
		breakerWindow: time.Minute,
	}
	l.sleep = func(ctx context.Context, d time.Duration) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks cooperatively until the group is under its ceiling and any
// active backoff has elapsed, then consumes one weight unit.
func (l *Limiter) Acquire(ctx context.Context, group string) error {
	for {
		wait, ok := l.tryAcquire(group)
		if ok {
			return nil
		}

		logger.WithFields(map[string]interface{}{
			"component": "ratelimit",
			"group":     group,
			"wait":      wait.String(),
		}).Debug("Rate limiter waiting")

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}

		l.mu.Lock()
		l.groups[group].totalWait += wait
		l.mu.Unlock()
	}
}

// tryAcquire returns (0, true) on success or (wait, false) when the caller
// must sleep first.
func (l *Limiter) tryAcquire(group string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	g := l.group(group)
	now := l.now()

	if until := g.backoffUntil; now.Before(until) {
		return until.Sub(now), false
	}

	if g.windowStart.IsZero() || now.Sub(g.windowStart) >= g.window {
		g.windowStart = now
		g.used = 0
	}

	if g.used+1 > g.ceiling {
		return g.windowStart.Add(g.window).Sub(now), false
	}

	g.used++
	g.requests++
	return 0, true
}

// Observe must be called after every exchange response, including failures.
// It updates consumed weight from response headers and drives the backoff
// machine on 429/418.
func (l *Limiter) Observe(group string, status int, headers http.Header) {
	l.mu.Lock()
	g := l.group(group)
	now := l.now()

	if headers != nil {
		if v := headerInt(headers, headerUsedWeight); v >= 0 {
			g.used = v
		}
		if group == GroupOrder {
			if v := headerInt(headers, headerOrderCount); v >= 0 {
				g.used = v
			}
		}
	}

	if status == http.StatusTooManyRequests || status == 418 {
		g.total429++

		if g.firstIn.IsZero() || now.Sub(g.firstIn) > l.breakerWindow {
			g.firstIn = now
			g.consecutive = 0
		}
		g.consecutive++

		g.backoffStage++
		computed := backoffForStage(g.backoffStage)
		if computed < backoffCap {
			jitter := time.Duration(float64(computed) * jitterPct * (l.rand.Float64()*2 - 1))
			computed += jitter
			if computed > backoffCap {
				computed = backoffCap
			}
		}

		retryAfter := retryAfterDuration(headers)
		backoff := computed
		if retryAfter > backoff {
			backoff = retryAfter
		}
		g.backoffUntil = now.Add(backoff)

		ev := BackoffEvent{
			Group:      group,
			Status:     status,
			Backoff:    backoff,
			RetryAfter: retryAfter,
			Stage:      g.backoffStage,
		}
		trip := l.onBreakerTrip != nil && g.consecutive >= l.breakerMax429
		count := g.consecutive
		onBackoff := l.onBackoff
		l.mu.Unlock()

		logger.WithFields(map[string]interface{}{
			"component":   "ratelimit",
			"group":       group,
			"status":      status,
			"backoff":     backoff.String(),
			"stage":       ev.Stage,
			"reason_code": "RATE_LIMIT_BACKOFF",
		}).Warn("Rate limit hit, backing off")

		if onBackoff != nil {
			onBackoff(ev)
		}
		if trip {
			l.onBreakerTrip(group, count)
		}
		return
	}

	// one clean, non-rate-limited call resets the backoff schedule
	g.backoffStage = 0
	g.consecutive = 0
	g.firstIn = time.Time{}
	l.mu.Unlock()
}

// Metrics returns a snapshot of all group counters.
func (l *Limiter) Metrics() map[string]GroupMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]GroupMetrics, len(l.groups))
	for name, g := range l.groups {
		out[name] = GroupMetrics{
			Requests:     g.requests,
			Total429:     g.total429,
			TotalWait:    g.totalWait,
			UsedWeight:   g.used,
			BackoffUntil: g.backoffUntil,
		}
	}
	return out
}

func (l *Limiter) group(name string) *groupState {
	g, ok := l.groups[name]
	if !ok {
		g = l.groups[GroupMarket]
	}
	return g
}

func backoffForStage(stage int) time.Duration {
	d := backoffBase
	for i := 1; i < stage; i++ {
		d *= backoffFactor
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}

func headerInt(h http.Header, key string) int {
	raw := strings.TrimSpace(h.Get(key))
	if raw == "" {
		return -1
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}

func retryAfterDuration(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	raw := strings.TrimSpace(h.Get(headerRetryAfter))
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
