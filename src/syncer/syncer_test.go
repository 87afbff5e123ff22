package syncer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"alphasniper/src/connectors"
)

func kline(openMs int64, step time.Duration) connectors.Kline {
	return connectors.Kline{
		OpenTimeMs:  openMs,
		CloseTimeMs: openMs + step.Milliseconds() - 1,
		Open:        decimal.NewFromInt(100),
		High:        decimal.NewFromInt(101),
		Low:         decimal.NewFromInt(99),
		Close:       decimal.NewFromInt(100),
		Volume:      decimal.NewFromInt(10),
	}
}

func TestFilterClosedDropsUnfinishedBars(t *testing.T) {
	step := 15 * time.Minute
	now := time.Date(2025, 6, 2, 7, 5, 0, 0, time.UTC)

	// bars opening 06:30 and 06:45 are closed at 07:05; 07:00 is mid-flight
	bars := []connectors.Kline{
		kline(time.Date(2025, 6, 2, 6, 30, 0, 0, time.UTC).UnixMilli(), step),
		kline(time.Date(2025, 6, 2, 6, 45, 0, 0, time.UTC).UnixMilli(), step),
		kline(time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC).UnixMilli(), step),
	}

	closed := FilterClosed(bars, now)
	if len(closed) != 2 {
		t.Fatalf("expected 2 closed bars, got %d", len(closed))
	}
	for _, k := range closed {
		if k.CloseTimeMs > now.UnixMilli() {
			t.Fatalf("bar closing in the future leaked through: %d", k.CloseTimeMs)
		}
	}
}

func TestFilterClosedExactBoundary(t *testing.T) {
	step := 15 * time.Minute
	openMs := time.Date(2025, 6, 2, 6, 45, 0, 0, time.UTC).UnixMilli()
	bar := kline(openMs, step)

	// exactly at the close timestamp the bar counts as closed
	atClose := time.UnixMilli(bar.CloseTimeMs).UTC()
	if got := FilterClosed([]connectors.Kline{bar}, atClose); len(got) != 1 {
		t.Fatalf("bar closing exactly now should be stored")
	}

	justBefore := atClose.Add(-time.Millisecond)
	if got := FilterClosed([]connectors.Kline{bar}, justBefore); len(got) != 0 {
		t.Fatalf("bar still open must not be stored")
	}
}
