package notify

import (
	"strings"
	"testing"
	"time"
)

func TestFormatAlertDeterministicOrdering(t *testing.T) {
	now := time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)

	kv := map[string]string{
		"symbol":   "BTCUSDT",
		"qty":      "0.01",
		"leverage": "3",
		"price":    "65000",
	}

	first := FormatAlert("POSITION_OPENED", "trace-1", kv, now)
	for i := 0; i < 20; i++ {
		if got := FormatAlert("POSITION_OPENED", "trace-1", kv, now); got != first {
			t.Fatalf("alert formatting must be deterministic:\n%s\nvs\n%s", first, got)
		}
	}

	lines := strings.Split(first, "\n")
	if !strings.HasPrefix(lines[0], "ts_hk: ") ||
		!strings.HasPrefix(lines[1], "ts_utc: ") ||
		!strings.HasPrefix(lines[2], "event: POSITION_OPENED") ||
		!strings.HasPrefix(lines[3], "trace_id: trace-1") {
		t.Fatalf("injected keys must lead in fixed order, got:\n%s", first)
	}

	rest := lines[4:]
	for i := 1; i < len(rest); i++ {
		if rest[i-1] > rest[i] {
			t.Fatalf("remaining keys must be sorted, got:\n%s", strings.Join(rest, "\n"))
		}
	}
}

func TestFormatAlertHKOffset(t *testing.T) {
	now := time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)
	out := FormatAlert("X", "t", nil, now)

	// UTC 07:00 is 15:00 in Hong Kong
	if !strings.Contains(out, "ts_hk: 2025-06-02 15:00:00") {
		t.Fatalf("expected HK timestamp at +8, got:\n%s", out)
	}
	if !strings.Contains(out, "ts_utc: 2025-06-02 07:00:00") {
		t.Fatalf("expected UTC timestamp, got:\n%s", out)
	}
}

func TestFormatAlertCallerCannotOverrideInjectedKeys(t *testing.T) {
	now := time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)
	out := FormatAlert("REAL_EVENT", "real-trace", map[string]string{
		"event":    "spoofed",
		"trace_id": "spoofed",
	}, now)

	if strings.Contains(out, "spoofed") {
		t.Fatalf("caller-provided event/trace_id must not override injected values:\n%s", out)
	}
}
