package engine

import (
	"testing"
)

func TestClientOrderIDRoundTrip(t *testing.T) {
	nonce := Nonce("trace-abc")
	id := BuildClientOrderID("BTCUSDT", "BUY", "15m", 1748822400000, nonce)

	parsed, err := ParseClientOrderID(id)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if parsed.Symbol != "BTCUSDT" ||
		parsed.Side != "BUY" ||
		parsed.Timeframe != "15m" ||
		parsed.BarCloseTs != 1748822400000 ||
		parsed.Nonce != nonce {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
}

func TestNonceStableForSameTrace(t *testing.T) {
	a := Nonce("trace-1")
	b := Nonce("trace-1")
	if a != b {
		t.Fatalf("same trace must give the same nonce: %s vs %s", a, b)
	}
	if len(a) != 8 {
		t.Fatalf("nonce must be a short 8-char hash, got %q", a)
	}

	if Nonce("trace-2") == a {
		t.Fatalf("different traces should give different nonces")
	}
}

func TestRetrySameDecisionReusesID(t *testing.T) {
	// a retry of the same decision carries the same trace, so the full id
	// is byte-identical
	first := BuildClientOrderID("ETHUSDT", "BUY", "15m", 1748823300000, Nonce("decision-trace"))
	retry := BuildClientOrderID("ETHUSDT", "BUY", "15m", 1748823300000, Nonce("decision-trace"))
	if first != retry {
		t.Fatalf("retries must reuse the client order id: %s vs %s", first, retry)
	}
}

func TestParseRejectsMalformedIDs(t *testing.T) {
	bad := []string{
		"",
		"asv8-BTCUSDT-BUY-15m-123",
		"other-BTCUSDT-BUY-15m-123-abcd1234",
		"asv8-BTCUSDT-BUY-15m-notanumber-abcd1234",
		"asv8-BTCUSDT-BUY-15m-123-abcd1234-extra",
	}
	for _, id := range bad {
		if _, err := ParseClientOrderID(id); err == nil {
			t.Fatalf("expected parse error for %q", id)
		}
	}
}
