package utils

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestScrubPayloadRemovesSensitiveKeys(t *testing.T) {
	raw := `{
		"symbol": "BTCUSDT",
		"api_key": "abc",
		"Signature": "deadbeef",
		"nested": {"password": "x", "qty": 1.5},
		"list": [{"Authorization": "Bearer x", "ok": true}]
	}`

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	scrubbed := ScrubPayload(doc).(map[string]interface{})

	if _, ok := scrubbed["api_key"]; ok {
		t.Fatalf("api_key should have been removed")
	}
	if _, ok := scrubbed["Signature"]; ok {
		t.Fatalf("Signature should have been removed regardless of case")
	}

	nested := scrubbed["nested"].(map[string]interface{})
	if _, ok := nested["password"]; ok {
		t.Fatalf("nested password should have been removed")
	}
	if nested["qty"].(float64) != 1.5 {
		t.Fatalf("non-sensitive nested values must survive")
	}

	item := scrubbed["list"].([]interface{})[0].(map[string]interface{})
	if _, ok := item["Authorization"]; ok {
		t.Fatalf("Authorization inside arrays should have been removed")
	}
	if item["ok"].(bool) != true {
		t.Fatalf("non-sensitive array values must survive")
	}
}

func TestScrubPayloadTruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("a", MaxPayloadStringLen+100)
	doc := map[string]interface{}{"note": long}

	scrubbed := ScrubPayload(doc).(map[string]interface{})
	got := scrubbed["note"].(string)

	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis marker on truncated string")
	}
	if len(got) > MaxPayloadStringLen+len("…") {
		t.Fatalf("truncated string too long: %d", len(got))
	}
}

func TestTickBoundary(t *testing.T) {
	tests := []struct {
		min, sec int
		expected bool
	}{
		{0, 0, true},
		{15, 0, true},
		{15, 3, true},
		{15, 4, false},
		{30, 1, true},
		{14, 0, false},
		{59, 0, false},
	}

	for _, tt := range tests {
		hk := time.Date(2025, 6, 2, 15, tt.min, tt.sec, 0, HongKong)
		if got := IsTickBoundary(hk, 15, 3); got != tt.expected {
			t.Fatalf("minute=%d second=%d: expected %v, got %v", tt.min, tt.sec, tt.expected, got)
		}
	}
}
