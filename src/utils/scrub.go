package utils

import (
	"strings"
)

// MaxPayloadStringLen bounds string values stored into raw payload columns.
const MaxPayloadStringLen = 2048

var sensitiveKeys = map[string]struct{}{
	"token":         {},
	"secret":        {},
	"signature":     {},
	"api_key":       {},
	"password":      {},
	"authorization": {},
}

// ScrubPayload walks a decoded JSON document and removes entries whose key
// matches the sensitive set (case-insensitive). String values longer than
// MaxPayloadStringLen are truncated with an ellipsis marker. The input is
// not modified; a scrubbed copy is returned.
func ScrubPayload(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if _, bad := sensitiveKeys[strings.ToLower(k)]; bad {
				continue
			}
			out[k] = ScrubPayload(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(val))
		for _, inner := range val {
			out = append(out, ScrubPayload(inner))
		}
		return out
	case string:
		return TruncateString(val, MaxPayloadStringLen)
	default:
		return v
	}
}

// TruncateString shortens s to at most max runes, appending an ellipsis
// marker when truncation happened.
func TruncateString(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
