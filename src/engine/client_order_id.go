package engine

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const clientOrderIDPrefix = "asv8"

// StopOrderSuffix derives the protective stop's client order id from its
// parent entry order.
const StopOrderSuffix = "-stop"

// ExitOrderSuffix derives the closing order's client order id from the
// entry order, so emergency exits retry idempotently too.
const ExitOrderSuffix = "-exit"

// ParsedClientOrderID is the round-trippable decomposition of one id.
type ParsedClientOrderID struct {
	Symbol     string
	Side       string
	Timeframe  string
	BarCloseTs int64
	Nonce      string
}

// Nonce derives the stable short hash for one decision from its trace id.
// Retries of the same decision reuse the trace, so they reuse the id.
func Nonce(traceID string) string {
	sum := sha1.Sum([]byte(traceID))
	return hex.EncodeToString(sum[:])[:8]
}

// BuildClientOrderID renders the idempotency key for one order decision:
// asv8-{symbol}-{side}-{timeframe}-{bar_close_ts}-{nonce}.
// The symbol must not contain separator dashes (exchange perps like
// BTCUSDT never do).
func BuildClientOrderID(symbol, side, timeframe string, barCloseTs int64, nonce string) string {
	return fmt.Sprintf("%s-%s-%s-%s-%d-%s",
		clientOrderIDPrefix, symbol, side, timeframe, barCloseTs, nonce)
}

// ParseClientOrderID reverses BuildClientOrderID.
func ParseClientOrderID(id string) (*ParsedClientOrderID, error) {
	parts := strings.Split(id, "-")
	if len(parts) != 6 || parts[0] != clientOrderIDPrefix {
		return nil, fmt.Errorf("malformed client order id: %q", id)
	}

	ts, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed bar close ts in %q: %w", id, err)
	}

	return &ParsedClientOrderID{
		Symbol:     parts[1],
		Side:       parts[2],
		Timeframe:  parts[3],
		BarCloseTs: ts,
		Nonce:      parts[5],
	}, nil
}
