package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"alphasniper/src/utils"
)

// Notifier is the outbound alert contract. Implementations must be safe
// for concurrent use.
type Notifier interface {
	SendSystemAlert(event string, traceID string, kv map[string]string)
	SendTradeAlert(event string, traceID string, kv map[string]string)
}

// FormatAlert renders one alert deterministically: the injected keys
// ts_hk, ts_utc, event, trace_id lead in that order, remaining keys follow
// sorted lexically. Same input, same output, so alerts diff cleanly.
func FormatAlert(event, traceID string, kv map[string]string, now time.Time) string {
	lines := make([]string, 0, len(kv)+4)
	lines = append(lines,
		"ts_hk: "+utils.ToHK(now).Format("2006-01-02 15:04:05"),
		"ts_utc: "+now.UTC().Format("2006-01-02 15:04:05"),
		"event: "+event,
		"trace_id: "+traceID,
	)

	keys := make([]string, 0, len(kv))
	for k := range kv {
		switch k {
		case "ts_hk", "ts_utc", "event", "trace_id":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, kv[k]))
	}
	return strings.Join(lines, "\n")
}

// LogNotifier writes alerts to the structured log only. Used in paper mode
// and tests, and as the fallback when no telegram credentials are set.
type LogNotifier struct {
	now func() time.Time
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{now: time.Now}
}

func (n *LogNotifier) SendSystemAlert(event, traceID string, kv map[string]string) {
	logger.WithFields(map[string]interface{}{
		"component": "notify",
		"kind":      "system",
		"event":     event,
		"trace_id":  traceID,
	}).Warn(FormatAlert(event, traceID, kv, n.now()))
}

func (n *LogNotifier) SendTradeAlert(event, traceID string, kv map[string]string) {
	logger.WithFields(map[string]interface{}{
		"component": "notify",
		"kind":      "trade",
		"event":     event,
		"trace_id":  traceID,
	}).Info(FormatAlert(event, traceID, kv, n.now()))
}
