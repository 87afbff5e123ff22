package utils

import (
	"time"
)

// HongKong is the display and scheduling timezone. Hong Kong has no DST,
// so a fixed offset is safe even when the tzdata database is unavailable.
var HongKong = loadHongKong()

func loadHongKong() *time.Location {
	loc, err := time.LoadLocation("Asia/Hong_Kong")
	if err != nil {
		return time.FixedZone("HKT", 8*60*60)
	}
	return loc
}

// NowMs returns the current time as UTC epoch milliseconds.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// ToHK converts a time to Hong Kong wall clock.
func ToHK(t time.Time) time.Time {
	return t.In(HongKong)
}

// MsToUTC converts epoch milliseconds to a UTC time.
func MsToUTC(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// BarOpenMs truncates a timestamp to the open time of the bar that
// contains it, for the given interval.
func BarOpenMs(t time.Time, interval time.Duration) int64 {
	ms := t.UnixMilli()
	step := interval.Milliseconds()
	return ms - ms%step
}

// BarCloseMs returns the close timestamp of the bar whose open time is openMs.
func BarCloseMs(openMs int64, interval time.Duration) int64 {
	return openMs + interval.Milliseconds()
}

// IsBarClosed reports whether the bar opened at openMs has fully closed at now.
func IsBarClosed(openMs int64, interval time.Duration, now time.Time) bool {
	return BarCloseMs(openMs, interval) <= now.UnixMilli()
}

// IsTickBoundary reports whether the given HK wall-clock time falls on a
// strategy tick: minute divisible by the interval, within the first
// toleranceSeconds of the minute.
func IsTickBoundary(hk time.Time, intervalMinutes int, toleranceSeconds int) bool {
	if intervalMinutes <= 0 {
		return false
	}
	return hk.Minute()%intervalMinutes == 0 && hk.Second() <= toleranceSeconds
}

// NextTickSleep returns how long to sleep until the next interval boundary
// in HK time.
func NextTickSleep(now time.Time, interval time.Duration) time.Duration {
	hk := now.In(HongKong)
	epoch := hk.Unix()
	step := int64(interval.Seconds())
	next := (epoch/step + 1) * step
	return time.Duration(next-epoch) * time.Second
}

// ParseInterval maps a timeframe string like "15m" or "1h" to a duration.
func ParseInterval(tf string) (time.Duration, bool) {
	switch tf {
	case "1m":
		return time.Minute, true
	case "5m":
		return 5 * time.Minute, true
	case "15m":
		return 15 * time.Minute, true
	case "1h":
		return time.Hour, true
	case "4h":
		return 4 * time.Hour, true
	default:
		return 0, false
	}
}
