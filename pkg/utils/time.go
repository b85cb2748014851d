package utils

import "time"

// Now returns current time (swappable for deterministic tests).
var Now = time.Now

// EpochMillis converts a time to Unix epoch milliseconds, the wire format for
// synchronized-start timestamps.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromEpochMillis converts Unix epoch milliseconds back into a time.
func FromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// FileTimestamp formats a time for use inside generated file names.
func FileTimestamp(t time.Time) string {
	return t.Format("2006-01-02T15-04-05")
}
