// Package timeconv converts the epoch conventions found in application
// databases into canonical UTC timestamp strings.
package timeconv

import (
	"math"
	"time"
)

// Layout is the canonical timestamp format used in output records.
const Layout = "2006-01-02 15:04:05"

// cocoaOffset is the number of seconds between 1970-01-01 and 2001-01-01.
const cocoaOffset = 978307200

// latestSeconds is 2100-01-01 00:00:00 UTC. Converted values outside
// [1970, 2100) come from corrupt rows and format as "".
const latestSeconds = 4102444800

// Epoch names a timestamp convention.
type Epoch int

// Supported epochs.
const (
	EpochNone Epoch = iota
	EpochUnixSeconds
	EpochUnixMillis
	EpochCocoa
)

func (e Epoch) String() string {
	switch e {
	case EpochUnixSeconds:
		return "unix"
	case EpochUnixMillis:
		return "unix_ms"
	case EpochCocoa:
		return "cocoa"
	default:
		return "none"
	}
}

// Convert formats value according to epoch. Zero, NaN, EpochNone and values
// landing outside 1970-2099 yield "".
func Convert(epoch Epoch, value float64) string {
	switch epoch {
	case EpochUnixSeconds:
		return UnixToUTC(value)
	case EpochUnixMillis:
		return UnixMillisToUTC(value)
	case EpochCocoa:
		return CocoaToUTC(value)
	default:
		return ""
	}
}

// CocoaToUTC converts seconds since 2001-01-01 (Core Data) to UTC.
// Values that are clearly nanoseconds (as written by newer iOS releases)
// are scaled to seconds first.
func CocoaToUTC(value float64) string {
	if !usable(value) {
		return ""
	}
	if math.Abs(value) >= 1e17 {
		value /= 1e9
	}
	return format(value + cocoaOffset)
}

// UnixToUTC converts seconds since 1970-01-01 to UTC.
func UnixToUTC(value float64) string {
	if !usable(value) {
		return ""
	}
	return format(value)
}

// UnixMillisToUTC converts milliseconds since 1970-01-01 to UTC.
func UnixMillisToUTC(value float64) string {
	if !usable(value) {
		return ""
	}
	return format(value / 1000)
}

// FormatTime renders t in the canonical layout, in UTC.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(Layout)
}

func usable(v float64) bool {
	return v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func format(seconds float64) string {
	if seconds < 0 || seconds >= latestSeconds {
		return ""
	}
	sec, frac := math.Modf(seconds)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC().Format(Layout)
}
