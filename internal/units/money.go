// Package units provides shared money, duration and timezone helpers
package units

import (
	"fmt"
	"math"
	"time"
)

// DefaultRatePerMinute is the tariff charged per occupied minute.
const DefaultRatePerMinute = 0.20

// RoundCents rounds v to two decimal places, half away from zero.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Minutes converts d to fractional minutes without rounding.
func Minutes(d time.Duration) float64 {
	return d.Seconds() / 60
}

// Cost prices durationMinutes at ratePerMinute, rounded to cents.
func Cost(durationMinutes, ratePerMinute float64) float64 {
	return RoundCents(durationMinutes * ratePerMinute)
}

// FormatClock renders d as HH:MM:SS; hours are not wrapped at 24.
// Negative durations render as 00:00:00.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
