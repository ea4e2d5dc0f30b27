// Package timeframe converts chart timeframe labels to minutes and trading mode.
package timeframe

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultMinutes is used when a label cannot be parsed.
	DefaultMinutes = 60
	// ScalpMaxMinutes is the largest timeframe still treated as a scalp.
	ScalpMaxMinutes = 15

	ModeScalp = "scalp"
	ModeSwing = "swing"
)

var (
	labelPattern = regexp.MustCompile(`^(\d+)\s*([A-Z]+)$`)
	unitWords    = map[string]string{
		"M": "M", "MIN": "M", "MINS": "M", "MINUTE": "M", "MINUTES": "M",
		"H": "H", "HR": "H", "HRS": "H", "HOUR": "H", "HOURS": "H",
		"D": "D", "DAY": "D", "DAYS": "D",
		"W": "W", "WK": "W", "WEEK": "W", "WEEKS": "W",
	}
	unitMinutes = map[string]int{"M": 1, "H": 60, "D": 1440, "W": 10080}
)

// Normalize uppercases a label and folds unit words, so "4 hours" and "4h"
// both become "4H". Labels it cannot read are returned uppercased.
func Normalize(label string) string {
	up := strings.ToUpper(strings.TrimSpace(label))
	if up == "" {
		return ""
	}
	m := labelPattern.FindStringSubmatch(up)
	if m == nil {
		return up
	}
	unit, ok := unitWords[m[2]]
	if !ok {
		return up
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return up
	}
	return strconv.Itoa(n) + unit
}

// Parse returns the minute count of a label and whether it was understood.
func Parse(label string) (int, bool) {
	norm := Normalize(label)
	m := labelPattern.FindStringSubmatch(norm)
	if m == nil {
		return 0, false
	}
	per, ok := unitMinutes[m[2]]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n * per, true
}

// Minutes is Parse with DefaultMinutes for unreadable labels.
func Minutes(label string) int {
	if n, ok := Parse(label); ok {
		return n
	}
	return DefaultMinutes
}

// ModeFor maps a minute count to scalp or swing.
func ModeFor(minutes int) string {
	if minutes <= ScalpMaxMinutes {
		return ModeScalp
	}
	return ModeSwing
}

// Mode derives the trading mode of a label.
func Mode(label string) string {
	return ModeFor(Minutes(label))
}
