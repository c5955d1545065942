// Package utils provides common utility functions for tasas: tolerant
// number parsing, display formatting and Caracas market time helpers.
package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxSafeNumber is the largest magnitude ParseNumber accepts (2^53 - 1).
// Anything larger comes from a corrupt payload and is read as 0.
const MaxSafeNumber = 1<<53 - 1

// ParseNumber converts an upstream JSON value into a float64.
// Strings may use a decimal comma ("36,58"). Missing, malformed, non-finite
// or out-of-range values, and non-numeric kinds, all yield 0.
func ParseNumber(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return sane(n)
	case float32:
		return sane(float64(n))
	case int:
		return sane(float64(n))
	case int32:
		return sane(float64(n))
	case int64:
		return sane(float64(n))
	case uint:
		return sane(float64(n))
	case uint32:
		return sane(float64(n))
	case uint64:
		return sane(float64(n))
	case json.Number:
		return parseNumericString(n.String())
	case string:
		return parseNumericString(n)
	default:
		return 0
	}
}

// ParseNumberPtr is ParseNumber for optional fields: nil stays nil.
func ParseNumberPtr(v any) *float64 {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	f := ParseNumber(v)
	return &f
}

func parseNumericString(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.Replace(s, ",", ".", 1)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return sane(f)
}

func sane(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > MaxSafeNumber {
		return 0
	}
	return f
}

// FormatCompactVolume renders a volume with a B/M/K suffix.
// A value exactly at a threshold already uses the larger unit.
func FormatCompactVolume(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.1fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
