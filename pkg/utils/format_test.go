package utils

import (
	"math"
	"testing"
)

func TestFormatPct(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{1.3698, "+1.37%"},
		{-29.798, "-29.80%"},
		{0.0, "+0.00%"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatPct(tt.input)
			if result != tt.expected {
				t.Errorf("FormatPct(%f) = %s, want %s", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		input    float64
		places   int32
		expected string
	}{
		{3658, 2, "3658.00"},
		{2.675, 2, "2.68"},
		{0.125, 2, "0.13"},
		{-0.125, 2, "-0.13"},
		{1.0 / 3.0, 4, "0.3333"},
		{math.NaN(), 2, "NaN"},
		{math.Inf(1), 2, "∞"},
		{math.Inf(-1), 2, "-∞"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := FormatAmount(tt.input, tt.places); got != tt.expected {
				t.Errorf("FormatAmount(%v, %d) = %s, want %s", tt.input, tt.places, got, tt.expected)
			}
		})
	}
}

func TestFormatVES(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{0, "Bs. 0,00"},
		{36.58, "Bs. 36,58"},
		{1234.5, "Bs. 1.234,50"},
		{1234567.891, "Bs. 1.234.567,89"},
		{-3658, "-Bs. 3.658,00"},
		{math.Inf(1), "Bs. ∞"},
		{math.Inf(-1), "-Bs. ∞"},
		{math.NaN(), "Bs. NaN"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := FormatVES(tt.input); got != tt.expected {
				t.Errorf("FormatVES(%v) = %s, want %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  usdt "); got != "USDT" {
		t.Errorf("NormalizeCode = %q, want USDT", got)
	}
}
