// Package sparkline turns a percentage change into a small SVG path.
// The curve only encodes the sign and rough size of the change; it is not
// a plot of historical data.
package sparkline

import (
	"math"
	"strconv"
)

const (
	// Flat is the path for no change.
	Flat = "M0 20 L 100 20"

	center       = 20.0
	minDeviation = 3.0
	maxDeviation = 18.0
	scaleFactor  = 0.1
	epsilon      = 0.001
)

// PathFor returns a cubic Bezier path in a 100x40 box. Positive changes dip
// then rise, negative changes mirror that around y=20. nil or near-zero
// input gives Flat.
func PathFor(percent *float64) string {
	if percent == nil || math.IsNaN(*percent) || math.Abs(*percent) < epsilon {
		return Flat
	}
	p := *percent
	a := Amplitude(p)
	s := 1.0
	if p < 0 {
		s = -1
	}
	lead := fmtCoord(center + s*a)
	end := fmtCoord(center - s*a)
	return "M0 20 C 25 " + lead + ", 60 " + lead + ", 100 " + end
}

// Amplitude is the vertical deviation for a change of p percent, between
// 3 and 18.
func Amplitude(p float64) float64 {
	t := math.Min(math.Abs(p)*scaleFactor, 1)
	return minDeviation + (maxDeviation-minDeviation)*t
}

// fmtCoord prints v with at most two decimals and no trailing zeros.
func fmtCoord(v float64) string {
	v = math.Round(v*100) / 100
	if v == 0 {
		v = 0 // normalize -0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
