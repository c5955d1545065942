package sparkline

import (
	"math"
	"strconv"
	"strings"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestPathFor(t *testing.T) {
	tests := []struct {
		name string
		in   *float64
		want string
	}{
		{"nil", nil, Flat},
		{"zero", ptr(0), Flat},
		{"below epsilon", ptr(0.0009), Flat},
		{"negative below epsilon", ptr(-0.0005), Flat},
		{"NaN", ptr(math.NaN()), Flat},
		{"at epsilon", ptr(0.001), "M0 20 C 25 23, 60 23, 100 17"},
		{"positive", ptr(5), "M0 20 C 25 30.5, 60 30.5, 100 9.5"},
		{"negative", ptr(-5), "M0 20 C 25 9.5, 60 9.5, 100 30.5"},
		{"saturated", ptr(42), "M0 20 C 25 38, 60 38, 100 2"},
		{"saturated negative", ptr(-10), "M0 20 C 25 2, 60 2, 100 38"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PathFor(tt.in); got != tt.want {
				t.Errorf("PathFor = %q, want %q", got, tt.want)
			}
		})
	}
}

// ys extracts the three control-point y values of a curve path.
func ys(t *testing.T, path string) [3]float64 {
	t.Helper()
	fields := strings.Fields(strings.ReplaceAll(path, ",", ""))
	// M0 20 C 25 y1 60 y2 100 y3
	if len(fields) != 9 {
		t.Fatalf("unexpected path %q", path)
	}
	var out [3]float64
	for i, idx := range []int{4, 6, 8} {
		v, err := strconv.ParseFloat(fields[idx], 64)
		if err != nil {
			t.Fatalf("parse %q: %v", fields[idx], err)
		}
		out[i] = v
	}
	return out
}

func TestPathForMirrors(t *testing.T) {
	for _, x := range []float64{0.001, 0.37, 1.3699, 2.5, 7.77, 9.99, 10, 150} {
		pos := ys(t, PathFor(ptr(x)))
		neg := ys(t, PathFor(ptr(-x)))
		for i := range pos {
			if math.Abs((pos[i]-20)+(neg[i]-20)) > 0.011 {
				t.Errorf("x=%v point %d: %v vs %v not mirrored around 20", x, i, pos[i], neg[i])
			}
		}
		if pos[0] <= 20 || pos[2] >= 20 {
			t.Errorf("x=%v positive path has wrong direction: %v", x, pos)
		}
	}
}

func TestPathForDeterministic(t *testing.T) {
	p := ptr(3.14159)
	if PathFor(p) != PathFor(p) {
		t.Fatal("PathFor is not deterministic")
	}
}

func TestAmplitudeBounds(t *testing.T) {
	if a := Amplitude(0); a != 3 {
		t.Errorf("Amplitude(0) = %v", a)
	}
	if a := Amplitude(1000); a != 18 {
		t.Errorf("Amplitude(1000) = %v", a)
	}
	if Amplitude(-4) != Amplitude(4) {
		t.Error("Amplitude depends on sign")
	}
}
