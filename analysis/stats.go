package analysis

import (
	"math"
	"slices"
)

// DefaultIQRFactor is the Tukey fence multiplier.
const DefaultIQRFactor = 1.5

// Median returns the median of xs. It reports false for empty input.
func Median(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	s := sorted(xs)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid], true
	}
	return s[mid-1]/2 + s[mid]/2, true
}

// Quantile returns the linearly interpolated (R-7) quantile q of xs.
// q is clamped to [0, 1]. It reports false for empty input.
func Quantile(xs []float64, q float64) (float64, bool) {
	if len(xs) == 0 || math.IsNaN(q) {
		return 0, false
	}
	q = math.Max(0, math.Min(1, q))
	s := sorted(xs)
	pos := float64(len(s)-1) * q
	base := int(math.Floor(pos))
	rest := pos - float64(base)
	if base+1 < len(s) {
		if d := s[base+1] - s[base]; !math.IsInf(d, 0) {
			return s[base] + rest*d, true
		}
		return s[base]*(1-rest) + s[base+1]*rest, true
	}
	return s[base], true
}

// Bounds are the interquartile outlier fences. All fields are meaningful only
// when OK is true.
type Bounds struct {
	Low  float64
	High float64
	Q1   float64
	Q3   float64
	OK   bool
}

// IQRBounds returns q1 - k*iqr and q3 + k*iqr. A negative k is treated as 0.
func IQRBounds(xs []float64, k float64) Bounds {
	q1, ok1 := Quantile(xs, 0.25)
	q3, ok3 := Quantile(xs, 0.75)
	if !ok1 || !ok3 {
		return Bounds{}
	}
	if k < 0 || math.IsNaN(k) {
		k = 0
	}
	iqr := q3 - q1
	b := Bounds{Low: q1 - k*iqr, High: q3 + k*iqr, Q1: q1, Q3: q3}
	b.OK = finite(b.Low) && finite(b.High) && finite(b.Q1) && finite(b.Q3)
	if !b.OK {
		return Bounds{}
	}
	return b
}

// MinMax returns the extremes of xs. It reports false for empty input.
func MinMax(xs []float64) (float64, float64, bool) {
	if len(xs) == 0 {
		return 0, 0, false
	}
	return slices.Min(xs), slices.Max(xs), true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func sorted(xs []float64) []float64 {
	s := slices.Clone(xs)
	slices.Sort(s)
	return s
}
