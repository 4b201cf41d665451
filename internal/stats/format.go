package stats

import (
	"fmt"
	"math"
)

// NaN is returned by FormatMagnitude when a value cannot be scaled.
const NaN = "NaN"

var magnitudeUnits = []string{"", "K", "M", "G", "T", "P"}

// FormatMagnitude renders v with two decimals and a metric-scale unit, followed
// by suffix: 1500 → "1.50 K", 999 → "999.00 ". Values that stay at or above 1000
// after the last unit, and non-finite values, render as NaN.
func FormatMagnitude(v float64, suffix string) string {
	for _, unit := range magnitudeUnits {
		if math.Abs(v) < 1000.0 {
			return fmt.Sprintf("%3.2f %s%s", v, unit, suffix)
		}
		v /= 1000.0
	}
	return NaN
}
