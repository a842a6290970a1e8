package cluster

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// normaliseDegrees maps a to [0, 360).
func normaliseDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}

// AngleDistance returns the interior angle between a and b in degrees, in
// [0, 180]. Inputs may lie outside [0, 360) and wrap around.
func AngleDistance(a, b float64) float64 {
	d := math.Abs(normaliseDegrees(b) - normaliseDegrees(a))
	return math.Min(d, 360-d)
}

// CircularMean returns the mean direction of angles in degrees, in
// [0, 360), and the mean resultant length in [0, 1]. A length near zero
// means the angles cancel out and the direction is not meaningful. It
// returns NaN and 0 for an empty slice.
func CircularMean(angles []float64) (mean, resultant float64) {
	if len(angles) == 0 {
		return math.NaN(), 0
	}
	sins := make([]float64, len(angles))
	coss := make([]float64, len(angles))
	for i, a := range angles {
		rad := a * math.Pi / 180
		sins[i], coss[i] = math.Sin(rad), math.Cos(rad)
	}
	s, c := stat.Mean(sins, nil), stat.Mean(coss, nil)
	return normaliseDegrees(math.Atan2(s, c) * 180 / math.Pi), math.Hypot(s, c)
}
