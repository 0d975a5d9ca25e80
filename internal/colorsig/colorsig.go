// Package colorsig provides the angular color math used by the bridge
// matcher. Hues live on a 360° wheel, so naive arithmetic averaging is
// wrong for them: the mean of 350° and 10° is 0°, not 180°. CircularMean
// converts each hue to a unit vector and takes the atan2 of the resultant.
package colorsig

import "math"

// CircularMean returns the circular mean of the given hues, normalized to
// [0, 360). The boolean is false when hues is empty or when the vectors
// cancel out completely (no meaningful mean direction).
func CircularMean(hues []int) (int, bool) {
	if len(hues) == 0 {
		return 0, false
	}
	var sumSin, sumCos float64
	for _, h := range hues {
		rad := float64(h) * math.Pi / 180
		sumSin += math.Sin(rad)
		sumCos += math.Cos(rad)
	}
	// Opposing hues (e.g., 0° and 180°) cancel to a near-zero resultant;
	// atan2 on that is noise, so report "no mean".
	if math.Hypot(sumSin, sumCos) < 1e-9 {
		return 0, false
	}
	deg := math.Atan2(sumSin, sumCos) * 180 / math.Pi
	mean := int(math.Round(deg))
	mean = ((mean % 360) + 360) % 360
	return mean, true
}

// HueDistance returns the shortest angular distance between two hues on a
// 360° circle: min(|a-b|, 360-|a-b|).
func HueDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	d %= 360
	if d > 180 {
		d = 360 - d
	}
	return d
}
