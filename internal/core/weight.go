package core

import "math"

// maxWeight/minWeight bound a log-rate so a degenerate rate (zero, negative,
// or effectively infinite) never produces NaN/Inf weights downstream.
const (
	maxWeight = 230.0
	minWeight = -230.0
)

// LogRate computes -ln(rate), clamped to [minWeight, maxWeight]. A
// nonpositive rate is treated as if trading through it costs an
// unbounded amount (maxWeight).
func LogRate(rate float64) float64 {
	if rate <= 0 || math.IsNaN(rate) {
		return maxWeight
	}
	if math.IsInf(rate, 1) {
		return minWeight
	}

	w := -math.Log(rate)
	switch {
	case w > maxWeight:
		return maxWeight
	case w < minWeight:
		return minWeight
	case math.IsNaN(w) || math.IsInf(w, 0):
		return maxWeight
	default:
		return w
	}
}

// RateFromLog inverts LogRate: exp(-weight).
func RateFromLog(weight float64) float64 {
	return math.Exp(-weight)
}
