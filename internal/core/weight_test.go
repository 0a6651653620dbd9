package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLogRateClampsNonpositive verifies a zero or negative rate is treated as
// maximally costly rather than producing +Inf or NaN.
func TestLogRateClampsNonpositive(t *testing.T) {
	require.Equal(t, maxWeight, LogRate(0))
	require.Equal(t, maxWeight, LogRate(-1))
	require.Equal(t, maxWeight, LogRate(math.NaN()))
}

// TestLogRateClampsInfinite verifies an infinite rate clamps to minWeight
// instead of propagating -Inf.
func TestLogRateClampsInfinite(t *testing.T) {
	require.Equal(t, minWeight, LogRate(math.Inf(1)))
}

// TestLogRateClampsExtremes verifies very small and very large (but finite)
// rates still land within [minWeight, maxWeight].
func TestLogRateClampsExtremes(t *testing.T) {
	require.Equal(t, maxWeight, LogRate(1e-300))
	require.Equal(t, minWeight, LogRate(1e300))
}

// TestLogRateUnitRate verifies LogRate(1) == 0, the no-arbitrage fixed point.
func TestLogRateUnitRate(t *testing.T) {
	require.InDelta(t, 0.0, LogRate(1), 1e-12)
}

// TestRateFromLogInvertsLogRate verifies the round trip for an ordinary rate
// that does not hit either clamp.
func TestRateFromLogInvertsLogRate(t *testing.T) {
	rate := 1.05
	w := LogRate(rate)
	require.InDelta(t, rate, RateFromLog(w), 1e-9)
}

// TestRateFromLogZero verifies exp(0) == 1.
func TestRateFromLogZero(t *testing.T) {
	require.InDelta(t, 1.0, RateFromLog(0), 1e-12)
}
