package dfscycle

import (
	"math/big"
	"testing"

	"dexarb/internal/core"
	"dexarb/internal/tradegraph"

	"github.com/stretchr/testify/require"
)

func addPair(g *tradegraph.Graph, pool, token0, token1 string, price int64, r0, r1 int64) {
	g.AddObservation(core.PriceObservation{
		Pool: pool, Token0: token0, Token1: token1,
		Price:    big.NewInt(price),
		Reserve0: big.NewInt(r0), Reserve1: big.NewInt(r1),
	})
}

// TestEnumerateFindsSimpleCycle verifies a two-pool a->b->a round trip is
// found as a cycle.
func TestEnumerateFindsSimpleCycle(t *testing.T) {
	g := tradegraph.New()
	addPair(g, "0xpool1", "a", "b", 2_000_000_000_000_000_000, 1000, 2000)
	addPair(g, "0xpool2", "b", "a", 500_000_000_000_000_000, 2000, 1000)

	cycles := Enumerate(g, "a", DefaultConfig())
	require.NotEmpty(t, cycles)

	found := false
	for _, c := range cycles {
		if len(c) == 2 && c[0].TokenIn == "a" && c[1].TokenOut == "a" {
			found = true
		}
	}
	require.True(t, found)
}

// TestEnumeratePoolUniqueness verifies a single pool's forward and reverse
// edges cannot both appear in one cycle: the only way back to "a" here is
// through the same pool the first hop used, so no cycle should be found at
// all, and any cycle Enumerate does return must never repeat a pool.
func TestEnumeratePoolUniqueness(t *testing.T) {
	g := tradegraph.New()
	addPair(g, "0xpool1", "a", "b", 1_000_000_000_000_000_000, 1000, 1000)

	cycles := Enumerate(g, "a", DefaultConfig())
	require.Empty(t, cycles, "forward and reverse of the same pool must not combine into a cycle")

	for _, c := range cycles {
		seen := map[string]bool{}
		for _, e := range c {
			require.False(t, seen[e.Pool], "a pool must not be reused within one cycle")
			seen[e.Pool] = true
		}
	}
}

// TestEnumerateRespectsMaxPathLength verifies no returned cycle exceeds
// Config.MaxPathLength hops.
func TestEnumerateRespectsMaxPathLength(t *testing.T) {
	g := tradegraph.New()
	addPair(g, "0xpool1", "a", "b", 1_000_000_000_000_000_000, 1000, 1000)
	addPair(g, "0xpool2", "b", "c", 1_000_000_000_000_000_000, 1000, 1000)
	addPair(g, "0xpool3", "c", "d", 1_000_000_000_000_000_000, 1000, 1000)
	addPair(g, "0xpool4", "d", "a", 1_000_000_000_000_000_000, 1000, 1000)

	cfg := DefaultConfig()
	cfg.MaxPathLength = 2
	cycles := Enumerate(g, "a", cfg)
	for _, c := range cycles {
		require.LessOrEqual(t, len(c), cfg.MaxPathLength)
	}
}

// TestEvaluateRejectsUnprofitableCycle verifies a cycle whose rate product
// does not exceed 1 scores nil.
func TestEvaluateRejectsUnprofitableCycle(t *testing.T) {
	cycle := []core.TradeEdge{
		{TokenIn: "a", TokenOut: "b", Pool: "0xpool1", Rate: 1.0, ReserveIn: big.NewInt(1000), ReserveOut: big.NewInt(1000)},
		{TokenIn: "b", TokenOut: "a", Pool: "0xpool2", Rate: 0.99, ReserveIn: big.NewInt(1000), ReserveOut: big.NewInt(1000)},
	}
	require.Nil(t, Evaluate(cycle, DefaultConfig()))
}

// TestEvaluateRejectsBelowMinProfitAfterGas verifies a thinly profitable
// cycle whose net (after simulated gas cost) falls under MinProfitWei is
// rejected even though its raw rate product exceeds 1.
func TestEvaluateRejectsBelowMinProfitAfterGas(t *testing.T) {
	cycle := []core.TradeEdge{
		{TokenIn: "a", TokenOut: "b", Pool: "0xpool1", Rate: 1.0001, ReserveIn: big.NewInt(1000), ReserveOut: big.NewInt(1000)},
		{TokenIn: "b", TokenOut: "a", Pool: "0xpool2", Rate: 1.0, ReserveIn: big.NewInt(1000), ReserveOut: big.NewInt(1000)},
	}
	cfg := DefaultConfig()
	cfg.MinProfitWei = big.NewInt(1_000_000_000_000_000_000) // 1e18, far above what this tiny cycle nets
	require.Nil(t, Evaluate(cycle, cfg))
}

// TestEvaluateAcceptsProfitableCycle verifies a healthily profitable cycle
// with ample liquidity produces a scored ArbitragePath.
func TestEvaluateAcceptsProfitableCycle(t *testing.T) {
	bigReserve, _ := new(big.Int).SetString("1000000000000000000000000", 10) // 1e24
	cycle := []core.TradeEdge{
		{TokenIn: "a", TokenOut: "b", Pool: "0xpool1", Rate: 1.1, ReserveIn: bigReserve, ReserveOut: bigReserve},
		{TokenIn: "b", TokenOut: "a", Pool: "0xpool2", Rate: 1.0, ReserveIn: bigReserve, ReserveOut: bigReserve},
	}
	cfg := DefaultConfig()
	cfg.MinProfitWei = big.NewInt(1)
	path := Evaluate(cycle, cfg)
	require.NotNil(t, path)
	require.Equal(t, "a", path.StartToken)
	require.Greater(t, path.ProfitBps, int64(0))
	require.True(t, path.NetProfit.Sign() > 0)
}

// TestScanFiltersToProfitableOnly verifies Scan only returns the subset of
// enumerated cycles that Evaluate accepts.
func TestScanFiltersToProfitableOnly(t *testing.T) {
	g := tradegraph.New()
	addPair(g, "0xpool1", "a", "b", 1_000_000_000_000_000_000, 1000, 1000)
	addPair(g, "0xpool2", "b", "a", 1_000_000_000_000_000_000, 1000, 1000) // two-pool round trips at rate 1: enumerated but unprofitable

	cfg := DefaultConfig()
	results := Scan(g, "a", cfg)
	require.Empty(t, results)
}
