package aggregator

import (
	"math/big"
	"testing"

	"dexarb/internal/core"
	"dexarb/internal/store"

	"github.com/stretchr/testify/require"
)

func addObs(s *store.Store, pool, token0, token1 string, price int64, reserve0, reserve1 int64, tsMs int64) {
	s.Add(core.PriceObservation{
		Chain:    core.ChainBase,
		Dex:      core.DexAerodrome,
		Pool:     pool,
		Token0:   token0,
		Token1:   token1,
		Reserve0: big.NewInt(reserve0),
		Reserve1: big.NewInt(reserve1),
		Price:    big.NewInt(price),
		TsMs:     tsMs,
	})
}

// TestAggregatedRequiresMinSources verifies Aggregated returns nil when the
// pair has fewer observations than minSources.
func TestAggregatedRequiresMinSources(t *testing.T) {
	s := store.New(60_000)
	addObs(s, "0xpool1", "weth", "usdc", 100, 1000, 1000, 1000)

	a := New(s, 2)
	require.Nil(t, a.Aggregated(core.ChainBase, "weth", "usdc"))
}

// TestAggregatedVolumeWeightedAndConfidence verifies the weighted price and
// coefficient-of-variation confidence for two equal-liquidity sources.
func TestAggregatedVolumeWeightedAndConfidence(t *testing.T) {
	s := store.New(60_000)
	addObs(s, "0xpool1", "weth", "usdc", 100, 1000, 1000, 1000)
	addObs(s, "0xpool2", "weth", "usdc", 200, 1000, 1000, 2000)

	a := New(s, 2)
	agg := a.Aggregated(core.ChainBase, "weth", "usdc")
	require.NotNil(t, agg)

	// Equal liquidity weights -> simple average of 100 and 200.
	require.Equal(t, big.NewInt(150), agg.Price)
	require.Equal(t, int64(2000), agg.TsMs)

	// mean=150, stdDev=50, cv=1/3, confidence=2/3.
	require.InDelta(t, 2.0/3.0, agg.Confidence, 1e-9)
}

// TestAggregatedZeroLiquidityReturnsNil verifies a pair whose sources all
// carry degenerate (zero or negative) reserves produces no aggregate.
func TestAggregatedZeroLiquidityReturnsNil(t *testing.T) {
	s := store.New(60_000)
	addObs(s, "0xpool1", "weth", "usdc", 100, 0, 0, 1000)
	addObs(s, "0xpool2", "weth", "usdc", 200, 0, 0, 1000)

	a := New(s, 2)
	require.Nil(t, a.Aggregated(core.ChainBase, "weth", "usdc"))
}

// TestBestSelectsMinForBuyMaxForSell verifies isBuy picks the minimum price
// and !isBuy the maximum across sources.
func TestBestSelectsMinForBuyMaxForSell(t *testing.T) {
	s := store.New(60_000)
	addObs(s, "0xpool1", "weth", "usdc", 100, 1000, 1000, 1000)
	addObs(s, "0xpool2", "weth", "usdc", 200, 1000, 1000, 1000)

	a := New(s, 1)
	buy := a.Best(core.ChainBase, "weth", "usdc", true)
	require.NotNil(t, buy)
	require.Equal(t, int64(100), buy.Price.Int64())

	sell := a.Best(core.ChainBase, "weth", "usdc", false)
	require.NotNil(t, sell)
	require.Equal(t, int64(200), sell.Price.Int64())
}

// TestBestFallsBackToReverseKey verifies Best retries the reverse pair key
// when the forward key has no sources.
func TestBestFallsBackToReverseKey(t *testing.T) {
	s := store.New(60_000)
	addObs(s, "0xpool1", "usdc", "weth", 100, 1000, 1000, 1000)

	a := New(s, 1)
	best := a.Best(core.ChainBase, "weth", "usdc", true)
	require.NotNil(t, best)
	require.Equal(t, "0xpool1", best.Pool)
}

// TestSpreadRequiresTwoSources verifies Spread returns nil with fewer than
// two observations.
func TestSpreadRequiresTwoSources(t *testing.T) {
	s := store.New(60_000)
	addObs(s, "0xpool1", "weth", "usdc", 100, 1000, 1000, 1000)

	a := New(s, 1)
	require.Nil(t, a.Spread(core.ChainBase, "weth", "usdc"))
}

// TestSpreadComputesBps verifies the spread in basis points between the
// widest two prices at a pair.
func TestSpreadComputesBps(t *testing.T) {
	s := store.New(60_000)
	addObs(s, "0xpool1", "weth", "usdc", 100, 1000, 1000, 1000)
	addObs(s, "0xpool2", "weth", "usdc", 110, 1000, 1000, 1000)

	a := New(s, 1)
	spread := a.Spread(core.ChainBase, "weth", "usdc")
	require.NotNil(t, spread)
	require.Equal(t, int64(1000), spread.SpreadBps) // (110-100)/100 * 10000
	require.Equal(t, 2, spread.NumSources)
}

// TestAllSpreadsSortsDescendingAndFilters verifies AllSpreads only returns
// pairs meeting minBps, widest spread first.
func TestAllSpreadsSortsDescendingAndFilters(t *testing.T) {
	s := store.New(60_000)
	addObs(s, "0xpool1", "weth", "usdc", 100, 1000, 1000, 1000)
	addObs(s, "0xpool2", "weth", "usdc", 110, 1000, 1000, 1000) // 1000 bps
	addObs(s, "0xpool3", "dai", "usdc", 100, 1000, 1000, 1000)
	addObs(s, "0xpool4", "dai", "usdc", 101, 1000, 1000, 1000) // 100 bps

	a := New(s, 1)

	all := a.AllSpreads(core.ChainBase, 0)
	require.Len(t, all, 2)
	require.Equal(t, int64(1000), all[0].SpreadBps)
	require.Equal(t, int64(100), all[1].SpreadBps)

	filtered := a.AllSpreads(core.ChainBase, 500)
	require.Len(t, filtered, 1)
	require.Equal(t, "weth", filtered[0].Token0)
}

// TestClearStaleDelegatesToStore verifies ClearStale evicts through to the
// underlying store and reports the removed count.
func TestClearStaleDelegatesToStore(t *testing.T) {
	s := store.New(1000)
	addObs(s, "0xpool1", "weth", "usdc", 100, 1000, 1000, 1000)

	a := New(s, 1)
	removed := a.ClearStale(5000)
	require.Equal(t, 1, removed)
}
