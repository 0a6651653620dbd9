package tradegraph

import (
	"math/big"
	"testing"

	"dexarb/internal/core"

	"github.com/stretchr/testify/require"
)

// TestAddObservationEmitsBothDirections verifies one observation yields a
// forward edge at the stored price and a reverse edge at floor(1e36/price),
// with reserves swapped.
func TestAddObservationEmitsBothDirections(t *testing.T) {
	g := New()
	g.AddObservation(core.PriceObservation{
		Token0: "weth", Token1: "usdc", Pool: "0xpool1",
		Reserve0: big.NewInt(1000), Reserve1: big.NewInt(2000),
		Price: big.NewInt(2_000_000_000_000_000_000), // 2.0 scaled by 1e18
	})

	forward := g.EdgesFrom("weth")
	require.Len(t, forward, 1)
	require.Equal(t, "usdc", forward[0].TokenOut)
	require.InDelta(t, 2.0, forward[0].Rate, 1e-9)
	require.Equal(t, big.NewInt(1000), forward[0].ReserveIn)
	require.Equal(t, big.NewInt(2000), forward[0].ReserveOut)

	reverse := g.EdgesFrom("usdc")
	require.Len(t, reverse, 1)
	require.Equal(t, "weth", reverse[0].TokenOut)
	require.InDelta(t, 0.5, reverse[0].Rate, 1e-9)
	require.Equal(t, big.NewInt(2000), reverse[0].ReserveIn)
	require.Equal(t, big.NewInt(1000), reverse[0].ReserveOut)
}

// TestAddObservationSkipsDegeneratePrice verifies a nil or nonpositive price
// produces no edges at all, in either direction.
func TestAddObservationSkipsDegeneratePrice(t *testing.T) {
	g := New()
	g.AddObservation(core.PriceObservation{Token0: "weth", Token1: "usdc", Pool: "0xpool1", Price: big.NewInt(0)})
	g.AddObservation(core.PriceObservation{Token0: "dai", Token1: "usdc", Pool: "0xpool2", Price: nil})

	require.Empty(t, g.EdgesFrom("weth"))
	require.Empty(t, g.EdgesFrom("usdc"))
	require.Empty(t, g.EdgesFrom("dai"))
}

// TestAllEdgesPreservesDiscoveryOrder verifies AllEdges walks tokens in
// first-seen order, and each token's edges in insertion order.
func TestAllEdgesPreservesDiscoveryOrder(t *testing.T) {
	g := New()
	g.AddObservation(core.PriceObservation{Token0: "b", Token1: "a", Pool: "0xpool1", Price: big.NewInt(1_000_000_000_000_000_000)})
	g.AddObservation(core.PriceObservation{Token0: "a", Token1: "c", Pool: "0xpool2", Price: big.NewInt(1_000_000_000_000_000_000)})

	all := g.AllEdges()
	require.Len(t, all, 4)
	// "b" discovered first (pool1 forward), then "a" (pool1 reverse), then "c" (pool2 reverse).
	require.Equal(t, "b", all[0].TokenIn)
	require.Equal(t, "a", all[1].TokenIn)
}

// TestBuildIsDeterministicAcrossMapOrder verifies Build sorts pair keys
// before ingesting observations, so the resulting edge order does not depend
// on Go's randomized map iteration.
func TestBuildIsDeterministicAcrossMapOrder(t *testing.T) {
	snapshot := map[core.PairKey][]core.PriceObservation{
		{Chain: core.ChainBase, Token0: "z", Token1: "y"}: {
			{Token0: "z", Token1: "y", Pool: "0xpoolz", Price: big.NewInt(1_000_000_000_000_000_000)},
		},
		{Chain: core.ChainBase, Token0: "a", Token1: "b"}: {
			{Token0: "a", Token1: "b", Pool: "0xpoola", Price: big.NewInt(1_000_000_000_000_000_000)},
		},
	}

	for i := 0; i < 5; i++ {
		g := Build(snapshot)
		all := g.AllEdges()
		require.Equal(t, "a", all[0].TokenIn)
		require.Equal(t, "b", all[1].TokenIn)
		require.Equal(t, "z", all[2].TokenIn)
		require.Equal(t, "y", all[3].TokenIn)
	}
}
