package store

import (
	"math/big"
	"testing"

	"dexarb/internal/core"

	"github.com/stretchr/testify/require"
)

func obs(pool string, tsMs int64) core.PriceObservation {
	return core.PriceObservation{
		Chain:    core.ChainBase,
		Dex:      core.DexAerodrome,
		Pool:     pool,
		Token0:   "0xweth",
		Token1:   "0xusdc",
		Reserve0: big.NewInt(1000),
		Reserve1: big.NewInt(2000),
		Price:    big.NewInt(2_000_000_000_000_000_000),
		TsMs:     tsMs,
	}
}

// TestAddAccumulatesWithinThreshold verifies multiple observations within the
// staleness window all stay in Sources.
func TestAddAccumulatesWithinThreshold(t *testing.T) {
	s := New(5000)
	s.Add(obs("0xpool1", 1000))
	s.Add(obs("0xpool2", 2000))

	got := s.Sources(core.ChainBase, "0xweth", "0xusdc")
	require.Len(t, got, 2)
}

// TestAddEvictsStaleOnInsert verifies Add evicts prior observations whose
// timestamp lags the incoming one by at least the staleness threshold,
// using the incoming observation's own clock rather than wall time.
func TestAddEvictsStaleOnInsert(t *testing.T) {
	s := New(1000)
	s.Add(obs("0xpool1", 1000))
	s.Add(obs("0xpool2", 2500)) // 2500-1000 = 1500 >= 1000: pool1 evicted

	got := s.Sources(core.ChainBase, "0xweth", "0xusdc")
	require.Len(t, got, 1)
	require.Equal(t, "0xpool2", got[0].Pool)
}

// TestSourcesReturnsDefensiveCopy verifies mutating the returned slice does
// not corrupt the store's internal state.
func TestSourcesReturnsDefensiveCopy(t *testing.T) {
	s := New(5000)
	s.Add(obs("0xpool1", 1000))

	got := s.Sources(core.ChainBase, "0xweth", "0xusdc")
	got[0].Pool = "corrupted"

	got2 := s.Sources(core.ChainBase, "0xweth", "0xusdc")
	require.Equal(t, "0xpool1", got2[0].Pool)
}

// TestClearStaleAcrossKeys verifies ClearStale evicts by an external clock
// across every key and reports the number removed.
func TestClearStaleAcrossKeys(t *testing.T) {
	s := New(1000)
	s.Add(obs("0xpool1", 1000))
	s.Add(core.PriceObservation{Chain: core.ChainBase, Token0: "0xdai", Token1: "0xusdc", Pool: "0xpool2", TsMs: 1000, Price: big.NewInt(1)})

	removed := s.ClearStale(5000)
	require.Equal(t, 2, removed)
	require.Empty(t, s.Sources(core.ChainBase, "0xweth", "0xusdc"))
	require.Empty(t, s.Sources(core.ChainBase, "0xdai", "0xusdc"))
}

// TestKeysFiltersByChain verifies Keys only returns pair keys for the
// requested chain.
func TestKeysFiltersByChain(t *testing.T) {
	s := New(5000)
	s.Add(obs("0xpool1", 1000))
	s.Add(core.PriceObservation{Chain: core.ChainArbitrum, Token0: "0xa", Token1: "0xb", Pool: "0xpool2", TsMs: 1000, Price: big.NewInt(1)})

	keys := s.Keys(core.ChainBase)
	require.Len(t, keys, 1)
	require.Equal(t, core.ChainBase, keys[0].Chain)
}

// TestKnownPoolsCountsDistinctAddresses verifies KnownPools tracks the
// cumulative set of distinct pool ids, independent of staleness eviction.
func TestKnownPoolsCountsDistinctAddresses(t *testing.T) {
	s := New(1000)
	s.Add(obs("0xpool1", 1000))
	s.Add(obs("0xpool2", 2500)) // evicts pool1's observation but not its known-pool entry
	require.Equal(t, 2, s.KnownPools())
}

// TestStatsSnapshot verifies the aggregate counters match what was inserted.
func TestStatsSnapshot(t *testing.T) {
	s := New(5000)
	s.Add(obs("0xpool1", 1000))
	s.Add(obs("0xpool2", 1500))

	stats := s.StatsSnapshot()
	require.Equal(t, 2, stats.TotalObservations)
	require.Equal(t, 1, stats.UniquePairs)
	require.Equal(t, 2, stats.KnownPools)
}

// TestSnapshotIsConsistentCopy verifies Snapshot returns an independent copy
// per chain: later Add calls must not be visible in an already-taken
// snapshot, matching the "a scan sees one consistent view" requirement.
func TestSnapshotIsConsistentCopy(t *testing.T) {
	s := New(5000)
	s.Add(obs("0xpool1", 1000))

	snap := s.Snapshot(core.ChainBase)
	s.Add(obs("0xpool2", 1500))

	key := core.PairKey{Chain: core.ChainBase, Token0: "0xweth", Token1: "0xusdc"}
	require.Len(t, snap[key], 1)

	fresh := s.Snapshot(core.ChainBase)
	require.Len(t, fresh[key], 2)
}
