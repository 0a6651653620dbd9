// Package store implements C1, the Price Store: a keyed mapping from
// (chain, token0, token1) to a recency-bounded, insertion-ordered sequence
// of price observations, grounded on an add_price/clear_stale_prices
// reference implementation and the sync.RWMutex-guarded-struct idiom used
// throughout this codebase's shared-state types.
package store

import (
	"sync"

	"dexarb/internal/core"
)

// Store is the detection core's only persistent shared state. It is safe
// for concurrent use.
type Store struct {
	mu                     sync.RWMutex
	observations           map[core.PairKey][]core.PriceObservation
	knownPools             map[string]struct{}
	stalenessThresholdMs   int64
}

// New constructs an empty store. stalenessThresholdMs is the eviction window
// applied by Add and ClearStale; a nonpositive value falls back to 5000 ms.
func New(stalenessThresholdMs int64) *Store {
	if stalenessThresholdMs <= 0 {
		stalenessThresholdMs = 5000
	}
	return &Store{
		observations:         make(map[core.PairKey][]core.PriceObservation),
		knownPools:           make(map[string]struct{}),
		stalenessThresholdMs: stalenessThresholdMs,
	}
}

// Add inserts obs, first evicting any observation at the same key whose
// timestamp lags obs.TsMs by at least the staleness threshold. The eviction
// clock is the incoming observation's timestamp, not wall time.
func (s *Store) Add(obs core.PriceObservation) {
	key := core.PairKey{Chain: obs.Chain, Token0: obs.Token0, Token1: obs.Token1}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.observations[key]
	fresh := existing[:0:0]
	for _, p := range existing {
		if obs.TsMs-p.TsMs < s.stalenessThresholdMs {
			fresh = append(fresh, p)
		}
	}
	fresh = append(fresh, obs)
	s.observations[key] = fresh
	s.knownPools[obs.Pool] = struct{}{}
}

// Sources returns a defensive copy of the observations stored at key.
func (s *Store) Sources(chain core.ChainId, token0, token1 string) []core.PriceObservation {
	key := core.PairKey{Chain: chain, Token0: token0, Token1: token1}

	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.observations[key]
	out := make([]core.PriceObservation, len(src))
	copy(out, src)
	return out
}

// ClearStale evicts observations older than nowMs-threshold across every key
// and reports how many were removed.
func (s *Store) ClearStale(nowMs int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, obs := range s.observations {
		kept := obs[:0:0]
		for _, p := range obs {
			if nowMs-p.TsMs < s.stalenessThresholdMs {
				kept = append(kept, p)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(s.observations, key)
		} else {
			s.observations[key] = kept
		}
	}
	return removed
}

// Keys returns every PairKey currently holding at least one observation on
// the given chain. Order is unspecified.
func (s *Store) Keys(chain core.ChainId) []core.PairKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []core.PairKey
	for k := range s.observations {
		if k.Chain == chain {
			keys = append(keys, k)
		}
	}
	return keys
}

// KnownPools returns the number of distinct pool ids ever observed.
func (s *Store) KnownPools() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.knownPools)
}

// Stats reports coarse store statistics.
type Stats struct {
	TotalObservations int
	UniquePairs       int
	KnownPools        int
}

func (s *Store) StatsSnapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, v := range s.observations {
		total += len(v)
	}
	return Stats{
		TotalObservations: total,
		UniquePairs:       len(s.observations),
		KnownPools:        len(s.knownPools),
	}
}

// Snapshot returns an immutable, scan-consistent copy of every observation
// on chain, grouped by pair key. A scan runs entirely against this copy so
// concurrent Add calls from ingestion never tear a scan's view of the
// store.
func (s *Store) Snapshot(chain core.ChainId) map[core.PairKey][]core.PriceObservation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[core.PairKey][]core.PriceObservation)
	for k, v := range s.observations {
		if k.Chain != chain {
			continue
		}
		cp := make([]core.PriceObservation, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
