package ingestion

import (
	"strings"
	"sync"

	"dexarb/internal/core"
)

// PoolInfo is the token/dex metadata the decoder can't recover from a bare
// Sync event: a reserve update names only reserves, never token addresses.
type PoolInfo struct {
	Chain  core.ChainId
	Dex    core.DexId
	Token0 string
	Token1 string
	FeeBps int64
}

// Registry maps lowercased pool addresses to PoolInfo. A pool is "tracked"
// exactly when it has an entry here — curator bootstrap populates it before
// ingestion starts receiving events for that pool.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]PoolInfo
}

// NewRegistry returns an empty pool registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]PoolInfo)}
}

// Set adds or replaces the metadata for address.
func (r *Registry) Set(address string, info PoolInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[strings.ToLower(address)] = info
}

// SetBatch adds or replaces metadata for many pools at once.
func (r *Registry) SetBatch(pools map[string]PoolInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for addr, info := range pools {
		r.pools[strings.ToLower(addr)] = info
	}
}

// Get returns the metadata for address, and whether it is tracked.
func (r *Registry) Get(address string) (PoolInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.pools[strings.ToLower(address)]
	return info, ok
}

// Addresses returns every tracked pool address, lowercased.
func (r *Registry) Addresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.pools))
	for addr := range r.pools {
		out = append(out, addr)
	}
	return out
}

// Count returns the number of tracked pools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}
