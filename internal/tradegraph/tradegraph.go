// Package tradegraph implements C3: a directed trade graph built fresh from
// a store snapshot for the duration of one scan and discarded afterward
// (no cross-scan state). Grounded on the dual-edge construction pattern
// used by pool-graph builders elsewhere in this codebase, and on a
// build-graph routine that derives the reverse-price edge from the
// forward one.
package tradegraph

import (
	"math/big"

	"dexarb/internal/core"
)

// reverseScale is 10^36: reverse_price = floor(reverseScale / price).
var reverseScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)

// priceScaleF is 10^18: rate = price / priceScaleF.
const priceScaleF = 1e18

// Graph is a directed multigraph over tokens: each token maps to its
// outgoing edges, in discovery order.
type Graph struct {
	edges map[string][]core.TradeEdge
	order []string // first-seen token order, for deterministic iteration
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{edges: make(map[string][]core.TradeEdge)}
}

// AddObservation emits the forward edge (token0->token1, stored price) and
// the reverse edge (token1->token0, floor(1e36/price)), with reserves
// swapped; a nil or nonpositive price emits neither. Discovery order is preserved since downstream
// searches depend on it for tie-breaking.
func (g *Graph) AddObservation(obs core.PriceObservation) {
	if obs.Price == nil || obs.Price.Sign() <= 0 {
		// Still emit nothing at all for a degenerate forward price: a
		// zero price can't produce a meaningful forward rate either.
		return
	}

	forwardRate := new(big.Float).Quo(new(big.Float).SetInt(obs.Price), big.NewFloat(priceScaleF))
	fRate, _ := forwardRate.Float64()

	g.addEdge(core.TradeEdge{
		TokenIn:    obs.Token0,
		TokenOut:   obs.Token1,
		Pool:       obs.Pool,
		Dex:        obs.Dex,
		Rate:       fRate,
		ReserveIn:  obs.Reserve0,
		ReserveOut: obs.Reserve1,
		FeeBps:     30,
	})

	reversePrice := new(big.Int).Quo(reverseScale, obs.Price)
	reverseRateF := new(big.Float).Quo(new(big.Float).SetInt(reversePrice), big.NewFloat(priceScaleF))
	rRate, _ := reverseRateF.Float64()

	g.addEdge(core.TradeEdge{
		TokenIn:    obs.Token1,
		TokenOut:   obs.Token0,
		Pool:       obs.Pool,
		Dex:        obs.Dex,
		Rate:       rRate,
		ReserveIn:  obs.Reserve1,
		ReserveOut: obs.Reserve0,
		FeeBps:     30,
	})
}

func (g *Graph) addEdge(e core.TradeEdge) {
	if _, ok := g.edges[e.TokenIn]; !ok {
		g.order = append(g.order, e.TokenIn)
	}
	g.edges[e.TokenIn] = append(g.edges[e.TokenIn], e)
}

// EdgesFrom returns the edges leaving token, in discovery order.
func (g *Graph) EdgesFrom(token string) []core.TradeEdge {
	return g.edges[token]
}

// AllEdges returns every edge in the graph, in token-discovery then
// per-token insertion order. Used by the line-graph builder (C5).
func (g *Graph) AllEdges() []core.TradeEdge {
	var out []core.TradeEdge
	for _, tok := range g.order {
		out = append(out, g.edges[tok]...)
	}
	return out
}

// Build constructs a Graph from every observation in snapshot (as returned
// by store.Store.Snapshot).
func Build(snapshot map[core.PairKey][]core.PriceObservation) *Graph {
	g := New()
	// Map iteration order is randomized in Go; sort pair keys for a
	// deterministic build so downstream tie-breaking is reproducible
	// within a process run even though it is not guaranteed across runs.
	keys := make([]core.PairKey, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sortPairKeys(keys)
	for _, k := range keys {
		for _, obs := range snapshot[k] {
			g.AddObservation(obs)
		}
	}
	return g
}

func sortPairKeys(keys []core.PairKey) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0; j-- {
			a, b := keys[j-1], keys[j]
			if pairKeyLess(b, a) {
				keys[j-1], keys[j] = keys[j], keys[j-1]
			} else {
				break
			}
		}
	}
}

func pairKeyLess(a, b core.PairKey) bool {
	if a.Chain != b.Chain {
		return a.Chain < b.Chain
	}
	if a.Token0 != b.Token0 {
		return a.Token0 < b.Token0
	}
	return a.Token1 < b.Token1
}
