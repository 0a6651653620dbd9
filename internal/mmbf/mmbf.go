// Package mmbf implements C6, the Modified Moore-Bellman-Ford detector: a
// log-space relaxation over the line graph (C5) that records every
// profitable return path to the start token, rather than stopping at the
// first negative cycle a classic Bellman-Ford would find. The
// relaxation-pass control flow (distance array, infinity sentinel,
// early-exit-on-no-update) is grounded on a FindNegativeCycleContaining-
// style Bellman-Ford, which keeps only the single best cycle — the wrong
// contract for "emit all profitable paths", so the per-vertex path-tracking
// and multi-emission control flow here is authored fresh against the line
// graph instead.
package mmbf

import (
	"math"
	"math/big"

	"dexarb/internal/core"
	"dexarb/internal/linegraph"
)

const infinity = 1e18

// Config controls the MMBF detector.
type Config struct {
	MaxPathLength int
	MaxIterations int
	MinProfitBps  int64
}

// DefaultConfig returns sane defaults for the MMBF detector.
func DefaultConfig() Config {
	return Config{MaxPathLength: 8, MaxIterations: 100, MinProfitBps: 10}
}

// Detect runs the relaxation over lg, starting from startToken, and
// returns every ArbitragePath whose cumulative rate product exceeds 1.
// Emission does not consume a path: a later pass may still emit a longer
// path through the same vertex.
func Detect(lg *linegraph.Graph, startToken string, cfg Config) []core.ArbitragePath {
	n := len(lg.Vertices)
	if n == 0 {
		return nil
	}

	distance := make([]float64, n)
	paths := make([][]int, n)
	for i := range distance {
		distance[i] = infinity
	}

	// Seeding: SOURCE -> v edges.
	for _, se := range lg.SourceEdges {
		v := se.To
		if se.Weight < distance[v] {
			distance[v] = se.Weight
			paths[v] = []int{v}
		}
	}

	var results []core.ArbitragePath

	passes := cfg.MaxIterations
	if cfg.MaxPathLength < passes {
		passes = cfg.MaxPathLength
	}
	if passes < 1 {
		passes = 1
	}

	for pass := 0; pass < passes; pass++ {
		updated := false

		for _, e := range lg.Edges {
			u, v, w := e.From, e.To, e.Weight
			if distance[u] >= infinity/2 {
				continue
			}
			newDist := distance[u] + w

			// Cycle test: does the edge we'd enter (v) end back at startToken?
			// Only a path with room for one more hop is closed, so no emitted
			// path exceeds MaxPathLength edges.
			if lg.Vertices[v].Edge.TokenOut == startToken && len(paths[u]) < cfg.MaxPathLength {
				candidate := appendIndex(paths[u], v)
				if path := materialize(lg, candidate, startToken, cfg); path != nil {
					results = append(results, *path)
				}
			}

			// Standard relaxation: first-writer-wins on ties (strict <).
			if newDist < distance[v] && !containsIndex(paths[u], v) && len(paths[u]) < cfg.MaxPathLength {
				distance[v] = newDist
				paths[v] = appendIndex(paths[u], v)
				updated = true
			}
		}

		if !updated {
			break
		}
	}

	return results
}

func appendIndex(path []int, v int) []int {
	out := make([]int, len(path)+1)
	copy(out, path)
	out[len(path)] = v
	return out
}

func containsIndex(path []int, v int) bool {
	for _, p := range path {
		if p == v {
			return true
		}
	}
	return false
}

// materialize turns a line-vertex index sequence into an ArbitragePath if its
// cumulative rate product exceeds 1 and it has at least two edges.
func materialize(lg *linegraph.Graph, indices []int, startToken string, cfg Config) *core.ArbitragePath {
	if len(indices) < 2 {
		return nil
	}

	edges := make([]core.TradeEdge, len(indices))
	ratio := 1.0
	for i, idx := range indices {
		e := lg.Vertices[idx].Edge
		edges[i] = e
		ratio *= e.Rate
	}
	if !(ratio > 1) || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return nil
	}

	profitBps := int64(math.Floor((ratio - 1) * 10000))
	if profitBps < cfg.MinProfitBps {
		return nil
	}

	return &core.ArbitragePath{
		Edges:       edges,
		ProfitRatio: ratio,
		ProfitBps:   profitBps,
		StartToken:  startToken,
		OptimalSize: big.NewInt(0),
	}
}
