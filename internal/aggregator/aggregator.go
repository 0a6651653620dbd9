// Package aggregator implements C2: volume-weighted price aggregation,
// confidence scoring, best-side selection, and spread queries over a
// store.Store. Grounded line-for-line on a PriceAggregator reference
// implementation.
package aggregator

import (
	"math"
	"math/big"
	"sort"

	"dexarb/internal/core"
	"dexarb/internal/store"
)

// Aggregator answers read queries against a Store; it holds no state of its
// own beyond the minimum-sources threshold.
type Aggregator struct {
	store      *store.Store
	minSources int
}

// New returns an Aggregator over s. minSources <= 0 defaults to 2.
func New(s *store.Store, minSources int) *Aggregator {
	if minSources <= 0 {
		minSources = 2
	}
	return &Aggregator{store: s, minSources: minSources}
}

// sqrtProduct returns sqrt(reserve0 * reserve1) as a float64 liquidity weight.
func sqrtProduct(r0, r1 *big.Int) float64 {
	if r0 == nil || r1 == nil || r0.Sign() <= 0 || r1.Sign() <= 0 {
		return 0
	}
	prod := new(big.Float).Mul(new(big.Float).SetInt(r0), new(big.Float).SetInt(r1))
	f, _ := prod.Float64()
	if f < 0 {
		return 0
	}
	return math.Sqrt(f)
}

// Aggregated computes the volume-weighted price and coefficient-of-variation
// confidence for (chain, token0, token1). Returns nil if there are fewer
// than minSources observations, or if total liquidity weight is zero.
func (a *Aggregator) Aggregated(chain core.ChainId, token0, token1 string) *core.AggregatedPrice {
	sources := a.store.Sources(chain, token0, token1)
	if len(sources) < a.minSources {
		return nil
	}

	totalLiquidity := 0.0
	weights := make([]float64, len(sources))
	for i, s := range sources {
		w := sqrtProduct(s.Reserve0, s.Reserve1)
		weights[i] = w
		totalLiquidity += w
	}
	if totalLiquidity == 0 {
		return nil
	}

	weightedPrice := 0.0
	prices := make([]float64, len(sources))
	maxTs := sources[0].TsMs
	for i, s := range sources {
		pf := bigToFloat(s.Price)
		prices[i] = pf
		weightedPrice += pf * (weights[i] / totalLiquidity)
		if s.TsMs > maxTs {
			maxTs = s.TsMs
		}
	}

	mean := 0.0
	for _, p := range prices {
		mean += p
	}
	mean /= float64(len(prices))

	variance := 0.0
	for _, p := range prices {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(prices))
	stdDev := math.Sqrt(variance)

	cv := 1.0
	if mean > 0 {
		cv = stdDev / mean
	}
	confidence := 1 - cv
	if confidence < 0 {
		confidence = 0
	}

	priceInt, _ := big.NewFloat(weightedPrice).Int(nil)

	return &core.AggregatedPrice{
		Chain:      chain,
		Token0:     token0,
		Token1:     token1,
		Price:      priceInt,
		Confidence: confidence,
		Sources:    sources,
		TsMs:       maxTs,
	}
}

// Best returns the best-priced observation for a swap direction. isBuy=true
// selects the minimum price (best rate for a buyer); isBuy=false selects the
// maximum. Falls back to the reverse key if the forward key has no sources.
func (a *Aggregator) Best(chain core.ChainId, tokenIn, tokenOut string, isBuy bool) *core.PriceObservation {
	sources := a.store.Sources(chain, tokenIn, tokenOut)
	if len(sources) == 0 {
		sources = a.store.Sources(chain, tokenOut, tokenIn)
	}
	if len(sources) == 0 {
		return nil
	}

	best := sources[0]
	for _, s := range sources[1:] {
		if isBuy {
			if s.Price.Cmp(best.Price) < 0 {
				best = s
			}
		} else {
			if s.Price.Cmp(best.Price) > 0 {
				best = s
			}
		}
	}
	return &best
}

// Spread computes the price spread across sources of one pair. Requires at
// least two observations at the key.
func (a *Aggregator) Spread(chain core.ChainId, token0, token1 string) *core.PriceSpread {
	sources := a.store.Sources(chain, token0, token1)
	if len(sources) < 2 {
		return nil
	}

	min, max := sources[0].Price, sources[0].Price
	for _, s := range sources[1:] {
		if s.Price.Cmp(min) < 0 {
			min = s.Price
		}
		if s.Price.Cmp(max) > 0 {
			max = s.Price
		}
	}

	spreadBps := int64(0)
	if min.Sign() > 0 {
		diff := new(big.Int).Sub(max, min)
		diff.Mul(diff, big.NewInt(10000))
		spreadBps = new(big.Int).Quo(diff, min).Int64()
	}

	return &core.PriceSpread{
		Chain:      chain,
		Token0:     token0,
		Token1:     token1,
		MinPrice:   min,
		MaxPrice:   max,
		SpreadBps:  spreadBps,
		NumSources: len(sources),
	}
}

// AllSpreads returns every pair on chain with at least two sources and a
// spread at or above minBps, sorted descending by spread.
func (a *Aggregator) AllSpreads(chain core.ChainId, minBps int64) []core.PriceSpread {
	var out []core.PriceSpread
	for _, key := range a.store.Keys(chain) {
		spread := a.Spread(key.Chain, key.Token0, key.Token1)
		if spread != nil && spread.SpreadBps >= minBps {
			out = append(out, *spread)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpreadBps > out[j].SpreadBps })
	return out
}

// ClearStale evicts observations past staleness relative to nowMs, returning
// the number removed.
func (a *Aggregator) ClearStale(nowMs int64) int {
	return a.store.ClearStale(nowMs)
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
