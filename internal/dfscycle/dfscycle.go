// Package dfscycle implements C4, the depth-first cycle enumerator: a
// bounded-length, pool-unique simple-cycle search from a start token, plus
// a blanket-rate-product evaluator. This is the "simple but shallow"
// detector (advisory, not authoritative — see internal/evaluator for the
// constant-product simulator MMBF relies on). Grounded on a
// find-cycles/evaluate-cycle split, restructured into a Cycle/CycleSet
// idiom.
package dfscycle

import (
	"math"
	"math/big"

	"dexarb/internal/core"
	"dexarb/internal/tradegraph"
)

// Config controls the DFS enumerator and its evaluator.
type Config struct {
	MaxPathLength int
	MinProfitWei  *big.Int
	GasPriceGwei  int64
}

// DefaultConfig returns sane defaults for the DFS detector.
func DefaultConfig() Config {
	return Config{
		MaxPathLength: 4,
		MinProfitWei:  big.NewInt(1_000_000_000_000_000), // 1e15
		GasPriceGwei:  30,
	}
}

// scale is 10^18, the fixed-point base for rate_product arithmetic.
var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
var scaleF = new(big.Float).SetInt(scale)

// Enumerate walks g depth-first from startToken, returning every simple
// cycle (pool-unique, at most cfg.MaxPathLength hops) as a sequence of
// edges. Tokens may repeat provided a new pool is used each hop; only a
// pool, not a token, blocks revisiting.
func Enumerate(g *tradegraph.Graph, startToken string, cfg Config) [][]core.TradeEdge {
	var cycles [][]core.TradeEdge
	var dfs func(current string, path []core.TradeEdge, usedPools map[string]bool)

	dfs = func(current string, path []core.TradeEdge, usedPools map[string]bool) {
		if len(path) >= cfg.MaxPathLength {
			return
		}

		for _, edge := range g.EdgesFrom(current) {
			if usedPools[edge.Pool] {
				continue
			}

			newPath := append(append([]core.TradeEdge{}, path...), edge)

			if edge.TokenOut == startToken && len(newPath) >= 1 {
				cycle := make([]core.TradeEdge, len(newPath))
				copy(cycle, newPath)
				cycles = append(cycles, cycle)
				continue
			}

			nextUsed := make(map[string]bool, len(usedPools)+1)
			for k := range usedPools {
				nextUsed[k] = true
			}
			nextUsed[edge.Pool] = true

			dfs(edge.TokenOut, newPath, nextUsed)
		}
	}

	dfs(startToken, nil, map[string]bool{})
	return cycles
}

// Evaluate scores a single cycle. Returns nil if the cycle is unprofitable
// (rate_product <= scale) or falls below MinProfitWei after gas.
func Evaluate(cycle []core.TradeEdge, cfg Config) *core.ArbitragePath {
	if len(cycle) == 0 {
		return nil
	}

	acc := new(big.Float).SetInt(scale)
	minLiquidity := math.Inf(1)

	for _, e := range cycle {
		rateScaled := new(big.Float).Mul(big.NewFloat(e.Rate), scaleF)
		acc.Mul(acc, rateScaled)
		acc.Quo(acc, scaleF)

		liq := sqrtReserves(e.ReserveIn, e.ReserveOut)
		if liq < minLiquidity {
			minLiquidity = liq
		}
	}

	rateProduct, _ := acc.Int(nil)
	if rateProduct.Cmp(scale) <= 0 {
		return nil
	}

	diff := new(big.Int).Sub(rateProduct, scale)
	profitBps := new(big.Int).Quo(new(big.Int).Mul(diff, big.NewInt(10000)), scale).Int64()

	if math.IsInf(minLiquidity, 0) || minLiquidity <= 0 {
		return nil
	}
	optimalSize, _ := big.NewFloat(minLiquidity * 0.01).Int(nil)

	gross := new(big.Int).Quo(new(big.Int).Mul(optimalSize, diff), scale)

	hops := int64(len(cycle))
	gasUnits := 150000 * hops
	gasCost := new(big.Int).Mul(big.NewInt(gasUnits), big.NewInt(cfg.GasPriceGwei))
	gasCost.Mul(gasCost, big.NewInt(1_000_000_000))

	net := new(big.Int).Sub(gross, gasCost)
	if net.Cmp(cfg.MinProfitWei) < 0 {
		return nil
	}

	return &core.ArbitragePath{
		Edges:       cycle,
		ProfitRatio: ratioFromRateProduct(rateProduct),
		ProfitBps:   profitBps,
		StartToken:  cycle[0].TokenIn,
		OptimalSize: optimalSize,
		GasEstimate: uint64(gasUnits),
		NetProfit:   net,
	}
}

func ratioFromRateProduct(rateProduct *big.Int) float64 {
	f := new(big.Float).Quo(new(big.Float).SetInt(rateProduct), scaleF)
	v, _ := f.Float64()
	return v
}

func sqrtReserves(a, b *big.Int) float64 {
	if a == nil || b == nil || a.Sign() <= 0 || b.Sign() <= 0 {
		return 0
	}
	prod := new(big.Float).Mul(new(big.Float).SetInt(a), new(big.Float).SetInt(b))
	f, _ := prod.Float64()
	if f < 0 {
		return 0
	}
	return math.Sqrt(f)
}

// Scan enumerates and evaluates every cycle from startToken, returning only
// the profitable ones.
func Scan(g *tradegraph.Graph, startToken string, cfg Config) []core.ArbitragePath {
	var out []core.ArbitragePath
	for _, cycle := range Enumerate(g, startToken, cfg) {
		if path := Evaluate(cycle, cfg); path != nil {
			out = append(out, *path)
		}
	}
	return out
}
