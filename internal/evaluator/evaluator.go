// Package evaluator implements C7, the Profit Evaluator: the liquidity
// gate, constant-product slippage simulator, bisection-based optimal sizing,
// gas netting, and confidence scoring. This is the authoritative sizing
// path (unlike the DFS evaluator's blanket rate-product approximation in
// internal/dfscycle). Grounded on the constant-product formula shape of an
// earlier calculateSwapOutput simulator, since removed; the bisection
// algorithm itself is authored fresh, since existing min/max-shrink
// heuristics in this codebase implement a materially different sizing
// strategy.
package evaluator

import (
	"math"
	"math/big"
	"sort"

	"dexarb/internal/core"
)

// Config controls the profit evaluator.
type Config struct {
	GasPriceGwei    int64
	MinLiquidityUSD float64
	// USDPrices maps a token identifier to its USD price. Lookup tries the
	// key as given, then case-insensitively (lowercased); a missing entry
	// is treated as 0 USD.
	USDPrices map[string]float64
}

// DefaultConfig returns sane defaults for the MMBF-fed evaluator.
func DefaultConfig() Config {
	return Config{
		GasPriceGwei:    30,
		MinLiquidityUSD: 50000,
		USDPrices:       map[string]float64{},
	}
}

func (c Config) usdPrice(token string) float64 {
	if p, ok := c.USDPrices[token]; ok {
		return p
	}
	if p, ok := c.USDPrices[lower(token)]; ok {
		return p
	}
	return 0
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// liquidityGate rejects a path if any edge's estimated USD liquidity falls
// below MinLiquidityUSD.
func (c Config) liquidityGate(path core.ArbitragePath) bool {
	for _, e := range path.Edges {
		usd := reserveFloat(e.ReserveIn)*1e-18*c.usdPrice(e.TokenIn) +
			reserveFloat(e.ReserveOut)*1e-18*c.usdPrice(e.TokenOut)
		if usd < c.MinLiquidityUSD {
			return false
		}
	}
	return true
}

func reserveFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

// simulate runs amountIn through every hop of path and returns the gross
// output in the start token (amount out of the last hop minus amountIn). A
// degenerate reserve at any hop yields 0.
func simulate(path core.ArbitragePath, amountIn *big.Int) *big.Int {
	if amountIn.Sign() <= 0 {
		return big.NewInt(0)
	}

	current := new(big.Int).Set(amountIn)
	for _, e := range path.Edges {
		if e.ReserveIn == nil || e.ReserveOut == nil || e.ReserveIn.Sign() <= 0 || e.ReserveOut.Sign() <= 0 {
			return big.NewInt(0)
		}

		feeBps := e.FeeBps
		if feeBps == 0 {
			feeBps = 30
		}
		amtPrime := new(big.Int).Mul(current, big.NewInt(10000-feeBps))
		amtPrime.Quo(amtPrime, big.NewInt(10000))

		denom := new(big.Int).Add(e.ReserveIn, amtPrime)
		if denom.Sign() <= 0 {
			return big.NewInt(0)
		}
		out := new(big.Int).Mul(e.ReserveOut, amtPrime)
		out.Quo(out, denom)

		current = out
	}

	return new(big.Int).Sub(current, amountIn)
}

// SimulateSteps runs amountIn through path exactly as simulate does, but
// returns the realized SwapStep sequence (used once sizing is final, to
// populate an Opportunity's path).
func SimulateSteps(path core.ArbitragePath, amountIn *big.Int) []core.SwapStep {
	steps := make([]core.SwapStep, len(path.Edges))
	current := new(big.Int).Set(amountIn)

	for i, e := range path.Edges {
		feeBps := e.FeeBps
		if feeBps == 0 {
			feeBps = 30
		}

		out := big.NewInt(0)
		if e.ReserveIn != nil && e.ReserveOut != nil && e.ReserveIn.Sign() > 0 && e.ReserveOut.Sign() > 0 && current.Sign() > 0 {
			amtPrime := new(big.Int).Mul(current, big.NewInt(10000-feeBps))
			amtPrime.Quo(amtPrime, big.NewInt(10000))
			denom := new(big.Int).Add(e.ReserveIn, amtPrime)
			if denom.Sign() > 0 {
				out = new(big.Int).Mul(e.ReserveOut, amtPrime)
				out.Quo(out, denom)
			}
		}

		steps[i] = core.SwapStep{
			Dex:       e.Dex,
			Pool:      e.Pool,
			TokenIn:   e.TokenIn,
			TokenOut:  e.TokenOut,
			AmountIn:  new(big.Int).Set(current),
			AmountOut: out,
		}
		current = out
	}

	return steps
}

// minReserve returns min(reserve_in, reserve_out) across every edge in path.
func minReserve(path core.ArbitragePath) *big.Int {
	var m *big.Int
	for _, e := range path.Edges {
		for _, r := range []*big.Int{e.ReserveIn, e.ReserveOut} {
			if r == nil {
				continue
			}
			if m == nil || r.Cmp(m) < 0 {
				m = r
			}
		}
	}
	if m == nil {
		return big.NewInt(0)
	}
	return m
}

// bisect searches the window [floor(0.0001*m), floor(0.1*m)] for the
// trade size maximizing profit, up to 20 iterations comparing
// simulate(mid) vs simulate(mid+1), tracking the best (size, profit)
// seen while climbing the unimodal profit hill.
func bisect(path core.ArbitragePath) (*big.Int, *big.Int) {
	m := minReserve(path)
	if m.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}

	mf := new(big.Float).SetInt(m)
	lo, _ := new(big.Float).Mul(mf, big.NewFloat(0.0001)).Int(nil)
	hi, _ := new(big.Float).Mul(mf, big.NewFloat(0.1)).Int(nil)

	if lo.Sign() <= 0 {
		lo = big.NewInt(1)
	}
	if hi.Cmp(lo) <= 0 {
		hi = new(big.Int).Add(lo, big.NewInt(1))
	}

	bestSize := new(big.Int).Set(lo)
	bestProfit := simulate(path, lo)

	one := big.NewInt(1)
	for i := 0; i < 20; i++ {
		if hi.Cmp(lo) <= 0 {
			break
		}

		mid := new(big.Int).Add(lo, hi)
		mid.Quo(mid, big.NewInt(2))
		midPlus := new(big.Int).Add(mid, one)

		pMid := simulate(path, mid)
		pMidPlus := simulate(path, midPlus)

		if pMid.Cmp(bestProfit) > 0 {
			bestProfit = pMid
			bestSize = new(big.Int).Set(mid)
		}
		if pMidPlus.Cmp(bestProfit) > 0 {
			bestProfit = pMidPlus
			bestSize = new(big.Int).Set(midPlus)
		}

		if pMidPlus.Cmp(pMid) > 0 {
			lo = midPlus
		} else {
			hi = mid
		}
	}

	return bestSize, bestProfit
}

// Evaluate runs the full sizing pipeline on path (liquidity gate, bisection
// sizing, gas netting, confidence) and returns nil if the path is rejected
// at any stage.
func Evaluate(path core.ArbitragePath, cfg Config) *core.ArbitragePath {
	if !cfg.liquidityGate(path) {
		return nil
	}

	size, gross := bisect(path)
	if gross.Sign() <= 0 {
		return nil
	}

	hops := int64(len(path.Edges))
	gasUnits := 150000*hops + 21000
	gasCost := new(big.Int).Mul(big.NewInt(gasUnits), big.NewInt(cfg.GasPriceGwei))
	gasCost.Mul(gasCost, big.NewInt(1_000_000_000))

	net := new(big.Int).Sub(gross, gasCost)
	if net.Sign() < 0 {
		net = big.NewInt(0)
	}
	if net.Sign() <= 0 {
		return nil
	}

	grossF, _ := new(big.Float).SetInt(gross).Float64()
	netF, _ := new(big.Float).SetInt(net).Float64()
	margin := 0.0
	if grossF > 0 {
		margin = netF / grossF
	}
	confidence := margin * (float64(path.ProfitBps) / 100)
	if confidence > 0.9 {
		confidence = 0.9
	}
	if confidence < 0 || math.IsNaN(confidence) {
		confidence = 0
	}

	out := path
	out.OptimalSize = size
	out.GasEstimate = uint64(gasUnits)
	out.NetProfit = net
	out.Confidence = confidence
	return &out
}

// EvaluateAll runs Evaluate over every path, dropping rejects and sorting
// survivors descending by net profit.
func EvaluateAll(paths []core.ArbitragePath, cfg Config) []core.ArbitragePath {
	var out []core.ArbitragePath
	for _, p := range paths {
		if scored := Evaluate(p, cfg); scored != nil {
			out = append(out, *scored)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NetProfit.Cmp(out[j].NetProfit) > 0
	})
	return out
}
