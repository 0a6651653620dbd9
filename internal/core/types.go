// Package core holds the data types shared across every detection-core
// component (C1-C8): the wire-level observation and opportunity records,
// the closed chain/dex enumerations, and the in-memory trade graph types
// built fresh for each scan.
package core

import (
	"math"
	"math/big"
)

// ChainId is a closed set of supported EVM chains.
type ChainId string

const (
	ChainEthereum ChainId = "ethereum"
	ChainArbitrum ChainId = "arbitrum"
	ChainOptimism ChainId = "optimism"
	ChainBase     ChainId = "base"
	ChainBSC      ChainId = "bsc"
)

// EVMChainID returns the canonical EVM chain id, or 0 if unknown.
func (c ChainId) EVMChainID() uint64 {
	switch c {
	case ChainEthereum:
		return 1
	case ChainArbitrum:
		return 42161
	case ChainOptimism:
		return 10
	case ChainBase:
		return 8453
	case ChainBSC:
		return 56
	default:
		return 0
	}
}

// DexId is a closed set of DEX labels. Semantics are unused by the core;
// it is carried through purely for display and bookkeeping.
type DexId string

const (
	DexUniswapV3  DexId = "uniswap_v3"
	DexSushiswap  DexId = "sushiswap"
	DexCurve      DexId = "curve"
	DexBalancer   DexId = "balancer"
	DexPancake    DexId = "pancakeswap"
	DexCamelot    DexId = "camelot"
	DexVelodrome  DexId = "velodrome"
	DexAerodrome  DexId = "aerodrome"
)

// PriceObservation is the wire record ingestion produces and the store consumes.
// Reserves and price are arbitrary-precision integers; price is token1-per-token0
// scaled by 1e18.
type PriceObservation struct {
	Chain    ChainId
	Dex      DexId
	Pool     string
	Token0   string
	Token1   string
	Reserve0 *big.Int
	Reserve1 *big.Int
	Price    *big.Int
	TsMs     int64
}

// PairKey identifies a price store bucket. Token ordering is as-given; the
// store never canonicalizes it, so a reverse pair lives under a distinct key.
type PairKey struct {
	Chain  ChainId
	Token0 string
	Token1 string
}

// AggregatedPrice is computed on demand, never stored.
type AggregatedPrice struct {
	Chain      ChainId
	Token0     string
	Token1     string
	Price      *big.Int
	Confidence float64
	Sources    []PriceObservation
	TsMs       int64
}

// PriceSpread describes the price disagreement across sources for one pair.
type PriceSpread struct {
	Chain      ChainId
	Token0     string
	Token1     string
	MinPrice   *big.Int
	MaxPrice   *big.Int
	SpreadBps  int64
	NumSources int
}

// TradeEdge is one directed swap leg available at scan time.
type TradeEdge struct {
	TokenIn    string
	TokenOut   string
	Pool       string
	Dex        DexId
	Rate       float64 // token_out per token_in
	ReserveIn  *big.Int
	ReserveOut *big.Int
	FeeBps     int64
}

// LogRate returns -ln(rate), or +Inf if rate <= 0.
func (e TradeEdge) LogRate() float64 {
	if e.Rate <= 0 {
		return math.Inf(1)
	}
	return LogRate(e.Rate)
}

// SwapStep is one leg of a realized or simulated Opportunity path.
type SwapStep struct {
	Dex      DexId
	Pool     string
	TokenIn  string
	TokenOut string
	AmountIn *big.Int
	AmountOut *big.Int
}

// Opportunity is a scored, sized, gas-netted arbitrage cycle ready for
// external consumption (C8 handler dispatch).
type Opportunity struct {
	ID              int64
	TsMs            int64
	Chain           ChainId
	ProfitWei       *big.Int
	GasEstimate     uint64
	Path            []SwapStep
	FlashLoanToken  string
	FlashLoanAmount *big.Int
	Confidence      float64
}

// ArbitragePath is the MMBF/DFS detectors' internal result shape, before
// the profit evaluator sizes and nets it into an Opportunity.
type ArbitragePath struct {
	Edges         []TradeEdge
	ProfitRatio   float64
	ProfitBps     int64
	StartToken    string
	OptimalSize   *big.Int
	GasEstimate   uint64
	NetProfit     *big.Int
	Confidence    float64
	ProfitUSDEst  float64
}

// Pools returns the ordered pool addresses used by this path.
func (p ArbitragePath) Pools() []string {
	pools := make([]string, len(p.Edges))
	for i, e := range p.Edges {
		pools[i] = e.Pool
	}
	return pools
}
