package evaluator

import (
	"math/big"
	"testing"

	"dexarb/internal/core"

	"github.com/stretchr/testify/require"
)

func bigReserve(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	return v
}

// profitablePath is a weth->usdc->weth round trip where the second pool
// gives back more weth per usdc than the first pool's implied fair rate,
// leaving room for profit net of the 30bps fee on each hop. At this depth
// the best gross profit (~2.3e17 wei) also clears the two-hop gas cost at
// the default 30 gwei (321000 gas, ~9.6e15 wei).
func profitablePath() core.ArbitragePath {
	weth := "0xweth"
	usdc := "0xusdc"
	return core.ArbitragePath{
		StartToken: weth,
		ProfitBps:  500,
		Edges: []core.TradeEdge{
			{
				TokenIn: weth, TokenOut: usdc, Pool: "0xpool1", FeeBps: 30,
				ReserveIn:  bigReserve("1000000000000000000000"), // 1e21
				ReserveOut: bigReserve("2000000000000000000000"), // 2e21
			},
			{
				TokenIn: usdc, TokenOut: weth, Pool: "0xpool2", FeeBps: 30,
				ReserveIn:  bigReserve("2000000000000000000000"), // 2e21
				ReserveOut: bigReserve("1050000000000000000000"), // 1.05e21
			},
		},
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinLiquidityUSD = 0
	cfg.USDPrices = map[string]float64{"0xweth": 3000, "0xusdc": 1}
	return cfg
}

// TestLiquidityGateRejectsThinPool verifies a path with any edge under
// MinLiquidityUSD is rejected before sizing is attempted.
func TestLiquidityGateRejectsThinPool(t *testing.T) {
	path := profitablePath()
	cfg := testConfig()
	cfg.MinLiquidityUSD = 1e12 // far above what this path's pools hold
	require.Nil(t, Evaluate(path, cfg))
}

// TestLiquidityGateCaseInsensitiveUSDLookup verifies usdPrice falls back to
// a lowercased key match.
func TestLiquidityGateCaseInsensitiveUSDLookup(t *testing.T) {
	cfg := testConfig()
	cfg.USDPrices = map[string]float64{"0xWETH": 3000, "0xUSDC": 1}
	require.Greater(t, cfg.usdPrice("0xweth"), 0.0)
}

// TestBisectFindsProfitableSize verifies Evaluate, given ample liquidity and
// a genuinely profitable round trip, returns a positive OptimalSize and
// NetProfit.
func TestBisectFindsProfitableSize(t *testing.T) {
	path := profitablePath()
	cfg := testConfig()

	scored := Evaluate(path, cfg)
	require.NotNil(t, scored)
	require.True(t, scored.OptimalSize.Sign() > 0)
	require.True(t, scored.NetProfit.Sign() > 0)
	require.Greater(t, scored.Confidence, 0.0)
}

// TestBisectSizeWithinLiquidityWindow verifies the chosen size stays inside
// the documented [0.0001*minReserve, 0.1*minReserve] search window.
func TestBisectSizeWithinLiquidityWindow(t *testing.T) {
	path := profitablePath()
	cfg := testConfig()

	scored := Evaluate(path, cfg)
	require.NotNil(t, scored)

	m := minReserve(path)
	lo := new(big.Float).Mul(new(big.Float).SetInt(m), big.NewFloat(0.0001))
	hi := new(big.Float).Mul(new(big.Float).SetInt(m), big.NewFloat(0.1))
	loInt, _ := lo.Int(nil)
	hiInt, _ := hi.Int(nil)

	require.True(t, scored.OptimalSize.Cmp(loInt) >= 0)
	require.True(t, scored.OptimalSize.Cmp(hiInt) <= 0)
}

// TestEvaluateRejectsWhenGasExceedsProfit verifies a thin-margin path nets
// out to nothing once gas is charged, at a high enough gas price.
func TestEvaluateRejectsWhenGasExceedsProfit(t *testing.T) {
	path := profitablePath()
	cfg := testConfig()
	cfg.GasPriceGwei = 1_000_000_000 // absurdly high, swamps any gross profit
	require.Nil(t, Evaluate(path, cfg))
}

// TestSimulateStepsMatchesSimulateNetOfAmountIn verifies SimulateSteps'
// final AmountOut, minus the input, agrees with simulate's own gross profit
// for the same size.
func TestSimulateStepsMatchesSimulateNetOfAmountIn(t *testing.T) {
	path := profitablePath()
	size := big.NewInt(1_000_000_000_000_000_000) // 1 WETH

	steps := SimulateSteps(path, size)
	require.Len(t, steps, len(path.Edges))

	gross := simulate(path, size)
	lastOut := steps[len(steps)-1].AmountOut
	require.Equal(t, 0, new(big.Int).Sub(lastOut, size).Cmp(gross))
}

// TestEvaluateAllSortsDescendingAndDropsRejects verifies EvaluateAll keeps
// only survivors and orders them by descending net profit.
func TestEvaluateAllSortsDescendingAndDropsRejects(t *testing.T) {
	good := profitablePath()

	// deeper is the same round trip with every reserve doubled, so it nets more.
	deeper := profitablePath()
	for i := range deeper.Edges {
		deeper.Edges[i].ReserveIn = new(big.Int).Mul(deeper.Edges[i].ReserveIn, big.NewInt(2))
		deeper.Edges[i].ReserveOut = new(big.Int).Mul(deeper.Edges[i].ReserveOut, big.NewInt(2))
	}

	bad := profitablePath()
	bad.Edges = []core.TradeEdge{
		{TokenIn: "a", TokenOut: "b", Pool: "0xthin", FeeBps: 30, ReserveIn: big.NewInt(1), ReserveOut: big.NewInt(1)},
	}

	cfg := testConfig()
	out := EvaluateAll([]core.ArbitragePath{bad, good, deeper}, cfg)

	require.Len(t, out, 2)
	require.True(t, out[0].NetProfit.Sign() > 0)
	require.True(t, out[0].NetProfit.Cmp(out[1].NetProfit) > 0)
	require.Equal(t, deeper.Edges[0].ReserveIn, out[0].Edges[0].ReserveIn)
}
