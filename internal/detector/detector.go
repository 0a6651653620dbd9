// Package detector composes C1-C8 into the top-level scanning service: Scan
// runs the MMBF detector for each base token over a fresh per-scan trade
// graph, scores its output through the profit evaluator, and dispatches
// survivors; ScanDFS runs the DFS enumerator on its own. Grounded on a worker-pool/Config/Run
// shape common to this codebase's background services, generalized from
// "one best cycle per source" to "every profitable MMBF path per base token".
package detector

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"dexarb/internal/core"
	"dexarb/internal/dfscycle"
	"dexarb/internal/dispatch"
	"dexarb/internal/evaluator"
	"dexarb/internal/linegraph"
	"dexarb/internal/metrics"
	"dexarb/internal/mmbf"
	"dexarb/internal/store"
	"dexarb/internal/tradegraph"
)

// Config bundles every per-detector tunable.
type Config struct {
	Chain        core.ChainId
	StartTokens  []string
	NumWorkers   int
	ScanInterval time.Duration
	DFS          dfscycle.Config
	MMBF         mmbf.Config
	Evaluator    evaluator.Config
}

// DefaultConfig returns sane defaults for every nested config.
func DefaultConfig(chain core.ChainId, startTokens []string) Config {
	return Config{
		Chain:        chain,
		StartTokens:  startTokens,
		NumWorkers:   4,
		ScanInterval: 10 * time.Second,
		DFS:          dfscycle.DefaultConfig(),
		MMBF:         mmbf.DefaultConfig(),
		Evaluator:    evaluator.DefaultConfig(),
	}
}

// Stats are best-effort scan counters; none of them gate correctness.
type Stats struct {
	mu              sync.Mutex
	Scans           int64
	PathsFound      int64
	ProfitablePaths int64
	CyclesChecked   int64
	TotalScanTimeMs int64
}

func (s *Stats) record(cyclesChecked, pathsFound, profitablePaths, elapsedMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Scans++
	s.CyclesChecked += cyclesChecked
	s.PathsFound += pathsFound
	s.ProfitablePaths += profitablePaths
	s.TotalScanTimeMs += elapsedMs
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Scans:           s.Scans,
		PathsFound:      s.PathsFound,
		ProfitablePaths: s.ProfitablePaths,
		CyclesChecked:   s.CyclesChecked,
		TotalScanTimeMs: s.TotalScanTimeMs,
	}
}

// Detector owns the store reference, its own stats, and a dispatcher; it
// introduces no other process-wide state.
type Detector struct {
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics
	cfg        Config
	stats      Stats
	nextOppID  int64
	idMu       sync.Mutex
}

// New constructs a Detector reading from s and dispatching through d. m may
// be nil, in which case Scan skips recording to Prometheus.
func New(s *store.Store, d *dispatch.Dispatcher, m *metrics.Metrics, cfg Config) *Detector {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	return &Detector{store: s, dispatcher: d, metrics: m, cfg: cfg}
}

// Stats returns the detector's running counters.
func (d *Detector) Stats() Stats {
	return d.stats.Snapshot()
}

// Run scans on cfg.ScanInterval until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	if d.cfg.ScanInterval <= 0 {
		d.cfg.ScanInterval = 10 * time.Second
	}
	ticker := time.NewTicker(d.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Scan(time.Now().UnixMilli())
		}
	}
}

// Scan is one atomic, non-suspending compute phase: it builds a fresh
// trade graph from a store snapshot, fans out across base tokens using
// NumWorkers goroutines, and dispatches every net-profitable Opportunity.
// Only the base-token fan-out runs concurrently; each per-token line-graph
// build and MMBF pass is otherwise sequential. Graph-build time, detection
// (MMBF fan-out) time, and the number of candidate paths checked are
// reported to Prometheus when the Detector was constructed with a non-nil
// *metrics.Metrics.
func (d *Detector) Scan(nowMs int64) []core.Opportunity {
	start := time.Now()

	snapshot := d.store.Snapshot(d.cfg.Chain)
	graph := tradegraph.Build(snapshot)

	if d.metrics != nil {
		d.metrics.RecordScanLatency(time.Since(start))
	}

	if len(d.cfg.StartTokens) == 0 {
		d.stats.record(0, 0, 0, time.Since(start).Milliseconds())
		return nil
	}

	detectionStart := time.Now()

	workCh := make(chan string, len(d.cfg.StartTokens))
	resultsCh := make(chan []core.ArbitragePath, len(d.cfg.StartTokens))

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for token := range workCh {
				lg := linegraph.Build(graph.AllEdges(), token)
				resultsCh <- mmbf.Detect(lg, token, d.cfg.MMBF)
			}
		}()
	}

	for _, t := range d.cfg.StartTokens {
		workCh <- t
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	var allPaths []core.ArbitragePath
	for paths := range resultsCh {
		allPaths = append(allPaths, paths...)
	}

	if d.metrics != nil {
		d.metrics.RecordDetectionLatency(time.Since(detectionStart))
		d.metrics.RecordCyclesChecked(len(allPaths))
	}

	scored := evaluator.EvaluateAll(allPaths, d.cfg.Evaluator)

	opportunities := make([]core.Opportunity, 0, len(scored))
	for _, path := range scored {
		opp := d.toOpportunity(path, nowMs)
		opportunities = append(opportunities, opp)
		d.dispatcher.Emit(opp)
	}

	d.stats.record(int64(len(allPaths)), int64(len(allPaths)), int64(len(opportunities)), time.Since(start).Milliseconds())

	if len(opportunities) > 0 {
		log.Info().Int("count", len(opportunities)).Str("chain", string(d.cfg.Chain)).Msg("arbitrage opportunities detected")
	}

	return opportunities
}

// ScanDFS runs only the DFS cycle enumerator (C4), retained as the
// "simple but shallow" advisory path.
func (d *Detector) ScanDFS(nowMs int64) []core.Opportunity {
	snapshot := d.store.Snapshot(d.cfg.Chain)
	graph := tradegraph.Build(snapshot)

	var opportunities []core.Opportunity
	for _, token := range d.cfg.StartTokens {
		for _, path := range dfscycle.Scan(graph, token, d.cfg.DFS) {
			opp := d.toOpportunity(path, nowMs)
			opportunities = append(opportunities, opp)
			d.dispatcher.Emit(opp)
		}
	}
	return opportunities
}

// DetectOnce runs Scan serially (NumWorkers forced to 1) for deterministic
// test assertions.
func (d *Detector) DetectOnce(nowMs int64) []core.Opportunity {
	saved := d.cfg.NumWorkers
	d.cfg.NumWorkers = 1
	defer func() { d.cfg.NumWorkers = saved }()
	return d.Scan(nowMs)
}

func (d *Detector) toOpportunity(path core.ArbitragePath, tsMs int64) core.Opportunity {
	size := path.OptimalSize
	if size == nil {
		size = big.NewInt(0)
	}
	steps := evaluator.SimulateSteps(path, size)

	profit := path.NetProfit
	if profit == nil {
		profit = big.NewInt(0)
	}

	return core.Opportunity{
		ID:              d.nextID(),
		TsMs:            tsMs,
		Chain:           d.cfg.Chain,
		ProfitWei:       profit,
		GasEstimate:     path.GasEstimate,
		Path:            steps,
		FlashLoanToken:  path.StartToken,
		FlashLoanAmount: size,
		Confidence:      path.Confidence,
	}
}

func (d *Detector) nextID() int64 {
	d.idMu.Lock()
	defer d.idMu.Unlock()
	d.nextOppID++
	return d.nextOppID
}
