package main

import (
	"context"
	"encoding/json"
	"flag"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dexarb/internal/aggregator"
	"dexarb/internal/config"
	"dexarb/internal/core"
	"dexarb/internal/curator"
	"dexarb/internal/detector"
	"dexarb/internal/dfscycle"
	"dexarb/internal/dispatch"
	"dexarb/internal/evaluator"
	"dexarb/internal/ingestion"
	"dexarb/internal/metrics"
	"dexarb/internal/mmbf"
	"dexarb/internal/persistence"
	"dexarb/internal/store"
	"dexarb/pkg/chain/base"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub broadcasts detected opportunities to every connected WebSocket client.
// A mutex guards the client set; broadcast writes to each client in turn and
// drops any client whose write fails.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Warn().Err(err).Msg("Failed to write to WebSocket client, dropping")
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// opportunityView is the wire shape pushed to dashboard clients: core.Opportunity
// flattened to strings so big.Int fields survive JSON round-tripping cleanly.
type opportunityView struct {
	ID          int64    `json:"id"`
	TsMs        int64    `json:"ts_ms"`
	Chain       string   `json:"chain"`
	ProfitWei   string   `json:"profit_wei"`
	GasEstimate uint64   `json:"gas_estimate"`
	Confidence  float64  `json:"confidence"`
	Pools       []string `json:"pools"`
	Tokens      []string `json:"tokens"`
}

func toView(opp core.Opportunity) opportunityView {
	pools := make([]string, len(opp.Path))
	tokens := make([]string, 0, len(opp.Path)+1)
	for i, s := range opp.Path {
		pools[i] = s.Pool
		if i == 0 {
			tokens = append(tokens, s.TokenIn)
		}
		tokens = append(tokens, s.TokenOut)
	}
	return opportunityView{
		ID:          opp.ID,
		TsMs:        opp.TsMs,
		Chain:       string(opp.Chain),
		ProfitWei:   opp.ProfitWei.String(),
		GasEstimate: opp.GasEstimate,
		Confidence:  opp.Confidence,
		Pools:       pools,
		Tokens:      tokens,
	}
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	addr := flag.String("addr", ":8090", "HTTP listen address for the dashboard")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	hub := newHub()

	chain, priceStore, err := runPipeline(ctx, cfg, hub)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start detection pipeline")
	}
	agg := aggregator.New(priceStore, cfg.Store.MinSources)

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(w, r, hub)
	})
	http.HandleFunc("/api/spreads", func(w http.ResponseWriter, r *http.Request) {
		handleSpreads(w, r, agg, chain)
	})
	http.HandleFunc("/", serveHome)

	log.Info().Str("addr", *addr).Msg("Dashboard listening")
	log.Fatal().Err(http.ListenAndServe(*addr, nil)).Msg("HTTP server exited")
}

// runPipeline wires the same store/ingestion/curator/detector stack as
// cmd/watcher, but registers the dashboard hub as the detector's sole
// opportunity handler instead of logging to stdout. Returns the chain and
// price store so the caller can serve aggregator queries over them.
func runPipeline(ctx context.Context, cfg *config.Config, hub *Hub) (core.ChainId, *store.Store, error) {
	m := metrics.New()

	persist, err := persistence.NewStore(cfg.Persistence.SQLitePath)
	if err != nil {
		return "", nil, err
	}

	rpcClient, err := base.NewClient(cfg.Chain.RPCURL)
	if err != nil {
		return "", nil, err
	}

	chain := core.ChainId(cfg.Chain.Name)
	dex := core.DexAerodrome

	priceStore := store.New(cfg.Store.StalenessThresholdMs)
	registry := ingestion.NewRegistry()

	ingestionSvc := ingestion.NewService(
		cfg.Chain.WSURL,
		cfg.Contracts.AerodromeFactory,
		priceStore,
		registry,
		chain,
		dex,
		m,
	)

	curatorSvc := curator.NewCurator(
		curator.Config{
			FactoryAddress:       cfg.Contracts.AerodromeFactory,
			TopPoolsCount:        cfg.Curator.TopPoolsCount,
			MinTVLUSD:            cfg.Evaluator.MinLiquidityUSD,
			ReevaluationInterval: cfg.Curator.ReevaluationInterval,
			BootstrapBatchSize:   cfg.Curator.BootstrapBatchSize,
			StartTokens:          cfg.Detector.StartTokens,
			Chain:                chain,
			Dex:                  dex,
		},
		rpcClient,
		persist,
		priceStore,
		registry,
		m,
		ingestionSvc,
	)

	minProfitWei, ok := new(big.Int).SetString(cfg.DFS.MinProfitWei, 10)
	if !ok {
		minProfitWei = big.NewInt(1_000_000_000_000_000)
	}

	d := dispatch.NewWithMetrics(m)
	d.Register(func(opp core.Opportunity) error {
		payload, err := json.Marshal(toView(opp))
		if err != nil {
			return err
		}
		hub.broadcast(payload)
		return nil
	})

	detectorSvc := detector.New(priceStore, d, m, detector.Config{
		Chain:        chain,
		StartTokens:  cfg.Detector.StartTokens,
		NumWorkers:   cfg.Detector.NumWorkers,
		ScanInterval: cfg.Detector.ScanInterval,
		DFS: dfscycle.Config{
			MaxPathLength: cfg.DFS.MaxPathLength,
			MinProfitWei:  minProfitWei,
			GasPriceGwei:  cfg.DFS.GasPriceGwei,
		},
		MMBF: mmbf.Config{
			MaxPathLength: cfg.MMBF.MaxPathLength,
			MaxIterations: cfg.MMBF.MaxIterations,
			MinProfitBps:  cfg.MMBF.MinProfitBps,
		},
		Evaluator: evaluator.Config{
			GasPriceGwei:    cfg.Evaluator.GasPriceGwei,
			MinLiquidityUSD: cfg.Evaluator.MinLiquidityUSD,
			USDPrices:       cfg.Evaluator.USDPrices,
		},
	})

	bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 10*time.Minute)
	defer bootstrapCancel()
	if err := curatorSvc.Bootstrap(bootstrapCtx); err != nil {
		return "", nil, err
	}

	go func() {
		if err := ingestionSvc.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Ingestion service exited")
		}
	}()
	go func() {
		if err := detectorSvc.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Detector exited")
		}
	}()
	go func() {
		if err := curatorSvc.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Curator exited")
		}
	}()

	return chain, priceStore, nil
}

// spreadView is the JSON wire shape for one entry of /api/spreads.
type spreadView struct {
	Token0     string `json:"token0"`
	Token1     string `json:"token1"`
	MinPrice   string `json:"min_price"`
	MaxPrice   string `json:"max_price"`
	SpreadBps  int64  `json:"spread_bps"`
	NumSources int    `json:"num_sources"`
}

// handleSpreads serves every tracked pair's cross-pool price spread,
// widest first, via internal/aggregator's C2 query surface.
func handleSpreads(w http.ResponseWriter, r *http.Request, agg *aggregator.Aggregator, chain core.ChainId) {
	spreads := agg.AllSpreads(chain, 0)
	views := make([]spreadView, len(spreads))
	for i, s := range spreads {
		views[i] = spreadView{
			Token0:     s.Token0,
			Token1:     s.Token1,
			MinPrice:   s.MinPrice.String(),
			MaxPrice:   s.MaxPrice.String(),
			SpreadBps:  s.SpreadBps,
			NumSources: s.NumSources,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		log.Warn().Err(err).Msg("Failed to encode spreads response")
	}
}

func handleWebSocket(w http.ResponseWriter, r *http.Request, hub *Hub) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	hub.add(conn)
	defer func() {
		hub.remove(conn)
		conn.Close()
	}()

	// Drain and discard client messages; this socket is push-only, but a
	// read loop is required to notice client disconnects promptly.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func serveHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, "static/index.html")
}
