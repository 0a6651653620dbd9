package main

import (
	"context"
	"flag"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

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

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg.Logging)
	log.Info().Msg("Starting dexarb - real-time arbitrage detection core")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Application error")
	}

	log.Info().Msg("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()
	if cfg.Metrics.Enabled {
		if err := m.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			m.Shutdown(shutdownCtx)
		}()
		log.Info().Int("port", cfg.Metrics.Port).Msg("Metrics server started")
	}

	persist, err := persistence.NewStore(cfg.Persistence.SQLitePath)
	if err != nil {
		return err
	}
	defer persist.Close()
	log.Info().Str("path", cfg.Persistence.SQLitePath).Msg("SQLite initialized")

	rpcClient, err := base.NewClient(cfg.Chain.RPCURL)
	if err != nil {
		return err
	}
	log.Info().Msg("RPC client connected")

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

	detectorSvc := detector.New(priceStore, newDispatcher(m), m, detector.Config{
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

	log.Info().Msg("Starting bootstrap...")
	bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 10*time.Minute)
	if err := curatorSvc.Bootstrap(bootstrapCtx); err != nil {
		bootstrapCancel()
		return err
	}
	bootstrapCancel()

	log.Info().Int("pools", curatorSvc.PoolCount()).Msg("Pool registry initialized")

	log.Info().Msg("Running initial scan...")
	opportunities := detectorSvc.DetectOnce(time.Now().UnixMilli())
	if len(opportunities) > 0 {
		log.Info().Int("count", len(opportunities)).Msg("Initial scan found opportunities")
	} else {
		log.Info().Msg("No arbitrage opportunities found in initial scan")
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Msg("Starting ingestion service...")
		return ingestionSvc.Run(gCtx)
	})

	g.Go(func() error {
		log.Info().Msg("Starting detector...")
		return detectorSvc.Run(gCtx)
	})

	g.Go(func() error {
		log.Info().Msg("Starting curator...")
		return curatorSvc.Run(gCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}

	return nil
}

// newDispatcher wires the single opportunity handler this binary ships with:
// structured logging plus a profitable-opportunity metric. cmd/ui runs its
// own pipeline and detector, whose dispatcher streams opportunities to
// WebSocket clients instead.
func newDispatcher(m *metrics.Metrics) *dispatch.Dispatcher {
	d := dispatch.NewWithMetrics(m)
	d.Register(func(opp core.Opportunity) error {
		steps := make([]string, len(opp.Path))
		for i, s := range opp.Path {
			steps[i] = s.Pool
		}

		log.Info().
			Int64("opportunity_id", opp.ID).
			Strs("pools", steps).
			Str("profit_wei", opp.ProfitWei.String()).
			Float64("confidence", opp.Confidence).
			Uint64("gas_estimate", opp.GasEstimate).
			Msg("ARBITRAGE OPPORTUNITY DETECTED")

		if m != nil {
			m.RecordProfitableOpportunity()
		}
		return nil
	})
	return d
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}
