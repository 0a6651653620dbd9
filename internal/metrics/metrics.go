package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics holds all Prometheus metrics for the arbitrage detection system.
type Metrics struct {
	// Event metrics
	EventsReceived *prometheus.CounterVec
	EventLatency   prometheus.Histogram

	// Store metrics
	StoreObservations prometheus.Gauge
	StorePairs         prometheus.Gauge

	// Scan metrics
	ScanLatency prometheus.Histogram

	// Detection metrics
	ScanDetectionLatency    prometheus.Histogram
	CyclesChecked           prometheus.Counter
	ProfitableOpportunities prometheus.Counter
	HandlerFailures         prometheus.Counter

	// Pipeline metrics
	PipelineLatency prometheus.Histogram

	// System metrics
	PoolsTracked     prometheus.Gauge
	WebSocketStatus  prometheus.Gauge
	LastBlockSeen    prometheus.Gauge
	BootstrapLatency prometheus.Histogram

	server *http.Server
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_events_received_total",
				Help: "Total number of events received by type",
			},
			[]string{"type"},
		),
		EventLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arb_event_latency_seconds",
				Help:    "Latency from Sync event decode to its processing",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			},
		),
		StoreObservations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arb_store_observations",
				Help: "Current number of price observations held in the store",
			},
		),
		StorePairs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arb_store_pairs",
				Help: "Current number of distinct (chain, token0, token1) pairs in the store",
			},
		),
		ScanLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arb_scan_latency_seconds",
				Help:    "Time to build a trade graph from a store snapshot",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~400ms
			},
		),
		ScanDetectionLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arb_scan_detection_latency_seconds",
				Help:    "Time to run MMBF detection across all base tokens in a scan",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
		),
		CyclesChecked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arb_cycles_checked_total",
				Help: "Total number of candidate cycles/paths evaluated",
			},
		),
		ProfitableOpportunities: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arb_profitable_opportunities_total",
				Help: "Total number of profitable opportunities after simulation",
			},
		),
		HandlerFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arb_handler_failures_total",
				Help: "Total number of opportunity handler errors or panics",
			},
		),
		PipelineLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arb_pipeline_latency_seconds",
				Help:    "Full pipeline latency from event receipt to opportunity identification",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
		),
		PoolsTracked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arb_pools_tracked",
				Help: "Number of pools currently being tracked",
			},
		),
		WebSocketStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arb_websocket_connected",
				Help: "WebSocket connection status (1=connected, 0=disconnected)",
			},
		),
		LastBlockSeen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arb_last_block_seen",
				Help: "Last block number seen from events",
			},
		),
		BootstrapLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arb_bootstrap_latency_seconds",
				Help:    "Time to bootstrap pool data",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
			},
		),
	}

	// Register all metrics
	prometheus.MustRegister(
		m.EventsReceived,
		m.EventLatency,
		m.StoreObservations,
		m.StorePairs,
		m.ScanLatency,
		m.ScanDetectionLatency,
		m.CyclesChecked,
		m.ProfitableOpportunities,
		m.HandlerFailures,
		m.PipelineLatency,
		m.PoolsTracked,
		m.WebSocketStatus,
		m.LastBlockSeen,
		m.BootstrapLatency,
	)

	return m
}

// StartServer starts the HTTP server for Prometheus metrics.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		log.Info().Int("port", port).Str("path", path).Msg("Starting metrics server")
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

// Shutdown gracefully stops the metrics server.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server != nil {
		return m.server.Shutdown(ctx)
	}
	return nil
}

// RecordEventReceived increments the event counter for the given type.
func (m *Metrics) RecordEventReceived(eventType string) {
	m.EventsReceived.WithLabelValues(eventType).Inc()
}

// RecordEventLatency records the time elapsed since blockTime. The ingestion
// service passes a Sync event's decode time, not its block's timestamp.
func (m *Metrics) RecordEventLatency(blockTime time.Time) {
	latency := time.Since(blockTime).Seconds()
	m.EventLatency.Observe(latency)
}

// RecordStoreStats updates the store observation and pair-count gauges.
func (m *Metrics) RecordStoreStats(observations, pairs int) {
	m.StoreObservations.Set(float64(observations))
	m.StorePairs.Set(float64(pairs))
}

// RecordScanLatency records the time to build a trade graph from a snapshot.
func (m *Metrics) RecordScanLatency(d time.Duration) {
	m.ScanLatency.Observe(d.Seconds())
}

// RecordDetectionLatency records the time to run a full detection scan.
func (m *Metrics) RecordDetectionLatency(d time.Duration) {
	m.ScanDetectionLatency.Observe(d.Seconds())
}

// RecordCyclesChecked increments the cycles/paths-checked counter by n.
func (m *Metrics) RecordCyclesChecked(n int) {
	m.CyclesChecked.Add(float64(n))
}

// RecordProfitableOpportunity increments the profitable opportunities counter.
func (m *Metrics) RecordProfitableOpportunity() {
	m.ProfitableOpportunities.Inc()
}

// RecordHandlerFailure increments the handler failure counter.
func (m *Metrics) RecordHandlerFailure() {
	m.HandlerFailures.Inc()
}

// RecordPipelineLatency records the full pipeline latency.
func (m *Metrics) RecordPipelineLatency(d time.Duration) {
	m.PipelineLatency.Observe(d.Seconds())
}

// SetPoolsTracked sets the current number of tracked pools.
func (m *Metrics) SetPoolsTracked(count int) {
	m.PoolsTracked.Set(float64(count))
}

// SetWebSocketConnected sets the WebSocket connection status.
func (m *Metrics) SetWebSocketConnected(connected bool) {
	if connected {
		m.WebSocketStatus.Set(1)
	} else {
		m.WebSocketStatus.Set(0)
	}
}

// SetLastBlockSeen sets the last block number seen.
func (m *Metrics) SetLastBlockSeen(block uint64) {
	m.LastBlockSeen.Set(float64(block))
}

// RecordBootstrapLatency records the bootstrap duration.
func (m *Metrics) RecordBootstrapLatency(d time.Duration) {
	m.BootstrapLatency.Observe(d.Seconds())
}
