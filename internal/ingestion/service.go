package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"dexarb/internal/core"
	"dexarb/internal/metrics"
	"dexarb/internal/store"

	"github.com/rs/zerolog/log"
)

const (
	maxReconnectAttempts = 10
	initialBackoff       = 1 * time.Second
	maxBackoff           = 30 * time.Second

	// priceScaleExp is the exponent of the 1e18 fixed-point base
	// PriceObservation.Price is quoted in (token1-per-token0).
	priceScaleExp = 18
)

// Service handles event ingestion from the blockchain and feeds decoded
// reserve updates into the price store as PriceObservations.
type Service struct {
	wsURL   string
	client  *WSClient
	decoder *Decoder

	store    *store.Store
	registry *Registry
	chain    core.ChainId
	dex      core.DexId
	metrics  *metrics.Metrics

	mu             sync.RWMutex
	factoryAddress string

	syncEvents        chan *SyncEvent
	poolCreatedEvents chan *PoolCreatedEvent

	lastBlockNumber uint64

	reconciler          *Reconciler
	bootstrapStartBlock uint64
	reconciliationDone  bool
}

// NewService creates a new ingestion service. registry supplies the
// token0/token1 metadata a bare Sync event can't carry; chain/dex label
// every observation this service produces.
func NewService(
	wsURL string,
	factoryAddress string,
	s *store.Store,
	registry *Registry,
	chain core.ChainId,
	dex core.DexId,
	m *metrics.Metrics,
) *Service {
	return &Service{
		wsURL:             wsURL,
		decoder:           NewDecoder(),
		store:             s,
		registry:          registry,
		chain:             chain,
		dex:               dex,
		metrics:           m,
		factoryAddress:    strings.ToLower(factoryAddress),
		syncEvents:        make(chan *SyncEvent, 1000),
		poolCreatedEvents: make(chan *PoolCreatedEvent, 100),
	}
}

// SyncEvents returns the channel for receiving Sync events.
func (s *Service) SyncEvents() <-chan *SyncEvent {
	return s.syncEvents
}

// PoolCreatedEvents returns the channel for receiving PoolCreated events.
func (s *Service) PoolCreatedEvents() <-chan *PoolCreatedEvent {
	return s.poolCreatedEvents
}

// TrackedPoolCount returns the number of pools the registry knows about.
func (s *Service) TrackedPoolCount() int {
	return s.registry.Count()
}

// Run starts the ingestion service with automatic reconnection.
func (s *Service) Run(ctx context.Context) error {
	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(attempt)
			log.Info().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Reconnecting to WebSocket")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := s.runOnce(ctx)
		if err == nil || ctx.Err() != nil {
			return err
		}

		log.Error().Err(err).Msg("WebSocket connection error")

		if s.metrics != nil {
			s.metrics.SetWebSocketConnected(false)
		}
	}

	return fmt.Errorf("max reconnection attempts reached")
}

// runOnce runs the ingestion service until an error occurs or context is canceled.
func (s *Service) runOnce(ctx context.Context) error {
	s.client = NewWSClient(s.wsURL)

	if err := s.client.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to websocket: %w", err)
	}
	defer s.client.Close()

	if s.metrics != nil {
		s.metrics.SetWebSocketConnected(true)
	}

	if err := s.subscribe(ctx); err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}

	// Reconciliation runs after subscription is confirmed but before message
	// processing, so nothing between bootstrap and streaming is missed.
	if err := s.runReconciliation(ctx); err != nil {
		log.Warn().Err(err).Msg("Reconciliation failed, continuing with potentially stale data")
	}

	go s.client.StartPingLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.client.ReadMessages(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case msg := <-s.client.Messages():
			s.processMessage(msg)
		}
	}
}

// subscribe subscribes to Sync and PoolCreated events.
func (s *Service) subscribe(ctx context.Context) error {
	addresses := s.registry.Addresses()
	if s.factoryAddress != "" {
		addresses = append(addresses, s.factoryAddress)
	}

	topics := []string{
		SyncEventTopic.Hex(),
		PoolCreatedEventTopic.Hex(),
	}

	return s.client.Subscribe(ctx, addresses, topics)
}

// Resubscribe updates the subscription with the registry's current addresses.
func (s *Service) Resubscribe(ctx context.Context) error {
	if s.client == nil || !s.client.IsConnected() {
		return fmt.Errorf("not connected")
	}

	if err := s.client.Unsubscribe(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to unsubscribe")
	}

	return s.subscribe(ctx)
}

// processMessage processes a raw WebSocket message.
func (s *Service) processMessage(raw json.RawMessage) {
	log.Debug().RawJSON("message", raw).Msg("Received WebSocket message")

	var notification struct {
		Subscription string   `json:"subscription"`
		Result       LogEntry `json:"result"`
	}

	if err := json.Unmarshal(raw, &notification); err != nil {
		log.Warn().Err(err).Msg("Failed to parse notification")
		return
	}

	logEntry := &notification.Result

	if logEntry.Removed {
		log.Debug().Str("tx", logEntry.TransactionHash).Msg("Skipping removed log")
		return
	}

	if IsSyncEvent(logEntry) {
		s.processSyncEvent(logEntry)
	} else if IsPoolCreatedEvent(logEntry) {
		s.processPoolCreatedEvent(logEntry)
	} else {
		log.Debug().
			Str("address", logEntry.Address).
			Int("topics", len(logEntry.Topics)).
			Msg("Received unknown event type")
	}
}

// processSyncEvent decodes a Sync event and, if the pool is tracked, writes
// a PriceObservation into the store.
func (s *Service) processSyncEvent(logEntry *LogEntry) {
	normalizedAddr := strings.ToLower(logEntry.Address)

	info, tracked := s.registry.Get(normalizedAddr)
	if !tracked {
		log.Debug().Str("pool", normalizedAddr).Msg("Sync event for untracked pool, skipping")
		return
	}

	event, err := s.decoder.DecodeSyncEvent(logEntry)
	if err != nil {
		log.Warn().Err(err).Str("pool", normalizedAddr).Msg("Failed to decode Sync event")
		return
	}

	if s.metrics != nil {
		s.metrics.RecordEventReceived("sync")
		s.metrics.RecordEventLatency(event.Timestamp)
	}

	s.store.Add(observationFromSync(s.chain, s.dex, info, event))

	if event.BlockNumber > s.lastBlockNumber {
		s.lastBlockNumber = event.BlockNumber
		if s.metrics != nil {
			s.metrics.SetLastBlockSeen(event.BlockNumber)
		}
	}

	select {
	case s.syncEvents <- event:
	default:
	}
}

// processPoolCreatedEvent decodes a PoolCreated event and forwards it to the
// curator (via the channel); it does not register the pool itself.
func (s *Service) processPoolCreatedEvent(logEntry *LogEntry) {
	event, err := s.decoder.DecodePoolCreatedEvent(logEntry)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to decode PoolCreated event")
		return
	}

	if s.metrics != nil {
		s.metrics.RecordEventReceived("pool_created")
	}

	select {
	case s.poolCreatedEvents <- event:
		log.Info().
			Str("pool", event.PoolAddress).
			Str("token0", event.Token0).
			Str("token1", event.Token1).
			Bool("stable", event.IsStable).
			Msg("New pool created")
	default:
		log.Warn().Str("pool", event.PoolAddress).Msg("PoolCreated channel full")
	}
}

// LastBlockNumber returns the last block number seen.
func (s *Service) LastBlockNumber() uint64 {
	return s.lastBlockNumber
}

// SetReconciler configures the reconciler for filling the bootstrap-to-streaming gap.
func (s *Service) SetReconciler(reconciler *Reconciler, bootstrapStartBlock uint64) {
	s.reconciler = reconciler
	s.bootstrapStartBlock = bootstrapStartBlock
	s.reconciliationDone = false
}

func (s *Service) runReconciliation(ctx context.Context) error {
	if s.reconciler == nil || s.bootstrapStartBlock == 0 {
		log.Debug().Msg("Skipping reconciliation - not configured")
		return nil
	}
	if s.reconciliationDone {
		return nil
	}

	currentBlock, err := s.reconciler.GetCurrentBlock(ctx)
	if err != nil {
		return fmt.Errorf("getting current block for reconciliation: %w", err)
	}

	result, err := s.reconciler.Reconcile(ctx, s.bootstrapStartBlock, currentBlock)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	s.reconciliationDone = true

	log.Info().
		Uint64("from_block", result.FromBlock).
		Uint64("to_block", result.ToBlock).
		Int("events_applied", result.EventsApplied).
		Int("pools_updated", result.PoolsUpdated).
		Dur("duration", result.Duration).
		Msg("Reconciliation completed - store is now up to date")

	return nil
}

func calculateBackoff(attempt int) time.Duration {
	backoff := initialBackoff * (1 << uint(attempt))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

// observationFromSync builds a PriceObservation from a decoded Sync event
// and its pool metadata. Price is floor(reserve1 * 1e18 / reserve0),
// token1-per-token0 in raw reserve units.
func observationFromSync(chain core.ChainId, dex core.DexId, info PoolInfo, event *SyncEvent) core.PriceObservation {
	price := big.NewInt(0)
	if event.Reserve0.Sign() > 0 {
		num := new(big.Int).Mul(event.Reserve1, pow10(priceScaleExp))
		price = num.Quo(num, event.Reserve0)
	}

	return core.PriceObservation{
		Chain:    chain,
		Dex:      dex,
		Pool:     event.PoolAddress,
		Token0:   info.Token0,
		Token1:   info.Token1,
		Reserve0: event.Reserve0,
		Reserve1: event.Reserve1,
		Price:    price,
		TsMs:     event.Timestamp.UnixMilli(),
	}
}

func pow10(exp int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
