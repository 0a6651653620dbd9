package ingestion

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"dexarb/internal/core"
	"dexarb/internal/store"
	"dexarb/pkg/chain/base"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

const (
	// maxBlockRange limits the number of blocks queried in a single getLogs
	// call to avoid RPC timeouts on large ranges.
	maxBlockRange = 1000
)

// Reconciler fetches historical events to fill gaps between bootstrap and streaming.
type Reconciler struct {
	client   *base.Client
	decoder  *Decoder
	store    *store.Store
	registry *Registry
	chain    core.ChainId
	dex      core.DexId
}

// NewReconciler creates a new reconciler.
func NewReconciler(client *base.Client, s *store.Store, registry *Registry, chain core.ChainId, dex core.DexId) *Reconciler {
	return &Reconciler{
		client:   client,
		decoder:  NewDecoder(),
		store:    s,
		registry: registry,
		chain:    chain,
		dex:      dex,
	}
}

// ReconcileResult contains statistics from reconciliation.
type ReconcileResult struct {
	FromBlock     uint64
	ToBlock       uint64
	EventsFound   int
	EventsApplied int
	PoolsUpdated  int
	Duration      time.Duration
}

// Reconcile fetches and applies historical Sync events from fromBlock to
// toBlock, filling the gap between bootstrap (a point-in-time reserve read)
// and WebSocket streaming (future events only).
func (r *Reconciler) Reconcile(ctx context.Context, fromBlock, toBlock uint64) (*ReconcileResult, error) {
	if fromBlock > toBlock {
		return &ReconcileResult{FromBlock: fromBlock, ToBlock: toBlock}, nil
	}

	startTime := time.Now()
	result := &ReconcileResult{FromBlock: fromBlock, ToBlock: toBlock}

	addresses := r.registry.Addresses()
	poolAddresses := make([]common.Address, 0, len(addresses))
	for _, addr := range addresses {
		poolAddresses = append(poolAddresses, common.HexToAddress(addr))
	}

	if len(poolAddresses) == 0 {
		log.Warn().Msg("No tracked pools for reconciliation")
		return result, nil
	}

	log.Info().
		Uint64("from_block", fromBlock).
		Uint64("to_block", toBlock).
		Int("tracked_pools", len(poolAddresses)).
		Msg("Starting reconciliation")

	poolsUpdated := make(map[string]struct{})

	for chunkStart := fromBlock; chunkStart <= toBlock; chunkStart += maxBlockRange {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		chunkEnd := chunkStart + maxBlockRange - 1
		if chunkEnd > toBlock {
			chunkEnd = toBlock
		}

		events, err := r.fetchSyncEvents(ctx, poolAddresses, chunkStart, chunkEnd)
		if err != nil {
			log.Warn().Err(err).Uint64("from", chunkStart).Uint64("to", chunkEnd).
				Msg("Failed to fetch events for block range, continuing")
			continue
		}

		result.EventsFound += len(events)

		for _, event := range events {
			poolAddr := strings.ToLower(event.PoolAddress)

			info, tracked := r.registry.Get(poolAddr)
			if !tracked {
				continue
			}

			r.store.Add(observationFromSync(r.chain, r.dex, info, event))
			result.EventsApplied++
			poolsUpdated[poolAddr] = struct{}{}
		}
	}

	result.PoolsUpdated = len(poolsUpdated)
	result.Duration = time.Since(startTime)

	log.Info().
		Uint64("from_block", fromBlock).
		Uint64("to_block", toBlock).
		Int("events_found", result.EventsFound).
		Int("events_applied", result.EventsApplied).
		Int("pools_updated", result.PoolsUpdated).
		Dur("duration", result.Duration).
		Msg("Reconciliation complete")

	return result, nil
}

// fetchSyncEvents fetches Sync events from the blockchain for the given block range.
func (r *Reconciler) fetchSyncEvents(ctx context.Context, addresses []common.Address, fromBlock, toBlock uint64) ([]*SyncEvent, error) {
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(int64(fromBlock)),
		ToBlock:   big.NewInt(int64(toBlock)),
		Addresses: addresses,
		Topics:    [][]common.Hash{{SyncEventTopic}},
	}

	logs, err := r.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filtering logs: %w", err)
	}

	events := make([]*SyncEvent, 0, len(logs))
	for _, ethLog := range logs {
		if ethLog.Removed {
			continue
		}

		logEntry := &LogEntry{
			Address:         strings.ToLower(ethLog.Address.Hex()),
			Topics:          make([]string, len(ethLog.Topics)),
			Data:            fmt.Sprintf("0x%x", ethLog.Data),
			BlockNumber:     fmt.Sprintf("0x%x", ethLog.BlockNumber),
			TransactionHash: ethLog.TxHash.Hex(),
			LogIndex:        fmt.Sprintf("0x%x", ethLog.Index),
			Removed:         ethLog.Removed,
		}
		for i, topic := range ethLog.Topics {
			logEntry.Topics[i] = topic.Hex()
		}

		event, err := r.decoder.DecodeSyncEvent(logEntry)
		if err != nil {
			log.Debug().Err(err).Str("pool", logEntry.Address).Uint64("block", ethLog.BlockNumber).
				Msg("Failed to decode Sync event during reconciliation")
			continue
		}

		events = append(events, event)
	}

	return events, nil
}

// GetCurrentBlock returns the current block number from the RPC.
func (r *Reconciler) GetCurrentBlock(ctx context.Context) (uint64, error) {
	return r.client.BlockNumber(ctx)
}
