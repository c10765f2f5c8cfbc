package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/ports"
)

// BackfillConfig holds tuning for the chunked backfill fetcher.
type BackfillConfig struct {
	// MaxCandlesPerRequest is the remote API's per-call limit.
	MaxCandlesPerRequest int
	// Workers bounds concurrent chunk fetches. Chunks target disjoint
	// windows and results are reassembled by timestamp sort, so arrival
	// order does not matter.
	Workers int
	// MaxAttempts is the retry ceiling per chunk; after exhaustion the
	// chunk is dropped, not fatal.
	MaxAttempts int
	// BackoffMin and BackoffMax bound the exponential retry delay.
	BackoffMin time.Duration
	BackoffMax time.Duration
}

func (c *BackfillConfig) applyDefaults() {
	if c.MaxCandlesPerRequest <= 0 {
		c.MaxCandlesPerRequest = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = 500 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
}

// Backfiller fills missing intervals from the rate-limited live REST
// collaborator in API-limit-sized chunks.
type Backfiller struct {
	rest     ports.RestSource
	registry *domain.TimeframeRegistry
	logger   ports.Logger
	cfg      BackfillConfig
}

// NewBackfiller creates a backfiller. The REST source, registry, and
// logger are required.
func NewBackfiller(rest ports.RestSource, registry *domain.TimeframeRegistry, logger ports.Logger, cfg BackfillConfig) (*Backfiller, error) {
	if rest == nil || registry == nil || logger == nil {
		return nil, fmt.Errorf("rest source, registry, and logger are required: %w", ports.ErrConfigurationError)
	}
	cfg.applyDefaults()
	return &Backfiller{rest: rest, registry: registry, logger: logger, cfg: cfg}, nil
}

// BackfillResult reports one backfill over a half-open window. Dropped
// chunks are a degraded-success outcome, surfaced here as counts rather
// than raised as errors.
type BackfillResult struct {
	Candles       []domain.Candle
	ChunksTotal   int
	ChunksFetched int
	ChunksDropped int
}

// SplitChunks divides the half-open window [start, end) into sub-requests
// of at most MaxCandles intervals each.
func SplitChunks(start, end time.Time, interval time.Duration, maxCandles int) []domain.FetchChunk {
	if !end.After(start) || interval <= 0 || maxCandles <= 0 {
		return nil
	}
	span := interval * time.Duration(maxCandles)
	var chunks []domain.FetchChunk
	for cur := start; cur.Before(end); cur = cur.Add(span) {
		chunkEnd := cur.Add(span)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, domain.FetchChunk{Start: cur, End: chunkEnd, MaxCandles: maxCandles})
	}
	return chunks
}

// Fetch retrieves all candles in [start, end) for one identity key. Each
// chunk is fetched with retry and exponential backoff; a chunk whose
// retries are exhausted contributes zero candles and bumps ChunksDropped.
// A chunk the remote API answers with no data also contributes zero
// candles — a gap the live API itself cannot fill must surface as a
// reduced fill ratio, not as a pipeline failure. Returned candles are
// ordered by open time and tagged Source rest-api.
func (b *Backfiller) Fetch(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, start, end time.Time) (*BackfillResult, error) {
	interval, err := b.registry.Interval(timeframe)
	if err != nil {
		return nil, err
	}

	chunks := SplitChunks(start, end, interval, b.cfg.MaxCandlesPerRequest)
	result := &BackfillResult{ChunksTotal: len(chunks)}
	if len(chunks) == 0 {
		return result, nil
	}

	perChunk := make([][]domain.Candle, len(chunks))
	dropped := make([]bool, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			candles, err := b.fetchChunk(gctx, symbol, timeframe, instrument, chunk)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				b.logger.Warn(gctx, "chunk dropped after retry exhaustion", map[string]interface{}{
					"symbol":    symbol,
					"timeframe": timeframe,
					"start":     chunk.Start.UTC().Format(time.RFC3339),
					"end":       chunk.End.UTC().Format(time.RFC3339),
					"error":     err.Error(),
				})
				dropped[i] = true
				return nil
			}
			perChunk[i] = candles
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Only context cancellation escapes the per-chunk handling. No
		// partial chunk was written anywhere, so abandoning here is safe.
		return nil, fmt.Errorf("backfill canceled: %w", err)
	}

	for i := range chunks {
		if dropped[i] {
			result.ChunksDropped++
			continue
		}
		result.ChunksFetched++
		for _, c := range perChunk[i] {
			if c.OpenTime.Before(start) || !c.OpenTime.Before(end) {
				continue
			}
			c.Source = domain.SourceRestAPI
			result.Candles = append(result.Candles, c)
		}
	}
	sort.Slice(result.Candles, func(i, j int) bool {
		return result.Candles[i].OpenTime.Before(result.Candles[j].OpenTime)
	})
	return result, nil
}

func (b *Backfiller) fetchChunk(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, chunk domain.FetchChunk) ([]domain.Candle, error) {
	bo := &backoff.Backoff{
		Min:    b.cfg.BackoffMin,
		Max:    b.cfg.BackoffMax,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		candles, err := b.rest.Klines(ctx, symbol, timeframe, instrument, chunk.Start, chunk.End, chunk.MaxCandles)
		if err == nil {
			return candles, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, ports.ErrContextCanceled) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if attempt == b.cfg.MaxAttempts {
			break
		}
		delay := bo.Duration()
		b.logger.Debug(ctx, "chunk fetch failed, retrying", map[string]interface{}{
			"symbol":  symbol,
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: %d attempts: %v", ports.ErrChunkFetch, b.cfg.MaxAttempts, lastErr)
}
