// Package app hosts the ingestion orchestrator: the only component with
// cross-cutting visibility over the pipeline. Everything it sequences
// (format detection, normalization, gap scan, versioning) is a pure
// function; all blocking I/O lives behind the source and sink ports.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/ingest"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/ports"
)

// State names the orchestrator's phases. Terminal states are StateComplete
// and StateFailed; there is no internal retry loop — callers that need
// retries re-invoke the whole run, which is idempotent by construction
// because versions are content-derived.
type State string

const (
	StateIdle        State = "idle"
	StateScanning    State = "scanning"
	StateGapsFound   State = "gaps-found"
	StateBackfilling State = "backfilling"
	StateVerifying   State = "verifying"
	StateComplete    State = "complete"
	StateFailed      State = "failed"
)

// Key identifies one independent unit of work. Runs for distinct keys are
// commutative and may execute concurrently without cross-key locking.
type Key struct {
	Symbol     string
	Timeframe  string
	Instrument domain.InstrumentType
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Symbol, k.Timeframe, k.Instrument)
}

// Report is the structured outcome of one orchestrator run. Degraded
// success (some gaps the upstream sources cannot supply) reports
// StateComplete with a completeness percentage below 100; StateFailed is
// reserved for runs where backfilling made no progress at all.
type Report struct {
	Key                 Key
	GapsDetected        int
	GapsFilled          int
	RowsInserted        int
	CompletenessPercent float64
	Status              State
}

// Config holds the orchestrator's run window and scheduling knobs.
type Config struct {
	// StartMonth and EndMonth bound the inclusive month range to ingest,
	// normalized to the first day of month, UTC.
	StartMonth time.Time
	EndMonth   time.Time
	// KeyWorkers bounds concurrent per-key runs in RunAll.
	KeyWorkers int
}

// IngestionService sequences bulk staging, gap detection, backfill, and
// verification per identity key.
type IngestionService struct {
	cfg        Config
	logger     ports.Logger
	registry   *domain.TimeframeRegistry
	months     *ingest.MonthFetcher
	backfiller *ingest.Backfiller
	sink       ports.CandleSink
	ledger     ports.IngestLedger // optional
}

// NewIngestionService wires the orchestrator. The ledger is optional;
// every other collaborator is required.
func NewIngestionService(cfg Config, logger ports.Logger, registry *domain.TimeframeRegistry, months *ingest.MonthFetcher, backfiller *ingest.Backfiller, sink ports.CandleSink, ledger ports.IngestLedger) (*IngestionService, error) {
	if logger == nil || registry == nil || months == nil || backfiller == nil || sink == nil {
		return nil, fmt.Errorf("logger, registry, month fetcher, backfiller, and sink are required: %w", ports.ErrConfigurationError)
	}
	if cfg.StartMonth.IsZero() || cfg.EndMonth.IsZero() {
		return nil, fmt.Errorf("start and end months are required: %w", ports.ErrConfigurationError)
	}
	cfg.StartMonth = firstOfMonth(cfg.StartMonth)
	cfg.EndMonth = firstOfMonth(cfg.EndMonth)
	if cfg.EndMonth.Before(cfg.StartMonth) {
		return nil, fmt.Errorf("end month precedes start month: %w", ports.ErrConfigurationError)
	}
	if cfg.KeyWorkers <= 0 {
		cfg.KeyWorkers = 2
	}
	return &IngestionService{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		months:     months,
		backfiller: backfiller,
		sink:       sink,
		ledger:     ledger,
	}, nil
}

func firstOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// RunAll executes Run for every key with bounded concurrency. The first
// fatal error cancels the remaining runs.
func (s *IngestionService) RunAll(ctx context.Context, keys []Key) ([]*Report, error) {
	reports := make([]*Report, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.KeyWorkers)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			report, err := s.Run(gctx, key)
			if err != nil {
				return fmt.Errorf("key %s: %w", key, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// Run executes the full state machine for one key:
// Idle → Scanning → {GapsFound → Backfilling → Verifying, NoGaps} →
// Complete | Failed. It returns an error only for unrecoverable
// conditions (unknown timeframe, sink failures); a run that ends in
// StateFailed still returns its structured report.
func (s *IngestionService) Run(ctx context.Context, key Key) (*Report, error) {
	interval, err := s.registry.Interval(key.Timeframe)
	if err != nil {
		return nil, err
	}

	report := &Report{Key: key, Status: StateIdle}
	windowStart := s.cfg.StartMonth
	windowEnd := s.cfg.EndMonth.AddDate(0, 1, 0)

	// Stage the bulk months before scanning, so the sink view the gap
	// detector sees includes everything the cheap source can provide.
	if err := s.stageMonths(ctx, key, report); err != nil {
		return nil, err
	}

	s.transition(ctx, key, report, StateScanning)
	observed, err := s.sink.OpenTimes(ctx, key.Symbol, key.Timeframe, key.Instrument, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", key, err)
	}
	gaps := ingest.DetectGaps(observed, interval)
	report.GapsDetected = len(gaps)

	if len(gaps) == 0 {
		report.CompletenessPercent = completeness(observed, interval)
		s.finish(ctx, key, report, StateComplete)
		return report, nil
	}

	s.transition(ctx, key, report, StateGapsFound)
	s.transition(ctx, key, report, StateBackfilling)
	for _, gap := range gaps {
		if err := s.backfillGap(ctx, key, gap, report); err != nil {
			return nil, err
		}
	}

	s.transition(ctx, key, report, StateVerifying)
	observed, err = s.sink.OpenTimes(ctx, key.Symbol, key.Timeframe, key.Instrument, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("verifying %s: %w", key, err)
	}
	remaining := ingest.DetectGaps(observed, interval)
	report.GapsFilled = report.GapsDetected - len(remaining)
	report.CompletenessPercent = completeness(observed, interval)

	switch {
	case len(remaining) == 0:
		s.finish(ctx, key, report, StateComplete)
	case len(remaining) < report.GapsDetected:
		// The leftover gaps reflect data the upstream sources themselves
		// cannot supply; partial coverage is still a terminal success and
		// the next run will retry them.
		s.logger.Warn(ctx, "gaps remain after backfill, reporting partial success", map[string]interface{}{
			"key": key.String(), "remaining": len(remaining), "detected": report.GapsDetected,
		})
		s.finish(ctx, key, report, StateComplete)
	default:
		s.finish(ctx, key, report, StateFailed)
	}
	return report, nil
}

// stageMonths loads every month of the configured window from the bulk
// CDN, using the daily fallback when a monthly file is missing. Months
// already recorded in the ledger are skipped.
func (s *IngestionService) stageMonths(ctx context.Context, key Key, report *Report) error {
	windowEnd := s.cfg.EndMonth.AddDate(0, 1, 0)
	for m := s.cfg.StartMonth; m.Before(windowEnd); m = m.AddDate(0, 1, 0) {
		if s.ledger != nil {
			rec, err := s.ledger.FindMonth(ctx, key.Symbol, key.Timeframe, key.Instrument, m)
			if err != nil {
				// The ledger is an optimization; failing it costs a
				// re-download, never correctness.
				s.logger.Warn(ctx, "ledger lookup failed, re-staging month", map[string]interface{}{
					"key": key.String(), "month": m.Format("2006-01"), "error": err.Error(),
				})
			} else if rec != nil {
				s.logger.Debug(ctx, "month already staged, skipping", map[string]interface{}{
					"key": key.String(), "month": m.Format("2006-01"), "rows": rec.RowCount,
				})
				continue
			}
		}

		result, err := s.months.FetchMonth(ctx, key.Symbol, key.Timeframe, key.Instrument, m.Year(), m.Month())
		if err != nil {
			return fmt.Errorf("staging %s %s: %w", key, m.Format("2006-01"), err)
		}
		written, err := s.writeCandles(ctx, key, result.Candles)
		if err != nil {
			return fmt.Errorf("staging %s %s: %w", key, m.Format("2006-01"), err)
		}
		report.RowsInserted += written

		// A fallback month with dropped days is deliberately not recorded:
		// the next run should retry the missing daily files.
		fullyStaged := !result.UsedDailyFallback || result.DaysFetched == result.DaysTotal
		if s.ledger != nil && fullyStaged && written > 0 {
			if err := s.ledger.RecordMonth(ctx, ports.MonthRecord{
				Symbol:     key.Symbol,
				Timeframe:  key.Timeframe,
				Instrument: key.Instrument,
				Month:      m,
				RowCount:   written,
				Source:     domain.SourceBulkCDN,
			}); err != nil {
				s.logger.Warn(ctx, "ledger record failed", map[string]interface{}{
					"key": key.String(), "month": m.Format("2006-01"), "error": err.Error(),
				})
			}
		}
	}
	return nil
}

// backfillGap fetches one gap's missing window from the live API and
// persists whatever came back. Dropped chunks reduce the fill ratio; only
// sink failures abort.
func (s *IngestionService) backfillGap(ctx context.Context, key Key, gap domain.Gap, report *Report) error {
	fillStart := gap.Start.Add(gap.Interval)
	result, err := s.backfiller.Fetch(ctx, key.Symbol, key.Timeframe, key.Instrument, fillStart, gap.End)
	if err != nil {
		return fmt.Errorf("backfilling %s: %w", key, err)
	}
	written, err := s.writeCandles(ctx, key, result.Candles)
	if err != nil {
		return fmt.Errorf("backfilling %s: %w", key, err)
	}
	report.RowsInserted += written
	s.logger.Info(ctx, "gap backfilled", map[string]interface{}{
		"key":            key.String(),
		"start":          gap.Start.UTC().Format(time.RFC3339),
		"end":            gap.End.UTC().Format(time.RFC3339),
		"missing":        gap.MissingCount(),
		"rows":           written,
		"chunks_dropped": result.ChunksDropped,
	})
	return nil
}

// writeCandles validates, versions, and persists a batch. Invalid rows are
// skipped and counted; sink errors propagate.
func (s *IngestionService) writeCandles(ctx context.Context, key Key, candles []domain.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	batch := make([]domain.Candle, 0, len(candles))
	invalid := 0
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			invalid++
			continue
		}
		ingest.Finalize(&c)
		batch = append(batch, c)
	}
	if invalid > 0 {
		s.logger.Warn(ctx, "dropped invalid candles before write", map[string]interface{}{
			"key": key.String(), "invalid": invalid,
		})
	}
	if err := s.sink.WriteBatch(ctx, batch); err != nil {
		return 0, err
	}
	return len(batch), nil
}

func (s *IngestionService) transition(ctx context.Context, key Key, report *Report, next State) {
	report.Status = next
	s.logger.Debug(ctx, "state transition", map[string]interface{}{"key": key.String(), "state": string(next)})
}

func (s *IngestionService) finish(ctx context.Context, key Key, report *Report, terminal State) {
	report.Status = terminal
	s.logger.Info(ctx, "run finished", map[string]interface{}{
		"key":          key.String(),
		"status":       string(terminal),
		"gaps":         report.GapsDetected,
		"filled":       report.GapsFilled,
		"rows":         report.RowsInserted,
		"completeness": fmt.Sprintf("%.2f%%", report.CompletenessPercent),
	})
	if s.ledger != nil {
		if err := s.ledger.RecordRun(ctx, key.Symbol, key.Timeframe, key.Instrument, string(terminal),
			report.GapsDetected, report.GapsFilled, report.RowsInserted, report.CompletenessPercent); err != nil {
			s.logger.Warn(ctx, "run record failed", map[string]interface{}{"key": key.String(), "error": err.Error()})
		}
	}
}

// completeness is the share of expected intervals present between the
// first and last observed open times. Sequences too short to imply any
// expectation count as fully complete.
func completeness(observed []time.Time, interval time.Duration) float64 {
	distinct := countDistinct(observed)
	if distinct <= 1 || interval <= 0 {
		return 100.0
	}
	first, last := observed[0], observed[0]
	for _, t := range observed[1:] {
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}
	expected := int(last.Sub(first)/interval) + 1
	if expected <= 0 || distinct >= expected {
		return 100.0
	}
	return 100.0 * float64(distinct) / float64(expected)
}

func countDistinct(ts []time.Time) int {
	seen := make(map[int64]struct{}, len(ts))
	for _, t := range ts {
		seen[t.UnixMicro()] = struct{}{}
	}
	return len(seen)
}
