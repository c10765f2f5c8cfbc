package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/ports"
)

// MonthFetcher retrieves one calendar month of candles from the bulk CDN,
// decomposing into per-day fetches when the monthly file is unavailable.
type MonthFetcher struct {
	bulk   ports.BulkSource
	logger ports.Logger
}

func NewMonthFetcher(bulk ports.BulkSource, logger ports.Logger) (*MonthFetcher, error) {
	if bulk == nil || logger == nil {
		return nil, fmt.Errorf("bulk source and logger are required: %w", ports.ErrConfigurationError)
	}
	return &MonthFetcher{bulk: bulk, logger: logger}, nil
}

// MonthResult reports one month fetch. When the monthly file was missing,
// UsedDailyFallback is set and DaysFetched/DaysTotal carry the "N/M daily
// files retrieved" count; partial coverage is a degraded success — the gap
// detector will find and backfill whatever the dropped days left behind.
type MonthResult struct {
	Candles           []domain.Candle
	UsedDailyFallback bool
	DaysTotal         int
	DaysFetched       int
}

// EnumerateDays lists every UTC calendar day of the given month, in order.
// Leap years fall out of the time package's date arithmetic.
func EnumerateDays(year int, month time.Month) []time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	next := first.AddDate(0, 1, 0)
	days := make([]time.Time, 0, 31)
	for d := first; d.Before(next); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// FetchMonth tries the monthly bulk file first and falls back to daily
// files when it fails. A day whose fetch fails is dropped silently and
// reflected only in the aggregate count.
func (f *MonthFetcher) FetchMonth(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, year int, month time.Month) (*MonthResult, error) {
	candles, err := f.bulk.MonthlyCandles(ctx, symbol, timeframe, instrument, year, month)
	if err == nil {
		return &MonthResult{Candles: candles}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	f.logger.Warn(ctx, "monthly bulk file unavailable, decomposing into daily fetches", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
		"month":     fmt.Sprintf("%04d-%02d", year, month),
		"error":     err.Error(),
	})

	days := EnumerateDays(year, month)
	result := &MonthResult{UsedDailyFallback: true, DaysTotal: len(days)}
	for _, day := range days {
		dayCandles, err := f.bulk.DailyCandles(ctx, symbol, timeframe, instrument, day)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Debug(ctx, "daily bulk file dropped", map[string]interface{}{
				"symbol": symbol,
				"day":    day.Format("2006-01-02"),
				"error":  err.Error(),
			})
			continue
		}
		result.DaysFetched++
		result.Candles = append(result.Candles, dayCandles...)
	}

	f.logger.Info(ctx, "daily fallback finished", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
		"month":     fmt.Sprintf("%04d-%02d", year, month),
		"retrieved": fmt.Sprintf("%d/%d daily files", result.DaysFetched, result.DaysTotal),
	})
	return result, nil
}
