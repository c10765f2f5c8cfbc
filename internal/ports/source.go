package ports

import (
	"context"
	"time"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
)

// BulkSource is the pre-zipped CDN distribution, the preferred low-cost
// data source. Returned candles are canonical (normalized timestamps,
// Source tagged bulk-cdn) and ordered by open time.
type BulkSource interface {
	// MonthlyCandles fetches and parses one monthly bulk file. A missing
	// file is reported as ErrBulkFileNotFound so the caller can decompose
	// the request into daily fetches.
	MonthlyCandles(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, year int, month time.Month) ([]domain.Candle, error)

	// DailyCandles fetches and parses one daily bulk file for the given
	// UTC calendar day.
	DailyCandles(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, day time.Time) ([]domain.Candle, error)
}

// RestSource is the live kline API used for backfill. One call returns at
// most limit candles covering the half-open window [start, end), ordered
// by open time. The endpoint is idempotent and side-effect-free; an empty
// window yields an empty slice, not an error.
type RestSource interface {
	Klines(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, start, end time.Time, limit int) ([]domain.Candle, error)
}
