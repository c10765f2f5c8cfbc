package ports

import (
	"context"
	"time"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
)

// CandleSink is the external merge-on-read store. The sink keeps, per
// identity key (symbol, timeframe, instrument, open time), the row with
// the numerically highest version; this core only guarantees the inputs
// to that merge are correct. Writes are append/upsert-only: rows are
// never deleted or mutated in place.
type CandleSink interface {
	// WriteBatch persists a batch of validated, versioned candles.
	// Partial writes must not occur: either the whole batch is accepted
	// or an ErrSinkWrite-wrapped error is returned.
	WriteBatch(ctx context.Context, candles []domain.Candle) error

	// OpenTimes returns the distinct observed open times for one identity
	// key within [from, to), ascending. This is the Gap Detector's view
	// of the currently-known series.
	OpenTimes(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, from, to time.Time) ([]time.Time, error)
}
