package ports

import (
	"context"
	"time"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
)

// MonthRecord is one completed monthly bulk ingestion, keyed by
// (symbol, timeframe, instrument, month).
type MonthRecord struct {
	Symbol     string
	Timeframe  string
	Instrument domain.InstrumentType
	Month      time.Time // first day of month, UTC
	RowCount   int
	Source     domain.DataSource
	SHA256     string // hex digest of the bulk file, empty when unknown
	IngestedAt time.Time
}

// IngestLedger records which monthly bulk files have already been staged,
// so re-runs can skip the download entirely. Purely an optimization: the
// deterministic version hash already makes re-ingestion a no-op at the
// sink, the ledger just avoids re-fetching megabytes from the CDN.
type IngestLedger interface {
	// FindMonth returns the record for a staged month, or nil, nil when
	// the month has not been ingested.
	FindMonth(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, month time.Time) (*MonthRecord, error)

	// RecordMonth saves a completed monthly ingestion. Recording the same
	// month again overwrites the previous record.
	RecordMonth(ctx context.Context, rec MonthRecord) error

	// RecordRun appends one orchestrator outcome for auditing.
	RecordRun(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, status string, gapsDetected, gapsFilled, rowsInserted int, completeness float64) error
}
