package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentType distinguishes the two supported market kinds. They use
// different CDN paths and different CSV layouts.
type InstrumentType string

const (
	InstrumentSpot             InstrumentType = "spot"
	InstrumentFuturesPerpetual InstrumentType = "futures-perpetual"
)

// DataSource records which collaborator a candle came from.
type DataSource string

const (
	SourceBulkCDN DataSource = "bulk-cdn"
	SourceRestAPI DataSource = "rest-api"
)

// Sign values for the merge store's liveness column. This core only ever
// writes live rows; SignTombstone exists for external compaction tooling.
const (
	SignLive      int8 = 1
	SignTombstone int8 = -1
)

// Candle is one OHLCV observation for a fixed interval. OpenTime and
// CloseTime carry canonical microsecond precision; prices and volumes are
// exact decimals so re-formatting them is reproducible across runs.
type Candle struct {
	OpenTime            time.Time
	Open                decimal.Decimal
	High                decimal.Decimal
	Low                 decimal.Decimal
	Close               decimal.Decimal
	Volume              decimal.Decimal
	CloseTime           time.Time
	QuoteVolume         decimal.Decimal
	TradeCount          uint64
	TakerBuyBaseVolume  decimal.Decimal
	TakerBuyQuoteVolume decimal.Decimal
	// FundingRate is set only for perpetual-futures instruments, and only
	// when a funding observation exists for the interval.
	FundingRate *decimal.Decimal

	Symbol     string
	Timeframe  string
	Instrument InstrumentType
	Source     DataSource

	// Version is the deterministic content hash used as the
	// ReplacingMergeTree tiebreak column. Derived, never hand-assigned.
	Version uint64
	Sign    int8
}

// Validate enforces the OHLC bounds invariants. Rows failing validation
// must not reach the sink.
func (c *Candle) Validate() error {
	maxOC := decimal.Max(c.Open, c.Close, c.Low)
	if c.High.LessThan(maxOC) {
		return fmt.Errorf("candle %s %s @ %s: high %s < max(open,close,low) %s",
			c.Symbol, c.Timeframe, c.OpenTime.UTC().Format(time.RFC3339), c.High, maxOC)
	}
	minOC := decimal.Min(c.Open, c.Close, c.High)
	if c.Low.GreaterThan(minOC) {
		return fmt.Errorf("candle %s %s @ %s: low %s > min(open,close,high) %s",
			c.Symbol, c.Timeframe, c.OpenTime.UTC().Format(time.RFC3339), c.Low, minOC)
	}
	if c.Volume.IsNegative() {
		return fmt.Errorf("candle %s %s @ %s: negative volume %s",
			c.Symbol, c.Timeframe, c.OpenTime.UTC().Format(time.RFC3339), c.Volume)
	}
	return nil
}

// Gap is a detected hole in an observed candle sequence. Start is the last
// known-good open time before the hole, End the first known-good open time
// after it. Gaps are transient: produced by the detector, consumed by the
// backfill step, never persisted.
type Gap struct {
	Start    time.Time
	End      time.Time
	Interval time.Duration
}

// Duration returns the span between the bracketing known-good timestamps.
func (g Gap) Duration() time.Duration {
	return g.End.Sub(g.Start)
}

// MissingCount is the number of absent candles inside the gap.
func (g Gap) MissingCount() int {
	if g.Interval <= 0 {
		return 0
	}
	return int(g.Duration()/g.Interval) - 1
}

// FetchChunk is one API-limit-sized sub-request of a backfill. The half-open
// window [Start, End) covers at most MaxCandles intervals.
type FetchChunk struct {
	Start      time.Time
	End        time.Time
	MaxCandles int
}
