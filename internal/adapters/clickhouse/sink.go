// Package clickhouse implements ports.CandleSink against a ClickHouse
// ReplacingMergeTree(version) table. Deduplication is the store's job:
// when queried with FINAL (or after background merges), exactly one row
// per identity key survives, the one with the highest version. This
// adapter only guarantees the inputs to that merge are correct.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/ports"
)

// Config holds configuration for the ClickHouse sink.
type Config struct {
	Addr        []string
	Database    string
	Table       string
	Username    string
	Password    string
	DialTimeout time.Duration
	Logger      ports.Logger
}

// Sink implements ports.CandleSink.
type Sink struct {
	conn     clickhouse.Conn
	database string
	table    string
	logger   ports.Logger
}

// NewSink connects to ClickHouse and verifies the connection.
func NewSink(cfg Config) (*Sink, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for ClickHouse sink: %w", ports.ErrConfigurationError)
	}
	if len(cfg.Addr) == 0 {
		return nil, fmt.Errorf("at least one ClickHouse address is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Database == "" || cfg.Table == "" {
		return nil, fmt.Errorf("database and table are required: %w", ports.ErrConfigurationError)
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: dialTimeout,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w: %v", ports.ErrConnectionFailed, err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w: %v", ports.ErrConnectionFailed, err)
	}

	cfg.Logger.Info(context.Background(), "ClickHouse connection established", map[string]interface{}{
		"addr": cfg.Addr, "database": cfg.Database, "table": cfg.Table,
	})
	return &Sink{conn: conn, database: cfg.Database, table: cfg.Table, logger: cfg.Logger}, nil
}

// EnsureSchema creates the database and candle table if absent. Prices use
// Decimal(38,18) so the exact wire values round-trip; funding_rate is
// nullable because only perpetual futures carry it.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database)); err != nil {
		return fmt.Errorf("create database: %w: %v", ports.ErrSinkWrite, err)
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			symbol LowCardinality(String),
			timeframe LowCardinality(String),
			instrument LowCardinality(String),
			open_time DateTime64(6, 'UTC'),
			open Decimal(38, 18),
			high Decimal(38, 18),
			low Decimal(38, 18),
			close Decimal(38, 18),
			volume Decimal(38, 18),
			close_time DateTime64(6, 'UTC'),
			quote_volume Decimal(38, 18),
			trade_count UInt64,
			taker_buy_base_volume Decimal(38, 18),
			taker_buy_quote_volume Decimal(38, 18),
			funding_rate Nullable(Decimal(38, 18)),
			data_source LowCardinality(String),
			version UInt64,
			sign Int8,
			ingested_at DateTime64(3, 'UTC') DEFAULT now64(3)
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, timeframe, instrument, open_time)
		SETTINGS index_granularity = 8192
	`, s.database, s.table)
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w: %v", ports.ErrSinkWrite, err)
	}
	return nil
}

// WriteBatch implements ports.CandleSink. The whole batch is sent in one
// insert; nothing is persisted if Send fails, so a canceled run never
// leaves a partial chunk behind.
func (s *Sink) WriteBatch(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		`INSERT INTO %s.%s (symbol, timeframe, instrument, open_time, open, high, low, close, volume, close_time, quote_volume, trade_count, taker_buy_base_volume, taker_buy_quote_volume, funding_rate, data_source, version, sign) SETTINGS insert_deduplicate=1`,
		s.database, s.table))
	if err != nil {
		return fmt.Errorf("prepare batch: %w: %v", ports.ErrSinkWrite, err)
	}

	for _, c := range candles {
		if err := batch.Append(
			c.Symbol,
			c.Timeframe,
			string(c.Instrument),
			c.OpenTime,
			c.Open,
			c.High,
			c.Low,
			c.Close,
			c.Volume,
			c.CloseTime,
			c.QuoteVolume,
			c.TradeCount,
			c.TakerBuyBaseVolume,
			c.TakerBuyQuoteVolume,
			c.FundingRate,
			string(c.Source),
			c.Version,
			c.Sign,
		); err != nil {
			return fmt.Errorf("batch append: %w: %v", ports.ErrSinkWrite, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("batch send: %w: %v", ports.ErrSinkWrite, err)
	}

	s.logger.Debug(ctx, "batch written", map[string]interface{}{
		"rows": len(candles), "table": s.database + "." + s.table,
	})
	return nil
}

// OpenTimes implements ports.CandleSink. Distinct open times for one
// identity key in [from, to), ascending — the gap detector's view of the
// currently-known series.
func (s *Sink) OpenTimes(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, from, to time.Time) ([]time.Time, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT open_time
		FROM %s.%s
		WHERE symbol = ? AND timeframe = ? AND instrument = ? AND open_time >= ? AND open_time < ?
		ORDER BY open_time
	`, s.database, s.table)

	rows, err := s.conn.Query(ctx, query, symbol, timeframe, string(instrument), from, to)
	if err != nil {
		return nil, fmt.Errorf("open times query: %w: %v", ports.ErrSinkQuery, err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("open times scan: %w: %v", ports.ErrSinkQuery, err)
		}
		out = append(out, t.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("open times rows: %w: %v", ports.ErrSinkQuery, err)
	}
	return out, nil
}

// Close releases the connection.
func (s *Sink) Close() error {
	return s.conn.Close()
}
