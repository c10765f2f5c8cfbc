// Package sqlite implements ports.IngestLedger on a local SQLite file.
// The ledger remembers which monthly bulk files were already staged so
// re-runs skip the CDN download, and keeps an audit trail of orchestrator
// outcomes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/ports"
)

// Ledger implements the ports.IngestLedger interface using SQLite.
type Ledger struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite ledger.
type Config struct {
	DBPath string
	Logger ports.Logger
}

const monthKeyLayout = "2006-01"

// NewLedger creates a new SQLite ledger instance.
func NewLedger(cfg Config) (*Ledger, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite ledger: %w", ports.ErrConfigurationError)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/ingest_ledger.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally, but the Go driver benefits
	// from limiting connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ledger := &Ledger{db: db, logger: cfg.Logger}
	if err := ledger.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize ledger schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}

	cfg.Logger.Info(context.Background(), "SQLite ingest ledger ready", map[string]interface{}{"path": dbPath})
	return ledger, nil
}

func (l *Ledger) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS ingest_months (
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		instrument TEXT NOT NULL,
		month TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		source TEXT NOT NULL,
		file_sha256 TEXT NOT NULL DEFAULT '',
		ingested_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (symbol, timeframe, instrument, month)
	);

	CREATE TABLE IF NOT EXISTS ingest_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		instrument TEXT NOT NULL,
		status TEXT NOT NULL,
		gaps_detected INTEGER NOT NULL,
		gaps_filled INTEGER NOT NULL,
		rows_inserted INTEGER NOT NULL,
		completeness REAL NOT NULL,
		finished_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_ingest_runs_key ON ingest_runs (symbol, timeframe, instrument, finished_at);
	`
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema exec: %w", err)
	}
	return nil
}

// FindMonth implements ports.IngestLedger. Returns nil, nil when the month
// has not been staged.
func (l *Ledger) FindMonth(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, month time.Time) (*ports.MonthRecord, error) {
	const query = `
		SELECT row_count, source, file_sha256, ingested_at
		FROM ingest_months
		WHERE symbol = ? AND timeframe = ? AND instrument = ? AND month = ?
	`
	rec := ports.MonthRecord{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Instrument: instrument,
		Month:      time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC),
	}
	var source string
	err := l.db.QueryRowContext(ctx, query, symbol, timeframe, string(instrument), month.UTC().Format(monthKeyLayout)).
		Scan(&rec.RowCount, &source, &rec.SHA256, &rec.IngestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find month: %w: %v", ports.ErrLedgerQuery, err)
	}
	rec.Source = domain.DataSource(source)
	return &rec, nil
}

// RecordMonth implements ports.IngestLedger.
func (l *Ledger) RecordMonth(ctx context.Context, rec ports.MonthRecord) error {
	const query = `
		INSERT OR REPLACE INTO ingest_months (symbol, timeframe, instrument, month, row_count, source, file_sha256, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`
	_, err := l.db.ExecContext(ctx, query,
		rec.Symbol, rec.Timeframe, string(rec.Instrument),
		rec.Month.UTC().Format(monthKeyLayout), rec.RowCount, string(rec.Source), rec.SHA256)
	if err != nil {
		return fmt.Errorf("record month: %w: %v", ports.ErrLedgerQuery, err)
	}
	return nil
}

// RecordRun implements ports.IngestLedger.
func (l *Ledger) RecordRun(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, status string, gapsDetected, gapsFilled, rowsInserted int, completeness float64) error {
	const query = `
		INSERT INTO ingest_runs (symbol, timeframe, instrument, status, gaps_detected, gaps_filled, rows_inserted, completeness)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.db.ExecContext(ctx, query,
		symbol, timeframe, string(instrument), status, gapsDetected, gapsFilled, rowsInserted, completeness)
	if err != nil {
		return fmt.Errorf("record run: %w: %v", ports.ErrLedgerQuery, err)
	}
	return nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
