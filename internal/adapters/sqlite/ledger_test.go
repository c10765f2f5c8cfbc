package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestLedger creates a temporary database for testing
func setupTestLedger(t *testing.T) (*Ledger, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "ingest-ledger-test-*")
	require.NoError(t, err)

	ledger, err := NewLedger(Config{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		ledger.Close()
		os.RemoveAll(tmpDir)
	}
	return ledger, cleanup
}

func TestLedger_FindMonth_Absent(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()

	rec, err := ledger.FindMonth(context.Background(), "BTCUSDT", "1h", domain.InstrumentSpot,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, rec, "an unstaged month must return nil, nil")
}

func TestLedger_RecordAndFindMonth(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()

	ctx := context.Background()
	month := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := ledger.RecordMonth(ctx, ports.MonthRecord{
		Symbol:     "BTCUSDT",
		Timeframe:  "1h",
		Instrument: domain.InstrumentSpot,
		Month:      month,
		RowCount:   744,
		Source:     domain.SourceBulkCDN,
		SHA256:     "abc123",
	})
	require.NoError(t, err)

	rec, err := ledger.FindMonth(ctx, "BTCUSDT", "1h", domain.InstrumentSpot, month)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "BTCUSDT", rec.Symbol)
	assert.Equal(t, "1h", rec.Timeframe)
	assert.Equal(t, domain.InstrumentSpot, rec.Instrument)
	assert.True(t, rec.Month.Equal(month))
	assert.Equal(t, 744, rec.RowCount)
	assert.Equal(t, domain.SourceBulkCDN, rec.Source)
	assert.Equal(t, "abc123", rec.SHA256)
	assert.False(t, rec.IngestedAt.IsZero())
}

func TestLedger_RecordMonth_Overwrites(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()

	ctx := context.Background()
	month := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	base := ports.MonthRecord{
		Symbol:     "ETHUSDT",
		Timeframe:  "1m",
		Instrument: domain.InstrumentFuturesPerpetual,
		Month:      month,
		RowCount:   100,
		Source:     domain.SourceBulkCDN,
	}

	require.NoError(t, ledger.RecordMonth(ctx, base))

	base.RowCount = 41760
	require.NoError(t, ledger.RecordMonth(ctx, base))

	rec, err := ledger.FindMonth(ctx, "ETHUSDT", "1m", domain.InstrumentFuturesPerpetual, month)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 41760, rec.RowCount)
}

func TestLedger_MonthsAreKeyedPerIdentity(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()

	ctx := context.Background()
	month := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, ledger.RecordMonth(ctx, ports.MonthRecord{
		Symbol: "BTCUSDT", Timeframe: "1h", Instrument: domain.InstrumentSpot,
		Month: month, RowCount: 744, Source: domain.SourceBulkCDN,
	}))

	// Same symbol and month, different timeframe and instrument: distinct keys.
	rec, err := ledger.FindMonth(ctx, "BTCUSDT", "1m", domain.InstrumentSpot, month)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = ledger.FindMonth(ctx, "BTCUSDT", "1h", domain.InstrumentFuturesPerpetual, month)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLedger_RecordRun(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()

	ctx := context.Background()
	err := ledger.RecordRun(ctx, "BTCUSDT", "1h", domain.InstrumentSpot, "complete", 3, 3, 2160, 100.0)
	require.NoError(t, err)
	err = ledger.RecordRun(ctx, "BTCUSDT", "1h", domain.InstrumentSpot, "failed", 1, 0, 0, 96.5)
	require.NoError(t, err)

	var count int
	err = ledger.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ingest_runs WHERE symbol = ?", "BTCUSDT").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNewLedger_RequiresLogger(t *testing.T) {
	_, err := NewLedger(Config{DBPath: "unused.db"})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}
