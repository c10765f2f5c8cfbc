package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/ports"
)

// fakeBulkSource serves canned monthly and daily batches.
type fakeBulkSource struct {
	monthlyErr   error
	monthly      []domain.Candle
	failDays     map[string]error // keyed by 2006-01-02
	dailyPerFile int
	monthlyCalls int
	dailyCalls   int
}

func (f *fakeBulkSource) MonthlyCandles(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, year int, month time.Month) ([]domain.Candle, error) {
	f.monthlyCalls++
	if f.monthlyErr != nil {
		return nil, f.monthlyErr
	}
	return f.monthly, nil
}

func (f *fakeBulkSource) DailyCandles(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, day time.Time) ([]domain.Candle, error) {
	f.dailyCalls++
	if err, ok := f.failDays[day.Format("2006-01-02")]; ok {
		return nil, err
	}
	out := make([]domain.Candle, f.dailyPerFile)
	for i := range out {
		out[i] = domain.Candle{OpenTime: day.Add(time.Duration(i) * time.Hour), Symbol: symbol}
	}
	return out, nil
}

func TestEnumerateDays(t *testing.T) {
	tests := []struct {
		name     string
		year     int
		month    time.Month
		wantDays int
	}{
		{"january", 2024, time.January, 31},
		{"february leap year", 2024, time.February, 29},
		{"february non-leap year", 2023, time.February, 28},
		{"february century non-leap", 1900, time.February, 28},
		{"february 400-year leap", 2000, time.February, 29},
		{"april", 2024, time.April, 30},
		{"december", 2024, time.December, 31},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days := EnumerateDays(tt.year, tt.month)
			require.Len(t, days, tt.wantDays)

			first := days[0]
			assert.Equal(t, 1, first.Day())
			assert.Equal(t, tt.month, first.Month())
			assert.Equal(t, time.UTC, first.Location())

			for i := 1; i < len(days); i++ {
				assert.Equal(t, 24*time.Hour, days[i].Sub(days[i-1]))
			}
		})
	}
}

func TestMonthFetcher_MonthlySuccess(t *testing.T) {
	bulk := &fakeBulkSource{
		monthly: []domain.Candle{{Symbol: "BTCUSDT"}, {Symbol: "BTCUSDT"}},
	}
	f, err := NewMonthFetcher(bulk, &mockLogger{})
	require.NoError(t, err)

	result, err := f.FetchMonth(context.Background(), "BTCUSDT", "1h", domain.InstrumentSpot, 2024, time.January)
	require.NoError(t, err)

	assert.False(t, result.UsedDailyFallback)
	assert.Len(t, result.Candles, 2)
	assert.Equal(t, 1, bulk.monthlyCalls)
	assert.Zero(t, bulk.dailyCalls, "daily files must not be touched when the monthly file exists")
}

func TestMonthFetcher_DailyFallback(t *testing.T) {
	bulk := &fakeBulkSource{
		monthlyErr:   ports.ErrBulkFileNotFound,
		dailyPerFile: 24,
	}
	f, err := NewMonthFetcher(bulk, &mockLogger{})
	require.NoError(t, err)

	result, err := f.FetchMonth(context.Background(), "BTCUSDT", "1h", domain.InstrumentSpot, 2024, time.February)
	require.NoError(t, err)

	assert.True(t, result.UsedDailyFallback)
	assert.Equal(t, 29, result.DaysTotal)
	assert.Equal(t, 29, result.DaysFetched)
	assert.Len(t, result.Candles, 29*24)
}

func TestMonthFetcher_DailyFallback_PartialDays(t *testing.T) {
	bulk := &fakeBulkSource{
		monthlyErr:   ports.ErrBulkFileNotFound,
		dailyPerFile: 24,
		failDays: map[string]error{
			"2024-01-10": ports.ErrBulkFileNotFound,
			"2024-01-11": ports.ErrConnectionFailed,
		},
	}
	f, err := NewMonthFetcher(bulk, &mockLogger{})
	require.NoError(t, err)

	result, err := f.FetchMonth(context.Background(), "BTCUSDT", "1h", domain.InstrumentSpot, 2024, time.January)
	require.NoError(t, err, "dropped days are a degraded success, not a failure")

	assert.True(t, result.UsedDailyFallback)
	assert.Equal(t, 31, result.DaysTotal)
	assert.Equal(t, 29, result.DaysFetched)
	assert.Len(t, result.Candles, 29*24)
}

func TestMonthFetcher_ContextCancellation(t *testing.T) {
	bulk := &fakeBulkSource{monthlyErr: ports.ErrBulkFileNotFound, dailyPerFile: 1}
	f, err := NewMonthFetcher(bulk, &mockLogger{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.FetchMonth(ctx, "BTCUSDT", "1h", domain.InstrumentSpot, 2024, time.January)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMonthFetcher_RequiresCollaborators(t *testing.T) {
	_, err := NewMonthFetcher(nil, &mockLogger{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = NewMonthFetcher(&fakeBulkSource{}, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}
