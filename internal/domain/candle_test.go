package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCandle_Validate(t *testing.T) {
	base := func() Candle {
		return Candle{
			OpenTime:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Open:      dec("100"),
			High:      dec("110"),
			Low:       dec("95"),
			Close:     dec("105"),
			Volume:    dec("12.5"),
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Candle)
		wantErr bool
	}{
		{
			name:   "valid candle",
			mutate: func(c *Candle) {},
		},
		{
			name: "flat candle all equal",
			mutate: func(c *Candle) {
				c.Open, c.High, c.Low, c.Close = dec("100"), dec("100"), dec("100"), dec("100")
			},
		},
		{
			name:   "zero volume is allowed",
			mutate: func(c *Candle) { c.Volume = dec("0") },
		},
		{
			name:    "high below open",
			mutate:  func(c *Candle) { c.High = dec("99") },
			wantErr: true,
		},
		{
			name:    "high below close",
			mutate:  func(c *Candle) { c.Close = dec("120") },
			wantErr: true,
		},
		{
			name:    "low above open",
			mutate:  func(c *Candle) { c.Low = dec("101") },
			wantErr: true,
		},
		{
			name:    "low above high",
			mutate:  func(c *Candle) { c.Low = dec("115") },
			wantErr: true,
		},
		{
			name:    "negative volume",
			mutate:  func(c *Candle) { c.Volume = dec("-1") },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGap_MissingCount(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		end      time.Time
		interval time.Duration
		want     int
	}{
		{
			name:     "one missing candle",
			end:      start.Add(4 * time.Hour),
			interval: 2 * time.Hour,
			want:     1,
		},
		{
			name:     "many missing candles",
			end:      start.Add(10 * time.Minute),
			interval: time.Minute,
			want:     9,
		},
		{
			name:     "zero interval yields zero",
			end:      start.Add(time.Hour),
			interval: 0,
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Gap{Start: start, End: tt.end, Interval: tt.interval}
			assert.Equal(t, tt.want, g.MissingCount())
		})
	}
}

func TestGap_Duration(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	g := Gap{Start: start, End: start.Add(90 * time.Minute), Interval: time.Minute}
	require.Equal(t, 90*time.Minute, g.Duration())
}
