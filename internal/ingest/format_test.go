package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
)

func spotRow(openTime string) []string {
	return []string{
		openTime, "42000.1", "42100.5", "41900.0", "42050.2", "12.5",
		"1704067259999", "525000.75", "1500", "6.25", "262500.3",
	}
}

func futuresHeader() []string {
	return []string{
		"open_time", "open", "high", "low", "close", "volume",
		"close_time", "quote_volume", "count", "taker_buy_volume", "taker_buy_quote_volume", "ignore",
	}
}

func futuresRow(openTime string) []string {
	return []string{
		openTime, "42000.1", "42100.5", "41900.0", "42050.2", "12.5",
		"1704067259999", "525000.75", "1500", "6.25", "262500.3", "0",
	}
}

func TestDetectLayout(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want Layout
	}{
		{
			name: "headerless spot with millisecond timestamps",
			rows: [][]string{spotRow("1704067200000")},
			want: Layout{Variant: VariantSpot, Precision: PrecisionMilli},
		},
		{
			name: "headerless spot with microsecond timestamps",
			rows: [][]string{spotRow("1704067200000000")},
			want: Layout{Variant: VariantSpot, Precision: PrecisionMicro},
		},
		{
			name: "headered futures with millisecond timestamps",
			rows: [][]string{futuresHeader(), futuresRow("1704067200000")},
			want: Layout{Variant: VariantFutures, Precision: PrecisionMilli},
		},
		{
			name: "headered futures with microsecond timestamps",
			rows: [][]string{futuresHeader(), futuresRow("1704067200000000")},
			want: Layout{Variant: VariantFutures, Precision: PrecisionMicro},
		},
		{
			name: "legacy header spelling with a space",
			rows: func() [][]string {
				header := futuresHeader()
				header[0] = "Open Time"
				return [][]string{header, futuresRow("1704067200000")}
			}(),
			want: Layout{Variant: VariantFutures, Precision: PrecisionMilli},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectLayout(tt.rows)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectLayout_Errors(t *testing.T) {
	tests := []struct {
		name    string
		rows    [][]string
		wantErr error
	}{
		{
			name:    "empty batch",
			rows:    nil,
			wantErr: domain.ErrFormatDetection,
		},
		{
			name:    "empty first row",
			rows:    [][]string{{}},
			wantErr: domain.ErrFormatDetection,
		},
		{
			name:    "header without any data rows",
			rows:    [][]string{futuresHeader()},
			wantErr: domain.ErrFormatDetection,
		},
		{
			name:    "headerless row with wrong field count",
			rows:    [][]string{{"1704067200000", "42000.1", "42100.5"}},
			wantErr: domain.ErrFormatDetection,
		},
		{
			name: "headered row with wrong field count",
			rows: [][]string{
				{"open_time", "open", "high"},
				futuresRow("1704067200000"),
			},
			wantErr: domain.ErrFormatDetection,
		},
		{
			name:    "first field neither header nor timestamp",
			rows:    [][]string{spotRow("not-a-timestamp")},
			wantErr: domain.ErrFormatDetection,
		},
		{
			name:    "timestamp too short for any epoch unit",
			rows:    [][]string{spotRow("12345")},
			wantErr: domain.ErrInvalidTimestamp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DetectLayout(tt.rows)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDetectPrecision_DigitBoundaries(t *testing.T) {
	tests := []struct {
		raw     string
		want    Precision
		wantErr bool
	}{
		{"1704067200000000", PrecisionMicro, false}, // 16 digits
		{"1704067200000", PrecisionMilli, false},    // 13 digits
		{"1704067200", PrecisionMilli, false},       // 10 digits, still treated as ms
		{"999999999", 0, true},                      // 9 digits
		{"", 0, true},
		{"17040672000x0", 0, true},
	}

	for _, tt := range tests {
		t.Run("raw "+tt.raw, func(t *testing.T) {
			got, err := detectPrecision(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidTimestamp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
