package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeframeRegistry_Interval(t *testing.T) {
	registry := NewTimeframeRegistry()

	tests := []struct {
		label string
		want  time.Duration
	}{
		{"1s", time.Second},
		{"1m", time.Minute},
		{"3m", 3 * time.Minute},
		{"5m", 5 * time.Minute},
		{"15m", 15 * time.Minute},
		{"30m", 30 * time.Minute},
		{"1h", time.Hour},
		{"2h", 2 * time.Hour},
		{"4h", 4 * time.Hour},
		{"6h", 6 * time.Hour},
		{"8h", 8 * time.Hour},
		{"12h", 12 * time.Hour},
		{"1d", 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := registry.Interval(tt.label)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeframeRegistry_UnknownLabel(t *testing.T) {
	registry := NewTimeframeRegistry()

	for _, label := range []string{"", "2m", "1w", "1M", "90s", "1H"} {
		t.Run("label "+label, func(t *testing.T) {
			_, err := registry.Interval(label)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedTimeframe)
		})
	}
}

func TestTimeframeRegistry_Labels(t *testing.T) {
	registry := NewTimeframeRegistry()

	labels := registry.Labels()
	require.Len(t, labels, 13)
	// Ordered by interval, so the extremes are fixed.
	assert.Equal(t, "1s", labels[0])
	assert.Equal(t, "1d", labels[len(labels)-1])

	for _, label := range labels {
		assert.True(t, registry.Supported(label), "label %s from Labels() must be supported", label)
	}
}
