package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
)

func TestDetectGaps(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	at := func(d time.Duration) time.Time { return base.Add(d) }

	tests := []struct {
		name       string
		timestamps []time.Time
		interval   time.Duration
		wantGaps   int
		check      func(t *testing.T, gaps []domain.Gap)
	}{
		{
			name:       "contiguous sequence has no gaps",
			timestamps: []time.Time{at(0), at(time.Hour), at(2 * time.Hour), at(3 * time.Hour)},
			interval:   time.Hour,
			wantGaps:   0,
		},
		{
			name:       "single hole",
			timestamps: []time.Time{at(0), at(2 * time.Hour), at(6 * time.Hour)},
			interval:   2 * time.Hour,
			wantGaps:   1,
			check: func(t *testing.T, gaps []domain.Gap) {
				assert.True(t, gaps[0].Start.Equal(at(2*time.Hour)))
				assert.True(t, gaps[0].End.Equal(at(6*time.Hour)))
				assert.Equal(t, 1, gaps[0].MissingCount())
			},
		},
		{
			name: "multiple holes in order",
			timestamps: []time.Time{
				at(0), at(time.Minute), at(5 * time.Minute), at(6 * time.Minute), at(10 * time.Minute),
			},
			interval: time.Minute,
			wantGaps: 2,
			check: func(t *testing.T, gaps []domain.Gap) {
				assert.Equal(t, 3, gaps[0].MissingCount())
				assert.Equal(t, 3, gaps[1].MissingCount())
				assert.True(t, gaps[0].End.Before(gaps[1].Start) || gaps[0].End.Equal(gaps[1].Start))
			},
		},
		{
			name:       "unsorted input is re-sorted before scanning",
			timestamps: []time.Time{at(6 * time.Hour), at(0), at(2 * time.Hour)},
			interval:   2 * time.Hour,
			wantGaps:   1,
			check: func(t *testing.T, gaps []domain.Gap) {
				assert.True(t, gaps[0].Start.Equal(at(2*time.Hour)))
			},
		},
		{
			name:       "duplicates are not gaps",
			timestamps: []time.Time{at(0), at(time.Hour), at(time.Hour), at(2 * time.Hour)},
			interval:   time.Hour,
			wantGaps:   0,
		},
		{
			name:       "empty sequence",
			timestamps: nil,
			interval:   time.Hour,
			wantGaps:   0,
		},
		{
			name:       "single element sequence",
			timestamps: []time.Time{at(0)},
			interval:   time.Hour,
			wantGaps:   0,
		},
		{
			name:       "non-positive interval",
			timestamps: []time.Time{at(0), at(5 * time.Hour)},
			interval:   0,
			wantGaps:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gaps := DetectGaps(tt.timestamps, tt.interval)
			require.Len(t, gaps, tt.wantGaps)
			if tt.check != nil {
				tt.check(t, gaps)
			}
		})
	}
}

func TestDetectGaps_DoesNotMutateInput(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	input := []time.Time{base.Add(4 * time.Hour), base, base.Add(2 * time.Hour)}

	DetectGaps(input, 2*time.Hour)

	assert.True(t, input[0].Equal(base.Add(4*time.Hour)), "caller slice must stay untouched")
	assert.True(t, input[1].Equal(base))
}
