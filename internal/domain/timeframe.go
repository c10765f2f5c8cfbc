package domain

import (
	"fmt"
	"sort"
	"time"
)

// TimeframeRegistry is the single source of truth mapping timeframe labels
// to interval durations. Every label maps through the explicit table below;
// durations are never derived by parsing the numeric prefix, because a
// shortcut that reads "2h" as 2 minutes corrupts every downstream gap
// calculation. Construct once and inject.
type TimeframeRegistry struct {
	intervals map[string]time.Duration
}

// NewTimeframeRegistry builds the fully-populated immutable registry for
// the 13 supported timeframe labels.
func NewTimeframeRegistry() *TimeframeRegistry {
	return &TimeframeRegistry{
		intervals: map[string]time.Duration{
			"1s":  time.Second,
			"1m":  time.Minute,
			"3m":  3 * time.Minute,
			"5m":  5 * time.Minute,
			"15m": 15 * time.Minute,
			"30m": 30 * time.Minute,
			"1h":  time.Hour,
			"2h":  2 * time.Hour,
			"4h":  4 * time.Hour,
			"6h":  6 * time.Hour,
			"8h":  8 * time.Hour,
			"12h": 12 * time.Hour,
			"1d":  24 * time.Hour,
		},
	}
}

// Interval returns the duration for a supported timeframe label.
func (r *TimeframeRegistry) Interval(label string) (time.Duration, error) {
	d, ok := r.intervals[label]
	if !ok {
		return 0, fmt.Errorf("timeframe %q: %w", label, ErrUnsupportedTimeframe)
	}
	return d, nil
}

// Supported reports whether the label is a known timeframe.
func (r *TimeframeRegistry) Supported(label string) bool {
	_, ok := r.intervals[label]
	return ok
}

// Labels returns all supported labels sorted by interval, shortest first.
func (r *TimeframeRegistry) Labels() []string {
	labels := make([]string, 0, len(r.intervals))
	for l := range r.intervals {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		return r.intervals[labels[i]] < r.intervals[labels[j]]
	})
	return labels
}
