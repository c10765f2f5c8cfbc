package ingest

import (
	"sort"
	"time"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
)

// DetectGaps walks an observed open-time sequence and returns the ordered
// list of holes where consecutive timestamps are more than one interval
// apart. Empty and single-element sequences have no gaps by definition.
//
// The input is defensively re-sorted and deduplicated before scanning: an
// unsorted scan silently fabricates spurious gaps, and exact duplicates
// (the merge store can surface them before compaction) are not gaps.
// Linear in sequence length after the sort.
func DetectGaps(timestamps []time.Time, interval time.Duration) []domain.Gap {
	if len(timestamps) < 2 || interval <= 0 {
		return nil
	}

	ordered := make([]time.Time, len(timestamps))
	copy(ordered, timestamps)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	var gaps []domain.Gap
	prev := ordered[0]
	for _, cur := range ordered[1:] {
		if cur.Equal(prev) {
			continue
		}
		if cur.Sub(prev) > interval {
			gaps = append(gaps, domain.Gap{Start: prev, End: cur, Interval: interval})
		}
		prev = cur
	}
	return gaps
}
