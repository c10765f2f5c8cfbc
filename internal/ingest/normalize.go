package ingest

import (
	"fmt"
	"time"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
)

// NormalizeTimestamp converts a raw epoch value of the given precision to
// canonical microseconds. Milliseconds multiply by 1000, microseconds pass
// through unchanged, so the conversion is lossless and normalizing an
// already-normalized value is a no-op. Unrecognized precision fails closed
// rather than guessing.
func NormalizeTimestamp(raw int64, p Precision) (int64, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("timestamp %d is not a positive epoch: %w", raw, domain.ErrInvalidTimestamp)
	}
	switch p {
	case PrecisionMilli:
		return raw * 1000, nil
	case PrecisionMicro:
		return raw, nil
	default:
		return 0, fmt.Errorf("unrecognized precision %d: %w", p, domain.ErrInvalidTimestamp)
	}
}

// TimeFromMicros builds the canonical UTC instant for a normalized
// microsecond epoch.
func TimeFromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}
