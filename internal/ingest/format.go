package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
)

// Variant is the wire layout of a raw candle batch. The CDN ships two
// incompatible CSV shapes: spot files are headerless with 11 fields,
// USD-M futures files carry a header row and 12 fields (the 12th,
// "ignore", is discarded).
type Variant int

const (
	VariantSpot Variant = iota
	VariantFutures
)

func (v Variant) String() string {
	if v == VariantFutures {
		return "futures"
	}
	return "spot"
}

// Precision is the timestamp unit of a raw batch. The CDN switched spot
// files from milliseconds to microseconds at a fixed historical date while
// leaving futures files unchanged, so precision is orthogonal to variant
// and must be detected independently.
type Precision int

const (
	PrecisionMilli Precision = iota
	PrecisionMicro
)

func (p Precision) String() string {
	if p == PrecisionMicro {
		return "us"
	}
	return "ms"
}

// Layout is the resolved classification of a raw batch. It is detected
// once per file and carried explicitly through the pipeline; downstream
// code never re-sniffs the format per field access.
type Layout struct {
	Variant   Variant
	Precision Precision
}

const (
	spotFieldCount    = 11
	futuresFieldCount = 12
)

// headerToken matches the first cell of a futures header row. Current
// files write "open_time"; older ones "open time".
func isHeaderToken(cell string) bool {
	c := strings.ToLower(strings.TrimSpace(cell))
	return c == "open_time" || c == "open time"
}

// DetectLayout classifies a raw row batch. The first record decides the
// variant: a header token means futures, a numeric timestamp means spot.
// Precision comes from the digit count of the first data record's
// timestamp: >= 16 digits is microseconds, 10-15 milliseconds, fewer than
// 10 cannot be a plausible epoch in either unit.
func DetectLayout(rows [][]string) (Layout, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Layout{}, fmt.Errorf("empty batch: %w", domain.ErrFormatDetection)
	}

	first := rows[0]
	var layout Layout
	var dataRow []string

	switch {
	case isHeaderToken(first[0]):
		if len(first) != futuresFieldCount {
			return Layout{}, fmt.Errorf("headered batch has %d fields, want %d: %w",
				len(first), futuresFieldCount, domain.ErrFormatDetection)
		}
		layout.Variant = VariantFutures
		if len(rows) < 2 {
			return Layout{}, fmt.Errorf("headered batch has no data rows: %w", domain.ErrFormatDetection)
		}
		dataRow = rows[1]
	case isNumeric(first[0]):
		if len(first) != spotFieldCount {
			return Layout{}, fmt.Errorf("headerless batch has %d fields, want %d: %w",
				len(first), spotFieldCount, domain.ErrFormatDetection)
		}
		layout.Variant = VariantSpot
		dataRow = first
	default:
		return Layout{}, fmt.Errorf("first field %q is neither a header token nor a timestamp: %w",
			first[0], domain.ErrFormatDetection)
	}

	precision, err := detectPrecision(dataRow[0])
	if err != nil {
		return Layout{}, err
	}
	layout.Precision = precision
	return layout, nil
}

func detectPrecision(rawTimestamp string) (Precision, error) {
	s := strings.TrimSpace(rawTimestamp)
	if !isNumeric(s) {
		return 0, fmt.Errorf("timestamp %q is not numeric: %w", rawTimestamp, domain.ErrInvalidTimestamp)
	}
	switch digits := len(s); {
	case digits >= 16:
		return PrecisionMicro, nil
	case digits >= 10:
		return PrecisionMilli, nil
	default:
		return 0, fmt.Errorf("timestamp %q has %d digits, too few for any epoch unit: %w",
			rawTimestamp, digits, domain.ErrInvalidTimestamp)
	}
}

func isNumeric(s string) bool {
	_, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	return err == nil
}
