package domain

import "errors"

// Data-shape errors. These describe invariants of the data itself, not of
// any collaborator, so they live with the domain types. Callers match them
// with errors.Is after unwrapping.
var (
	// ErrUnsupportedTimeframe: the label is not in the registry table.
	// Fatal, no fallback.
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe label")

	// ErrInvalidTimestamp: a raw timestamp has too few digits to be a
	// millisecond epoch, or an unrecognized precision tag was supplied.
	// Fatal for the offending record.
	ErrInvalidTimestamp = errors.New("invalid raw timestamp")

	// ErrFormatDetection: a raw batch matches neither the headerless
	// 11-field spot layout nor the headered 12-field futures layout.
	ErrFormatDetection = errors.New("unrecognized candle wire format")
)
