package ports

import "errors"

// Standard application-level errors for collaborator failures.
// Adapters wrap underlying infrastructure errors with these so callers can
// branch with errors.Is without knowing the transport. Data-shape errors
// (unsupported timeframe, invalid timestamp, format detection) live in the
// domain package next to the types whose invariants they describe.
var (
	// General
	ErrConfigurationError = errors.New("invalid or missing configuration")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")

	// Source (CDN / REST) errors
	ErrBulkFileNotFound = errors.New("bulk file not available on CDN")
	ErrChecksumMismatch = errors.New("bulk file checksum mismatch")
	ErrChunkFetch       = errors.New("chunk fetch failed")
	ErrRateLimited      = errors.New("API rate limit exceeded")
	ErrConnectionFailed = errors.New("failed to connect to upstream")
	ErrInvalidRequest   = errors.New("invalid request parameters or format")

	// Sink errors. A silently lost write would violate the zero-gap
	// guarantee, so sink failures are always propagated, never swallowed.
	ErrSinkWrite = errors.New("sink write failed")
	ErrSinkQuery = errors.New("sink query failed")

	// Ledger errors
	ErrLedgerQuery = errors.New("ingest ledger query failed")
)
