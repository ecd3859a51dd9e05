package monitor

import "errors"

var (
	// ErrNetwork marks connection, write, read and timeout failures of a query.
	ErrNetwork = errors.New("network error")
	// ErrProtocol marks malformed or unexpected query responses.
	ErrProtocol = errors.New("protocol error")
	// ErrMissingKeywords is returned by Extract when the response has no status blob at all.
	ErrMissingKeywords = errors.New("status response has no keywords field")
	// ErrSync marks a failed rename/create call against the display backend.
	ErrSync = errors.New("display sync failed")
	// ErrRateLimited is returned by Sync when the rename budget is exhausted.
	ErrRateLimited = errors.New("display sync rate limited")
)
