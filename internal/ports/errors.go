package ports

import "errors"

var (
	// ErrNotFound means the addressed position or order does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSymbolUnavailable means the client broker does not offer the symbol
	// or cannot quote it right now.
	ErrSymbolUnavailable = errors.New("symbol unavailable")

	// ErrTimeout means a gateway round-trip exceeded its deadline. The
	// outcome of the underlying operation is unknown; callers must not
	// record success or failure, only re-observe state on the next cycle.
	ErrTimeout = errors.New("gateway timeout")

	// ErrGatewayClosed means the gateway worker has shut down.
	ErrGatewayClosed = errors.New("gateway closed")
)
