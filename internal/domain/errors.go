package domain

import "errors"

// Sentinel errors shared by the wizard and the headless executor. Callers
// classify with errors.Is; everything else travels wrapped via %w.
var (
	// ErrLoadTimeout marks a page that did not finish loading within the
	// load bound. Aborts only the scrape or session it occurred in.
	ErrLoadTimeout = errors.New("page load timed out")

	// ErrLoadFailure marks a navigation-level error (DNS, TLS, aborted
	// request). Aborts only the scrape or session it occurred in.
	ErrLoadFailure = errors.New("page load failed")

	// ErrSessionCancelled is the rejected outcome of a wizard session that
	// was cancelled explicitly or lost its surface. It is an outcome, not a
	// fault.
	ErrSessionCancelled = errors.New("wizard session cancelled")
)
