package exitcodes

const (
	// ExitCodeSuccess indicates the campaign ran to completion (timeout, test-limit,
	// or a clean SIGINT) without finding a bug under --panic-on-bug.
	ExitCodeSuccess = 0

	// ExitCodeBugFound indicates a bug report caused the campaign to stop because
	// --panic-on-bug was set.
	ExitCodeBugFound = 1

	// ExitCodeConfigError indicates the campaign never started: the project
	// configuration, artifact directory, or flag set was invalid.
	ExitCodeConfigError = 2

	// ExitCodeUpstreamFetchFailure indicates an on-chain read through the upstream
	// adapter failed in a way that left campaign state undefined (the loader could
	// not be trusted to continue).
	ExitCodeUpstreamFetchFailure = 3
)
