//go:build !z3

package middleware

// NewDefaultSolverBackend returns the SolverBackend this build was compiled with.
// The default build carries no SMT dependency, so it returns nil — Concolic already
// treats a nil backend as "record constraints, never solve them", equivalent to
// every query timing out. Build with the "z3" tag to get a real Z3Backend instead.
func NewDefaultSolverBackend(timeoutMillis int) SolverBackend {
	return nil
}
