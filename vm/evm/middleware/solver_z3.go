//go:build z3

package middleware

// NewDefaultSolverBackend returns the SolverBackend this build was compiled with:
// under the "z3" tag, a real Z3Backend configured with timeoutMillis per query.
func NewDefaultSolverBackend(timeoutMillis int) SolverBackend {
	return NewZ3Backend(timeoutMillis)
}
