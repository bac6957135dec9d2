//go:build z3

package middleware

import (
	"context"
	"fmt"
	"math/big"

	z3 "github.com/mitchellh/go-z3"

	"github.com/holiman/uint256"
)

func uint256FromBig(v *big.Int) (*uint256.Int, bool) {
	out, overflow := uint256.FromBig(v)
	return out, overflow
}

// Z3Backend implements SolverBackend against a real z3 install, grounded on the
// pack's only SMT integration (DQYXACML-autopath's z3_solver.go). It is built only
// under the "z3" tag so the default build never needs cgo or a system z3 library —
// the concolic middleware's request/response shape is fully usable without it, per
// the solver being an external, optional collaborator.
type Z3Backend struct {
	config  *z3.Config
	context *z3.Context
}

// NewZ3Backend returns a Z3Backend with a fresh z3 context configured with
// timeoutMillis as its per-query budget.
func NewZ3Backend(timeoutMillis int) *Z3Backend {
	cfg := z3.NewConfig()
	cfg.SetInt("timeout", timeoutMillis)
	return &Z3Backend{config: cfg, context: z3.NewContext(cfg)}
}

// Close releases the underlying z3 context and config.
func (b *Z3Backend) Close() {
	b.context.Close()
	b.config.Close()
}

// Solve encodes each PathConstraint's operand as a 256-bit bitvector equality
// against the *negation* of BranchTaken — i.e. it asks z3 for a value that would
// have flipped the branch — and returns the first satisfying assignment.
func (b *Z3Backend) Solve(ctx context.Context, req SolveRequest) (*SolveResult, error) {
	if len(req.Constraints) == 0 {
		return &SolveResult{Unknown: true}, nil
	}

	solver := b.context.NewSolver()
	defer solver.Close()

	sym := b.context.Const(b.context.Symbol("tainted_input"), b.context.BVSort(256))

	for _, c := range req.Constraints {
		target := b.context.FromBigInt(new(big.Int).SetUint64(0), b.context.BVSort(256))
		if c.Operand != nil {
			target = b.context.FromBigInt(c.Operand.ToBig(), b.context.BVSort(256))
		}
		eq := sym.Eq(target)
		if c.BranchTaken {
			// The branch was taken with the current value; ask for an assignment
			// that makes the condition false instead, so the *other* side executes
			// next time this input region is mutated toward the suggestion.
			solver.Assert(eq.Not())
		} else {
			solver.Assert(eq)
		}
	}

	select {
	case <-ctx.Done():
		return &SolveResult{Unknown: true}, nil
	default:
	}

	switch solver.Check() {
	case z3.True:
		model := solver.Model()
		defer model.Close()
		assignment := model.Eval(sym, true)
		bv, ok := assignment.(*z3.BV)
		if !ok {
			return &SolveResult{Unknown: true}, nil
		}
		value, ok := new(big.Int).SetString(fmt.Sprintf("%v", bv), 0)
		if !ok {
			return &SolveResult{Unknown: true}, nil
		}
		suggestion, overflow := uint256FromBig(value)
		if overflow {
			return &SolveResult{Unknown: true}, nil
		}
		return &SolveResult{Suggestion: suggestion}, nil
	default:
		return &SolveResult{Unknown: true}, nil
	}
}
