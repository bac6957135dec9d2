package middleware

import (
	"context"
	"time"

	"github.com/holiman/uint256"

	"github.com/fuzzland/ityfuzz/vm/evm"
)

// ConstraintOp names the comparison a path constraint asserts about a symbolic
// operand, mirroring the opcode that produced it.
type ConstraintOp string

const (
	ConstraintEQ ConstraintOp = "eq"
	ConstraintLT ConstraintOp = "lt"
	ConstraintGT ConstraintOp = "gt"
)

// PathConstraint is recorded at a JUMPI whose condition traces back to tainted
// calldata, per spec §4.2's "Concolic shadow | JUMPI on symbolic value | Records
// path constraint; handed to external solver" row. CalldataOffset identifies which
// input byte range the constraint is over; a solver backend is expected to propose
// a concrete replacement value that flips BranchTaken.
type PathConstraint struct {
	PC             uint64
	CalldataOffset int
	Op             ConstraintOp
	Operand        *uint256.Int
	BranchTaken    bool
}

// SolveRequest is the request half of the concolic middleware's boundary to the
// external solver (spec §6 names the solver as an external collaborator; solving
// itself is out of scope here — only the request/response shape is modeled).
type SolveRequest struct {
	Constraints []PathConstraint
}

// SolveResult is the response half: either a concrete suggested value for the
// tainted calldata region that would flip the recorded branch, or Unknown set when
// the backend timed out or could not solve the system.
type SolveResult struct {
	Suggestion *uint256.Int
	Unknown    bool
}

// SolverBackend is the external collaborator the concolic middleware hands
// accumulated path constraints to. DefaultSolverTimeout bounds a call from the
// fuzzer's perspective, matching spec §5's "SMT queries inside the concolic
// middleware ... carry per-call timeouts (default ... 2s)".
type SolverBackend interface {
	Solve(ctx context.Context, req SolveRequest) (*SolveResult, error)
}

// DefaultSolverTimeout bounds a single SolverBackend.Solve call.
const DefaultSolverTimeout = 2 * time.Second

// Concolic approximates symbolic taint the same way the dataflow middleware
// approximates it (spec leaves exact per-word symbolic propagation as an
// implementation detail, and a full shadow interpreter is out of scope for the
// middleware layer): once a transaction has executed a CALLDATALOAD, every
// subsequent JUMPI is treated as a candidate symbolic branch and its operands are
// recorded as a PathConstraint, handed to backend on transaction end.
type Concolic struct {
	evm.BaseMiddleware

	backend SolverBackend
	ctx     context.Context

	tainted     bool
	offset      int
	constraints []PathConstraint
	solutions   []*SolveResult
}

// NewConcolic returns a Concolic middleware that hands accumulated constraints to
// backend at transaction end. backend may be nil, in which case constraints are
// still recorded (for the corpus/statistics) but never solved — equivalent to every
// call timing out.
func NewConcolic(backend SolverBackend, ctx context.Context) *Concolic {
	return &Concolic{backend: backend, ctx: ctx}
}

func (c *Concolic) Name() string { return "concolic" }

func (c *Concolic) OnTxStart(*evm.Frame) {
	c.tainted = false
	c.offset = 0
	c.constraints = nil
	c.solutions = nil
}

func (c *Concolic) OnOpcode(ctx *evm.OpContext) {
	switch ctx.Op {
	case evm.CALLDATALOAD:
		c.tainted = true
		if v, err := ctx.Stack.Peek(0); err == nil {
			c.offset = int(v.Uint64())
		}
	case evm.JUMPI:
		if !c.tainted {
			return
		}
		cond, err := ctx.Stack.Peek(1)
		if err != nil {
			return
		}
		c.constraints = append(c.constraints, PathConstraint{
			PC:             ctx.PC,
			CalldataOffset: c.offset,
			Op:             ConstraintEQ,
			Operand:        cond.Clone(),
			BranchTaken:    !cond.IsZero(),
		})
	}
}

func (c *Concolic) OnTxEnd(_ *evm.Frame, _ *evm.TxOutcome) {
	if len(c.constraints) == 0 || c.backend == nil {
		return
	}
	solveCtx, cancel := context.WithTimeout(c.ctx, DefaultSolverTimeout)
	defer cancel()
	result, err := c.backend.Solve(solveCtx, SolveRequest{Constraints: c.constraints})
	if err != nil || result == nil {
		result = &SolveResult{Unknown: true}
	}
	c.solutions = append(c.solutions, result)
}

// Constraints returns every path constraint recorded during the current transaction.
func (c *Concolic) Constraints() []PathConstraint {
	return c.constraints
}

// Solutions returns every solver result produced for the current transaction, in
// the order constraints were flushed.
func (c *Concolic) Solutions() []*SolveResult {
	return c.solutions
}
