package feedback

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// Pipeline composes the three feedback signals under union-admission semantics: an
// execution is admitted to the corpus if any one of them reports novelty, per spec
// §4.6. Pipeline itself never decides retention policy — that is the scheduler's
// job, driven by the Verdict it returns.
type Pipeline struct {
	Coverage   *CoverageMap
	Comparison *ComparisonTracker
	Dataflow   *DataflowTracker
}

// NewPipeline returns a Pipeline with freshly-constructed, empty feedback trackers.
func NewPipeline() *Pipeline {
	return &Pipeline{
		Coverage:   NewCoverageMap(),
		Comparison: NewComparisonTracker(),
		Dataflow:   NewDataflowTracker(),
	}
}

// EdgeObservation is one (from, to) control-flow transition observed during a
// single execution, reported by the coverage middleware.
type EdgeObservation struct {
	CodeHash common.Hash
	From, To uint64
}

// ComparisonObservation is one comparison operand pair observed during a single
// execution, reported by the comparison-logging middleware.
type ComparisonObservation struct {
	CodeHash common.Hash
	PC       uint64
	A, B     uint256.Int
}

// TaintedWriteObservation is one calldata-tainted storage write observed during a
// single execution, reported by the dataflow/taint middleware.
type TaintedWriteObservation struct {
	Address common.Address
	Slot    common.Hash
}

// Observations aggregates everything the middleware bus recorded during one
// execution, handed to Pipeline.Evaluate in one call so the three feedbacks can be
// scored against a single (pre-state, input, post-outcome) triple without the
// caller needing to know Pipeline's internal structure.
type Observations struct {
	Edges          []EdgeObservation
	Comparisons    []ComparisonObservation
	TaintedWrites  []TaintedWriteObservation
}

// Verdict is the result of evaluating one execution's Observations against the
// pipeline's accumulated state.
type Verdict struct {
	EdgeNovelty       bool
	ComparisonNovelty bool
	DataflowNovelty   bool

	// CoverageDelta is the number of distinct edges newly covered by this
	// execution, used directly as the input scheduler's bandit reward signal
	// (spec §4.4's "coverage gained per call").
	CoverageDelta int
}

// Admit reports whether any component feedback found novelty — the union-admission
// rule spec §4.6 names.
func (v Verdict) Admit() bool {
	return v.EdgeNovelty || v.ComparisonNovelty || v.DataflowNovelty
}

// Evaluate folds obs into the pipeline's accumulated feedback state and returns the
// resulting admission Verdict. It is safe to call concurrently from multiple
// workers: each underlying tracker is independently mutex-protected.
func (p *Pipeline) Evaluate(obs Observations) Verdict {
	var v Verdict

	for _, e := range obs.Edges {
		if p.Coverage.RecordEdge(e.CodeHash, e.From, e.To) {
			v.EdgeNovelty = true
			v.CoverageDelta++
		}
	}
	for _, c := range obs.Comparisons {
		if p.Comparison.Record(c.CodeHash, c.PC, &c.A, &c.B) {
			v.ComparisonNovelty = true
		}
	}
	for _, w := range obs.TaintedWrites {
		if p.Dataflow.RecordTaintedWrite(w.Address, w.Slot) {
			v.DataflowNovelty = true
		}
	}

	return v
}
