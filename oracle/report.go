// Package oracle implements the bug-detection oracle set: a collection of
// independent judges, each examining the outcome of an executed transaction
// sequence for one category of bug, decoupled from the feedback pipeline that
// decides corpus admission. An oracle never influences scheduling or mutation; it
// only ever produces BugReports for the campaign's final result set.
package oracle

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fuzzland/ityfuzz/mutation"
	"github.com/fuzzland/ityfuzz/state"
	evmvm "github.com/fuzzland/ityfuzz/vm/evm"
)

// Kind identifies which oracle produced a BugReport.
type Kind string

const (
	KindBugTopic          Kind = "bug_topic"
	KindBalanceExtraction  Kind = "balance_extraction"
	KindPriceManipulation  Kind = "price_manipulation"
	KindArbitraryCall      Kind = "arbitrary_call"
	KindReentrancy         Kind = "reentrancy"
	KindInvariantBroken    Kind = "invariant_broken"
	// KindSelfDestructed and KindStateComparison have no named counterpart in the
	// six core oracle kinds; both are additions grounded on original_source's
	// evm/oracles package, which tracks self-destruction and arbitrary pre/post
	// state comparisons as distinct bug categories in their own right.
	KindSelfDestructed Kind = "self_destructed"
	KindStateComparison Kind = "state_comparison"
)

// BugReport describes a single confirmed bug finding. Two reports comparing equal
// on (Kind, Target, StateHash) represent the same underlying finding rediscovered
// by a different sequence; ID is always fresh, so it never identifies a finding.
// Reports are not deduplicated anywhere in this module.
type BugReport struct {
	ID        uuid.UUID
	Kind      Kind
	Target    common.Address
	Message   string
	Sequence  []*mutation.EVMInput
	StateHash state.Hash

	// Witness carries the resumption chain that produced the finding, populated
	// only by oracles whose bug category is inherently about reentrancy.
	Witness []evmvm.ReentrancyWitness

	// Magnitude carries a comparable severity score. None of the oracles in this
	// package sets it, so it is always left at its zero value.
	Magnitude decimal.Decimal
}

func newReport(kind Kind, target common.Address, message string, seq []*mutation.EVMInput, s *state.VMState) *BugReport {
	r := &BugReport{
		ID:       uuid.New(),
		Kind:     kind,
		Target:   target,
		Message:  message,
		Sequence: seq,
	}
	if s != nil {
		r.StateHash = s.Hash()
	}
	return r
}
