package oracle

import (
	"fmt"

	"github.com/crytic/medusa-geth/common"

	"github.com/fuzzland/ityfuzz/mutation"
	evmvm "github.com/fuzzland/ityfuzz/vm/evm"
)

// ReentrancyOracle flags a flashloan-ledger conservation violation (state model
// invariant iii) that only manifests once a resumption is part of the sequence,
// distinguishing it from a plain same-transaction accounting bug: the witness
// chain recorded is exactly the evidence a report needs to show *why* reentering
// mid-sequence, rather than the call itself, produced the imbalance.
type ReentrancyOracle struct{}

// NewReentrancyOracle returns a ReentrancyOracle.
func NewReentrancyOracle() *ReentrancyOracle {
	return &ReentrancyOracle{}
}

func (o *ReentrancyOracle) Name() string { return "reentrancy" }

func (o *ReentrancyOracle) Examine(ctx *ExecutionContext) []*BugReport {
	if ctx.PostState == nil || !sequenceResumed(ctx.Sequence) {
		return nil
	}

	ledger := ctx.PostState.Flashloan()

	seen := make(map[common.Address]bool)
	var reports []*BugReport
	for key := range ledger.Entries() {
		if seen[key.Token] || !ledger.Violated(key.Token) {
			continue
		}
		seen[key.Token] = true
		token := key.Token
		r := newReport(
			KindReentrancy,
			token,
			fmt.Sprintf("token %s conservation invariant broken across a reentrant resumption chain", token.Hex()),
			ctx.Sequence,
			ctx.PostState,
		)
		r.Witness = evmvm.DescribeChain(ctx.PostState)
		reports = append(reports, r)
	}
	return reports
}

func sequenceResumed(seq []*mutation.EVMInput) bool {
	for _, in := range seq {
		if in.IsResumption() {
			return true
		}
	}
	return false
}

