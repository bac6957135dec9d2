package evm

import (
	"github.com/fuzzland/ityfuzz/state"
)

// ReentrancyWitness describes one resumption in a chain that led from the original
// call-leak to a bug, for inclusion in a BugReport's witness.
type ReentrancyWitness struct {
	PauseID         uint64
	ParentStateHash state.Hash
	ExternalTarget  []byte
}

// DescribeChain walks every PausedFrame currently live on s's pause stack and
// returns a witness description of each, oldest first. It does not mutate s: unlike
// EVMHost.Resume, this is read-only introspection used when a bug report needs to
// describe the resumption chain that produced it (spec §3's BugReport.witness).
func DescribeChain(s *state.VMState) []ReentrancyWitness {
	stack := s.PauseStack()
	out := make([]ReentrancyWitness, len(stack))
	for i, pf := range stack {
		out[i] = ReentrancyWitness{
			PauseID:         pf.ID,
			ParentStateHash: pf.ParentStateHash,
			ExternalTarget:  pf.ExternalTarget.Bytes(),
		}
	}
	return out
}
