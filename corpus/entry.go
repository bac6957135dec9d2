// Package corpus implements the persistent, content-addressed corpus of admitted
// inputs described by spec §4.4: each entry records the VMState it was evaluated
// against, the mutated input, and its provenance (parent entry, mutation operator,
// feedback scores), and is memoised to disk via cbor+bbolt so a fuzzing run resumes
// from where a prior run left off.
package corpus

import (
	"github.com/google/uuid"

	"github.com/fuzzland/ityfuzz/feedback"
	"github.com/fuzzland/ityfuzz/mutation"
	"github.com/fuzzland/ityfuzz/state"
)

// Provenance records how an Entry came to exist: the entry it was derived from (if
// any) and the mutation operator applied, per spec §4.3's Corpus Entry definition:
// "(VMState id, Input, provenance: parent id + mutation kind + feedback scores)".
type Provenance struct {
	ParentID uuid.UUID
	HasParent bool
	Operator mutation.Operator
}

// Scores captures the feedback pipeline's verdict for the transaction that produced
// this entry, retained so the scheduler can recompute power-scheduling weights
// without re-executing the entry.
type Scores struct {
	EdgeNovelty       bool
	ComparisonNovelty bool
	DataflowNovelty   bool
	// CoverageDelta is the number of new edges this entry's execution contributed,
	// used directly as the bandit reward signal per spec §4.4.
	CoverageDelta int
}

// Admitted reports whether any feedback fired for this entry, matching the union
// admission semantics of feedback.Verdict.Admit.
func (s Scores) Admitted() bool {
	return s.EdgeNovelty || s.ComparisonNovelty || s.DataflowNovelty
}

// Entry is a single admitted corpus member: a VMState snapshot's content hash
// (rather than the VMState itself, which is owned by the state package's sharing
// model), the Input that produced it, and its provenance/scores.
type Entry struct {
	ID uuid.UUID

	// StateHash identifies the pre-state this Input was evaluated against.
	StateHash state.Hash

	Input *mutation.EVMInput

	Provenance Provenance
	Scores     Scores
}

// NewEntry constructs a fresh Entry with a random ID, matching the teacher's
// pattern of assigning corpus identity at admission time rather than deriving it
// from content (content hashing is reserved for VMState, per spec §4.3).
func NewEntry(stateHash state.Hash, input *mutation.EVMInput, provenance Provenance, scores Scores) *Entry {
	return &Entry{
		ID:         uuid.New(),
		StateHash:  stateHash,
		Input:      input,
		Provenance: provenance,
		Scores:     scores,
	}
}

// ScoresFromVerdict adapts a feedback.Verdict plus the edge-count delta into Scores,
// the glue between C6's pure verdict and C4's persisted provenance.
func ScoresFromVerdict(v feedback.Verdict, coverageDelta int) Scores {
	return Scores{
		EdgeNovelty:       v.EdgeNovelty,
		ComparisonNovelty: v.ComparisonNovelty,
		DataflowNovelty:   v.DataflowNovelty,
		CoverageDelta:     coverageDelta,
	}
}
