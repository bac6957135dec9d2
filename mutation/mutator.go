package mutation

import (
	"math/rand"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"

	"github.com/fuzzland/ityfuzz/state"
)

// Operator names one of the seven structured mutation operators spec §4.5 defines.
// Corpus provenance records which Operator produced a given EVMInput, per the
// corpus entry's "parent id + mutation kind" requirement.
type Operator string

const (
	OpBitByteFlip      Operator = "bit_byte_flip"
	OpConstantsPool    Operator = "constants_pool"
	OpSpliceCalldata   Operator = "splice_calldata"
	OpCallerSwap       Operator = "caller_swap"
	OpFlashloanToggle  Operator = "flashloan_toggle"
	OpResumeConversion Operator = "resume_conversion"
	OpSequenceInsert   Operator = "sequence_insert"
)

// Corpus is the narrow slice of corpus behavior the mutator needs: same-selector
// sibling inputs to splice calldata from. The full corpus type lives in package
// corpus; this avoids a dependency cycle (corpus depends on mutation for EVMInput).
type Corpus interface {
	SameSelector(selector [4]byte) []*EVMInput
}

// Mutator applies spec §4.5's structured mutation operators to an EVMInput,
// preferring harvested constants and favourite comparison operands over pure
// randomness, grounded on the teacher's txGeneratorMutation
// (fuzzing/tx_generator_mutation.go) generalized from ABI-typed big.Int arguments
// to raw EVM calldata byte/word mutation, since this fuzzer works below the ABI
// layer by design (C5 operates on already-encoded Args).
type Mutator struct {
	rng       *rand.Rand
	pool      *ConstantsPool
	attackers []common.Address

	// MaxSequenceDepth bounds OpSequenceInsert's recursion, per spec §4.5 "capped at
	// a configurable depth".
	MaxSequenceDepth int
}

// NewMutator returns a Mutator drawing from pool and attackers, seeded by seed for
// reproducible replay (an admitted corpus entry's RandSeed pins this exact sequence
// of draws).
func NewMutator(seed uint64, pool *ConstantsPool, attackers []common.Address) *Mutator {
	return &Mutator{
		rng:              rand.New(rand.NewSource(int64(seed))),
		pool:             pool,
		attackers:        attackers,
		MaxSequenceDepth: 4,
	}
}

// Mutate applies one randomly chosen operator to a clone of in and returns the
// result alongside the operator that produced it, for corpus provenance. favourites
// supplies comparison-operand candidates (may be nil); resumable supplies pause
// candidates compatible with in's Target (may be nil); corpus supplies splice
// siblings (may be nil). Any input unavailable for an operator causes that operator
// to be skipped in favor of a retry, not a panic.
func (m *Mutator) Mutate(in *EVMInput, favourites []uint256.Int, resumable []*state.PausedFrame, corpus Corpus) (*EVMInput, Operator) {
	operators := []Operator{OpBitByteFlip, OpConstantsPool, OpSpliceCalldata, OpCallerSwap, OpFlashloanToggle, OpResumeConversion, OpSequenceInsert}

	for attempt := 0; attempt < len(operators)*2; attempt++ {
		op := operators[m.rng.Intn(len(operators))]
		out := in.Clone()
		ok := m.apply(out, op, favourites, resumable, corpus)
		if ok {
			return out, op
		}
	}
	// Every operator was inapplicable (e.g. no siblings, no pauses); fall back to
	// the one operator that always applies.
	out := in.Clone()
	m.bitByteFlip(out)
	return out, OpBitByteFlip
}

func (m *Mutator) apply(in *EVMInput, op Operator, favourites []uint256.Int, resumable []*state.PausedFrame, corpus Corpus) bool {
	switch op {
	case OpBitByteFlip:
		return m.bitByteFlip(in)
	case OpConstantsPool:
		return m.constantsPool(in, favourites)
	case OpSpliceCalldata:
		return m.spliceCalldata(in, corpus)
	case OpCallerSwap:
		return m.callerSwap(in)
	case OpFlashloanToggle:
		return m.flashloanToggle(in)
	case OpResumeConversion:
		return m.resumeConversion(in, resumable)
	case OpSequenceInsert:
		return false // sequence-level mutation is applied over a slice of inputs, see MutateSequence
	}
	return false
}

// bitByteFlip picks one random byte of Args and either flips one random bit of it
// or replaces it with a random byte, never touching bytes outside [0, len(Args)).
func (m *Mutator) bitByteFlip(in *EVMInput) bool {
	if len(in.Args) == 0 {
		return false
	}
	idx := m.rng.Intn(len(in.Args))
	if m.rng.Intn(2) == 0 {
		bit := m.rng.Intn(8)
		in.Args[idx] ^= 1 << bit
	} else {
		in.Args[idx] = byte(m.rng.Intn(256))
	}
	return true
}

// constantsPool overwrites a 32-byte-aligned word of Args with a value drawn from
// the harvested constants pool, or from favourites when supplied (previous
// comparison operands bias the mutator toward boundary-crossing values, per spec
// §4.4's "mutators preferentially pull operands from the favourites table").
func (m *Mutator) constantsPool(in *EVMInput, favourites []uint256.Int) bool {
	if len(in.Args) < 32 {
		return false
	}
	slots := len(in.Args) / 32
	slot := m.rng.Intn(slots)

	var v uint256.Int
	if len(favourites) > 0 && m.rng.Intn(2) == 0 {
		v = favourites[m.rng.Intn(len(favourites))]
	} else if words := m.pool.Words(); len(words) > 0 {
		v = words[m.rng.Intn(len(words))]
	} else {
		return false
	}

	b := v.Bytes32()
	copy(in.Args[slot*32:slot*32+32], b[:])
	return true
}

// spliceCalldata replaces Args with a byte-level splice of in's Args and a
// same-selector sibling's Args drawn from corpus, per spec §4.5's "splice calldata
// from another corpus input with the same selector".
func (m *Mutator) spliceCalldata(in *EVMInput, corpus Corpus) bool {
	if corpus == nil {
		return false
	}
	siblings := corpus.SameSelector(in.Selector)
	if len(siblings) == 0 {
		return false
	}
	other := siblings[m.rng.Intn(len(siblings))]
	if len(other.Args) == 0 || len(in.Args) == 0 {
		return false
	}

	cut := m.rng.Intn(len(in.Args))
	otherCut := m.rng.Intn(len(other.Args))
	spliced := make([]byte, 0, cut+len(other.Args)-otherCut)
	spliced = append(spliced, in.Args[:cut]...)
	spliced = append(spliced, other.Args[otherCut:]...)
	in.Args = spliced
	return true
}

// callerSwap replaces Caller with a different identity drawn from the configured
// attacker-controlled caller set, per spec §4.5.
func (m *Mutator) callerSwap(in *EVMInput) bool {
	if len(m.attackers) < 2 {
		return false
	}
	for attempt := 0; attempt < 8; attempt++ {
		candidate := m.attackers[m.rng.Intn(len(m.attackers))]
		if candidate != in.Caller {
			in.Caller = candidate
			return true
		}
	}
	return false
}

// flashloanToggle turns the flashloan borrow hint on (picking a harvested token
// address and an amount from the constants pool) or off, per spec §4.5's "toggle
// 'borrow X of token T' flashloan hint".
func (m *Mutator) flashloanToggle(in *EVMInput) bool {
	if in.Hint.FlashloanBorrow != nil {
		in.Hint.FlashloanBorrow = nil
		return true
	}
	if len(m.pool.Addresses()) == 0 {
		return false
	}
	token := m.pool.Addresses()[m.rng.Intn(len(m.pool.Addresses()))]
	amount := uint256.NewInt(0)
	if words := m.pool.Words(); len(words) > 0 {
		amount = new(uint256.Int).Set(&words[m.rng.Intn(len(words))])
	}
	in.Hint.FlashloanBorrow = &FlashloanHint{Token: token, Amount: amount}
	return true
}

// resumeConversion converts in into a resumption of a compatible paused
// continuation, per spec §4.5's "convert a fresh call into a resumption of a paused
// continuation (if any compatible pause exists)". The replacement return data is
// 32 random bytes.
func (m *Mutator) resumeConversion(in *EVMInput, resumable []*state.PausedFrame) bool {
	if len(resumable) == 0 {
		return false
	}
	pause := resumable[m.rng.Intn(len(resumable))]
	returnData := make([]byte, 32)
	m.rng.Read(returnData)
	in.Resume = &Resumption{PauseID: pause.ID, ReplacementReturnData: returnData}
	return true
}

// MutateSequence implements spec §4.5's "insert a preceding transaction (lifting
// the input to a 2-tx sequence, capped at a configurable depth)". It returns a new
// sequence with a freshly mutated input inserted immediately before tail, unless
// depth has already reached MaxSequenceDepth.
func (m *Mutator) MutateSequence(tail []*EVMInput, favourites []uint256.Int, resumable []*state.PausedFrame, corpus Corpus) []*EVMInput {
	if len(tail) == 0 || len(tail) >= m.MaxSequenceDepth {
		return tail
	}
	preceding, _ := m.Mutate(tail[0], favourites, resumable, corpus)
	preceding.Resume = nil // an inserted preceding tx is always a fresh call
	out := make([]*EVMInput, 0, len(tail)+1)
	out = append(out, preceding)
	out = append(out, tail...)
	return out
}
