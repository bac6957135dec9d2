package scheduler

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/fuzzland/ityfuzz/state"
)

// DefaultDecayThreshold is N in spec §4.4's "when a state has been parent to N
// consecutive non-novel children (N configurable, default 32), its weight decays
// exponentially".
const DefaultDecayThreshold = 32

// decayFactor is applied once per consecutive-non-novel-child beyond the
// threshold, repeatedly halving the state's influence on future selections rather
// than zeroing it outright — an exhausted state can still occasionally be revisited
// if nothing else in the corpus is more promising.
const decayFactor = 0.5

// stateRecord tracks the bookkeeping spec §4.4's weight function needs per tracked
// VMState: `w_state = f(age, hit_rarity, child_count, last_novelty_gain)`.
type stateRecord struct {
	hash state.Hash

	admittedAt time.Time

	// childCount is the number of times this state has been selected as a parent to
	// extend.
	childCount int
	// consecutiveNonNovel counts children extended from this state in a row that did
	// not themselves gain novel feedback, resetting to 0 on any novel child.
	consecutiveNonNovel int
	// hitRarity approximates how rarely this state's code paths are hit elsewhere in
	// the corpus; lower means rarer and more interesting. Set by the caller from
	// C6's coverage map when the state is admitted (not recomputed here, since that
	// is a corpus-wide aggregate the scheduler does not itself own).
	hitRarity float64

	choice *weightedChoice[state.Hash]
}

// StateScheduler is the Tier 1 scheduler (spec §4.4): "selects which parent VMState
// to extend". It treats recently admitted states as high priority (the "infant
// state" bias) until their subtree's consecutive non-novel-child count crosses
// DecayThreshold, at which point their selection weight decays exponentially.
// Grounded on the teacher's generic weighted-random selection idiom
// (utils/randomutils/weighted_random.go), adapted here into a purpose-built
// re-weighable scheduler rather than a one-shot append-only chooser, since spec
// §4.4's weight function is explicitly dynamic.
type StateScheduler struct {
	mu          sync.Mutex
	records     map[state.Hash]*stateRecord
	chooser     *weightedChooser[state.Hash]
	now         func() time.Time
	DecayThreshold int
}

// NewStateScheduler returns an empty StateScheduler seeded by seed for reproducible
// replay.
func NewStateScheduler(seed uint64) *StateScheduler {
	return &StateScheduler{
		records:        make(map[state.Hash]*stateRecord),
		chooser:        newWeightedChooser[state.Hash](rand.New(rand.NewSource(int64(seed)))),
		now:            time.Now,
		DecayThreshold: DefaultDecayThreshold,
	}
}

// Admit registers a newly admitted state (the genesis state, or a state reached by
// a corpus-admissible transaction) with the scheduler, assigning it maximal initial
// weight (age == 0) so it is immediately eligible for the infant-state bias.
func (s *StateScheduler) Admit(hash state.Hash, hitRarity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[hash]; exists {
		return
	}
	rec := &stateRecord{hash: hash, admittedAt: s.now(), hitRarity: hitRarity}
	rec.choice = s.chooser.add(hash, s.weightLocked(rec))
	s.records[hash] = rec
}

// RecordChildOutcome updates the parent's bookkeeping after a child transaction was
// evaluated against it: novel resets the consecutive-non-novel counter (keeping the
// parent "hot"), while a non-novel result nudges it one step closer to decay.
func (s *StateScheduler) RecordChildOutcome(parent state.Hash, novel bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[parent]
	if !ok {
		return
	}
	rec.childCount++
	if novel {
		rec.consecutiveNonNovel = 0
	} else {
		rec.consecutiveNonNovel++
	}
	s.chooser.reweight(rec.choice, s.weightLocked(rec))
}

// weightLocked computes w_state = f(age, hit_rarity, child_count,
// last_novelty_gain) as: a recency bonus that fades over the first few minutes (the
// infant bias), multiplied by the inverse of hit rarity (rarer states, lower
// hitRarity, score higher) and by a mild child-count penalty factor (states that have already spawned
// many children are explored relatively less), then exponentially decayed once
// consecutiveNonNovel exceeds DecayThreshold.
func (s *StateScheduler) weightLocked(rec *stateRecord) float64 {
	age := s.now().Sub(rec.admittedAt).Minutes()
	recencyBonus := 1.0 / (1.0 + age)
	rarityBonus := 1.0
	if rec.hitRarity > 0 {
		rarityBonus = 1.0 / rec.hitRarity
	}
	childPenalty := 1.0 / (1.0 + float64(rec.childCount)*0.05)

	weight := (1.0 + recencyBonus) * rarityBonus * childPenalty

	if over := rec.consecutiveNonNovel - s.DecayThreshold; over > 0 {
		weight *= math.Pow(decayFactor, float64(over))
	}
	return weight
}

// Select returns a parent state hash to extend, weighted per the above, or
// ErrNoChoices if every tracked state has decayed to zero weight.
func (s *StateScheduler) Select() (state.Hash, error) {
	return s.chooser.choose()
}

// Len returns the number of states currently tracked.
func (s *StateScheduler) Len() int {
	return s.chooser.len()
}
