package scheduler

import (
	"math/rand"
	"sync"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"

	"github.com/fuzzland/ityfuzz/state"
)

// TargetSelector identifies one bandit arm: a (target address, 4-byte selector)
// pair, per spec §4.4's "the input scheduler maintains, per (target-address,
// selector) pair, a bandit-style reward".
type TargetSelector struct {
	Target   common.Address
	Selector [4]byte
}

// armRecord tracks a single bandit arm's accumulated reward and pull count. A
// simple running-average reward (rather than the teacher's weighted-random-only
// model, which has no bandit concept at all) is the most direct way to realize
// "coverage gained per call" as spec §4.4 names it, without inventing an unneeded
// UCB/Thompson-sampling apparatus the spec never asks for.
type armRecord struct {
	pulls        int
	totalReward  float64
	choice       *weightedChoice[TargetSelector]
}

// InputScheduler is the Tier 2 scheduler (spec §4.4): selects a transaction
// template (target/selector pair) to apply, biased toward arms with higher
// average coverage-per-call reward, and exposes each arm's favourite-value table
// for the mutator's constants-pool/favourites-biased draws (spec §4.4's "a
// per-argument favourite-value table derived from comparison-logging middleware").
type InputScheduler struct {
	mu      sync.Mutex
	arms    map[TargetSelector]*armRecord
	chooser *weightedChooser[TargetSelector]

	// favourites holds, per arm, every favourite comparison operand recorded for it,
	// in recording order; RecordFavourite appends and never evicts.
	favourites map[TargetSelector][]uint256.Int
}

// NewInputScheduler returns an empty InputScheduler seeded for reproducible replay.
func NewInputScheduler(seed uint64) *InputScheduler {
	return &InputScheduler{
		arms:       make(map[TargetSelector]*armRecord),
		chooser:    newWeightedChooser[TargetSelector](rand.New(rand.NewSource(int64(seed)))),
		favourites: make(map[TargetSelector][]uint256.Int),
	}
}

// ensureArm returns the arm record for ts, creating it (with a neutral initial
// weight so untried arms still get a fair initial shot) if absent.
func (s *InputScheduler) ensureArm(ts TargetSelector) *armRecord {
	if rec, ok := s.arms[ts]; ok {
		return rec
	}
	rec := &armRecord{}
	rec.choice = s.chooser.add(ts, 1.0)
	s.arms[ts] = rec
	return rec
}

// RecordReward folds a transaction's outcome into ts's running-average reward.
// coverageDelta is the number of new edges gained, matching spec §4.4's "coverage
// gained per call" definition of the bandit reward directly.
func (s *InputScheduler) RecordReward(ts TargetSelector, coverageDelta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensureArm(ts)
	rec.pulls++
	rec.totalReward += float64(coverageDelta)

	average := rec.totalReward / float64(rec.pulls)
	// +1 floor keeps every arm selectable even after a long run of zero-reward
	// pulls; a true zero weight would make the arm permanently unreachable, which
	// spec §4.4 never asks for (decay is a StateScheduler-specific behavior, not
	// named for the input scheduler).
	s.chooser.reweight(rec.choice, average+1.0)
}

// RecordFavourite records the tainted operand value comparison-logging middleware
// most recently improved against, for ts, so the mutator's constants-pool operator
// can draw from it preferentially (spec §4.4's closing sentence).
func (s *InputScheduler) RecordFavourite(ts TargetSelector, value uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureArm(ts)
	s.favourites[ts] = append(s.favourites[ts], value)
}

// Favourites returns every favourite operand recorded for ts.
func (s *InputScheduler) Favourites(ts TargetSelector) []uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.favourites[ts]
}

// Select returns a (target, selector) pair to apply next, weighted by running
// average reward.
func (s *InputScheduler) Select() (TargetSelector, error) {
	return s.chooser.choose()
}

// ResumeCandidates filters paused continuations carried by state down to those
// compatible with the given target, for the mutator's resume-conversion operator
// (spec §4.5). "Compatible" means the pause's external call was directed at
// target, since resuming any other pause would inject return data into the wrong
// callee's expected call.
func ResumeCandidates(s *state.VMState, target common.Address) []*state.PausedFrame {
	var out []*state.PausedFrame
	for _, p := range s.PauseStack() {
		if p.ExternalTarget == target {
			out = append(out, p)
		}
	}
	return out
}
