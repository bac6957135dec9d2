package fuzzing

import (
	"context"
	"math/big"
	"math/rand"
	"sync/atomic"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/fuzzland/ityfuzz/corpus"
	"github.com/fuzzland/ityfuzz/feedback"
	"github.com/fuzzland/ityfuzz/mutation"
	"github.com/fuzzland/ityfuzz/oracle"
	"github.com/fuzzland/ityfuzz/scheduler"
	"github.com/fuzzland/ityfuzz/state"
	"github.com/fuzzland/ityfuzz/utils/randomutils"
	"github.com/fuzzland/ityfuzz/vm"
	"github.com/fuzzland/ityfuzz/vm/evm"
	"github.com/fuzzland/ityfuzz/vm/evm/middleware"
)

// selectorGetReservesLocal mirrors middleware's unexported selectorGetReserves; not
// worth exporting from that package solely for this one read-only probe, since it
// is a fixed Uniswap-V2 protocol constant rather than campaign configuration.
var selectorGetReservesLocal = [4]byte{0x09, 0x02, 0xf1, 0xac}

// Worker drives one independent goroutine's worth of the fuzzing loop: select a
// state and a (target, selector) pair, mutate an input, execute it against a
// private evm.Bus wired to the campaign's shared feedback trackers, judge the
// result with the shared oracle set, and feed the outcome back into the shared
// schedulers and corpus, grounded on the teacher's FuzzerWorker
// (fuzzing/fuzzer_worker.go) generalized from go-ethereum-test-chain transaction
// sends to vm.Host.Execute/Resume over this module's VMState snapshots.
type Worker struct {
	fuzzer *Fuzzer
	index  int
	logger zerolog.Logger

	host vm.Host
	bus  *evm.Bus
	rng  *rand.Rand

	coverageMW   *middleware.Coverage
	comparisonMW *middleware.Comparison
	dataflowMW   *middleware.Dataflow
	reentrancyMW *middleware.Reentrancy
	logCaptureMW *middleware.LogCapture
	concolicMW   *middleware.Concolic

	mutator *mutation.Mutator

	metrics *workerMetrics

	sequencesSinceReset int
}

func newWorker(f *Fuzzer, index int) *Worker {
	w := &Worker{
		fuzzer:  f,
		index:   index,
		logger:  f.logger.With().Int("worker", index).Logger(),
		metrics: f.Metrics.workers[index],
		rng:     randomutils.ForkRandomProvider(f.rootRNG),
	}
	w.build()
	return w
}

// build (re)constructs the worker's private bus/host/mutator, sharing the
// campaign-wide feedback trackers and constants pool but giving each worker its
// own middleware instances (coverage/comparison/dataflow middleware carry
// per-transaction scratch state that must not be shared across goroutines) and its
// own Mutator, seeded from the worker index so distinct workers draw distinct
// mutation streams.
func (w *Worker) build() {
	f := w.fuzzer

	w.coverageMW = middleware.NewCoverage(f.coverage)
	w.comparisonMW = middleware.NewComparison(f.comparison)
	w.dataflowMW = middleware.NewDataflow(f.dataflow)
	w.reentrancyMW = middleware.NewReentrancy()
	w.logCaptureMW = middleware.NewLogCapture()

	var solver middleware.SolverBackend
	if f.cfg.Fuzzing.Concolic.Enabled {
		solver = middleware.NewDefaultSolverBackend(int(middleware.DefaultSolverTimeout.Milliseconds()))
	}
	w.concolicMW = middleware.NewConcolic(solver, context.Background())

	w.bus = evm.NewBus()
	w.bus.Use(w.coverageMW, w.comparisonMW, w.dataflowMW, middleware.NewFlashloan(), w.reentrancyMW, w.logCaptureMW)
	if f.cfg.Fuzzing.Concolic.Enabled {
		w.bus.Use(w.concolicMW)
	}
	if f.onchainLoader != nil {
		w.bus.Use(middleware.NewOnchainFetch(f.onchainLoader, context.Background(), w.logger))
	}

	w.host = evm.NewEVMHost(w.bus, w.logger)
	w.mutator = mutation.NewMutator(uint64(w.index)+1, f.constantsPool, f.attackers)
}

// run executes runOnce in a loop until ctx is cancelled, the campaign's stop
// channel fires, or the configured TestLimit is reached.
func (w *Worker) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if w.fuzzer.stopRequested() || w.fuzzer.testLimitReached() {
			return nil
		}

		if err := w.runOnce(ctx); err != nil {
			return err
		}

		if w.fuzzer.cfg.Fuzzing.WorkerResetLimit > 0 && w.sequencesSinceReset >= w.fuzzer.cfg.Fuzzing.WorkerResetLimit {
			w.build()
			w.sequencesSinceReset = 0
			w.metrics.addReset()
		}
	}
}

// runOnce selects a starting state and target, mutates a call sequence, executes
// it transaction-by-transaction (advancing through control-leak pauses exactly as
// a live attacker chain would), judges the result with the oracle set, and folds
// the outcome back into the schedulers and corpus.
func (w *Worker) runOnce(ctx context.Context) error {
	f := w.fuzzer

	startHash, err := f.stateScheduler.Select()
	if err != nil {
		return nil // no admitted state yet; nothing to do this round
	}
	startState := f.lookupState(startHash)
	if startState == nil {
		return nil
	}

	ts, err := f.inputScheduler.Select()
	if err != nil {
		return nil
	}

	resumable := scheduler.ResumeCandidates(startState, ts.Target)
	favourites := f.inputScheduler.Favourites(ts)

	base := w.seedInput(ts)
	mutated, op := w.mutator.Mutate(base, favourites, resumable, corpusAdapter{f.corpus})
	sequence := w.mutator.MutateSequence([]*mutation.EVMInput{mutated}, favourites, resumable, corpusAdapter{f.corpus})

	preState := startState
	current := startState
	var logs []vm.Log
	revertReasons := make(map[common.Address][][]byte)
	coverageBefore := f.coverage.EdgeCount()

	for _, in := range sequence {
		// EVMHost.Execute applies a fresh call's block delay itself; only a
		// resumption needs the block advanced here.
		if in.IsResumption() && (in.BlockDelayBlocks != 0 || in.BlockDelaySeconds != 0) {
			current = current.Extend(current.Block().Advance(in.BlockDelayBlocks, in.BlockDelaySeconds))
		}

		var outcome *vm.ExecOutcome
		var txErr error
		if in.IsResumption() {
			pf := findPause(current, in.Resume.PauseID)
			if pf == nil {
				continue // stale resumption reference; skip this tx, keep the sequence going
			}
			outcome, txErr = w.host.Resume(current, pf, in.Resume.ReplacementReturnData)
		} else {
			outcome, txErr = w.host.Execute(current, in)
		}
		if txErr != nil {
			return txErr
		}

		switch outcome.Kind {
		case vm.OutcomeSuccess:
			current = outcome.StateDelta
			evmLogs := make([]evm.Log, len(outcome.Logs))
			for i, l := range outcome.Logs {
				evmLogs[i] = evm.Log{Address: l.Address, Topics: l.Topics, Data: l.Data}
			}
			w.logCaptureMW.Record(evmLogs)
			logs = append(logs, outcome.Logs...)
		case vm.OutcomeRevert:
			revertReasons[in.Target] = append(revertReasons[in.Target], outcome.RevertReason)
		case vm.OutcomeControlLeak:
			current = outcome.StateDelta
		}
		w.metrics.addTransactions(1)
	}

	current.Flashloan().CheckCommitBoundary()

	novel :=w.coverageMW.Novel() || w.comparisonMW.Novel() || w.dataflowMW.Novel()
	coverageDelta := f.coverage.EdgeCount() - coverageBefore
	if novel && coverageDelta == 0 {
		coverageDelta = 1 // comparison/dataflow-only novelty still counts as one reward unit
	}

	f.inputScheduler.RecordReward(ts, coverageDelta)
	if v, ok := w.comparisonMW.LastFavourite(); ok {
		f.inputScheduler.RecordFavourite(ts, v)
	}
	f.stateScheduler.RecordChildOutcome(startHash, novel)

	if novel {
		f.registerState(current)
		f.stateScheduler.Admit(current.Hash(), 0)

		verdict := feedback.Verdict{
			EdgeNovelty:       w.coverageMW.Novel(),
			ComparisonNovelty: w.comparisonMW.Novel(),
			DataflowNovelty:   w.dataflowMW.Novel(),
			CoverageDelta:     coverageDelta,
		}
		entry := corpus.NewEntry(
			startHash,
			sequence[len(sequence)-1],
			corpus.Provenance{Operator: op},
			corpus.ScoresFromVerdict(verdict, coverageDelta),
		)
		if err := f.corpus.Add(entry); err != nil {
			w.logger.Warn().Err(err).Msg("failed to persist corpus entry")
		}
	}

	execCtx := &oracle.ExecutionContext{
		Sequence:             sequence,
		PreState:             preState,
		PostState:            current,
		Attackers:            f.attackers,
		Contracts:            f.contractInfos,
		Logs:                 logs,
		ReentrancyBoundaries: w.reentrancyMW.Boundaries(),
		RevertReasons:        revertReasons,
		InvariantProbe:       w.invariantProbe(current),
		ReserveProbe:         w.reserveProbe(current),
		BaselineReserves:     f.snapshotBaselineReserves(),
	}
	reports := f.oracles.Examine(execCtx)
	for _, report := range reports {
		w.metrics.addBugsFound(1)
		f.Events.BugFound.Publish(BugFoundEvent{Report: report})
		if f.cfg.Fuzzing.PanicOnBug {
			f.triggerStop(&BugFoundError{Report: report})
		}
	}

	w.metrics.addSequence()
	w.sequencesSinceReset++
	atomic.AddUint64(&f.sequencesTested, 1)

	return nil
}

// seedInput synthesizes a fresh, unmutated starting EVMInput for ts: a random
// attacker caller, zero value, and a calldata argument vector whose width is drawn
// from a small fixed set of word counts (the mutator's operators subsequently do
// the interesting work of filling it in).
func (w *Worker) seedInput(ts scheduler.TargetSelector) *mutation.EVMInput {
	words := w.rng.Intn(4) + 1
	return &mutation.EVMInput{
		Caller:   w.attackerFor(),
		Target:   ts.Target,
		Selector: ts.Selector,
		Args:     make([]byte, 32*words),
		Value:    uint256.NewInt(0),
		RandSeed: w.rng.Uint64(),
	}
}

func (w *Worker) attackerFor() common.Address {
	if len(w.fuzzer.attackers) == 0 {
		return common.Address{}
	}
	return w.fuzzer.attackers[w.rng.Intn(len(w.fuzzer.attackers))]
}

// invariantProbe returns a closure executing a zero-argument view call against
// post and interpreting its 32-byte boolean return, for oracle.ExecutionContext.
func (w *Worker) invariantProbe(post *state.VMState) func(common.Address, [4]byte) (bool, bool) {
	return func(target common.Address, selector [4]byte) (bool, bool) {
		in := &mutation.EVMInput{Caller: w.fuzzer.deployer, Target: target, Selector: selector, Value: uint256.NewInt(0)}
		outcome, err := w.host.Execute(post, in)
		if err != nil || outcome.Kind != vm.OutcomeSuccess || len(outcome.ReturnData) < 32 {
			return false, false
		}
		return outcome.ReturnData[31] != 0, true
	}
}

// reserveProbe returns a closure executing getReserves() against a candidate pair
// address and decoding the first two returned uint256 words, for
// oracle.ExecutionContext.
func (w *Worker) reserveProbe(post *state.VMState) func(common.Address) (*big.Int, *big.Int, bool) {
	return func(pair common.Address) (*big.Int, *big.Int, bool) {
		in := &mutation.EVMInput{Caller: w.fuzzer.deployer, Target: pair, Selector: selectorGetReservesLocal, Value: uint256.NewInt(0)}
		outcome, err := w.host.Execute(post, in)
		if err != nil || outcome.Kind != vm.OutcomeSuccess || len(outcome.ReturnData) < 64 {
			return nil, nil, false
		}
		r0 := new(big.Int).SetBytes(outcome.ReturnData[0:32])
		r1 := new(big.Int).SetBytes(outcome.ReturnData[32:64])
		w.fuzzer.recordReserves(pair, r0, r1)
		return r0, r1, true
	}
}

func findPause(s *state.VMState, id uint64) *state.PausedFrame {
	for _, p := range s.PauseStack() {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// corpusAdapter narrows *corpus.Corpus down to mutation.Corpus.
type corpusAdapter struct {
	c *corpus.Corpus
}

func (a corpusAdapter) SameSelector(selector [4]byte) []*mutation.EVMInput {
	if a.c == nil {
		return nil
	}
	return a.c.SameSelector(selector)
}

// BugFoundError terminates a campaign under --panic-on-bug, carrying the report
// that triggered the stop so cmd's exit-code layer can report it.
type BugFoundError struct {
	Report *oracle.BugReport
}

func (e *BugFoundError) Error() string {
	return "bug found: " + string(e.Report.Kind) + ": " + e.Report.Message
}

// UpstreamFetchError indicates the campaign could not be started because the
// on-chain adapter could not be reached, leaving read-through state undefined
// (exit code 3): distinct from a configuration mistake (exit code 2), since the
// configuration itself may be perfectly valid and the upstream node simply down.
type UpstreamFetchError struct {
	Err error
}

func (e *UpstreamFetchError) Error() string { return e.Err.Error() }
func (e *UpstreamFetchError) Unwrap() error { return e.Err }
