// Package fuzzing implements the campaign orchestrator tying every other package
// together: it loads contracts, deploys them into a genesis VMState, spins up a
// pool of Workers each driving the two-tier scheduler/mutator/vm.Host loop, and
// aggregates the resulting bug reports, grounded on the teacher's Fuzzer/FuzzerWorker
// split (fuzzing/fuzzer.go, fuzzing/fuzzer_worker.go) generalized from medusa's
// go-ethereum-test-chain-backed workers to this module's vm.Host capability
// interface and VMState snapshot model.
package fuzzing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/big"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver"
	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fuzzland/ityfuzz/artifact"
	"github.com/fuzzland/ityfuzz/config"
	"github.com/fuzzland/ityfuzz/corpus"
	"github.com/fuzzland/ityfuzz/feedback"
	"github.com/fuzzland/ityfuzz/mutation"
	"github.com/fuzzland/ityfuzz/onchain"
	"github.com/fuzzland/ityfuzz/oracle"
	"github.com/fuzzland/ityfuzz/scheduler"
	"github.com/fuzzland/ityfuzz/state"
	"github.com/fuzzland/ityfuzz/utils"
	"github.com/fuzzland/ityfuzz/vm/evm"
	"github.com/fuzzland/ityfuzz/vm/evm/middleware"
)

// genesisBalance is the native-asset balance seeded for the deployer and every
// configured sender address at genesis, large enough that no fuzzed sequence is
// ever blocked on insufficient balance for a CALL's value transfer.
var genesisBalance, _ = new(big.Int).SetString("100000000000000000000000000", 10) // 1e26 wei

// Fuzzer orchestrates one fuzzing campaign: it owns every shared, cross-worker
// resource (the corpus, the two-tier scheduler, the feedback trackers, the oracle
// set) and spawns one Worker per configured goroutine, each with its own
// vm.Host/Bus/Mutator driving independently against the shared resources.
type Fuzzer struct {
	cfg    *config.ProjectConfig
	logger zerolog.Logger

	deployed      []DeployedContract
	attackers     []common.Address
	deployer      common.Address
	contractInfos []oracle.ContractInfo
	targets       []scheduler.TargetSelector

	corpus *corpus.Corpus

	coverage   *feedback.CoverageMap
	comparison *feedback.ComparisonTracker
	dataflow   *feedback.DataflowTracker

	constantsPool *mutation.ConstantsPool

	stateScheduler *scheduler.StateScheduler
	inputScheduler *scheduler.InputScheduler

	onchainLoader  *onchain.Loader
	onchainAdapter *onchain.RPCAdapter

	oracles *oracle.OracleSet

	statesMu sync.Mutex
	states   map[state.Hash]*state.VMState

	reservesMu       sync.Mutex
	baselineReserves map[common.Address][2]*big.Int

	Metrics *Metrics
	Events  *Events

	// rootRNG is forked once per worker via randomutils.ForkRandomProvider into
	// Worker.rng, so the seed inputs every worker draws derive from a single campaign
	// seed; each worker's Mutator is seeded separately from its index (Worker.build).
	rootRNG *rand.Rand

	workers []*Worker

	sequencesTested uint64 // atomic, checked against Fuzzing.TestLimit

	stopOnce sync.Once
	stopCh   chan struct{}
	stopErr  error
}

// NewFuzzer validates cfg, loads/deploys the configured contracts, and returns a
// Fuzzer ready to Start. A failure to reach the upstream RPC endpoint in on-chain
// mode is returned as *UpstreamFetchError (exit code 3); every other non-nil error
// here is a configuration-class failure (exit code 2): anything discovered at this
// stage means the campaign cannot meaningfully begin.
func NewFuzzer(cfg *config.ProjectConfig, logger zerolog.Logger) (*Fuzzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deployer := common.Address{}
	if cfg.Fuzzing.DeployerAddress != "" {
		addr, err := utils.HexStringToAddress(cfg.Fuzzing.DeployerAddress)
		if err != nil {
			return nil, errors.Wrap(err, "parsing deployer address")
		}
		deployer = *addr
	}
	senders, err := utils.HexStringsToAddresses(cfg.Fuzzing.SenderAddresses)
	if err != nil {
		return nil, errors.Wrap(err, "parsing sender addresses")
	}
	attackers := senders
	if len(attackers) == 0 {
		attackers = []common.Address{deployer}
	}

	var contracts []*artifact.Contract
	if cfg.Artifact.Directory != "" {
		var constraint *semver.Constraints
		if cfg.Artifact.CompilerConstraint != "" {
			constraint, err = semver.NewConstraint(cfg.Artifact.CompilerConstraint)
			if err != nil {
				return nil, errors.Wrap(err, "parsing compiler constraint")
			}
		}
		contracts, err = artifact.LoadDirectory(cfg.Artifact.Directory, constraint)
		if err != nil {
			return nil, errors.Wrap(err, "loading artifact directory")
		}
	}

	constantsPool := mutation.NewConstantsPool()
	for _, c := range contracts {
		constantsPool.HarvestBytecode(c.InitBytecode)
		constantsPool.HarvestBytecode(c.RuntimeBytecode)
	}
	for _, a := range attackers {
		constantsPool.AddAddress(a)
	}
	constantsPool.AddAddress(deployer)

	if cfg.Fuzzing.BasePath == "" {
		return nil, errors.New("base path is required")
	}
	if err := utils.MakeDirectory(filepath.Join(cfg.Fuzzing.BasePath, "corpus")); err != nil {
		return nil, errors.Wrap(err, "creating corpus directory")
	}
	corp, err := corpus.Open(filepath.Join(cfg.Fuzzing.BasePath, "corpus", "corpus.db"), logger)
	if err != nil {
		return nil, errors.Wrap(err, "opening corpus")
	}

	coverage := feedback.NewCoverageMap()
	comparison := feedback.NewComparisonTracker()
	dataflow := feedback.NewDataflowTracker()

	var loader *onchain.Loader
	var adapter *onchain.RPCAdapter
	if cfg.Fuzzing.Onchain.Enabled {
		endpoint := os.Getenv("ETH_RPC_URL")
		if endpoint == "" {
			return nil, errors.New("on-chain mode requires the ETH_RPC_URL environment variable")
		}
		adapter, err = onchain.NewRPCAdapter(context.Background(), endpoint)
		if err != nil {
			return nil, &UpstreamFetchError{Err: errors.Wrap(err, "connecting to upstream rpc endpoint")}
		}
		cacheDir := filepath.Join(cfg.Fuzzing.BasePath, "cache", cfg.Fuzzing.Onchain.ChainTag, fmt.Sprint(cfg.Fuzzing.Onchain.BlockNumber))
		if err := utils.MakeDirectory(cacheDir); err != nil {
			return nil, errors.Wrap(err, "creating onchain cache directory")
		}
		loader, err = onchain.NewLoader(adapter, chainIDFromTag(cfg.Fuzzing.Onchain.ChainTag), cfg.Fuzzing.Onchain.BlockNumber, onchain.FetchOneByOne, filepath.Join(cacheDir, "cache.db"), logger)
		if err != nil {
			return nil, errors.Wrap(err, "opening onchain cache")
		}
	}

	// Deploy every configured contract against a freshly seeded genesis state using
	// a throwaway host that shares the same feedback trackers the campaign's real
	// workers will use, so constructor execution itself still contributes coverage.
	deployBus := evm.NewBus()
	deployBus.Use(
		middleware.NewCoverage(coverage),
		middleware.NewComparison(comparison),
		middleware.NewDataflow(dataflow),
		middleware.NewFlashloan(),
	)
	deployHost := evm.NewEVMHost(deployBus, logger)

	genesis := state.NewGenesisState(state.DefaultBlockEnv())
	for _, a := range append(append([]common.Address{}, attackers...), deployer) {
		acc := state.NewAccount(a)
		acc.Balance.SetFromBig(genesisBalance)
		genesis.SetAccount(acc)
	}

	deployedState, deployed, err := deployAll(deployHost, genesis, contracts, cfg.Fuzzing, deployer)
	if err != nil {
		return nil, err
	}

	targets, contractInfos, err := resolveTargets(cfg.Fuzzing, deployed)
	if err != nil {
		return nil, err
	}

	oracles := buildOracleSet(cfg.Fuzzing.Oracles, contractInfos)

	f := &Fuzzer{
		cfg:              cfg,
		logger:           logger.With().Str("component", "fuzzer").Logger(),
		deployed:         deployed,
		attackers:        attackers,
		deployer:         deployer,
		contractInfos:    contractInfos,
		targets:          targets,
		corpus:           corp,
		coverage:         coverage,
		comparison:       comparison,
		dataflow:         dataflow,
		constantsPool:    constantsPool,
		stateScheduler:   scheduler.NewStateScheduler(1),
		inputScheduler:   scheduler.NewInputScheduler(1),
		onchainLoader:    loader,
		onchainAdapter:   adapter,
		oracles:          oracles,
		states:           make(map[state.Hash]*state.VMState),
		baselineReserves: make(map[common.Address][2]*big.Int),
		Metrics:          NewMetrics(cfg.Fuzzing.Workers),
		Events:           &Events{},
		rootRNG:          rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh:           make(chan struct{}),
	}

	f.registerState(deployedState)
	f.stateScheduler.Admit(deployedState.Hash(), 0)
	// Seed every resolved arm into the bandit with a neutral zero-reward pull so
	// InputScheduler.Select has a populated chooser before any real reward is ever
	// recorded; RecordReward is the only exported path that registers an arm.
	for _, ts := range targets {
		f.inputScheduler.RecordReward(ts, 0)
	}

	f.workers = make([]*Worker, cfg.Fuzzing.Workers)
	for i := range f.workers {
		f.workers[i] = newWorker(f, i)
	}

	return f, nil
}

// buildOracleSet assembles the OracleSet active for this campaign: the core
// oracles always run, and the flashloan/price-manipulation oracles are gated by
// the `-f`/`-p` flags, per spec §6. The self-destruction oracle always watches
// every resolved contract, a SPEC_FULL.md-level addition grounded on
// original_source's evm/oracles package. StateComparisonOracle is never wired
// automatically: it needs a caller-supplied StateComparator this configuration
// surface has no slot for, so it remains available to a direct API caller but out
// of this orchestrator's default set.
func buildOracleSet(cfg config.OracleConfig, contracts []oracle.ContractInfo) *oracle.OracleSet {
	oracles := []oracle.Oracle{
		oracle.NewBugTopicOracle(),
		oracle.NewArbitraryCallOracle(),
		oracle.NewReentrancyOracle(),
		oracle.NewInvariantOracle(),
		oracle.NewSelfDestructedOracle(contracts...),
	}
	if cfg.FlashloanEnabled {
		oracles = append(oracles, oracle.NewBalanceExtractionOracle(cfg.FundLossThreshold))
	}
	if cfg.PriceManipulationEnabled {
		shiftThreshold := decimal.NewFromInt(int64(cfg.PriceManipulationThresholdBps)).Div(decimal.NewFromInt(10000))
		oracles = append(oracles, oracle.NewPriceManipulationOracle(shiftThreshold))
	}
	return oracle.NewOracleSet(oracles...)
}

// chainIDFromTag parses ChainTag as a decimal chain id, or falls back to a stable
// FNV hash of the tag string when it is a symbolic name (e.g. "mainnet-fork")
// rather than a number — the loader only needs chainID to namespace its on-disk
// cache, not to validate against any real network.
func chainIDFromTag(tag string) uint64 {
	if n, err := strconv.ParseUint(tag, 10, 64); err == nil {
		return n
	}
	h := fnv.New64a()
	h.Write([]byte(tag))
	return h.Sum64()
}

// registerState stores s so a future StateScheduler.Select() hash can be resolved
// back to the concrete VMState, since the scheduler itself only ever hands back a
// state.Hash.
func (f *Fuzzer) registerState(s *state.VMState) {
	f.statesMu.Lock()
	defer f.statesMu.Unlock()
	f.states[s.Hash()] = s
}

func (f *Fuzzer) lookupState(h state.Hash) *state.VMState {
	f.statesMu.Lock()
	defer f.statesMu.Unlock()
	return f.states[h]
}

// recordReserves updates the last-observed reserve pair for addr and returns the
// previous baseline (nil if this is the first observation), for the
// price-manipulation oracle's ratio-shift comparison.
func (f *Fuzzer) recordReserves(addr common.Address, reserve0, reserve1 *big.Int) (baseline [2]*big.Int, known bool) {
	f.reservesMu.Lock()
	defer f.reservesMu.Unlock()
	baseline, known = f.baselineReserves[addr]
	f.baselineReserves[addr] = [2]*big.Int{reserve0, reserve1}
	return baseline, known
}

// snapshotBaselineReserves returns a copy of the campaign's last-observed reserve
// baselines, safe for a worker to read concurrently with other workers'
// recordReserves calls.
func (f *Fuzzer) snapshotBaselineReserves() map[common.Address][2]*big.Int {
	f.reservesMu.Lock()
	defer f.reservesMu.Unlock()
	out := make(map[common.Address][2]*big.Int, len(f.baselineReserves))
	for k, v := range f.baselineReserves {
		out[k] = v
	}
	return out
}

func (f *Fuzzer) testLimitReached() bool {
	limit := f.cfg.Fuzzing.TestLimit
	return limit != 0 && atomic.LoadUint64(&f.sequencesTested) >= limit
}

// triggerStop requests every worker to stop, recording err (if non-nil) as the
// campaign's terminal error. Safe to call concurrently and more than once; only
// the first call's err is kept.
func (f *Fuzzer) triggerStop(err error) {
	f.stopOnce.Do(func() {
		f.stopErr = err
		close(f.stopCh)
	})
}

func (f *Fuzzer) stopRequested() bool {
	select {
	case <-f.stopCh:
		return true
	default:
		return false
	}
}

// Start runs every worker to completion (context cancellation, --test-limit, a
// configured --timeout, or a bug found under --panic-on-bug, whichever comes
// first) and returns the first fatal error encountered, if any.
func (f *Fuzzer) Start(ctx context.Context) error {
	f.Events.Starting.Publish(StartingEvent{Fuzzer: f})

	runCtx := ctx
	if f.cfg.Fuzzing.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(f.cfg.Fuzzing.Timeout)*time.Second)
		defer cancel()
	}

	var wg sync.WaitGroup
	for _, w := range f.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			f.Events.WorkerCreated.Publish(WorkerCreatedEvent{Worker: w})
			if err := w.run(runCtx); err != nil {
				f.triggerStop(err)
			}
			f.Events.WorkerDestroyed.Publish(WorkerDestroyedEvent{Worker: w})
		}(w)
	}
	wg.Wait()

	f.Events.Stopping.Publish(StoppingEvent{Fuzzer: f, Err: f.stopErr})
	return f.stopErr
}

// Stop requests every worker to halt at its next opportunity without reporting a
// campaign error (a clean, user-requested stop).
func (f *Fuzzer) Stop() {
	f.triggerStop(nil)
}

// Close releases every resource opened by NewFuzzer (corpus store, onchain cache,
// onchain RPC connection). Call once Start has returned.
func (f *Fuzzer) Close() error {
	var firstErr error
	if f.corpus != nil {
		if err := f.corpus.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if f.onchainLoader != nil {
		if err := f.onchainLoader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if f.onchainAdapter != nil {
		f.onchainAdapter.Close()
	}
	return firstErr
}
