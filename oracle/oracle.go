package oracle

import (
	"math/big"

	"github.com/crytic/medusa-geth/common"

	"github.com/fuzzland/ityfuzz/mutation"
	"github.com/fuzzland/ityfuzz/state"
	"github.com/fuzzland/ityfuzz/vm"
)

// ContractInfo describes one deployed contract as the oracle set needs to know it:
// just enough ABI surface to recognize well-known selector shapes (DEX pair
// reserve reads, echidna_/invariant_-style predicates) without the oracle package
// needing to depend on a full ABI binding library itself.
type ContractInfo struct {
	Address common.Address
	Name    string
	Methods map[[4]byte]string
}

// ExecutionContext aggregates everything an Oracle may need to judge one executed
// sequence. The orchestrator populates it from the middleware bus and the VM
// capability interface after each sequence completes; an Oracle never reaches
// into the VM or middleware state directly, keeping every oracle trivially
// testable against a hand-built ExecutionContext.
type ExecutionContext struct {
	Sequence  []*mutation.EVMInput
	PreState  *state.VMState
	PostState *state.VMState

	Attackers []common.Address
	Contracts []ContractInfo

	Logs                 []vm.Log
	ReentrancyBoundaries []common.Address

	// RevertReasons carries the raw revert return data of every reverted call in
	// the sequence, keyed by the reverting contract, so the bug-topic oracle can
	// also recognize a Solidity Panic(uint256) revert (assert/overflow/div-by-zero)
	// alongside sentinel log events.
	RevertReasons map[common.Address][][]byte

	// InvariantProbe executes a zero-argument boolean-returning view call against
	// PostState and reports its result, for the Echidna/Foundry-style invariant
	// oracle. ok is false if the call could not be evaluated (e.g. it reverted).
	InvariantProbe func(target common.Address, selector [4]byte) (result bool, ok bool)

	// ReserveProbe executes a getReserves()-shaped view call against a candidate
	// DEX pair address, for the price-manipulation oracle.
	ReserveProbe func(pair common.Address) (reserve0, reserve1 *big.Int, ok bool)

	// BaselineReserves carries the previously observed reserve pair per address,
	// maintained by the caller across sequences so the price-manipulation oracle
	// measures a ratio *shift* rather than an absolute snapshot.
	BaselineReserves map[common.Address][2]*big.Int
}

// Oracle examines one executed sequence's ExecutionContext and returns zero or
// more confirmed bug findings.
type Oracle interface {
	Name() string
	Examine(ctx *ExecutionContext) []*BugReport
}

// OracleSet runs every registered Oracle against an ExecutionContext and collects
// their findings, mirroring the teacher's pattern of independent test-case
// providers each contributing to one shared result set, but evaluated eagerly
// against a single post-sequence snapshot rather than subscribed to a running
// event stream.
type OracleSet struct {
	oracles []Oracle
}

// NewOracleSet returns an OracleSet running the given oracles, in order.
func NewOracleSet(oracles ...Oracle) *OracleSet {
	return &OracleSet{oracles: oracles}
}

// Examine runs every registered oracle against ctx and returns the concatenation
// of their findings.
func (s *OracleSet) Examine(ctx *ExecutionContext) []*BugReport {
	var reports []*BugReport
	for _, o := range s.oracles {
		reports = append(reports, o.Examine(ctx)...)
	}
	return reports
}

func knownAddressSet(contracts []ContractInfo) map[common.Address]bool {
	out := make(map[common.Address]bool, len(contracts))
	for _, c := range contracts {
		out[c.Address] = true
	}
	return out
}
