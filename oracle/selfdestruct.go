package oracle

import "fmt"

// SelfDestructedOracle flags any watched contract that issued SELFDESTRUCT during
// the sequence. This is a SPEC_FULL.md addition (not one of the six core oracle
// kinds) grounded on original_source's evm/oracles package, which tracks
// self-destruction as a bug category of its own: a contract the harness expects to
// be immutable (e.g. a fixed-supply token, a locked vault) killing itself is
// interesting to a security review independent of any fund-loss it may also cause.
// When Watch is empty, every contract in ExecutionContext.Contracts is watched.
type SelfDestructedOracle struct {
	Watch []ContractInfo
}

// NewSelfDestructedOracle returns a SelfDestructedOracle watching the given
// contracts, or every contract in a sequence's ExecutionContext if none are given.
func NewSelfDestructedOracle(watch ...ContractInfo) *SelfDestructedOracle {
	return &SelfDestructedOracle{Watch: watch}
}

func (o *SelfDestructedOracle) Name() string { return "self_destructed" }

func (o *SelfDestructedOracle) Examine(ctx *ExecutionContext) []*BugReport {
	if ctx.PostState == nil {
		return nil
	}

	watch := o.Watch
	if len(watch) == 0 {
		watch = ctx.Contracts
	}

	var reports []*BugReport
	for _, c := range watch {
		if !ctx.PostState.SelfDestructed(c.Address) {
			continue
		}
		reports = append(reports, newReport(
			KindSelfDestructed,
			c.Address,
			fmt.Sprintf("contract %s (%s) issued SELFDESTRUCT", c.Address.Hex(), c.Name),
			ctx.Sequence,
			ctx.PostState,
		))
	}
	return reports
}
