package oracle

import (
	"fmt"

	"github.com/fuzzland/ityfuzz/utils"
	"github.com/fuzzland/ityfuzz/vm/evm/middleware"
)

// BugTopicOracle flags any LOG whose first topic matches a bug-sentinel signature
// (LogCapture's own recognized set), the simplest and most direct of the six named
// oracle kinds: a harness author who emits a sentinel event has already decided
// what constitutes a bug, and this oracle just needs to notice it fired. It also
// flags a Solidity Panic(uint256) revert (assert failures, arithmetic
// over/underflow, div-by-zero, and the other built-in panic causes) surfaced
// through ExecutionContext.RevertReasons, since most contracts never wire an
// explicit sentinel event for these but they are bugs all the same.
type BugTopicOracle struct{}

// NewBugTopicOracle returns a BugTopicOracle.
func NewBugTopicOracle() *BugTopicOracle {
	return &BugTopicOracle{}
}

func (o *BugTopicOracle) Name() string { return "bug_topic" }

func (o *BugTopicOracle) Examine(ctx *ExecutionContext) []*BugReport {
	var reports []*BugReport
	for _, log := range ctx.Logs {
		if len(log.Topics) == 0 {
			continue
		}
		if middleware.IsSentinelTopic(log.Topics[0]) {
			reports = append(reports, newReport(
				KindBugTopic,
				log.Address,
				"sentinel bug-topic log observed",
				ctx.Sequence,
				ctx.PostState,
			))
		}
	}

	for addr, reverts := range ctx.RevertReasons {
		for _, data := range reverts {
			code, ok := utils.DecodeSolidityPanicCode(data)
			if !ok || !utils.HasEncounteredAssertionFailure(code) {
				continue
			}
			reports = append(reports, newReport(
				KindBugTopic,
				addr,
				fmt.Sprintf("solidity panic 0x%02x encountered", code.Uint64()),
				ctx.Sequence,
				ctx.PostState,
			))
		}
	}
	return reports
}
