package oracle

import (
	"fmt"

	"github.com/crytic/medusa-geth/common"
)

// ArbitraryCallOracle flags a call boundary whose target address was not one of
// the harness's own deployed contracts but appeared verbatim as a 32-byte-aligned
// word in the triggering transaction's calldata, per spec's arbitrary-call oracle:
// a contract that forwards an attacker-chosen address into a CALL with no
// intervening integrity check is exactly this shape, whether or not the call
// itself reverted.
type ArbitraryCallOracle struct{}

// NewArbitraryCallOracle returns an ArbitraryCallOracle.
func NewArbitraryCallOracle() *ArbitraryCallOracle {
	return &ArbitraryCallOracle{}
}

func (o *ArbitraryCallOracle) Name() string { return "arbitrary_call" }

func (o *ArbitraryCallOracle) Examine(ctx *ExecutionContext) []*BugReport {
	if len(ctx.Sequence) == 0 {
		return nil
	}
	triggering := ctx.Sequence[len(ctx.Sequence)-1]
	known := knownAddressSet(ctx.Contracts)

	var reports []*BugReport
	for _, boundary := range ctx.ReentrancyBoundaries {
		if known[boundary] {
			continue
		}
		if !calldataContainsAddress(triggering.Args, boundary) {
			continue
		}
		reports = append(reports, newReport(
			KindArbitraryCall,
			boundary,
			fmt.Sprintf("call target %s was taken directly from attacker-supplied calldata", boundary.Hex()),
			ctx.Sequence,
			ctx.PostState,
		))
	}
	return reports
}

// calldataContainsAddress reports whether addr appears as the low 20 bytes of any
// 32-byte-aligned word in args, the layout ABI encoding always uses for an address
// argument.
func calldataContainsAddress(args []byte, addr common.Address) bool {
	needle := addr.Bytes()
	for i := 0; i+32 <= len(args); i += 32 {
		word := args[i : i+32]
		if string(word[12:32]) == string(needle) {
			return true
		}
	}
	return false
}
