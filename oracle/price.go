package oracle

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// selectorToken0 and selectorGetReserves are the standard Uniswap-V2-shaped pair
// selectors (keccak256("token0()")[:4] and keccak256("getReserves()")[:4]). A
// contract exposing both is heuristically treated as a DEX pair, matching the
// spec's "token0() selector-probe heuristic" for identifying price-manipulation
// targets without requiring the harness to annotate pairs explicitly.
var (
	selectorToken0       = [4]byte{0x0d, 0xfe, 0x16, 0x81}
	selectorGetReserves  = [4]byte{0x09, 0x02, 0xf1, 0xac}
)

// PriceManipulationOracle flags a DEX pair whose reserve ratio shifted by more than
// ShiftThreshold (a fraction, e.g. 0.5 for 50%) relative to the last baseline the
// caller recorded for it, per spec's price-manipulation oracle.
type PriceManipulationOracle struct {
	ShiftThreshold decimal.Decimal
}

// NewPriceManipulationOracle returns a PriceManipulationOracle tripping once a
// pair's reserve ratio shifts by more than shiftThreshold.
func NewPriceManipulationOracle(shiftThreshold decimal.Decimal) *PriceManipulationOracle {
	return &PriceManipulationOracle{ShiftThreshold: shiftThreshold}
}

func (o *PriceManipulationOracle) Name() string { return "price_manipulation" }

func (o *PriceManipulationOracle) Examine(ctx *ExecutionContext) []*BugReport {
	if ctx.ReserveProbe == nil {
		return nil
	}

	var reports []*BugReport
	for _, c := range ctx.Contracts {
		if !looksLikeDexPair(c) {
			continue
		}

		reserve0, reserve1, ok := ctx.ReserveProbe(c.Address)
		if !ok || reserve1 == nil || reserve1.Sign() == 0 {
			continue
		}

		baseline, known := ctx.BaselineReserves[c.Address]
		if !known || baseline[1] == nil || baseline[1].Sign() == 0 {
			// First observation of this pair establishes the baseline only; there is
			// nothing to compare a shift against yet.
			continue
		}

		ratio := decimal.NewFromBigInt(reserve0, 0).Div(decimal.NewFromBigInt(reserve1, 0))
		baseRatio := decimal.NewFromBigInt(baseline[0], 0).Div(decimal.NewFromBigInt(baseline[1], 0))
		if baseRatio.IsZero() {
			continue
		}

		shift := ratio.Sub(baseRatio).Div(baseRatio).Abs()
		if shift.GreaterThan(o.ShiftThreshold) {
			reports = append(reports, newReport(
				KindPriceManipulation,
				c.Address,
				fmt.Sprintf("pair %s reserve ratio shifted %s%% of baseline", c.Address.Hex(), shift.Mul(decimal.NewFromInt(100)).StringFixed(2)),
				ctx.Sequence,
				ctx.PostState,
			))
		}
	}
	return reports
}

func looksLikeDexPair(c ContractInfo) bool {
	_, hasToken0 := c.Methods[selectorToken0]
	_, hasReserves := c.Methods[selectorGetReserves]
	return hasToken0 && hasReserves
}
