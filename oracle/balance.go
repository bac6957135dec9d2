package oracle

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BalanceExtractionOracle flags any attacker address whose tracked flashloan-ledger
// balance for a given token grew by more than Threshold over the sequence, per
// spec's balance-extraction oracle: a net gain in attacker-controlled funds that
// the legitimate protocol logic should never have permitted. decimal is used for
// the comparison (rather than *big.Int directly) since Threshold is most naturally
// expressed as a human-authored campaign-config value and decimal avoids any
// float-rounding surprise when that value is parsed from a config file.
type BalanceExtractionOracle struct {
	Threshold decimal.Decimal
}

// NewBalanceExtractionOracle returns a BalanceExtractionOracle flagging any net
// attacker gain strictly greater than threshold.
func NewBalanceExtractionOracle(threshold decimal.Decimal) *BalanceExtractionOracle {
	return &BalanceExtractionOracle{Threshold: threshold}
}

func (o *BalanceExtractionOracle) Name() string { return "balance_extraction" }

func (o *BalanceExtractionOracle) Examine(ctx *ExecutionContext) []*BugReport {
	if ctx.PostState == nil {
		return nil
	}
	ledger := ctx.PostState.Flashloan()
	entries := ledger.Entries()

	var reports []*BugReport
	for _, attacker := range ctx.Attackers {
		for key := range entries {
			if key.Holder != attacker {
				continue
			}
			delta := ledger.Balance(key.Token, attacker)
			if decimal.NewFromBigInt(delta, 0).GreaterThan(o.Threshold) {
				reports = append(reports, newReport(
					KindBalanceExtraction,
					attacker,
					fmt.Sprintf("attacker %s net-gained %s of token %s", attacker.Hex(), delta.String(), key.Token.Hex()),
					ctx.Sequence,
					ctx.PostState,
				))
			}
		}
	}
	return reports
}
