package oracle

import (
	"fmt"
	"strings"
)

// InvariantOracle probes every echidna_/invariant_-prefixed view function the
// target contracts expose and flags any that returns false, matching spec's
// Echidna/Foundry-style invariant oracle: these naming conventions are the de
// facto standard both fuzzing ecosystems use for a harness author's own
// boolean-predicate invariants, so recognizing the prefix is sufficient to
// interoperate with an existing Echidna/Foundry test suite unmodified.
type InvariantOracle struct{}

// NewInvariantOracle returns an InvariantOracle.
func NewInvariantOracle() *InvariantOracle {
	return &InvariantOracle{}
}

func (o *InvariantOracle) Name() string { return "invariant" }

func (o *InvariantOracle) Examine(ctx *ExecutionContext) []*BugReport {
	if ctx.InvariantProbe == nil {
		return nil
	}

	var reports []*BugReport
	for _, c := range ctx.Contracts {
		for selector, name := range c.Methods {
			if !isInvariantName(name) {
				continue
			}
			result, ok := ctx.InvariantProbe(c.Address, selector)
			if !ok || result {
				continue
			}
			reports = append(reports, newReport(
				KindInvariantBroken,
				c.Address,
				fmt.Sprintf("%s.%s returned false", c.Name, name),
				ctx.Sequence,
				ctx.PostState,
			))
		}
	}
	return reports
}

func isInvariantName(name string) bool {
	return strings.HasPrefix(name, "echidna_") || strings.HasPrefix(name, "invariant_")
}
