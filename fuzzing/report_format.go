package fuzzing

import (
	"fmt"
	"strings"

	"github.com/fuzzland/ityfuzz/oracle"
)

// FormatBugReport renders a confirmed bug finding as a console-friendly string,
// tagging its call sequence and outcome with the same bracketed markers
// (`[Call Sequence]`, `[call]`, `[FAILED]`, ...) the logging/formatters package
// colorizes for terminal output.
func FormatBugReport(r *oracle.BugReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[FAILED] %s on %s\n", r.Kind, r.Target.Hex())
	fmt.Fprintf(&b, "%s\n", r.Message)

	if len(r.Sequence) > 0 {
		b.WriteString("[Call Sequence]\n")
		for i, tx := range r.Sequence {
			fmt.Fprintf(&b, "  [call] %d: %s.%x(...) from %s, value=%s\n",
				i+1, tx.Target.Hex(), tx.Selector, tx.Caller.Hex(), tx.Value.String())
		}
	}

	if len(r.Witness) > 0 {
		fmt.Fprintf(&b, "[reentrancy witness depth %d]\n", len(r.Witness))
	}

	return b.String()
}
