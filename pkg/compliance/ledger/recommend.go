package ledger

import (
	"fmt"
	"sort"

	"github.com/Mindburn-Labs/doctrine/pkg/compliance/rules"
)

var familyAdvice = map[rules.Family]string{
	rules.FamilyAnnotationPresence:    "annotate the affected tables and columns, or run with auto-correct",
	rules.FamilyRequiredFields:        "add the missing dialect fields or correct the dialect declaration",
	rules.FamilyIdentifierConsistency: "fix or remove the malformed hierarchical identifiers",
}

type familyTally struct {
	family rules.Family
	worst  rules.Severity
	count  int
}

// recommendations yields one line per family with violations, worst
// severity first, then the manual-review and scan-error lines.
func recommendations(r *Report) []string {
	byFamily := make(map[rules.Family]*familyTally)
	for _, v := range r.Violations {
		t, ok := byFamily[v.Family]
		if !ok {
			t = &familyTally{family: v.Family, worst: v.Severity}
			byFamily[v.Family] = t
		}
		t.count++
		if v.Severity.Rank() < t.worst.Rank() {
			t.worst = v.Severity
		}
	}

	tallies := make([]*familyTally, 0, len(byFamily))
	for _, t := range byFamily {
		tallies = append(tallies, t)
	}
	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].worst.Rank() != tallies[j].worst.Rank() {
			return tallies[i].worst.Rank() < tallies[j].worst.Rank()
		}
		return tallies[i].family < tallies[j].family
	})

	out := make([]string, 0, len(tallies)+2)
	for _, t := range tallies {
		advice, ok := familyAdvice[t.family]
		if !ok {
			advice = "review the affected entries"
		}
		out = append(out, fmt.Sprintf("[%s] %s: %d %s; %s",
			t.worst, t.family, t.count, plural(t.count, "violation", "violations"), advice))
	}
	if r.ManualReview > 0 {
		out = append(out, fmt.Sprintf("%d %s %s manual review", r.ManualReview,
			plural(r.ManualReview, "violation", "violations"), plural(r.ManualReview, "requires", "require")))
	}
	if n := len(r.ScanErrors); n > 0 {
		out = append(out, fmt.Sprintf("%d %s failed to evaluate; results are incomplete",
			n, plural(n, "rule", "rules")))
	}
	return out
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
