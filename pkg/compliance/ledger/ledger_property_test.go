package ledger

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/doctrine/pkg/compliance/rules"
)

// TestComplianceRateBounds: the rate always lies in [0,1], is exactly 1
// without violations, equals the clean share of distinct checked entries,
// and Finalize is stable.
func TestComplianceRateBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("rate bounded and stable", prop.ForAll(
		func(checks []int, keys []int) bool {
			l := newLedger()
			entries := make(map[string]struct{})
			for i, n := range checks {
				checked := make([]string, 0, n)
				for j := range n {
					key := fmt.Sprintf("e%d", j)
					checked = append(checked, key)
					entries[key] = struct{}{}
				}
				l.AddChecks(fmt.Sprintf("R-%d", i), checked)
			}
			violating := make(map[string]struct{})
			for _, k := range keys {
				key := fmt.Sprintf("e%d", k)
				l.Record(v("R-0", "f", rules.SeverityLow, key))
				entries[key] = struct{}{}
				violating[key] = struct{}{}
			}

			r, err := l.Finalize()
			if err != nil {
				return false
			}
			if r.ComplianceRate < 0 || r.ComplianceRate > 1 {
				return false
			}
			if r.ViolationsFound == 0 && r.ComplianceRate != 1 {
				return false
			}
			if r.EntriesChecked != len(entries) {
				return false
			}
			if len(entries) > 0 {
				want := float64(len(entries)-len(violating)) / float64(len(entries))
				if r.ComplianceRate != want {
					return false
				}
			}
			again, err := l.Finalize()
			return err == nil && again == r
		},
		gen.SliceOf(gen.IntRange(0, 50)),
		gen.SliceOf(gen.IntRange(0, 30)),
	))

	properties.TestingRun(t)
}
