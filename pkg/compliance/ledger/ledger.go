// Package ledger accumulates the results of one compliance run and renders
// the final report.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/doctrine/pkg/canonicalize"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance/correction"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance/rules"
)

// ScanError is a rule that failed during the scan.
type ScanError struct {
	RuleID  string `json:"rule_id"`
	Message string `json:"message"`
}

// Report is the immutable summary of a run.
type Report struct {
	RunID           string              `json:"run_id"`
	GeneratedAt     time.Time           `json:"generated_at"`
	RulesApplied    int                 `json:"rules_applied"`
	RulesEvaluated  int                 `json:"rules_evaluated"`
	EntriesChecked  int                 `json:"entries_checked"`
	ViolationsFound int                 `json:"violations_found"`
	CorrectionsMade int                 `json:"corrections_made"`
	ComplianceRate  float64             `json:"compliance_rate"`
	Violations      []rules.Violation   `json:"violations"`
	Recommendations []string            `json:"recommendations"`
	ScanErrors      []ScanError         `json:"scan_errors"`
	Corrections     []correction.Result `json:"corrections"`
	ManualReview    int                 `json:"manual_review"`
	Cancelled       bool                `json:"cancelled"`
	ContentHash     string              `json:"content_hash"`
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu          sync.Mutex
	runID       string
	violations  []rules.Violation
	checks      map[string]int      // ruleID → checks from completed rules
	checked     map[string]struct{} // entry keys inspected by completed rules
	scanErrors  []ScanError
	corrections []correction.Result
	cancelled   bool
	clock       func() time.Time
	report      *Report
}

// New creates a ledger for a fresh run.
func New() *Ledger {
	return &Ledger{
		runID:   uuid.NewString(),
		checks:  make(map[string]int),
		checked: make(map[string]struct{}),
		clock:   time.Now,
	}
}

// WithClock overrides clock for testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// WithRunID overrides the generated run ID.
func (l *Ledger) WithRunID(id string) *Ledger {
	l.runID = id
	return l
}

// RunID returns the run identifier.
func (l *Ledger) RunID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runID
}

// Record appends a violation.
func (l *Ledger) Record(v rules.Violation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.violations = append(l.violations, v)
	l.report = nil
}

// AddChecks credits a completed rule with one check per key. A rule that
// inspected nothing still counts as evaluated.
func (l *Ledger) AddChecks(ruleID string, keys []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checks[ruleID] += len(keys)
	for _, k := range keys {
		l.checked[k] = struct{}{}
	}
	l.report = nil
}

// RecordScanError notes a rule that failed.
func (l *Ledger) RecordScanError(ruleID string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scanErrors = append(l.scanErrors, ScanError{RuleID: ruleID, Message: err.Error()})
	l.report = nil
}

// RecordCorrection appends a correction result.
func (l *Ledger) RecordCorrection(r correction.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.corrections = append(l.corrections, r)
	l.report = nil
}

// MarkCancelled flags the run as cut short.
func (l *Ledger) MarkCancelled() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelled = true
	l.report = nil
}

// Violations returns a sorted copy of the recorded violations.
func (l *Ledger) Violations() []rules.Violation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedViolations(l.violations)
}

// Finalize renders the report. It returns the same report until a further
// record call changes the ledger.
func (l *Ledger) Finalize() (*Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.report != nil {
		return l.report, nil
	}

	r := &Report{
		RunID:       l.runID,
		GeneratedAt: l.clock().UTC(),
		Violations:  sortedViolations(l.violations),
		ScanErrors:  append([]ScanError{}, l.scanErrors...),
		Corrections: append([]correction.Result{}, l.corrections...),
		Cancelled:   l.cancelled,
	}
	sort.SliceStable(r.ScanErrors, func(i, j int) bool { return r.ScanErrors[i].RuleID < r.ScanErrors[j].RuleID })
	sort.SliceStable(r.Corrections, func(i, j int) bool {
		a, b := r.Corrections[i], r.Corrections[j]
		if a.EntryKey != b.EntryKey {
			return a.EntryKey < b.EntryKey
		}
		return a.RuleID < b.RuleID
	})

	for _, n := range l.checks {
		r.RulesApplied += n
	}
	r.RulesEvaluated = len(l.checks)
	r.ViolationsFound = len(r.Violations)
	for _, c := range r.Corrections {
		switch c.Status {
		case correction.StatusCorrected:
			r.CorrectionsMade++
		case correction.StatusManualReview:
			r.ManualReview++
		}
	}
	r.EntriesChecked, r.ComplianceRate = complianceRate(l.checked, r.Violations)
	r.Recommendations = recommendations(r)

	hash, err := canonicalize.CanonicalHash(hashBody(r))
	if err != nil {
		return nil, fmt.Errorf("hash report: %w", err)
	}
	r.ContentHash = canonicalize.HashPrefix + hash

	l.report = r
	return r, nil
}

// complianceRate is the share of distinct checked entries that no rule
// flagged. An entry breaking several rules counts once; a violating entry
// is always counted as checked.
func complianceRate(checked map[string]struct{}, vs []rules.Violation) (int, float64) {
	entries := make(map[string]struct{}, len(checked)+len(vs))
	for k := range checked {
		entries[k] = struct{}{}
	}
	violating := make(map[string]struct{}, len(vs))
	for _, v := range vs {
		entries[v.EntryKey] = struct{}{}
		violating[v.EntryKey] = struct{}{}
	}
	if len(entries) == 0 {
		return 0, 1.0
	}
	rate := float64(len(entries)-len(violating)) / float64(len(entries))
	return len(entries), min(max(rate, 0), 1)
}

func sortedViolations(vs []rules.Violation) []rules.Violation {
	out := append([]rules.Violation{}, vs...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		if a.EntryKey != b.EntryKey {
			return a.EntryKey < b.EntryKey
		}
		return a.Detail < b.Detail
	})
	return out
}

// hashBody is the report minus run identity, so two runs over the same
// catalog state hash the same.
func hashBody(r *Report) any {
	type violation struct {
		RuleID   string `json:"rule_id"`
		EntryKey string `json:"entry_key"`
		Detail   string `json:"detail"`
	}
	vs := make([]violation, 0, len(r.Violations))
	for _, v := range r.Violations {
		vs = append(vs, violation{RuleID: v.RuleID, EntryKey: v.EntryKey, Detail: v.Detail})
	}
	return map[string]any{
		"rules_applied":    r.RulesApplied,
		"rules_evaluated":  r.RulesEvaluated,
		"entries_checked":  r.EntriesChecked,
		"violations_found": r.ViolationsFound,
		"corrections_made": r.CorrectionsMade,
		"compliance_rate":  r.ComplianceRate,
		"violations":       vs,
		"recommendations":  r.Recommendations,
		"scan_errors":      r.ScanErrors,
		"corrections":      r.Corrections,
		"manual_review":    r.ManualReview,
		"cancelled":        r.Cancelled,
	}
}
