// Package rules defines doctrine rules, the built-in rule catalog, and
// loading of custom rules from YAML files.
package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/doctrine/pkg/catalog"
)

var (
	// ErrInvalidRule is returned for rules that cannot be evaluated.
	ErrInvalidRule = errors.New("rules: invalid rule")
	// ErrUnsupportedVersion is returned for rules files outside the supported range.
	ErrUnsupportedVersion = errors.New("rules: unsupported rules file version")
)

// Severity ranks how serious a violation is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities, critical first. Unknown severities rank last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return s.Rank() < 4 }

// Kind separates rules that only report from rules that have remedies.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindEnforcement Kind = "enforcement"
)

// Family groups related rules for reporting.
type Family string

const (
	FamilyAnnotationPresence    Family = "annotation-presence"
	FamilyRequiredFields        Family = "required-fields"
	FamilyIdentifierConsistency Family = "identifier-consistency"
)

// Finding is a rule's verdict on one entry.
type Finding struct {
	Entry  catalog.Entry
	Detail string
}

// Outcome is the result of a completed rule evaluation.
type Outcome struct {
	Findings []Finding
	Checked  []string // keys of the entries inspected, one per check
}

// EvalFunc evaluates a rule over a catalog snapshot. It must not mutate
// entries.
type EvalFunc func(ctx context.Context, entries []catalog.Entry) (Outcome, error)

// Rule is a named, severity-ranked predicate over catalog entries.
type Rule struct {
	ID       string
	Name     string
	Family   Family
	Severity Severity
	Kind     Kind
	Evaluate EvalFunc
}

// Validate checks that r can be evaluated and reported.
func (r Rule) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidRule)
	case r.Family == "":
		return fmt.Errorf("%w: %s: missing family", ErrInvalidRule, r.ID)
	case !r.Severity.Valid():
		return fmt.Errorf("%w: %s: unknown severity %q", ErrInvalidRule, r.ID, r.Severity)
	case r.Kind != KindValidation && r.Kind != KindEnforcement:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidRule, r.ID, r.Kind)
	case r.Evaluate == nil:
		return fmt.Errorf("%w: %s: no evaluation function", ErrInvalidRule, r.ID)
	}
	return nil
}

// Violation records that a rule does not hold for an entry. Violations
// are immutable once created.
type Violation struct {
	RuleID    string        `json:"rule_id"`
	Family    Family        `json:"family"`
	Severity  Severity      `json:"severity"`
	Entry     catalog.Entry `json:"entry"`
	EntryKey  string        `json:"entry_key"`
	Detail    string        `json:"detail"`
	Timestamp time.Time     `json:"timestamp"`
}

// Violation stamps a finding of r as a Violation.
func (r Rule) Violation(f Finding, at time.Time) Violation {
	return Violation{
		RuleID:    r.ID,
		Family:    r.Family,
		Severity:  r.Severity,
		Entry:     f.Entry,
		EntryKey:  f.Entry.Key(),
		Detail:    f.Detail,
		Timestamp: at.UTC(),
	}
}

// CheckFunc inspects one entry. It returns a detail and true when the
// entry violates the rule.
type CheckFunc func(e catalog.Entry) (detail string, violated bool, err error)

// PerEntry lifts a CheckFunc into an EvalFunc over entries of the given
// kind (all kinds if empty). Each inspected entry counts as one check.
func PerEntry(kind catalog.Kind, check CheckFunc) EvalFunc {
	return func(ctx context.Context, entries []catalog.Entry) (Outcome, error) {
		var out Outcome
		for _, e := range entries {
			if kind != "" && e.Kind != kind {
				continue
			}
			detail, violated, err := check(e)
			if err != nil {
				return Outcome{}, fmt.Errorf("%s: %w", e.Key(), err)
			}
			out.Checked = append(out.Checked, e.Key())
			if violated {
				out.Findings = append(out.Findings, Finding{Entry: e, Detail: detail})
			}
		}
		return out, nil
	}
}
