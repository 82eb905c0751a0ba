package enforcement

import (
	"fmt"
)

// RuleEvaluationError isolates the failure of one rule. The scan goes on
// with the remaining rules.
type RuleEvaluationError struct {
	RuleID   string
	Err      error
	Panicked bool
}

func (e *RuleEvaluationError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("rule %s panicked: %v", e.RuleID, e.Err)
	}
	return fmt.Sprintf("rule %s failed: %v", e.RuleID, e.Err)
}

func (e *RuleEvaluationError) Unwrap() error { return e.Err }
