package enforcement

import (
	"sync"

	"github.com/Mindburn-Labs/doctrine/pkg/compliance/rules"
)

// recordingSink captures everything the engine reports, for assertions
// that need the raw errors rather than a rendered report.
type recordingSink struct {
	mu         sync.Mutex
	violations []rules.Violation
	checks     map[string]int
	errs       []error
}

func (s *recordingSink) Record(v rules.Violation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = append(s.violations, v)
}

func (s *recordingSink) AddChecks(ruleID string, keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checks == nil {
		s.checks = make(map[string]int)
	}
	s.checks[ruleID] += len(keys)
}

func (s *recordingSink) RecordScanError(ruleID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}
