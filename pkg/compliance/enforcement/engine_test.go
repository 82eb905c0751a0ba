package enforcement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Mindburn-Labs/doctrine/pkg/catalog"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance/ledger"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance/rules"
)

func strPtr(s string) *string { return &s }

func testCatalog() *catalog.Memory {
	return catalog.NewMemory(
		catalog.Entry{Name: "users", Kind: catalog.KindTable, Annotation: strPtr("doctrine table")},
		catalog.Entry{Name: "orders", Kind: catalog.KindTable},
		catalog.Entry{Name: "audit", Kind: catalog.KindTable},
		catalog.Entry{Name: "id", Kind: catalog.KindColumn, Parent: "users", Ordinal: 1, Annotation: strPtr("[0001] Id")},
		catalog.Entry{Name: "email", Kind: catalog.KindColumn, Parent: "users", Ordinal: 2},
	)
}

func builtin(t *testing.T, ids ...string) []rules.Rule {
	t.Helper()
	var out []rules.Rule
	for _, r := range rules.Builtin() {
		for _, id := range ids {
			if r.ID == id {
				out = append(out, r)
			}
		}
	}
	require.Len(t, out, len(ids))
	return out
}

func failingRule(id string) rules.Rule {
	return rules.Rule{
		ID: id, Name: "always fails", Family: "broken", Severity: rules.SeverityLow, Kind: rules.KindValidation,
		Evaluate: func(ctx context.Context, entries []catalog.Entry) (rules.Outcome, error) {
			return rules.Outcome{Checked: []string{entries[0].Key()}}, errors.New("catalog query failed")
		},
	}
}

func panickingRule(id string) rules.Rule {
	return rules.Rule{
		ID: id, Name: "panics", Family: "broken", Severity: rules.SeverityLow, Kind: rules.KindValidation,
		Evaluate: func(ctx context.Context, entries []catalog.Entry) (rules.Outcome, error) {
			panic("index out of range")
		},
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.Equal(t, 4, c.MaxConcurrentRules)

	e := NewEngine(&Config{MaxConcurrentRules: 0})
	require.Equal(t, 1, e.config.MaxConcurrentRules)
}

func TestScan_Builtin(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := ledger.New()
	summary, err := NewEngine(nil).Scan(context.Background(),
		builtin(t, rules.TableAnnotationID, rules.ColumnAnnotationID), testCatalog(), l)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Entries)
	assert.Equal(t, 2, summary.RulesCompleted)
	assert.Equal(t, 3, summary.Violations)
	assert.Equal(t, 5, summary.Checks)
	assert.False(t, summary.Cancelled)

	var keys []string
	for _, v := range l.Violations() {
		keys = append(keys, v.RuleID+":"+v.EntryKey)
	}
	assert.Equal(t, []string{"DOC-001:audit", "DOC-001:orders", "DOC-002:users.email"}, keys)
}

// A failing rule yields exactly one scan error and does not hide the
// violations of the other rule.
func TestScan_RuleIsolation(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := ledger.New()
	rs := append(builtin(t, rules.TableAnnotationID), failingRule("ORG-001"))
	summary, err := NewEngine(nil).Scan(context.Background(), rs, testCatalog(), l)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.RulesCompleted)
	assert.Equal(t, 1, summary.RulesFailed)

	r, err := l.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 2, r.ViolationsFound)
	require.Len(t, r.ScanErrors, 1)
	assert.Equal(t, "ORG-001", r.ScanErrors[0].RuleID)
	assert.Contains(t, r.ScanErrors[0].Message, "catalog query failed")
	// Checks of the failed rule are not credited.
	assert.Equal(t, 3, r.RulesApplied)
}

func TestScan_PanicIsolated(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recordingSink{}
	rs := []rules.Rule{panickingRule("ORG-002"), builtin(t, rules.ColumnAnnotationID)[0]}
	summary, err := NewEngine(&Config{MaxConcurrentRules: 1}).Scan(context.Background(), rs, testCatalog(), rec)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.RulesFailed)
	assert.Equal(t, 1, summary.RulesCompleted)
	require.Len(t, rec.errs, 1)

	var rerr *RuleEvaluationError
	require.ErrorAs(t, rec.errs[0], &rerr)
	assert.True(t, rerr.Panicked)
	assert.Equal(t, "ORG-002", rerr.RuleID)
	assert.Contains(t, rerr.Error(), "index out of range")
	assert.Len(t, rec.violations, 1)
}

func TestScan_InvalidRuleReported(t *testing.T) {
	rec := &recordingSink{}
	_, err := NewEngine(nil).Scan(context.Background(), []rules.Rule{{ID: "EMPTY"}}, testCatalog(), rec)
	require.NoError(t, err)
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], rules.ErrInvalidRule)
}

type brokenCatalog struct{}

func (brokenCatalog) ListEntries(ctx context.Context) ([]catalog.Entry, error) {
	return nil, errors.New("connection refused")
}

func (brokenCatalog) GetAnnotation(ctx context.Context, e catalog.Entry) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func TestScan_CatalogUnavailable(t *testing.T) {
	_, err := NewEngine(nil).Scan(context.Background(), rules.Builtin(), brokenCatalog{}, ledger.New())
	assert.ErrorIs(t, err, catalog.ErrCatalogUnavailable)
	assert.ErrorContains(t, err, "connection refused")
}

func TestScan_CancelledBetweenRules(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sawCancel bool
	first := rules.Rule{
		ID: "CANCEL", Name: "cancels the run", Family: "test", Severity: rules.SeverityLow, Kind: rules.KindValidation,
		Evaluate: func(rctx context.Context, entries []catalog.Entry) (rules.Outcome, error) {
			cancel()
			sawCancel = rctx.Err() != nil
			return rules.Outcome{Checked: []string{entries[0].Key()}}, nil
		},
	}
	rs := append([]rules.Rule{first}, builtin(t, rules.TableAnnotationID, rules.ColumnAnnotationID)...)

	l := ledger.New()
	summary, err := NewEngine(&Config{MaxConcurrentRules: 1}).Scan(ctx, rs, testCatalog(), l)
	require.NoError(t, err)

	assert.False(t, sawCancel, "in-flight rule must not observe cancellation")
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, summary.RulesCompleted)
	assert.Equal(t, 2, summary.RulesSkipped)

	r, err := l.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 1, r.RulesApplied)
	assert.Zero(t, r.ViolationsFound)
}

func TestScan_Deterministic(t *testing.T) {
	run := func() []string {
		l := ledger.New()
		_, err := NewEngine(&Config{MaxConcurrentRules: 8}).Scan(context.Background(), rules.Builtin(), testCatalog(), l)
		require.NoError(t, err)
		var out []string
		for _, v := range l.Violations() {
			out = append(out, v.RuleID+":"+v.EntryKey+":"+v.Detail)
		}
		return out
	}
	first := run()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, run())
	}
}

func TestScan_ClockStampsViolations(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := &recordingSink{}
	_, err := NewEngine(nil, WithClock(func() time.Time { return at })).
		Scan(context.Background(), builtin(t, rules.TableAnnotationID), testCatalog(), rec)
	require.NoError(t, err)
	require.NotEmpty(t, rec.violations)
	for _, v := range rec.violations {
		assert.Equal(t, at, v.Timestamp)
	}
}
