// Package compliance runs doctrine scans end to end: evaluate rules,
// optionally correct violations, and publish the report.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/doctrine/pkg/artifacts"
	"github.com/Mindburn-Labs/doctrine/pkg/catalog"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance/correction"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance/enforcement"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance/ledger"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance/rules"
	"github.com/Mindburn-Labs/doctrine/pkg/observability"
)

// Outcome is the result of one run.
type Outcome struct {
	Report      *ledger.Report
	Summary     *enforcement.Summary
	ArtifactRef string // empty unless a store is configured
}

// Session holds everything one run needs. Run state lives in a fresh
// ledger per Run call, so a Session may be reused.
type Session struct {
	catalog   catalog.Reader
	rules     []rules.Rule
	engine    *enforcement.Engine
	corrector *correction.Corrector
	store     artifacts.Store
	provider  *observability.Provider
	logger    *slog.Logger
	clock     func() time.Time
	runID     string
}

// Option configures a Session.
type Option func(*Session)

// WithEngine replaces the default engine.
func WithEngine(e *enforcement.Engine) Option {
	return func(s *Session) { s.engine = e }
}

// WithCorrector enables automated correction after the scan.
func WithCorrector(c *correction.Corrector) Option {
	return func(s *Session) { s.corrector = c }
}

// WithStore publishes every report to store.
func WithStore(store artifacts.Store) Option {
	return func(s *Session) { s.store = store }
}

// WithProvider wraps runs in a tracked operation.
func WithProvider(p *observability.Provider) Option {
	return func(s *Session) { s.provider = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l.With("component", "compliance") }
}

// WithClock fixes report generation time, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.clock = clock }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(s *Session) { s.runID = id }
}

// NewSession creates a session scanning cat with rs.
func NewSession(cat catalog.Reader, rs []rules.Rule, opts ...Option) *Session {
	s := &Session{
		catalog: cat,
		rules:   rs,
		logger:  slog.Default().With("component", "compliance"),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = enforcement.NewEngine(nil, enforcement.WithClock(s.clock))
	}
	return s
}

// Run scans the catalog, applies corrections when enabled, and finalizes
// the report. The only errors returned are an unavailable catalog and a
// failure to publish the report; rule and correction failures are part
// of the report.
func (s *Session) Run(ctx context.Context) (out *Outcome, err error) {
	if s.provider != nil {
		var done func(error)
		ctx, done = s.provider.TrackOperation(ctx, "doctrine.run",
			attribute.Int("rules", len(s.rules)),
			attribute.Bool("auto_correct", s.corrector != nil),
		)
		defer func() { done(err) }()
	}

	l := ledger.New().WithClock(s.clock)
	if s.runID != "" {
		l.WithRunID(s.runID)
	}
	logger := s.logger.With("run_id", l.RunID())
	logger.InfoContext(ctx, "scan started", "rules", len(s.rules))

	summary, err := s.engine.Scan(ctx, s.rules, s.catalog, l)
	if err != nil {
		logger.ErrorContext(ctx, "scan aborted", "error", err)
		return nil, err
	}
	if summary.Cancelled {
		l.MarkCancelled()
	}

	switch {
	case s.corrector == nil:
	case summary.Cancelled:
		logger.WarnContext(ctx, "corrections skipped; scan was cancelled")
	default:
		for _, res := range s.corrector.CorrectAll(ctx, l.Violations()) {
			l.RecordCorrection(res)
		}
	}

	report, err := l.Finalize()
	if err != nil {
		return nil, fmt.Errorf("finalize report: %w", err)
	}
	out = &Outcome{Report: report, Summary: summary}

	if s.store != nil {
		ref, err := artifacts.PublishReport(context.WithoutCancel(ctx), s.store, report)
		if err != nil {
			return out, err
		}
		out.ArtifactRef = ref
	}

	logger.InfoContext(ctx, "scan finished",
		"violations", report.ViolationsFound,
		"corrections", report.CorrectionsMade,
		"compliance_rate", report.ComplianceRate,
		"cancelled", report.Cancelled,
		"artifact", out.ArtifactRef,
	)
	return out, nil
}
