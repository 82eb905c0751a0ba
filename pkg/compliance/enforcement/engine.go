// Package enforcement evaluates doctrine rules against a schema catalog.
package enforcement

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/doctrine/pkg/catalog"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance/rules"
	"github.com/Mindburn-Labs/doctrine/pkg/observability"
)

// Sink receives scan results. Implementations must be safe for
// concurrent use; rules report from parallel workers.
type Sink interface {
	Record(v rules.Violation)
	// AddChecks credits a completed rule with the keys of the entries it
	// inspected, one key per check.
	AddChecks(ruleID string, keys []string)
	RecordScanError(ruleID string, err error)
}

// Config configures the engine.
type Config struct {
	// MaxConcurrentRules bounds parallel rule evaluation. 1 runs rules
	// sequentially in the given order.
	MaxConcurrentRules int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{MaxConcurrentRules: 4}
}

// Summary describes a finished scan.
type Summary struct {
	Entries        int           `json:"entries"`
	RulesCompleted int           `json:"rules_completed"`
	RulesFailed    int           `json:"rules_failed"`
	RulesSkipped   int           `json:"rules_skipped"`
	Violations     int           `json:"violations"`
	Checks         int           `json:"checks"`
	Cancelled      bool          `json:"cancelled"`
	Duration       time.Duration `json:"duration"`
}

// Engine runs rules over a catalog snapshot.
type Engine struct {
	config  *Config
	clock   func() time.Time
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.ScanMetrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the violation timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l.With("component", "enforcement") }
}

// WithTracer sets the tracer used for per-rule spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithMetrics sets the scan metrics.
func WithMetrics(m *observability.ScanMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine. A nil config uses DefaultConfig.
func NewEngine(config *Config, opts ...Option) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxConcurrentRules < 1 {
		config.MaxConcurrentRules = 1
	}
	e := &Engine{
		config: config,
		clock:  time.Now,
		logger: slog.Default().With("component", "enforcement"),
		tracer: otel.Tracer("github.com/Mindburn-Labs/doctrine/enforcement"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scan lists the catalog once and evaluates every rule against that
// snapshot, reporting into sink.
//
// A catalog that cannot be listed fails the scan with
// catalog.ErrCatalogUnavailable; no other error is fatal. A failing or
// panicking rule is reported to the sink as a *RuleEvaluationError and
// contributes neither violations nor checks. Cancellation is observed
// between rules: rules not yet started are skipped, while a rule already
// running finishes on a context that is never cancelled.
func (e *Engine) Scan(ctx context.Context, rs []rules.Rule, reader catalog.Reader, sink Sink) (*Summary, error) {
	start := time.Now()

	entries, err := reader.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", catalog.ErrCatalogUnavailable, err)
	}
	entries = slices.Clone(entries)
	catalog.Sort(entries)

	e.logger.InfoContext(ctx, "scan started", "rules", len(rs), "entries", len(entries))

	summary := &Summary{Entries: len(entries)}
	var mu sync.Mutex
	tally := func(f func(s *Summary)) {
		mu.Lock()
		defer mu.Unlock()
		f(summary)
	}

	var g errgroup.Group
	g.SetLimit(e.config.MaxConcurrentRules)

	for _, rule := range rs {
		if ctx.Err() != nil {
			tally(func(s *Summary) { s.RulesSkipped++ })
			e.metrics.RuleEvaluated(ctx, rule.ID, observability.OutcomeSkipped, 0, 0)
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				tally(func(s *Summary) { s.RulesSkipped++ })
				e.metrics.RuleEvaluated(ctx, rule.ID, observability.OutcomeSkipped, 0, 0)
				return nil
			}

			runCtx := context.WithoutCancel(ctx)
			violations, checked, err := e.evaluate(runCtx, rule, entries)
			if err != nil {
				sink.RecordScanError(rule.ID, err)
				tally(func(s *Summary) { s.RulesFailed++ })
				e.metrics.RuleEvaluated(runCtx, rule.ID, observability.OutcomeFailed, 0, 0)
				e.logger.WarnContext(runCtx, "rule evaluation failed", "rule_id", rule.ID, "error", err)
				return nil
			}

			for _, v := range violations {
				sink.Record(v)
			}
			sink.AddChecks(rule.ID, checked)
			tally(func(s *Summary) {
				s.RulesCompleted++
				s.Violations += len(violations)
				s.Checks += len(checked)
			})
			e.metrics.RuleEvaluated(runCtx, rule.ID, observability.OutcomeCompleted, len(violations), len(checked))
			return nil
		})
	}

	// Workers never return errors; failures go to the sink.
	_ = g.Wait()

	summary.Cancelled = ctx.Err() != nil
	summary.Duration = time.Since(start)
	e.metrics.ScanCompleted(context.WithoutCancel(ctx), summary.Duration, summary.Cancelled)

	e.logger.InfoContext(ctx, "scan finished",
		"completed", summary.RulesCompleted,
		"failed", summary.RulesFailed,
		"skipped", summary.RulesSkipped,
		"violations", summary.Violations,
		"cancelled", summary.Cancelled,
		"duration", summary.Duration,
	)
	return summary, nil
}

// evaluate runs one rule in isolation. Panics become *RuleEvaluationError.
func (e *Engine) evaluate(ctx context.Context, rule rules.Rule, entries []catalog.Entry) (violations []rules.Violation, checked []string, err error) {
	ctx, span := e.tracer.Start(ctx, "doctrine.rule",
		trace.WithAttributes(
			attribute.String("rule.id", rule.ID),
			attribute.String("rule.family", string(rule.Family)),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			violations, checked = nil, nil
			err = &RuleEvaluationError{RuleID: rule.ID, Err: fmt.Errorf("%v", r), Panicked: true}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if verr := rule.Validate(); verr != nil {
		return nil, nil, &RuleEvaluationError{RuleID: rule.ID, Err: verr}
	}

	outcome, evalErr := rule.Evaluate(ctx, slices.Clone(entries))
	if evalErr != nil {
		return nil, nil, &RuleEvaluationError{RuleID: rule.ID, Err: evalErr}
	}

	findings := slices.Clone(outcome.Findings)
	sort.SliceStable(findings, func(i, j int) bool {
		ki, kj := findings[i].Entry.Key(), findings[j].Entry.Key()
		if ki != kj {
			return ki < kj
		}
		return findings[i].Detail < findings[j].Detail
	})

	now := e.clock()
	violations = make([]rules.Violation, 0, len(findings))
	for _, f := range findings {
		violations = append(violations, rule.Violation(f, now))
	}
	span.SetAttributes(
		attribute.Int("rule.checks", len(outcome.Checked)),
		attribute.Int("rule.violations", len(violations)),
	)
	return violations, slices.Clone(outcome.Checked), nil
}
