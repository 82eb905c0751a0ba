package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Rule evaluation outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// ScanMetrics holds the counters fed by the engine and the corrector.
// A nil *ScanMetrics records nothing.
type ScanMetrics struct {
	rules       metric.Int64Counter
	violations  metric.Int64Counter
	checks      metric.Int64Counter
	corrections metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewScanMetrics registers the scan instruments on meter.
func NewScanMetrics(meter metric.Meter) (*ScanMetrics, error) {
	m := &ScanMetrics{}
	var err error

	if m.rules, err = meter.Int64Counter("doctrine.rules.evaluated",
		metric.WithDescription("Rule evaluations by outcome"),
		metric.WithUnit("{rule}"),
	); err != nil {
		return nil, err
	}
	if m.violations, err = meter.Int64Counter("doctrine.violations.found",
		metric.WithDescription("Violations found"),
		metric.WithUnit("{violation}"),
	); err != nil {
		return nil, err
	}
	if m.checks, err = meter.Int64Counter("doctrine.checks.performed",
		metric.WithDescription("Entry checks performed by completed rules"),
		metric.WithUnit("{check}"),
	); err != nil {
		return nil, err
	}
	if m.corrections, err = meter.Int64Counter("doctrine.corrections.total",
		metric.WithDescription("Correction attempts by status"),
		metric.WithUnit("{correction}"),
	); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("doctrine.scan.duration",
		metric.WithDescription("Scan duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// RuleEvaluated records one rule outcome.
func (m *ScanMetrics) RuleEvaluated(ctx context.Context, ruleID, outcome string, violations, checks int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("rule_id", ruleID))
	m.rules.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rule_id", ruleID),
		attribute.String("outcome", outcome),
	))
	if violations > 0 {
		m.violations.Add(ctx, int64(violations), attrs)
	}
	if checks > 0 {
		m.checks.Add(ctx, int64(checks), attrs)
	}
}

// CorrectionAttempted records one correction by status.
func (m *ScanMetrics) CorrectionAttempted(ctx context.Context, ruleID, status string) {
	if m == nil {
		return
	}
	m.corrections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rule_id", ruleID),
		attribute.String("status", status),
	))
}

// ScanCompleted records the scan duration.
func (m *ScanMetrics) ScanCompleted(ctx context.Context, d time.Duration, cancelled bool) {
	if m == nil {
		return
	}
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("cancelled", cancelled)))
}
