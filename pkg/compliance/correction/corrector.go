// Package correction applies automated remedies to doctrine violations.
//
// Only annotation synthesis is automated. Every other violation is
// reported for manual review.
package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Mindburn-Labs/doctrine/pkg/catalog"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance/rules"
	"github.com/Mindburn-Labs/doctrine/pkg/observability"
)

// Status is the outcome of one correction attempt.
type Status string

const (
	StatusCorrected        Status = "corrected"
	StatusAlreadyCompliant Status = "already_compliant"
	StatusManualReview     Status = "manual_review"
	StatusFailed           Status = "failed"
)

// TablePrefix starts every synthesized table annotation.
const TablePrefix = "Doctrine-governed table: "

// Result records what happened to one violation.
type Result struct {
	RuleID     string `json:"rule_id"`
	EntryKey   string `json:"entry_key"`
	Status     Status `json:"status"`
	Annotation string `json:"annotation,omitempty"` // text written, for corrected entries
	Error      string `json:"error,omitempty"`

	Err error `json:"-"`
}

// CorrectionError isolates the failure of one correction.
type CorrectionError struct {
	RuleID   string
	EntryKey string
	Err      error
}

func (e *CorrectionError) Error() string {
	return fmt.Sprintf("correct %s on %s: %v", e.RuleID, e.EntryKey, e.Err)
}

func (e *CorrectionError) Unwrap() error { return e.Err }

// Corrector reads the current annotation, decides, and writes at most
// once per violation. Corrections for one entry are serialized by the
// Locker; disjoint entries proceed concurrently.
type Corrector struct {
	catalog catalog.ReadWriter
	locker  Locker
	workers int
	logger  *slog.Logger
	metrics *observability.ScanMetrics
}

// Option configures a Corrector.
type Option func(*Corrector)

// WithLocker replaces the in-process KeyedMutex.
func WithLocker(l Locker) Option {
	return func(c *Corrector) { c.locker = l }
}

// WithWorkers bounds CorrectAll concurrency.
func WithWorkers(n int) Option {
	return func(c *Corrector) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Corrector) { c.logger = l.With("component", "correction") }
}

// WithMetrics sets the scan metrics.
func WithMetrics(m *observability.ScanMetrics) Option {
	return func(c *Corrector) { c.metrics = m }
}

// NewCorrector creates a corrector writing through cat.
func NewCorrector(cat catalog.ReadWriter, opts ...Option) *Corrector {
	c := &Corrector{
		catalog: cat,
		locker:  NewKeyedMutex(),
		workers: 4,
		logger:  slog.Default().With("component", "correction"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Correctable reports whether ruleID has an automated remedy.
func Correctable(ruleID string) bool {
	return ruleID == rules.TableAnnotationID || ruleID == rules.ColumnAnnotationID
}

// Correct applies the remedy for v, if any.
func (c *Corrector) Correct(ctx context.Context, v rules.Violation) Result {
	res := c.correct(ctx, v)
	c.metrics.CorrectionAttempted(ctx, v.RuleID, string(res.Status))
	return res
}

func (c *Corrector) correct(ctx context.Context, v rules.Violation) Result {
	res := Result{RuleID: v.RuleID, EntryKey: v.Entry.Key()}

	if !Correctable(v.RuleID) {
		res.Status = StatusManualReview
		return res
	}

	unlock, err := c.locker.Lock(ctx, res.EntryKey)
	if err != nil {
		return c.fail(ctx, res, err)
	}
	defer unlock()

	current, ok, err := c.catalog.GetAnnotation(ctx, v.Entry)
	if err != nil {
		return c.fail(ctx, res, err)
	}
	if ok && Satisfies(v.RuleID, current) {
		res.Status = StatusAlreadyCompliant
		return res
	}

	text := Synthesize(v.Entry, current)
	if err := c.catalog.SetAnnotation(ctx, v.Entry, text); err != nil {
		return c.fail(ctx, res, err)
	}

	c.logger.InfoContext(ctx, "annotation written", "rule_id", v.RuleID, "entry", res.EntryKey)
	res.Status = StatusCorrected
	res.Annotation = text
	return res
}

func (c *Corrector) fail(ctx context.Context, res Result, err error) Result {
	cerr := &CorrectionError{RuleID: res.RuleID, EntryKey: res.EntryKey, Err: err}
	c.logger.WarnContext(ctx, "correction failed", "rule_id", res.RuleID, "entry", res.EntryKey, "error", err)
	res.Status = StatusFailed
	res.Err = cerr
	res.Error = cerr.Error()
	return res
}

// CorrectAll corrects every violation and returns results in input order.
// One failure never stops the others.
func (c *Corrector) CorrectAll(ctx context.Context, vs []rules.Violation) []Result {
	results := make([]Result, len(vs))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, v := range vs {
		g.Go(func() error {
			results[i] = c.Correct(ctx, v)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Satisfies reports whether text already meets the annotation rule.
func Satisfies(ruleID, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	switch ruleID {
	case rules.TableAnnotationID:
		return rules.ReferencesDoctrine(text)
	case rules.ColumnAnnotationID:
		return rules.HasIdentifierToken(text)
	default:
		return false
	}
}

// Synthesize derives an annotation for e from catalog state alone, so
// repeated runs produce identical text. Non-blank existing text is kept
// after the synthesized prefix.
func Synthesize(e catalog.Entry, existing string) string {
	var prefix string
	if e.Kind == catalog.KindColumn {
		dataType := strings.TrimSpace(e.DataType)
		if dataType == "" {
			dataType = "unspecified"
		}
		null := "not null"
		if e.Nullable {
			null = "nullable"
		}
		// Ordinals below zero render as [0000] so the token stays well-formed.
		prefix = fmt.Sprintf("[%04d] %s (%s, %s)", max(e.Ordinal, 0), Humanize(e.Name), dataType, null)
	} else {
		prefix = TablePrefix + Humanize(e.Name)
	}

	existing = strings.TrimSpace(existing)
	if existing == "" || existing == prefix {
		return prefix
	}
	return prefix + " | " + existing
}

// Humanize turns an identifier such as "user_email" or "orderID" into
// "User Email" or "Order Id".
func Humanize(name string) string {
	words := strings.FieldsFunc(splitCamel(name), func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
	if len(words) == 0 {
		return name
	}
	return cases.Title(language.English).String(strings.ToLower(strings.Join(words, " ")))
}

// splitCamel inserts a space at lower-to-upper boundaries.
func splitCamel(s string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		upper := r >= 'A' && r <= 'Z'
		if upper && prevLower {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		prevLower = (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
	}
	return b.String()
}

// IsCorrectionError reports whether err came from a failed correction.
func IsCorrectionError(err error) bool {
	var cerr *CorrectionError
	return errors.As(err, &cerr)
}
