package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Mindburn-Labs/doctrine/pkg/artifacts"
	"github.com/Mindburn-Labs/doctrine/pkg/catalog"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance/correction"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance/enforcement"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance/ledger"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance/rules"
	"github.com/Mindburn-Labs/doctrine/pkg/config"
	"github.com/Mindburn-Labs/doctrine/pkg/observability"
)

// runScanCmd implements `doctrine scan`. Settings come from DOCTRINE_*
// environment variables; flags override the rules file and auto-correct.
//
// Exit codes:
//
//	0 = scan finished (and was clean, with --fail-on-violations)
//	1 = violations found with --fail-on-violations
//	2 = configuration or runtime error
func runScanCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("scan", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		jsonOutput       bool
		failOnViolations bool
		autoCorrect      bool
		rulesFile        string
	)
	cmd.BoolVar(&jsonOutput, "json", false, "Print the full report as JSON")
	cmd.BoolVar(&failOnViolations, "fail-on-violations", false, "Exit 1 when any violation remains")
	cmd.BoolVar(&autoCorrect, "auto-correct", false, "Apply automated corrections (overrides DOCTRINE_AUTO_CORRECT)")
	cmd.StringVar(&rulesFile, "rules", "", "Custom rules file (overrides DOCTRINE_RULES_FILE)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	cmd.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "auto-correct":
			cfg.AutoCorrect = autoCorrect
		case "rules":
			cfg.RulesFile = rulesFile
		}
	})

	logger := cfg.NewLogger(stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, ref, err := scan(ctx, cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		if err := artifacts.WriteReport(stdout, report); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	} else {
		printReport(stdout, report, ref)
	}

	if failOnViolations && remaining(report) > 0 {
		return 1
	}
	return 0
}

func scan(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ledger.Report, string, error) {
	provider, err := observability.New(ctx, cfg.Observability())
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = provider.Shutdown(context.WithoutCancel(ctx)) }()

	cat, closeCatalog, err := openCatalog(cfg)
	if err != nil {
		return nil, "", err
	}
	defer closeCatalog()

	ruleOpts := []rules.Option{rules.WithDisabled(cfg.DisabledRules...)}
	if cfg.RulesFile != "" {
		ruleOpts = append(ruleOpts, rules.WithFile(cfg.RulesFile))
	}
	rs, err := rules.LoadRules(ruleOpts...)
	if err != nil {
		return nil, "", err
	}

	engine := enforcement.NewEngine(
		&enforcement.Config{MaxConcurrentRules: cfg.RuleWorkers},
		enforcement.WithLogger(logger),
		enforcement.WithTracer(provider.Tracer()),
		enforcement.WithMetrics(provider.ScanMetrics()),
	)
	opts := []compliance.Option{
		compliance.WithEngine(engine),
		compliance.WithProvider(provider),
		compliance.WithLogger(logger),
	}

	if cfg.AutoCorrect {
		copts := []correction.Option{
			correction.WithWorkers(cfg.CorrectionWorkers),
			correction.WithLogger(logger),
			correction.WithMetrics(provider.ScanMetrics()),
		}
		if cfg.RedisAddr != "" {
			locker := correction.NewRedisLocker(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			defer func() { _ = locker.Close() }()
			if err := locker.Ping(ctx); err != nil {
				return nil, "", fmt.Errorf("redis lock backend: %w", err)
			}
			copts = append(copts, correction.WithLocker(locker))
		}
		opts = append(opts, compliance.WithCorrector(correction.NewCorrector(cat, copts...)))
	}

	if aopts, ok := cfg.ArtifactOptions(); ok {
		store, err := artifacts.NewStore(ctx, aopts)
		if err != nil {
			return nil, "", err
		}
		opts = append(opts, compliance.WithStore(store))
	}

	out, err := compliance.NewSession(cat, rs, opts...).Run(ctx)
	if err != nil {
		return nil, "", err
	}
	return out.Report, out.ArtifactRef, nil
}

// openCatalog returns the configured catalog and a func releasing it.
func openCatalog(cfg *config.Config) (catalog.ReadWriter, func(), error) {
	var (
		cat     catalog.ReadWriter
		release = func() {}
	)
	switch cfg.CatalogDriver {
	case config.DriverMemory:
		mem, err := catalog.ReadMemoryFile(cfg.CatalogFile)
		if err != nil {
			return nil, nil, err
		}
		cat = mem
	case config.DriverSQLite:
		s, err := catalog.OpenSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		cat, release = s, func() { _ = s.Close() }
	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		cat, release = catalog.NewPostgres(db, cfg.Schema), func() { _ = db.Close() }
	default:
		return nil, nil, errors.New("no catalog driver configured")
	}

	if cfg.CatalogRPS > 0 {
		cat = catalog.NewThrottled(cat, cfg.CatalogRPS, cfg.CatalogBurst)
	}
	return cat, release, nil
}

// remaining counts violations not fixed by a correction in this run.
func remaining(r *ledger.Report) int {
	fixed := 0
	for _, c := range r.Corrections {
		if c.Status == correction.StatusCorrected || c.Status == correction.StatusAlreadyCompliant {
			fixed++
		}
	}
	return r.ViolationsFound - fixed
}

func printReport(w io.Writer, r *ledger.Report, ref string) {
	_, _ = fmt.Fprintf(w, "run %s: %d violations, %d corrections, compliance rate %.2f\n",
		r.RunID, r.ViolationsFound, r.CorrectionsMade, r.ComplianceRate)
	if r.Cancelled {
		_, _ = fmt.Fprintln(w, "scan was cancelled; results are partial")
	}
	for _, v := range r.Violations {
		_, _ = fmt.Fprintf(w, "  [%s] %s %s: %s\n", v.Severity, v.RuleID, v.EntryKey, v.Detail)
	}
	for _, e := range r.ScanErrors {
		_, _ = fmt.Fprintf(w, "  error %s: %s\n", e.RuleID, e.Message)
	}
	if len(r.Recommendations) > 0 {
		_, _ = fmt.Fprintln(w, "recommendations:")
		for _, rec := range r.Recommendations {
			_, _ = fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
	if ref != "" {
		_, _ = fmt.Fprintf(w, "report: %s\n", ref)
	}
}
