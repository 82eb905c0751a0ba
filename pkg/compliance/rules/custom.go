package rules

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/doctrine/pkg/catalog"
)

// SupportedVersions is the rules file version range this build reads.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

// File is a parsed rules file.
//
//	version: "1.0"
//	disable: [DOC-004]
//	rules:
//	  - id: ORG-001
//	    name: No temporary columns
//	    family: naming
//	    severity: low
//	    kind: validation
//	    applies_to: column
//	    violation_when: 'entry.name.startsWith("tmp_")'
//	    detail: temporary column left in schema
type File struct {
	Version string       `yaml:"version"`
	Disable []string     `yaml:"disable"`
	Rules   []Definition `yaml:"rules"`
}

// Definition declares one custom rule. ViolationWhen is a CEL expression
// over the variable "entry" that yields true when the entry violates the
// rule.
type Definition struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Family        string   `yaml:"family"`
	Severity      Severity `yaml:"severity"`
	Kind          Kind     `yaml:"kind"`
	AppliesTo     string   `yaml:"applies_to"`
	ViolationWhen string   `yaml:"violation_when"`
	Detail        string   `yaml:"detail"`
	Disabled      bool     `yaml:"disabled"`
}

// ParseFile decodes a rules file and checks its version.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	if err := checkVersion(f.Version); err != nil {
		return nil, err
	}
	return &f, nil
}

// ReadFile reads and parses the rules file at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	return ParseFile(data)
}

func checkVersion(v string) error {
	if v == "" {
		return fmt.Errorf("%w: version is required", ErrUnsupportedVersion)
	}
	version, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrUnsupportedVersion, v, err)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return err
	}
	if !constraint.Check(version) {
		return fmt.Errorf("%w: %s not in %s", ErrUnsupportedVersion, version, SupportedVersions)
	}
	return nil
}

// Compile turns the file's enabled definitions into rules.
func (f *File) Compile() ([]Rule, error) {
	env, err := newEntryEnv()
	if err != nil {
		return nil, err
	}

	var out []Rule
	for _, def := range f.Rules {
		if def.Disabled {
			continue
		}
		r, err := def.compile(env)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func newEntryEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(cel.Variable("entry", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

func (d Definition) compile(env *cel.Env) (Rule, error) {
	if d.ID == "" {
		return Rule{}, fmt.Errorf("%w: missing id", ErrInvalidRule)
	}
	kind := catalog.Kind(strings.ToLower(d.AppliesTo))
	switch kind {
	case "", catalog.KindTable, catalog.KindColumn:
	default:
		return Rule{}, fmt.Errorf("%w: %s: applies_to must be table or column", ErrInvalidRule, d.ID)
	}
	if strings.TrimSpace(d.ViolationWhen) == "" {
		return Rule{}, fmt.Errorf("%w: %s: violation_when is required", ErrInvalidRule, d.ID)
	}

	ast, issues := env.Compile(d.ViolationWhen)
	if issues != nil && issues.Err() != nil {
		return Rule{}, fmt.Errorf("%w: %s: compile: %w", ErrInvalidRule, d.ID, issues.Err())
	}
	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %s: program: %w", ErrInvalidRule, d.ID, err)
	}

	detail := d.Detail
	if detail == "" {
		detail = d.Name
	}
	name := d.Name
	if name == "" {
		name = d.ID
	}
	kindOfRule := d.Kind
	if kindOfRule == "" {
		kindOfRule = KindValidation
	}

	r := Rule{
		ID:       d.ID,
		Name:     name,
		Family:   Family(d.Family),
		Severity: d.Severity,
		Kind:     kindOfRule,
		Evaluate: celEval(kind, prg, detail),
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

func celEval(kind catalog.Kind, prg cel.Program, detail string) EvalFunc {
	return func(ctx context.Context, entries []catalog.Entry) (Outcome, error) {
		check := func(e catalog.Entry) (string, bool, error) {
			out, _, err := prg.ContextEval(ctx, map[string]any{"entry": entryVars(e)})
			if err != nil {
				return "", false, fmt.Errorf("eval: %w", err)
			}
			violated, ok := out.Value().(bool)
			if !ok {
				return "", false, fmt.Errorf("expression returned %T, want bool", out.Value())
			}
			return detail, violated, nil
		}
		return PerEntry(kind, check)(ctx, entries)
	}
}

func entryVars(e catalog.Entry) map[string]any {
	text, ok := e.AnnotationText()
	return map[string]any{
		"name":           e.Name,
		"kind":           string(e.Kind),
		"parent":         e.Parent,
		"key":            e.Key(),
		"annotation":     text,
		"has_annotation": ok,
		"ordinal":        int64(e.Ordinal),
		"data_type":      e.DataType,
		"nullable":       e.Nullable,
	}
}
