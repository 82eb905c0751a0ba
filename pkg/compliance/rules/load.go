package rules

import (
	"fmt"
	"slices"
)

type loadConfig struct {
	file     *File
	path     string
	disabled []string
}

// Option configures LoadRules.
type Option func(*loadConfig)

// WithFile merges the rules file at path into the set.
func WithFile(path string) Option {
	return func(c *loadConfig) { c.path = path }
}

// WithParsedFile merges an already parsed rules file into the set.
func WithParsedFile(f *File) Option {
	return func(c *loadConfig) { c.file = f }
}

// WithDisabled drops rules by ID.
func WithDisabled(ids ...string) Option {
	return func(c *loadConfig) { c.disabled = append(c.disabled, ids...) }
}

// LoadRules returns the built-in rules plus any custom rules, minus the
// disabled ones. Rule IDs must be unique.
func LoadRules(opts ...Option) ([]Rule, error) {
	cfg := &loadConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.path != "" {
		f, err := ReadFile(cfg.path)
		if err != nil {
			return nil, err
		}
		cfg.file = f
	}

	set := Builtin()
	disabled := slices.Clone(cfg.disabled)
	if cfg.file != nil {
		custom, err := cfg.file.Compile()
		if err != nil {
			return nil, err
		}
		set = append(set, custom...)
		disabled = append(disabled, cfg.file.Disable...)
	}

	seen := make(map[string]bool, len(set))
	for _, r := range set {
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidRule, r.ID)
		}
		seen[r.ID] = true
	}
	for _, id := range disabled {
		if !seen[id] {
			return nil, fmt.Errorf("%w: cannot disable unknown rule %s", ErrInvalidRule, id)
		}
	}

	out := set[:0]
	for _, r := range set {
		if !slices.Contains(disabled, r.ID) {
			out = append(out, r)
		}
	}
	return out, nil
}
