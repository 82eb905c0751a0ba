// Package hierid validates and parses the doctrine's five-component
// hierarchical identifiers ("db.hq.sub.section.index").
//
// The textual contract is fixed for interoperability with annotations
// already present in live catalogs:
//
//	<1|2>.<1-5 when db=1, 1-4 when db=2>.<int>.<0-49>.<int >= 0>
package hierid

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ErrMalformedIdentifier is the root of every parse failure.
var ErrMalformedIdentifier = errors.New("hierid: malformed identifier")

const (
	componentCount = 5

	SectionMax = 49
)

// Component names, in textual order.
const (
	ComponentDB      = "db"
	ComponentHQ      = "hq"
	ComponentSub     = "sub"
	ComponentSection = "section"
	ComponentIndex   = "index"
)

var componentNames = [componentCount]string{
	ComponentDB, ComponentHQ, ComponentSub, ComponentSection, ComponentIndex,
}

// hqMax is the inclusive upper bound of the hq component per database.
var hqMax = map[int]int{
	1: 5,
	2: 4,
}

// ID is a parsed hierarchical identifier.
type ID struct {
	DB      int `json:"db"`
	HQ      int `json:"hq"`
	Sub     int `json:"sub"`
	Section int `json:"section"`
	Index   int `json:"index"`
}

// String renders the identifier in its canonical dotted form.
func (id ID) String() string {
	return fmt.Sprintf("%d.%d.%d.%d.%d", id.DB, id.HQ, id.Sub, id.Section, id.Index)
}

// Check reports the first bound the identifier violates, or nil.
func (id ID) Check() error {
	limit, ok := hqMax[id.DB]
	if !ok {
		return &Error{Input: id.String(), Component: ComponentDB, Reason: "must be 1 or 2"}
	}
	if id.HQ < 1 || id.HQ > limit {
		return &Error{Input: id.String(), Component: ComponentHQ, Reason: fmt.Sprintf("must be in [1,%d] for db=%d", limit, id.DB)}
	}
	if id.Section < 0 || id.Section > SectionMax {
		return &Error{Input: id.String(), Component: ComponentSection, Reason: fmt.Sprintf("must be in [0,%d]", SectionMax)}
	}
	if id.Index < 0 {
		return &Error{Input: id.String(), Component: ComponentIndex, Reason: "must not be negative"}
	}
	return nil
}

// Error describes why an identifier was rejected.
type Error struct {
	Input     string
	Component string // empty for structural failures
	Reason    string
}

func (e *Error) Error() string {
	if e.Component == "" {
		return fmt.Sprintf("hierid: malformed identifier %q: %s", e.Input, e.Reason)
	}
	return fmt.Sprintf("hierid: malformed identifier %q: %s %s", e.Input, e.Component, e.Reason)
}

func (e *Error) Is(target error) bool {
	return target == ErrMalformedIdentifier
}

// Parse parses s and applies every bound. It never returns a partially
// populated ID alongside an error.
func Parse(s string) (ID, error) {
	parts := strings.Split(s, ".")
	if len(parts) != componentCount {
		return ID{}, &Error{Input: s, Reason: fmt.Sprintf("want %d components, got %d", componentCount, len(parts))}
	}

	var values [componentCount]int
	for i, part := range parts {
		n, err := parseComponent(part)
		if err != nil {
			return ID{}, &Error{Input: s, Component: componentNames[i], Reason: err.Error()}
		}
		values[i] = n
	}

	id := ID{DB: values[0], HQ: values[1], Sub: values[2], Section: values[3], Index: values[4]}
	if err := id.Check(); err != nil {
		var idErr *Error
		if errors.As(err, &idErr) {
			idErr.Input = s
		}
		return ID{}, err
	}
	return id, nil
}

// Validate reports whether s is a well-formed identifier within bounds.
func Validate(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// MustParse is Parse for identifiers known at compile time.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// parseComponent accepts an optional leading '-' followed by ASCII digits.
// strconv alone would also admit '+' and '_' separators.
func parseComponent(part string) (int, error) {
	digits := strings.TrimPrefix(part, "-")
	if digits == "" {
		return 0, errors.New("is not an integer")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, errors.New("is not an integer")
		}
	}
	n, err := strconv.Atoi(part)
	if err != nil {
		return 0, errors.New("is out of integer range")
	}
	return n, nil
}

var bareClaim = regexp.MustCompile(`^-?\d+(?:\.-?\d+){4}$`)

// FindClaims returns the identifier claims made by free text, in order of
// appearance and without validation: every token tagged "hid:" (or "hid=")
// plus every bare five-component dotted integer sequence.
func FindClaims(text string) []string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(",;()[]{}\"'", r)
	})

	var claims []string
	tagged := false
	for _, tok := range tokens {
		lower := strings.ToLower(tok)
		switch {
		case tagged:
			claims = append(claims, trimClaim(tok))
			tagged = false
		case strings.HasPrefix(lower, "hid:") || strings.HasPrefix(lower, "hid="):
			if rest := trimClaim(tok[4:]); rest != "" {
				claims = append(claims, rest)
			} else {
				tagged = true
			}
		case bareClaim.MatchString(trimClaim(tok)):
			claims = append(claims, trimClaim(tok))
		}
	}
	return claims
}

// trimClaim drops sentence punctuation trailing a claim.
func trimClaim(tok string) string {
	return strings.TrimRight(tok, ".:!?")
}
