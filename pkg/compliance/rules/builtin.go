package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Mindburn-Labs/doctrine/pkg/catalog"
	"github.com/Mindburn-Labs/doctrine/pkg/dialect"
	"github.com/Mindburn-Labs/doctrine/pkg/hierid"
)

// Built-in rule IDs.
const (
	TableAnnotationID  = "DOC-001"
	ColumnAnnotationID = "DOC-002"
	RequiredFieldsID   = "DOC-003"
	IdentifierClaimsID = "DOC-004"
)

// DoctrineMarker is the word a table annotation must reference.
const DoctrineMarker = "doctrine"

var (
	identifierToken = regexp.MustCompile(`\[\d{4,}\]`)
	dialectDecl     = regexp.MustCompile(`(?i)\bdialect:\s*([a-z_]+)`)
)

// ReferencesDoctrine reports whether a table annotation satisfies DOC-001.
func ReferencesDoctrine(text string) bool {
	return strings.Contains(strings.ToLower(text), DoctrineMarker)
}

// HasIdentifierToken reports whether a column annotation satisfies DOC-002.
func HasIdentifierToken(text string) bool {
	return identifierToken.MatchString(text)
}

// DeclaredDialect extracts a "dialect:<name>" declaration from a table annotation.
func DeclaredDialect(text string) (string, bool) {
	m := dialectDecl.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

// Builtin returns the built-in rule set, in ID order.
func Builtin() []Rule {
	return []Rule{
		{
			ID:       TableAnnotationID,
			Name:     "Tables carry a doctrine annotation",
			Family:   FamilyAnnotationPresence,
			Severity: SeverityCritical,
			Kind:     KindEnforcement,
			Evaluate: PerEntry(catalog.KindTable, checkTableAnnotation),
		},
		{
			ID:       ColumnAnnotationID,
			Name:     "Columns carry an identifier token",
			Family:   FamilyAnnotationPresence,
			Severity: SeverityHigh,
			Kind:     KindEnforcement,
			Evaluate: PerEntry(catalog.KindColumn, checkColumnAnnotation),
		},
		{
			ID:       RequiredFieldsID,
			Name:     "Dialect tables have every required field",
			Family:   FamilyRequiredFields,
			Severity: SeverityHigh,
			Kind:     KindValidation,
			Evaluate: evaluateRequiredFields,
		},
		{
			ID:       IdentifierClaimsID,
			Name:     "Hierarchical identifier claims are well-formed",
			Family:   FamilyIdentifierConsistency,
			Severity: SeverityMedium,
			Kind:     KindValidation,
			Evaluate: PerEntry("", checkIdentifierClaims),
		},
	}
}

func checkTableAnnotation(e catalog.Entry) (string, bool, error) {
	text, ok := e.AnnotationText()
	if !ok || strings.TrimSpace(text) == "" {
		return "table has no annotation", true, nil
	}
	if !ReferencesDoctrine(text) {
		return "table annotation does not reference the doctrine", true, nil
	}
	return "", false, nil
}

func checkColumnAnnotation(e catalog.Entry) (string, bool, error) {
	text, ok := e.AnnotationText()
	if !ok || strings.TrimSpace(text) == "" {
		return "column has no annotation", true, nil
	}
	if !HasIdentifierToken(text) {
		return "column annotation lacks an identifier token [NNNN]", true, nil
	}
	return "", false, nil
}

// evaluateRequiredFields checks each table declaring a dialect once.
func evaluateRequiredFields(ctx context.Context, entries []catalog.Entry) (Outcome, error) {
	columns := make(map[string]map[string]bool)
	for _, e := range entries {
		if e.Kind != catalog.KindColumn {
			continue
		}
		if columns[e.Parent] == nil {
			columns[e.Parent] = make(map[string]bool)
		}
		columns[e.Parent][e.Name] = true
	}

	var out Outcome
	for _, e := range entries {
		if e.Kind != catalog.KindTable {
			continue
		}
		text, _ := e.AnnotationText()
		name, ok := DeclaredDialect(text)
		if !ok {
			continue
		}
		out.Checked = append(out.Checked, e.Key())

		d, err := dialect.ParseDialect(name)
		if err != nil {
			out.Findings = append(out.Findings, Finding{
				Entry:  e,
				Detail: fmt.Sprintf("table declares unknown dialect %q", name),
			})
			continue
		}
		desc, err := dialect.Describe(d)
		if err != nil {
			return Outcome{}, err
		}

		var missing []string
		for _, field := range desc.RequiredFields() {
			if !columns[e.Name][field] {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			out.Findings = append(out.Findings, Finding{
				Entry:  e,
				Detail: fmt.Sprintf("%s table is missing required fields: %s", d, strings.Join(missing, ", ")),
			})
		}
	}
	return out, nil
}

// checkIdentifierClaims inspects every entry; unannotated entries hold no claims.
func checkIdentifierClaims(e catalog.Entry) (string, bool, error) {
	text, ok := e.AnnotationText()
	if !ok {
		return "", false, nil
	}

	var bad []string
	for _, claim := range hierid.FindClaims(text) {
		if _, err := hierid.Parse(claim); err != nil {
			bad = append(bad, err.Error())
		}
	}
	if len(bad) == 0 {
		return "", false, nil
	}
	return "invalid hierarchical identifier claims: " + strings.Join(bad, "; "), true, nil
}
