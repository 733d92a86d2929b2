package checks

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
)

// GlossaryChecker verifies that required glossary terms appear in the
// content. Matching is Unicode case-folded so "OAuth" and "oauth" compare
// equal; the glossary itself is injected configuration, never a hidden
// global.
type GlossaryChecker struct {
	terms  []string
	folder cases.Caser
}

// NewGlossaryChecker creates a GlossaryChecker requiring the given terms.
func NewGlossaryChecker(terms []string) *GlossaryChecker {
	return &GlossaryChecker{
		terms:  terms,
		folder: cases.Fold(),
	}
}

func (g *GlossaryChecker) Name() string { return "glossary" }

func (g *GlossaryChecker) Check(_ context.Context, c Content) Result {
	if len(g.terms) == 0 {
		return Result{Name: g.Name(), Passed: true, Detail: "no glossary configured"}
	}

	folded := g.folder.String(c.Body)
	var missing []string
	for _, term := range g.terms {
		if !strings.Contains(folded, g.folder.String(term)) {
			missing = append(missing, term)
		}
	}

	if len(missing) > 0 {
		return Result{Name: g.Name(), Passed: false, Detail: "missing terms: " + strings.Join(missing, ", ")}
	}
	return Result{Name: g.Name(), Passed: true}
}
