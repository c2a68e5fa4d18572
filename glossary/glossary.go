// Package glossary is the boundary to glossary term protection. Protected
// terms are swapped for opaque placeholders before a batch crosses the
// translate boundary and restored afterwards, so the translator never sees
// them as ordinary text.
package glossary

import (
	"fmt"
	"strings"
)

// RestoreFunc reinstates protected terms in one translated string.
type RestoreFunc func(string) string

// Glossary pre-processes a batch of strings. One RestoreFunc is returned
// per input string, in order.
type Glossary interface {
	Apply(texts []string) (processed []string, restores []RestoreFunc)
}

// Noop applies no glossary. Restore functions are identity.
type Noop struct{}

// Apply implements Glossary.
func (Noop) Apply(texts []string) ([]string, []RestoreFunc) {
	restores := make([]RestoreFunc, len(texts))
	for i := range restores {
		restores[i] = func(s string) string { return s }
	}
	return texts, restores
}

// Terms protects a fixed set of terms with bracketed numeric placeholders.
// The placeholder alphabet (U+27E6/U+27E7 white square brackets) does not
// occur in prose, so a well-behaved translator passes it through unchanged.
type Terms struct {
	terms []string
}

// NewTerms creates a Terms glossary. Longer terms are matched first by
// virtue of the caller ordering; matching is case-sensitive.
func NewTerms(terms []string) *Terms {
	return &Terms{terms: terms}
}

// Apply implements Glossary.
func (g *Terms) Apply(texts []string) ([]string, []RestoreFunc) {
	processed := make([]string, len(texts))
	restores := make([]RestoreFunc, len(texts))
	for i, text := range texts {
		replaced := make(map[string]string)
		out := text
		for j, term := range g.terms {
			if !strings.Contains(out, term) {
				continue
			}
			ph := fmt.Sprintf("⟦%d⟧", j)
			out = strings.ReplaceAll(out, term, ph)
			replaced[ph] = term
		}
		processed[i] = out
		restores[i] = func(s string) string {
			for ph, term := range replaced {
				s = strings.ReplaceAll(s, ph, term)
			}
			return s
		}
	}
	return processed, restores
}
