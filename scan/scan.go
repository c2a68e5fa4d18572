// Package scan walks the document producing the ordered sequence of
// translatable text nodes. One traversal per call; subtrees rejected by the
// eligibility filter are pruned, not revisited.
package scan

import (
	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/eligibility"
)

// Scanner produces eligible text nodes in document order.
type Scanner struct {
	filter *eligibility.Filter
}

// New creates a Scanner over the given filter.
func New(filter *eligibility.Filter) *Scanner {
	return &Scanner{filter: filter}
}

// Collect walks root's subtree once and returns every text node whose
// parent passes the eligibility filter and whose content passes text
// validation.
func (s *Scanner) Collect(doc *dom.Document, root dom.Node) []dom.Node {
	var out []dom.Node
	doc.Walk(root, func(n dom.Node) bool {
		if n.IsElement() {
			return !s.filter.ShouldSkip(n)
		}
		if n.IsText() && s.filter.IsValidText(n.Text()) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// CollectAdded filters a set of newly-inserted nodes and their descendants
// without touching the rest of the document. Detached entries are dropped
// silently.
func (s *Scanner) CollectAdded(doc *dom.Document, added []dom.Node) []dom.Node {
	var out []dom.Node
	seen := make(map[dom.NodeID]struct{})
	for _, n := range added {
		if !n.Valid() || !n.Attached() {
			continue
		}
		if n.IsText() {
			// A bare text node is eligible through its parent.
			parent, ok := n.Parent()
			if !ok || s.filter.ShouldSkip(parent) {
				continue
			}
			if _, dup := seen[n.ID()]; !dup && s.filter.IsValidText(n.Text()) {
				seen[n.ID()] = struct{}{}
				out = append(out, n)
			}
			continue
		}
		for _, t := range s.Collect(doc, n) {
			if _, dup := seen[t.ID()]; !dup {
				seen[t.ID()] = struct{}{}
				out = append(out, t)
			}
		}
	}
	return out
}
