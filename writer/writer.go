// Package writer applies translated strings back to the document. Writes
// preserve the original text's exact leading and trailing whitespace (the
// host page may rely on it for layout), record the first-seen original for
// undo, and mirror bookkeeping attributes onto the parent element. A
// failure on one node never aborts the rest of its batch.
package writer

import (
	"html"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/microcosm-cc/bluemonday"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/state"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/translate"
)

// AnnotationClass marks the bilingual annotation span appended next to a
// translated text node.
const AnnotationClass = "mt-bilingual-original"

// Result counts one batch's write outcome.
type Result struct {
	Written int
	Failed  int
}

// Writer owns DOM write-back. Safe for concurrent use across disjoint
// node sets.
type Writer struct {
	states    *state.Table
	policy    *bluemonday.Policy
	bilingual atomic.Bool
	logger    *slog.Logger
}

// New creates a Writer over the given state table. Machine translation
// output is treated as untrusted: a strict policy strips any markup before
// it reaches the page.
func New(states *state.Table, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		states: states,
		policy: bluemonday.StrictPolicy(),
		logger: logger,
	}
}

// SetBilingual switches bilingual annotation for subsequent writes.
func (w *Writer) SetBilingual(on bool) { w.bilingual.Store(on) }

// Bilingual reports the current mode.
func (w *Writer) Bilingual() bool { return w.bilingual.Load() }

// Apply writes texts[i] into nodes[i] for every pair whose parent is still
// attached. Per-node failures are counted and skipped; the write for each
// node is all-or-nothing.
func (w *Writer) Apply(nodes []dom.Node, texts []string, p translate.Params) Result {
	var res Result
	for i, n := range nodes {
		if i >= len(texts) {
			res.Failed++
			continue
		}
		if err := w.applyOne(n, texts[i], p); err != nil {
			res.Failed++
			w.logger.Debug("writer: node skipped", "error", err)
			continue
		}
		res.Written++
	}
	return res
}

func (w *Writer) applyOne(n dom.Node, translated string, p translate.Params) error {
	parent, ok := n.Parent()
	if !ok || !parent.Attached() {
		return dom.ErrDetached
	}
	original := n.Text()
	lead, trail := edgeWhitespace(original)
	// Strip any markup the translator produced, then unescape back to
	// plain text: the node holds text data, not HTML.
	clean := html.UnescapeString(w.policy.Sanitize(translated))

	// State first, then the text write: a failed SetText leaves both the
	// node and the record describing the pre-write original.
	parentID := parent.ID()
	w.states.SetOriginal(parentID, original)
	if err := n.SetText(lead + clean + trail); err != nil {
		return err
	}
	w.states.MarkTranslated(parentID, clean, p.SourceLang, p.TargetLang)
	w.states.Mirror(parent, parentID)

	if w.bilingual.Load() {
		w.EnsureAnnotation(parent, original)
	}
	return nil
}

// EnsureAnnotation appends the non-destructive bilingual span showing the
// original text. Existing children and listeners are left untouched; the
// span opts itself out of translation.
func (w *Writer) EnsureAnnotation(parent dom.Node, original string) {
	id := parent.ID()
	if r, ok := w.states.Get(id); ok && r.Annotation != 0 {
		return
	}
	span, err := parent.AppendElement("span", map[string]string{
		"class":     AnnotationClass,
		"translate": "no",
	})
	if err != nil {
		w.logger.Debug("writer: annotation skipped", "error", err)
		return
	}
	if _, err := span.AppendText(strings.TrimSpace(original)); err != nil {
		w.logger.Debug("writer: annotation text skipped", "error", err)
	}
	w.states.SetAnnotation(id, span.ID())
}

// RemoveAnnotation removes the bilingual span from parent, if any.
func (w *Writer) RemoveAnnotation(doc *dom.Document, parent dom.Node) {
	id := parent.ID()
	r, ok := w.states.Get(id)
	if !ok || r.Annotation == 0 {
		return
	}
	if span, ok := doc.ByID(r.Annotation); ok {
		_ = span.Remove()
	}
	w.states.SetAnnotation(id, 0)
}

// edgeWhitespace splits s into its leading whitespace, and trailing
// whitespace. An all-whitespace string is treated as all leading.
func edgeWhitespace(s string) (lead, trail string) {
	trimmedLeft := strings.TrimLeft(s, " \t\n\r\f\v ")
	lead = s[:len(s)-len(trimmedLeft)]
	trimmed := strings.TrimRight(trimmedLeft, " \t\n\r\f\v ")
	trail = trimmedLeft[len(trimmed):]
	return lead, trail
}
