// Package state tracks per-element translation state. The table is the
// source of truth; the DOM attributes written alongside it are a derived
// mirror kept for external tooling that inspects the page.
package state

import (
	"sync"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
)

// Attribute names mirrored onto the parent element of a translated text
// node. Other tooling may rely on these; treat them as a public contract.
const (
	AttrTranslated = "data-translated"
	AttrOriginal   = "data-original-text"
	AttrMT         = "data-mt"
	AttrSourceLang = "data-source-lang"
	AttrTargetLang = "data-target-lang"
)

// Record is the translation state of one element.
type Record struct {
	Original    string // first-seen original text, set at most once
	OriginalSet bool
	Translated  string // last machine translation (post-glossary restore)
	SourceLang  string
	TargetLang  string
	Annotation  dom.NodeID // bilingual annotation span, 0 when absent
}

// Table maps element identity to translation state.
type Table struct {
	mu sync.RWMutex
	m  map[dom.NodeID]*Record
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{m: make(map[dom.NodeID]*Record)}
}

// SetOriginal records the first-seen original text for an element. Later
// calls are ignored: undo and correction diffing must always compare
// against the first-seen original, never an intermediate translation.
func (t *Table) SetOriginal(id dom.NodeID, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.m[id]
	if r == nil {
		r = &Record{}
		t.m[id] = r
	}
	if !r.OriginalSet {
		r.Original = text
		r.OriginalSet = true
	}
}

// MarkTranslated records the latest machine translation and language pair.
func (t *Table) MarkTranslated(id dom.NodeID, translated, sourceLang, targetLang string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.m[id]
	if r == nil {
		r = &Record{}
		t.m[id] = r
	}
	r.Translated = translated
	r.SourceLang = sourceLang
	r.TargetLang = targetLang
}

// SetAnnotation remembers the bilingual annotation span for an element.
func (t *Table) SetAnnotation(id, span dom.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r := t.m[id]; r != nil {
		r.Annotation = span
	}
}

// Get returns a copy of the record for id.
func (t *Table) Get(id dom.NodeID) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.m[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Translated reports whether id carries a translation.
func (t *Table) Translated(id dom.NodeID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.m[id]
	return ok && r.Translated != ""
}

// Delete drops the record for id.
func (t *Table) Delete(id dom.NodeID) {
	t.mu.Lock()
	delete(t.m, id)
	t.mu.Unlock()
}

// Range calls fn for every record. Records are copied; mutate through the
// table's methods, not the copies.
func (t *Table) Range(fn func(id dom.NodeID, r Record) bool) {
	t.mu.RLock()
	snapshot := make(map[dom.NodeID]Record, len(t.m))
	for id, r := range t.m {
		snapshot[id] = *r
	}
	t.mu.RUnlock()
	for id, r := range snapshot {
		if !fn(id, r) {
			return
		}
	}
}

// Len returns the number of tracked elements.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// Mirror writes the derived DOM attributes for id onto el.
func (t *Table) Mirror(el dom.Node, id dom.NodeID) {
	r, ok := t.Get(id)
	if !ok {
		return
	}
	_ = el.SetAttr(AttrTranslated, "true")
	_ = el.SetAttr(AttrOriginal, r.Original)
	_ = el.SetAttr(AttrMT, r.Translated)
	_ = el.SetAttr(AttrSourceLang, r.SourceLang)
	_ = el.SetAttr(AttrTargetLang, r.TargetLang)
}

// Strip removes all mirrored attributes from el.
func Strip(el dom.Node) {
	el.RemoveAttr(AttrTranslated)
	el.RemoveAttr(AttrOriginal)
	el.RemoveAttr(AttrMT)
	el.RemoveAttr(AttrSourceLang)
	el.RemoveAttr(AttrTargetLang)
}
