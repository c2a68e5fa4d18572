// Package eligibility decides whether elements and text are translatable.
// Verdicts are cached per element and invalidated when an attribute that
// affects eligibility changes, so repeated scans stay cheap on large pages.
package eligibility

import (
	"strings"
	"sync"
	"unicode"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/state"
)

// skipTags are element types that never carry translatable prose.
var skipTags = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "template": {},
	"code": {}, "pre": {}, "kbd": {}, "samp": {}, "var": {},
	"input": {}, "textarea": {}, "select": {}, "option": {}, "button": {},
	"svg": {}, "canvas": {}, "iframe": {}, "object": {}, "embed": {},
	"video": {}, "audio": {}, "map": {}, "meta": {}, "link": {}, "title": {},
}

// codePrefixes mark strings that look like code or URLs, not prose.
var codePrefixes = []string{
	"http://", "https://", "ftp://", "www.", "//", "/*", "#!", "<?", "<!",
	"{", "function(", "function (", "=>", "$(",
}

// Config bounds text validation.
type Config struct {
	// MinTextLen is the minimum rune count worth translating. Default: 2.
	MinTextLen int
	// MaxTextLen is the maximum rune count accepted. Default: 5000.
	MaxTextLen int
}

func (c *Config) defaults() {
	if c.MinTextLen <= 0 {
		c.MinTextLen = 2
	}
	if c.MaxTextLen <= 0 {
		c.MaxTextLen = 5000
	}
}

// Filter is the eligibility predicate with its verdict cache. Safe for
// concurrent use.
type Filter struct {
	cfg Config

	mu    sync.Mutex
	cache map[dom.NodeID]bool // true = skip
}

// NewFilter creates a Filter.
func NewFilter(cfg Config) *Filter {
	cfg.defaults()
	return &Filter{cfg: cfg, cache: make(map[dom.NodeID]bool)}
}

// Attach wires cache maintenance to the document's mutation stream:
// eligibility-affecting attribute changes invalidate the verdict, removals
// evict it so detached nodes are not pinned by the cache.
func (f *Filter) Attach(doc *dom.Document) {
	doc.Observe(func(m dom.Mutation) {
		switch m.Op {
		case dom.OpAttr, dom.OpAttrDel:
			if affectsEligibility(m.Name) {
				f.Invalidate(m.Target)
			}
		case dom.OpRemove:
			f.Evict(m.Target)
		}
	})
}

func affectsEligibility(attr string) bool {
	switch attr {
	case "style", "class", "hidden", "translate", "contenteditable",
		"data-no-translate", state.AttrTranslated:
		return true
	}
	return false
}

// ShouldSkip reports whether el must not be translated. The verdict is
// cached until invalidated.
func (f *Filter) ShouldSkip(el dom.Node) bool {
	id := el.ID()
	f.mu.Lock()
	if v, ok := f.cache[id]; ok {
		f.mu.Unlock()
		return v
	}
	f.mu.Unlock()

	skip := f.compute(el)

	f.mu.Lock()
	f.cache[id] = skip
	f.mu.Unlock()
	return skip
}

func (f *Filter) compute(el dom.Node) bool {
	if !el.IsElement() {
		return true
	}
	if _, ok := skipTags[el.Tag()]; ok {
		return true
	}
	if el.Attr(state.AttrTranslated) == "true" {
		return true
	}
	if v, ok := el.LookupAttr("contenteditable"); ok && v != "false" {
		return true
	}
	if el.Attr("translate") == "no" {
		return true
	}
	if _, ok := el.LookupAttr("data-no-translate"); ok {
		return true
	}
	if hasClass(el.Attr("class"), "notranslate") {
		return true
	}
	visible, err := el.Visible()
	if err != nil || !visible {
		// A throwing visibility check means the node is detached;
		// either way it is not translatable right now.
		return true
	}
	return false
}

func hasClass(classAttr, class string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == class {
			return true
		}
	}
	return false
}

// Invalidate drops the cached verdict for id.
func (f *Filter) Invalidate(id dom.NodeID) {
	f.mu.Lock()
	delete(f.cache, id)
	f.mu.Unlock()
}

// Evict is Invalidate for removed nodes; kept separate for call sites that
// distinguish the two.
func (f *Filter) Evict(id dom.NodeID) {
	f.Invalidate(id)
}

// IsValidText reports whether a text node's content is worth sending to
// the translator.
func (f *Filter) IsValidText(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	n := len([]rune(trimmed))
	if n < f.cfg.MinTextLen || n > f.cfg.MaxTextLen {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, p := range codePrefixes {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	return hasLetter(trimmed)
}

// hasLetter rejects strings that are purely whitespace, digits, and
// punctuation.
func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
