// Package deferred postpones translation of below-fold content until the
// user scrolls near it. Nodes are split into fixed-size chunks; a sentinel
// near each chunk's first node fires when it comes within the configured
// margin (roughly two viewport heights) of the visible area, and each chunk
// is translated at most once.
package deferred

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
)

// TranslateFunc translates one chunk's worth of still-eligible nodes.
type TranslateFunc func(ctx context.Context, nodes []dom.Node)

// Filter drops nodes that no longer need translation by the time a
// sentinel fires (already translated, detached).
type Filter func(n dom.Node) bool

// Config tunes the deferred translator.
type Config struct {
	// ChunkSize is how many nodes one sentinel covers — roughly a
	// screen-height's worth. Default: 25.
	ChunkSize int
	// Margin is how far below the viewport a sentinel may be when it
	// fires. The pipeline passes about two viewport heights.
	Margin int
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 25
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Translator tracks deferred chunks for one session.
type Translator struct {
	doc       *dom.Document
	cfg       Config
	translate TranslateFunc
	keep      Filter

	mu      sync.Mutex
	done    map[int]bool // chunk index → already translated
	cancels []func()
	stopped bool
}

// New creates a deferred Translator. keep may be nil (keep everything
// attached).
func New(doc *dom.Document, cfg Config, translate TranslateFunc, keep Filter) *Translator {
	cfg.defaults()
	if keep == nil {
		keep = func(n dom.Node) bool { return n.Attached() }
	}
	return &Translator{
		doc:       doc,
		cfg:       cfg,
		translate: translate,
		keep:      keep,
		done:      make(map[int]bool),
	}
}

// Register splits nodes into chunks and plants one sentinel per chunk near
// its first node. Sentinels already within range fire immediately.
func (t *Translator) Register(ctx context.Context, nodes []dom.Node) {
	for start, idx := 0, 0; start < len(nodes); start, idx = start+t.cfg.ChunkSize, idx+1 {
		end := start + t.cfg.ChunkSize
		if end > len(nodes) {
			end = len(nodes)
		}
		chunk := append([]dom.Node(nil), nodes[start:end]...)
		anchor := sentinelAnchor(chunk[0])

		index := idx
		cancel := t.doc.RegisterSentinel(anchor, t.cfg.Margin, func() {
			t.trigger(ctx, index, chunk)
		})
		t.mu.Lock()
		if t.stopped {
			t.mu.Unlock()
			cancel()
			return
		}
		t.cancels = append(t.cancels, cancel)
		t.mu.Unlock()
	}
}

// sentinelAnchor picks the element the sentinel watches: the node's parent
// element, or the node itself when it has none.
func sentinelAnchor(n dom.Node) dom.Node {
	if parent, ok := n.Parent(); ok {
		return parent
	}
	return n
}

// trigger translates a chunk exactly once. Nodes that were translated or
// detached in the meantime are filtered out first.
func (t *Translator) trigger(ctx context.Context, index int, chunk []dom.Node) {
	t.mu.Lock()
	if t.stopped || t.done[index] {
		t.mu.Unlock()
		return
	}
	t.done[index] = true
	t.mu.Unlock()

	live := chunk[:0:0]
	for _, n := range chunk {
		if t.keep(n) {
			live = append(live, n)
		}
	}
	if len(live) == 0 {
		return
	}
	t.cfg.Logger.Debug("deferred: chunk triggered", "index", index, "nodes", len(live))
	t.translate(ctx, live)
}

// Stop cancels all outstanding sentinels. Triggers that race with Stop
// become no-ops. Safe to call repeatedly.
func (t *Translator) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	cancels := t.cancels
	t.cancels = nil
	t.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
