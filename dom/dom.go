// Package dom provides the document model the translation pipeline operates
// on: a parsed HTML tree with stable node identity, attribute and text
// mutation, a minimal layout model, mutation notification, and scroll
// sentinels.
//
// The pipeline never owns the underlying nodes — the host page may detach
// them at any time. Every accessor therefore reports "detached" explicitly
// and callers are expected to drop dangling handles silently.
//
// All methods are safe for concurrent use. Mutation observers and sentinel
// callbacks are invoked after the internal lock is released, so they may
// read the document but must not assume the state they were notified about
// still holds.
package dom

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// NodeID is a stable identity for a node within one Document. IDs are never
// reused, so a dangling ID resolves to "gone" rather than to a new node.
type NodeID uint64

// Box is a node's layout rectangle in document coordinates.
type Box struct {
	Top    int
	Height int
}

// Options tunes the synthesized layout model used when the host has not
// provided explicit boxes.
type Options struct {
	// NodeHeight is the height assigned to each element in document order.
	// Default: 20.
	NodeHeight int
	// ViewportHeight is the initial viewport height. Default: 600.
	ViewportHeight int
}

func (o *Options) defaults() {
	if o.NodeHeight <= 0 {
		o.NodeHeight = 20
	}
	if o.ViewportHeight <= 0 {
		o.ViewportHeight = 600
	}
}

// Document wraps a parsed HTML tree. Create one with Parse or ParseString.
type Document struct {
	mu   sync.RWMutex
	opts Options

	root *html.Node // the document node
	ids  map[*html.Node]NodeID
	byID map[NodeID]*html.Node
	next NodeID

	// order is the document-order index used by the synthesized layout.
	order     map[NodeID]int
	nextOrder int

	// boxes holds explicit layout set by the host adapter or tests.
	boxes map[NodeID]Box

	viewportH int
	scrollY   int

	observers []func(Mutation)
	subs      map[int]chan Mutation
	nextSub   int

	sentinels    map[int]*sentinel
	nextSentinel int
}

type sentinel struct {
	node   NodeID
	margin int
	fn     func()
}

// Parse reads an HTML document and indexes every node.
func Parse(r io.Reader, opts Options) (*Document, error) {
	opts.defaults()
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	d := &Document{
		opts:      opts,
		root:      root,
		ids:       make(map[*html.Node]NodeID),
		byID:      make(map[NodeID]*html.Node),
		order:     make(map[NodeID]int),
		boxes:     make(map[NodeID]Box),
		viewportH: opts.ViewportHeight,
		subs:      make(map[int]chan Mutation),
		sentinels: make(map[int]*sentinel),
	}
	d.index(root)
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s string, opts Options) (*Document, error) {
	return Parse(strings.NewReader(s), opts)
}

// index assigns IDs and document-order positions to n and its subtree.
// Caller must hold mu (or be the constructor).
func (d *Document) index(n *html.Node) {
	for c := n; c != nil; {
		if c.Type == html.ElementNode || c.Type == html.TextNode {
			if _, ok := d.ids[c]; !ok {
				d.next++
				d.ids[c] = d.next
				d.byID[d.next] = c
				d.order[d.next] = d.nextOrder
				d.nextOrder++
			}
		}
		if c.FirstChild != nil {
			c = c.FirstChild
			continue
		}
		for c != nil && c != n && c.NextSibling == nil {
			c = c.Parent
		}
		if c == nil || c == n {
			return
		}
		c = c.NextSibling
	}
}

// Root returns the <html> element, or the document node if none exists.
func (d *Document) Root() Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Html {
			return Node{doc: d, n: c}
		}
	}
	return Node{doc: d, n: d.root}
}

// Body returns the <body> element if present.
func (d *Document) Body() (Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if b := findElement(d.root, atom.Body); b != nil {
		return Node{doc: d, n: b}, true
	}
	return Node{}, false
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// ByID resolves a NodeID. The second return is false when the ID was never
// assigned; a true result may still be a detached node.
func (d *Document) ByID(id NodeID) (Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.byID[id]
	if !ok {
		return Node{}, false
	}
	return Node{doc: d, n: n}, true
}

// Walk visits root and its subtree in document order. fn is called for
// element and text nodes; returning false for an element prunes its subtree.
func (d *Document) Walk(root Node, fn func(Node) bool) {
	d.mu.RLock()
	start := root.n
	d.mu.RUnlock()
	if start == nil {
		return
	}
	d.walk(start, fn)
}

func (d *Document) walk(n *html.Node, fn func(Node) bool) {
	switch n.Type {
	case html.ElementNode, html.TextNode:
		if !fn(Node{doc: d, n: n}) {
			return
		}
	}
	// Snapshot children so fn may mutate without breaking traversal.
	d.mu.RLock()
	var kids []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		kids = append(kids, c)
	}
	d.mu.RUnlock()
	for _, c := range kids {
		d.walk(c, fn)
	}
}

// HTML renders the document back to markup.
func (d *Document) HTML() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var sb strings.Builder
	if err := html.Render(&sb, d.root); err != nil {
		return "", fmt.Errorf("dom: render: %w", err)
	}
	return sb.String(), nil
}

// SetViewportHeight updates the viewport height used by layout and sentinels.
func (d *Document) SetViewportHeight(h int) {
	d.mu.Lock()
	d.viewportH = h
	d.mu.Unlock()
}

// ViewportHeight returns the current viewport height.
func (d *Document) ViewportHeight() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.viewportH
}

// SetBox records an explicit layout box for a node, overriding the
// synthesized document-order layout. The host adapter feeds real bounding
// boxes through this.
func (d *Document) SetBox(id NodeID, b Box) {
	d.mu.Lock()
	d.boxes[id] = b
	d.mu.Unlock()
}

// Scroll updates the scroll offset and fires any sentinel whose watched
// node has come within its margin of the viewport bottom.
func (d *Document) Scroll(y int) {
	d.mu.Lock()
	d.scrollY = y
	due := d.dueSentinelsLocked()
	d.mu.Unlock()
	for _, fn := range due {
		fn()
	}
}

// ScrollY returns the current scroll offset.
func (d *Document) ScrollY() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.scrollY
}

// RegisterSentinel arranges for fn to run once when node's top edge comes
// within margin of the bottom of the viewport. If the node is already in
// range the callback fires immediately. The returned cancel is idempotent.
func (d *Document) RegisterSentinel(node Node, margin int, fn func()) (cancel func()) {
	d.mu.Lock()
	id := d.nextSentinel
	d.nextSentinel++
	// node.ID() would re-lock mu; read the map directly since mu is held.
	s := &sentinel{node: d.ids[node.n], margin: margin, fn: fn}
	d.sentinels[id] = s
	fire := d.sentinelDueLocked(s)
	if fire {
		delete(d.sentinels, id)
	}
	d.mu.Unlock()

	if fire {
		fn()
	}
	return func() {
		d.mu.Lock()
		delete(d.sentinels, id)
		d.mu.Unlock()
	}
}

func (d *Document) dueSentinelsLocked() []func() {
	var due []func()
	var fired []int
	for id, s := range d.sentinels {
		if d.sentinelDueLocked(s) {
			due = append(due, s.fn)
			fired = append(fired, id)
		}
	}
	for _, id := range fired {
		delete(d.sentinels, id)
	}
	// Fire in registration order for determinism.
	sort.Slice(fired, func(i, j int) bool { return fired[i] < fired[j] })
	return due
}

func (d *Document) sentinelDueLocked(s *sentinel) bool {
	n, ok := d.byID[s.node]
	if !ok || !d.attachedLocked(n) {
		// Watched node is gone; fire so the owner can clean up its chunk.
		return true
	}
	box, err := d.boxLocked(n)
	if err != nil {
		return false
	}
	return box.Top <= d.scrollY+d.viewportH+s.margin
}

func (d *Document) attachedLocked(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

func (d *Document) boxLocked(n *html.Node) (Box, error) {
	id, ok := d.ids[n]
	if !ok || !d.attachedLocked(n) {
		return Box{}, ErrDetached
	}
	if b, ok := d.boxes[id]; ok {
		return b, nil
	}
	return Box{Top: d.order[id] * d.opts.NodeHeight, Height: d.opts.NodeHeight}, nil
}
