package dom

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrDetached is returned by accessors that need a node to be attached to
// its document.
var ErrDetached = errors.New("dom: node detached")

// Node is a lightweight handle to an element or text node. The zero Node is
// invalid; use Valid to check.
type Node struct {
	doc *Document
	n   *html.Node
}

// Valid reports whether the handle refers to a node at all.
func (n Node) Valid() bool { return n.n != nil }

// ID returns the node's stable identity.
func (n Node) ID() NodeID {
	if n.n == nil {
		return 0
	}
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	return n.doc.ids[n.n]
}

// IsText reports whether this is a text node.
func (n Node) IsText() bool { return n.n != nil && n.n.Type == html.TextNode }

// IsElement reports whether this is an element node.
func (n Node) IsElement() bool { return n.n != nil && n.n.Type == html.ElementNode }

// Tag returns the lowercase tag name for elements, "" otherwise.
func (n Node) Tag() string {
	if !n.IsElement() {
		return ""
	}
	return strings.ToLower(n.n.Data)
}

// Parent returns the parent element handle.
func (n Node) Parent() (Node, bool) {
	if n.n == nil {
		return Node{}, false
	}
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	p := n.n.Parent
	for p != nil && p.Type != html.ElementNode {
		p = p.Parent
	}
	if p == nil {
		return Node{}, false
	}
	return Node{doc: n.doc, n: p}, true
}

// Attached reports whether the node is still reachable from the document
// root. The host page may detach nodes at any time.
func (n Node) Attached() bool {
	if n.n == nil {
		return false
	}
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	return n.doc.attachedLocked(n.n)
}

// Attr returns the attribute value ("" when absent).
func (n Node) Attr(name string) string {
	v, _ := n.LookupAttr(name)
	return v
}

// LookupAttr returns the attribute value and whether it is present.
func (n Node) LookupAttr(name string) (string, bool) {
	if !n.IsElement() {
		return "", false
	}
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	for _, a := range n.n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets an attribute and emits an OpAttr mutation.
func (n Node) SetAttr(name, value string) error {
	if !n.IsElement() {
		return fmt.Errorf("dom: set attr %q: not an element", name)
	}
	d := n.doc
	d.mu.Lock()
	old := ""
	found := false
	for i, a := range n.n.Attr {
		if a.Key == name {
			old = a.Val
			n.n.Attr[i].Val = value
			found = true
			break
		}
	}
	if !found {
		n.n.Attr = append(n.n.Attr, html.Attribute{Key: name, Val: value})
	}
	m := Mutation{Op: OpAttr, Target: d.ids[n.n], Tag: n.n.Data, Name: name, Value: value, OldValue: old}
	d.mu.Unlock()
	d.emit([]Mutation{m})
	return nil
}

// RemoveAttr removes an attribute, emitting OpAttrDel when it was present.
func (n Node) RemoveAttr(name string) {
	if !n.IsElement() {
		return
	}
	d := n.doc
	d.mu.Lock()
	var muts []Mutation
	for i, a := range n.n.Attr {
		if a.Key == name {
			muts = append(muts, Mutation{Op: OpAttrDel, Target: d.ids[n.n], Tag: n.n.Data, Name: name, OldValue: a.Val})
			n.n.Attr = append(n.n.Attr[:i], n.n.Attr[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
	d.emit(muts)
}

// Text returns the text node's data. For elements it returns the
// concatenated data of direct text children.
func (n Node) Text() string {
	if n.n == nil {
		return ""
	}
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	if n.n.Type == html.TextNode {
		return n.n.Data
	}
	var sb strings.Builder
	for c := n.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

// SetText replaces a text node's data and emits an OpText mutation.
// Returns ErrDetached when the node is no longer in the document.
func (n Node) SetText(s string) error {
	if !n.IsText() {
		return fmt.Errorf("dom: set text: not a text node")
	}
	d := n.doc
	d.mu.Lock()
	if !d.attachedLocked(n.n) {
		d.mu.Unlock()
		return ErrDetached
	}
	old := n.n.Data
	n.n.Data = s
	m := Mutation{Op: OpText, Target: d.ids[n.n], Value: s, OldValue: old}
	d.mu.Unlock()
	d.emit([]Mutation{m})
	return nil
}

// FirstTextChild returns the element's first direct text child.
func (n Node) FirstTextChild() (Node, bool) {
	if !n.IsElement() {
		return Node{}, false
	}
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	for c := n.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			return Node{doc: n.doc, n: c}, true
		}
	}
	return Node{}, false
}

// BoundingBox returns the node's layout box. Text nodes report their parent
// element's box. Returns ErrDetached for dangling nodes — callers treat
// that the same way a throwing layout query is treated in a browser.
func (n Node) BoundingBox() (Box, error) {
	if n.n == nil {
		return Box{}, ErrDetached
	}
	d := n.doc
	d.mu.RLock()
	defer d.mu.RUnlock()
	target := n.n
	if target.Type == html.TextNode && target.Parent != nil {
		target = target.Parent
	}
	return d.boxLocked(target)
}

// Visible computes effective visibility from inline styles and the hidden
// attribute, walking the ancestor chain. Returns ErrDetached for nodes no
// longer in the document, mirroring a throwing getComputedStyle.
func (n Node) Visible() (bool, error) {
	if n.n == nil {
		return false, ErrDetached
	}
	d := n.doc
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.attachedLocked(n.n) {
		return false, ErrDetached
	}
	for p := n.n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		for _, a := range p.Attr {
			switch a.Key {
			case "hidden":
				return false, nil
			case "style":
				if hiddenStyle(a.Val) {
					return false, nil
				}
			}
		}
	}
	return true, nil
}

func hiddenStyle(style string) bool {
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(strings.ToLower(k))
		v = strings.TrimSpace(strings.ToLower(v))
		if (k == "display" && v == "none") || (k == "visibility" && v == "hidden") {
			return true
		}
	}
	return false
}

// AppendElement creates a child element, indexes it, and emits OpInsert.
func (n Node) AppendElement(tag string, attrs map[string]string) (Node, error) {
	if !n.IsElement() {
		return Node{}, fmt.Errorf("dom: append element: parent is not an element")
	}
	d := n.doc
	d.mu.Lock()
	if !d.attachedLocked(n.n) {
		d.mu.Unlock()
		return Node{}, ErrDetached
	}
	el := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for k, v := range attrs {
		el.Attr = append(el.Attr, html.Attribute{Key: k, Val: v})
	}
	n.n.AppendChild(el)
	d.index(el)
	m := Mutation{Op: OpInsert, Target: d.ids[el], Tag: tag}
	d.mu.Unlock()
	d.emit([]Mutation{m})
	return Node{doc: d, n: el}, nil
}

// AppendText creates a text child. No mutation is emitted for the text
// itself; it arrives as part of the parent's OpInsert when inserted via
// AppendElement or InsertFragment.
func (n Node) AppendText(s string) (Node, error) {
	if !n.IsElement() {
		return Node{}, fmt.Errorf("dom: append text: parent is not an element")
	}
	d := n.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &html.Node{Type: html.TextNode, Data: s}
	n.n.AppendChild(t)
	d.index(t)
	return Node{doc: d, n: t}, nil
}

// Remove detaches the node from its parent and emits OpRemove. IDs of the
// removed subtree stay allocated so dangling handles resolve to detached
// nodes instead of aliasing new ones.
func (n Node) Remove() error {
	if n.n == nil {
		return ErrDetached
	}
	d := n.doc
	d.mu.Lock()
	if n.n.Parent == nil {
		d.mu.Unlock()
		return ErrDetached
	}
	m := Mutation{Op: OpRemove, Target: d.ids[n.n], Tag: n.n.Data}
	n.n.Parent.RemoveChild(n.n)
	d.mu.Unlock()
	d.emit([]Mutation{m})
	return nil
}

// InsertFragment parses an HTML fragment and appends its top-level nodes as
// children, emitting one OpInsert per inserted root. This is how host-page
// insertions (and tests) feed new content into the document.
func (n Node) InsertFragment(frag string) ([]Node, error) {
	if !n.IsElement() {
		return nil, fmt.Errorf("dom: insert fragment: parent is not an element")
	}
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	parsed, err := html.ParseFragment(strings.NewReader(frag), ctx)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	d := n.doc
	d.mu.Lock()
	if !d.attachedLocked(n.n) {
		d.mu.Unlock()
		return nil, ErrDetached
	}
	var nodes []Node
	var muts []Mutation
	for _, c := range parsed {
		n.n.AppendChild(c)
		d.index(c)
		nodes = append(nodes, Node{doc: d, n: c})
		muts = append(muts, Mutation{Op: OpInsert, Target: d.ids[c], Tag: c.Data})
	}
	d.mu.Unlock()
	d.emit(muts)
	return nodes, nil
}
