// Package browser adapts a live Chrome page (driven over CDP via rod) into
// the pipeline's document model. The page is mirrored into a dom.Document;
// pipeline writes are applied back through an injected helper, and the
// page's MutationObserver, scroll position, and layout boxes are forwarded
// into the mirror so the monitor and deferred translator see the real page.
package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/state"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/writer"
)

//go:embed host.js
var hostJS string

const bindingName = "__pagetrans_binding"

// ptidAttr is the stable element id the injected helper assigns.
const ptidAttr = "data-ptid"

// Host couples one live page with its document mirror.
type Host struct {
	page   *rod.Page
	doc    *dom.Document
	logger *slog.Logger

	mu     sync.Mutex
	byPtid map[string]dom.NodeID
	// lastWrite suppresses the echo of our own text writes coming back
	// through the page's MutationObserver.
	lastWrite map[string]string
}

// Open navigates a stealth page to url and waits for load, the way the
// observation daemon opens tabs.
func Open(ctx context.Context, b *rod.Browser, url string) (*rod.Page, error) {
	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		return nil, fmt.Errorf("browser: wait load: %w", err)
	}
	return page, nil
}

// Attach injects the bridge into the page, snapshots it into a
// dom.Document, and starts forwarding page events. The returned Host's
// Document is what the pipeline Controller should be created over.
func Attach(ctx context.Context, page *rod.Page, logger *slog.Logger) (*Host, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Host{
		page:      page,
		logger:    logger,
		byPtid:    make(map[string]dom.NodeID),
		lastWrite: make(map[string]string),
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		logger.Warn("browser: add binding failed (may already exist)", "error", err)
	}
	go h.listenBinding(ctx)

	if _, err := page.Context(ctx).Eval(hostJS); err != nil {
		return nil, fmt.Errorf("browser: inject bridge: %w", err)
	}

	res, err := page.Context(ctx).Eval(`() => window.__pagetrans.snapshot()`)
	if err != nil {
		return nil, fmt.Errorf("browser: snapshot: %w", err)
	}
	doc, err := dom.ParseString(res.Value.Str(), dom.Options{})
	if err != nil {
		return nil, err
	}
	h.doc = doc
	h.indexPtids()
	doc.Observe(h.applyWrite)

	// The boxes posted during the snapshot raced the ptid index; ask for
	// them again now that every element resolves.
	if _, err := page.Context(ctx).Eval(`() => window.__pagetrans.postBoxes()`); err != nil {
		logger.Debug("browser: box refresh failed", "error", err)
	}

	logger.Info("browser: attached", "elements", len(h.byPtid))
	return h, nil
}

// Document returns the page mirror.
func (h *Host) Document() *dom.Document { return h.doc }

// indexPtids maps the injected element ids to mirror node ids.
func (h *Host) indexPtids() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.doc.Walk(h.doc.Root(), func(n dom.Node) bool {
		if n.IsElement() {
			if pt := n.Attr(ptidAttr); pt != "" {
				h.byPtid[pt] = n.ID()
			}
		}
		return true
	})
}

// applyWrite pushes a mirror mutation back into the live page. Only
// pipeline-originated mutations matter here: text writes, the bookkeeping
// attributes, and the bilingual annotation span.
func (h *Host) applyWrite(m dom.Mutation) {
	switch m.Op {
	case dom.OpText:
		n, ok := h.doc.ByID(m.Target)
		if !ok {
			return
		}
		parent, ok := n.Parent()
		if !ok {
			return
		}
		pt := parent.Attr(ptidAttr)
		if pt == "" {
			return
		}
		h.mu.Lock()
		h.lastWrite[pt] = m.Value
		h.mu.Unlock()
		h.eval(`(pt, text) => window.__pagetrans.setText(pt, text)`, pt, m.Value)

	case dom.OpAttr:
		if !mirroredAttr(m.Name) {
			return
		}
		if pt := h.ptidOf(m.Target); pt != "" {
			h.eval(`(pt, name, value) => window.__pagetrans.setAttr(pt, name, value)`, pt, m.Name, m.Value)
		}

	case dom.OpAttrDel:
		if !mirroredAttr(m.Name) {
			return
		}
		if pt := h.ptidOf(m.Target); pt != "" {
			h.eval(`(pt, name) => window.__pagetrans.removeAttr(pt, name)`, pt, m.Name)
		}

	case dom.OpInsert:
		// The only pipeline-side insertion is the annotation span.
		n, ok := h.doc.ByID(m.Target)
		if !ok || n.Attr("class") != writer.AnnotationClass {
			return
		}
		parent, ok := n.Parent()
		if !ok {
			return
		}
		if pt := parent.Attr(ptidAttr); pt != "" {
			h.eval(`(pt, cls, text) => window.__pagetrans.appendSpan(pt, cls, text)`,
				pt, writer.AnnotationClass, n.Text())
		}

	case dom.OpRemove:
		// Annotation span removal on toggle-off; addressed by ptid when
		// the span was mirrored back in, otherwise left to the page.
	}
}

func mirroredAttr(name string) bool {
	switch name {
	case state.AttrTranslated, state.AttrOriginal, state.AttrMT,
		state.AttrSourceLang, state.AttrTargetLang:
		return true
	}
	return false
}

func (h *Host) ptidOf(id dom.NodeID) string {
	n, ok := h.doc.ByID(id)
	if !ok || !n.IsElement() {
		return ""
	}
	return n.Attr(ptidAttr)
}

func (h *Host) eval(js string, args ...any) {
	if _, err := h.page.Eval(js, args...); err != nil {
		h.logger.Debug("browser: write-back failed", "error", err)
	}
}

// listenBinding receives page events via Runtime.bindingCalled and applies
// them to the mirror.
func (h *Host) listenBinding(ctx context.Context) {
	h.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		var records []json.RawMessage
		if err := json.Unmarshal([]byte(e.Payload), &records); err != nil {
			h.logger.Warn("browser: parse binding payload", "error", err)
			return
		}
		for _, raw := range records {
			h.handleRecord(raw)
		}
	})()
}

func (h *Host) handleRecord(raw json.RawMessage) {
	var rec struct {
		Op     string `json:"op"`
		Pt     string `json:"pt"`
		Parent string `json:"parent"`
		HTML   string `json:"html"`
		Value  string `json:"value"`
		Top    int    `json:"top"`
		Height int    `json:"height"`
		Y      int    `json:"y"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return
	}
	switch rec.Op {
	case "box":
		if id, ok := h.lookup(rec.Pt); ok {
			h.doc.SetBox(id, dom.Box{Top: rec.Top, Height: rec.Height})
		}
	case "viewport":
		h.doc.SetViewportHeight(rec.Height)
	case "scroll":
		h.doc.Scroll(rec.Y)
	case "insert":
		h.handleInsert(rec.Parent, rec.HTML)
	case "remove":
		if id, ok := h.lookup(rec.Pt); ok {
			if n, found := h.doc.ByID(id); found {
				_ = n.Remove()
			}
		}
	case "text":
		h.handleText(rec.Pt, rec.Value)
	}
}

func (h *Host) lookup(pt string) (dom.NodeID, bool) {
	if pt == "" {
		return 0, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.byPtid[pt]
	return id, ok
}

func (h *Host) handleInsert(parentPt, fragment string) {
	id, ok := h.lookup(parentPt)
	if !ok {
		return
	}
	parent, found := h.doc.ByID(id)
	if !found {
		return
	}
	nodes, err := parent.InsertFragment(fragment)
	if err != nil {
		h.logger.Debug("browser: mirror insert failed", "error", err)
		return
	}
	// Index the ptids the page assigned inside the inserted subtree.
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, n := range nodes {
		h.doc.Walk(n, func(c dom.Node) bool {
			if c.IsElement() {
				if pt := c.Attr(ptidAttr); pt != "" {
					h.byPtid[pt] = c.ID()
				}
			}
			return true
		})
	}
}

// handleText applies a host-page text change to the mirror, unless it is
// the echo of a write the pipeline just made.
func (h *Host) handleText(pt, value string) {
	h.mu.Lock()
	if last, ok := h.lastWrite[pt]; ok && last == value {
		delete(h.lastWrite, pt)
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	id, ok := h.lookup(pt)
	if !ok {
		return
	}
	el, found := h.doc.ByID(id)
	if !found {
		return
	}
	if t, ok := el.FirstTextChild(); ok {
		_ = t.SetText(value)
	}
}

// PageURL returns the page's current URL, best-effort.
func (h *Host) PageURL() string {
	info, err := h.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}
