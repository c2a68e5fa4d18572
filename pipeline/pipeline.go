// Package pipeline orchestrates in-page translation: scan → prioritise →
// batch → translate → write for the initial pass, then dynamic-content and
// scroll-deferred re-entry into the same path, plus undo and bilingual
// mode.
//
// One Controller owns one document and at most one TranslationSession at a
// time. All pipeline state lives on the Controller, never in globals, so
// independent instances (and tests) do not interfere.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/batch"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/deferred"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/eligibility"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/glossary"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/monitor"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/scan"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/state"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/translate"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/viewport"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/writer"
)

// Settings are the caller-supplied translation parameters. The pipeline
// neither owns nor persists them.
type Settings struct {
	SourceLang string
	TargetLang string
	Strategy   string
	Provider   string
}

func (s Settings) params() translate.Params {
	return translate.Params{
		SourceLang: s.SourceLang,
		TargetLang: s.TargetLang,
		Strategy:   s.Strategy,
		Provider:   s.Provider,
	}
}

// Session is one page-translation session. Created by TranslatePage,
// destroyed by Undo or Stop; dynamic and deferred translation read it and
// do nothing once it is gone.
type Session struct {
	ID string
	Settings
}

// Summary is the user-facing outcome of a page pass.
type Summary struct {
	Translated int
	Failed     int
	Deferred   int
}

// Controller is the pipeline orchestrator for one document.
type Controller struct {
	doc     *dom.Document
	cfg     Config
	logger  *slog.Logger
	filter  *eligibility.Filter
	scanner *scan.Scanner
	builder *batch.Builder
	writer  *writer.Writer
	states  *state.Table
	tr      translate.Translator
	breaker *translate.Breaker

	translating atomic.Bool

	mu   sync.Mutex
	sess *Session
	exec *translate.Executor
	mon  *monitor.Monitor
	def  *deferred.Translator
}

// New creates a Controller over doc. The translator is the external RPC
// boundary; gloss may be nil.
func New(doc *dom.Document, tr translate.Translator, gloss glossary.Glossary, cfg Config, logger *slog.Logger) *Controller {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	filter := eligibility.NewFilter(eligibility.Config{
		MinTextLen: cfg.Text.MinLen,
		MaxTextLen: cfg.Text.MaxLen,
	})
	filter.Attach(doc)
	states := state.NewTable()
	return &Controller{
		doc:     doc,
		cfg:     cfg,
		logger:  logger,
		filter:  filter,
		scanner: scan.New(filter),
		builder: batch.NewBuilder(batch.Options{
			MaxBatchSize:  cfg.Batch.MaxBatchSize,
			MaxTextLength: cfg.Batch.MaxTextLength,
		}, gloss),
		writer:  writer.New(states, logger),
		states:  states,
		tr:      tr,
		breaker: translate.NewBreaker(),
	}
}

// Session returns the current session, or nil.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// States exposes the translation state table (read-mostly; used by
// correction tooling and tests).
func (c *Controller) States() *state.Table { return c.states }

// TranslatePage runs the initial full-page pass and arms the dynamic
// monitor and deferred translator. While a session is active (or a pass is
// in flight) further calls are no-ops returning an empty Summary.
func (c *Controller) TranslatePage(ctx context.Context, s Settings) (Summary, error) {
	if !c.translating.CompareAndSwap(false, true) {
		return Summary{}, nil
	}
	defer c.translating.Store(false)

	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return Summary{}, nil
	}
	sess := &Session{ID: uuid.NewString(), Settings: s}
	exec := translate.NewExecutor(translate.Config{
		Translator:  c.tr,
		Write:       c.sessionWrite(sess),
		BackoffBase: c.cfg.Retry.BackoffBase,
		BackoffMax:  c.cfg.Retry.BackoffMax,
		Breaker:     c.breaker,
		Logger:      c.logger,
	})
	mon := monitor.New(c.doc, monitor.Config{
		Debounce:   c.cfg.Monitor.Debounce,
		MaxPending: c.cfg.Monitor.MaxPending,
		ChunkSize:  c.cfg.Monitor.ChunkSize,
		Logger:     c.logger,
	}, c.dynamicFlush)
	def := deferred.New(c.doc, deferred.Config{
		ChunkSize: c.cfg.Deferred.ChunkSize,
		Margin:    2 * c.doc.ViewportHeight(),
		Logger:    c.logger,
	}, c.deferredTranslate, c.stillWanted)
	c.sess, c.exec, c.mon, c.def = sess, exec, mon, def
	c.mu.Unlock()

	root := c.root()
	nodes := c.scanner.Collect(c.doc, root)
	inView, belowFold := viewport.Partition(c.doc, nodes, c.doc.ViewportHeight())

	immediate := inView
	rest := belowFold
	if n := c.cfg.Deferred.ImmediateCount; n > 0 && len(rest) > 0 {
		if n > len(rest) {
			n = len(rest)
		}
		immediate = append(append([]dom.Node(nil), inView...), rest[:n]...)
		rest = rest[n:]
	}

	batches := c.builder.Build(immediate)
	res := exec.Run(ctx, batches, s.params(), c.cfg.Retry.MaxRetries, c.cfg.Concurrency)

	// The monitor and deferred sentinels outlive this call; they stop on
	// undo or an explicit stop, not when the caller's pass context ends.
	// An undo that raced the pass has already torn the session down, in
	// which case nothing gets armed.
	c.mu.Lock()
	active := c.sess != nil && c.sess.ID == sess.ID
	c.mu.Unlock()
	if active {
		bg := context.WithoutCancel(ctx)
		def.Register(bg, rest)
		mon.Start(bg)
	}

	summary := Summary{Translated: res.Translated, Failed: res.Failed, Deferred: len(rest)}
	c.logger.Info("pipeline: page pass complete",
		"translated", summary.Translated,
		"failed", summary.Failed,
		"deferred", summary.Deferred,
		"source", s.SourceLang,
		"target", s.TargetLang)
	return summary, nil
}

// root scans from <body> when present, otherwise the document root.
func (c *Controller) root() dom.Node {
	if body, ok := c.doc.Body(); ok {
		return body
	}
	return c.doc.Root()
}

// sessionWrite returns the executor's write callback bound to sess. A
// batch whose session is no longer current writes nothing: in-flight RPC
// results landing after undo must not resurrect translations.
func (c *Controller) sessionWrite(sess *Session) translate.WriteFunc {
	return func(ctx context.Context, b batch.Batch, texts []string) (int, int) {
		c.mu.Lock()
		current := c.sess
		c.mu.Unlock()
		if current == nil || current.ID != sess.ID {
			return 0, 0
		}
		res := c.writer.Apply(b.Nodes, texts, sess.params())
		return res.Written, res.Failed
	}
}

// dynamicFlush is the monitor's callback: newly-inserted content re-enters
// scan → batch → translate → write, sequentially with the smaller retry
// budget.
func (c *Controller) dynamicFlush(ctx context.Context, added []dom.Node) {
	sess, exec := c.current()
	if sess == nil {
		return
	}
	nodes := c.scanner.CollectAdded(c.doc, added)
	if len(nodes) == 0 {
		return
	}
	var res translate.Result
	for _, b := range c.builder.Build(nodes) {
		r := exec.TranslateBatch(ctx, b, sess.params(), c.cfg.Retry.DynamicMaxRetries)
		res.Translated += r.Translated
		res.Failed += r.Failed
	}
	c.logger.Debug("pipeline: dynamic content translated",
		"translated", res.Translated, "failed", res.Failed)
}

// deferredTranslate is the deferred translator's callback.
func (c *Controller) deferredTranslate(ctx context.Context, nodes []dom.Node) {
	sess, exec := c.current()
	if sess == nil {
		return
	}
	for _, b := range c.builder.Build(nodes) {
		exec.TranslateBatch(ctx, b, sess.params(), c.cfg.Retry.DynamicMaxRetries)
	}
}

// stillWanted filters deferred chunk nodes when their sentinel fires.
func (c *Controller) stillWanted(n dom.Node) bool {
	if !n.Attached() {
		return false
	}
	parent, ok := n.Parent()
	if !ok {
		return false
	}
	return !c.states.Translated(parent.ID())
}

func (c *Controller) current() (*Session, *translate.Executor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess, c.exec
}

// Stop ends the session without touching the page: observers disconnect,
// pending debounce and sentinels are cancelled, translations stay. Safe to
// call with no session active.
func (c *Controller) Stop() {
	c.teardown()
}

// teardown stops the monitor and deferred translator and clears the
// session. Returns the stopped monitor/deferred pair (possibly nil).
func (c *Controller) teardown() {
	c.mu.Lock()
	mon, def := c.mon, c.def
	c.sess, c.exec, c.mon, c.def = nil, nil, nil, nil
	c.mu.Unlock()
	if def != nil {
		def.Stop()
	}
	if mon != nil {
		mon.Stop()
	}
}

// Undo restores every translated element to its first-seen original text,
// strips the bookkeeping attributes, drops all per-session state, and
// returns how many elements were restored. Safe to call with no session.
func (c *Controller) Undo() int {
	c.teardown()

	restored := 0
	c.states.Range(func(id dom.NodeID, r state.Record) bool {
		el, ok := c.doc.ByID(id)
		if !ok || !el.Attached() {
			c.states.Delete(id)
			return true
		}
		c.writer.RemoveAnnotation(c.doc, el)
		if r.OriginalSet {
			if t, ok := el.FirstTextChild(); ok {
				if err := t.SetText(r.Original); err == nil {
					restored++
				}
			}
		}
		state.Strip(el)
		c.filter.Evict(id)
		c.states.Delete(id)
		return true
	})

	c.logger.Info("pipeline: undo complete", "restored", restored)
	return restored
}

// ToggleBilingual flips the non-destructive bilingual annotation mode and
// applies it to every currently-translated element. The translated text
// node itself is never altered. Returns the new mode.
func (c *Controller) ToggleBilingual() bool {
	on := !c.writer.Bilingual()
	c.writer.SetBilingual(on)
	c.states.Range(func(id dom.NodeID, r state.Record) bool {
		el, ok := c.doc.ByID(id)
		if !ok || !el.Attached() {
			return true
		}
		if on {
			c.writer.EnsureAnnotation(el, r.Original)
		} else {
			c.writer.RemoveAnnotation(c.doc, el)
		}
		return true
	})
	c.logger.Info("pipeline: bilingual mode", "on", on)
	return on
}
