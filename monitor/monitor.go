// Package monitor watches the document for mutations after the initial
// full-page pass and feeds newly-inserted content back through the
// translation path.
//
// State machine: Stopped → Observing → Debouncing → Flushing → Observing.
// Mutation records accumulate in a bounded pending list while a debounce
// timer runs; the flush walks pending insertions in capped chunks, yielding
// between chunks so a burst of mutations never produces a long unresponsive
// stretch.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
)

// State of the monitor.
type State int32

const (
	Stopped State = iota
	Observing
	Debouncing
	Flushing
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Observing:
		return "observing"
	case Debouncing:
		return "debouncing"
	case Flushing:
		return "flushing"
	}
	return "unknown"
}

// FlushFunc receives the inserted nodes of one flush chunk and runs them
// through scan → batch → translate → write.
type FlushFunc func(ctx context.Context, added []dom.Node)

// Config tunes the monitor.
type Config struct {
	// Debounce is the quiet window after a mutation before flushing.
	// Default: 300ms.
	Debounce time.Duration
	// MaxPending bounds the pending insertion list; the oldest entries
	// are dropped beyond it. Default: 1000.
	MaxPending int
	// ChunkSize caps how many inserted roots one flush chunk processes.
	// Default: 50.
	ChunkSize int
	// Yield runs between flush chunks, standing in for the host's idle
	// scheduling. Default: a 1ms context-aware pause.
	Yield  func(ctx context.Context)
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = 300 * time.Millisecond
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 1000
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 50
	}
	if c.Yield == nil {
		c.Yield = func(ctx context.Context) {
			select {
			case <-ctx.Done():
			case <-time.After(time.Millisecond):
			}
		}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Monitor observes one document. Create with New, then Start; Stop is safe
// to call at any time, repeatedly.
type Monitor struct {
	doc   *dom.Document
	cfg   Config
	flush FlushFunc

	state atomic.Int32

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New creates a Monitor.
func New(doc *dom.Document, cfg Config, flush FlushFunc) *Monitor {
	cfg.defaults()
	return &Monitor{doc: doc, cfg: cfg, flush: flush}
}

// State returns the current state.
func (m *Monitor) State() State { return State(m.state.Load()) }

// Start subscribes to the document's mutation stream and runs the loop
// until Stop or context cancellation. Calling Start while running is a
// no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.stopped = make(chan struct{})
	ch, unsub := m.doc.Subscribe(m.cfg.MaxPending)
	m.state.Store(int32(Observing))
	go m.loop(ctx, ch, unsub)
	m.cfg.Logger.Info("monitor: observing")
}

// Stop disconnects from the mutation stream and cancels any pending
// debounce. Safe to call when not running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	stopped := m.stopped
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
	m.cfg.Logger.Info("monitor: stopped")
}

func (m *Monitor) loop(ctx context.Context, ch <-chan dom.Mutation, unsub func()) {
	defer close(m.stopped)
	defer unsub()
	defer m.state.Store(int32(Stopped))

	var pending []dom.NodeID
	var timer *time.Timer
	var timerC <-chan time.Time
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return

		case mut := <-ch:
			if mut.Op != dom.OpInsert {
				continue
			}
			if len(pending) >= m.cfg.MaxPending {
				pending = pending[1:] // drop oldest
			}
			pending = append(pending, mut.Target)
			stopTimer()
			timer = time.NewTimer(m.cfg.Debounce)
			timerC = timer.C
			m.state.Store(int32(Debouncing))

		case <-timerC:
			stopTimer()
			m.state.Store(int32(Flushing))
			m.flushPending(ctx, pending)
			pending = pending[:0]
			m.state.Store(int32(Observing))
		}
	}
}

// flushPending resolves pending IDs to still-attached nodes and hands them
// to the flush callback in capped chunks, yielding between chunks.
func (m *Monitor) flushPending(ctx context.Context, pending []dom.NodeID) {
	var nodes []dom.Node
	for _, id := range pending {
		n, ok := m.doc.ByID(id)
		if !ok || !n.Attached() {
			continue
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 0 {
		return
	}
	m.cfg.Logger.Debug("monitor: flushing", "inserted", len(nodes))

	for start := 0; start < len(nodes); start += m.cfg.ChunkSize {
		if ctx.Err() != nil {
			return
		}
		end := start + m.cfg.ChunkSize
		if end > len(nodes) {
			end = len(nodes)
		}
		m.flush(ctx, nodes[start:end])
		if end < len(nodes) {
			m.cfg.Yield(ctx)
		}
	}
}
