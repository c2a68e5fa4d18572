package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
)

func parse(t *testing.T, s string) *dom.Document {
	t.Helper()
	d, err := dom.ParseString(s, dom.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func body(t *testing.T, d *dom.Document) dom.Node {
	t.Helper()
	b, ok := d.Body()
	if !ok {
		t.Fatal("no body")
	}
	return b
}

// collector gathers flushed nodes and signals each flush call.
type collector struct {
	mu    sync.Mutex
	nodes []dom.Node
	calls int
	ch    chan struct{}
}

func newCollector() *collector {
	return &collector{ch: make(chan struct{}, 16)}
}

func (c *collector) flush(ctx context.Context, added []dom.Node) {
	c.mu.Lock()
	c.nodes = append(c.nodes, added...)
	c.calls++
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) snapshot() ([]dom.Node, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dom.Node(nil), c.nodes...), c.calls
}

func waitFlush(t *testing.T, c *collector) {
	t.Helper()
	select {
	case <-c.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flush")
	}
}

func TestFlushAfterDebounce(t *testing.T) {
	d := parse(t, `<html><body></body></html>`)
	col := newCollector()
	m := New(d, Config{Debounce: 20 * time.Millisecond}, col.flush)
	m.Start(context.Background())
	defer m.Stop()

	if _, err := body(t, d).AppendElement("p", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := body(t, d).AppendElement("p", nil); err != nil {
		t.Fatal(err)
	}

	waitFlush(t, col)
	nodes, calls := col.snapshot()
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (burst coalesced)", calls)
	}
	if len(nodes) != 2 {
		t.Errorf("flushed %d nodes, want 2", len(nodes))
	}
	if m.State() != Observing {
		t.Errorf("state = %s after flush", m.State())
	}
}

func TestNonInsertIgnored(t *testing.T) {
	d := parse(t, `<html><body><p id="p">x</p></body></html>`)
	var p dom.Node
	d.Walk(body(t, d), func(n dom.Node) bool {
		if n.IsElement() && n.Tag() == "p" {
			p = n
		}
		return true
	})

	col := newCollector()
	m := New(d, Config{Debounce: 20 * time.Millisecond}, col.flush)
	m.Start(context.Background())
	defer m.Stop()

	if err := p.SetAttr("class", "changed"); err != nil {
		t.Fatal(err)
	}

	select {
	case <-col.ch:
		t.Fatal("attribute change triggered a flush")
	case <-time.After(100 * time.Millisecond):
	}
	if m.State() != Observing {
		t.Errorf("state = %s", m.State())
	}
}

func TestDetachedNodesDropped(t *testing.T) {
	d := parse(t, `<html><body></body></html>`)
	col := newCollector()
	m := New(d, Config{Debounce: 30 * time.Millisecond}, col.flush)
	m.Start(context.Background())
	defer m.Stop()

	kept, err := body(t, d).AppendElement("p", nil)
	if err != nil {
		t.Fatal(err)
	}
	gone, err := body(t, d).AppendElement("p", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := gone.Remove(); err != nil {
		t.Fatal(err)
	}

	waitFlush(t, col)
	nodes, _ := col.snapshot()
	if len(nodes) != 1 || nodes[0].ID() != kept.ID() {
		t.Errorf("flushed %d nodes", len(nodes))
	}
}

func TestFlushChunked(t *testing.T) {
	d := parse(t, `<html><body></body></html>`)
	col := newCollector()
	m := New(d, Config{
		Debounce:  20 * time.Millisecond,
		ChunkSize: 2,
		Yield:     func(ctx context.Context) {},
	}, col.flush)
	m.Start(context.Background())
	defer m.Stop()

	for i := 0; i < 5; i++ {
		if _, err := body(t, d).AppendElement("p", nil); err != nil {
			t.Fatal(err)
		}
	}

	// 5 roots at chunk size 2 means three flush calls in one pass.
	for i := 0; i < 3; i++ {
		waitFlush(t, col)
	}
	nodes, calls := col.snapshot()
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(nodes) != 5 {
		t.Errorf("flushed %d nodes, want 5", len(nodes))
	}
}

func TestStopIdempotent(t *testing.T) {
	d := parse(t, `<html><body></body></html>`)
	m := New(d, Config{Debounce: 10 * time.Millisecond}, func(context.Context, []dom.Node) {})

	m.Stop() // never started

	m.Start(context.Background())
	if m.State() != Observing {
		t.Errorf("state = %s after Start", m.State())
	}
	m.Start(context.Background()) // no-op while running

	m.Stop()
	if m.State() != Stopped {
		t.Errorf("state = %s after Stop", m.State())
	}
	m.Stop() // repeat is safe

	// Mutations after Stop go nowhere.
	if _, err := body(t, d).AppendElement("p", nil); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if m.State() != Stopped {
		t.Errorf("state = %s", m.State())
	}
}

func TestContextCancelStops(t *testing.T) {
	d := parse(t, `<html><body></body></html>`)
	m := New(d, Config{}, func(context.Context, []dom.Node) {})
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for m.State() != Stopped {
		if time.Now().After(deadline) {
			t.Fatal("monitor did not stop on context cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		Stopped: "stopped", Observing: "observing",
		Debouncing: "debouncing", Flushing: "flushing",
		State(99): "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q", s, got)
		}
	}
}
