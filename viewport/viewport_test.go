package viewport

import (
	"fmt"
	"strings"
	"testing"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/eligibility"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/scan"
)

// TestPartitionScenario builds a large synthetic page: 3000 paragraphs of
// which 500 are eligible, with the viewport covering the first 50 eligible
// ones. The prioritizer must return exactly those 50 in view and the other
// 450 below the fold, sorted ascending by offset.
func TestPartitionScenario(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 3000; i++ {
		if i%6 == 0 {
			// 500 eligible paragraphs.
			fmt.Fprintf(&sb, "<p>eligible paragraph %d</p>", i)
		} else {
			// Ineligible filler: digits only.
			fmt.Fprintf(&sb, "<p>%d</p>", i)
		}
	}
	sb.WriteString("</body></html>")

	d, err := dom.ParseString(sb.String(), dom.Options{NodeHeight: 10})
	if err != nil {
		t.Fatal(err)
	}
	s := scan.New(eligibility.NewFilter(eligibility.Config{}))
	nodes := s.Collect(d, d.Root())
	if len(nodes) != 500 {
		t.Fatalf("eligible nodes = %d, want 500", len(nodes))
	}

	// Every 6th paragraph is eligible, so the 50th eligible node sits at
	// paragraph index 294. Choose the viewport to cover exactly 50.
	box, err := nodes[49].BoundingBox()
	if err != nil {
		t.Fatal(err)
	}
	viewportH := box.Top + box.Height

	inView, below := Partition(d, nodes, viewportH)
	if len(inView) != 50 {
		t.Fatalf("in-view = %d, want 50", len(inView))
	}
	if len(below) != 450 {
		t.Fatalf("below-fold = %d, want 450", len(below))
	}

	prev := -1
	for i, n := range below {
		b, err := n.BoundingBox()
		if err != nil {
			t.Fatalf("below[%d]: %v", i, err)
		}
		if b.Top < prev {
			t.Fatalf("below-fold not ascending at %d: %d < %d", i, b.Top, prev)
		}
		prev = b.Top
	}
}

func TestPartitionDetachedSortsLast(t *testing.T) {
	d, err := dom.ParseString(`<html><body><p>one fine line</p><p>two fine lines</p></body></html>`, dom.Options{NodeHeight: 10})
	if err != nil {
		t.Fatal(err)
	}
	s := scan.New(eligibility.NewFilter(eligibility.Config{}))
	nodes := s.Collect(d, d.Root())
	if len(nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(nodes))
	}

	// Detach the first node's paragraph; its layout query now fails.
	parent, _ := nodes[0].Parent()
	if err := parent.Remove(); err != nil {
		t.Fatal(err)
	}

	inView, below := Partition(d, nodes, 1) // tiny viewport: nothing in view
	if len(inView) != 0 {
		t.Fatalf("in-view = %d, want 0", len(inView))
	}
	if len(below) != 2 {
		t.Fatalf("below = %d, want 2", len(below))
	}
	if strings.TrimSpace(below[1].Text()) != "one fine line" {
		t.Errorf("detached node did not sort last: %q", below[1].Text())
	}
}
