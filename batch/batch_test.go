package batch

import (
	"strings"
	"testing"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/glossary"
)

func textNodes(t *testing.T, count int) []dom.Node {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < count; i++ {
		sb.WriteString("<p>some text</p>")
	}
	sb.WriteString("</body></html>")
	d, err := dom.ParseString(sb.String(), dom.Options{})
	if err != nil {
		t.Fatal(err)
	}
	var nodes []dom.Node
	d.Walk(d.Root(), func(n dom.Node) bool {
		if n.IsText() && strings.TrimSpace(n.Text()) != "" {
			nodes = append(nodes, n)
		}
		return true
	})
	return nodes
}

func TestBuildCeilDivision(t *testing.T) {
	cases := []struct {
		n, k, batches int
	}{
		{0, 5, 0},
		{1, 5, 1},
		{5, 5, 1},
		{6, 5, 2},
		{23, 5, 5},
	}
	for _, tc := range cases {
		b := NewBuilder(Options{MaxBatchSize: tc.k}, nil)
		got := b.Build(textNodes(t, tc.n))
		if len(got) != tc.batches {
			t.Errorf("N=%d K=%d: batches = %d, want %d", tc.n, tc.k, len(got), tc.batches)
			continue
		}
		total := 0
		for i, batch := range got {
			if len(batch.Nodes) == 0 {
				t.Errorf("N=%d K=%d: batch %d empty", tc.n, tc.k, i)
			}
			if len(batch.Nodes) > tc.k {
				t.Errorf("N=%d K=%d: batch %d has %d nodes", tc.n, tc.k, i, len(batch.Nodes))
			}
			if len(batch.Texts) != len(batch.Nodes) || len(batch.Restores) != len(batch.Nodes) {
				t.Errorf("batch %d: misaligned texts/restores", i)
			}
			total += len(batch.Nodes)
		}
		if total != tc.n {
			t.Errorf("N=%d K=%d: total nodes = %d", tc.n, tc.k, total)
		}
	}
}

func TestBuildTruncates(t *testing.T) {
	nodes := textNodes(t, 1)
	b := NewBuilder(Options{MaxTextLength: 4}, nil)
	got := b.Build(nodes)
	if len(got) != 1 {
		t.Fatal("want one batch")
	}
	if got[0].Texts[0] != "some" {
		t.Errorf("text = %q, want truncated %q", got[0].Texts[0], "some")
	}
}

func TestBuildAppliesGlossary(t *testing.T) {
	nodes := textNodes(t, 1) // "some text"
	g := glossary.NewTerms([]string{"some"})
	b := NewBuilder(Options{}, g)
	got := b.Build(nodes)
	if len(got) != 1 {
		t.Fatal("want one batch")
	}
	if strings.Contains(got[0].Texts[0], "some") {
		t.Errorf("protected term leaked into batch text: %q", got[0].Texts[0])
	}
	restored := got[0].Restores[0](got[0].Texts[0])
	if restored != "some text" {
		t.Errorf("restore = %q, want %q", restored, "some text")
	}
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  hello  world  ", "hello world"},
		{"tabs\t\tand\nnewlines", "tabs and newlines"},
		{"ctrl\x00\x07chars", "ctrlchars"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := Sanitize(tc.in); got != tc.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
