package writer

import (
	"strings"
	"testing"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/state"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/translate"
)

var enFR = translate.Params{SourceLang: "en", TargetLang: "fr"}

func parse(t *testing.T, s string) *dom.Document {
	t.Helper()
	d, err := dom.ParseString(s, dom.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func textNodes(d *dom.Document) []dom.Node {
	b, ok := d.Body()
	if !ok {
		return nil
	}
	var out []dom.Node
	d.Walk(b, func(n dom.Node) bool {
		if n.IsText() && strings.TrimSpace(n.Text()) != "" {
			out = append(out, n)
		}
		return true
	})
	return out
}

func TestApplyPreservesEdgeWhitespace(t *testing.T) {
	d := parse(t, `<html><body><p>  hello  </p></body></html>`)
	nodes := textNodes(d)
	if len(nodes) != 1 {
		t.Fatalf("nodes = %d", len(nodes))
	}

	w := New(state.NewTable(), nil)
	res := w.Apply(nodes, []string{"bonjour"}, enFR)
	if res.Written != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if got := nodes[0].Text(); got != "  bonjour  " {
		t.Errorf("text = %q, want %q", got, "  bonjour  ")
	}
}

func TestApplyRecordsStateAndAttributes(t *testing.T) {
	d := parse(t, `<html><body><p>hello</p></body></html>`)
	nodes := textNodes(d)
	states := state.NewTable()
	w := New(states, nil)
	w.Apply(nodes, []string{"bonjour"}, enFR)

	parent, _ := nodes[0].Parent()
	r, ok := states.Get(parent.ID())
	if !ok {
		t.Fatal("no record")
	}
	if r.Original != "hello" || r.Translated != "bonjour" {
		t.Errorf("record = %+v", r)
	}
	if got := parent.Attr(state.AttrTranslated); got != "true" {
		t.Errorf("%s = %q", state.AttrTranslated, got)
	}
	if got := parent.Attr(state.AttrOriginal); got != "hello" {
		t.Errorf("%s = %q", state.AttrOriginal, got)
	}
	if got := parent.Attr(state.AttrSourceLang); got != "en" {
		t.Errorf("%s = %q", state.AttrSourceLang, got)
	}
}

func TestApplyOriginalSetOnce(t *testing.T) {
	d := parse(t, `<html><body><p>hello</p></body></html>`)
	nodes := textNodes(d)
	states := state.NewTable()
	w := New(states, nil)

	w.Apply(nodes, []string{"bonjour"}, enFR)
	// A second write over the translation must not clobber the original.
	w.Apply(nodes, []string{"salut"}, enFR)

	parent, _ := nodes[0].Parent()
	r, _ := states.Get(parent.ID())
	if r.Original != "hello" {
		t.Errorf("Original = %q after rewrite", r.Original)
	}
	if r.Translated != "salut" {
		t.Errorf("Translated = %q", r.Translated)
	}
}

func TestApplyStripsMarkup(t *testing.T) {
	d := parse(t, `<html><body><p>hello</p></body></html>`)
	nodes := textNodes(d)
	w := New(state.NewTable(), nil)
	w.Apply(nodes, []string{`bonjour <script>evil()</script>a & b`}, enFR)

	got := nodes[0].Text()
	if strings.Contains(got, "<") || strings.Contains(got, "script") {
		t.Errorf("markup survived: %q", got)
	}
	if !strings.Contains(got, "a & b") {
		t.Errorf("entity not unescaped: %q", got)
	}
}

func TestApplyDetachedCountedNotFatal(t *testing.T) {
	d := parse(t, `<html><body><p>one</p><p>two</p></body></html>`)
	nodes := textNodes(d)
	if len(nodes) != 2 {
		t.Fatalf("nodes = %d", len(nodes))
	}
	parent, _ := nodes[0].Parent()
	if err := parent.Remove(); err != nil {
		t.Fatal(err)
	}

	w := New(state.NewTable(), nil)
	res := w.Apply(nodes, []string{"un", "deux"}, enFR)
	if res.Written != 1 || res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
	if got := nodes[1].Text(); got != "deux" {
		t.Errorf("surviving node = %q", got)
	}
}

func TestApplyShortTextsCountedFailed(t *testing.T) {
	d := parse(t, `<html><body><p>one</p><p>two</p></body></html>`)
	nodes := textNodes(d)
	w := New(state.NewTable(), nil)
	res := w.Apply(nodes, []string{"un"}, enFR)
	if res.Written != 1 || res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestBilingualAnnotation(t *testing.T) {
	d := parse(t, `<html><body><p>hello</p></body></html>`)
	nodes := textNodes(d)
	states := state.NewTable()
	w := New(states, nil)
	w.SetBilingual(true)
	w.Apply(nodes, []string{"bonjour"}, enFR)

	parent, _ := nodes[0].Parent()
	r, _ := states.Get(parent.ID())
	if r.Annotation == 0 {
		t.Fatal("no annotation recorded")
	}
	span, ok := d.ByID(r.Annotation)
	if !ok {
		t.Fatal("annotation span missing from document")
	}
	if span.Attr("class") != AnnotationClass || span.Attr("translate") != "no" {
		t.Errorf("span attrs: class=%q translate=%q", span.Attr("class"), span.Attr("translate"))
	}
	if got := span.Text(); got != "hello" {
		t.Errorf("span text = %q", got)
	}

	// A second write must not stack a second span.
	w.Apply(nodes, []string{"salut"}, enFR)
	count := 0
	d.Walk(parent, func(n dom.Node) bool {
		if n.IsElement() && n.Tag() == "span" {
			count++
		}
		return true
	})
	if count != 1 {
		t.Errorf("span count = %d", count)
	}
}

func TestRemoveAnnotation(t *testing.T) {
	d := parse(t, `<html><body><p>hello</p></body></html>`)
	nodes := textNodes(d)
	states := state.NewTable()
	w := New(states, nil)
	w.SetBilingual(true)
	w.Apply(nodes, []string{"bonjour"}, enFR)

	parent, _ := nodes[0].Parent()
	w.RemoveAnnotation(d, parent)

	r, _ := states.Get(parent.ID())
	if r.Annotation != 0 {
		t.Error("annotation id not cleared")
	}
	found := false
	d.Walk(parent, func(n dom.Node) bool {
		if n.IsElement() && n.Tag() == "span" {
			found = true
		}
		return true
	})
	if found {
		t.Error("span still attached")
	}
}

func TestEdgeWhitespace(t *testing.T) {
	tests := []struct {
		in, lead, trail string
	}{
		{"hello", "", ""},
		{"  hello  ", "  ", "  "},
		{"\n\thello", "\n\t", ""},
		{"hello ", "", " "},
		{"   ", "   ", ""},
		{"", "", ""},
	}
	for _, tc := range tests {
		lead, trail := edgeWhitespace(tc.in)
		if lead != tc.lead || trail != tc.trail {
			t.Errorf("edgeWhitespace(%q) = %q, %q", tc.in, lead, trail)
		}
	}
}
