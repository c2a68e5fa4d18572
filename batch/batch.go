// Package batch groups eligible text nodes into bounded units for the
// translate boundary. Raw text is sanitised and truncated, and glossary
// terms are swapped for placeholders before a batch is built; each batch
// carries the restore functions for its own texts.
package batch

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/glossary"
)

// Batch is an ephemeral, consumed-once unit of work. Nodes and Texts are
// index-aligned; Restores reinstate glossary terms after translation.
type Batch struct {
	Nodes    []dom.Node
	Texts    []string
	Restores []glossary.RestoreFunc
}

// Options bounds batch construction.
type Options struct {
	// MaxBatchSize is the maximum number of nodes per batch. Default: 20.
	MaxBatchSize int
	// MaxTextLength truncates individual texts (in runes). Default: 2000.
	MaxTextLength int
}

func (o *Options) defaults() {
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = 20
	}
	if o.MaxTextLength <= 0 {
		o.MaxTextLength = 2000
	}
}

// Builder turns node sequences into batches.
type Builder struct {
	opts  Options
	gloss glossary.Glossary
}

// NewBuilder creates a Builder. A nil glossary means no term protection.
func NewBuilder(opts Options, gloss glossary.Glossary) *Builder {
	opts.defaults()
	if gloss == nil {
		gloss = glossary.Noop{}
	}
	return &Builder{opts: opts, gloss: gloss}
}

// Build produces ceil(len(nodes)/MaxBatchSize) batches, none empty. Text is
// read from each node at build time; nodes whose text has become empty are
// kept (the executor and writer tolerate them) so counts stay aligned.
func (b *Builder) Build(nodes []dom.Node) []Batch {
	if len(nodes) == 0 {
		return nil
	}
	var batches []Batch
	for start := 0; start < len(nodes); start += b.opts.MaxBatchSize {
		end := start + b.opts.MaxBatchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		group := nodes[start:end]
		texts := make([]string, len(group))
		for i, n := range group {
			texts[i] = truncate(Sanitize(n.Text()), b.opts.MaxTextLength)
		}
		processed, restores := b.gloss.Apply(texts)
		batches = append(batches, Batch{
			Nodes:    append([]dom.Node(nil), group...),
			Texts:    processed,
			Restores: restores,
		})
	}
	return batches
}

// Sanitize normalises raw node text for the translator: NFC normalisation,
// control characters stripped, runs of horizontal whitespace collapsed,
// and the result trimmed. Newlines collapse like other whitespace — node
// text is a single logical run.
func Sanitize(s string) string {
	s = norm.NFC.String(s)
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}
