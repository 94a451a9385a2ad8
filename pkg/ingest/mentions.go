package ingest

import (
	"strings"
	"unicode/utf8"

	"github.com/japaniel/glossary/pkg/annotate"
)

// snippetRadius is how many bytes of text around a mention are kept as context.
const snippetRadius = 80

// TermCount is how often one term occurs in a document, with the text around
// its first occurrence.
type TermCount struct {
	TermID  string
	Count   int
	Snippet string
}

// CountMentions counts every occurrence of every term in root, ignoring
// protected elements. Unlike annotation there is no per-block cap: this is
// coverage, not display. Results are in first-occurrence order.
func CountMentions(idx annotate.Index, root annotate.Node) []TermCount {
	if idx == nil || idx.Matcher() == nil || idx.Matcher().Empty() {
		return nil
	}
	dict, match := idx.Dictionary(), idx.Matcher()

	var out []TermCount
	pos := make(map[string]int)
	add := func(termID, snippet string) {
		if i, ok := pos[termID]; ok {
			out[i].Count++
			return
		}
		pos[termID] = len(out)
		out = append(out, TermCount{TermID: termID, Count: 1, Snippet: snippet})
	}

	annotate.Walk(root, func(n annotate.Node) bool {
		switch v := n.(type) {
		case *annotate.Element:
			return !annotate.Protected(v)
		case *annotate.Marker:
			add(v.TermID, v.DisplayText)
		case *annotate.Text:
			if !utf8.ValidString(v.Value) {
				return false
			}
			for _, span := range match.FindAll(v.Value) {
				if term, ok := dict.Lookup(span.Text); ok {
					add(term.ID, snippet(v.Value, span.Start, span.End))
				}
			}
		}
		return true
	})
	return out
}

func snippet(text string, start, end int) string {
	from := start - snippetRadius
	if from < 0 {
		from = 0
	}
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	to := end + snippetRadius
	if to > len(text) {
		to = len(text)
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	return strings.Join(strings.Fields(text[from:to]), " ")
}
