// Package matcher compiles a glossary alias list into a single longest-match-first pattern.
package matcher

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Span is one match inside a piece of text. Start and End are byte offsets.
type Span struct {
	Start int
	End   int
	Text  string // the text as it appears in the input
}

// BoundaryChecker accepts or rejects a candidate match by looking at its
// surroundings. It lets scripts without spaces refuse matches that cut a word.
type BoundaryChecker interface {
	Accept(text string, start, end int) bool
}

// Options configures Compile.
type Options struct {
	CaseSensitive bool
	Boundary      BoundaryChecker
}

// Matcher is a compiled alias pattern. It is safe for concurrent use.
type Matcher struct {
	re       *regexp.Regexp
	boundary BoundaryChecker
	aliases  int
}

// Compile builds one alternation from aliases. Aliases are re-sorted longest
// first so that a longer phrase always wins over any alias nested inside it.
// An empty list yields a matcher that never matches.
func Compile(aliases []string, opts Options) *Matcher {
	sorted := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if a != "" {
			sorted = append(sorted, a)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i]) > utf8.RuneCountInString(sorted[j])
	})

	m := &Matcher{boundary: opts.Boundary, aliases: len(sorted)}
	if len(sorted) == 0 {
		return m
	}

	parts := make([]string, len(sorted))
	for i, a := range sorted {
		parts[i] = anchored(a)
	}
	pattern := "(?:" + strings.Join(parts, "|") + ")"
	if !opts.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	// QuoteMeta output is always a valid expression, so MustCompile cannot panic here.
	m.re = regexp.MustCompile(pattern)
	return m
}

// anchored escapes the alias and adds \b on each edge that is an ASCII word
// character. RE2's \b only understands ASCII, so other edges stay open and are
// left to the BoundaryChecker.
func anchored(alias string) string {
	quoted := regexp.QuoteMeta(alias)
	first, _ := utf8.DecodeRuneInString(alias)
	last, _ := utf8.DecodeLastRuneInString(alias)
	if isASCIIWord(first) {
		quoted = `\b` + quoted
	}
	if isASCIIWord(last) {
		quoted += `\b`
	}
	return quoted
}

func isASCIIWord(r rune) bool {
	return r == '_' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

// Empty reports whether the matcher has no aliases.
func (m *Matcher) Empty() bool { return m.re == nil }

// Len returns the number of compiled aliases.
func (m *Matcher) Len() int { return m.aliases }

// FindAll returns the non-overlapping matches in text from left to right.
func (m *Matcher) FindAll(text string) []Span {
	if m.re == nil || text == "" {
		return nil
	}
	locs := m.re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	spans := make([]Span, 0, len(locs))
	for _, loc := range locs {
		if loc[0] == loc[1] {
			continue
		}
		if m.boundary != nil && !m.boundary.Accept(text, loc[0], loc[1]) {
			continue
		}
		spans = append(spans, Span{Start: loc[0], End: loc[1], Text: text[loc[0]:loc[1]]})
	}
	return spans
}
