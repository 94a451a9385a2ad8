// Package annotate rewrites a content tree so that glossary terms become Marker nodes.
//
// The walker reads the input tree and builds a new one; input nodes are never
// modified and subtrees without matches are returned as the very same nodes.
// Within a block (a paragraph, list item, or run of text between blank lines)
// each alias and each term is annotated at most once, and at most
// MaxDistinctTermsPerBlock distinct terms are annotated in total.
package annotate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/japaniel/glossary/pkg/dictionary"
	"github.com/japaniel/glossary/pkg/matcher"
)

const (
	DefaultMaxDistinctTermsPerBlock = 3
	DefaultMaxDepth                 = 256
)

var (
	skipTags = map[string]bool{
		"code": true, "pre": true, "script": true, "style": true, "a": true,
		"button": true, "kbd": true, "samp": true, "textarea": true,
		"head": true, "title": true, "noscript": true, "iframe": true,
		"svg": true, "math": true, "select": true, "option": true,
	}
	blockTags = map[string]bool{
		"p": true, "div": true, "li": true, "blockquote": true, "section": true,
		"article": true, "td": true, "th": true, "dd": true, "dt": true,
		"figcaption": true, "ul": true, "ol": true, "table": true, "tr": true,
		"header": true, "footer": true, "main": true, "aside": true, "nav": true,
	}
	headingTags = map[string]bool{
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	}

	markdownHeading = regexp.MustCompile(`^#{1,6}\s`)
)

// Index is the read side of a match index snapshot.
type Index interface {
	Dictionary() *dictionary.Dictionary
	Matcher() *matcher.Matcher
}

// Options tunes a single annotation pass. Start from DefaultOptions.
type Options struct {
	MaxDistinctTermsPerBlock int
	SkipHeadings             bool
	// CaseSensitive requires the text to match the alias spelling exactly,
	// even when the index matcher was compiled case-insensitively.
	CaseSensitive bool
	// OnlyBasic leaves advanced terms unannotated.
	OnlyBasic bool
	MaxDepth  int
}

// DefaultOptions returns the options used for article rendering.
func DefaultOptions() Options {
	return Options{
		MaxDistinctTermsPerBlock: DefaultMaxDistinctTermsPerBlock,
		SkipHeadings:             true,
		MaxDepth:                 DefaultMaxDepth,
	}
}

// AnnotationSkipped reports a subtree the walker could not process. The subtree
// is kept unmodified in the output.
type AnnotationSkipped struct {
	Path   string
	Reason string
}

func (e *AnnotationSkipped) Error() string {
	return fmt.Sprintf("annotation skipped at %s: %s", e.Path, e.Reason)
}

// Result is the outcome of Annotate.
type Result struct {
	Root Node
	// TermsFound lists annotated term ids in first-seen order.
	TermsFound []string
	Skipped    []*AnnotationSkipped
}

// Annotate returns a copy of root with glossary terms replaced by markers.
// It never fails: problems are reported in Result.Skipped and the affected
// subtree is left as it was.
func Annotate(idx Index, root Node, opts Options) Result {
	if opts.MaxDistinctTermsPerBlock <= 0 {
		opts.MaxDistinctTermsPerBlock = DefaultMaxDistinctTermsPerBlock
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if idx == nil || idx.Dictionary() == nil || idx.Matcher() == nil {
		return Result{Root: root}
	}

	w := &walker{
		opts:  opts,
		dict:  idx.Dictionary(),
		match: idx.Matcher(),
		found: make(map[string]bool),
	}
	out := w.child(root, newBlock(), 0, "")
	return Result{Root: out, TermsFound: w.termsFound, Skipped: w.skipped}
}

// block is the dedup and density state of one paragraph-equivalent region,
// plus line tracking for text that spans several nodes.
type block struct {
	aliases map[string]bool
	terms   map[string]bool

	lineStart bool // the next text begins a new line
	lineBlank bool // the current line has only whitespace so far
	heading   bool // the current line is a markdown heading
}

func newBlock() *block {
	return &block{
		aliases:   make(map[string]bool),
		terms:     make(map[string]bool),
		lineStart: true,
		lineBlank: true,
	}
}

func (b *block) reset() {
	clear(b.aliases)
	clear(b.terms)
}

// endLine closes the current line, as a block-level element or newline does.
func (b *block) endLine() {
	b.lineStart = true
	b.lineBlank = true
	b.heading = false
}

type walker struct {
	opts       Options
	dict       *dictionary.Dictionary
	match      *matcher.Matcher
	found      map[string]bool
	termsFound []string
	skipped    []*AnnotationSkipped
}

// child processes one node, converting failures and panics into an
// AnnotationSkipped entry and returning the original node.
func (w *walker) child(n Node, b *block, depth int, path string) (out Node) {
	defer func() {
		if r := recover(); r != nil {
			w.skipped = append(w.skipped, &AnnotationSkipped{Path: pathOrRoot(path), Reason: fmt.Sprint(r)})
			out = n
		}
	}()
	res, err := w.walk(n, b, depth, path)
	if err != nil {
		if skip, ok := err.(*AnnotationSkipped); ok {
			w.skipped = append(w.skipped, skip)
		} else {
			w.skipped = append(w.skipped, &AnnotationSkipped{Path: pathOrRoot(path), Reason: err.Error()})
		}
		return n
	}
	return res
}

func (w *walker) walk(n Node, b *block, depth int, path string) (Node, error) {
	if depth > w.opts.MaxDepth {
		return nil, &AnnotationSkipped{Path: pathOrRoot(path), Reason: "maximum depth exceeded"}
	}

	switch v := n.(type) {
	case nil:
		return nil, &AnnotationSkipped{Path: pathOrRoot(path), Reason: "nil node"}
	case *Text:
		if v == nil {
			return nil, &AnnotationSkipped{Path: pathOrRoot(path), Reason: "nil text node"}
		}
		return w.text(v, b, path)
	case *Marker:
		if v == nil {
			return nil, &AnnotationSkipped{Path: pathOrRoot(path), Reason: "nil marker"}
		}
		// Markers from an earlier pass count against the block so a re-run
		// makes the same decisions.
		b.aliases[strings.ToLower(v.DisplayText)] = true
		b.terms[v.TermID] = true
		b.lineStart, b.lineBlank = false, false
		w.note(v.TermID)
		return v, nil
	case *Fragment:
		if v == nil {
			return nil, &AnnotationSkipped{Path: pathOrRoot(path), Reason: "nil fragment"}
		}
		children, changed := w.children(v.Children, b, depth, path)
		if !changed {
			return v, nil
		}
		return &Fragment{Children: children}, nil
	case *Element:
		if v == nil {
			return nil, &AnnotationSkipped{Path: pathOrRoot(path), Reason: "nil element"}
		}
		return w.element(v, b, depth, path)
	default:
		return nil, &AnnotationSkipped{Path: pathOrRoot(path), Reason: fmt.Sprintf("unknown node type %T", n)}
	}
}

func (w *walker) element(e *Element, b *block, depth int, path string) (Node, error) {
	tag := strings.ToLower(e.Tag)
	if tag == "" {
		return nil, &AnnotationSkipped{Path: pathOrRoot(path), Reason: "element without tag"}
	}
	if Protected(e) {
		b.lineStart, b.lineBlank = false, false
		return e, nil
	}

	var inner *block
	switch {
	case headingTags[tag]:
		b.reset()
		b.endLine()
		if w.opts.SkipHeadings {
			return e, nil
		}
		inner = newBlock()
	case blockTags[tag]:
		b.reset()
		b.endLine()
		inner = newBlock()
	default:
		inner = b
	}

	children, changed := w.children(e.Children, inner, depth, path+"/"+tag)
	if inner != b {
		b.reset()
		b.endLine()
	}
	if !changed {
		return e, nil
	}
	out := *e
	out.Children = children
	return &out, nil
}

// Protected reports whether e and its subtree are never annotated.
func Protected(e *Element) bool {
	return e.Skip || skipTags[strings.ToLower(e.Tag)]
}

// children walks a child list and only allocates a new slice once a child changes.
func (w *walker) children(nodes []Node, b *block, depth int, path string) ([]Node, bool) {
	var out []Node
	for i, c := range nodes {
		res := w.child(c, b, depth+1, path+"["+strconv.Itoa(i)+"]")
		if out == nil && res != c {
			out = make([]Node, len(nodes))
			copy(out, nodes[:i])
		}
		if out != nil {
			out[i] = res
		}
	}
	if out == nil {
		return nodes, false
	}
	return out, true
}

type replacement struct {
	start, end int
	term       dictionary.Term
}

func (w *walker) text(t *Text, b *block, path string) (Node, error) {
	if !utf8.ValidString(t.Value) {
		return nil, &AnnotationSkipped{Path: pathOrRoot(path), Reason: "text is not valid UTF-8"}
	}

	var accepted []replacement
	value := t.Value
	pos := 0
	for {
		nl := strings.IndexByte(value[pos:], '\n')
		end := len(value)
		if nl >= 0 {
			end = pos + nl
		}
		line := value[pos:end]

		if b.lineStart && (line != "" || nl >= 0) {
			b.lineStart = false
			b.lineBlank = true
			b.heading = w.opts.SkipHeadings && markdownHeading.MatchString(line)
			if b.heading {
				b.reset()
			}
		}
		if strings.TrimSpace(line) != "" {
			b.lineBlank = false
		}
		if !b.heading && line != "" {
			accepted = w.scan(line, pos, b, accepted)
		}

		if nl < 0 {
			break
		}
		if b.lineBlank || b.heading {
			b.reset()
		}
		b.endLine()
		pos = end + 1
	}

	if len(accepted) == 0 {
		return t, nil
	}

	// Apply back to front so earlier offsets stay valid.
	parts := make([]Node, 0, 2*len(accepted)+1)
	cursor := len(value)
	for i := len(accepted) - 1; i >= 0; i-- {
		r := accepted[i]
		if r.end < cursor {
			parts = append(parts, &Text{Value: value[r.end:cursor]})
		}
		parts = append(parts, &Marker{TermID: r.term.ID, Term: r.term.Term, DisplayText: value[r.start:r.end]})
		cursor = r.start
	}
	if cursor > 0 {
		parts = append(parts, &Text{Value: value[:cursor]})
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return &Fragment{Children: parts}, nil
}

// scan runs the matcher over one line and appends the matches the block accepts.
func (w *walker) scan(line string, offset int, b *block, acc []replacement) []replacement {
	for _, span := range w.match.FindAll(line) {
		term, form, ok := w.dict.Resolve(span.Text)
		if !ok {
			continue
		}
		if w.opts.CaseSensitive && span.Text != form {
			continue
		}
		if w.opts.OnlyBasic && !term.IsBasic() {
			continue
		}
		alias := strings.ToLower(span.Text)
		if b.aliases[alias] || b.terms[term.ID] {
			continue
		}
		if len(b.terms) >= w.opts.MaxDistinctTermsPerBlock {
			continue
		}
		b.aliases[alias] = true
		b.terms[term.ID] = true
		w.note(term.ID)
		acc = append(acc, replacement{start: offset + span.Start, end: offset + span.End, term: term})
	}
	return acc
}

func (w *walker) note(termID string) {
	if !w.found[termID] {
		w.found[termID] = true
		w.termsFound = append(w.termsFound, termID)
	}
}

func pathOrRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
