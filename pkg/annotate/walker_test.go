package annotate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/glossary/pkg/dictionary"
	"github.com/japaniel/glossary/pkg/matcher"
)

type testIndex struct {
	dict  *dictionary.Dictionary
	match *matcher.Matcher
}

func (i testIndex) Dictionary() *dictionary.Dictionary { return i.dict }
func (i testIndex) Matcher() *matcher.Matcher          { return i.match }

func dentalIndex(t *testing.T) testIndex {
	t.Helper()
	d := dictionary.Build([]dictionary.Term{
		{ID: "bruxism", Term: "Bruxism", Definition: "Grinding or clenching of the teeth.", Aliases: []string{"teeth grinding"}},
		{ID: "plaque", Term: "Plaque", Definition: "A sticky film of bacteria."},
		{ID: "tartar", Term: "Tartar", Definition: "Hardened plaque.", Aliases: []string{"calculus"}},
		{ID: "gingivitis", Term: "Gingivitis", Definition: "Inflammation of the gums."},
		{ID: "root-canal", Term: "Root Canal", Definition: "Treatment of the tooth pulp.", Difficulty: "advanced"},
		{ID: "crown", Term: "Crown", Definition: "A cap placed over a tooth."},
	}, dictionary.BuildOptions{})
	require.Empty(t, d.Warnings())
	return testIndex{dict: d, match: matcher.Compile(d.Aliases(), matcher.Options{})}
}

func p(children ...Node) *Element { return &Element{Tag: "p", Children: children} }
func txt(s string) *Text         { return &Text{Value: s} }

func markerIDs(n Node) []string {
	var ids []string
	for _, m := range Markers(n) {
		ids = append(ids, m.TermID)
	}
	return ids
}

func TestAnnotateCapsDistinctTermsPerBlock(t *testing.T) {
	idx := dentalIndex(t)
	root := p(txt("Plaque and tartar cause gingivitis, which may need a root canal or a crown."))

	res := Annotate(idx, root, DefaultOptions())

	assert.Equal(t, []string{"plaque", "tartar", "gingivitis"}, markerIDs(res.Root))
	assert.Equal(t, []string{"plaque", "tartar", "gingivitis"}, res.TermsFound)
	assert.Equal(t, PlainText(root), PlainText(res.Root))
	assert.Empty(t, res.Skipped)
}

func TestAnnotateCustomCap(t *testing.T) {
	idx := dentalIndex(t)
	root := p(txt("Plaque and tartar cause gingivitis."))

	opts := DefaultOptions()
	opts.MaxDistinctTermsPerBlock = 1
	res := Annotate(idx, root, opts)
	assert.Equal(t, []string{"plaque"}, markerIDs(res.Root))

	opts.MaxDistinctTermsPerBlock = 0
	res = Annotate(idx, root, opts)
	assert.Len(t, Markers(res.Root), 3)
}

func TestAnnotateDedupsAliasAndTerm(t *testing.T) {
	idx := dentalIndex(t)
	root := p(txt("Bruxism, also called teeth grinding, is common. Bruxism hurts."))

	res := Annotate(idx, root, DefaultOptions())

	markers := Markers(res.Root)
	require.Len(t, markers, 1)
	assert.Equal(t, "bruxism", markers[0].TermID)
	assert.Equal(t, "Bruxism", markers[0].DisplayText)
}

func TestAnnotateMatchesAliasWithOriginalCasing(t *testing.T) {
	idx := dentalIndex(t)
	root := p(txt("Teeth grinding at night is a sign of bruxism."))

	res := Annotate(idx, root, DefaultOptions())

	markers := Markers(res.Root)
	require.Len(t, markers, 1)
	assert.Equal(t, Marker{TermID: "bruxism", Term: "Bruxism", DisplayText: "Teeth grinding"}, *markers[0])
	assert.Equal(t, "Teeth grinding at night is a sign of bruxism.", PlainText(res.Root))
}

func TestAnnotateIsIdempotent(t *testing.T) {
	idx := dentalIndex(t)
	root := &Fragment{Children: []Node{
		p(txt("Plaque and tartar cause gingivitis, then plaque again and a crown.")),
		p(txt("Bruxism wears enamel; teeth grinding "), &Element{Tag: "em", Children: []Node{txt("and calculus")}}, txt(" build up.")),
	}}

	first := Annotate(idx, root, DefaultOptions())
	second := Annotate(idx, first.Root, DefaultOptions())

	assert.True(t, Equal(first.Root, second.Root))
	assert.Equal(t, first.TermsFound, second.TermsFound)
	assert.Len(t, Markers(second.Root), len(Markers(first.Root)))
}

func TestAnnotateWithoutMatchesReturnsSameTree(t *testing.T) {
	idx := dentalIndex(t)
	root := &Element{Tag: "div", Children: []Node{
		p(txt("Brush twice a day.")),
		p(txt("Floss once.")),
	}}

	res := Annotate(idx, root, DefaultOptions())

	assert.True(t, res.Root == Node(root))
	assert.True(t, Equal(root, res.Root))
	assert.Empty(t, res.TermsFound)
}

func TestAnnotateDoesNotMutateInput(t *testing.T) {
	idx := dentalIndex(t)
	inner := txt("Plaque forms daily.")
	root := p(inner)

	res := Annotate(idx, root, DefaultOptions())

	require.Len(t, Markers(res.Root), 1)
	assert.Equal(t, "Plaque forms daily.", inner.Value)
	assert.True(t, root.Children[0] == Node(inner))
}

func TestAnnotateSkipsProtectedElements(t *testing.T) {
	idx := dentalIndex(t)
	root := p(
		txt("Use a "),
		&Element{Tag: "code", Children: []Node{txt("plaque")}},
		txt(" or "),
		&Element{Tag: "a", Attrs: []Attr{{Key: "href", Val: "/crown"}}, Children: []Node{txt("crown")}},
		txt(" or "),
		&Element{Tag: "span", Skip: true, Children: []Node{txt("tartar")}},
	)

	res := Annotate(idx, root, DefaultOptions())

	assert.Empty(t, Markers(res.Root))
}

func TestAnnotateHeadings(t *testing.T) {
	idx := dentalIndex(t)
	root := &Fragment{Children: []Node{
		&Element{Tag: "h2", Children: []Node{txt("Plaque")}},
		p(txt("Plaque builds up.")),
	}}

	res := Annotate(idx, root, DefaultOptions())
	markers := Markers(res.Root)
	require.Len(t, markers, 1)
	heading := res.Root.(*Fragment).Children[0]
	assert.True(t, heading == root.Children[0])

	opts := DefaultOptions()
	opts.SkipHeadings = false
	res = Annotate(idx, root, opts)
	assert.Len(t, Markers(res.Root), 2)
}

func TestAnnotateBlocksResetState(t *testing.T) {
	idx := dentalIndex(t)
	root := &Element{Tag: "div", Children: []Node{
		p(txt("Plaque forms.")),
		p(txt("Plaque hardens.")),
	}}

	res := Annotate(idx, root, DefaultOptions())
	assert.Equal(t, []string{"plaque", "plaque"}, markerIDs(res.Root))
	assert.Equal(t, []string{"plaque"}, res.TermsFound)
}

func TestAnnotateInlineElementsShareBlock(t *testing.T) {
	idx := dentalIndex(t)
	root := p(txt("Plaque "), &Element{Tag: "em", Children: []Node{txt("plaque")}})

	res := Annotate(idx, root, DefaultOptions())
	assert.Len(t, Markers(res.Root), 1)
}

func TestAnnotateBlankLineStartsNewBlock(t *testing.T) {
	idx := dentalIndex(t)

	res := Annotate(idx, txt("Plaque forms.\n\nPlaque hardens."), DefaultOptions())
	assert.Len(t, Markers(res.Root), 2)

	res = Annotate(idx, txt("Plaque forms.\nPlaque hardens."), DefaultOptions())
	assert.Len(t, Markers(res.Root), 1)

	res = Annotate(idx, txt("Plaque forms.\n   \nPlaque hardens."), DefaultOptions())
	assert.Len(t, Markers(res.Root), 2)
}

func TestAnnotateSkipsMarkdownHeadingLines(t *testing.T) {
	idx := dentalIndex(t)

	res := Annotate(idx, txt("# Plaque\nPlaque forms on teeth."), DefaultOptions())
	markers := Markers(res.Root)
	require.Len(t, markers, 1)
	assert.Equal(t, "# Plaque\nPlaque forms on teeth.", PlainText(res.Root))
	frag := res.Root.(*Fragment)
	assert.Equal(t, "# Plaque\n", frag.Children[0].(*Text).Value)

	opts := DefaultOptions()
	opts.SkipHeadings = false
	res = Annotate(idx, txt("# Plaque\nPlaque forms."), opts)
	assert.Len(t, Markers(res.Root), 1)
	assert.Equal(t, "# ", res.Root.(*Fragment).Children[0].(*Text).Value)
}

func TestAnnotateOnlyBasic(t *testing.T) {
	idx := dentalIndex(t)
	root := p(txt("A root canal may precede a crown."))

	opts := DefaultOptions()
	opts.OnlyBasic = true
	res := Annotate(idx, root, opts)
	assert.Equal(t, []string{"crown"}, markerIDs(res.Root))
}

func TestAnnotateCaseSensitive(t *testing.T) {
	idx := dentalIndex(t)
	opts := DefaultOptions()
	opts.CaseSensitive = true

	res := Annotate(idx, p(txt("a crown, a Crown")), opts)
	markers := Markers(res.Root)
	require.Len(t, markers, 1)
	assert.Equal(t, "Crown", markers[0].DisplayText)
}

func TestAnnotateRecordsSkippedSubtrees(t *testing.T) {
	idx := dentalIndex(t)
	root := p(txt("Plaque forms."), nil, txt("Tartar hardens."))

	res := Annotate(idx, root, DefaultOptions())

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "/p[1]", res.Skipped[0].Path)
	assert.Equal(t, "nil node", res.Skipped[0].Reason)
	assert.Equal(t, []string{"plaque", "tartar"}, markerIDs(res.Root))
}

func TestHelpersTolerateNilChildren(t *testing.T) {
	idx := dentalIndex(t)
	root := p((*Text)(nil), (*Element)(nil), txt("plaque"), nil, (*Marker)(nil), &Fragment{Children: []Node{(*Fragment)(nil)}})

	res := Annotate(idx, root, DefaultOptions())
	require.Len(t, res.Skipped, 5)

	require.NotPanics(t, func() {
		assert.Equal(t, []string{"plaque"}, markerIDs(res.Root))
		assert.Equal(t, "plaque", PlainText(res.Root))
		assert.True(t, Equal(res.Root, res.Root))
	})
	assert.True(t, IsNil((*Text)(nil)))
	assert.True(t, Equal((*Element)(nil), nil))
	assert.False(t, Equal((*Element)(nil), txt("")))
	assert.False(t, IsNil(txt("")))
}

func TestAnnotateInvalidUTF8(t *testing.T) {
	idx := dentalIndex(t)
	bad := txt("\xff plaque")
	root := p(bad, txt(" crown"))

	res := Annotate(idx, root, DefaultOptions())

	require.Len(t, res.Skipped, 1)
	assert.Contains(t, res.Skipped[0].Error(), "UTF-8")
	assert.True(t, res.Root.(*Element).Children[0] == Node(bad))
	assert.Equal(t, []string{"crown"}, markerIDs(res.Root))
}

func TestAnnotateMaxDepth(t *testing.T) {
	idx := dentalIndex(t)
	var n Node = txt("plaque")
	for i := 0; i < 4; i++ {
		n = &Element{Tag: "span", Children: []Node{n}}
	}

	opts := DefaultOptions()
	opts.MaxDepth = 2
	res := Annotate(idx, n, opts)

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "maximum depth exceeded", res.Skipped[0].Reason)
	assert.True(t, strings.HasPrefix(res.Skipped[0].Path, "/span"))
	assert.Empty(t, Markers(res.Root))
}

func TestAnnotateEmptyTag(t *testing.T) {
	idx := dentalIndex(t)
	root := &Fragment{Children: []Node{&Element{Children: []Node{txt("plaque")}}, txt("crown")}}

	res := Annotate(idx, root, DefaultOptions())

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, []string{"crown"}, markerIDs(res.Root))
}

func TestAnnotateNilIndex(t *testing.T) {
	root := p(txt("plaque"))
	res := Annotate(nil, root, DefaultOptions())
	assert.True(t, res.Root == Node(root))
}
