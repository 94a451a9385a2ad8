package htmltree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/glossary/pkg/annotate"
	"github.com/japaniel/glossary/pkg/index"
	"github.com/japaniel/glossary/pkg/dictionary"
	"github.com/japaniel/glossary/pkg/matcher"
)

func dentalSnapshot() *index.Snapshot {
	return index.Build([]dictionary.Term{
		{ID: "bruxism", Term: "Bruxism", Definition: "Grinding of the teeth.", Aliases: []string{"teeth grinding"}},
		{ID: "crown", Term: "Crown", Definition: "A cap placed over a tooth."},
	}, dictionary.BuildOptions{}, matcher.Options{})
}

func TestRoundTripWithoutMatches(t *testing.T) {
	in := `<p class="lead">Brush <em>twice</em> a day.</p><ul><li>Floss</li></ul>`
	root, err := ParseString(in)
	require.NoError(t, err)

	out, err := RenderString(root)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestAnnotateHTML(t *testing.T) {
	root, err := ParseString(`<p>Teeth grinding at night is a sign of bruxism.</p><p>See <a href="/crown">crown</a>.</p>`)
	require.NoError(t, err)

	res := annotate.Annotate(dentalSnapshot(), root, annotate.DefaultOptions())
	out, err := RenderString(res.Root)
	require.NoError(t, err)

	assert.Equal(t,
		`<p><span class="glossary-term" data-term-id="bruxism" data-term="Bruxism">Teeth grinding</span> at night is a sign of bruxism.</p><p>See <a href="/crown">crown</a>.</p>`,
		out)
	assert.Equal(t, []string{"bruxism"}, res.TermsFound)
}

func TestRenderSkipsNilNodes(t *testing.T) {
	root := &annotate.Element{Tag: "p", Children: []annotate.Node{
		(*annotate.Text)(nil),
		&annotate.Text{Value: "A crown."},
		(*annotate.Element)(nil),
		nil,
	}}

	res := annotate.Annotate(dentalSnapshot(), root, annotate.DefaultOptions())
	out, err := RenderString(res.Root)
	require.NoError(t, err)
	assert.Equal(t, `<p>A <span class="glossary-term" data-term-id="crown" data-term="Crown">crown</span>.</p>`, out)

	out, err = RenderString((*annotate.Fragment)(nil))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRenderedMarkersParseBack(t *testing.T) {
	snap := dentalSnapshot()
	root, err := ParseString(`<p>A crown can stop teeth grinding damage.</p>`)
	require.NoError(t, err)

	first := annotate.Annotate(snap, root, annotate.DefaultOptions())
	html1, err := RenderString(first.Root)
	require.NoError(t, err)

	reparsed, err := ParseString(html1)
	require.NoError(t, err)
	assert.Equal(t, annotate.PlainText(first.Root), annotate.PlainText(reparsed))
	assert.Len(t, annotate.Markers(reparsed), 2)

	second := annotate.Annotate(snap, reparsed, annotate.DefaultOptions())
	html2, err := RenderString(second.Root)
	require.NoError(t, err)
	assert.Equal(t, html1, html2)
}

func TestOptOutAttribute(t *testing.T) {
	root, err := ParseString(`<div data-glossary="off"><p>crown</p></div><p>crown</p>`)
	require.NoError(t, err)

	res := annotate.Annotate(dentalSnapshot(), root, annotate.DefaultOptions())
	out, err := RenderString(res.Root)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, MarkerClass))
	assert.True(t, strings.HasPrefix(out, `<div data-glossary="off"><p>crown</p></div>`))
}

func TestParseDocument(t *testing.T) {
	root, err := Parse(strings.NewReader(`<!DOCTYPE html><html><head><title>Crown</title></head><body><p>A crown.</p></body></html>`))
	require.NoError(t, err)

	res := annotate.Annotate(dentalSnapshot(), root, annotate.DefaultOptions())
	out, err := RenderString(res.Root)
	require.NoError(t, err)
	assert.Contains(t, out, `<title>Crown</title>`)
	assert.Contains(t, out, `<p>A <span class="glossary-term" data-term-id="crown" data-term="Crown">crown</span>.</p>`)
}
