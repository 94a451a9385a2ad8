package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(spans []Span) []string {
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out
}

func TestLongestMatchWins(t *testing.T) {
	// Deliberately passed shortest first: Compile must re-sort.
	m := Compile([]string{"Canal", "Root Canal"}, Options{})

	spans := m.FindAll("a root canal infection")
	require.Len(t, spans, 1)
	assert.Equal(t, "root canal", spans[0].Text)
	assert.Equal(t, 2, spans[0].Start)
	assert.Equal(t, 12, spans[0].End)

	// The shorter alias still matches on its own.
	assert.Equal(t, []string{"canal"}, texts(m.FindAll("the canal was narrow")))
}

func TestWordBoundaries(t *testing.T) {
	m := Compile([]string{"Crown"}, Options{})
	assert.Empty(t, m.FindAll("crowning achievement"))
	assert.Empty(t, m.FindAll("overcrown"))
	assert.Equal(t, []string{"Crown"}, texts(m.FindAll("A Crown, fitted.")))
}

func TestEscapesMetacharacters(t *testing.T) {
	m := Compile([]string{"C++ (dental)", "a.b"}, Options{})
	assert.Equal(t, []string{"C++ (dental)"}, texts(m.FindAll("use C++ (dental) daily")))
	assert.Empty(t, m.FindAll("axb"))
	assert.Equal(t, []string{"a.b"}, texts(m.FindAll("see a.b now")))
}

func TestCaseSensitivity(t *testing.T) {
	insensitive := Compile([]string{"Bruxism"}, Options{})
	assert.Len(t, insensitive.FindAll("BRUXISM and bruxism"), 2)

	sensitive := Compile([]string{"Bruxism"}, Options{CaseSensitive: true})
	assert.Equal(t, []string{"Bruxism"}, texts(sensitive.FindAll("bruxism or Bruxism")))
}

func TestEmptyAliasListNeverMatches(t *testing.T) {
	m := Compile(nil, Options{})
	assert.True(t, m.Empty())
	assert.Equal(t, 0, m.Len())
	assert.Nil(t, m.FindAll("anything at all"))

	m = Compile([]string{""}, Options{})
	assert.True(t, m.Empty())
}

func TestNonASCIIEdgesHaveNoAnchor(t *testing.T) {
	m := Compile([]string{"歯周病"}, Options{})
	assert.Equal(t, []string{"歯周病"}, texts(m.FindAll("彼は歯周病です")))
}

type rejectAll struct{}

func (rejectAll) Accept(string, int, int) bool { return false }

func TestBoundaryCheckerFilters(t *testing.T) {
	m := Compile([]string{"Crown"}, Options{Boundary: rejectAll{}})
	assert.Empty(t, m.FindAll("a crown"))
}

func TestNonOverlapping(t *testing.T) {
	m := Compile([]string{"gum", "gum disease", "disease"}, Options{})
	assert.Equal(t, []string{"gum disease", "disease"}, texts(m.FindAll("gum disease is a disease")))
}
