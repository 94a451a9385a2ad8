// Package segment finds word boundaries in text written without spaces, using the
// kagome morphological analyzer with the IPA dictionary.
package segment

import (
	"strings"
	"unicode/utf8"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// window is how many bytes of context on each side of a match get tokenized.
const window = 48

// Token is a single analyzed unit of text with byte offsets into the analyzed string.
type Token struct {
	Surface string
	Start   int
	End     int
}

// Segmenter wraps a kagome tokenizer. It is safe for concurrent use.
type Segmenter struct {
	t *tokenizer.Tokenizer
}

// New creates a segmenter backed by the IPA dictionary.
func New() (*Segmenter, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Segmenter{t: t}, nil
}

// Tokens splits text into tokens. Offsets are bytes into text.
func (s *Segmenter) Tokens(text string) []Token {
	var out []Token
	cursor := 0
	for _, tok := range s.t.Tokenize(text) {
		if tok.Class == tokenizer.DUMMY || tok.Surface == "" {
			continue
		}
		idx := strings.Index(text[cursor:], tok.Surface)
		if idx < 0 {
			continue
		}
		start := cursor + idx
		end := start + len(tok.Surface)
		cursor = end
		out = append(out, Token{Surface: tok.Surface, Start: start, End: end})
	}
	return out
}

// Accept implements matcher.BoundaryChecker. A match whose edges are plain ASCII
// is accepted as is (the regexp already anchored it); otherwise both ends must
// land on token boundaries of the surrounding text.
func (s *Segmenter) Accept(text string, start, end int) bool {
	if asciiEdge(text, start, true) && asciiEdge(text, end, false) {
		return true
	}

	ws := start - window
	if ws < 0 {
		ws = 0
	}
	for ws > 0 && !utf8.RuneStart(text[ws]) {
		ws--
	}
	we := end + window
	if we > len(text) {
		we = len(text)
	}
	for we < len(text) && !utf8.RuneStart(text[we]) {
		we++
	}

	bounds := map[int]bool{0: true, we - ws: true}
	for _, tok := range s.Tokens(text[ws:we]) {
		bounds[tok.Start] = true
		bounds[tok.End] = true
	}
	return bounds[start-ws] && bounds[end-ws]
}

// asciiEdge reports whether the rune on the inner side of the boundary at pos is ASCII.
func asciiEdge(text string, pos int, leading bool) bool {
	var r rune
	if leading {
		r, _ = utf8.DecodeRuneInString(text[pos:])
	} else {
		r, _ = utf8.DecodeLastRuneInString(text[:pos])
	}
	return r < utf8.RuneSelf
}
