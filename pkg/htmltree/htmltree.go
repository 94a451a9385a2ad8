// Package htmltree converts HTML into annotate content trees and renders
// annotated trees back to HTML.
//
// Markers render as <span class="glossary-term" data-term-id="..." data-term="...">
// and such spans are read back as markers, so annotating rendered output again
// changes nothing. Comments and doctypes are dropped.
package htmltree

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/japaniel/glossary/pkg/annotate"
)

// MarkerClass is the class attribute of rendered markers.
const MarkerClass = "glossary-term"

// Parse reads a complete HTML document.
func Parse(r io.Reader) (annotate.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &annotate.Fragment{Children: convertChildren(doc)}, nil
}

// ParseFragment reads an HTML fragment as it would appear inside <body>.
func ParseFragment(r io.Reader) (annotate.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(r, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse html fragment: %w", err)
	}
	var children []annotate.Node
	for _, n := range nodes {
		if c := convert(n); c != nil {
			children = append(children, c)
		}
	}
	return &annotate.Fragment{Children: children}, nil
}

// ParseString is ParseFragment over a string.
func ParseString(s string) (annotate.Node, error) {
	return ParseFragment(strings.NewReader(s))
}

func convertChildren(n *html.Node) []annotate.Node {
	var out []annotate.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if conv := convert(c); conv != nil {
			out = append(out, conv)
		}
	}
	return out
}

func convert(n *html.Node) annotate.Node {
	switch n.Type {
	case html.TextNode:
		return &annotate.Text{Value: n.Data}
	case html.DocumentNode:
		return &annotate.Fragment{Children: convertChildren(n)}
	case html.ElementNode:
		if m := asMarker(n); m != nil {
			return m
		}
		e := &annotate.Element{Tag: n.Data, Children: convertChildren(n)}
		for _, a := range n.Attr {
			key := a.Key
			if a.Namespace != "" {
				key = a.Namespace + ":" + a.Key
			}
			e.Attrs = append(e.Attrs, annotate.Attr{Key: key, Val: a.Val})
			if key == "data-glossary" && a.Val == "off" {
				e.Skip = true
			}
		}
		return e
	default:
		return nil
	}
}

func asMarker(n *html.Node) *annotate.Marker {
	if n.DataAtom != atom.Span {
		return nil
	}
	var class, id, term string
	for _, a := range n.Attr {
		switch a.Key {
		case "class":
			class = a.Val
		case "data-term-id":
			id = a.Val
		case "data-term":
			term = a.Val
		}
	}
	if id == "" || !hasClass(class, MarkerClass) {
		return nil
	}
	return &annotate.Marker{TermID: id, Term: term, DisplayText: textContent(n)}
}

func hasClass(list, class string) bool {
	for _, c := range strings.Fields(list) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// Render writes n as HTML.
func Render(w io.Writer, n annotate.Node) error {
	for _, hn := range toHTML(n) {
		if err := html.Render(w, hn); err != nil {
			return err
		}
	}
	return nil
}

// RenderString is Render into a string.
func RenderString(n annotate.Node) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func toHTML(n annotate.Node) []*html.Node {
	if annotate.IsNil(n) {
		return nil
	}
	switch v := n.(type) {
	case *annotate.Text:
		return []*html.Node{{Type: html.TextNode, Data: v.Value}}
	case *annotate.Marker:
		span := &html.Node{
			Type:     html.ElementNode,
			Data:     "span",
			DataAtom: atom.Span,
			Attr: []html.Attribute{
				{Key: "class", Val: MarkerClass},
				{Key: "data-term-id", Val: v.TermID},
				{Key: "data-term", Val: v.Term},
			},
		}
		span.AppendChild(&html.Node{Type: html.TextNode, Data: v.DisplayText})
		return []*html.Node{span}
	case *annotate.Fragment:
		var out []*html.Node
		for _, c := range v.Children {
			out = append(out, toHTML(c)...)
		}
		return out
	case *annotate.Element:
		el := &html.Node{Type: html.ElementNode, Data: v.Tag, DataAtom: atom.Lookup([]byte(v.Tag))}
		for _, a := range v.Attrs {
			el.Attr = append(el.Attr, html.Attribute{Key: a.Key, Val: a.Val})
		}
		for _, c := range v.Children {
			for _, hn := range toHTML(c) {
				el.AppendChild(hn)
			}
		}
		return []*html.Node{el}
	default:
		return nil
	}
}
