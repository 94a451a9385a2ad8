package annotate

import "strings"

// Node is a content tree node. The set of node kinds is closed: *Text, *Element,
// *Fragment and *Marker are the only implementations.
type Node interface {
	node()
}

// Text is a run of plain text.
type Text struct {
	Value string
}

// Attr is an element attribute. Order is preserved.
type Attr struct {
	Key string
	Val string
}

// Element is a tagged container such as a paragraph or a list item.
// Skip marks a subtree that must never be annotated.
type Element struct {
	Tag      string
	Attrs    []Attr
	Children []Node
	Skip     bool
}

// Fragment groups nodes without adding structure of its own.
type Fragment struct {
	Children []Node
}

// Marker is an annotated glossary reference. Its display text is never rescanned.
type Marker struct {
	TermID      string
	Term        string
	DisplayText string
}

func (*Text) node()     {}
func (*Element) node()  {}
func (*Fragment) node() {}
func (*Marker) node()   {}

// Attr returns the value of the attribute key.
func (e *Element) Attr(key string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// IsNil reports whether n is nil or a nil pointer of one of the node kinds.
func IsNil(n Node) bool {
	switch v := n.(type) {
	case nil:
		return true
	case *Text:
		return v == nil
	case *Element:
		return v == nil
	case *Fragment:
		return v == nil
	case *Marker:
		return v == nil
	}
	return false
}

// Walk calls fn for n and every descendant in document order. Nil nodes are
// not visited. Returning false from fn skips the node's children.
func Walk(n Node, fn func(Node) bool) {
	if IsNil(n) || !fn(n) {
		return
	}
	switch v := n.(type) {
	case *Element:
		for _, c := range v.Children {
			Walk(c, fn)
		}
	case *Fragment:
		for _, c := range v.Children {
			Walk(c, fn)
		}
	}
}

// Markers returns every marker in n in document order.
func Markers(n Node) []*Marker {
	var out []*Marker
	Walk(n, func(n Node) bool {
		if m, ok := n.(*Marker); ok {
			out = append(out, m)
		}
		return true
	})
	return out
}

// PlainText flattens n into its visible text; markers contribute their display text.
func PlainText(n Node) string {
	var b strings.Builder
	Walk(n, func(n Node) bool {
		switch v := n.(type) {
		case *Text:
			b.WriteString(v.Value)
		case *Marker:
			b.WriteString(v.DisplayText)
		}
		return true
	})
	return b.String()
}

// Equal reports whether a and b are structurally identical trees.
// Nil nodes of any kind are equal to each other.
func Equal(a, b Node) bool {
	if an, bn := IsNil(a), IsNil(b); an || bn {
		return an && bn
	}
	switch x := a.(type) {
	case *Text:
		y, ok := b.(*Text)
		return ok && x.Value == y.Value
	case *Marker:
		y, ok := b.(*Marker)
		return ok && *x == *y
	case *Fragment:
		y, ok := b.(*Fragment)
		return ok && equalChildren(x.Children, y.Children)
	case *Element:
		y, ok := b.(*Element)
		if !ok || x.Tag != y.Tag || x.Skip != y.Skip || len(x.Attrs) != len(y.Attrs) {
			return false
		}
		for i := range x.Attrs {
			if x.Attrs[i] != y.Attrs[i] {
				return false
			}
		}
		return equalChildren(x.Children, y.Children)
	}
	return false
}

func equalChildren(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
