// Package document models a parsed template: a tree of elements, text and
// attributes owned by a single root Document.
package document

import (
	"sort"

	"github.com/conneroisu/tessera/internal/expression"
)

// NodeType tags the variants of Node.
type NodeType int

const (
	ElementNode NodeType = iota
	TextNode
)

// Node is an element or a text node.
type Node interface {
	Type() NodeType
}

// Segment is either a literal run of text or an embedded expression.
type Segment struct {
	Literal string
	Expr    expression.Expression
}

// IsExpr reports whether the segment holds an expression.
func (s Segment) IsExpr() bool { return s.Expr != nil }

// Text is literal text, optionally interleaved with expressions. Segments is
// nil when the text holds no expressions.
type Text struct {
	Literal  string
	Segments []Segment
}

func (t *Text) Type() NodeType { return TextNode }

// HasExpressions reports whether any segment is an expression.
func (t *Text) HasExpressions() bool { return len(t.Segments) > 0 }

// SoleExpression returns the expression when the text consists of exactly
// one expression segment.
func (t *Text) SoleExpression() (expression.Expression, bool) {
	if t == nil || len(t.Segments) != 1 || !t.Segments[0].IsExpr() {
		return nil, false
	}
	return t.Segments[0].Expr, true
}

// Parts returns the text as segments, wrapping a plain literal in one.
func (t *Text) Parts() []Segment {
	if t.HasExpressions() {
		return t.Segments
	}
	return []Segment{{Literal: t.Literal}}
}

// Attribute is a named attribute. Value is nil when the attribute was
// written without one.
type Attribute struct {
	Name  string
	Value *Text
}

// Element is a tagged node with ordered attributes and children.
type Element struct {
	Tag      string
	Attrs    []*Attribute
	Children []Node
	parent   *Element
}

func (e *Element) Type() NodeType { return ElementNode }

// Parent returns the enclosing element, nil for the document root.
func (e *Element) Parent() *Element { return e.parent }

// Attr returns the attribute called name.
func (e *Element) Attr(name string) (*Attribute, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// HasAttr reports whether the element carries an attribute called name.
func (e *Element) HasAttr(name string) bool {
	_, ok := e.Attr(name)
	return ok
}

// LiteralAttr returns the literal value of the attribute called name. It
// fails when the attribute is absent, valueless or holds expressions.
func (e *Element) LiteralAttr(name string) (string, bool) {
	a, ok := e.Attr(name)
	if !ok || a.Value == nil || a.Value.HasExpressions() {
		return "", false
	}
	return a.Value.Literal, true
}

// SetAttr adds or replaces the attribute called name.
func (e *Element) SetAttr(name string, value *Text) {
	for _, a := range e.Attrs {
		if a.Name == name {
			a.Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, &Attribute{Name: name, Value: value})
}

// RemoveAttr drops the attribute called name.
func (e *Element) RemoveAttr(name string) {
	for i, a := range e.Attrs {
		if a.Name == name {
			e.Attrs = append(e.Attrs[:i], e.Attrs[i+1:]...)
			return
		}
	}
}

// AppendChild adds n as the last child of e.
func (e *Element) AppendChild(n Node) {
	if child, ok := n.(*Element); ok {
		child.parent = e
	}
	e.Children = append(e.Children, n)
}

// Document is the root element of one template.
type Document struct {
	Element
	Name string
	// Slots holds the names of the named slots the template declares.
	Slots map[string]struct{}
	// CatchAll is set when the template declares an unnamed slot.
	CatchAll bool
	Meta     map[string]string
	// Tags records every element tag used in the template body.
	Tags map[string]struct{}
}

// SlotNames returns the declared slot names in sorted order.
func (d *Document) SlotNames() []string {
	names := make([]string, 0, len(d.Slots))
	for n := range d.Slots {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
