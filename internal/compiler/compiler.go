package compiler

import (
	"sort"
	"strings"

	"github.com/conneroisu/tessera/internal/document"
)

const (
	slotTag  = "slot"
	slotAttr = "slot"
	metaTag  = "t:meta"
)

// inlineSlots is the slot vocabulary of the inline control construct.
var inlineSlots = []string{"else", "empty"}

var attrQuoteEscaper = strings.NewReplacer(`"`, "&quot;")

// Catalog gives the compiler access to the documents of registered
// templates. It decides which tags are template calls and which slots a
// call may fill.
type Catalog interface {
	Document(name string) (*document.Document, bool)
}

// Result is a compiled template.
type Result struct {
	Program Program
	// Consulted lists every tag name that was looked up in the catalog,
	// whether or not it was found. A change to any of them can change the
	// compiled output.
	Consulted []string
}

// Compile compiles the body of doc. The root <template> wrapper itself
// produces no output.
func Compile(doc *document.Document, catalog Catalog) Result {
	c := &compiler{catalog: catalog, consulted: make(map[string]struct{})}

	var e emitter
	for _, child := range doc.Children {
		c.visit(&e, child)
	}

	consulted := make([]string, 0, len(c.consulted))
	for name := range c.consulted {
		consulted = append(consulted, name)
	}
	sort.Strings(consulted)

	return Result{Program: e.prog, Consulted: consulted}
}

type compiler struct {
	catalog   Catalog
	consulted map[string]struct{}
}

func (c *compiler) lookup(name string) (*document.Document, bool) {
	c.consulted[name] = struct{}{}
	if c.catalog == nil {
		return nil, false
	}
	return c.catalog.Document(name)
}

func (c *compiler) subtree(n document.Node) Program {
	var e emitter
	c.visit(&e, n)
	return e.prog
}

func (c *compiler) visit(e *emitter, n document.Node) {
	switch n := n.(type) {
	case *document.Text:
		c.text(e, n)
	case *document.Element:
		c.element(e, n)
	}
}

func (c *compiler) text(e *emitter, t *document.Text) {
	if !t.HasExpressions() {
		e.raw(t.Literal)
		return
	}
	for _, seg := range t.Segments {
		if seg.IsExpr() {
			e.emit(Instruction{Op: OpExpr, Expr: seg.Expr})
		} else {
			e.raw(seg.Literal)
		}
	}
}

func (c *compiler) element(e *emitter, el *document.Element) {
	switch el.Tag {
	case slotTag:
		name, ok := el.LiteralAttr("name")
		if !ok {
			name = CatchAll
		}
		e.emit(Instruction{Op: OpSlot, Slot: name})
		return
	case metaTag:
		return
	case InlineTarget:
		e.emit(Instruction{Op: OpTemplate, Call: c.call(el, nil)})
		return
	}

	if target, ok := c.lookup(el.Tag); ok {
		e.emit(Instruction{Op: OpTemplate, Call: c.call(el, target)})
		return
	}

	c.passthrough(e, el)
}

// call captures a template call site. target is nil for the inline
// construct.
func (c *compiler) call(el *document.Element, target *document.Document) *TemplateCall {
	vocabulary, catchAll := inlineSlots, true
	if target != nil {
		vocabulary, catchAll = target.SlotNames(), target.CatchAll
	}

	call := &TemplateCall{Target: el.Tag, Slots: make(map[string][]Program)}

	for _, name := range vocabulary {
		var progs []Program
		for _, child := range el.Children {
			if ce, ok := child.(*document.Element); ok {
				if v, ok := ce.LiteralAttr(slotAttr); ok && v == name {
					progs = append(progs, c.subtree(ce))
				}
			}
		}
		call.Slots[name] = progs
	}

	if catchAll {
		var progs []Program
		for _, child := range el.Children {
			if ce, ok := child.(*document.Element); ok && ce.HasAttr(slotAttr) {
				continue
			}
			if prog := c.subtree(child); len(prog) > 0 {
				progs = append(progs, prog)
			}
		}
		call.Slots[CatchAll] = progs
	}

	for _, a := range el.Attrs {
		ca := CallAttr{Name: a.Name, Valueless: a.Value == nil}
		if a.Value != nil {
			ca.Segments = a.Value.Parts()
		}
		call.Attrs = append(call.Attrs, ca)
	}

	return call
}

func (c *compiler) passthrough(e *emitter, el *document.Element) {
	e.raw("<" + el.Tag)

	for _, a := range el.Attrs {
		if a.Name == slotAttr {
			continue
		}
		name := sanitizeAttrName(a.Name)
		if name == "" {
			continue
		}
		e.raw(" " + name)
		if a.Value == nil {
			continue
		}

		e.raw(`="`)
		if a.Value.HasExpressions() {
			for _, seg := range a.Value.Segments {
				if seg.IsExpr() {
					e.emit(Instruction{Op: OpExpr, Expr: seg.Expr})
				} else {
					e.raw(attrQuoteEscaper.Replace(seg.Literal))
				}
			}
		} else {
			e.raw(attrQuoteEscaper.Replace(a.Value.Literal))
		}
		e.raw(`"`)
	}
	e.raw(">")

	for _, child := range el.Children {
		c.visit(e, child)
	}

	e.raw("</" + el.Tag + ">")
}

// sanitizeAttrName keeps only the characters allowed in an emitted
// attribute name.
func sanitizeAttrName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == ':', r == '.':
			return r
		}
		return -1
	}, name)
}
