// Package compiler turns template documents into linear render programs.
//
// A Program is a contiguous slice of tagged instructions. Structural
// constructs (slots, template calls, conditionals and loops) are resolved
// into OpSlot and OpTemplate instructions ahead of render time; the targets
// of template calls are looked up by name only when the program runs.
package compiler

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/conneroisu/tessera/internal/document"
	"github.com/conneroisu/tessera/internal/expression"
)

// CatchAll is the slot name under which a call site's unassigned children
// are stored, and the name an unnamed <slot> expands.
const CatchAll = "@unassigned"

// InlineTarget is the tag of the inline control construct.
const InlineTarget = "template"

// Op identifies the variant of an Instruction.
type Op uint8

const (
	OpRaw Op = iota
	OpExpr
	OpSlot
	OpTemplate
)

func (o Op) String() string {
	switch o {
	case OpRaw:
		return "raw"
	case OpExpr:
		return "expr"
	case OpSlot:
		return "slot"
	case OpTemplate:
		return "template"
	default:
		return "op(" + strconv.Itoa(int(o)) + ")"
	}
}

// Instruction is one step of a Program. Only the fields belonging to Op are
// set.
type Instruction struct {
	Op   Op
	Raw  []byte
	Expr expression.Expression
	Slot string
	Call *TemplateCall
}

// CallAttr is an attribute captured verbatim from a template call site.
// Valueless attributes have no segments.
type CallAttr struct {
	Name      string
	Segments  []document.Segment
	Valueless bool
}

// Single returns the expression when the attribute value is exactly one
// expression segment.
func (a CallAttr) Single() (expression.Expression, bool) {
	if len(a.Segments) != 1 || !a.Segments[0].IsExpr() {
		return nil, false
	}
	return a.Segments[0].Expr, true
}

// TemplateCall is the payload of an OpTemplate instruction.
type TemplateCall struct {
	Target string
	// Slots maps slot names to the programs compiled from the call site's
	// children, in document order.
	Slots map[string][]Program
	Attrs []CallAttr
}

// Inline reports whether the call is the inline control construct rather
// than a call to a named template.
func (c *TemplateCall) Inline() bool { return c.Target == InlineTarget }

// Attr returns the captured attribute called name.
func (c *TemplateCall) Attr(name string) (CallAttr, bool) {
	for _, a := range c.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return CallAttr{}, false
}

// Program is a compiled instruction sequence.
type Program []Instruction

// Dump writes a readable listing of p to w, indenting nested slot programs.
func (p Program) Dump(w io.Writer) error {
	return p.dump(w, "")
}

func (p Program) dump(w io.Writer, indent string) error {
	for i, in := range p {
		var err error
		switch in.Op {
		case OpRaw:
			_, err = fmt.Fprintf(w, "%s%03d raw %q\n", indent, i, in.Raw)
		case OpExpr:
			_, err = fmt.Fprintf(w, "%s%03d expr %s\n", indent, i, in.Expr.Key())
		case OpSlot:
			_, err = fmt.Fprintf(w, "%s%03d slot %s\n", indent, i, in.Slot)
		case OpTemplate:
			err = in.Call.dump(w, indent, i)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *TemplateCall) dump(w io.Writer, indent string, i int) error {
	if _, err := fmt.Fprintf(w, "%s%03d template %s", indent, i, c.Target); err != nil {
		return err
	}
	for _, a := range c.Attrs {
		if _, err := fmt.Fprintf(w, " %s", a.Name); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}

	names := make([]string, 0, len(c.Slots))
	for name := range c.Slots {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, prog := range c.Slots[name] {
			if _, err := fmt.Fprintf(w, "%s    [%s]\n", indent, name); err != nil {
				return err
			}
			if err := prog.dump(w, indent+"        "); err != nil {
				return err
			}
		}
	}
	return nil
}

// emitter appends instructions, coalescing adjacent raw output.
type emitter struct {
	prog Program
}

func (e *emitter) raw(s string) {
	if s == "" {
		return
	}
	if n := len(e.prog); n > 0 && e.prog[n-1].Op == OpRaw {
		e.prog[n-1].Raw = append(e.prog[n-1].Raw, s...)
		return
	}
	e.prog = append(e.prog, Instruction{Op: OpRaw, Raw: []byte(s)})
}

func (e *emitter) emit(in Instruction) {
	e.prog = append(e.prog, in)
}
