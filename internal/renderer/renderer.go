// Package renderer interprets compiled template programs.
//
// Rendering is synchronous and recursive: template calls, slot expansion and
// loop bodies are nested interpretations sharing one output writer. Each
// render owns its scopes, so concurrent renders never share mutable state.
package renderer

import (
	"fmt"
	"io"
	"iter"

	"golang.org/x/net/html"

	"github.com/conneroisu/tessera/internal/compiler"
	"github.com/conneroisu/tessera/internal/document"
	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/expression"
	"github.com/conneroisu/tessera/internal/scope"
)

// DefaultMaxDepth bounds nested template calls.
const DefaultMaxDepth = 256

// Programs resolves template names to compiled programs at render time.
// Implementations must return the same program for a name for the whole
// duration of a render.
type Programs interface {
	Program(name string) (compiler.Program, bool)
}

// Renderer executes programs against a scope.
type Renderer struct {
	programs Programs
	maxDepth int
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithMaxDepth limits nested template calls to n. Values below one keep the
// default.
func WithMaxDepth(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// New creates a renderer that resolves template calls through programs.
func New(programs Programs, opts ...Option) *Renderer {
	r := &Renderer{programs: programs, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render writes the output of the named template's program to w. s is
// only read: the render evaluates in a child scope of its own, so cached
// results never outlive the call and concurrent renders may share s.
func (r *Renderer) Render(w io.Writer, name string, prog compiler.Program, s *scope.Scope) error {
	st := &state{r: r, w: w}
	return st.run(&frame{template: name}, prog, scope.New(s))
}

// frame is one level of template expansion. Slot content runs in a frame
// without slots of its own, which forwards slot lookups to its parent.
type frame struct {
	parent   *frame
	slots    map[string][]compiler.Program
	template string
	depth    int
}

func (f *frame) slotOwner() *frame {
	for cur := f; cur != nil; cur = cur.parent {
		if cur.slots != nil {
			return cur
		}
	}
	return nil
}

type state struct {
	r *Renderer
	w io.Writer
}

func (st *state) run(f *frame, prog compiler.Program, s *scope.Scope) error {
	for i := range prog {
		in := &prog[i]

		var err error
		switch in.Op {
		case compiler.OpRaw:
			err = st.write(in.Raw)
		case compiler.OpExpr:
			err = st.expr(in.Expr, s)
		case compiler.OpSlot:
			err = st.slot(f, in.Slot, s)
		case compiler.OpTemplate:
			if in.Call.Inline() {
				err = st.inline(f, in.Call, s)
			} else {
				err = st.call(f, in.Call, s)
			}
		}

		if err != nil {
			return attribute(err, f.template)
		}
	}
	return nil
}

// attribute names the template whose program failed. Errors are wrapped
// rather than annotated in place since a function may return a shared
// error value.
func attribute(err error, template string) error {
	te, ok := errors.AsTessera(err)
	if template == "" || (ok && te.Template != "") {
		return err
	}
	code := errors.ErrCodeInternalError
	if ok {
		code = te.Code
	}
	return errors.WrapRender(err, code, "render failed", template)
}

func (st *state) runAll(f *frame, progs []compiler.Program, s *scope.Scope) error {
	for _, p := range progs {
		if err := st.run(f, p, s); err != nil {
			return err
		}
	}
	return nil
}

func (st *state) write(b []byte) error {
	if _, err := st.w.Write(b); err != nil {
		return errors.NewRenderError(errors.ErrCodeRenderIO, "failed to write render output", err)
	}
	return nil
}

func (st *state) expr(e expression.Expression, s *scope.Scope) error {
	v, err := s.Evaluate(e)
	if err != nil {
		return err
	}
	if expression.IsNull(v) {
		return nil
	}
	out := expression.ToString(v)
	if expression.Escapes(e) {
		out = html.EscapeString(out)
	}
	if _, err := io.WriteString(st.w, out); err != nil {
		return errors.NewRenderError(errors.ErrCodeRenderIO, "failed to write render output", err)
	}
	return nil
}

// slot expands the content bound to name by the nearest enclosing call.
// The content runs against the current scope. A name with no binding
// expands to nothing.
func (st *state) slot(f *frame, name string, s *scope.Scope) error {
	owner := f.slotOwner()
	if owner == nil {
		return nil
	}
	progs := owner.slots[name]
	if len(progs) == 0 {
		return nil
	}
	content := &frame{parent: owner.parent, template: f.template, depth: f.depth}
	if owner.parent != nil {
		content.template = owner.parent.template
	}
	return st.runAll(content, progs, s)
}

// call expands a named template in a child scope holding the call site's
// attributes.
func (st *state) call(f *frame, call *compiler.TemplateCall, s *scope.Scope) error {
	if f.depth+1 > st.r.maxDepth {
		return errors.NewRenderError(errors.ErrCodeDepthExceeded,
			fmt.Sprintf("template calls nested deeper than %d levels", st.r.maxDepth), nil).
			WithContext("target", call.Target)
	}

	prog, ok := st.r.programs.Program(call.Target)
	if !ok {
		return errors.NewRenderError(errors.ErrCodeTemplateNotFound,
			"template not found: "+call.Target, nil).WithContext("target", call.Target)
	}

	child := scope.New(s)
	for _, a := range call.Attrs {
		v, err := attrValue(a, s)
		if err != nil {
			return err
		}
		child.Put(a.Name, v)
	}

	callee := &frame{parent: f, slots: call.Slots, template: call.Target, depth: f.depth + 1}
	return st.run(callee, prog, child)
}

// attrValue binds a call site attribute: the native value of a sole
// expression, true for a valueless attribute, and the concatenated text
// otherwise.
func attrValue(a compiler.CallAttr, s *scope.Scope) (any, error) {
	if a.Valueless {
		return true, nil
	}
	if e, ok := a.Single(); ok {
		return s.Evaluate(e)
	}
	return flatten(a.Segments, s)
}

func flatten(segs []document.Segment, s *scope.Scope) (string, error) {
	var b []byte
	for _, seg := range segs {
		if !seg.IsExpr() {
			b = append(b, seg.Literal...)
			continue
		}
		v, err := s.Evaluate(seg.Expr)
		if err != nil {
			return "", err
		}
		b = append(b, expression.ToString(v)...)
	}
	return string(b), nil
}

// inline runs the inline control construct in the current frame.
func (st *state) inline(f *frame, call *compiler.TemplateCall, s *scope.Scope) error {
	if a, ok := call.Attr("if"); ok {
		pass, err := condition(a, s)
		if err != nil {
			return err
		}
		if !pass {
			return st.runAll(f, call.Slots["else"], s)
		}
	}

	if a, ok := call.Attr("is"); ok {
		is, err := flatten(a.Segments, s)
		if err != nil {
			return err
		}
		if is == "foreach" {
			return st.foreach(f, call, s)
		}
	}

	return st.runAll(f, call.Slots[compiler.CatchAll], s)
}

func condition(a compiler.CallAttr, s *scope.Scope) (bool, error) {
	e, ok := a.Single()
	if !ok {
		return false, errors.NewRenderError(errors.ErrCodeAttributeShape,
			"the if attribute must hold exactly one expression", nil)
	}
	v, err := s.Evaluate(e)
	if err != nil {
		return false, err
	}
	if expression.IsNull(v) {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.NewRenderError(errors.ErrCodeConditionType,
			fmt.Sprintf("if expression %s resolved to %T, want bool", e, v), nil)
	}
	return b, nil
}

func (st *state) foreach(f *frame, call *compiler.TemplateCall, s *scope.Scope) error {
	data, ok := call.Attr("data")
	e, single := data.Single()
	if !ok || !single {
		return errors.NewRenderError(errors.ErrCodeAttributeShape,
			"foreach requires a data attribute holding exactly one expression", nil)
	}

	as, err := nameAttr(call, "as", "item", s)
	if err != nil {
		return err
	}
	loop, err := nameAttr(call, "loop", "", s)
	if err != nil {
		return err
	}

	v, err := s.Evaluate(e)
	if err != nil {
		return err
	}
	seq, err := sequence(v)
	if err != nil {
		return err
	}

	next, stop := iter.Pull(seq)
	defer stop()

	body := call.Slots[compiler.CatchAll]
	child := scope.New(s)
	count := 0

	item, more := next()
	for more {
		following, hasNext := next()

		child.Reset()
		child.Put(as, item)
		if loop != "" {
			child.Put(loop, &LoopInfo{Index: count + 1, IsFirst: count == 0, IsLast: !hasNext})
		}
		if err := st.runAll(f, body, child); err != nil {
			return err
		}

		count++
		item, more = following, hasNext
	}

	if count == 0 {
		return st.runAll(f, call.Slots["empty"], s)
	}
	return nil
}

func nameAttr(call *compiler.TemplateCall, name, def string, s *scope.Scope) (string, error) {
	a, ok := call.Attr(name)
	if !ok {
		return def, nil
	}
	v, err := flatten(a.Segments, s)
	if err != nil {
		return "", err
	}
	if v == "" {
		return def, nil
	}
	return v, nil
}
