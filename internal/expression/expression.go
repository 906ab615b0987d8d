// Package expression implements the embedded expression language used inside
// {{ ... }} markers.
//
// Four fixed forms exist: output expressions that choose escaping and an
// optional default, dotted references into the scope, single-quoted string
// literals, and function calls resolved against a catalog at render time.
// Expressions are immutable after matching and carry a canonical structural
// key so that scopes can memoize their results.
package expression

import (
	"strconv"
	"strings"

	"github.com/conneroisu/tessera/internal/errors"
)

// Kind identifies one of the four expression forms.
type Kind int

const (
	KindOutput Kind = iota
	KindReference
	KindStringLiteral
	KindFunctionCall
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindOutput:
		return "output"
	case KindReference:
		return "reference"
	case KindStringLiteral:
		return "string"
	case KindFunctionCall:
		return "call"
	default:
		return "unknown"
	}
}

// Expression is a matched, immutable expression.
type Expression interface {
	Kind() Kind
	// Key is a canonical encoding of the expression's structure. Two
	// expressions with equal keys always resolve identically in one scope.
	Key() string
	Resolve(s Scope) (any, error)
	String() string
}

// Scope is the environment expressions resolve against.
type Scope interface {
	Lookup(name string) (any, bool)
	Evaluate(e Expression) (any, error)
}

// Func is the calling convention of catalog functions.
type Func func(args []any) (any, error)

// Catalog resolves function names at render time.
type Catalog interface {
	Lookup(name string) (Func, bool)
}

// EscapeMode selects whether output is HTML-escaped.
type EscapeMode int

const (
	Escaped EscapeMode = iota
	Raw
)

// Output wraps an inner expression with an escape mode and optional default.
type Output struct {
	Inner   Expression
	Default Expression
	Mode    EscapeMode
	key     string
}

// NewOutput builds an output expression. def may be nil.
func NewOutput(inner, def Expression, mode EscapeMode) *Output {
	var b strings.Builder
	if mode == Raw {
		b.WriteString("~(")
	} else {
		b.WriteString("=(")
	}
	b.WriteString(inner.Key())
	if def != nil {
		b.WriteString("||")
		b.WriteString(def.Key())
	}
	b.WriteByte(')')

	return &Output{Inner: inner, Default: def, Mode: mode, key: b.String()}
}

func (o *Output) Kind() Kind  { return KindOutput }
func (o *Output) Key() string { return o.key }

// Resolve evaluates the inner expression and falls back to the default only
// when the inner result is null.
func (o *Output) Resolve(s Scope) (any, error) {
	v, err := s.Evaluate(o.Inner)
	if err != nil {
		return nil, err
	}
	if IsNull(v) && o.Default != nil {
		return s.Evaluate(o.Default)
	}
	return v, nil
}

func (o *Output) String() string {
	op := "="
	if o.Mode == Raw {
		op = "~"
	}
	if o.Default == nil {
		return op + " " + o.Inner.String()
	}
	return op + " " + o.Inner.String() + " || " + o.Default.String()
}

// Reference is a dotted path into the scope.
type Reference struct {
	Path []string
	key  string
}

// NewReference builds a reference from its path segments.
func NewReference(path ...string) *Reference {
	return &Reference{Path: path, key: "r:" + strings.Join(path, ".")}
}

func (r *Reference) Kind() Kind     { return KindReference }
func (r *Reference) Key() string    { return r.key }
func (r *Reference) String() string { return strings.Join(r.Path, ".") }

// Resolve looks the first segment up in the scope chain and walks the rest
// through Member. A miss anywhere yields nil.
func (r *Reference) Resolve(s Scope) (any, error) {
	if len(r.Path) == 0 {
		return nil, nil
	}
	v, ok := s.Lookup(r.Path[0])
	if !ok {
		return nil, nil
	}
	for _, seg := range r.Path[1:] {
		if IsNull(v) {
			return nil, nil
		}
		v = Member(v, seg)
	}
	return v, nil
}

// StringLiteral is a single-quoted constant.
type StringLiteral struct {
	Value string
	key   string
}

// NewStringLiteral builds a literal holding value.
func NewStringLiteral(value string) *StringLiteral {
	return &StringLiteral{Value: value, key: "s:" + strconv.Quote(value)}
}

func (l *StringLiteral) Kind() Kind                 { return KindStringLiteral }
func (l *StringLiteral) Key() string                { return l.key }
func (l *StringLiteral) Resolve(Scope) (any, error) { return l.Value, nil }
func (l *StringLiteral) String() string {
	return "'" + strings.ReplaceAll(l.Value, "'", `\'`) + "'"
}

// FunctionCall invokes a catalog function with evaluated arguments.
type FunctionCall struct {
	Name    string
	Args    []Expression
	catalog Catalog
	key     string
}

// NewFunctionCall builds a call of name resolved through catalog.
func NewFunctionCall(catalog Catalog, name string, args ...Expression) *FunctionCall {
	var b strings.Builder
	b.WriteString("f:")
	b.WriteString(name)
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.Key())
	}
	b.WriteByte(')')

	return &FunctionCall{Name: name, Args: args, catalog: catalog, key: b.String()}
}

func (c *FunctionCall) Kind() Kind  { return KindFunctionCall }
func (c *FunctionCall) Key() string { return c.key }

// Resolve looks the function up now rather than at match time, so functions
// registered after parsing are still found.
func (c *FunctionCall) Resolve(s Scope) (any, error) {
	var fn Func
	if c.catalog != nil {
		fn, _ = c.catalog.Lookup(c.Name)
	}
	if fn == nil {
		return nil, errors.ErrUnknownFunction(c.Name)
	}

	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		v, err := s.Evaluate(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	v, err := fn(args)
	if err != nil {
		if errors.IsRenderError(err) {
			return nil, err
		}
		return nil, errors.NewRenderError(errors.ErrCodeFunctionFailed,
			"function "+c.Name+" failed", err)
	}
	return v, nil
}

func (c *FunctionCall) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return c.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Escapes reports whether the result of e must be HTML-escaped on output.
// Only a raw output expression opts out.
func Escapes(e Expression) bool {
	if o, ok := e.(*Output); ok {
		return o.Mode != Raw
	}
	return true
}
