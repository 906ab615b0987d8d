package renderer

import (
	"fmt"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tessera/internal/compiler"
	"github.com/conneroisu/tessera/internal/document"
	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/expression"
	"github.com/conneroisu/tessera/internal/functions"
	"github.com/conneroisu/tessera/internal/scope"
)

// set is a fixed group of templates compiled against each other.
type set struct {
	docs  map[string]*document.Document
	progs map[string]compiler.Program
}

func (s *set) Document(name string) (*document.Document, bool) {
	d, ok := s.docs[name]
	return d, ok
}

func (s *set) Program(name string) (compiler.Program, bool) {
	p, ok := s.progs[name]
	return p, ok
}

func newSet(t *testing.T, sources ...string) *set {
	t.Helper()
	return newSetWith(t, functions.Default(), sources...)
}

func newSetWith(t *testing.T, catalog *functions.Catalog, sources ...string) *set {
	t.Helper()
	m := expression.NewMatcher(catalog)
	s := &set{docs: map[string]*document.Document{}, progs: map[string]compiler.Program{}}
	for _, src := range sources {
		doc, err := document.ParseBytes([]byte(src), m)
		require.NoError(t, err)
		s.docs[doc.Name] = doc
	}
	for name, doc := range s.docs {
		s.progs[name] = compiler.Compile(doc, s).Program
	}
	return s
}

func (s *set) render(t *testing.T, name string, data map[string]any, opts ...Option) (string, error) {
	t.Helper()
	prog, ok := s.progs[name]
	require.True(t, ok, "template %s", name)
	var b strings.Builder
	err := New(s, opts...).Render(&b, name, prog, scope.FromMap(data))
	return b.String(), err
}

func renderOne(t *testing.T, body string, data map[string]any) string {
	t.Helper()
	s := newSet(t, `<template name="t">`+body+`</template>`)
	out, err := s.render(t, "t", data)
	require.NoError(t, err)
	return out
}

func TestExpressionOutput(t *testing.T) {
	data := map[string]any{
		"html":  "<b>&</b>",
		"n":     3,
		"user":  map[string]any{"name": "Ana"},
		"empty": nil,
	}

	tests := []struct {
		body string
		want string
	}{
		{`{{ = html }}`, "&lt;b&gt;&amp;&lt;/b&gt;"},
		{`{{ ~ html }}`, "<b>&</b>"},
		{`{{ html }}`, "&lt;b&gt;&amp;&lt;/b&gt;"},
		{`n={{ = n }}`, "n=3"},
		{`{{ = user.name }}`, "Ana"},
		{`[{{ = user.missing.deep }}]`, "[]"},
		{`{{ = empty || 'fallback' }}`, "fallback"},
		{`{{ ~ missing || 'a&b' }}`, "a&b"},
		{`{{ = n || 'fallback' }}`, "3"},
		{`{{ 'it\'s' }}`, "it&#39;s"},
		{`<a title="{{ = html }}">x</a>`, `<a title="&lt;b&gt;&amp;&lt;/b&gt;">x</a>`},
		{`{{ = Upper(user.name) }}`, "ANA"},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			assert.Equal(t, tt.want, renderOne(t, tt.body, data))
		})
	}
}

func TestTemplateCallAttributes(t *testing.T) {
	s := newSet(t,
		`<template name="info">{{ = Length(items) }}|{{ = label }}|<template if="{{ = open }}">open</template></template>`,
		`<template name="page"><info items="{{ = xs }}" label="n: {{ = n }}!" open/></template>`,
	)
	out, err := s.render(t, "page", map[string]any{"xs": []any{1, 2, 3}, "n": 7})
	require.NoError(t, err)
	assert.Equal(t, "3|n: 7!|open", out)
}

func TestCalleeSeesCallerScope(t *testing.T) {
	s := newSet(t,
		`<template name="greet">Hi {{ = who }} from {{ = site }}</template>`,
		`<template name="page"><greet who="Bo"/></template>`,
	)
	out, err := s.render(t, "page", map[string]any{"site": "here"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Bo from here", out)
}

func TestSlots(t *testing.T) {
	s := newSet(t,
		`<template name="card"><div><header><slot name="title"/></header><slot/><footer><slot name="foot"/></footer></div></template>`,
		`<template name="page"><card><h1 slot="title">T</h1><p>a</p>b</card></template>`,
	)
	out, err := s.render(t, "page", nil)
	require.NoError(t, err)
	assert.Equal(t, "<div><header><h1>T</h1></header><p>a</p>b<footer></footer></div>", out)
}

func TestSlotContentRendersWithCalleeScope(t *testing.T) {
	s := newSet(t,
		`<template name="box"><slot/></template>`,
		`<template name="page"><box color="red"><i>{{ = color }} {{ = who }}</i></box></template>`,
	)
	out, err := s.render(t, "page", map[string]any{"who": "me"})
	require.NoError(t, err)
	assert.Equal(t, "<i>red me</i>", out)
}

func TestNestedSlotDelegation(t *testing.T) {
	s := newSet(t,
		`<template name="inner"><section><slot/></section></template>`,
		`<template name="outer"><inner><b><slot name="x"/></b></inner></template>`,
		`<template name="page"><outer><i slot="x">X</i></outer></template>`,
	)
	out, err := s.render(t, "page", nil)
	require.NoError(t, err)
	assert.Equal(t, "<section><b><i>X</i></b></section>", out)
}

func TestSlotOutsideCallIsEmpty(t *testing.T) {
	assert.Equal(t, "[]", renderOne(t, `[<slot name="nothing"/>]`, nil))
}

func TestIf(t *testing.T) {
	body := `<template if="{{ = ok }}">yes<template slot="else">no</template></template>`

	assert.Equal(t, "yes", renderOne(t, body, map[string]any{"ok": true}))
	assert.Equal(t, "no", renderOne(t, body, map[string]any{"ok": false}))
	assert.Equal(t, "no", renderOne(t, body, nil))
	assert.Equal(t, "yes", renderOne(t, `<template if="{{ = Equals(a, 'x') }}">yes</template>`, map[string]any{"a": "x"}))
	assert.Equal(t, "", renderOne(t, `<template if="{{ = ok }}">yes</template>`, nil))
}

func TestIfRejectsWrongShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		data map[string]any
		code string
	}{
		{"non bool", `<template if="{{ = v }}">x</template>`, map[string]any{"v": "yes"}, errors.ErrCodeConditionType},
		{"literal", `<template if="true">x</template>`, nil, errors.ErrCodeAttributeShape},
		{"mixed", `<template if="a {{ = v }}">x</template>`, nil, errors.ErrCodeAttributeShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSet(t, `<template name="t">`+tt.body+`</template>`)
			_, err := s.render(t, "t", tt.data)
			require.Error(t, err)
			te, ok := errors.AsTessera(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, te.Code)
			assert.Equal(t, "t", te.Template)
			assert.True(t, errors.IsRenderError(err))
		})
	}
}

const loopBody = `<ul><template is="foreach" data="{{ = xs }}" as="x" loop="l">` +
	`<li class="{{ = l.index }}{{ = If(l.isFirst, ' first', '') }}{{ = If(l.isLast, ' last', '') }}">{{ = x }}</li>` +
	`<template slot="empty"><li>none</li></template>` +
	`</template></ul>`

func TestForeach(t *testing.T) {
	tests := []struct {
		name string
		xs   any
		want string
	}{
		{"slice", []string{"a", "b", "c"},
			`<ul><li class="1 first">a</li><li class="2">b</li><li class="3 last">c</li></ul>`},
		{"single", []any{"a"}, `<ul><li class="1 first last">a</li></ul>`},
		{"empty", []any{}, `<ul><li>none</li></ul>`},
		{"nil", nil, `<ul><li>none</li></ul>`},
		{"array", [2]int{4, 5}, `<ul><li class="1 first">4</li><li class="2 last">5</li></ul>`},
		{"seq", iter.Seq[any](func(yield func(any) bool) {
			for _, v := range []any{"p", "q"} {
				if !yield(v) {
					return
				}
			}
		}), `<ul><li class="1 first">p</li><li class="2 last">q</li></ul>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderOne(t, loopBody, map[string]any{"xs": tt.xs}))
		})
	}
}

func TestForeachMapEntries(t *testing.T) {
	out := renderOne(t,
		`<template is="foreach" data="{{ = m }}">{{ = item.key }}={{ = item.value }};</template>`,
		map[string]any{"m": map[string]int{"b": 2, "a": 1, "c": 3}})
	assert.Equal(t, "a=1;b=2;c=3;", out)
}

func TestForeachScopesAreIsolated(t *testing.T) {
	out := renderOne(t,
		`<template is="foreach" data="{{ = xs }}">{{ = item }}</template>[{{ = item }}]`,
		map[string]any{"xs": []any{"a", "b"}})
	assert.Equal(t, "ab[]", out)
}

func TestForeachParity(t *testing.T) {
	out := renderOne(t,
		`<template is="foreach" data="{{ = xs }}" loop="l">{{ = If(l.isOdd, 'o', 'e') }}{{ = If(l.indexIsEven, 'E', 'O') }}</template>`,
		map[string]any{"xs": []any{1, 2, 3}})
	assert.Equal(t, "oOeEoO", out)
}

func TestForeachErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"not iterable", `<template is="foreach" data="{{ = n }}">x</template>`, errors.ErrCodeNotIterable},
		{"missing data", `<template is="foreach">x</template>`, errors.ErrCodeAttributeShape},
		{"literal data", `<template is="foreach" data="xs">x</template>`, errors.ErrCodeAttributeShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSet(t, `<template name="t">`+tt.body+`</template>`)
			_, err := s.render(t, "t", map[string]any{"n": 42})
			te, ok := errors.AsTessera(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.code, te.Code)
		})
	}
}

func TestGroupingWrapper(t *testing.T) {
	assert.Equal(t, "<b>x</b>", renderOne(t, `<template><b>x</b></template>`, nil))
	assert.Equal(t, "<b>x</b>", renderOne(t, `<template is="group"><b>x</b></template>`, nil))
}

func TestMissingTarget(t *testing.T) {
	s := newSet(t,
		`<template name="ghost">boo</template>`,
		`<template name="page">a<ghost/>b</template>`,
	)
	delete(s.progs, "ghost")

	out, err := s.render(t, "page", nil)
	require.Error(t, err)
	assert.Equal(t, "a", out)
	te, ok := errors.AsTessera(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeTemplateNotFound, te.Code)
	assert.Equal(t, "page", te.Template)
}

func TestErrorsNameTheFailingTemplate(t *testing.T) {
	shared := errors.NewRenderError(errors.ErrCodeArgument, "always fails", nil)
	catalog := functions.Default()
	catalog.Register("Fail", func([]any) (any, error) { return nil, shared })

	s := newSetWith(t, catalog,
		`<template name="a">{{ = Fail(x) }}</template>`,
		`<template name="b">{{ = Fail(x) }}</template>`,
	)

	for _, name := range []string{"a", "b"} {
		_, err := s.render(t, name, nil)
		require.Error(t, err)
		te, ok := errors.AsTessera(err)
		require.True(t, ok)
		assert.Equal(t, name, te.Template)
		assert.Equal(t, errors.ErrCodeArgument, te.Code)
		assert.ErrorIs(t, err, shared)
	}
	assert.Empty(t, shared.Template, "the function's error value is left untouched")
}

func TestDepthLimit(t *testing.T) {
	s := newSet(t, `<template name="r">.<r/></template>`)
	out, err := s.render(t, "r", nil, WithMaxDepth(5))
	require.Error(t, err)
	assert.Equal(t, "......", out)
	te, ok := errors.AsTessera(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeDepthExceeded, te.Code)
}

func TestMutualRecursionTerminates(t *testing.T) {
	s := newSet(t,
		`<template name="even"><template if="{{ = NotEmpty(xs) }}">e<odd xs="{{ = Get(xs, 'rest') }}"/></template></template>`,
		`<template name="odd"><template if="{{ = NotEmpty(xs) }}">o<even xs="{{ = Get(xs, 'rest') }}"/></template></template>`,
	)
	list := map[string]any{"rest": map[string]any{"rest": map[string]any{"rest": nil}}}
	out, err := s.render(t, "even", map[string]any{"xs": list})
	require.NoError(t, err)
	assert.Equal(t, "eoe", out)
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, fmt.Errorf("disk full")
	}
	w.after--
	return len(p), nil
}

func TestWriteErrors(t *testing.T) {
	s := newSet(t, `<template name="t">a{{ = v }}b</template>`)
	prog, _ := s.Program("t")

	for after := 0; after < 3; after++ {
		err := New(s).Render(&failingWriter{after: after}, "t", prog, scope.FromMap(map[string]any{"v": "x"}))
		require.Error(t, err)
		te, ok := errors.AsTessera(err)
		require.True(t, ok)
		assert.Equal(t, errors.ErrCodeRenderIO, te.Code)
		assert.Contains(t, err.Error(), "disk full")
	}
}

func TestUnknownFunctionIsRenderError(t *testing.T) {
	s := newSet(t, `<template name="t">{{ = Nope(x) }}</template>`)
	_, err := s.render(t, "t", nil)
	require.Error(t, err)
	assert.True(t, errors.IsRenderError(err))
	te, _ := errors.AsTessera(err)
	assert.Equal(t, errors.ErrCodeUnknownFunction, te.Code)
}

func TestRenderIsDeterministic(t *testing.T) {
	s := newSet(t,
		`<template name="row"><tr><slot/></tr></template>`,
		`<template name="page"><template is="foreach" data="{{ = m }}"><row><td>{{ = item.key }}</td></row></template></template>`,
	)
	data := map[string]any{"m": map[string]any{"z": 1, "y": 2, "x": 3, "w": 4}}

	first, err := s.render(t, "page", data)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := s.render(t, "page", data)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "<tr><td>w</td></tr><tr><td>x</td></tr><tr><td>y</td></tr><tr><td>z</td></tr>", first)
}

func TestLoopInfoProperties(t *testing.T) {
	l := &LoopInfo{Index: 2, IsFirst: false, IsLast: true}
	for name, want := range map[string]any{
		"index": 2, "isFirst": false, "isLast": true,
		"isOdd": false, "isEven": true, "indexIsOdd": false, "indexIsEven": true,
	} {
		got, ok := l.Property(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := l.Property("other")
	assert.False(t, ok)
}
