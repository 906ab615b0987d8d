package expression_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/expression"
	"github.com/conneroisu/tessera/internal/functions"
	"github.com/conneroisu/tessera/internal/scope"
)

func TestMatchKinds(t *testing.T) {
	m := expression.NewMatcher(functions.Default())

	tests := []struct {
		text string
		kind expression.Kind
		str  string
	}{
		{"= user.name", expression.KindOutput, "= user.name"},
		{"~body", expression.KindOutput, "~ body"},
		{"name || 'anon'", expression.KindOutput, "= name || 'anon'"},
		{"a.b.c", expression.KindReference, "a.b.c"},
		{"x", expression.KindReference, "x"},
		{"'hello'", expression.KindStringLiteral, "'hello'"},
		{`'it\'s'`, expression.KindStringLiteral, `'it\'s'`},
		{"Implode(',', list)", expression.KindFunctionCall, "Implode(',', list)"},
		{"Now()", expression.KindFunctionCall, "Now()"},
		{"Equals(Get(a, 'b'), 'c')", expression.KindFunctionCall, "Equals(Get(a, 'b'), 'c')"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			e, err := m.Match(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, e.Kind())
			assert.Equal(t, tt.str, e.String())
		})
	}
}

func TestMatchErrors(t *testing.T) {
	m := expression.NewMatcher(nil)

	tests := []struct {
		text string
		code string
	}{
		{"= a || 'b' || 'c'", errors.ErrCodeMultipleDefaults},
		{"a b", errors.ErrCodeMalformedExpression},
		{"", errors.ErrCodeMalformedExpression},
		{"'unterminated", errors.ErrCodeMalformedExpression},
		{"Fn(a b)", errors.ErrCodeMalformedExpression},
		{".a", errors.ErrCodeMalformedExpression},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := m.Match(tt.text)
			require.Error(t, err)
			assert.True(t, errors.IsExpressionError(err))
			var te *errors.TesseraError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.code, te.Code)
		})
	}
}

func TestFunctionArgumentSplitting(t *testing.T) {
	m := expression.NewMatcher(nil)

	e, err := m.Match(`Fn('a,b', Inner(x, 'y)'), 'q\'s', z.w)`)
	require.NoError(t, err)

	call := e.(*expression.FunctionCall)
	require.Len(t, call.Args, 4)
	assert.Equal(t, "a,b", call.Args[0].(*expression.StringLiteral).Value)
	assert.Len(t, call.Args[1].(*expression.FunctionCall).Args, 2)
	assert.Equal(t, "q's", call.Args[2].(*expression.StringLiteral).Value)
	assert.Equal(t, []string{"z", "w"}, call.Args[3].(*expression.Reference).Path)
}

func TestStructuralKeys(t *testing.T) {
	m := expression.NewMatcher(nil)
	key := func(s string) string {
		e, err := m.Match(s)
		require.NoError(t, err)
		return e.Key()
	}

	assert.Equal(t, key("a.b"), key(" a.b "))
	assert.Equal(t, key("=a||'x'"), key("= a || 'x'"))
	assert.Equal(t, key("F(a,'b')"), key("F( a , 'b' )"))
	assert.NotEqual(t, key("=a"), key("~a"))
	assert.NotEqual(t, key("'a'"), key("a"))
	assert.NotEqual(t, key("F('a,b')"), key("F('a','b')"))
}

func TestResolveOutputDefault(t *testing.T) {
	m := expression.NewMatcher(nil)
	e, err := m.Match(`=ref || 'default'`)
	require.NoError(t, err)

	s := scope.New(nil)
	v, err := s.Evaluate(e)
	require.NoError(t, err)
	assert.Equal(t, "default", v)

	s = scope.New(nil)
	s.Put("ref", false)
	v, err = s.Evaluate(e)
	require.NoError(t, err)
	assert.Equal(t, false, v, "falsy values do not trigger the default")

	s = scope.New(nil)
	s.Put("ref", "value")
	v, err = s.Evaluate(e)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
}

type product struct{ name string }

func (p *product) Property(name string) (any, bool) {
	if name == "name" {
		return p.name, true
	}
	return nil, false
}

func TestResolveReferences(t *testing.T) {
	m := expression.NewMatcher(nil)
	s := scope.NewBuilder().
		Put("user", map[string]any{"profile": map[string]string{"city": "Lisbon"}}).
		Put("entry", expression.Entry{Key: "k", Value: map[string]any{"n": 1}}).
		Put("item", &product{name: "lamp"}).
		Put("nothing", nil).
		Build()

	tests := []struct {
		ref  string
		want any
	}{
		{"user.profile.city", "Lisbon"},
		{"user.missing.city", nil},
		{"entry.key", "k"},
		{"entry.value.n", 1},
		{"entry.other", nil},
		{"item.name", "lamp"},
		{"item.price", nil},
		{"nothing.at.all", nil},
		{"unbound", nil},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			e, err := m.Match(tt.ref)
			require.NoError(t, err)
			v, err := s.Evaluate(e)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestUnknownFunctionFailsAtResolve(t *testing.T) {
	catalog := functions.NewCatalog()
	m := expression.NewMatcher(catalog)

	e, err := m.Match("Later('x')")
	require.NoError(t, err, "unknown functions are not a parse error")

	_, err = scope.New(nil).Evaluate(e)
	require.Error(t, err)
	assert.True(t, errors.IsRenderError(err))

	catalog.Register("Later", func(args []any) (any, error) { return args[0], nil })
	v, err := scope.New(nil).Evaluate(e)
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}

func TestEscapes(t *testing.T) {
	m := expression.NewMatcher(nil)
	for text, want := range map[string]bool{"=a": true, "~a": false, "a": true, "'x'": true} {
		e, err := m.Match(text)
		require.NoError(t, err)
		assert.Equal(t, want, expression.Escapes(e), text)
	}
}

func TestToString(t *testing.T) {
	var nilProduct *product
	assert.Equal(t, "", expression.ToString(nil))
	assert.Equal(t, "", expression.ToString(nilProduct))
	assert.Equal(t, "42", expression.ToString(42))
	assert.Equal(t, "1.5", expression.ToString(1.5))
	assert.Equal(t, "true", expression.ToString(true))
	assert.Equal(t, "a,b", expression.ToString([]string{"a", "b"}))
}

func FuzzMatch(f *testing.F) {
	for _, seed := range []string{"= a || 'b'", "F(a, G('x'))", "a.b.c", `'q\'s'`, "~x"} {
		f.Add(seed)
	}
	m := expression.NewMatcher(nil)
	f.Fuzz(func(t *testing.T, text string) {
		e, err := m.Match(text)
		if err != nil {
			return
		}
		again, err := m.Match(e.String())
		if err != nil {
			t.Fatalf("re-matching %q (from %q): %v", e.String(), text, err)
		}
		if again.Key() != e.Key() {
			t.Fatalf("key changed: %q vs %q", again.Key(), e.Key())
		}
	})
}
