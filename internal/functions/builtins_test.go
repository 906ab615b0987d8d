package functions

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/expression"
)

func call(t *testing.T, fn expression.Func, args ...any) any {
	t.Helper()
	v, err := fn(args)
	require.NoError(t, err)
	return v
}

func TestImplode(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want string
	}{
		{"slice", []any{",", []any{"a", "b", "c"}}, "a,b,c"},
		{"typed slice", []any{"-", []string{"x", "y"}}, "x-y"},
		{"varargs", []any{" ", "a", "b", "c"}, "a b c"},
		{"skips null", []any{",", []any{"a", nil, "c"}}, "a,c"},
		{"numbers", []any{"+", []int{1, 2}}, "1+2"},
		{"single item", []any{",", "only"}, "only"},
		{"nothing", []any{","}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, call(t, Implode, tt.args...))
		})
	}
}

func TestImplodeSeq(t *testing.T) {
	var seq iter.Seq[any] = func(yield func(any) bool) {
		for _, s := range []string{"a", "b"} {
			if !yield(s) {
				return
			}
		}
	}
	assert.Equal(t, "a|b", call(t, Implode, "|", seq))
}

func TestImplodeRequiresStringDelimiter(t *testing.T) {
	_, err := Implode([]any{nil, []any{"a"}})
	require.Error(t, err)
	assert.True(t, errors.IsRenderError(err))
}

func TestExplode(t *testing.T) {
	assert.Equal(t, []any{"a", "b", "c"}, call(t, Explode, ",", "a,b,c"))
	assert.Equal(t, []any{"a.b"}, call(t, Explode, "|", "a.b"))
	assert.Equal(t, []any{"a", "b"}, call(t, Explode, ".", "a.b"), "delimiter is literal")

	_, err := Explode([]any{",", 42})
	assert.True(t, errors.IsRenderError(err))
	_, err = Explode([]any{","})
	assert.Error(t, err)
}

func TestImplodeExplodeInverse(t *testing.T) {
	parts := call(t, Explode, ",", "a,b,c")
	assert.Equal(t, "a,b,c", call(t, Implode, ",", parts))
}

func TestEmptyAndNotEmpty(t *testing.T) {
	tests := []struct {
		name  string
		arg   any
		empty bool
	}{
		{"empty list", []any{}, true},
		{"list", []any{"x"}, false},
		{"empty string", "", true},
		{"string", "x", false},
		{"null", nil, true},
		{"empty map", map[string]any{}, true},
		{"map", map[string]any{"a": 1}, false},
		{"other type", 42, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.empty, call(t, Empty, tt.arg))
			assert.Equal(t, !tt.empty, call(t, NotEmpty, tt.arg))
		})
	}
}

func TestEquals(t *testing.T) {
	assert.Equal(t, true, call(t, Equals, "a", "a"))
	assert.Equal(t, false, call(t, Equals, "a", "b"))
	assert.Equal(t, true, call(t, Equals, nil, nil))
	assert.Equal(t, false, call(t, Equals, "1", 1))
	assert.Equal(t, false, call(t, Equals, "a"))

	assert.Equal(t, false, call(t, NotEquals, "a", "a"))
	assert.Equal(t, true, call(t, NotEquals, "a", "b"))
}

func TestGet(t *testing.T) {
	obj := map[string]any{"name": "tessera"}
	assert.Equal(t, "tessera", call(t, Get, obj, "name"))
	assert.Nil(t, call(t, Get, obj, "missing"))
	assert.Nil(t, call(t, Get, nil, "name"))
	assert.Equal(t, "k", call(t, Get, expression.Entry{Key: "k", Value: 1}, "key"))

	_, err := Get([]any{obj, 3})
	assert.True(t, errors.IsRenderError(err))
}

func TestIf(t *testing.T) {
	assert.Equal(t, "yes", call(t, If, true, "yes", "no"))
	assert.Equal(t, "no", call(t, If, false, "yes", "no"))
	assert.Nil(t, call(t, If, false, "yes"))

	_, err := If([]any{"true", "yes"})
	require.Error(t, err)
	assert.True(t, errors.IsRenderError(err))
}

func TestLength(t *testing.T) {
	assert.Equal(t, 3, call(t, Length, "héy"))
	assert.Equal(t, 2, call(t, Length, []int{1, 2}))
	assert.Equal(t, 0, call(t, Length, nil))

	_, err := Length([]any{3.5})
	assert.Error(t, err)
}

func TestTextFunctions(t *testing.T) {
	assert.Equal(t, "Hello World", call(t, Title, "hello world"))
	assert.Equal(t, "LOUD", call(t, Upper, "loud"))
	assert.Equal(t, "quiet", call(t, Lower, "QUIET"))
	assert.Equal(t, "bold and plain", call(t, StripTags, "<b>bold</b> and <i>plain</i>"))

	_, err := Upper([]any{1})
	assert.Error(t, err)
}

func TestMarkdown(t *testing.T) {
	out := call(t, Markdown, "# Title\n\n*em*")
	assert.Contains(t, out, "<h1>Title</h1>")
	assert.Contains(t, out, "<em>em</em>")
}

func TestCatalog(t *testing.T) {
	c := Default()
	_, ok := c.Lookup("Implode")
	assert.True(t, ok)
	_, ok = c.Lookup("Shout")
	assert.False(t, ok)

	c.Register("Shout", func(args []any) (any, error) { return "!", nil })
	fn, ok := c.Lookup("Shout")
	require.True(t, ok)
	assert.Equal(t, "!", call(t, fn))

	names := c.Names()
	assert.Contains(t, names, "Shout")
	assert.IsIncreasing(t, names)

	assert.Empty(t, NewCatalog().Names())
}
