package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/expression"
	"github.com/conneroisu/tessera/internal/functions"
)

func matcher() *expression.Matcher {
	return expression.NewMatcher(functions.Default())
}

func mustParse(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := ParseBytes([]byte(src), matcher())
	require.NoError(t, err)
	return doc
}

func TestParseDocument(t *testing.T) {
	doc := mustParse(t, `
<template name="card">
	<div class="card {{ = kind }}">
		<h2>{{ = title }}</h2>
		<slot name="body"></slot>
		<slot></slot>
	</div>
</template>`)

	assert.Equal(t, "card", doc.Name)
	assert.Equal(t, []string{"body"}, doc.SlotNames())
	assert.True(t, doc.CatchAll)
	assert.Contains(t, doc.Tags, "div")
	assert.Contains(t, doc.Tags, "h2")
	assert.NotContains(t, doc.Tags, "template")

	var div *Element
	for _, c := range doc.Children {
		if el, ok := c.(*Element); ok {
			div = el
		}
	}
	require.NotNil(t, div)
	assert.Equal(t, &doc.Element, div.Parent())

	class, ok := div.Attr("class")
	require.True(t, ok)
	require.True(t, class.Value.HasExpressions())
	parts := class.Value.Parts()
	require.Len(t, parts, 2)
	assert.Equal(t, "card ", parts[0].Literal)
	assert.Equal(t, "=(r:kind)", parts[1].Expr.Key())

	_, literal := div.LiteralAttr("class")
	assert.False(t, literal)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
		line int
	}{
		{"wrong root", `<div name="x"></div>`, errors.ErrCodeRootElement, 1},
		{"missing name", `<template></template>`, errors.ErrCodeMissingName, 1},
		{"blank name", `<template name="  "></template>`, errors.ErrCodeMissingName, 1},
		{"expression name", `<template name="{{ = n }}"></template>`, errors.ErrCodeMissingName, 1},
		{"mismatched close", "<template name=\"x\">\n<b></i></template>", errors.ErrCodeTagMismatch, 2},
		{"unclosed root", `<template name="x"><p>`, errors.ErrCodeUnexpectedEOF, 1},
		{"empty input", `just text`, errors.ErrCodeUnexpectedEOF, 1},
		{"trailing element", `<template name="x"></template><p></p>`, errors.ErrCodeTrailingContent, 1},
		{"bad expression", `<template name="x">{{ nope( }}</template>`, errors.ErrCodeMalformedExpression, 1},
		{"unterminated script", `<template name="x"><script>1`, errors.ErrCodeUnexpectedEOF, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBytes([]byte(tt.src), matcher())
			require.Error(t, err)
			assert.True(t, errors.IsParseError(err), "got %v", err)

			te, ok := errors.AsTessera(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, te.Code)
			assert.Equal(t, tt.line, te.Line)
		})
	}
}

func TestErrorsCarryTemplateName(t *testing.T) {
	_, err := ParseBytes([]byte(`<template name="broken"><a></b></template>`), matcher())
	te, ok := errors.AsTessera(err)
	require.True(t, ok)
	assert.Equal(t, "broken", te.Template)
}

func TestTextOutsideRootIsIgnored(t *testing.T) {
	doc := mustParse(t, "<!-- header -->\n<template name=\"x\">a</template>\n")
	require.Len(t, doc.Children, 1)
	assert.Equal(t, "a", doc.Children[0].(*Text).Literal)
}

func TestTextRunsAreJoinedAcrossLessThan(t *testing.T) {
	doc := mustParse(t, `<template name="x"><p>a < b {{ = ref || 'de<f' }}</p></template>`)
	p := doc.Children[0].(*Element)
	require.Len(t, p.Children, 1)

	text := p.Children[0].(*Text)
	assert.Equal(t, "a < b {{ = ref || 'de<f' }}", text.Literal)
	require.True(t, text.HasExpressions())
	parts := text.Parts()
	require.Len(t, parts, 2)
	assert.Equal(t, "a < b ", parts[0].Literal)
	assert.Equal(t, "= ref || 'de<f'", parts[1].Expr.String())
}

func TestDuplicateAttributesKeepFirst(t *testing.T) {
	doc := mustParse(t, `<template name="x"><p id="one" id="two"></p></template>`)
	p := doc.Children[0].(*Element)
	require.Len(t, p.Attrs, 1)
	v, _ := p.LiteralAttr("id")
	assert.Equal(t, "one", v)
}

func TestVerbatimElements(t *testing.T) {
	doc := mustParse(t, `<template name="x"><pre text-content><b>{{ = x }}</b></pre><script>if (a<b) {}</script></template>`)
	require.Len(t, doc.Children, 2)

	pre := doc.Children[0].(*Element)
	assert.False(t, pre.HasAttr("text-content"))
	require.Len(t, pre.Children, 1)
	text := pre.Children[0].(*Text)
	assert.Equal(t, "&lt;b&gt;{{ = x }}&lt;/b&gt;", text.Literal)
	assert.True(t, text.HasExpressions())

	script := doc.Children[1].(*Element)
	require.Len(t, script.Children, 1)
	assert.Equal(t, "if (a<b) {}", script.Children[0].(*Text).Literal)
}

func TestMetadata(t *testing.T) {
	doc := mustParse(t, `<template name="x">
		<t:meta key="title" value="Home"/>
		<t:meta key="layout" value="{{ = dynamic }}"/>
		<t:meta key="orphan"/>
	</template>`)
	assert.Equal(t, map[string]string{"title": "Home"}, doc.Meta)
}

func TestScanSegments(t *testing.T) {
	m := matcher()

	tests := []struct {
		in   string
		want []string
	}{
		{"plain", nil},
		{"{{ = a }}", []string{"=(r:a)"}},
		{"x {{ = a }} y {{ ~ b }}", []string{"x ", "=(r:a)", " y ", "~(r:b)"}},
		{"{{ }} stays", nil},
		{"a {{  }} {{ = b }}", []string{"a {{  }} ", "=(r:b)"}},
		{"open {{ = a", nil},
		{"{{ = a }}{{ = b }}", []string{"=(r:a)", "=(r:b)"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			segs, err := ScanSegments(tt.in, m)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, segs)
				return
			}
			var got []string
			for _, s := range segs {
				if s.IsExpr() {
					got = append(got, s.Expr.Key())
				} else {
					got = append(got, s.Literal)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFromReader(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<template name="r"><slot name="a"/></template>`), matcher())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, doc.SlotNames())
	assert.False(t, doc.CatchAll)
}
