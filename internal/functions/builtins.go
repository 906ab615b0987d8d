package functions

import (
	"bytes"
	"iter"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/tessera/internal/expression"
)

func builtins() map[string]expression.Func {
	return map[string]expression.Func{
		"Implode":   Implode,
		"Explode":   Explode,
		"Empty":     Empty,
		"NotEmpty":  NotEmpty,
		"Equals":    Equals,
		"NotEquals": NotEquals,
		"Get":       Get,
		"If":        If,
		"Length":    Length,
		"Markdown":  Markdown,
		"Title":     Title,
		"Upper":     Upper,
		"Lower":     Lower,
		"StripTags": StripTags,
	}
}

// Implode joins items with a delimiter: Implode(delim, list) or
// Implode(delim, a, b, ...). Null items are skipped.
func Implode(args []any) (any, error) {
	delim, err := stringArg("Implode", args, 0)
	if err != nil {
		return nil, err
	}

	items := args[1:]
	if len(args) == 2 {
		if list, ok := asList(args[1]); ok {
			items = list
		}
	}

	parts := make([]string, 0, len(items))
	for _, item := range items {
		if expression.IsNull(item) {
			continue
		}
		parts = append(parts, expression.ToString(item))
	}
	return strings.Join(parts, delim), nil
}

// Explode splits text around every occurrence of a literal delimiter:
// Explode(delim, text).
func Explode(args []any) (any, error) {
	if len(args) != 2 {
		return nil, argError("Explode", "expects 2 arguments, got %d", len(args))
	}
	delim, err := stringArg("Explode", args, 0)
	if err != nil {
		return nil, err
	}
	text, err := stringArg("Explode", args, 1)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(text, delim)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

// NotEmpty reports whether its argument is a non-empty string or collection.
// Null and any other type count as empty.
func NotEmpty(args []any) (any, error) {
	if len(args) == 0 {
		return nil, argError("NotEmpty", "missing argument 0")
	}
	n, ok := length(args[0])
	return ok && n > 0, nil
}

// Empty is the negation of NotEmpty.
func Empty(args []any) (any, error) {
	v, err := NotEmpty(args)
	if err != nil {
		return nil, err
	}
	return !v.(bool), nil
}

// Equals reports whether its two arguments are deeply equal. Any other
// argument count is false.
func Equals(args []any) (any, error) {
	if len(args) != 2 {
		return false, nil
	}
	return reflect.DeepEqual(args[0], args[1]), nil
}

// NotEquals is the negation of Equals.
func NotEquals(args []any) (any, error) {
	v, _ := Equals(args)
	return !v.(bool), nil
}

// Get returns the member key of obj, the same way a dotted reference would:
// Get(obj, key). A null obj or key yields null.
func Get(args []any) (any, error) {
	if len(args) != 2 {
		return nil, argError("Get", "expects 2 arguments, got %d", len(args))
	}
	if expression.IsNull(args[0]) || expression.IsNull(args[1]) {
		return nil, nil
	}
	key, err := stringArg("Get", args, 1)
	if err != nil {
		return nil, err
	}
	return expression.Member(args[0], key), nil
}

// If selects between two values on a boolean condition: If(cond, then, else).
// Missing branches yield null.
func If(args []any) (any, error) {
	if len(args) == 0 {
		return nil, argError("If", "missing condition")
	}
	cond, ok := args[0].(bool)
	if !ok {
		return nil, argError("If", "condition must be a boolean, got %T", args[0])
	}
	switch {
	case cond && len(args) > 1:
		return args[1], nil
	case !cond && len(args) > 2:
		return args[2], nil
	}
	return nil, nil
}

// Length returns the number of characters of a string or items of a
// collection. Null has length zero.
func Length(args []any) (any, error) {
	if len(args) != 1 {
		return nil, argError("Length", "expects 1 argument, got %d", len(args))
	}
	if expression.IsNull(args[0]) {
		return 0, nil
	}
	n, ok := length(args[0])
	if !ok {
		return nil, argError("Length", "unsupported type %T", args[0])
	}
	return n, nil
}

var markdown = goldmark.New()

// Markdown renders CommonMark text to HTML. Use it with a raw output
// expression to avoid escaping the result.
func Markdown(args []any) (any, error) {
	src, err := stringArg("Markdown", args, 0)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return nil, err
	}
	return buf.String(), nil
}

// Title converts text to title case.
func Title(args []any) (any, error) {
	s, err := stringArg("Title", args, 0)
	if err != nil {
		return nil, err
	}
	return cases.Title(language.English).String(s), nil
}

// Upper converts text to upper case.
func Upper(args []any) (any, error) {
	s, err := stringArg("Upper", args, 0)
	if err != nil {
		return nil, err
	}
	return cases.Upper(language.Und).String(s), nil
}

// Lower converts text to lower case.
func Lower(args []any) (any, error) {
	s, err := stringArg("Lower", args, 0)
	if err != nil {
		return nil, err
	}
	return cases.Lower(language.Und).String(s), nil
}

// StripTags returns the text content of an HTML fragment.
func StripTags(args []any) (any, error) {
	s, err := stringArg("StripTags", args, 0)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String(), nil
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

func length(v any) (int, bool) {
	if s, ok := v.(string); ok {
		return utf8.RuneCountInString(s), true
	}
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	}
	if seq, ok := v.(iter.Seq[any]); ok {
		n := 0
		for range seq {
			n++
		}
		return n, true
	}
	return 0, false
}

func asList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case iter.Seq[any]:
		var out []any
		for item := range x {
			out = append(out, item)
		}
		return out, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
