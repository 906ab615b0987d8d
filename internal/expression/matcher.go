package expression

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/conneroisu/tessera/internal/errors"
)

var (
	outputPattern    = regexp.MustCompile(`^\s*(=|~)\s*\S+`)
	referencePattern = regexp.MustCompile(`^(\w[\w.]*\w|\w)$`)
	literalPattern   = regexp.MustCompile(`^'(\\.|[^'])*'$`)
	callPattern      = regexp.MustCompile(`(?s)^(\w+)\s*\((.*)\)$`)
)

// Matcher turns expression text into an Expression. The forms are tried in
// a fixed order: output, reference, string literal, function call.
type Matcher struct {
	catalog Catalog
}

// NewMatcher returns a matcher whose function calls resolve through catalog.
func NewMatcher(catalog Catalog) *Matcher {
	return &Matcher{catalog: catalog}
}

// Match parses text into an expression.
func (m *Matcher) Match(text string) (Expression, error) {
	text = strings.TrimSpace(text)

	if loc := outputPattern.FindStringSubmatchIndex(text); loc != nil {
		mode := Escaped
		if text[loc[2]:loc[3]] == "~" {
			mode = Raw
		}
		return m.matchOutput(text[loc[3]:], mode)
	}
	if parts := splitTopLevel(text, "||"); len(parts) > 1 {
		return m.matchOutput(text, Escaped)
	}

	if referencePattern.MatchString(text) {
		var path []string
		for _, seg := range strings.Split(text, ".") {
			if seg != "" {
				path = append(path, seg)
			}
		}
		return NewReference(path...), nil
	}

	if literalPattern.MatchString(text) {
		return NewStringLiteral(strings.ReplaceAll(text[1:len(text)-1], `\'`, "'")), nil
	}

	if sub := callPattern.FindStringSubmatch(text); sub != nil {
		return m.matchCall(sub[1], sub[2])
	}

	return nil, errors.NewExpressionError(errors.ErrCodeMalformedExpression,
		fmt.Sprintf("no expression form matches %q", text))
}

func (m *Matcher) matchOutput(body string, mode EscapeMode) (Expression, error) {
	parts := splitTopLevel(body, "||")
	if len(parts) > 2 {
		return nil, errors.NewExpressionError(errors.ErrCodeMultipleDefaults,
			"output expression may only contain one default value specifier")
	}

	inner, err := m.Match(parts[0])
	if err != nil {
		return nil, err
	}

	var def Expression
	if len(parts) == 2 {
		if def, err = m.Match(parts[1]); err != nil {
			return nil, err
		}
	}

	return NewOutput(inner, def, mode), nil
}

func (m *Matcher) matchCall(name, argText string) (Expression, error) {
	var args []Expression
	if strings.TrimSpace(argText) != "" {
		for i, part := range splitTopLevel(argText, ",") {
			arg, err := m.Match(part)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeExpression, errors.ErrCodeMalformedExpression,
					fmt.Sprintf("argument %d of %s", i, name))
			}
			args = append(args, arg)
		}
	}

	return NewFunctionCall(m.catalog, name, args...), nil
}

// splitTopLevel splits s on sep wherever sep occurs outside single-quoted
// strings and outside parentheses. A backslash inside quotes escapes the
// following character.
func splitTopLevel(s, sep string) []string {
	var (
		parts    []string
		depth    int
		inQuotes bool
		start    int
	)

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuotes && c == '\\':
			i++
		case c == '\'':
			inQuotes = !inQuotes
		case inQuotes:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && strings.HasPrefix(s[i:], sep):
			parts = append(parts, s[start:i])
			i += len(sep) - 1
			start = i + 1
		}
	}

	return append(parts, s[start:])
}
