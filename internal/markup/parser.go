// Package markup implements the lenient, HTML-like markup reader that feeds
// template documents.
//
// The reader is a byte-level state machine that reports start tags, text and
// end tags to a Handler. It only insists that tags it recognizes are well
// shaped; stray '<' and '>' characters that do not form a tag are passed
// through as text. A handler may switch an element into verbatim mode, in
// which everything up to the matching closing tag is reported as one text
// callback.
package markup

import (
	"bytes"
	"fmt"
	"io"

	"github.com/conneroisu/tessera/internal/errors"
)

// Attr is a parsed attribute. Value is nil for attributes written without
// a value.
type Attr struct {
	Name  string
	Value *string
}

// Handler receives parse events in document order.
type Handler interface {
	// StartElement reports an opening tag. Returning false makes the parser
	// treat the element body as verbatim text up to the matching end tag.
	StartElement(name string, attrs []Attr) (parseChildren bool, err error)
	Text(text string) error
	EndElement(name string) error
}

// Finisher is implemented by handlers that validate the document once the
// input is exhausted.
type Finisher interface {
	Finish() error
}

type state uint8

const (
	textOutside state = iota
	tagOpen
	inAttributeValue
	textOnly
)

// Position identifies a byte in the input. Line and Column are 1-based.
type Position struct {
	Offset int
	Line   int
	Column int
}

type parser struct {
	h       Handler
	state   state
	escaped bool
	buf     []byte
	until   string
	pos     Position
}

// Parse reads all of r and reports its structure to h.
func Parse(r io.Reader, h Handler) error {
	src, err := io.ReadAll(r)
	if err != nil {
		return errors.NewIOError(errors.ErrCodeLoadFailed, "failed to read template source", err)
	}
	return ParseBytes(src, h)
}

// ParseBytes reports the structure of src to h. Errors returned by the
// handler are reported as parse errors positioned at the character being
// processed when they occurred.
func ParseBytes(src []byte, h Handler) error {
	p := &parser{h: h, pos: Position{Line: 1}}

	for i, c := range src {
		p.pos.Offset = i
		if c&0xC0 != 0x80 {
			p.pos.Column++
		}

		if err := p.step(c); err != nil {
			return positioned(err, p.pos)
		}

		if c == '\n' {
			p.pos.Line++
			p.pos.Column = 0
		}
	}

	p.pos.Offset = len(src)
	if err := p.finish(); err != nil {
		return positioned(err, p.pos)
	}
	return nil
}

func (p *parser) step(c byte) error {
	escaped := p.escaped
	p.escaped = c == '\\'

	switch p.state {
	case textOnly:
		p.buf = append(p.buf, c)
		if c == '>' && bytes.HasSuffix(p.buf, []byte(p.until)) {
			text := p.buf[:len(p.buf)-len(p.until)]
			name := p.until[2 : len(p.until)-1]
			p.state = textOutside
			p.buf = p.buf[:0]
			if err := p.text(text); err != nil {
				return err
			}
			return p.h.EndElement(name)
		}

	case inAttributeValue:
		p.buf = append(p.buf, c)
		if c == '"' && !escaped {
			p.state = tagOpen
		}

	case tagOpen:
		switch c {
		case '"':
			p.buf = append(p.buf, c)
			p.state = inAttributeValue
		case '<':
			if err := p.flush(); err != nil {
				return err
			}
			p.buf = append(p.buf, c)
		case '>':
			p.buf = append(p.buf, c)
			p.state = textOutside
			tag := p.buf
			p.buf = nil
			return p.closeTag(tag)
		default:
			p.buf = append(p.buf, c)
		}

	default:
		if c == '<' {
			if err := p.flush(); err != nil {
				return err
			}
			p.state = tagOpen
		}
		p.buf = append(p.buf, c)
	}

	return nil
}

// closeTag classifies a complete "<...>" sequence.
func (p *parser) closeTag(tag []byte) error {
	body := tag[1 : len(tag)-1]

	if len(body) > 0 && body[0] == '/' {
		name := bytes.TrimSpace(body[1:])
		if !isName(name) {
			return p.text(tag)
		}
		return p.h.EndElement(string(name))
	}

	n := nameLength(body)
	if n == 0 {
		return p.text(tag)
	}
	name := string(body[:n])
	rest := body[n:]

	var (
		attrs       []Attr
		selfClosing bool
	)
	switch {
	case len(bytes.TrimSpace(rest)) == 0:
	case bytes.Equal(bytes.TrimSpace(rest), []byte("/")):
		selfClosing = true
	case isSpace(rest[0]):
		trimmed := bytes.TrimRightFunc(rest, func(r rune) bool { return r < 0x80 && isSpace(byte(r)) })
		if len(trimmed) > 0 && trimmed[len(trimmed)-1] == '/' {
			selfClosing = true
			trimmed = trimmed[:len(trimmed)-1]
		}
		attrs = ParseAttributes(string(trimmed))
	default:
		return p.text(tag)
	}

	parseChildren, err := p.h.StartElement(name, attrs)
	if err != nil {
		return err
	}
	if selfClosing {
		return p.h.EndElement(name)
	}
	if !parseChildren {
		p.state = textOnly
		p.until = "</" + name + ">"
	}
	return nil
}

func (p *parser) flush() error {
	if len(p.buf) == 0 {
		return nil
	}
	err := p.text(p.buf)
	p.buf = p.buf[:0]
	return err
}

func (p *parser) text(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return p.h.Text(string(b))
}

func (p *parser) finish() error {
	switch p.state {
	case textOnly:
		return errors.NewParseError(errors.ErrCodeUnexpectedEOF,
			fmt.Sprintf("unexpected end of input, expected %s", p.until), 0, 0, 0)
	case tagOpen, inAttributeValue:
		p.state = textOutside
	}
	if err := p.flush(); err != nil {
		return err
	}
	if f, ok := p.h.(Finisher); ok {
		return f.Finish()
	}
	return nil
}

// positioned attaches pos to err, converting it into a parse error when it
// is not one already.
func positioned(err error, pos Position) error {
	if te, ok := errors.AsTessera(err); ok && te.Type == errors.ErrorTypeParse {
		if te.Line == 0 {
			te.WithPosition(pos.Offset, pos.Line, pos.Column)
		}
		return err
	}

	code := errors.ErrCodeInternalError
	if errors.IsExpressionError(err) {
		code = errors.ErrCodeMalformedExpression
	}
	return errors.Wrap(err, errors.ErrorTypeParse, code, "invalid template markup").
		WithPosition(pos.Offset, pos.Line, pos.Column)
}
