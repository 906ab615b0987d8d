package document

import (
	"fmt"
	"io"
	"strings"

	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/expression"
	"github.com/conneroisu/tessera/internal/markup"
)

const (
	rootTag        = "template"
	metaTag        = "t:meta"
	slotTag        = "slot"
	verbatimAttr   = "text-content"
	verbatimScript = "script"
)

var verbatimEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

// Parse reads one template document from r. Expressions embedded in text
// and attribute values are matched with m.
func Parse(r io.Reader, m *expression.Matcher) (*Document, error) {
	b := newBuilder(m)
	if err := markup.Parse(r, b); err != nil {
		return nil, b.annotate(err)
	}
	return b.doc, nil
}

// ParseBytes is Parse over an in-memory source.
func ParseBytes(src []byte, m *expression.Matcher) (*Document, error) {
	b := newBuilder(m)
	if err := markup.ParseBytes(src, b); err != nil {
		return nil, b.annotate(err)
	}
	return b.doc, nil
}

// builder assembles a Document from markup events.
type builder struct {
	matcher *expression.Matcher
	doc     *Document
	current *Element
	closed  bool
	// pending collects the text of current since its last child element.
	// The parser splits text at every '<', so one run can arrive in pieces.
	pending strings.Builder
}

var _ markup.Finisher = (*builder)(nil)

func newBuilder(m *expression.Matcher) *builder {
	return &builder{matcher: m}
}

func (b *builder) annotate(err error) error {
	if b.doc != nil && b.doc.Name != "" {
		if te, ok := errors.AsTessera(err); ok && te.Template == "" {
			te.WithTemplate(b.doc.Name)
		}
	}
	return err
}

func (b *builder) StartElement(name string, attrs []markup.Attr) (bool, error) {
	if err := b.flushText(); err != nil {
		return false, err
	}
	if b.closed {
		return false, errors.NewParseError(errors.ErrCodeTrailingContent,
			fmt.Sprintf("element <%s> after the closing </template>", name), 0, 0, 0)
	}

	var el *Element
	if b.doc == nil {
		if name != rootTag {
			return false, errors.NewParseError(errors.ErrCodeRootElement,
				fmt.Sprintf("root element must be <template>, found <%s>", name), 0, 0, 0)
		}
		b.doc = &Document{
			Element: Element{Tag: rootTag},
			Slots:   make(map[string]struct{}),
			Meta:    make(map[string]string),
			Tags:    make(map[string]struct{}),
		}
		el = &b.doc.Element
	} else {
		el = &Element{Tag: name}
		b.current.AppendChild(el)
		b.doc.Tags[name] = struct{}{}
	}

	for _, a := range attrs {
		if el.HasAttr(a.Name) {
			continue
		}
		var value *Text
		if a.Value != nil {
			t, err := b.text(*a.Value)
			if err != nil {
				return false, err
			}
			value = t
		}
		el.Attrs = append(el.Attrs, &Attribute{Name: a.Name, Value: value})
	}

	if el == &b.doc.Element {
		n, ok := el.LiteralAttr("name")
		if !ok || strings.TrimSpace(n) == "" {
			return false, errors.NewParseError(errors.ErrCodeMissingName,
				"root <template> must carry a literal name attribute", 0, 0, 0)
		}
		b.doc.Name = strings.TrimSpace(n)
	}

	b.current = el
	return name != verbatimScript && !el.HasAttr(verbatimAttr), nil
}

func (b *builder) Text(s string) error {
	if b.current == nil {
		return nil
	}
	if b.current.HasAttr(verbatimAttr) {
		s = verbatimEscaper.Replace(s)
	}
	b.pending.WriteString(s)
	return nil
}

func (b *builder) flushText() error {
	if b.pending.Len() == 0 || b.current == nil {
		return nil
	}
	s := b.pending.String()
	b.pending.Reset()
	t, err := b.text(s)
	if err != nil {
		return err
	}
	b.current.AppendChild(t)
	return nil
}

func (b *builder) EndElement(name string) error {
	if err := b.flushText(); err != nil {
		return err
	}
	if b.current == nil || b.current.Tag != name {
		msg := fmt.Sprintf("closing tag </%s> found", name)
		if b.current != nil {
			msg += fmt.Sprintf(" while closing <%s>", b.current.Tag)
		}
		return errors.NewParseError(errors.ErrCodeTagMismatch, msg, 0, 0, 0).
			WithContext("found", name)
	}

	el := b.current
	el.RemoveAttr(verbatimAttr)

	switch el.Tag {
	case slotTag:
		if n, ok := el.LiteralAttr("name"); ok {
			b.doc.Slots[n] = struct{}{}
		} else {
			b.doc.CatchAll = true
		}
	case metaTag:
		k, kok := el.LiteralAttr("key")
		v, vok := el.LiteralAttr("value")
		if kok && vok {
			b.doc.Meta[k] = v
		}
	}

	b.current = el.parent
	if el == &b.doc.Element {
		b.closed = true
	}
	return nil
}

func (b *builder) Finish() error {
	switch {
	case b.doc == nil:
		return errors.NewParseError(errors.ErrCodeUnexpectedEOF,
			"no <template> element found", 0, 0, 0)
	case !b.closed:
		return errors.NewParseError(errors.ErrCodeUnexpectedEOF,
			fmt.Sprintf("unexpected end of input, <%s> is not closed", b.current.Tag), 0, 0, 0)
	}
	return nil
}

func (b *builder) text(s string) (*Text, error) {
	segs, err := ScanSegments(s, b.matcher)
	if err != nil {
		return nil, err
	}
	return &Text{Literal: s, Segments: segs}, nil
}

// ScanSegments splits s around {{ ... }} markers and matches each marker
// body as an expression. It returns nil when s holds no markers.
func ScanSegments(s string, m *expression.Matcher) ([]Segment, error) {
	if !strings.Contains(s, "{{") {
		return nil, nil
	}

	var segs []Segment
	rest := s
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			break
		}
		end := strings.Index(rest[open+2:], "}}")
		if end < 0 {
			break
		}
		body := rest[open+2 : open+2+end]
		if strings.TrimSpace(body) == "" {
			segs = appendLiteral(segs, rest[:open+4+end])
			rest = rest[open+4+end:]
			continue
		}

		e, err := m.Match(body)
		if err != nil {
			return nil, err
		}
		segs = appendLiteral(segs, rest[:open])
		segs = append(segs, Segment{Expr: e})
		rest = rest[open+4+end:]
	}
	segs = appendLiteral(segs, rest)

	for _, seg := range segs {
		if seg.IsExpr() {
			return segs, nil
		}
	}
	return nil, nil
}

func appendLiteral(segs []Segment, s string) []Segment {
	if s == "" {
		return segs
	}
	if n := len(segs); n > 0 && !segs[n-1].IsExpr() {
		segs[n-1].Literal += s
		return segs
	}
	return append(segs, Segment{Literal: s})
}
