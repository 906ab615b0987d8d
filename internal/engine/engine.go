// Package engine is the entry point for embedding tessera: it registers
// template sources, hands out template handles and renders them.
package engine

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/conneroisu/tessera/internal/document"
	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/expression"
	"github.com/conneroisu/tessera/internal/functions"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/registry"
	"github.com/conneroisu/tessera/internal/renderer"
	"github.com/conneroisu/tessera/internal/scope"
)

// Engine parses, compiles and renders templates. It is safe for concurrent
// use: registrations and renders may run from any number of goroutines.
type Engine struct {
	registry  *registry.Registry
	functions *functions.Catalog
	matcher   *expression.Matcher
	maxDepth  int
	logger    logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for registration events.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMaxDepth limits how deeply template calls may nest.
func WithMaxDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

// WithFunctions replaces the function catalog. The default catalog holds
// the built-in functions.
func WithFunctions(c *functions.Catalog) Option {
	return func(e *Engine) { e.functions = c }
}

// New creates an engine with an empty registry.
func New(opts ...Option) *Engine {
	e := &Engine{
		registry:  registry.New(),
		functions: functions.Default(),
		maxDepth:  renderer.DefaultMaxDepth,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("engine")
	e.matcher = expression.NewMatcher(e.functions)
	return e
}

// Handle refers to a registered template by name. Rendering a handle always
// uses the template's most recent registration.
type Handle struct {
	name string
	path string
	meta map[string]string
}

// Name returns the template name.
func (h *Handle) Name() string { return h.name }

// Path returns the source path the template was registered from, if any.
func (h *Handle) Path() string { return h.path }

// Metadata returns the template's t:meta entries.
func (h *Handle) Metadata() map[string]string { return h.meta }

// RegisterTemplate parses one template from r and registers it under the
// name its root element declares, replacing any earlier registration.
func (e *Engine) RegisterTemplate(r io.Reader) (string, error) {
	return e.RegisterSource("", r)
}

// RegisterBytes is RegisterTemplate over an in-memory source.
func (e *Engine) RegisterBytes(src []byte) (string, error) {
	return e.RegisterSource("", bytes.NewReader(src))
}

// RegisterString is RegisterTemplate over a string source.
func (e *Engine) RegisterString(src string) (string, error) {
	return e.RegisterSource("", strings.NewReader(src))
}

// RegisterSource registers a template read from path. Parse errors carry
// the path. A failed registration leaves earlier registrations untouched.
func (e *Engine) RegisterSource(path string, r io.Reader) (string, error) {
	doc, err := e.Parse(path, r)
	if err != nil {
		return "", err
	}
	return e.RegisterParsed(registry.Entry{Document: doc, Path: path})[0], nil
}

// Parse reads one template from r without registering it. Parse errors
// carry path when it is not empty.
func (e *Engine) Parse(path string, r io.Reader) (*document.Document, error) {
	doc, err := document.Parse(r, e.matcher)
	if err != nil {
		if te, ok := errors.AsTessera(err); ok && path != "" && te.FilePath == "" {
			te.WithFile(path)
		}
		return nil, err
	}
	return doc, nil
}

// RegisterParsed registers already parsed templates as one registry
// update and returns their names in order.
func (e *Engine) RegisterParsed(entries ...registry.Entry) []string {
	events := e.registry.RegisterAll(entries)
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Document.Name
		e.logger.Debug(context.Background(), "Template registered",
			"template", entry.Document.Name, "path", entry.Path, "event", events[i].String())
	}
	return names
}

// HasTemplate reports whether a template is registered under name.
func (e *Engine) HasTemplate(name string) bool {
	return e.registry.Has(name)
}

// GetTemplate returns a handle to the named template.
func (e *Engine) GetTemplate(name string) (*Handle, bool) {
	t, ok := e.registry.Snapshot().Template(name)
	if !ok {
		return nil, false
	}
	return &Handle{name: t.Name, path: t.Path, meta: t.Metadata()}, true
}

// Remove unregisters the named template.
func (e *Engine) Remove(name string) bool {
	removed := e.registry.Remove(name)
	if removed {
		e.logger.Debug(context.Background(), "Template removed", "template", name)
	}
	return removed
}

// Names returns the registered template names in sorted order.
func (e *Engine) Names() []string {
	return e.registry.Names()
}

// Metadata returns the t:meta entries of the named template.
func (e *Engine) Metadata(name string) (map[string]string, bool) {
	t, ok := e.registry.Snapshot().Template(name)
	if !ok {
		return nil, false
	}
	return t.Metadata(), true
}

// Render writes the output of the template behind h to w. The render uses
// one consistent set of compiled templates from start to finish. A nil
// scope renders against an empty one.
func (e *Engine) Render(h *Handle, s *scope.Scope, w io.Writer) error {
	if h == nil {
		return errors.NewRenderError(errors.ErrCodeTemplateNotFound, "nil template handle", nil)
	}
	return e.RenderNamed(h.name, s, w)
}

// RenderNamed renders the template registered under name.
func (e *Engine) RenderNamed(name string, s *scope.Scope, w io.Writer) error {
	snap := e.registry.Snapshot()
	prog, ok := snap.Program(name)
	if !ok {
		return errors.ErrTemplateNotFound(name)
	}
	return renderer.New(snap, renderer.WithMaxDepth(e.maxDepth)).Render(w, name, prog, s)
}

// RenderString renders the named template into a string.
func (e *Engine) RenderString(name string, s *scope.Scope) (string, error) {
	var b strings.Builder
	if err := e.RenderNamed(name, s, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// NewScope returns an empty root scope.
func (e *Engine) NewScope() *scope.Scope {
	return scope.New(nil)
}

// ScopeBuilder returns a builder for a root scope.
func (e *Engine) ScopeBuilder() *scope.Builder {
	return scope.NewBuilder()
}

// Functions returns the function catalog expressions resolve against.
// Functions registered on it become callable from already registered
// templates.
func (e *Engine) Functions() *functions.Catalog {
	return e.functions
}

// RegisterFunction adds fn to the function catalog under name.
func (e *Engine) RegisterFunction(name string, fn expression.Func) {
	e.functions.Register(name, fn)
}

// Registry exposes the underlying registry for watchers and tooling.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}
