// Package registry holds the set of registered templates and their compiled
// programs.
//
// The registry publishes immutable snapshots through an atomic pointer.
// Registration produces a new snapshot holding the uncompiled document;
// the first read after a registration runs a compile pass that recompiles
// every template whose source, or whose consulted templates, changed since
// it was last compiled. A render holds one snapshot from start to finish,
// so it never observes a half-updated set of templates.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/tessera/internal/compiler"
	"github.com/conneroisu/tessera/internal/document"
)

// Template is a registered template. Published templates are never
// modified; recompilation replaces them.
type Template struct {
	Name         string
	Path         string
	Document     *document.Document
	Program      compiler.Program
	Stamp        uint64
	RegisteredAt time.Time

	consulted  []string
	compiledAt uint64
}

// Compiled reports whether the template has a program.
func (t *Template) Compiled() bool { return t.compiledAt != 0 }

// Metadata returns a copy of the template's t:meta entries.
func (t *Template) Metadata() map[string]string {
	out := make(map[string]string, len(t.Document.Meta))
	for k, v := range t.Document.Meta {
		out[k] = v
	}
	return out
}

// EventType represents the type of template event
type EventType int

const (
	EventTypeAdded EventType = iota
	EventTypeUpdated
	EventTypeRemoved
)

func (e EventType) String() string {
	switch e {
	case EventTypeAdded:
		return "added"
	case EventTypeUpdated:
		return "updated"
	case EventTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// TemplateEvent represents a change in the registry
type TemplateEvent struct {
	Type      EventType
	Name      string
	Path      string
	Timestamp time.Time
}

// Registry manages all registered templates
type Registry struct {
	mu       sync.Mutex
	current  atomic.Pointer[Snapshot]
	watchers []chan TemplateEvent
	passes   atomic.Uint64
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	r.current.Store(&Snapshot{
		templates: make(map[string]*Template),
		stamps:    make(map[string]uint64),
	})
	return r
}

// Entry is one template to register. Path records where the source came
// from and may be empty.
type Entry struct {
	Document *document.Document
	Path     string
}

// Register adds or replaces the template named by doc.
func (r *Registry) Register(doc *document.Document, path string) EventType {
	return r.RegisterAll([]Entry{{Document: doc, Path: path}})[0]
}

// RegisterAll adds or replaces every entry under a single new snapshot, so
// loading a directory copies the registry once rather than once per file.
// Later entries win when two carry the same name.
func (r *Registry) RegisterAll(entries []Entry) []EventType {
	if len(entries) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.current.Load().clone()
	now := time.Now()
	events := make([]TemplateEvent, 0, len(entries))
	types := make([]EventType, 0, len(entries))

	for _, e := range entries {
		next.clock++
		name := e.Document.Name

		eventType := EventTypeAdded
		if _, exists := next.templates[name]; exists {
			eventType = EventTypeUpdated
		}

		next.templates[name] = &Template{
			Name:         name,
			Path:         e.Path,
			Document:     e.Document,
			Stamp:        next.clock,
			RegisteredAt: now,
		}
		next.stamps[name] = next.clock

		types = append(types, eventType)
		events = append(events, TemplateEvent{Type: eventType, Name: name, Path: e.Path, Timestamp: now})
	}
	r.current.Store(next)

	for _, ev := range events {
		r.notify(ev)
	}
	return types
}

// Remove drops the named template. It reports whether the template existed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current.Load()
	t, exists := old.templates[name]
	if !exists {
		return false
	}

	next := old.clone()
	next.clock++
	delete(next.templates, name)
	next.stamps[name] = next.clock
	r.current.Store(next)

	r.notify(TemplateEvent{Type: EventTypeRemoved, Name: name, Path: t.Path, Timestamp: time.Now()})
	return true
}

// Has reports whether a template is registered under name. It does not
// trigger compilation.
func (r *Registry) Has(name string) bool {
	_, ok := r.current.Load().templates[name]
	return ok
}

// Get returns the compiled template registered under name.
func (r *Registry) Get(name string) (*Template, bool) {
	return r.Snapshot().Template(name)
}

// Names returns the registered template names in sorted order.
func (r *Registry) Names() []string {
	return r.current.Load().Names()
}

// Count returns the number of registered templates
func (r *Registry) Count() int {
	return len(r.current.Load().templates)
}

// Passes returns the number of compile passes run so far.
func (r *Registry) Passes() uint64 {
	return r.passes.Load()
}

// Snapshot returns the current set of templates with every program
// compiled, running a compile pass first when registrations happened since
// the last one.
func (r *Registry) Snapshot() *Snapshot {
	s := r.current.Load()
	if !s.stale() {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s = r.current.Load()
	if !s.stale() {
		return s
	}
	next := s.compilePass()
	r.current.Store(next)
	r.passes.Add(1)
	return next
}

// Watch returns a channel that receives template events
func (r *Registry) Watch() <-chan TemplateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan TemplateEvent, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it
func (r *Registry) UnWatch(ch <-chan TemplateEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// notify must be called with mu held.
func (r *Registry) notify(event TemplateEvent) {
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}

// Snapshot is an immutable view of the registry.
type Snapshot struct {
	templates map[string]*Template
	// stamps records the clock value of the last registration or removal
	// of each name, including names no longer registered.
	stamps map[string]uint64
	clock  uint64
	pass   uint64
}

var (
	_ compiler.Catalog = (*Snapshot)(nil)
	_ interface {
		Program(string) (compiler.Program, bool)
	} = (*Snapshot)(nil)
)

func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		templates: make(map[string]*Template, len(s.templates)+1),
		stamps:    make(map[string]uint64, len(s.stamps)+1),
		clock:     s.clock,
		pass:      s.pass,
	}
	for k, v := range s.templates {
		next.templates[k] = v
	}
	for k, v := range s.stamps {
		next.stamps[k] = v
	}
	return next
}

func (s *Snapshot) stale() bool { return s.clock > s.pass }

// needsCompile reports whether t must be recompiled in a pass: it was never
// compiled, or a name it consulted changed after it was compiled.
func (s *Snapshot) needsCompile(t *Template) bool {
	if !t.Compiled() {
		return true
	}
	for _, name := range t.consulted {
		if s.stamps[name] > t.compiledAt {
			return true
		}
	}
	return false
}

func (s *Snapshot) compilePass() *Snapshot {
	next := s.clone()
	next.pass = s.clock

	for name, t := range s.templates {
		if !s.needsCompile(t) {
			continue
		}
		res := compiler.Compile(t.Document, s)
		compiled := *t
		compiled.Program = res.Program
		compiled.consulted = res.Consulted
		compiled.compiledAt = next.pass
		next.templates[name] = &compiled
	}
	return next
}

// Document returns the document registered under name.
func (s *Snapshot) Document(name string) (*document.Document, bool) {
	t, ok := s.templates[name]
	if !ok {
		return nil, false
	}
	return t.Document, true
}

// Program returns the compiled program registered under name.
func (s *Snapshot) Program(name string) (compiler.Program, bool) {
	t, ok := s.templates[name]
	if !ok || !t.Compiled() {
		return nil, false
	}
	return t.Program, true
}

// Template returns the template registered under name.
func (s *Snapshot) Template(name string) (*Template, bool) {
	t, ok := s.templates[name]
	return t, ok
}

// Names returns the template names in sorted order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pass returns the clock value at which this snapshot was last compiled.
func (s *Snapshot) Pass() uint64 { return s.pass }
