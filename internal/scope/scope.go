// Package scope provides the hierarchical data environment templates render
// against.
package scope

import (
	"sync"

	"github.com/conneroisu/tessera/internal/expression"
)

// Supplier is a lazily computed value. It is called at most once, on first
// lookup, and its result is kept for the lifetime of the binding.
type Supplier func() any

// lazy holds a supplier binding. Lookups never write to the data map, so a
// scope whose bindings are no longer changing can be read from any number
// of goroutines.
type lazy struct {
	once sync.Once
	fn   func() any
	v    any
}

func (l *lazy) get() any {
	l.once.Do(func() {
		l.v = l.fn()
		l.fn = nil
	})
	return l.v
}

// bind converts supplier values into their lazy holders.
func bind(v any) any {
	switch fn := v.(type) {
	case Supplier:
		return &lazy{fn: fn}
	case func() any:
		return &lazy{fn: fn}
	}
	return v
}

// Scope maps keys to values, falls back to its parent for absent keys, and
// memoizes expression results for its own lifetime.
//
// Bindings and the evaluation cache are not safe for concurrent writes. A
// root scope handed to renders is only read by them: every render evaluates
// in a private child scope of its own.
type Scope struct {
	parent *Scope
	data   map[string]any
	cache  map[string]any
}

var _ expression.Scope = (*Scope)(nil)

// New creates an empty scope whose lookups fall through to parent. parent
// may be nil.
func New(parent *Scope) *Scope {
	return &Scope{parent: parent, data: make(map[string]any)}
}

// FromMap creates a root scope holding a copy of data.
func FromMap(data map[string]any) *Scope {
	s := New(nil)
	for k, v := range data {
		s.data[k] = bind(v)
	}
	return s
}

// Parent returns the enclosing scope, or nil for a root scope.
func (s *Scope) Parent() *Scope { return s.parent }

// Put binds key in this scope, shadowing any binding of a parent.
func (s *Scope) Put(key string, value any) {
	s.data[key] = bind(value)
	s.cache = nil
}

// PutSupplier binds key to a value computed on first lookup.
func (s *Scope) PutSupplier(key string, fn Supplier) {
	s.Put(key, fn)
}

// Lookup returns the value bound to key here or in the nearest ancestor.
// A key bound to nil here shadows the parent.
func (s *Scope) Lookup(key string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		v, ok := cur.data[key]
		if !ok {
			continue
		}
		if l, ok := v.(*lazy); ok {
			v = l.get()
		}
		return v, true
	}
	return nil, false
}

// Get is Lookup without the presence flag.
func (s *Scope) Get(key string) any {
	v, _ := s.Lookup(key)
	return v
}

// Evaluate resolves e against this scope, returning the memoized result when
// an expression with the same structure was evaluated here before. Failed
// evaluations are not cached.
func (s *Scope) Evaluate(e expression.Expression) (any, error) {
	key := e.Key()
	if v, ok := s.cache[key]; ok {
		return v, nil
	}

	v, err := e.Resolve(s)
	if err != nil {
		return nil, err
	}

	if s.cache == nil {
		s.cache = make(map[string]any)
	}
	s.cache[key] = v
	return v, nil
}

// Reset clears bindings and cached results so the scope can be reused, as
// loop iterations do.
func (s *Scope) Reset() {
	clear(s.data)
	clear(s.cache)
}

// Keys returns the keys bound directly in this scope.
func (s *Scope) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}
