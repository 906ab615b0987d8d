// Package functions holds the function catalog expressions call into and the
// built-in functions every engine starts with.
//
// Functions receive already-evaluated arguments and never coerce: an argument
// of the wrong shape is a rendering error.
package functions

import (
	"fmt"
	"sort"
	"sync"

	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/expression"
)

// Catalog is a concurrency-safe registry of named functions.
type Catalog struct {
	mu    sync.RWMutex
	funcs map[string]expression.Func
}

var _ expression.Catalog = (*Catalog)(nil)

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{funcs: make(map[string]expression.Func)}
}

// Default returns a catalog preloaded with the built-in functions.
func Default() *Catalog {
	c := NewCatalog()
	for name, fn := range builtins() {
		c.funcs[name] = fn
	}
	return c
}

// Register adds or replaces the function called name.
func (c *Catalog) Register(name string, fn expression.Func) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs[name] = fn
}

// Lookup returns the function called name.
func (c *Catalog) Lookup(name string) (expression.Func, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.funcs[name]
	return fn, ok
}

// Names returns the registered function names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.funcs))
	for name := range c.funcs {
		names = append(names, name)
	}
	c.mu.RUnlock()

	sort.Strings(names)
	return names
}

func argError(fn, format string, args ...any) error {
	return errors.NewRenderError(errors.ErrCodeArgument,
		fn+": "+fmt.Sprintf(format, args...), nil)
}

// stringArg returns args[i] as a string, failing when it is missing, null or
// of another type.
func stringArg(fn string, args []any, i int) (string, error) {
	if i >= len(args) {
		return "", argError(fn, "missing argument %d", i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", argError(fn, "argument %d must be a string, got %T", i, args[i])
	}
	return s, nil
}
