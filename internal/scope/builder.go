package scope

// Builder assembles a root scope.
type Builder struct {
	data map[string]any
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{data: make(map[string]any)}
}

// Put binds key to value.
func (b *Builder) Put(key string, value any) *Builder {
	b.data[key] = value
	return b
}

// PutSupplier binds key to a lazily computed value.
func (b *Builder) PutSupplier(key string, fn Supplier) *Builder {
	b.data[key] = fn
	return b
}

// PutMap ensures key holds a map and passes it to init for population. An
// existing non-map binding is replaced.
func (b *Builder) PutMap(key string, init func(m map[string]any)) *Builder {
	m, ok := b.data[key].(map[string]any)
	if !ok {
		m = make(map[string]any)
		b.data[key] = m
	}
	if init != nil {
		init(m)
	}
	return b
}

// PutList binds key to a list of items.
func (b *Builder) PutList(key string, items ...any) *Builder {
	list := make([]any, len(items))
	copy(list, items)
	b.data[key] = list
	return b
}

// PutAll binds every entry of data.
func (b *Builder) PutAll(data map[string]any) *Builder {
	for k, v := range data {
		b.data[k] = v
	}
	return b
}

// Build returns a root scope holding the accumulated bindings.
func (b *Builder) Build() *Scope {
	return FromMap(b.data)
}
