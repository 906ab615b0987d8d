package renderer

import (
	"cmp"
	"fmt"
	"iter"
	"reflect"
	"slices"

	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/expression"
)

// Iterable is implemented by host values that can be looped over with
// foreach without being materialized as a slice.
type Iterable interface {
	All() iter.Seq[any]
}

// sequence adapts a foreach data value to a sequence. Null is an empty
// sequence. Maps yield expression.Entry values in sorted key order.
func sequence(v any) (iter.Seq[any], error) {
	switch x := v.(type) {
	case nil:
		return func(func(any) bool) {}, nil
	case []any:
		return slices.Values(x), nil
	case iter.Seq[any]:
		return x, nil
	case func(func(any) bool):
		return x, nil
	case iter.Seq2[any, any]:
		return entries(x), nil
	case Iterable:
		return x.All(), nil
	}

	if expression.IsNull(v) {
		return func(func(any) bool) {}, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return func(yield func(any) bool) {
			for i := 0; i < rv.Len(); i++ {
				if !yield(rv.Index(i).Interface()) {
					return
				}
			}
		}, nil
	case reflect.Map:
		keys := rv.MapKeys()
		slices.SortFunc(keys, compareKeys)
		return func(yield func(any) bool) {
			for _, k := range keys {
				if !yield(expression.Entry{Key: k.Interface(), Value: rv.MapIndex(k).Interface()}) {
					return
				}
			}
		}, nil
	}

	return nil, errors.NewRenderError(errors.ErrCodeNotIterable,
		fmt.Sprintf("cannot iterate over a value of type %T", v), nil)
}

func entries(seq iter.Seq2[any, any]) iter.Seq[any] {
	return func(yield func(any) bool) {
		for k, v := range seq {
			if !yield(expression.Entry{Key: k, Value: v}) {
				return
			}
		}
	}
}

func compareKeys(a, b reflect.Value) int {
	if a.Kind() == b.Kind() {
		switch a.Kind() {
		case reflect.String:
			return cmp.Compare(a.String(), b.String())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return cmp.Compare(a.Int(), b.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return cmp.Compare(a.Uint(), b.Uint())
		case reflect.Float32, reflect.Float64:
			return cmp.Compare(a.Float(), b.Float())
		}
	}
	return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
}
