package expression

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// PropertyAccessor is implemented by host values that expose named
// properties to references. It is the only way a reference reaches into an
// opaque value.
type PropertyAccessor interface {
	Property(name string) (any, bool)
}

// Entry is a key/value pair, produced when iterating maps. References reach
// its parts through the segments "key" and "value".
type Entry struct {
	Key   any
	Value any
}

// Member returns the member called name of v, or nil when v has none.
// Maps with string keys are indexed first, then entries, then property
// accessors.
func Member(v any, name string) any {
	switch x := v.(type) {
	case map[string]any:
		return x[name]
	case map[string]string:
		if s, ok := x[name]; ok {
			return s
		}
		return nil
	case Entry:
		return entryMember(x, name)
	case *Entry:
		return entryMember(*x, name)
	case PropertyAccessor:
		p, _ := x.Property(name)
		return p
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		mv := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if mv.IsValid() {
			return mv.Interface()
		}
	}
	return nil
}

func entryMember(e Entry, name string) any {
	switch name {
	case "key":
		return e.Key
	case "value":
		return e.Value
	}
	return nil
}

// IsNull reports whether v is nil or a nil pointer-like value. Nil slices
// and maps are empty collections, not null.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// ToString converts a resolved value to its output form. Null is empty.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		if IsNull(x) {
			return ""
		}
		return x.String()
	case []string:
		return strings.Join(x, ",")
	}
	if IsNull(v) {
		return ""
	}
	return fmt.Sprint(v)
}
