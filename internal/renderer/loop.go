package renderer

import "github.com/conneroisu/tessera/internal/expression"

// LoopInfo describes the current foreach iteration. Index is 1-based.
type LoopInfo struct {
	Index   int
	IsFirst bool
	IsLast  bool
}

var _ expression.PropertyAccessor = (*LoopInfo)(nil)

// Property exposes the loop fields to references such as {{ = loop.isLast }}.
func (l *LoopInfo) Property(name string) (any, bool) {
	switch name {
	case "index":
		return l.Index, true
	case "isFirst":
		return l.IsFirst, true
	case "isLast":
		return l.IsLast, true
	case "isOdd", "indexIsOdd":
		return l.Index%2 != 0, true
	case "isEven", "indexIsEven":
		return l.Index%2 == 0, true
	}
	return nil, false
}
