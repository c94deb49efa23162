package prereq

import (
	"fmt"
	"reflect"
)

// DefaultLevel is the level a provider is registered at when [AtLevel] is not
// given. Level 1 is the outermost, longest-lived scope; each [Resolver.Spawn]
// descends one level deeper.
const DefaultLevel = 1

// levelOf normalizes the value passed to [AtLevel]. Plain ints work, as does
// any named type with an integer underlying kind, so callers can declare an
// enum of levels:
//
//	type Tier int
//
//	const (
//		App Tier = iota + 1
//		Request
//	)
func levelOf(v any) (int, error) {
	rv := reflect.ValueOf(v)

	var n int
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n = int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n = int(rv.Uint())
	default:
		return 0, fmt.Errorf("%w: %T is not an integer kind", ErrBadLevel, v)
	}

	if n < 1 {
		return 0, fmt.Errorf("%w: %d, levels start at 1", ErrBadLevel, n)
	}
	return n, nil
}
