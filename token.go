package prereq

import (
	"context"
	"reflect"
)

// TypeOf returns the type token for T. Tokens key the provider registry and
// every scope cache; use TypeOf to name interface types in [Covers]:
//
//	prereq.Covers(prereq.TypeOf[Greeter]())
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// coverable reports whether t may appear in a provider's coverage. The empty
// interface would match every request, and error is reserved for the invoke
// contract's failure channel.
func coverable(t reflect.Type) bool {
	if t == errType {
		return false
	}
	if t.Kind() == reflect.Interface && t.NumMethod() == 0 {
		return false
	}
	return true
}
