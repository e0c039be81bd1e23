package spec

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/rshade/specrepo/internal/expr"
)

// Specification errors.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrConstraintConflict = errors.New("specifications are not compatible")
)

// Specification is a named business rule over candidates of type T.
type Specification[T any] interface {
	// IsSatisfiedBy evaluates the rule against candidate.
	IsSatisfiedBy(candidate T) bool
	// Predicate returns the declarative form of the rule.
	Predicate() *expr.Lambda
	// BuildSatisfying mutates candidate so that it satisfies the rule.
	// Rules that cannot build leave the candidate untouched.
	BuildSatisfying(candidate T)

	And(other Specification[T]) Specification[T]
	Or(other Specification[T]) Specification[T]
	Not() Specification[T]
}

// IsNil reports whether s is nil or a typed nil pointer.
func IsNil[T any](s Specification[T]) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// Equal reports whether two specifications have structurally equal
// predicates.
func Equal[T any](a, b Specification[T]) bool {
	if IsNil(a) || IsNil(b) {
		return IsNil(a) && IsNil(b)
	}
	return expr.Equal(a.Predicate(), b.Predicate())
}

type compiler[T any] interface {
	Func() (func(T) bool, error)
}

// Func returns s as a plain predicate function.
func Func[T any](s Specification[T]) (func(T) bool, error) {
	if IsNil(s) {
		return nil, fmt.Errorf("%w: specification is nil", ErrInvalidArgument)
	}
	if c, ok := s.(compiler[T]); ok {
		return c.Func()
	}
	return expr.Compile[T](s.Predicate())
}

// Create builds a candidate that satisfies accordingTo. newFn supplies a
// fresh value, the rule populates it and the result is re-evaluated. A rule
// whose parts demand contradictory values yields ErrConstraintConflict.
func Create[T any](newFn func() T, accordingTo Specification[T]) (T, error) {
	var zero T
	if newFn == nil {
		return zero, fmt.Errorf("%w: constructor is nil", ErrInvalidArgument)
	}
	if IsNil(accordingTo) {
		return zero, fmt.Errorf("%w: specification is nil", ErrInvalidArgument)
	}

	candidate := newFn()
	accordingTo.BuildSatisfying(candidate)

	if c, ok := accordingTo.(*Composite[T]); ok {
		ev := c.Evaluate(candidate)
		if !ev.Satisfied {
			return zero, fmt.Errorf("%w: unmet %s", ErrConstraintConflict, Names(ev.UnMet))
		}
		return candidate, nil
	}
	if !accordingTo.IsSatisfiedBy(candidate) {
		return zero, fmt.Errorf("%w: unmet %s", ErrConstraintConflict, Name(accordingTo))
	}
	return candidate, nil
}

// Name returns a readable label for s.
func Name[T any](s Specification[T]) string {
	if IsNil(s) {
		return "<nil>"
	}
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return s.Predicate().String()
}

// Names joins the labels of specs.
func Names[T any](specs []Specification[T]) string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = Name(s)
	}
	return "[" + strings.Join(names, ", ") + "]"
}
