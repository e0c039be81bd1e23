package spec

import (
	"sync"

	"github.com/rshade/specrepo/internal/expr"
)

// Negation inverts another specification.
type Negation[T any] struct {
	inner     Specification[T]
	predicate *expr.Lambda

	once     sync.Once
	compiled func(T) bool
	err      error
}

// Not returns the negation of inner.
func Not[T any](inner Specification[T]) *Negation[T] {
	n := &Negation[T]{inner: inner}
	if !IsNil(inner) {
		n.predicate = expr.Negate(inner.Predicate())
	}
	return n
}

// Inner returns the negated specification.
func (n *Negation[T]) Inner() Specification[T] { return n.inner }

func (n *Negation[T]) Predicate() *expr.Lambda { return n.predicate }

func (n *Negation[T]) Name() string { return "!" + Name(n.inner) }

func (n *Negation[T]) String() string { return n.Name() }

func (n *Negation[T]) Func() (func(T) bool, error) {
	n.once.Do(func() {
		if n.predicate == nil {
			n.err = ErrInvalidArgument
			return
		}
		n.compiled, n.err = expr.Compile[T](n.predicate)
	})
	return n.compiled, n.err
}

// IsSatisfiedBy is true when the inner specification is not satisfied. Like
// a leaf, a negation whose inner predicate does not compile satisfies
// nothing.
func (n *Negation[T]) IsSatisfiedBy(candidate T) bool {
	if IsNil(n.inner) {
		return false
	}
	if _, err := Func(n.inner); err != nil {
		return false
	}
	return !n.inner.IsSatisfiedBy(candidate)
}

// BuildSatisfying is a no-op: there is no general way to make a candidate
// fail a rule.
func (n *Negation[T]) BuildSatisfying(T) {}

func (n *Negation[T]) And(other Specification[T]) Specification[T] { return And[T](n, other) }

func (n *Negation[T]) Or(other Specification[T]) Specification[T] { return Or[T](n, other) }

func (n *Negation[T]) Not() Specification[T] { return Not[T](n) }
