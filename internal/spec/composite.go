package spec

import (
	"slices"
	"sync"

	"github.com/rshade/specrepo/internal/expr"
)

// Evaluation is the outcome of evaluating a composite against one candidate.
type Evaluation[T any] struct {
	Satisfied bool
	// UnMet lists the non-composite specifications that returned false, in
	// evaluation order. Nested composites are flattened.
	UnMet []Specification[T]
}

// Composite joins two specifications with a logical connective.
//
// Both children are always evaluated so UnMet is complete. For Or that means
// UnMet may be non-empty even when the composite is satisfied.
type Composite[T any] struct {
	op        expr.LogicalOp
	first     Specification[T]
	second    Specification[T]
	predicate *expr.Lambda

	mu    sync.Mutex
	unmet []Specification[T]

	once     sync.Once
	compiled func(T) bool
	err      error
}

// And returns the conjunction of first and second.
func And[T any](first, second Specification[T]) *Composite[T] {
	return newComposite(expr.OpAnd, first, second)
}

// Or returns the disjunction of first and second.
func Or[T any](first, second Specification[T]) *Composite[T] {
	return newComposite(expr.OpOr, first, second)
}

func newComposite[T any](op expr.LogicalOp, first, second Specification[T]) *Composite[T] {
	c := &Composite[T]{op: op, first: first, second: second}
	if IsNil(first) || IsNil(second) {
		return c
	}
	switch op {
	case expr.OpOr:
		c.predicate = expr.OrElse(first.Predicate(), second.Predicate())
	default:
		c.predicate = expr.AndAlso(first.Predicate(), second.Predicate())
	}
	return c
}

// Operator returns the connective joining the children.
func (c *Composite[T]) Operator() expr.LogicalOp { return c.op }

// First returns the left child.
func (c *Composite[T]) First() Specification[T] { return c.first }

// Second returns the right child.
func (c *Composite[T]) Second() Specification[T] { return c.second }

// Predicate returns the combined lambda. It is nil when either child is nil
// or has no predicate.
func (c *Composite[T]) Predicate() *expr.Lambda { return c.predicate }

// Name renders the combined predicate.
func (c *Composite[T]) Name() string { return c.predicate.String() }

func (c *Composite[T]) String() string { return c.Name() }

// Func compiles the combined predicate once.
func (c *Composite[T]) Func() (func(T) bool, error) {
	c.once.Do(func() {
		if c.predicate == nil {
			c.err = ErrInvalidArgument
			return
		}
		c.compiled, c.err = expr.Compile[T](c.predicate)
	})
	return c.compiled, c.err
}

// Evaluate checks candidate and collects every failing leaf into a fresh
// slice. It does not touch the state read by UnMetSpecifications, so it is
// safe to call concurrently.
func (c *Composite[T]) Evaluate(candidate T) Evaluation[T] {
	var unmet []Specification[T]
	ok := c.walk(candidate, &unmet)
	return Evaluation[T]{Satisfied: ok, UnMet: unmet}
}

func (c *Composite[T]) walk(candidate T, unmet *[]Specification[T]) bool {
	left := evalChild(c.first, candidate, unmet)
	right := evalChild(c.second, candidate, unmet)
	if c.op == expr.OpOr {
		return left || right
	}
	return left && right
}

func evalChild[T any](s Specification[T], candidate T, unmet *[]Specification[T]) bool {
	if IsNil(s) {
		return false
	}
	if child, ok := s.(*Composite[T]); ok {
		return child.walk(candidate, unmet)
	}
	if s.IsSatisfiedBy(candidate) {
		return true
	}
	*unmet = append(*unmet, s)
	return false
}

// IsSatisfiedBy evaluates candidate and records the failing leaves for
// UnMetSpecifications.
func (c *Composite[T]) IsSatisfiedBy(candidate T) bool {
	ev := c.Evaluate(candidate)
	c.mu.Lock()
	c.unmet = ev.UnMet
	c.mu.Unlock()
	return ev.Satisfied
}

// UnMetSpecifications returns the leaves that failed during the most recent
// IsSatisfiedBy call. Prefer Evaluate when the composite is shared between
// goroutines.
func (c *Composite[T]) UnMetSpecifications() []Specification[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.unmet)
}

// BuildSatisfying applies the first child's builder, then the second's.
func (c *Composite[T]) BuildSatisfying(candidate T) {
	if !IsNil(c.first) {
		c.first.BuildSatisfying(candidate)
	}
	if !IsNil(c.second) {
		c.second.BuildSatisfying(candidate)
	}
}

func (c *Composite[T]) And(other Specification[T]) Specification[T] { return And[T](c, other) }

func (c *Composite[T]) Or(other Specification[T]) Specification[T] { return Or[T](c, other) }

func (c *Composite[T]) Not() Specification[T] { return Not[T](c) }
