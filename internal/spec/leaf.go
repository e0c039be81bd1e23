package spec

import (
	"fmt"
	"sync"

	"github.com/rshade/specrepo/internal/expr"
)

// Option configures a Leaf.
type Option[T any] func(*Leaf[T])

// WithName labels the rule. The label is what UnMetSpecifications callers
// usually show to users.
func WithName[T any](name string) Option[T] {
	return func(l *Leaf[T]) { l.name = name }
}

// WithBuilder sets the function BuildSatisfying delegates to.
func WithBuilder[T any](build func(candidate T)) Option[T] {
	return func(l *Leaf[T]) { l.build = build }
}

// Leaf is a specification defined directly by a predicate.
type Leaf[T any] struct {
	name      string
	predicate *expr.Lambda
	build     func(T)

	once     sync.Once
	compiled func(T) bool
	err      error
}

// New returns a leaf specification for predicate.
func New[T any](predicate *expr.Lambda, opts ...Option[T]) *Leaf[T] {
	l := &Leaf[T]{predicate: predicate}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Where wraps an ad-hoc predicate. Its BuildSatisfying is a no-op.
func Where[T any](predicate *expr.Lambda) *Leaf[T] {
	return New[T](predicate)
}

// Name returns the label, defaulting to the rendered predicate.
func (l *Leaf[T]) Name() string {
	if l.name != "" {
		return l.name
	}
	return l.predicate.String()
}

func (l *Leaf[T]) String() string { return l.Name() }

// Predicate returns the declarative rule.
func (l *Leaf[T]) Predicate() *expr.Lambda { return l.predicate }

// Func compiles the predicate once and returns the cached result.
func (l *Leaf[T]) Func() (func(T) bool, error) {
	l.once.Do(func() {
		if l.predicate == nil {
			l.err = fmt.Errorf("%w: specification %q has no predicate", ErrInvalidArgument, l.name)
			return
		}
		l.compiled, l.err = expr.Compile[T](l.predicate)
	})
	return l.compiled, l.err
}

// Err reports whether the predicate failed to compile.
func (l *Leaf[T]) Err() error {
	_, err := l.Func()
	return err
}

// IsSatisfiedBy evaluates the compiled predicate. A predicate that does not
// compile satisfies nothing; check Err to tell the two apart.
func (l *Leaf[T]) IsSatisfiedBy(candidate T) bool {
	fn, err := l.Func()
	if err != nil {
		return false
	}
	return fn(candidate)
}

// BuildSatisfying runs the configured builder, if any.
func (l *Leaf[T]) BuildSatisfying(candidate T) {
	if l.build != nil {
		l.build(candidate)
	}
}

func (l *Leaf[T]) And(other Specification[T]) Specification[T] { return And[T](l, other) }

func (l *Leaf[T]) Or(other Specification[T]) Specification[T] { return Or[T](l, other) }

func (l *Leaf[T]) Not() Specification[T] { return Not[T](l) }
