package expr

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/rshade/specrepo/internal/fieldpath"
)

// Compilation errors.
var (
	ErrNilLambda      = errors.New("lambda cannot be nil")
	ErrUnboundParam   = errors.New("expression references an unbound parameter")
	ErrNotBoolean     = errors.New("expression does not produce a boolean")
	ErrUnsupportedOp  = errors.New("unsupported operator")
	ErrInvalidOperand = errors.New("invalid operand")
)

type (
	boolFunc  func(reflect.Value) bool
	valueFunc func(reflect.Value) any
)

// Compile turns l into a predicate over T. Every member path is resolved
// against T up front, so unknown fields fail here rather than at evaluation.
func Compile[T any](l *Lambda) (func(T) bool, error) {
	if l == nil || l.Param == nil || l.Body == nil {
		return nil, ErrNilLambda
	}
	c := &compiler{param: l.Param, root: reflect.TypeFor[T]()}
	pred, err := c.boolean(l.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", l, err)
	}
	return func(candidate T) bool {
		return pred(reflect.ValueOf(&candidate).Elem())
	}, nil
}

type compiler struct {
	param *Param
	root  reflect.Type
}

func (c *compiler) boolean(n Node) (boolFunc, error) {
	switch t := n.(type) {
	case *Logical:
		left, err := c.boolean(t.Left)
		if err != nil {
			return nil, err
		}
		right, err := c.boolean(t.Right)
		if err != nil {
			return nil, err
		}
		if t.Op == OpOr {
			return func(v reflect.Value) bool { return left(v) || right(v) }, nil
		}
		return func(v reflect.Value) bool { return left(v) && right(v) }, nil
	case *Not:
		inner, err := c.boolean(t.Operand)
		if err != nil {
			return nil, err
		}
		return func(v reflect.Value) bool { return !inner(v) }, nil
	case *Compare:
		return c.compare(t)
	case *Const:
		b, ok := t.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: constant %s", ErrNotBoolean, t)
		}
		return func(reflect.Value) bool { return b }, nil
	case *Member:
		get, err := c.value(t)
		if err != nil {
			return nil, err
		}
		return func(v reflect.Value) bool {
			b, ok := get(v).(bool)
			return ok && b
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotBoolean, n)
	}
}

func (c *compiler) compare(n *Compare) (boolFunc, error) {
	eval, err := comparator(n.Op)
	if err != nil {
		return nil, err
	}
	left, err := c.value(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := c.value(n.Right)
	if err != nil {
		return nil, err
	}
	return func(v reflect.Value) bool {
		return eval(left(v), right(v))
	}, nil
}

func (c *compiler) value(n Node) (valueFunc, error) {
	switch t := n.(type) {
	case *Const:
		value := t.Value
		return func(reflect.Value) any { return value }, nil
	case *Param:
		if t != c.param {
			return nil, fmt.Errorf("%w: %s", ErrUnboundParam, t)
		}
		return func(v reflect.Value) any {
			if !v.IsValid() || !v.CanInterface() {
				return nil
			}
			return v.Interface()
		}, nil
	case *Member:
		root, segments, ok := MemberPath(t)
		if !ok {
			return nil, fmt.Errorf("%w: member %s is not rooted at a parameter", ErrInvalidOperand, t)
		}
		if root != c.param {
			return nil, fmt.Errorf("%w: %s", ErrUnboundParam, root)
		}
		acc, err := fieldpath.Resolve(c.root, strings.Join(segments, "."))
		if err != nil {
			return nil, err
		}
		return func(v reflect.Value) any {
			value, _ := acc.Interface(v)
			return value
		}, nil
	case *Compare, *Logical, *Not:
		pred, err := c.boolean(n)
		if err != nil {
			return nil, err
		}
		return func(v reflect.Value) any { return pred(v) }, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperand, n)
	}
}

// Evaluate applies op to two plain values with the same semantics as a
// compiled Compare node.
func Evaluate(op Op, left, right any) (bool, error) {
	eval, err := comparator(op)
	if err != nil {
		return false, err
	}
	return eval(left, right), nil
}

func comparator(op Op) (func(a, b any) bool, error) {
	switch op {
	case OpEq:
		return fieldpath.Equal, nil
	case OpNe:
		return func(a, b any) bool { return !fieldpath.Equal(a, b) }, nil
	case OpGt, OpGte, OpLt, OpLte:
		return func(a, b any) bool { return ordered(op, a, b) }, nil
	case OpContains:
		return contains, nil
	case OpPrefix:
		return func(a, b any) bool {
			s, ok := fieldpath.AsString(a)
			prefix, pok := fieldpath.AsString(b)
			return ok && pok && strings.HasPrefix(s, prefix)
		}, nil
	case OpIn:
		return func(a, b any) bool { return anyEqual(b, a) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOp, op)
	}
}

// ordered is false whenever either side is nil or the operands have no
// common ordering.
func ordered(op Op, a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	c, ok := fieldpath.Compare(a, b)
	if !ok {
		return false
	}
	switch op { //nolint:exhaustive // only ordered operators reach here
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	default:
		return c <= 0
	}
}

func contains(a, b any) bool {
	if s, ok := fieldpath.AsString(a); ok {
		sub, subOK := fieldpath.AsString(b)
		return subOK && strings.Contains(s, sub)
	}
	return anyEqual(a, b)
}

// anyEqual reports whether collection is a slice or array holding an element
// equal to v.
func anyEqual(collection, v any) bool {
	if collection == nil {
		return false
	}
	rv := reflect.ValueOf(collection)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := range rv.Len() {
		if fieldpath.Equal(rv.Index(i).Interface(), v) {
			return true
		}
	}
	return false
}
