package expr

import "reflect"

// Rebind returns a copy of n with every parameter found in m replaced by its
// mapped value. Nodes that reference no mapped parameter are shared, not
// copied.
func Rebind(n Node, m map[*Param]*Param) Node {
	switch t := n.(type) {
	case *Param:
		if r, ok := m[t]; ok {
			return r
		}
		return t
	case *Member:
		return &Member{Target: Rebind(t.Target, m), Name: t.Name}
	case *Compare:
		return &Compare{Op: t.Op, Left: Rebind(t.Left, m), Right: Rebind(t.Right, m)}
	case *Logical:
		return &Logical{Op: t.Op, Left: Rebind(t.Left, m), Right: Rebind(t.Right, m)}
	case *Not:
		return &Not{Operand: Rebind(t.Operand, m)}
	default:
		return n
	}
}

// Compose merges two lambdas into one over first's parameter. second's body
// is rebound so it refers to first.Param before merge is applied. Neither
// input is modified.
func Compose(first, second *Lambda, merge func(left, right Node) Node) *Lambda {
	if first == nil || second == nil {
		return nil
	}
	body := Rebind(second.Body, map[*Param]*Param{second.Param: first.Param})
	return &Lambda{Param: first.Param, Body: merge(first.Body, body)}
}

// AndAlso is the conjunction of two lambdas.
func AndAlso(first, second *Lambda) *Lambda {
	return Compose(first, second, func(left, right Node) Node {
		return &Logical{Op: OpAnd, Left: left, Right: right}
	})
}

// OrElse is the disjunction of two lambdas.
func OrElse(first, second *Lambda) *Lambda {
	return Compose(first, second, func(left, right Node) Node {
		return &Logical{Op: OpOr, Left: left, Right: right}
	})
}

// Negate returns the logical negation of l. A body that is already a Not is
// unwrapped instead of being negated twice.
func Negate(l *Lambda) *Lambda {
	if l == nil {
		return nil
	}
	if n, ok := l.Body.(*Not); ok {
		return &Lambda{Param: l.Param, Body: n.Operand}
	}
	return &Lambda{Param: l.Param, Body: &Not{Operand: l.Body}}
}

// True returns a lambda that accepts every candidate.
func True() *Lambda {
	return NewLambda(nil, &Const{Value: true})
}

// Equal reports whether a and b have the same structure. Parameters are
// matched positionally, so x => x.age > 1 equals y => y.age > 1.
func Equal(a, b *Lambda) bool {
	if a == nil || b == nil {
		return a == b
	}
	return equalNode(a.Body, b.Body, a.Param, b.Param)
}

func equalNode(a, b Node, pa, pb *Param) bool {
	switch x := a.(type) {
	case *Param:
		y, ok := b.(*Param)
		if !ok {
			return false
		}
		if x == pa || y == pb {
			return x == pa && y == pb
		}
		return x == y
	case *Member:
		y, ok := b.(*Member)
		return ok && x.Name == y.Name && equalNode(x.Target, y.Target, pa, pb)
	case *Const:
		y, ok := b.(*Const)
		return ok && reflect.DeepEqual(x.Value, y.Value)
	case *Compare:
		y, ok := b.(*Compare)
		return ok && x.Op == y.Op &&
			equalNode(x.Left, y.Left, pa, pb) && equalNode(x.Right, y.Right, pa, pb)
	case *Logical:
		y, ok := b.(*Logical)
		return ok && x.Op == y.Op &&
			equalNode(x.Left, y.Left, pa, pb) && equalNode(x.Right, y.Right, pa, pb)
	case *Not:
		y, ok := b.(*Not)
		return ok && equalNode(x.Operand, y.Operand, pa, pb)
	default:
		return false
	}
}

// Walk calls fn for n and each of its descendants in depth-first order.
// Returning false from fn skips the node's children.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch t := n.(type) {
	case *Member:
		Walk(t.Target, fn)
	case *Compare:
		Walk(t.Left, fn)
		Walk(t.Right, fn)
	case *Logical:
		Walk(t.Left, fn)
		Walk(t.Right, fn)
	case *Not:
		Walk(t.Operand, fn)
	}
}

// Params returns the distinct parameters referenced by n in the order they
// are first encountered.
func Params(n Node) []*Param {
	var out []*Param
	seen := map[*Param]bool{}
	Walk(n, func(n Node) bool {
		if p, ok := n.(*Param); ok && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
		return true
	})
	return out
}
