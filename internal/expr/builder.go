package expr

// FieldRef starts a single-comparison lambda on a dotted path.
//
//	expr.Field("customer.age").Gte(18)
type FieldRef struct {
	path string
}

// Field returns a builder for comparisons on path.
func Field(path string) FieldRef {
	return FieldRef{path: path}
}

// Path returns the dotted path the builder targets.
func (f FieldRef) Path() string { return f.path }

func (f FieldRef) compare(op Op, value any) *Lambda {
	p := &Param{Name: "x"}
	return &Lambda{
		Param: p,
		Body:  &Compare{Op: op, Left: Path(p, f.path), Right: &Const{Value: value}},
	}
}

// Eq matches values equal to v.
func (f FieldRef) Eq(v any) *Lambda { return f.compare(OpEq, v) }

// Ne matches values not equal to v.
func (f FieldRef) Ne(v any) *Lambda { return f.compare(OpNe, v) }

// Gt matches values greater than v.
func (f FieldRef) Gt(v any) *Lambda { return f.compare(OpGt, v) }

// Gte matches values greater than or equal to v.
func (f FieldRef) Gte(v any) *Lambda { return f.compare(OpGte, v) }

// Lt matches values less than v.
func (f FieldRef) Lt(v any) *Lambda { return f.compare(OpLt, v) }

// Lte matches values less than or equal to v.
func (f FieldRef) Lte(v any) *Lambda { return f.compare(OpLte, v) }

// Contains matches strings containing v, or slices holding an element equal to v.
func (f FieldRef) Contains(v any) *Lambda { return f.compare(OpContains, v) }

// HasPrefix matches strings starting with prefix.
func (f FieldRef) HasPrefix(prefix string) *Lambda { return f.compare(OpPrefix, prefix) }

// In matches values equal to any of values.
func (f FieldRef) In(values ...any) *Lambda { return f.compare(OpIn, values) }

// IsNil matches missing or nil values.
func (f FieldRef) IsNil() *Lambda { return f.compare(OpEq, nil) }

// IsTrue matches a boolean member that is true.
func (f FieldRef) IsTrue() *Lambda {
	p := &Param{Name: "x"}
	return &Lambda{Param: p, Body: Path(p, f.path)}
}
