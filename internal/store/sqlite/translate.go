package sqlite

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/rshade/specrepo/internal/expr"
	"github.com/rshade/specrepo/internal/fieldpath"
	"github.com/rshade/specrepo/internal/sortfield"
	"github.com/rshade/specrepo/internal/store"
)

// ErrUntranslatable is returned for predicates that have no SQL form.
var ErrUntranslatable = errors.New("predicate cannot be translated to SQL")

// statement accumulates SQL text and its positional arguments.
type statement struct {
	sql  strings.Builder
	args []any
}

func (s *statement) write(parts ...string) {
	for _, p := range parts {
		s.sql.WriteString(p)
	}
}

func (s *statement) bind(v any) {
	s.sql.WriteString("?")
	s.args = append(s.args, v)
}

// translator renders a lambda body as a boolean SQL expression over the
// JSON document column. Every comparison yields 0 or 1, never NULL, so NOT
// behaves the same as the in-memory evaluation.
type translator struct {
	root  reflect.Type
	param *expr.Param
	out   *statement
}

func (t *translator) boolean(n expr.Node) error {
	switch x := n.(type) {
	case *expr.Logical:
		op := " AND "
		if x.Op == expr.OpOr {
			op = " OR "
		}
		t.out.write("(")
		if err := t.boolean(x.Left); err != nil {
			return err
		}
		t.out.write(op)
		if err := t.boolean(x.Right); err != nil {
			return err
		}
		t.out.write(")")
		return nil
	case *expr.Not:
		t.out.write("NOT ")
		return t.boolean(x.Operand)
	case *expr.Const:
		b, ok := x.Value.(bool)
		if !ok {
			return fmt.Errorf("%w: constant %s is not boolean", ErrUntranslatable, x)
		}
		if b {
			t.out.write("1")
		} else {
			t.out.write("0")
		}
		return nil
	case *expr.Member:
		t.out.write("COALESCE(")
		if err := t.member(x); err != nil {
			return err
		}
		t.out.write(" = 1, 0)")
		return nil
	case *expr.Compare:
		return t.compare(x)
	default:
		return fmt.Errorf("%w: %s", ErrUntranslatable, n)
	}
}

func (t *translator) compare(c *expr.Compare) error {
	left, right := c.Left, c.Right
	if isNilConst(left) && !isNilConst(right) {
		left, right = right, left
	}

	if isNilConst(right) {
		switch c.Op { //nolint:exhaustive // other operators never match nil
		case expr.OpEq:
			return t.wrap(left, " IS NULL")
		case expr.OpNe:
			return t.wrap(left, " IS NOT NULL")
		default:
			t.out.write("0")
			return nil
		}
	}

	if op, fallback, ok := orderedOp(c.Op); ok && (t.temporal(left) || t.temporal(right)) {
		return t.chronological(left, op, right, fallback)
	}

	switch c.Op {
	case expr.OpEq:
		return t.binary(left, " = ", right, "0")
	case expr.OpNe:
		return t.binary(left, " <> ", right, "1")
	case expr.OpGt:
		return t.binary(left, " > ", right, "0")
	case expr.OpGte:
		return t.binary(left, " >= ", right, "0")
	case expr.OpLt:
		return t.binary(left, " < ", right, "0")
	case expr.OpLte:
		return t.binary(left, " <= ", right, "0")
	case expr.OpContains:
		if m, ok := left.(*expr.Member); ok {
			acc, err := t.accessor(m)
			if err != nil {
				return err
			}
			if isList(acc.Leaf()) {
				return t.element(acc, right)
			}
		}
		t.out.write("COALESCE(instr(")
		if err := t.operand(left); err != nil {
			return err
		}
		t.out.write(", ")
		if err := t.operand(right); err != nil {
			return err
		}
		t.out.write(") > 0, 0)")
		return nil
	case expr.OpPrefix:
		t.out.write("COALESCE(substr(")
		if err := t.operand(left); err != nil {
			return err
		}
		t.out.write(", 1, length(")
		if err := t.operand(right); err != nil {
			return err
		}
		t.out.write(")) = ")
		if err := t.operand(right); err != nil {
			return err
		}
		t.out.write(", 0)")
		return nil
	case expr.OpIn:
		return t.in(left, right)
	default:
		return fmt.Errorf("%w: operator %q", ErrUntranslatable, c.Op)
	}
}

// binary renders COALESCE(left op right, fallback). The fallback is the
// in-memory result when one side is missing.
func (t *translator) binary(left expr.Node, op string, right expr.Node, fallback string) error {
	t.out.write("COALESCE(")
	if err := t.operand(left); err != nil {
		return err
	}
	t.out.write(op)
	if err := t.operand(right); err != nil {
		return err
	}
	t.out.write(", ", fallback, ")")
	return nil
}

func orderedOp(op expr.Op) (string, string, bool) {
	switch op { //nolint:exhaustive // only operators that order their operands
	case expr.OpEq:
		return " = ", "0", true
	case expr.OpNe:
		return " <> ", "1", true
	case expr.OpGt:
		return " > ", "0", true
	case expr.OpGte:
		return " >= ", "0", true
	case expr.OpLt:
		return " < ", "0", true
	case expr.OpLte:
		return " <= ", "0", true
	default:
		return "", "", false
	}
}

// temporal reports whether n is a time constant or a member whose static
// type is a time.
func (t *translator) temporal(n expr.Node) bool {
	switch x := n.(type) {
	case *expr.Const:
		switch v := x.Value.(type) {
		case time.Time:
			return true
		case *time.Time:
			return v != nil
		default:
			return false
		}
	case *expr.Member:
		acc, err := t.accessor(x)
		return err == nil && isTime(acc.Leaf())
	default:
		return false
	}
}

// chronological compares both sides as julian day numbers, so instants order
// correctly whatever their text width or zone offset. A constant that cannot
// be read as a time matches nothing, as in memory.
func (t *translator) chronological(left expr.Node, op string, right expr.Node, fallback string) error {
	for _, side := range []expr.Node{left, right} {
		if c, ok := side.(*expr.Const); ok {
			if _, ok := timeConst(c.Value); !ok {
				t.out.write(fallback)
				return nil
			}
		}
	}
	t.out.write("COALESCE(")
	if err := t.julian(left); err != nil {
		return err
	}
	t.out.write(op)
	if err := t.julian(right); err != nil {
		return err
	}
	t.out.write(", ", fallback, ")")
	return nil
}

// julian renders n as julianday(...). Members are passed only when stored as
// text, since julianday reads a bare number as a day count.
func (t *translator) julian(n expr.Node) error {
	switch x := n.(type) {
	case *expr.Member:
		path, err := t.path(x)
		if err != nil {
			return err
		}
		t.out.write("julianday(CASE json_type(doc, ")
		t.out.bind(path)
		t.out.write(") WHEN 'text' THEN json_extract(doc, ")
		t.out.bind(path)
		t.out.write(") END)")
		return nil
	case *expr.Const:
		tv, ok := timeConst(x.Value)
		if !ok {
			return fmt.Errorf("%w: constant %s is not a time", ErrUntranslatable, x)
		}
		t.out.write("julianday(")
		t.out.bind(tv.UTC().Format(time.RFC3339Nano))
		t.out.write(")")
		return nil
	default:
		return fmt.Errorf("%w: operand %s", ErrUntranslatable, n)
	}
}

// timeConst reads v as an instant: a time value or a string in one of the
// forms fieldpath.ParseTime accepts.
func timeConst(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, true
	}
	if s, ok := fieldpath.AsString(v); ok {
		return fieldpath.ParseTime(s)
	}
	return time.Time{}, false
}

var timeType = reflect.TypeFor[time.Time]()

func isTime(t reflect.Type) bool {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t == timeType
}

func (t *translator) wrap(n expr.Node, suffix string) error {
	t.out.write("(")
	if err := t.operand(n); err != nil {
		return err
	}
	t.out.write(suffix, ")")
	return nil
}

func (t *translator) in(left, right expr.Node) error {
	c, ok := right.(*expr.Const)
	if !ok {
		return fmt.Errorf("%w: IN needs a constant list", ErrUntranslatable)
	}
	rv := reflect.ValueOf(c.Value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return fmt.Errorf("%w: IN needs a constant list", ErrUntranslatable)
	}
	if rv.Len() == 0 {
		t.out.write("0")
		return nil
	}
	t.out.write("COALESCE(")
	if err := t.operand(left); err != nil {
		return err
	}
	t.out.write(" IN (")
	for i := range rv.Len() {
		if i > 0 {
			t.out.write(", ")
		}
		v, err := sqlValue(rv.Index(i).Interface())
		if err != nil {
			return err
		}
		t.out.bind(v)
	}
	t.out.write("), 0)")
	return nil
}

func (t *translator) operand(n expr.Node) error {
	switch x := n.(type) {
	case *expr.Member:
		return t.member(x)
	case *expr.Const:
		v, err := sqlValue(x.Value)
		if err != nil {
			return err
		}
		t.out.bind(v)
		return nil
	default:
		return fmt.Errorf("%w: operand %s", ErrUntranslatable, n)
	}
}

// element renders list membership through json_each so that only whole
// elements match.
func (t *translator) element(acc *fieldpath.Accessor, right expr.Node) error {
	path, err := jsonPath(acc.StorageKeys())
	if err != nil {
		return err
	}
	t.out.write("EXISTS (SELECT 1 FROM json_each(doc, ")
	t.out.bind(path)
	t.out.write(") WHERE value = ")
	if err := t.operand(right); err != nil {
		return err
	}
	t.out.write(")")
	return nil
}

func (t *translator) accessor(m *expr.Member) (*fieldpath.Accessor, error) {
	root, segments, ok := expr.MemberPath(m)
	if !ok || root != t.param {
		return nil, fmt.Errorf("%w: member %s is not rooted at the lambda parameter", ErrUntranslatable, m)
	}
	return fieldpath.Resolve(t.root, strings.Join(segments, "."))
}

func (t *translator) path(m *expr.Member) (string, error) {
	acc, err := t.accessor(m)
	if err != nil {
		return "", err
	}
	return jsonPath(acc.StorageKeys())
}

func (t *translator) member(m *expr.Member) error {
	path, err := t.path(m)
	if err != nil {
		return err
	}
	t.out.write("json_extract(doc, ")
	t.out.bind(path)
	t.out.write(")")
	return nil
}

func isList(t reflect.Type) bool {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return false
	}
	return (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) && t.Elem().Kind() != reflect.Uint8
}

func isNilConst(n expr.Node) bool {
	c, ok := n.(*expr.Const)
	return ok && c.Value == nil
}

// jsonPath quotes every key so dots and brackets inside keys stay literal.
func jsonPath(keys []string) (string, error) {
	var b strings.Builder
	b.WriteString("$")
	for _, k := range keys {
		if strings.ContainsRune(k, '"') {
			return "", fmt.Errorf("%w: key %q contains a double quote", ErrUntranslatable, k)
		}
		b.WriteString(`."`)
		b.WriteString(k)
		b.WriteString(`"`)
	}
	return b.String(), nil
}

// sqlValue converts a constant into the form json_extract produces for the
// same JSON value.
func sqlValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return x.UTC().Format(time.RFC3339Nano), nil
	}

	rv := reflect.ValueOf(v)
	if n, ok := numeric(rv); ok {
		return n, nil
	}
	switch rv.Kind() { //nolint:exhaustive // scalars only
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil
	default:
		return nil, fmt.Errorf("%w: unsupported constant type %T", ErrUntranslatable, v)
	}
}

func numeric(rv reflect.Value) (any, bool) {
	switch rv.Kind() { //nolint:exhaustive // numeric kinds only
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true //nolint:gosec // JSON numbers beyond int64 are not representable in SQLite either
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return nil, false
	}
}

// buildSelect renders the full SELECT for q.
func buildSelect(root reflect.Type, table string, q store.Query) (string, []any, error) {
	st := &statement{}
	st.write("SELECT doc FROM ", table)
	if err := writeWhere(st, root, q); err != nil {
		return "", nil, err
	}

	st.write(" ORDER BY ")
	for _, step := range sortfield.ResolveAll(root, q.Ordering()) {
		path, err := jsonPath(step.Accessor().StorageKeys())
		if err != nil {
			return "", nil, err
		}
		closing := ")"
		if isTime(step.Accessor().Leaf()) {
			st.write("julianday(")
			closing = "))"
		}
		st.write("json_extract(doc, ")
		st.bind(path)
		if step.Direction.IsDescending() {
			st.write(closing, " DESC, ")
		} else {
			st.write(closing, " ASC, ")
		}
	}
	st.write("rowid ASC")

	take, hasTake := q.Limit()
	switch {
	case hasTake:
		st.write(" LIMIT ")
		st.bind(take)
		st.write(" OFFSET ")
		st.bind(q.Offset())
	case q.Offset() > 0:
		st.write(" LIMIT -1 OFFSET ")
		st.bind(q.Offset())
	}
	return st.sql.String(), st.args, nil
}

// buildCount renders SELECT COUNT(*) for q's predicate.
func buildCount(root reflect.Type, table string, q store.Query) (string, []any, error) {
	st := &statement{}
	st.write("SELECT COUNT(*) FROM ", table)
	if err := writeWhere(st, root, q); err != nil {
		return "", nil, err
	}
	return st.sql.String(), st.args, nil
}

func writeWhere(st *statement, root reflect.Type, q store.Query) error {
	where := q.Where()
	if where == nil {
		return nil
	}
	st.write(" WHERE ")
	t := &translator{root: root, param: where.Param, out: st}
	return t.boolean(where.Body)
}
