package expr

import (
	"fmt"
	"strings"
	"time"
)

// Op is a comparison operator.
type Op string

// Comparison operators.
const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpContains Op = "contains"
	OpPrefix   Op = "prefix"
	OpIn       Op = "in"
)

// Symbol returns the operator as it is rendered by String.
func (o Op) Symbol() string {
	switch o {
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpContains, OpPrefix, OpIn:
		return string(o)
	default:
		return "?" + string(o)
	}
}

// Ordered reports whether the operator needs an ordering between operands.
func (o Op) Ordered() bool {
	return o == OpGt || o == OpGte || o == OpLt || o == OpLte
}

// LogicalOp joins two boolean nodes.
type LogicalOp string

// Logical connectives.
const (
	OpAnd LogicalOp = "and"
	OpOr  LogicalOp = "or"
)

// Node is an element of a predicate tree.
type Node interface {
	fmt.Stringer
	node()
}

// Param is the single input of a Lambda. Params are compared by identity.
type Param struct {
	Name string
}

// Member selects a named field or key from Target.
type Member struct {
	Target Node
	Name   string
}

// Const is a literal operand.
type Const struct {
	Value any
}

// Compare applies Op to two operands.
type Compare struct {
	Op    Op
	Left  Node
	Right Node
}

// Logical joins two boolean nodes with Op.
type Logical struct {
	Op    LogicalOp
	Left  Node
	Right Node
}

// Not negates a boolean node.
type Not struct {
	Operand Node
}

func (*Param) node()   {}
func (*Member) node()  {}
func (*Const) node()   {}
func (*Compare) node() {}
func (*Logical) node() {}
func (*Not) node()     {}

func (p *Param) String() string {
	if p == nil || p.Name == "" {
		return "x"
	}
	return p.Name
}

func (m *Member) String() string {
	return m.Target.String() + "." + m.Name
}

func (c *Const) String() string {
	switch v := c.Value.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("%q", v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (c *Compare) String() string {
	return fmt.Sprintf("(%s %s %s)", c.Left, c.Op.Symbol(), c.Right)
}

func (l *Logical) String() string {
	sym := "&&"
	if l.Op == OpOr {
		sym = "||"
	}
	return fmt.Sprintf("(%s %s %s)", l.Left, sym, l.Right)
}

func (n *Not) String() string {
	return "!" + n.Operand.String()
}

// Lambda is a predicate over a single parameter.
type Lambda struct {
	Param *Param
	Body  Node
}

// NewLambda builds a lambda, allocating a parameter when p is nil.
func NewLambda(p *Param, body Node) *Lambda {
	if p == nil {
		p = &Param{Name: "x"}
	}
	return &Lambda{Param: p, Body: body}
}

func (l *Lambda) String() string {
	if l == nil {
		return "<nil>"
	}
	return l.Param.String() + " => " + l.Body.String()
}

// Path builds the member chain for a dotted path rooted at p.
func Path(p *Param, path string) Node {
	var n Node = p
	for _, seg := range strings.Split(path, ".") {
		if seg = strings.TrimSpace(seg); seg != "" {
			n = &Member{Target: n, Name: seg}
		}
	}
	return n
}

// MemberPath unwinds a member chain. ok is false when n is not a chain of
// members ending at a parameter.
func MemberPath(n Node) (root *Param, segments []string, ok bool) {
	for {
		switch t := n.(type) {
		case *Member:
			segments = append(segments, t.Name)
			n = t.Target
		case *Param:
			for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
				segments[i], segments[j] = segments[j], segments[i]
			}
			return t, segments, len(segments) > 0
		default:
			return nil, nil, false
		}
	}
}
