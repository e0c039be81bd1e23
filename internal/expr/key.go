package expr

import (
	"fmt"
	"strings"
	"time"
)

// Key returns a structural encoding of l for use as a cache key. Unlike
// String, every constant carries its Go type and a quoted form, so two
// lambdas share a key only when they are Equal, except that times are keyed
// by instant. Parameter names do not affect the key.
func (l *Lambda) Key() string {
	if l == nil {
		return "<nil>"
	}
	var b strings.Builder
	writeKey(&b, l.Param, l.Body)
	return b.String()
}

func writeKey(b *strings.Builder, self *Param, n Node) {
	switch x := n.(type) {
	case *Param:
		if x == self {
			b.WriteString("$")
			return
		}
		fmt.Fprintf(b, "$%q", x.Name)
	case *Member:
		writeKey(b, self, x.Target)
		fmt.Fprintf(b, ".%q", x.Name)
	case *Const:
		writeConstKey(b, x.Value)
	case *Compare:
		fmt.Fprintf(b, "%s(", x.Op)
		writeKey(b, self, x.Left)
		b.WriteString(",")
		writeKey(b, self, x.Right)
		b.WriteString(")")
	case *Logical:
		fmt.Fprintf(b, "%s(", x.Op)
		writeKey(b, self, x.Left)
		b.WriteString(",")
		writeKey(b, self, x.Right)
		b.WriteString(")")
	case *Not:
		b.WriteString("not(")
		writeKey(b, self, x.Operand)
		b.WriteString(")")
	default:
		fmt.Fprintf(b, "%T", n)
	}
}

func writeConstKey(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("nil")
	case time.Time:
		fmt.Fprintf(b, "time.Time(%s)", x.UTC().Format(time.RFC3339Nano))
	default:
		fmt.Fprintf(b, "%T(%#v)", v, v)
	}
}
