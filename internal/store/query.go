package store

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rshade/specrepo/internal/expr"
	"github.com/rshade/specrepo/internal/sortfield"
)

// Query describes a read. Every builder method returns a new Query; the
// receiver is never modified.
type Query struct {
	where    *expr.Lambda
	order    []sortfield.Descriptor
	skip     int
	take     int
	hasTake  bool
	tracking bool
}

// NewQuery returns a query that matches everything.
func NewQuery() Query { return Query{} }

// Filter narrows the query. Filtering twice keeps both predicates.
func (q Query) Filter(where *expr.Lambda) Query {
	switch {
	case where == nil:
	case q.where == nil:
		q.where = where
	default:
		q.where = expr.AndAlso(q.where, where)
	}
	return q
}

// OrderBy replaces any existing ordering with d.
func (q Query) OrderBy(d sortfield.Descriptor) Query {
	q.order = []sortfield.Descriptor{d}
	return q
}

// ThenBy appends a secondary ordering.
func (q Query) ThenBy(d sortfield.Descriptor) Query {
	order := make([]sortfield.Descriptor, 0, len(q.order)+1)
	order = append(order, q.order...)
	q.order = append(order, d)
	return q
}

// OrderByAll applies descs as OrderBy followed by ThenBy calls.
func (q Query) OrderByAll(descs []sortfield.Descriptor) Query {
	for i, d := range descs {
		if i == 0 {
			q = q.OrderBy(d)
			continue
		}
		q = q.ThenBy(d)
	}
	return q
}

// Skip drops the first n matches. Negative values are treated as 0.
func (q Query) Skip(n int) Query {
	q.skip = max(n, 0)
	return q
}

// Take limits the result to n matches. Negative values are treated as 0.
func (q Query) Take(n int) Query {
	q.take = max(n, 0)
	q.hasTake = true
	return q
}

// AsTracking marks the results for change tracking.
func (q Query) AsTracking() Query {
	q.tracking = true
	return q
}

// AsNoTracking returns detached results. This is the default.
func (q Query) AsNoTracking() Query {
	q.tracking = false
	return q
}

// Unbounded drops ordering and windowing, keeping only the predicate. Counts
// run against the unbounded form.
func (q Query) Unbounded() Query {
	return Query{where: q.where}
}

// Where returns the predicate, or nil when the query matches everything.
func (q Query) Where() *expr.Lambda { return q.where }

// Ordering returns a copy of the ordering.
func (q Query) Ordering() []sortfield.Descriptor { return slices.Clone(q.order) }

// Offset returns the number of skipped matches.
func (q Query) Offset() int { return q.skip }

// Limit returns the Take value and whether one was set.
func (q Query) Limit() (int, bool) { return q.take, q.hasTake }

// Tracking reports whether results are tracked.
func (q Query) Tracking() bool { return q.tracking }

// Window applies the query's skip and take to an already ordered slice.
func Window[T any](items []T, q Query) []T {
	start := min(q.skip, len(items))
	end := len(items)
	if q.hasTake {
		end = min(start+q.take, end)
	}
	return items[start:end]
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString("where ")
	if q.where == nil {
		b.WriteString("true")
	} else {
		b.WriteString(q.where.String())
	}
	if len(q.order) > 0 {
		parts := make([]string, len(q.order))
		for i, d := range q.order {
			parts[i] = d.String()
		}
		fmt.Fprintf(&b, " order by %s", strings.Join(parts, ", "))
	}
	if q.skip > 0 {
		fmt.Fprintf(&b, " skip %d", q.skip)
	}
	if q.hasTake {
		fmt.Fprintf(&b, " take %d", q.take)
	}
	if q.tracking {
		b.WriteString(" tracking")
	}
	return b.String()
}
