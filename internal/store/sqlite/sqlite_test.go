package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/specrepo/internal/entity"
	"github.com/rshade/specrepo/internal/expr"
	"github.com/rshade/specrepo/internal/sortfield"
	"github.com/rshade/specrepo/internal/store"
	"github.com/rshade/specrepo/internal/store/memory"
)

type person struct {
	entity.Base[string]

	Name   string         `json:"name"`
	Age    int            `json:"age"`
	Tags   []string       `json:"tags"`
	Active bool           `json:"active"`
	Labels map[string]any `json:"labels,omitempty"`
	Seen   time.Time      `json:"seen"`
}

var reflectPerson = reflect.TypeFor[*person]()

var newYear = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Seen values straddle newYear so that their RFC 3339 text sorts differently
// from their instants.
func people() []*person {
	return []*person{
		{Base: entity.Base[string]{ID: "p1"}, Name: "Alice", Age: 34, Tags: []string{"admin", "ops"}, Active: true,
			Labels: map[string]any{"team": "core", "rank": "x"}, Seen: newYear.Add(500 * time.Millisecond)},
		{Base: entity.Base[string]{ID: "p2"}, Name: "Bob", Age: 17, Tags: []string{"guest"},
			Seen: newYear.Add(-time.Hour)},
		{Base: entity.Base[string]{ID: "p3"}, Name: "Carol", Age: 34, Tags: []string{"ops"}, Active: true,
			Seen: newYear},
		{Base: entity.Base[string]{ID: "p4"}, Name: "Alfred", Age: 52, Active: true,
			Labels: map[string]any{"team": "edge", "rank": 3.5}, Seen: newYear.Add(48 * time.Hour)},
	}
}

func openStore(t *testing.T) *Store[*person, string] {
	t.Helper()
	ctx := context.Background()
	s, err := Open[*person, string](ctx, filepath.Join(t.TempDir(), "people.db"), "people")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, p store.Provider[*person, string]) {
	t.Helper()
	ctx := context.Background()
	for _, item := range people() {
		require.NoError(t, p.StageAdd(ctx, item))
	}
	require.NoError(t, p.Commit(ctx))
}

func ids(items []*person) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func TestOpen_InvalidTable(t *testing.T) {
	for _, table := range []string{"", "1people", "people; DROP TABLE x", "a-b"} {
		_, err := Open[*person, string](context.Background(), ":memory:", table)
		require.ErrorIs(t, err, ErrInvalidTable, table)
	}
}

// The SQL translation must select exactly what the in-memory evaluator does.
func TestFetch_MatchesMemoryProvider(t *testing.T) {
	ctx := context.Background()
	sq := openStore(t)
	seed(t, sq)
	mem := memory.New[*person, string]()
	seed(t, mem)

	tests := []struct {
		name string
		q    store.Query
	}{
		{name: "all", q: store.NewQuery()},
		{name: "eq", q: store.NewQuery().Filter(expr.Field("age").Eq(34))},
		{name: "ne", q: store.NewQuery().Filter(expr.Field("name").Ne("Bob"))},
		{name: "gte", q: store.NewQuery().Filter(expr.Field("age").Gte(18))},
		{name: "lt", q: store.NewQuery().Filter(expr.Field("age").Lt(34))},
		{name: "prefix", q: store.NewQuery().Filter(expr.Field("name").HasPrefix("Al"))},
		{name: "substring", q: store.NewQuery().Filter(expr.Field("name").Contains("ro"))},
		{name: "list element", q: store.NewQuery().Filter(expr.Field("tags").Contains("ops"))},
		{name: "list element is whole", q: store.NewQuery().Filter(expr.Field("tags").Contains("op"))},
		{name: "in", q: store.NewQuery().Filter(expr.Field("name").In("Bob", "Carol", "Zed"))},
		{name: "in empty", q: store.NewQuery().Filter(expr.Field("name").In())},
		{name: "bool member", q: store.NewQuery().Filter(expr.Field("active").IsTrue())},
		{name: "map key", q: store.NewQuery().Filter(expr.Field("labels.team").Eq("core"))},
		{name: "missing map key is nil", q: store.NewQuery().Filter(expr.Field("labels.team").IsNil())},
		{name: "negated missing", q: store.NewQuery().Filter(expr.Negate(expr.Field("labels.team").Eq("core")))},
		{name: "ordered with missing", q: store.NewQuery().Filter(expr.Field("labels.team").Gt("a"))},
		{name: "and", q: store.NewQuery().Filter(expr.Field("active").IsTrue()).Filter(expr.Field("age").Lt(40))},
		{name: "or", q: store.NewQuery().Filter(expr.OrElse(expr.Field("age").Lt(18), expr.Field("age").Gt(50)))},
		{name: "sorted", q: store.NewQuery().OrderBy(sortfield.Desc("age")).ThenBy(sortfield.Asc("name"))},
		{name: "sorted by missing", q: store.NewQuery().OrderBy(sortfield.Asc("labels.team"))},
		{name: "unknown sort ignored", q: store.NewQuery().OrderBy(sortfield.Asc("nope")).ThenBy(sortfield.Desc("name"))},
		{name: "window", q: store.NewQuery().OrderBy(sortfield.Asc("name")).Skip(1).Take(2)},
		{name: "skip only", q: store.NewQuery().OrderBy(sortfield.Asc("name")).Skip(3)},
		{name: "take zero", q: store.NewQuery().Take(0)},
		{name: "time gt time", q: store.NewQuery().Filter(expr.Field("seen").Gt(newYear))},
		{name: "time eq time", q: store.NewQuery().Filter(expr.Field("seen").Eq(newYear))},
		{name: "time ne time", q: store.NewQuery().Filter(expr.Field("seen").Ne(newYear))},
		{name: "time lte time", q: store.NewQuery().Filter(expr.Field("seen").Lte(newYear.Add(500 * time.Millisecond)))},
		{name: "time in another zone", q: store.NewQuery().Filter(
			expr.Field("seen").Gte(newYear.In(time.FixedZone("CET", 3600))))},
		{name: "time gt date text", q: store.NewQuery().Filter(expr.Field("seen").Gt("2025-01-01"))},
		{name: "time lt fractional text", q: store.NewQuery().Filter(expr.Field("seen").Lt("2025-01-01T00:00:00.25Z"))},
		{name: "time gte offset text", q: store.NewQuery().Filter(expr.Field("seen").Gte("2025-01-01T01:00:00+01:00"))},
		{name: "time vs unreadable text", q: store.NewQuery().Filter(expr.Field("seen").Gt("soon"))},
		{name: "time ne unreadable text", q: store.NewQuery().Filter(expr.Field("seen").Ne("soon"))},
		{name: "time vs number", q: store.NewQuery().Filter(expr.Field("seen").Lt(20000))},
		{name: "sorted by time", q: store.NewQuery().OrderBy(sortfield.Asc("seen"))},
		{name: "sorted by time descending", q: store.NewQuery().OrderBy(sortfield.Desc("seen"))},
		{name: "mixed types ascending", q: store.NewQuery().OrderBy(sortfield.Asc("labels.rank"))},
		{name: "mixed types descending", q: store.NewQuery().OrderBy(sortfield.Desc("labels.rank"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, err := mem.Fetch(ctx, tt.q)
			require.NoError(t, err)
			got, err := sq.Fetch(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, ids(want), ids(got))

			wantCount, err := mem.Count(ctx, tt.q)
			require.NoError(t, err)
			gotCount, err := sq.Count(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, wantCount, gotCount)
		})
	}
}

func TestFetch_TimeOrder(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	seed(t, s)

	got, err := s.Fetch(ctx, store.NewQuery().Filter(expr.Field("seen").Gt(newYear)))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p4"}, ids(got))

	got, err = s.Fetch(ctx, store.NewQuery().Filter(expr.Field("seen").Gt("2025-01-01")))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p4"}, ids(got))

	got, err = s.Fetch(ctx, store.NewQuery().OrderBy(sortfield.Asc("seen")))
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p3", "p1", "p4"}, ids(got))

	got, err = s.Fetch(ctx, store.NewQuery().OrderBy(sortfield.Desc("labels.rank")))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p4", "p2", "p3"}, ids(got), "text sorts after numbers")
}

func TestFetch_UnknownFieldFails(t *testing.T) {
	s := openStore(t)
	_, err := s.Fetch(context.Background(), store.NewQuery().Filter(expr.Field("nope").Eq(1)))
	require.Error(t, err)
}

func TestFetch_RoundTripsEntity(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	seed(t, s)

	got, found, err := s.FindByID(ctx, "p1", false)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, people()[0], got)

	_, found, err = s.FindByID(ctx, "missing", false)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCommit_TrackedEntitiesAreWrittenBack(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	seed(t, s)

	editable, found, err := s.FindByID(ctx, "p2", true)
	require.NoError(t, err)
	require.True(t, found)
	editable.Age = 18

	detached, _, err := s.FindByID(ctx, "p3", false)
	require.NoError(t, err)
	detached.Age = 99

	require.NoError(t, s.Commit(ctx))

	reloaded, _, err := s.FindByID(ctx, "p2", false)
	require.NoError(t, err)
	assert.Equal(t, 18, reloaded.Age)
	untouched, _, err := s.FindByID(ctx, "p3", false)
	require.NoError(t, err)
	assert.Equal(t, 34, untouched.Age)
}

func TestCommit_Errors(t *testing.T) {
	tests := []struct {
		name    string
		stage   func(ctx context.Context, s *Store[*person, string]) error
		wantErr error
	}{
		{
			name: "duplicate id",
			stage: func(ctx context.Context, s *Store[*person, string]) error {
				return s.StageAdd(ctx, &person{Base: entity.Base[string]{ID: "p1"}})
			},
			wantErr: store.ErrDuplicateID,
		},
		{
			name: "transient",
			stage: func(ctx context.Context, s *Store[*person, string]) error {
				return s.StageAdd(ctx, &person{Name: "nobody"})
			},
			wantErr: store.ErrTransient,
		},
		{
			name: "remove missing",
			stage: func(ctx context.Context, s *Store[*person, string]) error {
				return s.StageRemove(ctx, &person{Base: entity.Base[string]{ID: "ghost"}})
			},
			wantErr: store.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := openStore(t)
			seed(t, s)

			require.NoError(t, s.StageAdd(ctx, &person{Base: entity.Base[string]{ID: "p9"}, Name: "Zed"}))
			require.NoError(t, tt.stage(ctx, s))

			err := s.Commit(ctx)
			require.ErrorIs(t, err, store.ErrPersistence)
			require.ErrorIs(t, err, tt.wantErr)

			_, found, err := s.FindByID(ctx, "p9", false)
			require.NoError(t, err)
			assert.False(t, found, "a failed commit applies nothing")
			assert.Equal(t, 2, s.Pending(), "staged writes survive a failed commit")
		})
	}
}

func TestCommit_RemoveThenAdd(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	seed(t, s)

	require.NoError(t, s.StageRemove(ctx, &person{Base: entity.Base[string]{ID: "p1"}}))
	require.NoError(t, s.StageAdd(ctx, &person{Base: entity.Base[string]{ID: "p1"}, Name: "Alice II"}))
	require.NoError(t, s.Commit(ctx))
	assert.Zero(t, s.Pending())

	all, err := s.Fetch(ctx, store.NewQuery())
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p3", "p4", "p1"}, ids(all))
}

func TestNew_SharedDatabase(t *testing.T) {
	ctx := context.Background()
	owner, err := Open[*person, string](ctx, ":memory:", "people")
	require.NoError(t, err)
	defer owner.Close()

	other, err := New[*person, string](ctx, owner.db, "archive")
	require.NoError(t, err)
	require.NoError(t, other.StageAdd(ctx, &person{Base: entity.Base[string]{ID: "x"}}))
	require.NoError(t, other.Commit(ctx))
	require.NoError(t, other.Close())

	n, err := other.Count(ctx, store.NewQuery())
	require.NoError(t, err, "closing a borrowed database is a no-op")
	assert.Equal(t, 1, n)

	n, err = owner.Count(ctx, store.NewQuery())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBuildSelect(t *testing.T) {
	q := store.NewQuery().
		Filter(expr.Field("age").Gte(18)).
		OrderBy(sortfield.Desc("name")).
		Skip(10).
		Take(5)

	query, args, err := buildSelect(reflectPerson, "people", q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT doc FROM people WHERE COALESCE(json_extract(doc, ?) >= ?, 0) `+
			`ORDER BY json_extract(doc, ?) DESC, rowid ASC LIMIT ? OFFSET ?`,
		query)
	assert.Equal(t, []any{`$."age"`, int64(18), `$."name"`, 5, 10}, args)
}

func TestBuildSelect_Time(t *testing.T) {
	q := store.NewQuery().
		Filter(expr.Field("seen").Gt("2025-01-01")).
		OrderBy(sortfield.Asc("seen"))

	query, args, err := buildSelect(reflectPerson, "people", q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT doc FROM people WHERE COALESCE(`+
			`julianday(CASE json_type(doc, ?) WHEN 'text' THEN json_extract(doc, ?) END) > julianday(?), 0) `+
			`ORDER BY julianday(json_extract(doc, ?)) ASC, rowid ASC`,
		query)
	assert.Equal(t, []any{`$."seen"`, `$."seen"`, "2025-01-01T00:00:00Z", `$."seen"`}, args)
}

func TestJSONPath(t *testing.T) {
	p, err := jsonPath([]string{"labels", "a.b"})
	require.NoError(t, err)
	assert.Equal(t, `$."labels"."a.b"`, p)

	_, err = jsonPath([]string{`bad"key`})
	require.ErrorIs(t, err, ErrUntranslatable)
}
