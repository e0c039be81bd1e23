package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/specrepo/internal/entity"
	"github.com/rshade/specrepo/internal/expr"
	"github.com/rshade/specrepo/internal/sortfield"
	"github.com/rshade/specrepo/internal/store"
)

type account struct {
	entity.Base[string]

	Owner   string   `json:"owner"`
	Balance int      `json:"balance"`
	Tags    []string `json:"tags"`
}

func newAccount(id, owner string, balance int) *account {
	return &account{Base: entity.Base[string]{ID: id}, Owner: owner, Balance: balance}
}

func seeded(t *testing.T) *Store[*account, string] {
	t.Helper()
	s := New[*account, string]()
	ctx := context.Background()
	for _, a := range []*account{
		newAccount("a1", "ada", 100),
		newAccount("a2", "bob", 50),
		newAccount("a3", "cy", 300),
		newAccount("a4", "dee", 50),
	} {
		require.NoError(t, s.StageAdd(ctx, a))
	}
	require.NoError(t, s.Commit(ctx))
	return s
}

func ids(items []*account) []string {
	out := make([]string, len(items))
	for i, a := range items {
		out[i] = a.ID
	}
	return out
}

type fakeSnapshot struct {
	items   []*account
	saved   [][]*account
	saveErr error
	loadErr error
}

func (f *fakeSnapshot) Load(context.Context) ([]*account, error) { return f.items, f.loadErr }

func (f *fakeSnapshot) Save(_ context.Context, items []*account) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, items)
	return nil
}

func TestStore_Fetch(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	tests := []struct {
		name string
		q    store.Query
		want []string
	}{
		{name: "all in insertion order", q: store.NewQuery(), want: []string{"a1", "a2", "a3", "a4"}},
		{name: "filter", q: store.NewQuery().Filter(expr.Field("balance").Gte(100)), want: []string{"a1", "a3"}},
		{name: "order desc", q: store.NewQuery().OrderBy(sortfield.Desc("balance")), want: []string{"a3", "a1", "a2", "a4"}},
		{
			name: "then by",
			q:    store.NewQuery().OrderBy(sortfield.Asc("balance")).ThenBy(sortfield.Desc("owner")),
			want: []string{"a4", "a2", "a1", "a3"},
		},
		{name: "window", q: store.NewQuery().OrderBy(sortfield.Asc("owner")).Skip(1).Take(2), want: []string{"a2", "a3"}},
		{name: "no match", q: store.NewQuery().Filter(expr.Field("owner").Eq("zed")), want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Fetch(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestStore_FetchCompileError(t *testing.T) {
	s := seeded(t)
	_, err := s.Fetch(context.Background(), store.NewQuery().Filter(expr.Field("nope").Eq(1)))
	require.Error(t, err)
}

func TestStore_Count(t *testing.T) {
	s := seeded(t)
	n, err := s.Count(context.Background(), store.NewQuery().Filter(expr.Field("balance").Eq(50)).Take(1))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_NonTrackingReadsAreDetached(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	got, found, err := s.FindByID(ctx, "a1", false)
	require.NoError(t, err)
	require.True(t, found)
	got.Balance = 9999

	require.NoError(t, s.Commit(ctx))

	again, _, err := s.FindByID(ctx, "a1", false)
	require.NoError(t, err)
	assert.Equal(t, 100, again.Balance)
	assert.NotSame(t, got, again)
}

func TestStore_TrackingReadsAreWrittenBack(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	items, err := s.Fetch(ctx, store.NewQuery().Filter(expr.Field("owner").Eq("bob")).AsTracking())
	require.NoError(t, err)
	require.Len(t, items, 1)
	items[0].Balance = 75

	same, found, err := s.FindByID(ctx, "a2", true)
	require.NoError(t, err)
	require.True(t, found)
	assert.Same(t, items[0], same, "a unit of work holds one instance per entity")

	assert.Equal(t, 0, s.Pending(), "tracked entities are not staged writes")
	require.NoError(t, s.Commit(ctx))

	stored, _, err := s.FindByID(ctx, "a2", false)
	require.NoError(t, err)
	assert.Equal(t, 75, stored.Balance)
}

func TestStore_FindByIDMissing(t *testing.T) {
	s := seeded(t)
	got, found, err := s.FindByID(context.Background(), "missing", false)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestStore_StagedWritesInvisibleUntilCommit(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	require.NoError(t, s.StageAdd(ctx, newAccount("a5", "eve", 1)))
	assert.Equal(t, 1, s.Pending())

	n, err := s.Count(ctx, store.NewQuery())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, 5, s.Len())
}

func TestStore_StagedEntityIsCopiedAtCommit(t *testing.T) {
	s := New[*account, string]()
	ctx := context.Background()
	a := newAccount("x", "xavier", 1)
	require.NoError(t, s.StageAdd(ctx, a))
	require.NoError(t, s.Commit(ctx))

	a.Balance = 500
	got, _, err := s.FindByID(ctx, "x", false)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Balance)
}

func TestStore_Remove(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	target, _, err := s.FindByID(ctx, "a2", false)
	require.NoError(t, err)
	require.NoError(t, s.StageRemove(ctx, target))
	require.NoError(t, s.Commit(ctx))

	all, err := s.Fetch(ctx, store.NewQuery())
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a3", "a4"}, ids(all))
}

func TestStore_CommitFailures(t *testing.T) {
	tests := []struct {
		name    string
		stage   func(ctx context.Context, s *Store[*account, string]) error
		wantErr error
	}{
		{
			name: "duplicate id",
			stage: func(ctx context.Context, s *Store[*account, string]) error {
				return s.StageAdd(ctx, newAccount("a1", "again", 0))
			},
			wantErr: store.ErrDuplicateID,
		},
		{
			name: "duplicate within batch",
			stage: func(ctx context.Context, s *Store[*account, string]) error {
				if err := s.StageAdd(ctx, newAccount("n1", "x", 0)); err != nil {
					return err
				}
				return s.StageAdd(ctx, newAccount("n1", "y", 0))
			},
			wantErr: store.ErrDuplicateID,
		},
		{
			name: "remove missing",
			stage: func(ctx context.Context, s *Store[*account, string]) error {
				return s.StageRemove(ctx, newAccount("ghost", "", 0))
			},
			wantErr: store.ErrNotFound,
		},
		{
			name: "transient add",
			stage: func(ctx context.Context, s *Store[*account, string]) error {
				return s.StageAdd(ctx, &account{Owner: "nobody"})
			},
			wantErr: store.ErrTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seeded(t)
			ctx := context.Background()
			require.NoError(t, s.StageAdd(ctx, newAccount("ok", "fine", 1)))
			require.NoError(t, tt.stage(ctx, s))
			pending := s.Pending()

			err := s.Commit(ctx)
			require.ErrorIs(t, err, store.ErrPersistence)
			require.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, 4, s.Len(), "a failed commit applies nothing")
			assert.Equal(t, pending, s.Pending(), "a failed commit keeps staged writes")
		})
	}
}

func TestStore_StageNil(t *testing.T) {
	s := New[*account, string]()
	require.ErrorIs(t, s.StageAdd(context.Background(), nil), store.ErrNilEntity)
	require.ErrorIs(t, s.StageRemove(context.Background(), nil), store.ErrNilEntity)
}

func TestStore_CanceledContext(t *testing.T) {
	s := seeded(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Fetch(ctx, store.NewQuery())
	require.ErrorIs(t, err, context.Canceled)
	_, err = s.Count(ctx, store.NewQuery())
	require.ErrorIs(t, err, context.Canceled)
	_, _, err = s.FindByID(ctx, "a1", false)
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpen_Snapshot(t *testing.T) {
	ctx := context.Background()
	snap := &fakeSnapshot{items: []*account{newAccount("s1", "sam", 10), newAccount("s2", "sue", 20)}}

	s, err := Open[*account, string](ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.StageAdd(ctx, newAccount("s3", "sal", 30)))
	require.NoError(t, s.Commit(ctx))
	require.Len(t, snap.saved, 1)
	assert.Equal(t, []string{"s1", "s2", "s3"}, ids(snap.saved[0]))
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Open[*account, string](ctx, &fakeSnapshot{loadErr: errors.New("disk gone")})
	require.ErrorContains(t, err, "disk gone")

	dup := &fakeSnapshot{items: []*account{newAccount("d", "x", 0), newAccount("d", "y", 0)}}
	_, err = Open[*account, string](ctx, dup)
	require.ErrorIs(t, err, store.ErrDuplicateID)
}

func TestStore_SnapshotFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	snap := &fakeSnapshot{items: []*account{newAccount("s1", "sam", 10)}}
	s, err := Open[*account, string](ctx, snap)
	require.NoError(t, err)

	snap.saveErr = errors.New("read-only filesystem")
	require.NoError(t, s.StageAdd(ctx, newAccount("s2", "sue", 20)))

	err = s.Commit(ctx)
	require.ErrorIs(t, err, store.ErrPersistence)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.Pending())
}
