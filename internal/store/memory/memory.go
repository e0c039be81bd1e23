// Package memory is an in-process store.Provider.
//
// Committed entities live in a map guarded by a RWMutex and are always
// handed out as deep copies. A Snapshotter can be attached to persist the
// committed state on every commit and reload it at startup.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rshade/specrepo/internal/entity"
	"github.com/rshade/specrepo/internal/expr"
	"github.com/rshade/specrepo/internal/logging"
	"github.com/rshade/specrepo/internal/sortfield"
	"github.com/rshade/specrepo/internal/store"
)

// Snapshotter persists the full committed state.
type Snapshotter[T any] interface {
	Load(ctx context.Context) ([]T, error)
	Save(ctx context.Context, items []T) error
}

// Option configures a Store.
type Option[T entity.Entity[ID], ID comparable] func(*Store[T, ID])

// WithSnapshotter persists every successful commit through s.
func WithSnapshotter[T entity.Entity[ID], ID comparable](s Snapshotter[T]) Option[T, ID] {
	return func(st *Store[T, ID]) { st.snapshot = s }
}

// Store keeps entities in memory.
type Store[T entity.Entity[ID], ID comparable] struct {
	mu       sync.RWMutex
	items    map[ID]T
	order    []ID
	changes  *store.ChangeSet[T, ID]
	snapshot Snapshotter[T]
}

var _ store.Provider[entity.Entity[string], string] = (*Store[entity.Entity[string], string])(nil)

// New returns an empty store.
func New[T entity.Entity[ID], ID comparable](opts ...Option[T, ID]) *Store[T, ID] {
	s := &Store[T, ID]{
		items:   make(map[ID]T),
		changes: store.NewChangeSet[T, ID](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns a store seeded from snapshot. Entities are kept in the order
// the snapshot lists them; duplicate identifiers are rejected.
func Open[T entity.Entity[ID], ID comparable](
	ctx context.Context,
	snapshot Snapshotter[T],
	opts ...Option[T, ID],
) (*Store[T, ID], error) {
	s := New[T, ID](append([]Option[T, ID]{WithSnapshotter[T, ID](snapshot)}, opts...)...)
	items, err := snapshot.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	for _, item := range items {
		if entity.IsNil[ID](item) {
			continue
		}
		id := item.EntityID()
		if _, exists := s.items[id]; exists {
			return nil, fmt.Errorf("failed to load snapshot: %w", store.NewPersistenceError("load", id, store.ErrDuplicateID))
		}
		s.items[id] = item
		s.order = append(s.order, id)
	}
	logging.FromContext(ctx).Debug().
		Str("component", "store.memory").
		Int("entities", len(s.order)).
		Msg("loaded snapshot")
	return s, nil
}

// Len returns the number of committed entities.
func (s *Store[T, ID]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Fetch returns the matches for q as detached copies, or as tracked copies
// when q is a tracking query.
func (s *Store[T, ID]) Fetch(ctx context.Context, q store.Query) ([]T, error) {
	matches, err := s.match(ctx, q.Where())
	if err != nil {
		return nil, err
	}
	sortfield.Sort(matches, q.Ordering())
	return s.materialize(store.Window(matches, q), q.Tracking())
}

// Count returns the number of matches for q.
func (s *Store[T, ID]) Count(ctx context.Context, q store.Query) (int, error) {
	matches, err := s.match(ctx, q.Where())
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

// FindByID returns a copy of the entity with id.
func (s *Store[T, ID]) FindByID(ctx context.Context, id ID, tracking bool) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	s.mu.RLock()
	item, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return zero, false, nil
	}
	out, err := s.materialize([]T{item}, tracking)
	if err != nil {
		return zero, false, err
	}
	return out[0], true, nil
}

// match returns the committed entities that satisfy where, in insertion
// order. The returned values are the stored instances and must not escape.
func (s *Store[T, ID]) match(ctx context.Context, where *expr.Lambda) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var pred func(T) bool
	if where != nil {
		var err error
		if pred, err = expr.Compile[T](where); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		item := s.items[id]
		if pred == nil || pred(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *Store[T, ID]) materialize(items []T, tracking bool) ([]T, error) {
	out := make([]T, len(items))
	for i, item := range items {
		copied, err := store.Detach(item)
		if err != nil {
			return nil, err
		}
		if tracking {
			copied = s.changes.Track(copied)
		}
		out[i] = copied
	}
	return out, nil
}

// StageAdd schedules e for insertion.
func (s *Store[T, ID]) StageAdd(_ context.Context, e T) error {
	return s.changes.Stage(store.ChangeAdd, e)
}

// StageRemove schedules e for deletion.
func (s *Store[T, ID]) StageRemove(_ context.Context, e T) error {
	return s.changes.Stage(store.ChangeRemove, e)
}

// Pending returns the number of staged writes.
func (s *Store[T, ID]) Pending() int { return s.changes.Len() }

// Commit validates every staged write against a copy of the committed state
// and swaps it in only when all of them succeed.
func (s *Store[T, ID]) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	changes, tracked := s.changes.Snapshot()
	if len(changes) == 0 && len(tracked) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := make(map[ID]T, len(s.items)+len(changes))
	for id, item := range s.items {
		items[id] = item
	}
	order := slices.Clone(s.order)
	removed := make(map[ID]bool)

	var zero ID
	for _, change := range changes {
		id := change.Entity.EntityID()
		switch change.Kind {
		case store.ChangeAdd:
			if id == zero {
				return store.NewPersistenceError("add", nil, store.ErrTransient)
			}
			if _, exists := items[id]; exists {
				return store.NewPersistenceError("add", id, store.ErrDuplicateID)
			}
			copied, err := store.Detach(change.Entity)
			if err != nil {
				return store.NewPersistenceError("add", id, err)
			}
			items[id] = copied
			order = append(order, id)
			delete(removed, id)
		case store.ChangeRemove:
			if _, exists := items[id]; !exists {
				return store.NewPersistenceError("remove", id, store.ErrNotFound)
			}
			delete(items, id)
			order = slices.DeleteFunc(order, func(other ID) bool { return other == id })
			removed[id] = true
		}
	}

	for _, e := range tracked {
		id := e.EntityID()
		if removed[id] {
			continue
		}
		if _, exists := items[id]; !exists {
			return store.NewPersistenceError("update", id, store.ErrNotFound)
		}
		copied, err := store.Detach(e)
		if err != nil {
			return store.NewPersistenceError("update", id, err)
		}
		items[id] = copied
	}

	if s.snapshot != nil {
		snapshot := make([]T, len(order))
		for i, id := range order {
			snapshot[i] = items[id]
		}
		if err := s.snapshot.Save(ctx, snapshot); err != nil {
			return store.NewPersistenceError("save", nil, err)
		}
	}

	s.items, s.order = items, order
	s.changes.Settle(changes)

	logging.FromContext(ctx).Debug().
		Str("component", "store.memory").
		Int("changes", len(changes)).
		Int("tracked", len(tracked)).
		Msg("committed")
	return nil
}
