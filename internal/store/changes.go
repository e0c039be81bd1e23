package store

import (
	"slices"
	"sync"

	"github.com/rshade/specrepo/internal/entity"
)

// ChangeKind distinguishes staged writes.
type ChangeKind int

// Change kinds.
const (
	ChangeAdd ChangeKind = iota + 1
	ChangeRemove
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdd:
		return "add"
	case ChangeRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Change is one staged write.
type Change[T any] struct {
	Kind   ChangeKind
	Entity T
}

// ChangeSet buffers staged writes and tracked entities between commits.
// Providers embed one and drain it inside Commit.
type ChangeSet[T entity.Entity[ID], ID comparable] struct {
	mu      sync.Mutex
	changes []Change[T]
	tracked map[ID]T
	order   []ID
}

// NewChangeSet returns an empty change set.
func NewChangeSet[T entity.Entity[ID], ID comparable]() *ChangeSet[T, ID] {
	return &ChangeSet[T, ID]{tracked: make(map[ID]T)}
}

// Stage records a write.
func (c *ChangeSet[T, ID]) Stage(kind ChangeKind, e T) error {
	if entity.IsNil[ID](e) {
		return ErrNilEntity
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, Change[T]{Kind: kind, Entity: e})
	return nil
}

// Track registers e for write-back. When an entity with the same identifier
// is already tracked, the existing instance is returned instead so a unit of
// work never holds two diverging copies of one entity.
func (c *ChangeSet[T, ID]) Track(e T) T {
	id := e.EntityID()
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.tracked[id]; ok {
		return existing
	}
	c.tracked[id] = e
	c.order = append(c.order, id)
	return e
}

// Snapshot returns the staged writes and tracked entities in the order they
// were recorded.
func (c *ChangeSet[T, ID]) Snapshot() ([]Change[T], []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	changes := make([]Change[T], len(c.changes))
	copy(changes, c.changes)
	tracked := make([]T, 0, len(c.order))
	for _, id := range c.order {
		tracked = append(tracked, c.tracked[id])
	}
	return changes, tracked
}

// Len returns the number of staged writes.
func (c *ChangeSet[T, ID]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.changes)
}

// Untrack forgets the tracked entity with id.
func (c *ChangeSet[T, ID]) Untrack(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tracked[id]; !ok {
		return
	}
	delete(c.tracked, id)
	c.order = slices.DeleteFunc(c.order, func(other ID) bool { return other == id })
}

// Settle records a successful commit of changes, the prefix of staged writes
// returned by Snapshot. Those writes are dropped, added entities become
// tracked and removed ones are forgotten. Writes staged after the Snapshot
// survive.
func (c *ChangeSet[T, ID]) Settle(changes []Change[T]) {
	c.mu.Lock()
	n := min(len(changes), len(c.changes))
	c.changes = append([]Change[T](nil), c.changes[n:]...)
	c.mu.Unlock()

	for _, change := range changes {
		switch change.Kind {
		case ChangeAdd:
			c.Track(change.Entity)
		case ChangeRemove:
			c.Untrack(change.Entity.EntityID())
		}
	}
}
