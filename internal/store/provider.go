package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/copystructure"

	"github.com/rshade/specrepo/internal/entity"
)

// Provider executes queries and buffers writes for one entity type.
//
// Implementations must be safe for concurrent reads. Staging and Commit
// follow a single-writer discipline: the owner of the repository stages and
// commits, possibly while reads run concurrently.
type Provider[T entity.Entity[ID], ID comparable] interface {
	// Fetch returns the matches for q in order.
	Fetch(ctx context.Context, q Query) ([]T, error)
	// Count returns the number of matches for q, ignoring ordering and window.
	Count(ctx context.Context, q Query) (int, error)
	// FindByID returns the entity with id. found is false when none exists.
	FindByID(ctx context.Context, id ID, tracking bool) (T, bool, error)

	// StageAdd schedules e for insertion at the next Commit.
	StageAdd(ctx context.Context, e T) error
	// StageRemove schedules e for deletion at the next Commit.
	StageRemove(ctx context.Context, e T) error
	// Commit applies staged changes and tracked modifications atomically.
	// On failure nothing is applied and the staged changes are kept.
	Commit(ctx context.Context) error
	// Pending returns the number of staged additions and removals.
	Pending() int
}

// Persistence errors.
var (
	ErrPersistence  = errors.New("persistence error")
	ErrDuplicateID  = errors.New("an entity with this identifier already exists")
	ErrNotFound     = errors.New("entity does not exist")
	ErrTransient    = errors.New("entity has no identifier")
	ErrNilEntity    = errors.New("entity cannot be nil")
	ErrDetachFailed = errors.New("failed to copy entity")
)

// PersistenceError reports a failed write. errors.Is(err, ErrPersistence)
// holds for every PersistenceError.
type PersistenceError struct {
	Op  string
	ID  any
	Err error
}

// NewPersistenceError wraps err for operation op on the entity with id.
func NewPersistenceError(op string, id any, err error) *PersistenceError {
	return &PersistenceError{Op: op, ID: id, Err: err}
}

func (e *PersistenceError) Error() string {
	if e.ID == nil {
		return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence error: %s %v: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Detach returns a deep copy of v so callers cannot reach stored state.
func Detach[T any](v T) (T, error) {
	out, err := copystructure.Copy(v)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrDetachFailed, err)
	}
	if out == nil {
		var zero T
		return zero, nil
	}
	copied, ok := out.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: unexpected type %T", ErrDetachFailed, out)
	}
	return copied, nil
}
