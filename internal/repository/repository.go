// Package repository runs specifications against a storage provider.
//
// A Repository turns a specification, a list of sort descriptors and page
// parameters into a store.Query, hands it to its provider and assembles the
// result. Reads return detached copies unless an Editable variant is used;
// writes are staged until SaveChanges or Close commits them.
//
// Reads may run concurrently. Add, Remove, SaveChanges and Close follow a
// single-writer discipline and must be serialized by the caller.
package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rshade/specrepo/internal/cache"
	"github.com/rshade/specrepo/internal/entity"
	"github.com/rshade/specrepo/internal/logging"
	"github.com/rshade/specrepo/internal/metrics"
	"github.com/rshade/specrepo/internal/paging"
	"github.com/rshade/specrepo/internal/sortfield"
	"github.com/rshade/specrepo/internal/spec"
	"github.com/rshade/specrepo/internal/store"
)

// ErrClosed is returned by every operation after Close succeeded.
var ErrClosed = errors.New("repository is closed")

// Operation names used in logs and metrics.
const (
	opFind           = "find"
	opFindPage       = "find_page"
	opFirst          = "first_or_default"
	opCount          = "count"
	opGet            = "get"
	opGetAll         = "get_all"
	opGetPage        = "get_page"
	opAdd            = "add"
	opRemove         = "remove"
	opSaveChanges    = "save_changes"
	opClose          = "close"
	componentLogName = "repository"
)

// Option configures a Repository.
type Option[T entity.Entity[ID], ID comparable] func(*Repository[T, ID])

// WithName sets the entity label used in logs, metrics and cache keys.
func WithName[T entity.Entity[ID], ID comparable](name string) Option[T, ID] {
	return func(r *Repository[T, ID]) { r.name = name }
}

// WithMetrics records every operation on m.
func WithMetrics[T entity.Entity[ID], ID comparable](m *metrics.Recorder) Option[T, ID] {
	return func(r *Repository[T, ID]) { r.metrics = m }
}

// WithCountCache reuses match counts for identical predicates until the
// next successful commit.
func WithCountCache[T entity.Entity[ID], ID comparable](c *cache.Store[int]) Option[T, ID] {
	return func(r *Repository[T, ID]) { r.counts = c }
}

// WithMaxPageSize caps the page size accepted by FindPage and GetPage.
// Zero or negative disables the cap.
func WithMaxPageSize[T entity.Entity[ID], ID comparable](n int) Option[T, ID] {
	return func(r *Repository[T, ID]) { r.maxPageSize = n }
}

// Repository is the query executor for entities of type T.
type Repository[T entity.Entity[ID], ID comparable] struct {
	provider    store.Provider[T, ID]
	name        string
	metrics     *metrics.Recorder
	counts      *cache.Store[int]
	maxPageSize int
	closed      atomic.Bool
}

// New returns an open repository over provider.
func New[T entity.Entity[ID], ID comparable](provider store.Provider[T, ID], opts ...Option[T, ID]) (*Repository[T, ID], error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider is nil", spec.ErrInvalidArgument)
	}
	r := &Repository[T, ID]{
		provider:    provider,
		name:        typeName[T](),
		maxPageSize: paging.MaxPageSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func typeName[T any]() string {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}

// Name returns the entity label.
func (r *Repository[T, ID]) Name() string { return r.name }

// Closed reports whether Close has succeeded.
func (r *Repository[T, ID]) Closed() bool { return r.closed.Load() }

// Pending returns the number of staged additions and removals.
func (r *Repository[T, ID]) Pending() int { return r.provider.Pending() }

// Find returns every entity satisfying s, in storage order.
func (r *Repository[T, ID]) Find(ctx context.Context, s spec.Specification[T]) (items []T, err error) {
	defer r.track(ctx, opFind, time.Now(), &err)
	q, err := r.filter(s)
	if err != nil {
		return nil, err
	}
	return r.fetch(ctx, q)
}

// FindSorted returns every entity satisfying s ordered by sorts. The first
// descriptor is the primary key; later ones break ties.
func (r *Repository[T, ID]) FindSorted(
	ctx context.Context,
	s spec.Specification[T],
	sorts []sortfield.Descriptor,
) (items []T, err error) {
	defer r.track(ctx, opFind, time.Now(), &err)
	q, err := r.filter(s)
	if err != nil {
		return nil, err
	}
	return r.fetch(ctx, q.OrderByAll(sorts))
}

// FindEditable is Find with the results attached to the pending change set:
// modifications are written back by the next SaveChanges.
func (r *Repository[T, ID]) FindEditable(ctx context.Context, s spec.Specification[T]) (items []T, err error) {
	defer r.track(ctx, opFind, time.Now(), &err)
	q, err := r.filter(s)
	if err != nil {
		return nil, err
	}
	return r.fetch(ctx, q.AsTracking())
}

// FindPage returns one page of the entities satisfying s. page is 1-based;
// the result reports a 0-based Page. The page and the total match count are
// fetched by two independent provider calls.
func (r *Repository[T, ID]) FindPage(
	ctx context.Context,
	s spec.Specification[T],
	sorts []sortfield.Descriptor,
	page, pageSize int,
) (result *paging.Result[T], err error) {
	defer r.track(ctx, opFindPage, time.Now(), &err)
	q, err := r.filter(s)
	if err != nil {
		return nil, err
	}
	return r.page(ctx, q.OrderByAll(sorts), page, pageSize)
}

// FirstOrDefault returns the first entity satisfying s. found is false when
// none does.
func (r *Repository[T, ID]) FirstOrDefault(ctx context.Context, s spec.Specification[T]) (item T, found bool, err error) {
	defer r.track(ctx, opFirst, time.Now(), &err)
	q, err := r.filter(s)
	if err != nil {
		return item, false, err
	}
	items, err := r.fetch(ctx, q.Take(1))
	if err != nil || len(items) == 0 {
		return item, false, err
	}
	return items[0], true, nil
}

// Count returns the number of entities satisfying s.
func (r *Repository[T, ID]) Count(ctx context.Context, s spec.Specification[T]) (n int, err error) {
	defer r.track(ctx, opCount, time.Now(), &err)
	q, err := r.filter(s)
	if err != nil {
		return 0, err
	}
	if err := r.ensureOpen(); err != nil {
		return 0, err
	}
	return r.count(ctx, q)
}

// Get returns the entity with id. A missing entity is not an error.
func (r *Repository[T, ID]) Get(ctx context.Context, id ID) (item T, found bool, err error) {
	defer r.track(ctx, opGet, time.Now(), &err)
	return r.get(ctx, id, false)
}

// GetEditable is Get with the result attached to the pending change set.
func (r *Repository[T, ID]) GetEditable(ctx context.Context, id ID) (item T, found bool, err error) {
	defer r.track(ctx, opGet, time.Now(), &err)
	return r.get(ctx, id, true)
}

func (r *Repository[T, ID]) get(ctx context.Context, id ID, tracking bool) (T, bool, error) {
	if err := r.ensureOpen(); err != nil {
		var zero T
		return zero, false, err
	}
	return r.provider.FindByID(ctx, id, tracking)
}

// GetAll returns every entity in storage order.
func (r *Repository[T, ID]) GetAll(ctx context.Context) (items []T, err error) {
	defer r.track(ctx, opGetAll, time.Now(), &err)
	return r.fetch(ctx, store.NewQuery())
}

// GetPage returns one page of all entities in storage order.
func (r *Repository[T, ID]) GetPage(ctx context.Context, page, pageSize int) (result *paging.Result[T], err error) {
	defer r.track(ctx, opGetPage, time.Now(), &err)
	return r.page(ctx, store.NewQuery(), page, pageSize)
}

// Add stages e for insertion at the next commit.
func (r *Repository[T, ID]) Add(ctx context.Context, e T) (err error) {
	defer r.track(ctx, opAdd, time.Now(), &err)
	if err := r.ensureWritable(e); err != nil {
		return err
	}
	return r.provider.StageAdd(ctx, e)
}

// Remove stages e for deletion at the next commit.
func (r *Repository[T, ID]) Remove(ctx context.Context, e T) (err error) {
	defer r.track(ctx, opRemove, time.Now(), &err)
	if err := r.ensureWritable(e); err != nil {
		return err
	}
	return r.provider.StageRemove(ctx, e)
}

// SaveChanges commits staged writes and edited entities. Provider errors,
// including *store.PersistenceError, are returned unchanged and the staged
// writes are kept.
func (r *Repository[T, ID]) SaveChanges(ctx context.Context) (err error) {
	defer r.track(ctx, opSaveChanges, time.Now(), &err)
	if err := r.ensureOpen(); err != nil {
		return err
	}
	return r.commit(ctx)
}

// Close commits pending work and closes the repository. When the commit
// fails the repository stays open so the caller can fix and retry. Closing
// a closed repository is a no-op. Providers with a Close method are closed
// after the commit.
func (r *Repository[T, ID]) Close(ctx context.Context) (err error) {
	if r.closed.Load() {
		return nil
	}
	defer r.track(ctx, opClose, time.Now(), &err)
	if err := r.commit(ctx); err != nil {
		return err
	}
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c, ok := r.provider.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("closing provider: %w", err)
		}
	}
	return nil
}

func (r *Repository[T, ID]) commit(ctx context.Context) error {
	if err := r.provider.Commit(ctx); err != nil {
		return err
	}
	if r.counts != nil {
		r.counts.Clear()
	}
	return nil
}

func (r *Repository[T, ID]) filter(s spec.Specification[T]) (store.Query, error) {
	if spec.IsNil(s) {
		return store.Query{}, fmt.Errorf("%w: specification is nil", spec.ErrInvalidArgument)
	}
	where := s.Predicate()
	if where == nil {
		return store.Query{}, fmt.Errorf("%w: specification %s has no predicate", spec.ErrInvalidArgument, spec.Name(s))
	}
	return store.NewQuery().Filter(where), nil
}

func (r *Repository[T, ID]) fetch(ctx context.Context, q store.Query) ([]T, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	return r.provider.Fetch(ctx, q)
}

func (r *Repository[T, ID]) page(ctx context.Context, q store.Query, page, pageSize int) (*paging.Result[T], error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	params := paging.Params{Page: page, PageSize: pageSize}
	if err := params.Validate(r.maxPageSize); err != nil {
		return nil, fmt.Errorf("%w: %w", spec.ErrInvalidArgument, err)
	}
	skip := params.Skip()

	var (
		items []T
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = r.provider.Fetch(gctx, q.Skip(skip).Take(pageSize))
		return err
	})
	g.Go(func() error {
		var err error
		total, err = r.count(gctx, q.Unbounded())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paging.NewResult(items, total, skip, pageSize), nil
}

func (r *Repository[T, ID]) count(ctx context.Context, q store.Query) (int, error) {
	if r.counts == nil {
		return r.provider.Count(ctx, q)
	}
	log := logging.FromContext(ctx).With().
		Str("component", componentLogName).
		Str("entity", r.name).
		Logger()

	where := "true"
	if w := q.Where(); w != nil {
		where = w.Key()
	}
	key := cache.GenerateNamespacedKey(r.name, opCount, where)
	if entry, err := r.counts.Lookup(key); err == nil {
		now := r.counts.Now()
		log.Trace().
			Int("count", entry.Value).
			Str("age", cache.FormatDuration(entry.Age(now))).
			Str("expires_in", cache.FormatDuration(entry.TimeUntilExpiration(now))).
			Msg("count cache hit")
		return entry.Value, nil
	}

	n, err := r.provider.Count(ctx, q)
	if err != nil {
		return 0, err
	}
	if removed := r.counts.CleanupExpired(); removed > 0 {
		log.Trace().Int("removed", removed).Msg("expired counts dropped")
	}
	if err := r.counts.Set(key, n); err != nil {
		log.Trace().Err(err).Msg("count not cached")
		return n, nil
	}
	log.Trace().Stringer("cache", r.counts).Int("count", n).Msg("count cached")
	return n, nil
}

func (r *Repository[T, ID]) ensureOpen() error {
	if r.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (r *Repository[T, ID]) ensureWritable(e T) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	if entity.IsNil[ID](e) {
		return fmt.Errorf("%w: entity is nil", spec.ErrInvalidArgument)
	}
	return nil
}

// track logs and records one finished operation.
func (r *Repository[T, ID]) track(ctx context.Context, op string, start time.Time, errp *error) {
	err := *errp
	r.metrics.Observe(r.name, op, start, err)

	logger := logging.FromContext(ctx)
	var event *zerolog.Event
	if err != nil {
		event = logger.Debug().Err(err)
	} else {
		event = logger.Trace()
	}
	event.
		Str("component", componentLogName).
		Str("entity", r.name).
		Str("operation", op).
		Dur("duration", time.Since(start)).
		Msg("repository operation")
}
