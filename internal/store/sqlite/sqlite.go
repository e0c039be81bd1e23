// Package sqlite is a store.Provider backed by a SQLite table.
//
// Each entity is one row holding its identifier and its JSON encoding.
// Predicates and orderings are translated into json_extract expressions so
// filtering, sorting, counting and paging all run inside SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/rshade/specrepo/internal/entity"
	"github.com/rshade/specrepo/internal/logging"
	"github.com/rshade/specrepo/internal/store"
)

const driverName = "sqlite3"

// ErrInvalidTable is returned for table names that are not plain identifiers.
var ErrInvalidTable = errors.New("invalid table name")

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store persists entities of T in one table.
type Store[T entity.Entity[ID], ID comparable] struct {
	db      *sql.DB
	table   string
	root    reflect.Type
	changes *store.ChangeSet[T, ID]
	owned   bool
}

var _ store.Provider[entity.Entity[string], string] = (*Store[entity.Entity[string], string])(nil)

// Open opens the database at dsn and prepares table.
func Open[T entity.Entity[ID], ID comparable](ctx context.Context, dsn, table string) (*Store[T, ID], error) {
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s, err := New[T, ID](ctx, db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New prepares table in an existing database. The caller keeps ownership
// of db.
func New[T entity.Entity[ID], ID comparable](ctx context.Context, db *sql.DB, table string) (*Store[T, ID], error) {
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id NOT NULL PRIMARY KEY, doc TEXT NOT NULL CHECK (json_valid(doc)))`,
		table,
	)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("creating table %s: %w", table, err)
	}
	logging.FromContext(ctx).Debug().
		Str("component", "store.sqlite").
		Str("table", table).
		Msg("table ready")
	return &Store[T, ID]{
		db:      db,
		table:   table,
		root:    reflect.TypeFor[T](),
		changes: store.NewChangeSet[T, ID](),
	}, nil
}

// Close releases the database when Open created it.
func (s *Store[T, ID]) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Fetch runs q as a single SELECT.
func (s *Store[T, ID]) Fetch(ctx context.Context, q store.Query) ([]T, error) {
	query, args, err := buildSelect(s.root, s.table, q)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Trace().
		Str("component", "store.sqlite").
		Str("sql", query).
		Msg("fetch")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", s.table, err)
		}
		item, err := decode[T](doc)
		if err != nil {
			return nil, err
		}
		if q.Tracking() {
			item = s.changes.Track(item)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.table, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// Count runs SELECT COUNT(*) for q's predicate.
func (s *Store[T, ID]) Count(ctx context.Context, q store.Query) (int, error) {
	query, args, err := buildCount(s.root, s.table, q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", s.table, err)
	}
	return n, nil
}

// FindByID loads one row by primary key.
func (s *Store[T, ID]) FindByID(ctx context.Context, id ID, tracking bool) (T, bool, error) {
	var zero T
	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM "+s.table+" WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("loading %v from %s: %w", id, s.table, err)
	}
	item, err := decode[T](doc)
	if err != nil {
		return zero, false, err
	}
	if tracking {
		item = s.changes.Track(item)
	}
	return item, true, nil
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

// Commit applies staged writes and tracked entities in one transaction.
func (s *Store[T, ID]) Commit(ctx context.Context) error {
	changes, tracked := s.changes.Snapshot()
	if len(changes) == 0 && len(tracked) == 0 {
		return ctx.Err()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.NewPersistenceError("begin", nil, err)
	}
	if err := s.apply(ctx, tx, changes, tracked); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return store.NewPersistenceError("commit", nil, err)
	}
	s.changes.Settle(changes)

	logging.FromContext(ctx).Debug().
		Str("component", "store.sqlite").
		Str("table", s.table).
		Int("changes", len(changes)).
		Int("tracked", len(tracked)).
		Msg("committed")
	return nil
}

func (s *Store[T, ID]) apply(ctx context.Context, tx *sql.Tx, changes []store.Change[T], tracked []T) error {
	removed := make(map[ID]bool)
	var zero ID
	for _, change := range changes {
		id := change.Entity.EntityID()
		switch change.Kind {
		case store.ChangeAdd:
			if id == zero {
				return store.NewPersistenceError("add", nil, store.ErrTransient)
			}
			doc, err := json.Marshal(change.Entity)
			if err != nil {
				return store.NewPersistenceError("add", id, err)
			}
			_, err = tx.ExecContext(ctx, "INSERT INTO "+s.table+" (id, doc) VALUES (?, ?)", id, string(doc))
			if isConstraint(err) {
				return store.NewPersistenceError("add", id, store.ErrDuplicateID)
			}
			if err != nil {
				return store.NewPersistenceError("add", id, err)
			}
			delete(removed, id)
		case store.ChangeRemove:
			if err := s.affectOne(ctx, tx, "remove", id, "DELETE FROM "+s.table+" WHERE id = ?", id); err != nil {
				return err
			}
			removed[id] = true
		}
	}

	for _, e := range tracked {
		id := e.EntityID()
		if removed[id] {
			continue
		}
		doc, err := json.Marshal(e)
		if err != nil {
			return store.NewPersistenceError("update", id, err)
		}
		if err := s.affectOne(ctx, tx, "update", id, "UPDATE "+s.table+" SET doc = ? WHERE id = ?", string(doc), id); err != nil {
			return err
		}
	}
	return nil
}

// affectOne runs a statement that must touch exactly one row.
func (s *Store[T, ID]) affectOne(ctx context.Context, tx *sql.Tx, op string, id ID, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return store.NewPersistenceError(op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.NewPersistenceError(op, id, err)
	}
	if n == 0 {
		return store.NewPersistenceError(op, id, store.ErrNotFound)
	}
	return nil
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

func decode[T any](doc string) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		var zero T
		return zero, fmt.Errorf("decoding stored entity: %w", err)
	}
	return out, nil
}
