// Package jsonfile persists entity snapshots as a versioned JSON document.
//
// Writes go to a temp file that is renamed over the target, so readers never
// observe a partial document. A sibling ".lock" file serializes access across
// processes; locks older than staleLockAge whose owner is gone are reclaimed.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/rshade/specrepo/internal/logging"
)

// FormatVersion is written into every snapshot.
const FormatVersion = "1.0.0"

// formatConstraint accepts any snapshot this version can read.
const formatConstraint = "^1.0.0"

// Snapshot errors.
var (
	ErrEmptyPath          = errors.New("snapshot path cannot be empty")
	ErrSnapshotCorrupted  = errors.New("snapshot file corrupted")
	ErrIncompatibleFormat = errors.New("snapshot format is not supported")
	ErrLockTimeout        = errors.New("could not acquire snapshot lock")
)

const (
	maxLockRetries = 10
	lockRetryDelay = 100 * time.Millisecond
	staleLockAge   = 30 * time.Second
)

type document[T any] struct {
	Format   string    `json:"format"`
	SavedAt  time.Time `json:"saved_at"`
	Entities []T       `json:"entities"`
}

// File reads and writes snapshots of T at a fixed path.
type File[T any] struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New returns a snapshot file at path. The file is created on first Save.
func New[T any](path string) (*File[T], error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	return &File[T]{path: path, now: time.Now}, nil
}

// Path returns the snapshot location.
func (f *File[T]) Path() string { return f.path }

// Load reads every entity from the snapshot. A missing file is an empty
// snapshot; an unreadable one is ErrSnapshotCorrupted and is never silently
// replaced.
func (f *File[T]) Load(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := f.acquireFileLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var doc document[T]
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotCorrupted, err)
	}
	if err := checkFormat(doc.Format); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug().
		Str("component", "store.jsonfile").
		Str("path", f.path).
		Str("format", doc.Format).
		Int("entities", len(doc.Entities)).
		Msg("snapshot loaded")
	return doc.Entities, nil
}

// Save replaces the snapshot with items.
func (f *File[T]) Save(ctx context.Context, items []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := f.acquireFileLock()
	if err != nil {
		return err
	}
	defer unlock()

	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(document[T]{
		Format:   FormatVersion,
		SavedAt:  f.now().UTC(),
		Entities: items,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("writing snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming snapshot temp file: %w", err)
	}

	logging.FromContext(ctx).Debug().
		Str("component", "store.jsonfile").
		Str("path", f.path).
		Int("entities", len(items)).
		Msg("snapshot saved")
	return nil
}

func checkFormat(format string) error {
	if format == "" {
		return fmt.Errorf("%w: missing format version", ErrSnapshotCorrupted)
	}
	v, err := semver.NewVersion(format)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotCorrupted, err)
	}
	c, err := semver.NewConstraint(formatConstraint)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: got %s, want %s", ErrIncompatibleFormat, format, formatConstraint)
	}
	return nil
}

func (f *File[T]) lockFilePath() string {
	return f.path + ".lock"
}

// acquireFileLock takes the cross-process lockfile and returns its release
// function.
func (f *File[T]) acquireFileLock() (func(), error) {
	lockPath := f.lockFilePath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	for range maxLockRetries {
		lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = fmt.Fprintf(lock, "%d", os.Getpid())
			_ = lock.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if removeStaleLock(lockPath) {
			continue
		}
		time.Sleep(lockRetryDelay)
	}
	return nil, fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
}

// removeStaleLock deletes a lock that is old and whose owner has exited.
func removeStaleLock(lockPath string) bool {
	info, err := os.Stat(lockPath)
	if err != nil || time.Since(info.ModTime()) <= staleLockAge {
		return false
	}
	if isLockHeldByLiveProcess(lockPath) {
		return false
	}
	_ = os.Remove(lockPath)
	return true
}

func isLockHeldByLiveProcess(lockPath string) bool {
	data, err := os.ReadFile(lockPath)
	if err != nil || len(data) == 0 {
		return false
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil || pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
