package batch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Batch size bounds.
const (
	DefaultBatchSize = 100
	MinBatchSize     = 1
	MaxBatchSize     = 1000
)

// Common batch processing errors.
var (
	ErrInvalidBatchSize = fmt.Errorf("batch size must be between %d and %d", MinBatchSize, MaxBatchSize)
	ErrNilCallback      = errors.New("batch callback cannot be nil")
)

// Callback processes one batch. index is 0-based.
type Callback[T any] func(ctx context.Context, batch []T, index int) error

// ProgressCallback is invoked after every successful batch.
type ProgressCallback func(snapshot Snapshot)

// Processor runs a callback over consecutive slices of its input.
type Processor[T any] struct {
	size       int
	onProgress ProgressCallback
}

// NewProcessor returns a processor with the given batch size.
func NewProcessor[T any](size int) (*Processor[T], error) {
	if size < MinBatchSize || size > MaxBatchSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, size)
	}
	return &Processor[T]{size: size}, nil
}

// WithProgress sets the progress callback.
func (p *Processor[T]) WithProgress(fn ProgressCallback) *Processor[T] {
	p.onProgress = fn
	return p
}

// Size returns the configured batch size.
func (p *Processor[T]) Size() int { return p.size }

// Bounds returns the [start, end) pairs covering total items.
func (p *Processor[T]) Bounds(total int) [][2]int {
	n := p.count(total)
	out := make([][2]int, n)
	for i := range n {
		start := i * p.size
		out[i] = [2]int{start, min(start+p.size, total)}
	}
	return out
}

func (p *Processor[T]) count(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + p.size - 1) / p.size
}

// Process runs fn over every batch in order and stops at the first error.
// An empty input is a no-op.
func (p *Processor[T]) Process(ctx context.Context, items []T, fn Callback[T]) error {
	if fn == nil {
		return ErrNilCallback
	}
	bounds := p.Bounds(len(items))
	progress := NewProgress(len(items), len(bounds), p.size)

	for i, b := range bounds {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := items[b[0]:b[1]]
		if err := fn(ctx, batch, i); err != nil {
			return fmt.Errorf("batch %d failed: %w", i, err)
		}
		p.report(progress, len(batch))
	}
	return nil
}

// ProcessConcurrent runs up to limit batches at once. Every batch runs even
// when others fail; the failures are joined in the returned error.
func (p *Processor[T]) ProcessConcurrent(ctx context.Context, items []T, fn Callback[T], limit int) error {
	if fn == nil {
		return ErrNilCallback
	}
	bounds := p.Bounds(len(items))
	progress := NewProgress(len(items), len(bounds), p.size)
	errs := make([]error, len(bounds))

	var g errgroup.Group
	g.SetLimit(max(limit, 1))
	for i, b := range bounds {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			break
		}
		batch := items[b[0]:b[1]]
		g.Go(func() error {
			if err := fn(ctx, batch, i); err != nil {
				errs[i] = fmt.Errorf("batch %d failed: %w", i, err)
				return nil
			}
			p.report(progress, len(batch))
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (p *Processor[T]) report(progress *Progress, n int) {
	progress.Add(n)
	if p.onProgress != nil {
		p.onProgress(progress.Snapshot())
	}
}
