package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbers(n int) []int {
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	return items
}

func TestProcessor_Process(t *testing.T) {
	items := numbers(25)

	t.Run("Sequential", func(t *testing.T) {
		p, err := NewProcessor[int](10)
		require.NoError(t, err)
		var sizes []int
		var snaps []Snapshot
		p.WithProgress(func(s Snapshot) { snaps = append(snaps, s) })

		err = p.Process(context.Background(), items, func(_ context.Context, batch []int, index int) error {
			assert.Equal(t, index*10, batch[0])
			sizes = append(sizes, len(batch))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{10, 10, 5}, sizes)
		require.Len(t, snaps, 3)
		assert.True(t, snaps[2].Complete())
		assert.InDelta(t, 100.0, snaps[2].PercentComplete(), 0.001)
	})

	t.Run("StopsAtFirstError", func(t *testing.T) {
		p, _ := NewProcessor[int](10)
		calls := 0
		err := p.Process(context.Background(), items, func(_ context.Context, _ []int, index int) error {
			calls++
			if index == 1 {
				return errors.New("fail")
			}
			return nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch 1 failed")
		assert.Equal(t, 2, calls)
	})

	t.Run("EmptyItems", func(t *testing.T) {
		p, _ := NewProcessor[int](DefaultBatchSize)
		called := false
		err := p.Process(context.Background(), nil, func(context.Context, []int, int) error {
			called = true
			return nil
		})
		require.NoError(t, err)
		assert.False(t, called)
	})

	t.Run("NilCallback", func(t *testing.T) {
		p, _ := NewProcessor[int](DefaultBatchSize)
		assert.ErrorIs(t, p.Process(context.Background(), items, nil), ErrNilCallback)
		assert.ErrorIs(t, p.ProcessConcurrent(context.Background(), items, nil, 2), ErrNilCallback)
	})

	t.Run("Canceled", func(t *testing.T) {
		p, _ := NewProcessor[int](10)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := p.Process(ctx, items, func(context.Context, []int, int) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestProcessor_ProcessConcurrent(t *testing.T) {
	items := numbers(25)

	t.Run("AllBatches", func(t *testing.T) {
		p, _ := NewProcessor[int](5)
		var processed int32
		err := p.ProcessConcurrent(context.Background(), items, func(_ context.Context, batch []int, _ int) error {
			atomic.AddInt32(&processed, int32(len(batch)))
			return nil
		}, 2)
		require.NoError(t, err)
		assert.Equal(t, int32(25), processed)
	})

	t.Run("JoinsErrors", func(t *testing.T) {
		p, _ := NewProcessor[int](5)
		errBoom := errors.New("boom")
		var mu sync.Mutex
		ran := map[int]bool{}
		err := p.ProcessConcurrent(context.Background(), items, func(_ context.Context, _ []int, index int) error {
			mu.Lock()
			ran[index] = true
			mu.Unlock()
			if index%2 == 0 {
				return errBoom
			}
			return nil
		}, 3)
		require.ErrorIs(t, err, errBoom)
		assert.Contains(t, err.Error(), "batch 0 failed")
		assert.Contains(t, err.Error(), "batch 4 failed")
		assert.Len(t, ran, 5, "every batch runs")
	})
}

func TestNewProcessor_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1, MaxBatchSize + 1} {
		_, err := NewProcessor[int](size)
		assert.ErrorIs(t, err, ErrInvalidBatchSize)
	}
}

func TestProcessor_Bounds(t *testing.T) {
	p, _ := NewProcessor[int](10)
	assert.Equal(t, [][2]int{{0, 10}, {10, 20}, {20, 25}}, p.Bounds(25))
	assert.Equal(t, [][2]int{{0, 10}}, p.Bounds(10))
	assert.Empty(t, p.Bounds(0))
	assert.Equal(t, 10, p.Size())
}

func TestProgress(t *testing.T) {
	p := NewProgress(100, 10, 10)
	clock := p.start
	p.now = func() time.Time { return clock }

	s := p.Snapshot()
	assert.Zero(t, s.PercentComplete())
	assert.False(t, s.Complete())
	assert.Zero(t, s.Remaining())
	assert.Zero(t, s.ItemsPerSecond())

	clock = clock.Add(2 * time.Second)
	p.Add(50)
	s = p.Snapshot()
	assert.InDelta(t, 50.0, s.PercentComplete(), 0.001)
	assert.Equal(t, 1, s.ProcessedBatches)
	assert.InDelta(t, 25.0, s.ItemsPerSecond(), 0.001)
	assert.Equal(t, 2*time.Second, s.Remaining())

	p.Add(50)
	assert.True(t, p.Snapshot().Complete())
}
