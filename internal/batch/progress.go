package batch

import (
	"sync"
	"time"
)

const percentMultiplier = 100

// Progress tracks processed items and batches. It is safe for concurrent use.
type Progress struct {
	mu               sync.RWMutex
	totalItems       int
	processedItems   int
	totalBatches     int
	processedBatches int
	batchSize        int
	start            time.Time
	last             time.Time
	now              func() time.Time
}

// NewProgress starts tracking at the current time.
func NewProgress(totalItems, totalBatches, batchSize int) *Progress {
	now := time.Now()
	return &Progress{
		totalItems:   totalItems,
		totalBatches: totalBatches,
		batchSize:    batchSize,
		start:        now,
		last:         now,
		now:          time.Now,
	}
}

// Add records one finished batch of n items.
func (p *Progress) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processedItems += n
	p.processedBatches++
	p.last = p.now()
}

// Snapshot is an immutable copy of a Progress.
type Snapshot struct {
	TotalItems       int
	ProcessedItems   int
	TotalBatches     int
	ProcessedBatches int
	BatchSize        int
	Elapsed          time.Duration
}

// PercentComplete returns 0-100.
func (s Snapshot) PercentComplete() float64 {
	if s.TotalItems == 0 {
		return 0
	}
	return float64(s.ProcessedItems) / float64(s.TotalItems) * percentMultiplier
}

// Complete reports whether every item has been processed.
func (s Snapshot) Complete() bool {
	return s.ProcessedItems >= s.TotalItems
}

// ItemsPerSecond returns the processing rate.
func (s Snapshot) ItemsPerSecond() float64 {
	secs := s.Elapsed.Seconds()
	if secs == 0 {
		return 0
	}
	return float64(s.ProcessedItems) / secs
}

// Remaining estimates the time left from the average time per item.
func (s Snapshot) Remaining() time.Duration {
	if s.ProcessedItems == 0 {
		return 0
	}
	perItem := s.Elapsed / time.Duration(s.ProcessedItems)
	return perItem * time.Duration(s.TotalItems-s.ProcessedItems)
}

// Snapshot copies the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		TotalItems:       p.totalItems,
		ProcessedItems:   p.processedItems,
		TotalBatches:     p.totalBatches,
		ProcessedBatches: p.processedBatches,
		BatchSize:        p.batchSize,
		Elapsed:          p.last.Sub(p.start),
	}
}
