package buffer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks inbox activity.
type Statistics struct {
	writes int64
	reads  int64
	blocks int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Write records a write.
func (s *Statistics) Write() { atomic.AddInt64(&s.writes, 1) }

// Read records a read.
func (s *Statistics) Read() { atomic.AddInt64(&s.reads, 1) }

// Block records a writer that had to wait for space.
func (s *Statistics) Block() { atomic.AddInt64(&s.blocks, 1) }

// UpdateSize records the current number of queued items.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Writes returns the number of writes.
func (s *Statistics) Writes() int64 { return atomic.LoadInt64(&s.writes) }

// Reads returns the number of reads.
func (s *Statistics) Reads() int64 { return atomic.LoadInt64(&s.reads) }

// Blocks returns how many writes found the inbox full.
func (s *Statistics) Blocks() int64 { return atomic.LoadInt64(&s.blocks) }

// CurrentSize returns the current number of queued items.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the high-water mark.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// Throughput returns writes per second since creation.
func (s *Statistics) Throughput() float64 {
	s.mu.RLock()
	elapsed := time.Since(s.startTime)
	s.mu.RUnlock()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Writes()) / elapsed.Seconds()
}

// StatsSummary is a snapshot of the statistics.
type StatsSummary struct {
	Writes      int64   `json:"writes"`
	Reads       int64   `json:"reads"`
	Blocks      int64   `json:"blocks"`
	CurrentSize int64   `json:"current_size"`
	MaxSize     int64   `json:"max_size"`
	Throughput  float64 `json:"throughput"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Writes:      s.Writes(),
		Reads:       s.Reads(),
		Blocks:      s.Blocks(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		Throughput:  s.Throughput(),
	}
}
