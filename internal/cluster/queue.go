package cluster

import (
	"sort"
	"sync"

	"github.com/transcaribe/tracking_core/internal/models"
)

// Queue buffers location samples between ingestion and the engine.
// It keeps only the most recent sample per rider, so a rider emitting
// faster than the tick interval costs constant memory.
type Queue struct {
	mu     sync.Mutex
	latest map[int64]models.LocationSample
}

// NewQueue creates an empty sample queue
func NewQueue() *Queue {
	return &Queue{latest: make(map[int64]models.LocationSample)}
}

// Push records a sample, replacing any earlier sample from the same rider.
// It never blocks.
func (q *Queue) Push(sample models.LocationSample) {
	q.mu.Lock()
	q.latest[sample.UserID] = sample
	q.mu.Unlock()
}

// DrainLatest removes and returns all buffered samples in ascending
// rider-id order
func (q *Queue) DrainLatest() []models.LocationSample {
	q.mu.Lock()
	drained := q.latest
	q.latest = make(map[int64]models.LocationSample)
	q.mu.Unlock()

	samples := make([]models.LocationSample, 0, len(drained))
	for _, s := range drained {
		samples = append(samples, s)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].UserID < samples[j].UserID })
	return samples
}

// Len reports how many riders currently have a buffered sample
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.latest)
}
