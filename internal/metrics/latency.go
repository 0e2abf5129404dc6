package metrics

import (
	"math"
	"sort"
	"sync"

	"github.com/gateway-fm/dcaload/pkg/types"
)

// LatencyStats tracks submission round trips (nonce fetch plus
// author_submitExtrinsic) with bounded memory. Percentiles come from a
// reservoir sample, so a run of any length costs the same.
type LatencyStats struct {
	mu sync.RWMutex

	count int64
	sum   float64
	min   float64
	max   float64

	// Algorithm R (Vitter)
	reservoir     []float64
	reservoirSize int
	seen          int64

	buckets []int64

	// xorshift64* state, per instance
	randState uint64
}

// DefaultReservoirSize gives <1% error at p99.
const DefaultReservoirSize = 10000

// Round trip bucket bounds in milliseconds.
var latencyBucketBounds = []float64{10, 50, 250, 1000}

var latencyBucketLabels = []string{"0-10ms", "10-50ms", "50-250ms", "250ms-1s", "1s+"}

// NewLatencyStats creates an empty latency tracker.
func NewLatencyStats() *LatencyStats {
	return newLatencyStats(DefaultReservoirSize)
}

func newLatencyStats(reservoirSize int) *LatencyStats {
	return &LatencyStats{
		min:           math.MaxFloat64,
		reservoir:     make([]float64, 0, reservoirSize),
		reservoirSize: reservoirSize,
		buckets:       make([]int64, len(latencyBucketLabels)),
		randState:     1,
	}
}

// Add records a latency sample in milliseconds. Safe for concurrent use.
func (s *LatencyStats) Add(latencyMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.sum += latencyMs
	s.seen++

	if latencyMs < s.min {
		s.min = latencyMs
	}
	if latencyMs > s.max {
		s.max = latencyMs
	}

	s.buckets[bucketIndex(latencyMs)]++

	if len(s.reservoir) < s.reservoirSize {
		s.reservoir = append(s.reservoir, latencyMs)
		return
	}
	// Replace with probability reservoirSize/seen
	j := s.fastRand() % uint64(s.seen)
	if j < uint64(s.reservoirSize) {
		s.reservoir[j] = latencyMs
	}
}

func bucketIndex(latencyMs float64) int {
	for i, bound := range latencyBucketBounds {
		if latencyMs < bound {
			return i
		}
	}
	return len(latencyBucketBounds)
}

func (s *LatencyStats) fastRand() uint64 {
	s.randState ^= s.randState >> 12
	s.randState ^= s.randState << 25
	s.randState ^= s.randState >> 27
	return s.randState * 0x2545F4914F6CDD1D
}

// Snapshot returns the current statistics, or nil before the first sample.
func (s *LatencyStats) Snapshot() *types.LatencyStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return nil
	}

	sorted := make([]float64, len(s.reservoir))
	copy(sorted, s.reservoir)
	sort.Float64s(sorted)

	stats := &types.LatencyStats{
		Count:   int(s.count),
		Min:     s.min,
		Max:     s.max,
		Avg:     s.sum / float64(s.count),
		P50:     percentile(sorted, 0.50),
		P90:     percentile(sorted, 0.90),
		P95:     percentile(sorted, 0.95),
		P99:     percentile(sorted, 0.99),
		Buckets: make([]types.LatencyBucket, len(s.buckets)),
	}
	for i, n := range s.buckets {
		stats.Buckets[i] = types.LatencyBucket{Label: latencyBucketLabels[i], Count: int(n)}
	}
	return stats
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	idx := p * float64(len(sorted)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// Count returns the number of samples recorded.
func (s *LatencyStats) Count() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}
