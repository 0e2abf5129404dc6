package metrics

import (
	"sync/atomic"

	"github.com/gateway-fm/dcaload/pkg/types"
)

// UCounter is an unsigned atomic counter.
type UCounter struct {
	value uint64
}

// Add adds delta to the counter.
func (c *UCounter) Add(delta uint64) uint64 {
	return atomic.AddUint64(&c.value, delta)
}

// Inc increments by 1.
func (c *UCounter) Inc() uint64 {
	return atomic.AddUint64(&c.value, 1)
}

// Load returns the current value.
func (c *UCounter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

// Store sets the value.
func (c *UCounter) Store(val uint64) {
	atomic.StoreUint64(&c.value, val)
}

// Reset sets to 0.
func (c *UCounter) Reset() {
	atomic.StoreUint64(&c.value, 0)
}

// OutcomeCounters counts submissions per outcome. The driver writes, the
// status API reads concurrently.
type OutcomeCounters struct {
	counts [7]UCounter
}

func outcomeIndex(o types.SubmissionOutcome) int {
	for i, known := range types.AllOutcomes {
		if known == o {
			return i
		}
	}
	return len(types.AllOutcomes) - 1 // other
}

// Inc increments the counter for outcome.
func (c *OutcomeCounters) Inc(o types.SubmissionOutcome) uint64 {
	return c.counts[outcomeIndex(o)].Inc()
}

// Load returns the count for outcome.
func (c *OutcomeCounters) Load(o types.SubmissionOutcome) uint64 {
	return c.counts[outcomeIndex(o)].Load()
}

// Snapshot returns the non-zero counts.
func (c *OutcomeCounters) Snapshot() map[types.SubmissionOutcome]uint64 {
	out := make(map[types.SubmissionOutcome]uint64)
	for _, o := range types.AllOutcomes {
		if n := c.Load(o); n > 0 {
			out[o] = n
		}
	}
	return out
}

// Failed returns the number of submissions that did not reach the pool.
func (c *OutcomeCounters) Failed() uint64 {
	var total uint64
	for _, o := range types.AllOutcomes {
		if o != types.OutcomeSubmitted {
			total += c.Load(o)
		}
	}
	return total
}
