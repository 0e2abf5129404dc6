package pattern

import "github.com/gateway-fm/dcaload/pkg/types"

// Spike implements a pattern with periodic bursts of extra load.
type Spike struct {
	baseline int
	spike    int
	length   uint64
	every    uint64
}

// NewSpike creates a spike pattern.
// Submits baseline schedules normally and spike schedules during spikes.
// Spikes occupy the last length blocks of every interval of every blocks.
func NewSpike(baseline, spike int, length, every uint64) *Spike {
	if every == 0 {
		every = 1
	}
	if length > every {
		length = every
	}
	return &Spike{
		baseline: max(baseline, 0),
		spike:    max(spike, 0),
		length:   length,
		every:    every,
	}
}

// Name returns the pattern identifier.
func (s *Spike) Name() types.BurstPattern {
	return types.PatternSpike
}

// TxsForBlock returns the burst size based on whether the block falls in a spike window.
func (s *Spike) TxsForBlock(elapsedBlocks uint64) int {
	position := elapsedBlocks % s.every
	if position >= s.every-s.length {
		return s.spike
	}
	return s.baseline
}
