package pattern

import "github.com/gateway-fm/dcaload/pkg/types"

// Ramp implements a linearly changing burst size.
type Ramp struct {
	start  int
	end    int
	blocks uint64
}

// NewRamp creates a ramp pattern that moves from start to end over the given
// number of blocks and then stays at end.
func NewRamp(start, end int, blocks uint64) *Ramp {
	return &Ramp{
		start:  max(start, 0),
		end:    max(end, 0),
		blocks: blocks,
	}
}

// Name returns the pattern identifier.
func (r *Ramp) Name() types.BurstPattern {
	return types.PatternRamp
}

// TxsForBlock returns the burst size based on linear interpolation of elapsed blocks.
func (r *Ramp) TxsForBlock(elapsedBlocks uint64) int {
	if r.blocks == 0 || elapsedBlocks >= r.blocks {
		return r.end
	}

	progress := float64(elapsedBlocks) / float64(r.blocks)
	return r.start + int(progress*float64(r.end-r.start))
}
