package pattern

import "github.com/gateway-fm/dcaload/pkg/types"

// Constant submits the same number of schedules for every block.
type Constant struct {
	txs int
}

// NewConstant creates a constant burst pattern.
func NewConstant(txsPerBlock int) *Constant {
	if txsPerBlock < 0 {
		txsPerBlock = 0
	}
	return &Constant{txs: txsPerBlock}
}

// Name returns the pattern identifier.
func (c *Constant) Name() types.BurstPattern {
	return types.PatternConstant
}

// TxsForBlock returns the configured burst size regardless of elapsed blocks.
func (c *Constant) TxsForBlock(elapsedBlocks uint64) int {
	return c.txs
}
