// Package pattern provides burst size patterns: how many schedules to submit
// for each observed block.
package pattern

import (
	"fmt"

	"github.com/gateway-fm/dcaload/pkg/types"
)

// Pattern calculates the burst size based on blocks elapsed since the run started.
type Pattern interface {
	// Name returns the pattern identifier.
	Name() types.BurstPattern

	// TxsForBlock returns the number of submissions for the burst at elapsedBlocks.
	TxsForBlock(elapsedBlocks uint64) int
}

// Config holds pattern-specific configuration.
type Config struct {
	// Constant pattern
	TxsPerBlock int

	// Ramp pattern
	RampStart  int
	RampEnd    int
	RampBlocks uint64

	// Spike pattern
	SpikeBaseline int
	SpikeSize     int
	SpikeEvery    uint64
	SpikeLength   uint64
}

// Registry manages pattern lookup by name.
type Registry struct {
	patterns map[types.BurstPattern]func(Config) Pattern
}

// NewRegistry creates a new pattern registry with all built-in patterns.
func NewRegistry() *Registry {
	r := &Registry{
		patterns: make(map[types.BurstPattern]func(Config) Pattern),
	}

	r.Register(types.PatternConstant, func(cfg Config) Pattern {
		return NewConstant(cfg.TxsPerBlock)
	})
	r.Register(types.PatternRamp, func(cfg Config) Pattern {
		return NewRamp(cfg.RampStart, cfg.RampEnd, cfg.RampBlocks)
	})
	r.Register(types.PatternSpike, func(cfg Config) Pattern {
		return NewSpike(cfg.SpikeBaseline, cfg.SpikeSize, cfg.SpikeLength, cfg.SpikeEvery)
	})

	return r
}

// Register adds a pattern factory to the registry.
func (r *Registry) Register(name types.BurstPattern, factory func(Config) Pattern) {
	r.patterns[name] = factory
}

// Get returns a pattern instance for the given name and config.
func (r *Registry) Get(name types.BurstPattern, cfg Config) (Pattern, error) {
	factory, ok := r.patterns[name]
	if !ok {
		return nil, fmt.Errorf("unknown pattern: %s", name)
	}
	return factory(cfg), nil
}
