package pattern

import (
	"testing"

	"github.com/gateway-fm/dcaload/pkg/types"
)

func TestConstantPattern(t *testing.T) {
	p := NewConstant(100)

	if p.Name() != types.PatternConstant {
		t.Errorf("expected name %s, got %s", types.PatternConstant, p.Name())
	}

	// Burst size should be constant regardless of elapsed blocks
	for _, elapsed := range []uint64{0, 1, 500, 1000} {
		if txs := p.TxsForBlock(elapsed); txs != 100 {
			t.Errorf("at block %d: expected 100, got %d", elapsed, txs)
		}
	}
}

func TestConstantPatternNegative(t *testing.T) {
	if txs := NewConstant(-5).TxsForBlock(1); txs != 0 {
		t.Errorf("negative burst size should clamp to 0, got %d", txs)
	}
}

func TestRampPattern(t *testing.T) {
	p := NewRamp(10, 100, 90)

	if p.Name() != types.PatternRamp {
		t.Errorf("expected name %s, got %s", types.PatternRamp, p.Name())
	}

	testCases := []struct {
		elapsed uint64
		want    int
	}{
		{0, 10},
		{45, 55},   // Midpoint
		{90, 100},  // End
		{200, 100}, // Past end, should stay at end
	}

	for _, tc := range testCases {
		if txs := p.TxsForBlock(tc.elapsed); txs != tc.want {
			t.Errorf("at block %d: expected %d, got %d", tc.elapsed, tc.want, txs)
		}
	}
}

func TestRampPatternDescending(t *testing.T) {
	p := NewRamp(100, 0, 10)
	if txs := p.TxsForBlock(5); txs != 50 {
		t.Errorf("expected 50 halfway down, got %d", txs)
	}
	if txs := p.TxsForBlock(10); txs != 0 {
		t.Errorf("expected 0 at end, got %d", txs)
	}
}

func TestRampPatternZeroBlocks(t *testing.T) {
	p := NewRamp(10, 40, 0)
	if txs := p.TxsForBlock(0); txs != 40 {
		t.Errorf("zero-length ramp should jump to end, got %d", txs)
	}
}

func TestSpikePattern(t *testing.T) {
	p := NewSpike(10, 100, 2, 5)

	if p.Name() != types.PatternSpike {
		t.Errorf("expected name %s, got %s", types.PatternSpike, p.Name())
	}

	testCases := []struct {
		elapsed uint64
		want    int
	}{
		{0, 10},  // Start of interval, baseline
		{2, 10},  // Still baseline
		{3, 100}, // Spike (blocks 3-4)
		{4, 100},
		{5, 10}, // New interval
		{8, 100},
	}

	for _, tc := range testCases {
		if txs := p.TxsForBlock(tc.elapsed); txs != tc.want {
			t.Errorf("at block %d: expected %d, got %d", tc.elapsed, tc.want, txs)
		}
	}
}

func TestSpikePatternClampsLength(t *testing.T) {
	p := NewSpike(1, 9, 10, 3)
	for elapsed := uint64(0); elapsed < 6; elapsed++ {
		if txs := p.TxsForBlock(elapsed); txs != 9 {
			t.Errorf("at block %d: spike longer than interval should always spike, got %d", elapsed, txs)
		}
	}
}

func TestUtilizationPreset(t *testing.T) {
	tests := []struct {
		percent int
		want    int
		wantErr bool
	}{
		{10, 10, false},
		{30, 28, false},
		{90, 85, false},
		{100, 100, false},
		{0, 0, true},
		{15, 0, true},
		{110, 0, true},
	}

	for _, tt := range tests {
		got, err := UtilizationPreset(tt.percent)
		if (err != nil) != tt.wantErr {
			t.Errorf("UtilizationPreset(%d) error = %v, wantErr %v", tt.percent, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("UtilizationPreset(%d) = %d, want %d", tt.percent, got, tt.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	cfg := Config{
		TxsPerBlock:   100,
		RampStart:     10,
		RampEnd:       100,
		RampBlocks:    50,
		SpikeBaseline: 10,
		SpikeSize:     100,
		SpikeEvery:    10,
		SpikeLength:   2,
	}

	for _, name := range []types.BurstPattern{types.PatternConstant, types.PatternRamp, types.PatternSpike} {
		p, err := r.Get(name, cfg)
		if err != nil {
			t.Errorf("failed to get pattern %s: %v", name, err)
			continue
		}
		if p.Name() != name {
			t.Errorf("expected %s, got %s", name, p.Name())
		}
	}

	// Test unknown pattern
	if _, err := r.Get("unknown", cfg); err == nil {
		t.Error("expected error for unknown pattern")
	}
}
