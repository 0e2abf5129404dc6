package metrics

import (
	"sync"
	"testing"

	"github.com/gateway-fm/dcaload/pkg/types"
)

func TestUCounter(t *testing.T) {
	var c UCounter

	if got := c.Inc(); got != 1 {
		t.Errorf("Inc: expected 1, got %d", got)
	}
	if got := c.Add(10); got != 11 {
		t.Errorf("Add: expected 11, got %d", got)
	}
	c.Store(42)
	if got := c.Load(); got != 42 {
		t.Errorf("Store/Load: expected 42, got %d", got)
	}
	c.Reset()
	if got := c.Load(); got != 0 {
		t.Errorf("Reset: expected 0, got %d", got)
	}
}

func TestUCounter_Concurrent(t *testing.T) {
	var c UCounter

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()

	if got := c.Load(); got != 100000 {
		t.Errorf("expected 100000, got %d", got)
	}
}

func TestOutcomeCounters(t *testing.T) {
	var c OutcomeCounters

	c.Inc(types.OutcomeSubmitted)
	c.Inc(types.OutcomeSubmitted)
	c.Inc(types.OutcomeNonce)
	c.Inc(types.OutcomeTransport)
	c.Inc("something-new") // Unknown outcomes count as other

	if got := c.Load(types.OutcomeSubmitted); got != 2 {
		t.Errorf("submitted: expected 2, got %d", got)
	}
	if got := c.Load(types.OutcomeOther); got != 1 {
		t.Errorf("other: expected 1, got %d", got)
	}
	if got := c.Failed(); got != 3 {
		t.Errorf("failed: expected 3, got %d", got)
	}

	snap := c.Snapshot()
	if len(snap) != 4 {
		t.Errorf("expected 4 non-zero outcomes, got %v", snap)
	}
	if _, ok := snap[types.OutcomeFunds]; ok {
		t.Error("zero counts should be omitted from snapshot")
	}
}
