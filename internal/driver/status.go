package driver

import (
	"sync"
	"time"

	"github.com/gateway-fm/dcaload/internal/metrics"
	"github.com/gateway-fm/dcaload/pkg/types"
)

// liveStatus is the run state shared with the status API. Counters are
// atomic; the rest is guarded by mu.
type liveStatus struct {
	outcomes     metrics.OutcomeCounters
	attempts     metrics.UCounter
	bursts       metrics.UCounter
	currentBlock metrics.UCounter
	latency      *metrics.LatencyStats

	mu     sync.RWMutex
	status types.RunStatus
}

func newLiveStatus(endpoint string, durationBlocks uint64, stop types.StopMode) *liveStatus {
	return &liveStatus{
		latency: metrics.NewLatencyStats(),
		status: types.RunStatus{
			State:          types.StateIdle,
			Endpoint:       endpoint,
			DurationBlocks: durationBlocks,
			StopMode:       stop,
		},
	}
}

func (s *liveStatus) setState(state types.RunState) {
	s.mu.Lock()
	s.status.State = state
	s.mu.Unlock()
}

func (s *liveStatus) started(r *RunReport) {
	s.currentBlock.Store(r.StartBlock)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.RunID = r.RunID
	s.status.Chain = r.Node.Chain
	s.status.NodeName = r.Node.Name
	s.status.NodeVersion = r.Node.Version
	s.status.Signer = r.Signer
	s.status.StartBlock = r.StartBlock
	s.status.StartedAt = r.StartedAt
	if r.InitialBalance != nil {
		s.status.InitialBalance = r.InitialBalance.String()
	}
}

func (s *liveStatus) observed(block uint64) {
	s.currentBlock.Store(block)
}

func (s *liveStatus) submission(o types.SubmissionOutcome, latency time.Duration) {
	s.attempts.Inc()
	s.outcomes.Inc(o)
	s.latency.Add(float64(latency.Microseconds()) / 1000)
}

func (s *liveStatus) burst(summary types.BurstSummary) {
	s.bursts.Inc()

	s.mu.Lock()
	s.status.LastBurst = &summary
	s.mu.Unlock()
}

func (s *liveStatus) finished(r *RunReport, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.TotalSpent != nil {
		s.status.TotalSpent = r.TotalSpent.String()
	}
	if runErr != nil {
		s.status.Error = runErr.Error()
	}
}

func (s *liveStatus) fail(err error) {
	s.mu.Lock()
	s.status.Error = err.Error()
	s.mu.Unlock()
}

func (s *liveStatus) snapshot() types.RunStatus {
	s.mu.RLock()
	out := s.status
	if s.status.LastBurst != nil {
		last := *s.status.LastBurst
		last.Outcomes = copyOutcomes(s.status.LastBurst.Outcomes)
		out.LastBurst = &last
	}
	s.mu.RUnlock()

	out.CurrentBlock = s.currentBlock.Load()
	out.Bursts = s.bursts.Load()
	out.Attempts = s.attempts.Load()
	out.Submitted = s.outcomes.Load(types.OutcomeSubmitted)
	out.Failed = s.outcomes.Failed()
	out.Outcomes = s.outcomes.Snapshot()
	out.SubmitLatency = s.latency.Snapshot()
	return out
}

func copyOutcomes(in map[types.SubmissionOutcome]int) map[types.SubmissionOutcome]int {
	out := make(map[types.SubmissionOutcome]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
