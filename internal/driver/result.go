package driver

import (
	"math/big"
	"time"

	"github.com/gateway-fm/dcaload/internal/chain"
	"github.com/gateway-fm/dcaload/pkg/types"
)

// SubmissionResult is the typed result of one schedule submission.
type SubmissionResult struct {
	Seq     uint64 // Running submission counter, 1-based
	Nonce   uint64
	Hash    string
	Outcome types.SubmissionOutcome
	Err     error
	Latency time.Duration
}

// OK reports whether the extrinsic was accepted by the pool.
func (r SubmissionResult) OK() bool {
	return r.Outcome == types.OutcomeSubmitted
}

// BurstReport aggregates the results of one burst and the block telemetry
// taken after it.
type BurstReport struct {
	Block         uint64
	ElapsedBlocks uint64
	Results       []SubmissionResult

	// Nil when the follow-up balance query failed.
	Balance *big.Int
	// Nil when either this or the previous balance snapshot is missing.
	FeeSpent *big.Int
	// Nil when the weight query failed.
	Weight *chain.BlockWeight

	Duration  time.Duration
	Timestamp time.Time
}

// Attempts returns the number of submissions attempted.
func (b *BurstReport) Attempts() int {
	return len(b.Results)
}

// Submitted returns the number of submissions accepted by the pool.
func (b *BurstReport) Submitted() int {
	n := 0
	for _, r := range b.Results {
		if r.OK() {
			n++
		}
	}
	return n
}

// Outcomes counts results per outcome.
func (b *BurstReport) Outcomes() map[types.SubmissionOutcome]int {
	out := make(map[types.SubmissionOutcome]int)
	for _, r := range b.Results {
		out[r.Outcome]++
	}
	return out
}

// Summary returns the JSON view of the burst.
func (b *BurstReport) Summary() types.BurstSummary {
	submitted := b.Submitted()
	s := types.BurstSummary{
		Block:         b.Block,
		ElapsedBlocks: b.ElapsedBlocks,
		Attempts:      b.Attempts(),
		Submitted:     submitted,
		Failed:        b.Attempts() - submitted,
		Outcomes:      b.Outcomes(),
		DurationMs:    b.Duration.Milliseconds(),
		Timestamp:     b.Timestamp,
	}
	if b.FeeSpent != nil {
		s.FeeSpent = b.FeeSpent.String()
	}
	if b.Balance != nil {
		s.Balance = b.Balance.String()
	}
	if b.Weight != nil {
		s.RefTime = b.Weight.Normal.RefTime
		s.ProofSize = b.Weight.Normal.ProofSize
		s.WeightKnown = true
	}
	return s
}

// RunReport is returned by Run once the loop has ended.
type RunReport struct {
	RunID      string
	Node       chain.NodeInfo
	Signer     string
	StartBlock uint64
	EndBlock   uint64
	State      types.RunState

	Bursts    int
	Attempts  uint64
	Submitted uint64
	Failed    uint64
	Outcomes  map[types.SubmissionOutcome]uint64

	InitialBalance *big.Int
	// Nil when the final balance query failed.
	FinalBalance *big.Int
	TotalSpent   *big.Int

	StartedAt  time.Time
	FinishedAt time.Time
}

// SpentBetween returns before - after. The result is negative when the
// balance grew, and nil when either snapshot is missing.
func SpentBetween(before, after *big.Int) *big.Int {
	if before == nil || after == nil {
		return nil
	}
	return new(big.Int).Sub(before, after)
}

// Summary returns the history row for the run.
func (r *RunReport) Summary(endpoint string, durationBlocks uint64, runErr error) types.RunSummary {
	s := types.RunSummary{
		ID:             r.RunID,
		StartedAt:      r.StartedAt,
		Endpoint:       endpoint,
		Chain:          r.Node.Chain,
		Signer:         r.Signer,
		State:          r.State,
		StartBlock:     r.StartBlock,
		EndBlock:       r.EndBlock,
		DurationBlocks: durationBlocks,
		Bursts:         uint64(r.Bursts),
		Attempts:       r.Attempts,
		Submitted:      r.Submitted,
		Failed:         r.Failed,
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		s.CompletedAt = &finished
	}
	if r.InitialBalance != nil {
		s.InitialBalance = r.InitialBalance.String()
	}
	if r.FinalBalance != nil {
		s.FinalBalance = r.FinalBalance.String()
	}
	if r.TotalSpent != nil {
		s.TotalSpent = r.TotalSpent.String()
	}
	if runErr != nil {
		s.Error = runErr.Error()
	}
	return s
}
