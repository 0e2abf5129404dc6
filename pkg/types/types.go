// Package types contains public API types for the DCA load driver.
// These types form the external interface of the status API and the MCP tools.
package types

import "time"

// BurstPattern selects how many schedules are submitted per observed block.
type BurstPattern string

const (
	PatternConstant BurstPattern = "constant"
	PatternRamp     BurstPattern = "ramp"
	PatternSpike    BurstPattern = "spike"
)

// BlockSource selects how new blocks are detected.
type BlockSource string

const (
	BlockSourcePoll      BlockSource = "poll"      // Query the latest header in a loop
	BlockSourceSubscribe BlockSource = "subscribe" // chain_subscribeNewHeads
)

// StopMode selects how the run duration is enforced.
type StopMode string

const (
	// StopExact stops only when current-start equals the duration exactly.
	// A block source that skips the boundary never stops the run.
	StopExact StopMode = "exact"
	// StopAtLeast stops once current-start reaches or passes the duration.
	StopAtLeast StopMode = "at-least"
)

// RunState represents the current run state.
type RunState string

const (
	StateIdle        RunState = "idle"
	StateStarting    RunState = "starting" // Connecting, deriving signer, taking baseline
	StateRunning     RunState = "running"
	StateCompleted   RunState = "completed"
	StateInterrupted RunState = "interrupted"
	StateError       RunState = "error"
)

// SubmissionOutcome categorizes the result of one schedule submission.
type SubmissionOutcome string

const (
	OutcomeSubmitted SubmissionOutcome = "submitted"
	OutcomeNonce     SubmissionOutcome = "nonce"     // Stale/future nonce, priority too low
	OutcomeFunds     SubmissionOutcome = "funds"     // Cannot pay fees
	OutcomeInvalid   SubmissionOutcome = "invalid"   // Bad signature, bad proof, call rejected
	OutcomePool      SubmissionOutcome = "pool"      // Transaction pool full or banned
	OutcomeTransport SubmissionOutcome = "transport" // Connection or timeout
	OutcomeOther     SubmissionOutcome = "other"
)

// AllOutcomes lists every outcome in reporting order.
var AllOutcomes = []SubmissionOutcome{
	OutcomeSubmitted,
	OutcomeNonce,
	OutcomeFunds,
	OutcomeInvalid,
	OutcomePool,
	OutcomeTransport,
	OutcomeOther,
}

// BurstSummary is the JSON view of one submission burst.
// Balances are decimal strings since they routinely exceed 2^64.
type BurstSummary struct {
	Block         uint64                    `json:"block"`
	ElapsedBlocks uint64                    `json:"elapsedBlocks"`
	Attempts      int                       `json:"attempts"`
	Submitted     int                       `json:"submitted"`
	Failed        int                       `json:"failed"`
	Outcomes      map[SubmissionOutcome]int `json:"outcomes,omitempty"`
	FeeSpent      string                    `json:"feeSpent,omitempty"`
	Balance       string                    `json:"balance,omitempty"`
	RefTime       uint64                    `json:"refTime"`
	ProofSize     uint64                    `json:"proofSize"`
	WeightKnown   bool                      `json:"weightKnown"`
	DurationMs    int64                     `json:"durationMs"`
	Timestamp     time.Time                 `json:"timestamp"`
}

// LatencyStats holds latency statistics in milliseconds.
type LatencyStats struct {
	Count   int             `json:"count"`
	Min     float64         `json:"min"`
	Max     float64         `json:"max"`
	Avg     float64         `json:"avg"`
	P50     float64         `json:"p50"`
	P90     float64         `json:"p90"`
	P95     float64         `json:"p95"`
	P99     float64         `json:"p99"`
	Buckets []LatencyBucket `json:"buckets"`
}

// LatencyBucket is one histogram bucket of LatencyStats.
type LatencyBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// RunStatus is the live status returned by /v1/status.
type RunStatus struct {
	State          RunState                     `json:"state"`
	RunID          string                       `json:"runId,omitempty"`
	Endpoint       string                       `json:"endpoint"`
	Chain          string                       `json:"chain,omitempty"`
	NodeName       string                       `json:"nodeName,omitempty"`
	NodeVersion    string                       `json:"nodeVersion,omitempty"`
	Signer         string                       `json:"signer,omitempty"`
	StartBlock     uint64                       `json:"startBlock"`
	CurrentBlock   uint64                       `json:"currentBlock"`
	DurationBlocks uint64                       `json:"durationBlocks"`
	StopMode       StopMode                     `json:"stopMode"`
	Bursts         uint64                       `json:"bursts"`
	Attempts       uint64                       `json:"attempts"`
	Submitted      uint64                       `json:"submitted"`
	Failed         uint64                       `json:"failed"`
	Outcomes       map[SubmissionOutcome]uint64 `json:"outcomes,omitempty"`
	InitialBalance string                       `json:"initialBalance,omitempty"`
	TotalSpent     string                       `json:"totalSpent,omitempty"`
	SubmitLatency  *LatencyStats                `json:"submitLatency,omitempty"` // Nonce fetch plus submission round trip
	LastBurst      *BurstSummary                `json:"lastBurst,omitempty"`
	StartedAt      time.Time                    `json:"startedAt,omitempty"`
	Error          string                       `json:"error,omitempty"`
}

// RunSummary is one row of /v1/history.
type RunSummary struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	Endpoint       string     `json:"endpoint"`
	Chain          string     `json:"chain"`
	Signer         string     `json:"signer"`
	State          RunState   `json:"state"`
	StartBlock     uint64     `json:"startBlock"`
	EndBlock       uint64     `json:"endBlock"`
	DurationBlocks uint64     `json:"durationBlocks"`
	Bursts         uint64     `json:"bursts"`
	Attempts       uint64     `json:"attempts"`
	Submitted      uint64     `json:"submitted"`
	Failed         uint64     `json:"failed"`
	InitialBalance string     `json:"initialBalance"`
	FinalBalance   string     `json:"finalBalance,omitempty"`
	TotalSpent     string     `json:"totalSpent,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// PaginatedRuns is a page of run history, newest first.
type PaginatedRuns struct {
	Runs   []RunSummary `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// RunDetail is a run with its per-block samples in block order.
type RunDetail struct {
	Run     RunSummary     `json:"run"`
	Samples []BurstSummary `json:"samples"`
}
