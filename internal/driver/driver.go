// Package driver runs a block-paced burst of DCA schedule submissions against
// a node and reports balance and block weight telemetry per burst.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/gateway-fm/dcaload/internal/chain"
	"github.com/gateway-fm/dcaload/internal/metrics"
	"github.com/gateway-fm/dcaload/internal/pattern"
	"github.com/gateway-fm/dcaload/pkg/types"
)

// ErrInterrupted wraps the context error when a run is cancelled before the
// stop condition is reached.
var ErrInterrupted = errors.New("run interrupted")

const defaultShutdownTimeout = 30 * time.Second

// Recorder persists run history. Errors are logged and never stop a run.
type Recorder interface {
	StartRun(ctx context.Context, run types.RunSummary) error
	RecordBurst(ctx context.Context, runID string, burst types.BurstSummary) error
	FinishRun(ctx context.Context, run types.RunSummary) error
}

// DeriveFunc derives the signing identity.
type DeriveFunc func(uri string, network uint16) (chain.Signer, error)

// Config configures a Driver.
type Config struct {
	Client chain.Client
	// Source yields block numbers. Defaults to a tight Poller over Client.
	// Run closes it on return.
	Source BlockSource
	// Pattern sizes each burst. Defaults to a constant TxsPerBlock.
	Pattern     pattern.Pattern
	TxsPerBlock int

	SignerURI string
	Network   uint16
	Derive    DeriveFunc

	DurationBlocks uint64
	StopMode       types.StopMode

	Shape chain.ScheduleShape
	Tip   *big.Int
	// SubmitRate caps submissions per second. Zero disables pacing.
	SubmitRate float64

	// Endpoint is reported in status and history.
	Endpoint string

	Metrics         *metrics.PrometheusMetrics
	Recorder        Recorder
	Logger          *slog.Logger
	ShutdownTimeout time.Duration
}

// Driver owns the run loop state.
type Driver struct {
	client   chain.Client
	source   BlockSource
	pattern  pattern.Pattern
	derive   DeriveFunc
	limiter  *rate.Limiter
	metrics  *metrics.PrometheusMetrics
	recorder Recorder
	logger   *slog.Logger
	cfg      Config

	status *liveStatus

	scope     event.SubscriptionScope
	burstFeed event.Feed
}

// runState is the mutable loop state. Only the Run goroutine touches it.
type runState struct {
	report      *RunReport
	signer      chain.Signer
	seq         uint64 // submission counter
	lastBlock   uint64
	prevBalance *big.Int
	outcomes    metrics.OutcomeCounters
}

// New validates cfg and creates a Driver.
func New(cfg Config) (*Driver, error) {
	if cfg.Client == nil {
		return nil, errors.New("chain client is required")
	}
	if cfg.SignerURI == "" {
		return nil, errors.New("signer URI is required")
	}
	if cfg.StopMode == "" {
		cfg.StopMode = types.StopExact
	}
	if cfg.StopMode != types.StopExact && cfg.StopMode != types.StopAtLeast {
		return nil, fmt.Errorf("invalid stop mode: %s", cfg.StopMode)
	}
	if cfg.SubmitRate < 0 {
		return nil, fmt.Errorf("submit rate cannot be negative: %v", cfg.SubmitRate)
	}
	if cfg.Tip == nil {
		cfg.Tip = new(big.Int)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	d := &Driver{
		client:   cfg.Client,
		source:   cfg.Source,
		pattern:  cfg.Pattern,
		derive:   cfg.Derive,
		metrics:  cfg.Metrics,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		cfg:      cfg,
	}
	if d.source == nil {
		d.source = NewPoller(cfg.Client, 0)
	}
	if d.pattern == nil {
		d.pattern = pattern.NewConstant(cfg.TxsPerBlock)
	}
	if d.derive == nil {
		d.derive = chain.DeriveSigner
	}
	if cfg.SubmitRate > 0 {
		burst := int(cfg.SubmitRate)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRate), burst)
	}
	d.status = newLiveStatus(cfg.Endpoint, cfg.DurationBlocks, cfg.StopMode)
	return d, nil
}

// SubscribeBursts delivers every burst summary to ch. The driver blocks on
// delivery, so subscribers must drain ch promptly.
func (d *Driver) SubscribeBursts(ch chan<- types.BurstSummary) event.Subscription {
	return d.scope.Track(d.burstFeed.Subscribe(ch))
}

// Status returns a snapshot of the live run state. Safe for concurrent use.
func (d *Driver) Status() types.RunStatus {
	return d.status.snapshot()
}

// Run executes the startup contract, the block loop and the shutdown
// report. Startup failures return a nil report. Once the loop has started a
// report is always returned, together with ErrInterrupted on cancellation or
// the block source error that ended the loop.
func (d *Driver) Run(ctx context.Context) (*RunReport, error) {
	defer d.scope.Close()
	defer d.source.Close()

	d.setState(types.StateStarting)
	st, err := d.start(ctx)
	if err != nil {
		d.status.fail(err)
		d.setState(types.StateError)
		return nil, err
	}

	d.setState(types.StateRunning)
	runErr := d.loop(ctx, st)
	d.finish(ctx, st, runErr)
	return st.report, runErr
}

func (d *Driver) start(ctx context.Context) (*runState, error) {
	info, err := d.client.NodeInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("query node info: %w", err)
	}
	d.logger.Info("connected to chain",
		slog.String("chain", info.Chain),
		slog.String("node", info.Name),
		slog.String("version", info.Version),
	)

	signer, err := d.derive(d.cfg.SignerURI, d.cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("derive signer: %w", err)
	}

	balance, err := d.client.FreeBalance(ctx, signer)
	if err != nil {
		return nil, fmt.Errorf("query initial balance: %w", err)
	}
	d.logger.Info("signer ready",
		slog.String("address", signer.Address()),
		slog.String("free_balance", balance.String()),
	)
	d.metrics.SetFreeBalance(balance)

	startBlock, err := d.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("query start block: %w", err)
	}

	report := &RunReport{
		RunID:          uuid.New().String(),
		Node:           info,
		Signer:         signer.Address(),
		StartBlock:     startBlock,
		EndBlock:       startBlock,
		State:          types.StateRunning,
		InitialBalance: balance,
		StartedAt:      time.Now(),
	}
	d.status.started(report)

	d.logger.Info("run started",
		slog.String("run_id", report.RunID),
		slog.Uint64("start_block", startBlock),
		slog.Uint64("duration_blocks", d.cfg.DurationBlocks),
		slog.String("stop_mode", string(d.cfg.StopMode)),
		slog.String("pattern", string(d.pattern.Name())),
	)
	d.record(func(rec Recorder) error {
		return rec.StartRun(ctx, report.Summary(d.cfg.Endpoint, d.cfg.DurationBlocks, nil))
	})

	return &runState{
		report:      report,
		signer:      signer,
		lastBlock:   startBlock,
		prevBalance: balance,
	}, nil
}

func (d *Driver) loop(ctx context.Context, st *runState) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, err)
		}

		current, err := d.source.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w: %w", ErrInterrupted, ctxErr)
			}
			return fmt.Errorf("observe block: %w", err)
		}
		d.status.observed(current)
		st.report.EndBlock = current

		if current != st.lastBlock {
			burst := d.burst(ctx, st, current)
			d.publish(ctx, st, burst)
			st.lastBlock = current
		}

		if d.shouldStop(st.report.StartBlock, current) {
			d.logger.Info("duration reached",
				slog.Uint64("block", current),
				slog.Uint64("elapsed_blocks", elapsedBlocks(st.report.StartBlock, current)),
			)
			return nil
		}
	}
}

// shouldStop applies the configured stop mode. A block number below the
// start block never stops the run.
func (d *Driver) shouldStop(start, current uint64) bool {
	if current < start {
		return false
	}
	elapsed := current - start
	if d.cfg.StopMode == types.StopAtLeast {
		return elapsed >= d.cfg.DurationBlocks
	}
	return elapsed == d.cfg.DurationBlocks
}

func elapsedBlocks(start, current uint64) uint64 {
	if current < start {
		return 0
	}
	return current - start
}

func (d *Driver) burst(ctx context.Context, st *runState, block uint64) *BurstReport {
	started := time.Now()
	elapsed := elapsedBlocks(st.report.StartBlock, block)
	n := d.pattern.TxsForBlock(elapsed)

	report := &BurstReport{
		Block:         block,
		ElapsedBlocks: elapsed,
		Results:       make([]SubmissionResult, 0, max(n, 0)),
	}

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			d.logger.Warn("burst cut short by shutdown",
				slog.Uint64("block", block),
				slog.Int("attempted", i),
				slog.Int("planned", n),
			)
			break
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				// Wait fails early when the next token lies past the context
				// deadline. The attempt still counts toward the burst.
				st.seq++
				report.Results = append(report.Results, d.tally(st, SubmissionResult{
					Seq:     st.seq,
					Outcome: Classify(err),
					Err:     fmt.Errorf("rate limit: %w", err),
				}))
				continue
			}
		}
		report.Results = append(report.Results, d.submit(ctx, st))
	}

	d.telemetry(ctx, st, report)
	report.Duration = time.Since(started)
	report.Timestamp = time.Now()
	return report
}

// submit makes one attempt. Every error is classified and logged with the
// submission counter; none escapes the burst.
func (d *Driver) submit(ctx context.Context, st *runState) SubmissionResult {
	st.seq++
	res := SubmissionResult{Seq: st.seq}
	started := time.Now()

	nonce, err := d.client.NextNonce(ctx, st.signer)
	d.metrics.RecordRPCLatency("system_accountNextIndex", err == nil, time.Since(started).Seconds())
	if err != nil {
		res.Outcome = Classify(err)
		res.Err = fmt.Errorf("fetch nonce: %w", err)
	} else {
		res.Nonce = nonce
		submitStarted := time.Now()
		res.Hash, err = d.client.SubmitSchedule(ctx, st.signer, chain.ScheduleRequest{
			Shape: d.cfg.Shape,
			Nonce: nonce,
			Tip:   d.cfg.Tip,
		})
		d.metrics.RecordRPCLatency("author_submitExtrinsic", err == nil, time.Since(submitStarted).Seconds())
		res.Outcome = Classify(err)
		if err != nil {
			res.Err = fmt.Errorf("submit schedule: %w", err)
		}
	}

	res.Latency = time.Since(started)
	return d.tally(st, res)
}

// tally counts an attempt and logs it with the submission counter.
func (d *Driver) tally(st *runState, res SubmissionResult) SubmissionResult {
	st.outcomes.Inc(res.Outcome)
	d.status.submission(res.Outcome, res.Latency)
	d.metrics.RecordSubmission(res.Outcome)

	if res.Err != nil {
		d.logger.Warn("schedule submission failed",
			slog.Uint64("counter", res.Seq),
			slog.Uint64("nonce", res.Nonce),
			slog.String("outcome", string(res.Outcome)),
			slog.String("error", res.Err.Error()),
		)
	} else {
		d.logger.Debug("schedule submitted",
			slog.Uint64("counter", res.Seq),
			slog.Uint64("nonce", res.Nonce),
			slog.String("hash", res.Hash),
		)
	}
	return res
}

// telemetry fills balance, fee and weight after a burst and advances the
// balance snapshot.
func (d *Driver) telemetry(ctx context.Context, st *runState, report *BurstReport) {
	balance, err := d.client.FreeBalance(ctx, st.signer)
	if err != nil {
		d.logger.Warn("balance query failed", slog.Uint64("block", report.Block), slog.String("error", err.Error()))
	} else {
		report.Balance = balance
		report.FeeSpent = SpentBetween(st.prevBalance, balance)
	}
	// Nil after a failed query, so the next burst's fee is absent too.
	st.prevBalance = balance

	weight, err := d.client.BlockWeight(ctx)
	if err != nil {
		d.logger.Warn("block weight query failed", slog.Uint64("block", report.Block), slog.String("error", err.Error()))
		return
	}
	report.Weight = &weight
}

func (d *Driver) publish(ctx context.Context, st *runState, burst *BurstReport) {
	st.report.Bursts++
	summary := burst.Summary()

	attrs := []any{
		slog.Uint64("block", burst.Block),
		slog.Uint64("elapsed_blocks", burst.ElapsedBlocks),
		slog.Int("attempts", summary.Attempts),
		slog.Int("submitted", summary.Submitted),
		slog.Int("failed", summary.Failed),
		slog.Int64("duration_ms", summary.DurationMs),
	}
	if burst.FeeSpent != nil {
		attrs = append(attrs, slog.String("fee_spent", burst.FeeSpent.String()))
	}
	if burst.Weight != nil {
		attrs = append(attrs,
			slog.Uint64("ref_time", burst.Weight.Normal.RefTime),
			slog.Uint64("proof_size", burst.Weight.Normal.ProofSize),
		)
	}
	d.logger.Info("burst complete", attrs...)

	d.metrics.RecordBurst(summary, burst.FeeSpent, burst.Balance)
	d.status.burst(summary)
	d.record(func(rec Recorder) error {
		return rec.RecordBurst(context.WithoutCancel(ctx), st.report.RunID, summary)
	})
	d.burstFeed.Send(summary)
}

func (d *Driver) finish(ctx context.Context, st *runState, runErr error) {
	report := st.report
	report.Attempts = st.seq
	report.Outcomes = st.outcomes.Snapshot()
	report.Submitted = st.outcomes.Load(types.OutcomeSubmitted)
	report.Failed = st.outcomes.Failed()

	switch {
	case runErr == nil:
		report.State = types.StateCompleted
	case errors.Is(runErr, ErrInterrupted):
		report.State = types.StateInterrupted
	default:
		report.State = types.StateError
	}

	// The run context may already be cancelled; the final query still runs.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ShutdownTimeout)
	defer cancel()

	final, err := d.client.FreeBalance(shutdownCtx, st.signer)
	if err != nil {
		d.logger.Warn("final balance query failed", slog.String("error", err.Error()))
	} else {
		report.FinalBalance = final
		report.TotalSpent = SpentBetween(report.InitialBalance, final)
		d.metrics.SetFreeBalance(final)
	}
	report.FinishedAt = time.Now()

	attrs := []any{
		slog.String("run_id", report.RunID),
		slog.String("state", string(report.State)),
		slog.Uint64("start_block", report.StartBlock),
		slog.Uint64("end_block", report.EndBlock),
		slog.Int("bursts", report.Bursts),
		slog.Uint64("attempts", report.Attempts),
		slog.Uint64("submitted", report.Submitted),
		slog.Uint64("failed", report.Failed),
	}
	if report.TotalSpent != nil {
		attrs = append(attrs, slog.String("total_spent", report.TotalSpent.String()))
	}
	d.logger.Info("run finished", attrs...)

	d.status.finished(report, runErr)
	d.setState(report.State)
	d.record(func(rec Recorder) error {
		return rec.FinishRun(shutdownCtx, report.Summary(d.cfg.Endpoint, d.cfg.DurationBlocks, runErr))
	})
}

func (d *Driver) setState(state types.RunState) {
	d.status.setState(state)
	d.metrics.SetRunState(state)
}

func (d *Driver) record(fn func(Recorder) error) {
	if d.recorder == nil {
		return
	}
	if err := fn(d.recorder); err != nil {
		d.logger.Warn("failed to record run history", slog.String("error", err.Error()))
	}
}
