// Package config handles configuration loading and validation.
package config

import (
	"flag"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/gateway-fm/dcaload/internal/chain"
	"github.com/gateway-fm/dcaload/internal/pattern"
	"github.com/gateway-fm/dcaload/pkg/types"
)

// Config holds load driver configuration.
type Config struct {
	WSURL     string // Node websocket RPC endpoint
	SignerURI string // Secret URI of the signing account, e.g. "//Alice"
	Network   uint16 // SS58 prefix used to render the signer address

	DurationBlocks uint64 // Run length in blocks
	TxsPerBlock    int    // Schedules submitted per observed block (constant pattern)
	Utilization    int    // Target weight utilization in percent; overrides TxsPerBlock when set

	Pattern       types.BurstPattern
	RampStart     int
	RampEnd       int
	RampBlocks    uint64 // 0 = ramp over the whole run
	SpikeBaseline int
	SpikeSize     int
	SpikeEvery    uint64
	SpikeLength   uint64

	Tip          *big.Int
	SubmitRate   float64       // Max submissions per second within a burst (0 = unlimited)
	PollInterval time.Duration // Delay between block polls (0 = tight poll)
	BlockSource  types.BlockSource
	StopMode     types.StopMode

	CallName string
	Schedule chain.ScheduleShape

	ListenAddr   string // Status API listen address (empty = disabled)
	DatabasePath string // SQLite database path (empty = no persistence)
	LogLevel     string
	LogFormat    string // "json" or "text"

	// Comma-separated allowed origins for the status API ("*" or empty = all)
	CORSAllowedOrigins string
}

// Defaults
const (
	DefaultWSURL          = "ws://127.0.0.1:9988"
	DefaultSignerURI      = chain.DevAlice
	DefaultNetwork        = chain.GenericNetwork
	DefaultDurationBlocks = 1000
	DefaultTxsPerBlock    = 100 // ~100% normal-class weight on a local testnet
	DefaultTip            = 1
	DefaultPeriod         = 1
	DefaultTotalAmount    = "1000000000000000"
	DefaultAssetIn        = 5
	DefaultAssetOut       = 2
	DefaultAmountIn       = "100000000000000"
	DefaultMinAmountOut   = "0"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"

	MaxTxsPerBlock = 10000 // Upper bound to catch typos, far above any block's capacity
)

// Default returns a config with every field at its default value.
func Default() *Config {
	return &Config{
		WSURL:          DefaultWSURL,
		SignerURI:      DefaultSignerURI,
		Network:        DefaultNetwork,
		DurationBlocks: DefaultDurationBlocks,
		TxsPerBlock:    DefaultTxsPerBlock,
		Pattern:        types.PatternConstant,
		Tip:            big.NewInt(DefaultTip),
		BlockSource:    types.BlockSourcePoll,
		StopMode:       types.StopExact,
		CallName:       chain.DefaultScheduleCall,
		Schedule: chain.ScheduleShape{
			Period:       DefaultPeriod,
			TotalAmount:  mustBig(DefaultTotalAmount),
			AssetIn:      DefaultAssetIn,
			AssetOut:     DefaultAssetOut,
			AmountIn:     mustBig(DefaultAmountIn),
			MinAmountOut: mustBig(DefaultMinAmountOut),
		},
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}

// Load reads configuration from environment variables and command-line flags.
// Command-line flags take precedence over environment variables.
func Load() (*Config, error) {
	return Parse(flag.CommandLine, os.Args[1:], os.Getenv)
}

// Parse is Load with an explicit flag set, argument list and environment lookup.
func Parse(fs *flag.FlagSet, args []string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	// Load from environment variables first
	if v := getenv("DCALOAD_WS_URL"); v != "" {
		cfg.WSURL = v
	}
	if v := getenv("DCALOAD_SIGNER_URI"); v != "" {
		cfg.SignerURI = v
	}
	if v := getenv("DCALOAD_DURATION_BLOCKS"); v != "" {
		if n, err := parseUint64Env(v); err == nil && n > 0 {
			cfg.DurationBlocks = n
		}
	}
	if v := getenv("DCALOAD_TXS_PER_BLOCK"); v != "" {
		if n, err := parseIntEnv(v); err == nil && n >= 0 {
			cfg.TxsPerBlock = n
		}
	}
	if v := getenv("DCALOAD_TIP"); v != "" {
		if tip, ok := new(big.Int).SetString(v, 10); ok && tip.Sign() >= 0 {
			cfg.Tip = tip
		}
	}
	if v := getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = v
	}

	// Define command-line flags
	var (
		wsURL          = fs.String("ws", cfg.WSURL, "Node websocket RPC endpoint")
		signerURI      = fs.String("signer", cfg.SignerURI, "Secret URI of the signing account (dev accounts only)")
		network        = fs.Uint("ss58", uint(cfg.Network), "SS58 address prefix")
		durationBlocks = fs.Uint64("blocks", cfg.DurationBlocks, "Run duration in blocks")
		txsPerBlock    = fs.Int("txs-per-block", cfg.TxsPerBlock, "Schedules submitted per new block")
		utilization    = fs.Int("utilization", 0, "Target block weight utilization in percent (10..100, overrides -txs-per-block)")
		patternFlag    = fs.String("pattern", string(cfg.Pattern), "Burst pattern (constant, ramp, spike)")
		rampStart      = fs.Int("ramp-start", 0, "Burst size at the start of a ramp")
		rampEnd        = fs.Int("ramp-end", 0, "Burst size at the end of a ramp")
		rampBlocks     = fs.Uint64("ramp-blocks", 0, "Ramp length in blocks (0 = whole run)")
		spikeBaseline  = fs.Int("spike-baseline", 0, "Burst size outside spikes")
		spikeSize      = fs.Int("spike-size", 0, "Burst size during spikes")
		spikeEvery     = fs.Uint64("spike-every", 10, "Spike interval in blocks")
		spikeLength    = fs.Uint64("spike-length", 1, "Spike length in blocks")
		tip            = fs.String("tip", cfg.Tip.String(), "Tip attached to every extrinsic (planck)")
		submitRate     = fs.Float64("submit-rate", 0, "Max submissions per second within a burst (0 = unlimited)")
		pollInterval   = fs.Duration("poll-interval", 0, "Delay between block polls (0 = tight poll)")
		blockSource    = fs.String("block-source", string(cfg.BlockSource), "Block detection (poll, subscribe)")
		stopMode       = fs.String("stop-mode", string(cfg.StopMode), "Stop condition (exact, at-least)")
		callName       = fs.String("call", cfg.CallName, "Runtime call submitted on every attempt")
		period         = fs.Uint("period", uint(cfg.Schedule.Period), "DCA period in blocks")
		totalAmount    = fs.String("total-amount", DefaultTotalAmount, "DCA total amount")
		assetIn        = fs.Uint("asset-in", uint(cfg.Schedule.AssetIn), "Asset sold")
		assetOut       = fs.Uint("asset-out", uint(cfg.Schedule.AssetOut), "Asset bought")
		amountIn       = fs.String("amount-in", DefaultAmountIn, "Amount sold per trade")
		minAmountOut   = fs.String("min-amount-out", DefaultMinAmountOut, "Minimum amount bought per trade")
		listenAddr     = fs.String("listen", cfg.ListenAddr, "Status API listen address (empty = disabled)")
		databasePath   = fs.String("database", cfg.DatabasePath, "SQLite database path (empty = no persistence)")
		logLevel       = fs.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
		logFormat      = fs.String("log-format", cfg.LogFormat, "Log format (json, text)")
		corsOrigins    = fs.String("cors-origins", cfg.CORSAllowedOrigins, "Allowed CORS origins, comma-separated (empty = all)")
	)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Apply flags to config
	cfg.WSURL = *wsURL
	cfg.SignerURI = *signerURI
	cfg.DurationBlocks = *durationBlocks
	cfg.TxsPerBlock = *txsPerBlock
	cfg.Utilization = *utilization
	cfg.Pattern = types.BurstPattern(*patternFlag)
	cfg.RampStart = *rampStart
	cfg.RampEnd = *rampEnd
	cfg.RampBlocks = *rampBlocks
	cfg.SpikeBaseline = *spikeBaseline
	cfg.SpikeSize = *spikeSize
	cfg.SpikeEvery = *spikeEvery
	cfg.SpikeLength = *spikeLength
	cfg.SubmitRate = *submitRate
	cfg.PollInterval = *pollInterval
	cfg.BlockSource = types.BlockSource(*blockSource)
	cfg.StopMode = types.StopMode(*stopMode)
	cfg.CallName = *callName
	cfg.ListenAddr = *listenAddr
	cfg.DatabasePath = *databasePath
	cfg.LogLevel = *logLevel
	cfg.LogFormat = *logFormat
	cfg.CORSAllowedOrigins = *corsOrigins

	if *network > 0xffff {
		return nil, fmt.Errorf("ss58 prefix %d out of range", *network)
	}
	cfg.Network = uint16(*network)

	if *period > 0xffffffff || *assetIn > 0xffffffff || *assetOut > 0xffffffff {
		return nil, fmt.Errorf("period and asset ids must fit in 32 bits")
	}
	cfg.Schedule.Period = uint32(*period)
	cfg.Schedule.AssetIn = uint32(*assetIn)
	cfg.Schedule.AssetOut = uint32(*assetOut)

	var err error
	if cfg.Tip, err = parseAmount("tip", *tip); err != nil {
		return nil, err
	}
	if cfg.Schedule.TotalAmount, err = parseAmount("total-amount", *totalAmount); err != nil {
		return nil, err
	}
	if cfg.Schedule.AmountIn, err = parseAmount("amount-in", *amountIn); err != nil {
		return nil, err
	}
	if cfg.Schedule.MinAmountOut, err = parseAmount("min-amount-out", *minAmountOut); err != nil {
		return nil, err
	}

	// Utilization presets replace the hand-tuned burst size
	if cfg.Utilization != 0 {
		txs, err := pattern.UtilizationPreset(cfg.Utilization)
		if err != nil {
			return nil, err
		}
		cfg.TxsPerBlock = txs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.WSURL == "" {
		return fmt.Errorf("websocket URL is required")
	}
	if c.SignerURI == "" {
		return fmt.Errorf("signer URI is required")
	}
	if c.TxsPerBlock < 0 || c.TxsPerBlock > MaxTxsPerBlock {
		return fmt.Errorf("txs per block must be between 0 and %d", MaxTxsPerBlock)
	}
	if c.Tip == nil || c.Tip.Sign() < 0 {
		return fmt.Errorf("tip cannot be negative")
	}
	if c.SubmitRate < 0 {
		return fmt.Errorf("submit rate cannot be negative")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll interval cannot be negative")
	}
	if c.CallName == "" {
		return fmt.Errorf("call name is required")
	}
	if c.Schedule.Period == 0 {
		return fmt.Errorf("DCA period must be positive")
	}
	if c.Schedule.AssetIn == c.Schedule.AssetOut {
		return fmt.Errorf("asset in and asset out must differ")
	}
	if c.Schedule.AmountIn == nil || c.Schedule.AmountIn.Sign() <= 0 {
		return fmt.Errorf("amount in must be positive")
	}
	if c.Schedule.TotalAmount == nil || c.Schedule.TotalAmount.Cmp(c.Schedule.AmountIn) < 0 {
		return fmt.Errorf("total amount must be at least amount in")
	}

	switch c.BlockSource {
	case types.BlockSourcePoll, types.BlockSourceSubscribe:
		// valid
	default:
		return fmt.Errorf("invalid block source: %s", c.BlockSource)
	}

	switch c.StopMode {
	case types.StopExact, types.StopAtLeast:
		// valid
	default:
		return fmt.Errorf("invalid stop mode: %s", c.StopMode)
	}

	switch c.Pattern {
	case types.PatternConstant:
		// TxsPerBlock checked above
	case types.PatternRamp:
		if c.RampStart < 0 || c.RampEnd < 0 {
			return fmt.Errorf("ramp burst sizes cannot be negative")
		}
		if c.RampStart > MaxTxsPerBlock || c.RampEnd > MaxTxsPerBlock {
			return fmt.Errorf("ramp burst sizes exceed maximum of %d", MaxTxsPerBlock)
		}
	case types.PatternSpike:
		if c.SpikeBaseline < 0 || c.SpikeSize < 0 {
			return fmt.Errorf("spike burst sizes cannot be negative")
		}
		if c.SpikeEvery == 0 {
			return fmt.Errorf("spike interval must be positive")
		}
		if c.SpikeLength > c.SpikeEvery {
			return fmt.Errorf("spike length (%d) must not exceed spike interval (%d)", c.SpikeLength, c.SpikeEvery)
		}
	default:
		return fmt.Errorf("invalid pattern: %s", c.Pattern)
	}

	switch c.LogFormat {
	case "json", "text":
		// valid
	default:
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}

	return nil
}

// PatternConfig returns the burst pattern configuration.
func (c *Config) PatternConfig() pattern.Config {
	rampBlocks := c.RampBlocks
	if rampBlocks == 0 {
		rampBlocks = c.DurationBlocks
	}
	return pattern.Config{
		TxsPerBlock:   c.TxsPerBlock,
		RampStart:     c.RampStart,
		RampEnd:       c.RampEnd,
		RampBlocks:    rampBlocks,
		SpikeBaseline: c.SpikeBaseline,
		SpikeSize:     c.SpikeSize,
		SpikeEvery:    c.SpikeEvery,
		SpikeLength:   c.SpikeLength,
	}
}

// parseAmount parses a non-negative decimal planck amount.
func parseAmount(name, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", name, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%s cannot be negative", name)
	}
	return v, nil
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("config: bad default amount " + s)
	}
	return v
}

// parseIntEnv parses a string environment variable as an integer.
func parseIntEnv(s string) (int, error) {
	return strconv.Atoi(s)
}

// parseUint64Env parses a string environment variable as a uint64.
func parseUint64Env(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
