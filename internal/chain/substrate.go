package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// SubstrateClient implements Client over a single websocket connection.
type SubstrateClient struct {
	api      *gsrpc.SubstrateAPI
	url      string
	callName string
	logger   *slog.Logger

	// Fetched once at dial time. A runtime upgrade mid-run invalidates them.
	meta    *types.Metadata
	genesis types.Hash
	runtime *types.RuntimeVersion
}

// Ensure SubstrateClient implements Client
var _ Client = (*SubstrateClient)(nil)

// DialConfig holds configuration for Dial.
type DialConfig struct {
	URL      string
	CallName string // defaults to DefaultScheduleCall
	Logger   *slog.Logger
}

// Dial opens the websocket connection and loads metadata, genesis hash and
// runtime version. It blocks until the node has answered all three.
func Dial(ctx context.Context, cfg DialConfig) (*SubstrateClient, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	callName := cfg.CallName
	if callName == "" {
		callName = DefaultScheduleCall
	}

	api, err := await(ctx, func() (*gsrpc.SubstrateAPI, error) {
		return gsrpc.NewSubstrateAPI(cfg.URL)
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.URL, err)
	}

	c := &SubstrateClient{
		api:      api,
		url:      cfg.URL,
		callName: callName,
		logger:   logger,
	}

	c.meta, err = await(ctx, api.RPC.State.GetMetadataLatest)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	c.genesis, err = await(ctx, func() (types.Hash, error) {
		return api.RPC.Chain.GetBlockHash(0)
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("fetch genesis hash: %w", err)
	}
	c.runtime, err = await(ctx, api.RPC.State.GetRuntimeVersionLatest)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("fetch runtime version: %w", err)
	}

	logger.Debug("chain client ready",
		slog.String("url", cfg.URL),
		slog.String("genesis", c.genesis.Hex()),
		slog.Uint64("specVersion", uint64(c.runtime.SpecVersion)),
		slog.Uint64("txVersion", uint64(c.runtime.TransactionVersion)),
	)

	return c, nil
}

// Close tears down the websocket connection if the underlying client supports it.
func (c *SubstrateClient) Close() {
	if closer, ok := c.api.Client.(interface{ Close() }); ok {
		closer.Close()
	}
}

// URL returns the endpoint the client is connected to.
func (c *SubstrateClient) URL() string {
	return c.url
}

// NodeInfo implements Client.
func (c *SubstrateClient) NodeInfo(ctx context.Context) (NodeInfo, error) {
	chainName, err := await(ctx, c.api.RPC.System.Chain)
	if err != nil {
		return NodeInfo{}, fmt.Errorf("system_chain: %w", err)
	}
	name, err := await(ctx, c.api.RPC.System.Name)
	if err != nil {
		return NodeInfo{}, fmt.Errorf("system_name: %w", err)
	}
	version, err := await(ctx, c.api.RPC.System.Version)
	if err != nil {
		return NodeInfo{}, fmt.Errorf("system_version: %w", err)
	}
	return NodeInfo{Chain: string(chainName), Name: string(name), Version: string(version)}, nil
}

// FreeBalance implements Client.
func (c *SubstrateClient) FreeBalance(ctx context.Context, signer Signer) (*big.Int, error) {
	key, err := types.CreateStorageKey(c.meta, "System", "Account", signer.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("System.Account storage key: %w", err)
	}

	var info types.AccountInfo
	ok, err := await(ctx, func() (bool, error) {
		return c.api.RPC.State.GetStorageLatest(key, &info)
	})
	if err != nil {
		return nil, fmt.Errorf("query System.Account: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", signer.Address(), ErrNoAccount)
	}
	if info.Data.Free.Int == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(info.Data.Free.Int), nil
}

// NextNonce implements Client.
func (c *SubstrateClient) NextNonce(ctx context.Context, signer Signer) (uint64, error) {
	nonce, err := await(ctx, func() (uint64, error) {
		var n uint64
		err := c.api.Client.Call(&n, "system_accountNextIndex", signer.Address())
		return n, err
	})
	if err != nil {
		return 0, fmt.Errorf("system_accountNextIndex: %w", err)
	}
	return nonce, nil
}

// BlockNumber implements Client.
func (c *SubstrateClient) BlockNumber(ctx context.Context) (uint64, error) {
	header, err := await(ctx, c.api.RPC.Chain.GetHeaderLatest)
	if err != nil {
		return 0, fmt.Errorf("chain_getHeader: %w", err)
	}
	return uint64(header.Number), nil
}

// CheckNode reports whether the node still answers header queries.
func (c *SubstrateClient) CheckNode(ctx context.Context) error {
	_, err := c.BlockNumber(ctx)
	return err
}

// weightV2 matches sp_weights::Weight, both fields compact encoded.
type weightV2 struct {
	RefTime   types.UCompact
	ProofSize types.UCompact
}

type perDispatchClass struct {
	Normal      weightV2
	Operational weightV2
	Mandatory   weightV2
}

func (w weightV2) toWeight() Weight {
	refTime := big.Int(w.RefTime)
	proofSize := big.Int(w.ProofSize)
	return Weight{RefTime: refTime.Uint64(), ProofSize: proofSize.Uint64()}
}

// BlockWeight implements Client.
func (c *SubstrateClient) BlockWeight(ctx context.Context) (BlockWeight, error) {
	key, err := types.CreateStorageKey(c.meta, "System", "BlockWeight")
	if err != nil {
		return BlockWeight{}, fmt.Errorf("System.BlockWeight storage key: %w", err)
	}

	var raw perDispatchClass
	if _, err := await(ctx, func() (bool, error) {
		return c.api.RPC.State.GetStorageLatest(key, &raw)
	}); err != nil {
		return BlockWeight{}, fmt.Errorf("query System.BlockWeight: %w", err)
	}

	return BlockWeight{
		Normal:      raw.Normal.toWeight(),
		Operational: raw.Operational.toWeight(),
		Mandatory:   raw.Mandatory.toWeight(),
	}, nil
}

// SubmitSchedule implements Client.
func (c *SubstrateClient) SubmitSchedule(ctx context.Context, signer Signer, req ScheduleRequest) (string, error) {
	schedule, err := NewSchedule(signer.PublicKey(), req.Shape)
	if err != nil {
		return "", err
	}

	// Second argument is start_execution_block: None schedules from the next block.
	call, err := types.NewCall(c.meta, c.callName, schedule, types.NewOptionU32Empty())
	if err != nil {
		return "", fmt.Errorf("build %s call: %w", c.callName, err)
	}

	tip := types.NewUCompactFromUInt(0)
	if req.Tip != nil {
		tip = types.NewUCompact(req.Tip)
	}

	ext := types.NewExtrinsic(call)
	opts := types.SignatureOptions{
		BlockHash:          c.genesis,
		Era:                types.ExtrinsicEra{IsMortalEra: false},
		GenesisHash:        c.genesis,
		Nonce:              types.NewUCompactFromUInt(req.Nonce),
		SpecVersion:        c.runtime.SpecVersion,
		Tip:                tip,
		TransactionVersion: c.runtime.TransactionVersion,
	}
	if err := ext.Sign(signer.Pair, opts); err != nil {
		return "", fmt.Errorf("sign extrinsic: %w", err)
	}

	hash, err := await(ctx, func() (types.Hash, error) {
		return c.api.RPC.Author.SubmitExtrinsic(ext)
	})
	if err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

// await runs fn on its own goroutine so a stalled RPC call cannot outlive ctx.
// The goroutine itself is abandoned on cancellation.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
