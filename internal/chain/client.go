// Package chain wraps the Substrate RPC client used to talk to the node.
//
// Everything on the wire (websocket JSON-RPC, SCALE encoding, sr25519
// signing) is delegated to go-substrate-rpc-client. This package only shapes
// the handful of queries and the one extrinsic the load driver needs.
package chain

import (
	"context"
	"errors"
	"math/big"
)

// ErrNoAccount is returned when the signer has no System.Account entry.
var ErrNoAccount = errors.New("account not found in state")

// Client is the interface the load driver uses to reach the node.
type Client interface {
	// NodeInfo returns chain name, node implementation name and node version.
	NodeInfo(ctx context.Context) (NodeInfo, error)

	// FreeBalance returns the free balance of the signer's account.
	FreeBalance(ctx context.Context, signer Signer) (*big.Int, error)

	// NextNonce returns the next account index, including pool transactions.
	NextNonce(ctx context.Context, signer Signer) (uint64, error)

	// BlockNumber returns the number of the latest block header.
	BlockNumber(ctx context.Context) (uint64, error)

	// SubscribeHeads subscribes to new block headers.
	SubscribeHeads(ctx context.Context) (HeadSubscription, error)

	// BlockWeight returns the weight consumed so far by the current block.
	BlockWeight(ctx context.Context) (BlockWeight, error)

	// SubmitSchedule signs and submits one DCA schedule extrinsic.
	// Returns the extrinsic hash as a 0x-prefixed hex string.
	SubmitSchedule(ctx context.Context, signer Signer, req ScheduleRequest) (string, error)
}

// HeadSubscription delivers block numbers announced by the node.
type HeadSubscription interface {
	Numbers() <-chan uint64
	Err() <-chan error
	Unsubscribe()
}

// NodeInfo holds the descriptive strings reported by the node.
type NodeInfo struct {
	Chain   string `json:"chain"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Weight is a two-dimensional weight (ref time in picoseconds, proof size in bytes).
type Weight struct {
	RefTime   uint64 `json:"refTime"`
	ProofSize uint64 `json:"proofSize"`
}

// BlockWeight is the per dispatch class weight of the current block.
type BlockWeight struct {
	Normal      Weight `json:"normal"`
	Operational Weight `json:"operational"`
	Mandatory   Weight `json:"mandatory"`
}

// Total sums all dispatch classes.
func (w BlockWeight) Total() Weight {
	return Weight{
		RefTime:   w.Normal.RefTime + w.Operational.RefTime + w.Mandatory.RefTime,
		ProofSize: w.Normal.ProofSize + w.Operational.ProofSize + w.Mandatory.ProofSize,
	}
}

// ScheduleRequest is one fixed-shape DCA schedule submission.
type ScheduleRequest struct {
	Shape ScheduleShape
	Nonce uint64
	Tip   *big.Int
}

// ScheduleShape describes the schedule payload independent of the signer.
type ScheduleShape struct {
	Period       uint32
	TotalAmount  *big.Int
	AssetIn      uint32
	AssetOut     uint32
	AmountIn     *big.Int
	MinAmountOut *big.Int
}
