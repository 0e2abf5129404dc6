package chain

import (
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// DefaultScheduleCall is the runtime call used for every submission.
const DefaultScheduleCall = "DCA.schedule"

// Order variant indices.
const (
	orderSell byte = 0
	orderBuy  byte = 1
)

// Pool variant indices.
const (
	PoolXYK byte = iota
	PoolLBP
	PoolStableswap
	PoolOmnipool
)

// Schedule mirrors the DCA pallet's Schedule<AccountId, AssetId, BlockNumber>.
// Field order is the SCALE encoding order.
type Schedule struct {
	Owner              types.AccountID
	Period             types.U32
	TotalAmount        types.U128
	MaxRetries         types.OptionU8
	StabilityThreshold types.OptionU32
	Slippage           types.OptionU32
	Order              Order
}

// Order is either a Sell or a Buy. Amount is amount_in for Sell and
// amount_out for Buy; Limit is min_amount_out for Sell and max_amount_in for Buy.
type Order struct {
	Buy      bool
	AssetIn  types.U32
	AssetOut types.U32
	Amount   types.U128
	Limit    types.U128
	Route    []Trade
}

// Encode implements scale.Encodeable.
func (o Order) Encode(encoder scale.Encoder) error {
	variant := orderSell
	if o.Buy {
		variant = orderBuy
	}
	if err := encoder.PushByte(variant); err != nil {
		return err
	}
	for _, v := range []interface{}{o.AssetIn, o.AssetOut, o.Amount, o.Limit, o.Route} {
		if err := encoder.Encode(v); err != nil {
			return err
		}
	}
	return nil
}

// Trade is one hop of an order route.
type Trade struct {
	Pool     PoolType
	AssetIn  types.U32
	AssetOut types.U32
}

// PoolType selects the AMM used for a route hop. StableswapPool is only
// encoded for the Stableswap variant.
type PoolType struct {
	Kind           byte
	StableswapPool types.U32
}

// Encode implements scale.Encodeable.
func (p PoolType) Encode(encoder scale.Encoder) error {
	if err := encoder.PushByte(p.Kind); err != nil {
		return err
	}
	if p.Kind == PoolStableswap {
		return encoder.Encode(p.StableswapPool)
	}
	return nil
}

// NewSchedule builds the fixed-shape schedule owned by the given public key.
// Retries, stability threshold, slippage and route are left to the pallet defaults.
func NewSchedule(owner []byte, shape ScheduleShape) (Schedule, error) {
	var account types.AccountID
	if len(owner) != len(account) {
		return Schedule{}, fmt.Errorf("owner public key must be %d bytes, got %d", len(account), len(owner))
	}
	copy(account[:], owner)

	return Schedule{
		Owner:              account,
		Period:             types.U32(shape.Period),
		TotalAmount:        u128(shape.TotalAmount),
		MaxRetries:         types.NewOptionU8Empty(),
		StabilityThreshold: types.NewOptionU32Empty(),
		Slippage:           types.NewOptionU32Empty(),
		Order: Order{
			AssetIn:  types.U32(shape.AssetIn),
			AssetOut: types.U32(shape.AssetOut),
			Amount:   u128(shape.AmountIn),
			Limit:    u128(shape.MinAmountOut),
			Route:    []Trade{},
		},
	}, nil
}

func u128(v *big.Int) types.U128 {
	if v == nil {
		return types.NewU128(*big.NewInt(0))
	}
	return types.NewU128(*v)
}
