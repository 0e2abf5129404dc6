package chain

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
)

func testOwner() []byte {
	owner := make([]byte, 32)
	for i := range owner {
		owner[i] = byte(i + 1)
	}
	return owner
}

func TestNewScheduleEncoding(t *testing.T) {
	shape := ScheduleShape{
		Period:       1,
		TotalAmount:  big.NewInt(1000),
		AssetIn:      5,
		AssetOut:     2,
		AmountIn:     big.NewInt(100),
		MinAmountOut: big.NewInt(0),
	}

	schedule, err := NewSchedule(testOwner(), shape)
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}

	encoded, err := codec.Encode(schedule)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// owner(32) period(4) total(16) 3x None(3) variant(1) in(4) out(4) amount(16) limit(16) route(1)
	if len(encoded) != 97 {
		t.Fatalf("expected 97 bytes, got %d: %x", len(encoded), encoded)
	}

	if !bytes.Equal(encoded[:32], testOwner()) {
		t.Errorf("owner mismatch: %x", encoded[:32])
	}
	if !bytes.Equal(encoded[32:36], []byte{1, 0, 0, 0}) {
		t.Errorf("period mismatch: %x", encoded[32:36])
	}
	total := make([]byte, 16)
	total[0], total[1] = 0xe8, 0x03
	if !bytes.Equal(encoded[36:52], total) {
		t.Errorf("total amount mismatch: %x", encoded[36:52])
	}
	if !bytes.Equal(encoded[52:55], []byte{0, 0, 0}) {
		t.Errorf("optional fields should encode as None: %x", encoded[52:55])
	}

	order := encoded[55:]
	if order[0] != orderSell {
		t.Errorf("expected Sell variant, got %d", order[0])
	}
	if !bytes.Equal(order[1:5], []byte{5, 0, 0, 0}) {
		t.Errorf("asset in mismatch: %x", order[1:5])
	}
	if !bytes.Equal(order[5:9], []byte{2, 0, 0, 0}) {
		t.Errorf("asset out mismatch: %x", order[5:9])
	}
	if order[9] != 100 {
		t.Errorf("amount in mismatch: %x", order[9:25])
	}
	if order[len(order)-1] != 0 {
		t.Errorf("empty route should encode as compact zero, got %x", order[len(order)-1])
	}
}

func TestNewScheduleRejectsShortOwner(t *testing.T) {
	_, err := NewSchedule([]byte{1, 2, 3}, ScheduleShape{})
	if err == nil {
		t.Fatal("expected error for short owner key")
	}
	if !strings.Contains(err.Error(), "32 bytes") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewScheduleNilAmounts(t *testing.T) {
	schedule, err := NewSchedule(testOwner(), ScheduleShape{Period: 3})
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}
	if schedule.TotalAmount.Int == nil || schedule.TotalAmount.Sign() != 0 {
		t.Errorf("nil total amount should become zero, got %v", schedule.TotalAmount.Int)
	}
	if _, err := codec.Encode(schedule); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestOrderBuyVariant(t *testing.T) {
	order := Order{
		Buy:      true,
		AssetIn:  1,
		AssetOut: 0,
		Amount:   types.NewU128(*big.NewInt(7)),
		Limit:    types.NewU128(*big.NewInt(9)),
	}
	encoded, err := codec.Encode(order)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if encoded[0] != orderBuy {
		t.Errorf("expected Buy variant, got %d", encoded[0])
	}
	if len(encoded) != 1+4+4+16+16+1 {
		t.Errorf("unexpected length %d", len(encoded))
	}
}

func TestPoolTypeEncoding(t *testing.T) {
	tests := []struct {
		name string
		pool PoolType
		want []byte
	}{
		{"xyk", PoolType{Kind: PoolXYK}, []byte{0}},
		{"omnipool", PoolType{Kind: PoolOmnipool}, []byte{3}},
		{"stableswap carries pool id", PoolType{Kind: PoolStableswap, StableswapPool: 100}, []byte{2, 100, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.Encode(tt.pool)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got %x, want %x", got, tt.want)
			}
		})
	}
}

func TestBlockWeightTotal(t *testing.T) {
	w := BlockWeight{
		Normal:      Weight{RefTime: 10, ProofSize: 1},
		Operational: Weight{RefTime: 20, ProofSize: 2},
		Mandatory:   Weight{RefTime: 30, ProofSize: 3},
	}
	total := w.Total()
	if total.RefTime != 60 || total.ProofSize != 6 {
		t.Errorf("unexpected total %+v", total)
	}
}
