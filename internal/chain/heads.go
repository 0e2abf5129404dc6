package chain

import (
	"context"
	"fmt"
	"sync"

	rpcchain "github.com/centrifuge/go-substrate-rpc-client/v4/rpc/chain"
)

// headSubscription adapts chain_subscribeNewHeads to block numbers.
type headSubscription struct {
	sub     *rpcchain.NewHeadsSubscription
	numbers chan uint64
	errs    chan error
	done    chan struct{}
	once    sync.Once
}

// SubscribeHeads implements Client.
func (c *SubstrateClient) SubscribeHeads(ctx context.Context) (HeadSubscription, error) {
	sub, err := await(ctx, c.api.RPC.Chain.SubscribeNewHeads)
	if err != nil {
		return nil, fmt.Errorf("chain_subscribeNewHeads: %w", err)
	}

	hs := &headSubscription{
		sub:     sub,
		numbers: make(chan uint64, 16),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	go hs.forward(ctx)
	return hs, nil
}

func (h *headSubscription) forward(ctx context.Context) {
	defer close(h.numbers)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case err, ok := <-h.sub.Err():
			if ok && err != nil {
				h.errs <- err
			}
			return
		case header, ok := <-h.sub.Chan():
			if !ok {
				return
			}
			select {
			case h.numbers <- uint64(header.Number):
			case <-h.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *headSubscription) Numbers() <-chan uint64 { return h.numbers }

func (h *headSubscription) Err() <-chan error { return h.errs }

func (h *headSubscription) Unsubscribe() {
	h.once.Do(func() {
		close(h.done)
		h.sub.Unsubscribe()
	})
}
