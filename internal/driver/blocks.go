package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gateway-fm/dcaload/internal/chain"
)

// ErrSubscriptionClosed is returned when the node ends a head subscription.
var ErrSubscriptionClosed = errors.New("head subscription closed")

// BlockSource yields the block numbers the driver observes.
type BlockSource interface {
	// Next blocks until a block number is available.
	Next(ctx context.Context) (uint64, error)
	// Close releases the source.
	Close()
}

// Poller reads the latest header number on every call.
// With a zero interval it polls as fast as the node answers.
type Poller struct {
	client   chain.Client
	interval time.Duration
	polled   bool
}

// NewPoller creates a polling block source.
func NewPoller(client chain.Client, interval time.Duration) *Poller {
	return &Poller{client: client, interval: interval}
}

// Next implements BlockSource.
func (p *Poller) Next(ctx context.Context) (uint64, error) {
	if p.polled && p.interval > 0 {
		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
	p.polled = true
	return p.client.BlockNumber(ctx)
}

// Close implements BlockSource.
func (p *Poller) Close() {}

// HeadFollower yields the numbers of new heads pushed by the node.
type HeadFollower struct {
	sub chain.HeadSubscription
}

// FollowHeads subscribes to new heads.
func FollowHeads(ctx context.Context, client chain.Client) (*HeadFollower, error) {
	sub, err := client.SubscribeHeads(ctx)
	if err != nil {
		return nil, err
	}
	return &HeadFollower{sub: sub}, nil
}

// Next implements BlockSource.
func (f *HeadFollower) Next(ctx context.Context) (uint64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case err := <-f.sub.Err():
		return 0, fmt.Errorf("head subscription: %w", err)
	case n, ok := <-f.sub.Numbers():
		if !ok {
			return 0, ErrSubscriptionClosed
		}
		return n, nil
	}
}

// Close implements BlockSource.
func (f *HeadFollower) Close() {
	f.sub.Unsubscribe()
}
