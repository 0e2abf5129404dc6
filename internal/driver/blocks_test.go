package driver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gateway-fm/dcaload/internal/chain"
)

// countingClient counts BlockNumber calls and returns them as block numbers.
type countingClient struct {
	*mockClient
	calls int
	sub   *fakeHeads
}

func (c *countingClient) BlockNumber(ctx context.Context) (uint64, error) {
	c.calls++
	return uint64(c.calls), nil
}

func (c *countingClient) SubscribeHeads(ctx context.Context) (chain.HeadSubscription, error) {
	return c.sub, nil
}

type fakeHeads struct {
	numbers chan uint64
	errs    chan error
	once    sync.Once
	closed  bool
}

func newFakeHeads() *fakeHeads {
	return &fakeHeads{numbers: make(chan uint64, 8), errs: make(chan error, 1)}
}

func (f *fakeHeads) Numbers() <-chan uint64 { return f.numbers }
func (f *fakeHeads) Err() <-chan error      { return f.errs }
func (f *fakeHeads) Unsubscribe()           { f.once.Do(func() { f.closed = true }) }

func TestPollerPollsEveryCall(t *testing.T) {
	client := &countingClient{mockClient: newMockClient(0)}
	p := NewPoller(client, 0)
	for want := uint64(1); want <= 3; want++ {
		got, err := p.Next(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("Next = %d, want %d", got, want)
		}
	}
}

func TestPollerIntervalHonorsContext(t *testing.T) {
	client := &countingClient{mockClient: newMockClient(0)}
	p := NewPoller(client, time.Hour)

	if _, err := p.Next(context.Background()); err != nil {
		t.Fatalf("first poll should not wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error while waiting for the interval, got %v", err)
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1", client.calls)
	}
}

func TestHeadFollower(t *testing.T) {
	heads := newFakeHeads()
	client := &countingClient{mockClient: newMockClient(0), sub: heads}
	f, err := FollowHeads(context.Background(), client)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	heads.numbers <- 7
	heads.numbers <- 8
	for _, want := range []uint64{7, 8} {
		got, err := f.Next(context.Background())
		if err != nil || got != want {
			t.Errorf("Next = %d, %v; want %d", got, err, want)
		}
	}
	if client.calls != 0 {
		t.Error("head follower should not poll")
	}

	heads.errs <- errors.New("ws closed")
	if _, err := f.Next(context.Background()); err == nil {
		t.Error("expected subscription error")
	}

	close(heads.numbers)
	if _, err := f.Next(context.Background()); !errors.Is(err, ErrSubscriptionClosed) {
		t.Errorf("expected ErrSubscriptionClosed, got %v", err)
	}

	f.Close()
	if !heads.closed {
		t.Error("Close should unsubscribe")
	}
}

func TestHeadFollowerDrivesRun(t *testing.T) {
	heads := newFakeHeads()
	client := &countingClient{mockClient: newMockClient(0), sub: heads}
	for _, n := range []uint64{1, 2, 3} {
		heads.numbers <- n
	}

	src, err := FollowHeads(context.Background(), client)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := newTestDriver(t, client.mockClient, src, nil)
	// The start block comes from the mock's BlockNumber, which is 0.
	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Bursts != 3 {
		t.Errorf("bursts = %d, want 3", report.Bursts)
	}
	if !heads.closed {
		t.Error("run should close the head subscription")
	}
}
