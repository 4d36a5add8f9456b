package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testInterval = 5 * time.Millisecond

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPollHandle_TicksWithIncreasingSequence(t *testing.T) {
	var mu sync.Mutex
	var seqs []uint64

	h := StartPoll(context.Background(), 1, testInterval, func(ctx context.Context, seq uint64) {
		mu.Lock()
		seqs = append(seqs, seq)
		mu.Unlock()
	})
	defer h.Stop()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seqs) >= 3
	})

	if h.JobID() != 1 {
		t.Errorf("unexpected job id %d", h.JobID())
	}

	mu.Lock()
	defer mu.Unlock()
	seen := make(map[uint64]bool)
	for _, s := range seqs {
		if s == 0 || seen[s] {
			t.Errorf("sequence %d is zero or duplicated in %v", s, seqs)
		}
		seen[s] = true
	}
}

func TestPollHandle_NoTicksAfterStop(t *testing.T) {
	var ticks atomic.Int64
	h := StartPoll(context.Background(), 1, testInterval, func(ctx context.Context, seq uint64) {
		ticks.Add(1)
	})

	waitFor(t, func() bool { return ticks.Load() >= 2 })
	h.Stop()
	<-h.Done()

	after := ticks.Load()
	time.Sleep(10 * testInterval)
	if got := ticks.Load(); got != after {
		t.Errorf("ticks continued after stop: %d -> %d", after, got)
	}
	if !h.Stopped() {
		t.Error("handle should report stopped")
	}
}

func TestPollHandle_StopIsIdempotent(t *testing.T) {
	h := StartPoll(context.Background(), 1, time.Hour, func(ctx context.Context, seq uint64) {})
	h.Stop()
	h.Stop()
	<-h.Done()

	var nilHandle *PollHandle
	nilHandle.Stop()
	if !nilHandle.Stopped() {
		t.Error("nil handle should report stopped")
	}
}

func TestPollHandle_TicksAreNotSerialized(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int64

	h := StartPoll(context.Background(), 1, testInterval, func(ctx context.Context, seq uint64) {
		started.Add(1)
		if seq == 1 {
			// First tick hangs until released; later ticks must still run.
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
	})
	defer h.Stop()

	waitFor(t, func() bool { return started.Load() >= 3 })
	close(release)
}

func TestPollHandle_StopCancelsInFlightTick(t *testing.T) {
	canceled := make(chan struct{})
	h := StartPoll(context.Background(), 1, testInterval, func(ctx context.Context, seq uint64) {
		if seq != 1 {
			return
		}
		<-ctx.Done()
		close(canceled)
	})

	waitFor(t, func() bool { return h.Ticks() >= 1 })
	h.Stop()

	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight tick was not canceled")
	}
}

func TestPollHandle_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := StartPoll(ctx, 1, testInterval, func(ctx context.Context, seq uint64) {})
	cancel()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit on parent cancel")
	}
	if !h.Stopped() {
		t.Error("handle should report stopped after parent cancel")
	}
}
