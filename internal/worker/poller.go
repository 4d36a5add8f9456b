package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// TickFunc handles one poll tick. seq increases by one per tick, starting at 1.
// The context is canceled when the handle stops.
type TickFunc func(ctx context.Context, seq uint64)

// PollHandle is a cancelable recurring task bound to a single job.
// Ticks are not serialized: each one runs in its own goroutine, so a slow
// tick never delays the next.
type PollHandle struct {
	jobID    int64
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// mu orders Stop against tick dispatch
	mu      sync.Mutex
	stopped bool
	seq     atomic.Uint64
}

// StartPoll starts ticking every interval until Stop is called or parent is
// canceled. The first tick fires one interval after the start.
func StartPoll(parent context.Context, jobID int64, interval time.Duration, fn TickFunc) *PollHandle {
	ctx, cancel := context.WithCancel(parent)
	h := &PollHandle{
		jobID:    jobID,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go h.run(fn)
	return h
}

// JobID returns the job the handle polls for
func (h *PollHandle) JobID() int64 {
	return h.jobID
}

// Ticks returns the number of ticks fired so far
func (h *PollHandle) Ticks() uint64 {
	return h.seq.Load()
}

// Stop cancels the handle. It is safe to call on a nil or already stopped
// handle. No tick fires after Stop returns.
func (h *PollHandle) Stop() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.cancel()
}

// Stopped reports whether Stop was called or the parent context ended
func (h *PollHandle) Stopped() bool {
	if h == nil {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped || h.ctx.Err() != nil
}

// Done is closed once the tick loop has exited
func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

func (h *PollHandle) run(fn TickFunc) {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			// Stop may race with a ready tick; the flag wins.
			h.mu.Lock()
			if h.stopped {
				h.mu.Unlock()
				return
			}
			seq := h.seq.Add(1)
			go fn(h.ctx, seq)
			h.mu.Unlock()
		}
	}
}
