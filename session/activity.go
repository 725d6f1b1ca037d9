// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sync"
	"time"

	"github.com/wsh-dev/wsh/lib/clock"
)

// DefaultIdleThreshold is the gap since the previous byte that counts
// as "output resumed after a quiet period" and bumps the generation
// counter.
const DefaultIdleThreshold = 500 * time.Millisecond

// ActivityTracker holds the last-activity timestamp and a generation
// counter bumped each time output resumes after a quiet period, and
// answers quiescence queries against both. Grounded on
// observe/control.go's debounce-with-generation-counter pattern,
// retargeted from "tmux layout settled" to "PTY output settled": where
// the teacher reschedules one shared AfterFunc timer per debounce
// cycle, ActivityTracker instead lets each waiter recompute its own
// remaining wait against a shared activity snapshot, since callers
// here request independent timeouts rather than one fixed interval.
type ActivityTracker struct {
	clk           clock.Clock
	idleThreshold time.Duration

	mu           sync.Mutex
	lastActivity time.Time
	generation   uint64
	activitySeq  uint64
	wake         chan struct{}
}

// ActivityTrackerOption configures an ActivityTracker at construction
// time, the same functional-options shape as
// observe/control.go's ControlClientOption.
type ActivityTrackerOption func(*ActivityTracker)

// WithClock sets the clock used for quiescence waits. The default is
// clock.Real(); tests inject clock.Fake().
func WithClock(c clock.Clock) ActivityTrackerOption {
	return func(t *ActivityTracker) { t.clk = c }
}

// WithIdleThreshold overrides the gap that counts as "resumed after a
// quiet period" for generation bumps. Per session, not just a fixed
// default (SPEC_FULL.md §4).
func WithIdleThreshold(d time.Duration) ActivityTrackerOption {
	return func(t *ActivityTracker) { t.idleThreshold = d }
}

// NewActivityTracker creates a tracker whose clock considers "now" the
// time of the last activity.
func NewActivityTracker(opts ...ActivityTrackerOption) *ActivityTracker {
	t := &ActivityTracker{
		clk:           clock.Real(),
		idleThreshold: DefaultIdleThreshold,
		wake:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.lastActivity = t.clk.Now()
	return t
}

// Observe records activity now. If the gap since the previous activity
// was at least the idle threshold, the generation counter bumps.
func (t *ActivityTracker) Observe() {
	t.mu.Lock()
	now := t.clk.Now()
	if now.Sub(t.lastActivity) >= t.idleThreshold {
		t.generation++
	}
	t.lastActivity = now
	t.activitySeq++
	old := t.wake
	t.wake = make(chan struct{})
	t.mu.Unlock()

	close(old)
}

// Generation returns the current generation counter.
func (t *ActivityTracker) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}

// snapshot captures a consistent view of the tracker's state and its
// current wake channel under a single lock, so a caller can safely
// select on the wake channel after releasing the lock without missing
// an intervening Observe.
type activitySnapshot struct {
	now      time.Time
	idleFor  time.Duration
	gen      uint64
	seq      uint64
	wakeChan chan struct{}
}

func (t *ActivityTracker) snapshot() activitySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clk.Now()
	return activitySnapshot{
		now:      now,
		idleFor:  now.Sub(t.lastActivity),
		gen:      t.generation,
		seq:      t.activitySeq,
		wakeChan: t.wake,
	}
}

// WaitForQuiescence blocks until now - last_activity >= timeout, and
// (if lastGeneration is non-nil) the generation has advanced past
// *lastGeneration, and (if fresh is true) at least one Observe call
// has happened since this call started. Returns the generation at the
// moment quiescence was declared. Returns ctx.Err() if ctx is done,
// or context.DeadlineExceeded if maxWait elapses first — the hard
// deadline spec.md §4.4 requires so a caller can never wait forever.
func (t *ActivityTracker) WaitForQuiescence(ctx context.Context, timeout time.Duration, lastGeneration *uint64, fresh bool, maxWait time.Duration) (uint64, error) {
	start := t.snapshot()
	deadline := start.now.Add(maxWait)

	for {
		snap := t.snapshot()

		genOK := lastGeneration == nil || snap.gen > *lastGeneration
		freshOK := !fresh || snap.seq > start.seq
		if snap.idleFor >= timeout && genOK && freshOK {
			return snap.gen, nil
		}

		remaining := deadline.Sub(snap.now)
		if remaining <= 0 {
			return 0, context.DeadlineExceeded
		}

		wait := timeout - snap.idleFor
		if wait < 0 {
			wait = 0
		}
		if wait > remaining {
			wait = remaining
		}

		select {
		case <-snap.wakeChan:
		case <-t.clk.After(wait):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}
