// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

// Coalescer batches bursts of mutation notifications into a single
// pending render, per spec.md §4.6/§4.7: "Rendering is triggered by a
// coalescing notifier: any mutation posts to visual_update_tx; a
// single rendering task drains and redraws, coalescing bursts."
//
// Notify is non-blocking and idempotent while a notification is
// already pending: the underlying channel has capacity one, so any
// number of calls between two receives on C collapse into a single
// wakeup.
type Coalescer struct {
	ch chan struct{}
}

// NewCoalescer creates a coalescer with no pending notification.
func NewCoalescer() *Coalescer {
	return &Coalescer{ch: make(chan struct{}, 1)}
}

// Notify schedules a render. Safe to call from any goroutine.
func (c *Coalescer) Notify() {
	select {
	case c.ch <- struct{}{}:
	default:
	}
}

// C returns the channel a render loop selects on. Receiving from it
// clears the pending notification; any Notify calls that arrived
// before the receive are collapsed into that one wakeup, and any that
// arrive after are captured by the next receive.
func (c *Coalescer) C() <-chan struct{} {
	return c.ch
}
