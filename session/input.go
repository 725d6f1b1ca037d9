// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"sync"
)

// InputMode is one of passthrough (keystrokes forwarded to the PTY
// and also broadcast to subscribers) or capture (keystrokes go only
// to subscribers; the PTY receives nothing), per spec.md §3.
type InputMode string

const (
	ModePassthrough InputMode = "passthrough"
	ModeCapture     InputMode = "capture"
)

// InputEvent is broadcast to input subscribers on every SendInput
// call, carrying both the raw bytes and, when recognized, the
// decoded key. A subscriber that fell behind receives an event with
// only Lagged set instead of the events it missed.
type InputEvent struct {
	Mode      InputMode
	RawBytes  []byte
	ParsedKey *ParsedKey
	Lagged    int
}

// InputWriter is the subset of PTY this package depends on: enqueuing
// bytes for the writer task.
type InputWriter interface {
	Enqueue(ctx context.Context, data []byte) error
}

// InputArbiter gates keystrokes between passthrough and capture mode
// and records which subscriber, if any, holds capture focus. Grounded
// on observe/relay.go's readOnly flag (a cruder two-state version of
// the same idea) generalized to a switchable mode, and on
// lib/servicetoken/blacklist.go's small RWMutex-guarded state-machine
// style.
type InputArbiter struct {
	writer InputWriter

	mu     sync.RWMutex
	mode   InputMode
	holder string

	subMu sync.RWMutex
	subs  map[*inputSub]struct{}
}

type inputSub struct {
	mu      sync.Mutex
	ch      chan InputEvent
	lagging int
}

// deliver attempts to enqueue e on the subscriber's channel, flushing
// a pending lag count as an out-of-band InputEvent ahead of the event
// that triggered the successful send once there's room. Mirrors
// session.streamSub.deliver's discipline for the raw byte stream.
func (s *inputSub) deliver(e InputEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lagging > 0 {
		select {
		case s.ch <- InputEvent{Lagged: s.lagging}:
			s.lagging = 0
		default:
			s.lagging++
			return
		}
	}

	select {
	case s.ch <- e:
	default:
		s.lagging++
	}
}

// NewInputArbiter creates an arbiter in passthrough mode, writing
// forwarded keystrokes through writer.
func NewInputArbiter(writer InputWriter) *InputArbiter {
	return &InputArbiter{
		writer: writer,
		mode:   ModePassthrough,
		subs:   make(map[*inputSub]struct{}),
	}
}

// Mode returns the current mode and, if in capture mode, the holder's
// ID.
func (a *InputArbiter) Mode() (InputMode, string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mode, a.holder
}

// Capture switches the arbiter to capture mode held by holderID. If
// capture is already held by a different holder, returns
// ErrFocusTaken. Calling Capture again with the same holderID is a
// no-op.
func (a *InputArbiter) Capture(holderID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode == ModeCapture {
		if a.holder == holderID {
			return nil
		}
		return ErrFocusTaken
	}
	a.mode = ModeCapture
	a.holder = holderID
	return nil
}

// Release returns the arbiter to passthrough mode if holderID
// currently holds capture. A release from a non-holder is a no-op.
func (a *InputArbiter) Release(holderID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode == ModeCapture && a.holder == holderID {
		a.mode = ModePassthrough
		a.holder = ""
	}
}

// HolderDisconnected auto-releases capture when its holder
// disconnects, per spec.md §3's "when that subscriber disconnects,
// capture is auto-released."
func (a *InputArbiter) HolderDisconnected(holderID string) {
	a.Release(holderID)
}

// SendInput forwards data to the PTY when in passthrough mode (capture
// mode drops it from the PTY's perspective), and always broadcasts an
// InputEvent to subscribers so capture-mode consumers can act on it.
func (a *InputArbiter) SendInput(ctx context.Context, data []byte) error {
	mode, _ := a.Mode()
	if mode == ModePassthrough {
		if err := a.writer.Enqueue(ctx, data); err != nil {
			return fmt.Errorf("send input: %w", err)
		}
	}
	a.broadcast(InputEvent{Mode: mode, RawBytes: data, ParsedKey: decodeKey(data)})
	return nil
}

// Subscribe registers a new input-event subscriber. The returned
// unsubscribe function must be called exactly once.
func (a *InputArbiter) Subscribe() (<-chan InputEvent, func()) {
	sub := &inputSub{ch: make(chan InputEvent, EventBufferSize)}

	a.subMu.Lock()
	a.subs[sub] = struct{}{}
	a.subMu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, sub)
			a.subMu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, unsubscribe
}

func (a *InputArbiter) broadcast(e InputEvent) {
	a.subMu.RLock()
	defer a.subMu.RUnlock()
	for s := range a.subs {
		s.deliver(e)
	}
}

// EventBufferSize is the capacity of each input-event subscriber
// channel.
const EventBufferSize = 64
