// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wsh-dev/wsh/vt"
)

// StreamingChannelCapacity is the bounded capacity of each streaming
// client's broadcast channel, per spec.md §3 ("bounded capacity, ~64
// messages").
const StreamingChannelCapacity = 64

// StreamMessage is delivered to a streaming-client subscriber. Exactly
// one of Data or Lagged is set: Lagged carries a count of dropped
// messages, signaled out-of-band through the same channel a streaming
// client already reads rather than a side channel (spec.md §4.2,
// recorded as an Open Question decision in DESIGN.md).
type StreamMessage struct {
	Data   []byte
	Lagged int
}

// Broker fans a single byte stream out to many consumers: one
// lossless channel for the parser task, and a set of lossy
// per-subscriber channels for streaming clients. Grounded on
// observe/ringbuffer.go's one-writer-many-readers discipline,
// generalized from a shared ring buffer to per-subscriber channels.
type Broker struct {
	logger *slog.Logger

	parser           *vt.Task
	parserSubscribed atomic.Bool

	mu   sync.RWMutex
	subs map[*streamSub]struct{}

	dropped atomic.Uint64
}

type streamSub struct {
	mu      sync.Mutex
	ch      chan StreamMessage
	lagging int
}

// NewBroker creates a Broker with no subscribers and no parser
// attached yet.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		logger: logger,
		subs:   make(map[*streamSub]struct{}),
	}
}

// SubscribeParser attaches the session's parser task as the broker's
// lossless consumer. Callable exactly once; subsequent calls return
// ErrParserAlreadySubscribed.
func (b *Broker) SubscribeParser(task *vt.Task) error {
	if !b.parserSubscribed.CompareAndSwap(false, true) {
		return ErrParserAlreadySubscribed
	}
	b.parser = task
	return nil
}

// SubscribeStreaming hands out a fresh broadcast subscription. The
// returned unsubscribe function must be called exactly once when the
// caller is done, typically on client disconnect.
func (b *Broker) SubscribeStreaming() (<-chan StreamMessage, func()) {
	sub := &streamSub{ch: make(chan StreamMessage, StreamingChannelCapacity)}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, unsubscribe
}

// Publish delivers a byte chunk to the parser (lossless, try_send
// semantics: drop and log if the parser is behind) and then to every
// streaming subscriber (lossy, best-effort).
func (b *Broker) Publish(data []byte) {
	if b.parser != nil {
		if !b.parser.TryFeed(data) {
			b.dropped.Add(1)
			b.logger.Warn("parser channel full, dropping chunk", "bytes", len(data))
		}
	}

	b.mu.RLock()
	subs := make([]*streamSub, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.deliver(data)
	}
}

// deliver attempts to enqueue data on the subscriber's channel. If the
// channel is full the message is dropped and a lag counter increments;
// the lag count is flushed as a Lagged message the next time there is
// room, ahead of the data that triggered the successful send.
func (s *streamSub) deliver(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lagging > 0 {
		select {
		case s.ch <- StreamMessage{Lagged: s.lagging}:
			s.lagging = 0
		default:
			s.lagging++
			return
		}
	}

	select {
	case s.ch <- StreamMessage{Data: data}:
	default:
		s.lagging++
	}
}

// DroppedCount returns the number of byte chunks dropped because the
// parser channel was full — a supplemented metric (SPEC_FULL.md §4)
// surfaced in GET /screen's response metadata so an operator can see
// a session has been downgraded without grepping logs.
func (b *Broker) DroppedCount() uint64 {
	return b.dropped.Load()
}
