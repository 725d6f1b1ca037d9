// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vt

import (
	"context"
	"fmt"
	"sync"
)

// EventBufferSize is the default capacity of the event broadcast each
// subscriber receives, per spec.md §4.3.
const EventBufferSize = 256

// ByteChannelCapacity is the default capacity of the lossless byte
// channel feeding the parser task, per spec.md §3 (Broker).
const ByteChannelCapacity = 4096

// Task owns a [State] exclusively on a single goroutine. All mutation
// and querying happens inside Task's run loop; nothing outside Task
// ever touches the State directly, matching the "parser state is not
// shared" locking discipline in spec.md §5.
type Task struct {
	state *State

	bytes   chan []byte
	queries chan query

	mu          sync.Mutex
	subscribers map[*eventSubscriber]struct{}
	seq         uint64

	done      chan struct{}
	closeOnce sync.Once

	// unavailable is set once the task has stopped (ctx cancelled or
	// the byte channel was closed). Queries made afterward return
	// ErrParserUnavailable immediately instead of blocking forever.
	unavailable bool

	eventBufferSize int
}

type eventSubscriber struct {
	mu      sync.Mutex
	ch      chan Event
	lagging int
}

// deliver attempts to enqueue e on the subscriber's channel. If the
// channel is full the event is dropped and a lag counter increments;
// the lag count is flushed as an EventLagged notification the next
// time there is room, ahead of the event that triggered the
// successful send. Mirrors session.streamSub.deliver's discipline for
// the raw byte stream.
func (s *eventSubscriber) deliver(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lagging > 0 {
		select {
		case s.ch <- Event{Kind: EventLagged, Lagged: &LaggedEvent{Count: s.lagging}}:
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

// TaskOption configures a Task at construction time.
type TaskOption func(*Task)

// WithEventBufferSize overrides the per-subscriber event channel
// capacity. Tests that want to observe lag use a small value.
func WithEventBufferSize(n int) TaskOption {
	return func(t *Task) { t.eventBufferSize = n }
}

// eventBufferSize is read once by Subscribe; stored on Task because
// TaskOption needs a field to close over.
func (t *Task) eventBufferSizeOrDefault() int {
	if t.eventBufferSize > 0 {
		return t.eventBufferSize
	}
	return EventBufferSize
}

// NewTask creates a parser task around a freshly constructed [State]
// sized cols x rows with the given scrollback capacity. It does not
// start the run loop; call Start with a context to begin
// feeding/serving.
func NewTask(cols, rows, scrollbackCapacity int, opts ...TaskOption) *Task {
	t := &Task{
		state:       NewState(cols, rows, scrollbackCapacity),
		bytes:       make(chan []byte, ByteChannelCapacity),
		queries:     make(chan query, 16),
		subscribers: make(map[*eventSubscriber]struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the task's run loop. ctx governs the task's lifetime:
// cancelling it stops Feed/queries from blocking forever and marks the
// task unavailable. Start must be called exactly once.
func (t *Task) Start(ctx context.Context) {
	go t.run(ctx)
}

// run is the single-threaded cooperative loop: select between a byte
// arrival and a query arrival, per spec.md §4.3.
func (t *Task) run(ctx context.Context) {
	defer t.closeOnce.Do(func() { close(t.done) })
	defer t.markUnavailable()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-t.bytes:
			if !ok {
				return
			}
			if err := t.feed(data); err != nil {
				return
			}
		case q := <-t.queries:
			// Answer from state that includes every chunk queued
			// before the query arrived.
			for drained := false; !drained; {
				select {
				case data, ok := <-t.bytes:
					if !ok {
						return
					}
					if err := t.feed(data); err != nil {
						return
					}
				default:
					drained = true
				}
			}
			t.answer(q)
		}
	}
}

func (t *Task) markUnavailable() {
	t.mu.Lock()
	t.unavailable = true
	subs := make([]*eventSubscriber, 0, len(t.subscribers))
	for s := range t.subscribers {
		subs = append(subs, s)
	}
	t.subscribers = make(map[*eventSubscriber]struct{})
	t.mu.Unlock()
	for _, s := range subs {
		close(s.ch)
	}
}

// Feed enqueues a byte chunk for the parser task to consume. Feed is
// the lossless path described in spec.md §4.2/§4.3: the caller (the
// Broker) must try_send semantics at its layer; Feed itself blocks
// until there is room, matching a channel send under the task's own
// goroutine discipline. Returns false if the task has already stopped.
func (t *Task) Feed(data []byte) bool {
	t.mu.Lock()
	unavailable := t.unavailable
	t.mu.Unlock()
	if unavailable {
		return false
	}
	select {
	case t.bytes <- data:
		return true
	case <-t.done:
		return false
	}
}

// TryFeed is the non-blocking counterpart used by the Broker's
// try_send semantics: if the channel is full, the byte chunk is
// dropped and false is returned so the caller can log and continue.
func (t *Task) TryFeed(data []byte) bool {
	select {
	case t.bytes <- data:
		return true
	default:
		return false
	}
}

// feed hands data to the VT decoder and publishes the resulting
// events. A panic inside State.Feed (malformed or hostile control
// sequences reaching the hand-rolled CSI handling) is session-fatal,
// not process-fatal: it is recovered here and reported as an error so
// run can stop the task and mark it unavailable instead of crashing
// every other session sharing the daemon. Grounded on
// lib/artifactstore/cache_device.go's ReadAt, which recovers a SIGBUS
// page fault into an error the same way.
func (t *Task) feed(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vt: parser task panic: %v", r)
		}
	}()
	changes := t.state.Feed(data)
	t.emitChanges(changes, false)
	return nil
}

// emitChanges converts a Changes value into the event sequence
// spec.md §4.3 describes: one line event per changed row, then a
// cursor event if it moved, then mode/reset events as applicable.
// resized is true when called from a Resize query, which always
// reports every row as changed and always carries a Reset.
func (t *Task) emitChanges(c Changes, resized bool) {
	screen := t.state.Screen(true)
	for _, row := range c.ChangedRows {
		if row < 0 || row >= len(screen.Lines) {
			continue
		}
		t.publish(Event{
			Kind: EventLine,
			Line: &LineEvent{
				Index:      screen.FirstLineIndex + uint64(row),
				TotalLines: screen.TotalLines,
				Line:       screen.Lines[row],
			},
		})
	}
	if c.CursorMoved {
		cur := t.state.Cursor()
		t.publish(Event{
			Kind:   EventCursor,
			Cursor: &CursorEvent{Row: cur.Row, Col: cur.Col, Visible: cur.Visible},
		})
	}
	if c.Reset != nil {
		t.publish(Event{Kind: EventReset, Reset: c.Reset})
		if c.Reset.Reason == ResetAlternateScreenEnter || c.Reset.Reason == ResetAlternateScreenExit {
			t.publish(Event{Kind: EventMode, Mode: &ModeEvent{AlternateScreen: screen.AlternateScreen}})
		}
	}
}

func (t *Task) publish(e Event) {
	t.mu.Lock()
	t.seq++
	e.Seq = t.seq
	subs := make([]*eventSubscriber, 0, len(t.subscribers))
	for s := range t.subscribers {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	for _, s := range subs {
		s.deliver(e)
	}
}

// Subscribe returns a channel of events. The channel is closed when
// the task stops (parser_unavailable). Callers that fall behind may
// miss events; a get_screen/get_scrollback query re-syncs state.
func (t *Task) Subscribe() <-chan Event {
	sub := &eventSubscriber{ch: make(chan Event, t.eventBufferSizeOrDefault())}
	t.mu.Lock()
	if t.unavailable {
		t.mu.Unlock()
		close(sub.ch)
		return sub.ch
	}
	t.subscribers[sub] = struct{}{}
	t.mu.Unlock()
	return sub.ch
}

// Unsubscribe removes a previously returned channel from the
// broadcast set. Safe to call more than once or after the task has
// already stopped.
func (t *Task) Unsubscribe(ch <-chan Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for s := range t.subscribers {
		if s.ch == ch {
			delete(t.subscribers, s)
			return
		}
	}
}

func (t *Task) ask(q query, done <-chan struct{}) error {
	select {
	case t.queries <- q:
		return nil
	case <-t.done:
		return ErrParserUnavailable
	case <-done:
		return context.Canceled
	}
}

// Screen answers a get_screen query synchronously from VT state.
func (t *Task) Screen(ctx context.Context, styled bool) (ScreenResult, error) {
	reply := make(chan screenReply, 1)
	q := query{screen: &screenQuery{styled: styled, reply: reply}}
	if err := t.ask(q, ctx.Done()); err != nil {
		return ScreenResult{}, err
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-t.done:
		return ScreenResult{}, ErrParserUnavailable
	case <-ctx.Done():
		return ScreenResult{}, ctx.Err()
	}
}

// Scrollback answers a get_scrollback query.
func (t *Task) Scrollback(ctx context.Context, offset uint64, limit int, styled bool) (ScrollbackResult, error) {
	reply := make(chan scrollbackReply, 1)
	q := query{scrollback: &scrollbackQuery{offset: offset, limit: limit, styled: styled, reply: reply}}
	if err := t.ask(q, ctx.Done()); err != nil {
		return ScrollbackResult{}, err
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-t.done:
		return ScrollbackResult{}, ErrParserUnavailable
	case <-ctx.Done():
		return ScrollbackResult{}, ctx.Err()
	}
}

// Cursor answers a get_cursor query.
func (t *Task) Cursor(ctx context.Context) (Cursor, error) {
	reply := make(chan cursorReply, 1)
	q := query{cursor: &cursorQuery{reply: reply}}
	if err := t.ask(q, ctx.Done()); err != nil {
		return Cursor{}, err
	}
	select {
	case r := <-reply:
		return r.cursor, r.err
	case <-t.done:
		return Cursor{}, ErrParserUnavailable
	case <-ctx.Done():
		return Cursor{}, ctx.Err()
	}
}

// Resize applies a resize query. Per spec.md §4.3: apply to VT, bump
// epoch, emit reset(reason=resize).
func (t *Task) Resize(ctx context.Context, cols, rows int) error {
	reply := make(chan resizeReply, 1)
	q := query{resize: &resizeQuery{cols: cols, rows: rows, reply: reply}}
	if err := t.ask(q, ctx.Done()); err != nil {
		return err
	}
	select {
	case r := <-reply:
		return r.err
	case <-t.done:
		return ErrParserUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) answer(q query) {
	switch {
	case q.screen != nil:
		result := t.state.Screen(q.screen.styled)
		q.screen.reply <- screenReply{result: result}
	case q.scrollback != nil:
		result := t.state.ScrollbackSlice(q.scrollback.offset, q.scrollback.limit, q.scrollback.styled)
		q.scrollback.reply <- scrollbackReply{result: result}
	case q.cursor != nil:
		q.cursor.reply <- cursorReply{cursor: t.state.Cursor()}
	case q.resize != nil:
		changes := t.state.Resize(q.resize.cols, q.resize.rows)
		t.emitChanges(changes, true)
		q.resize.reply <- resizeReply{}
	}
}

// Done returns a channel closed once the task's run loop has exited,
// for callers that want to observe parser death without issuing a
// query (e.g. the Session's own shutdown sequencing).
func (t *Task) Done() <-chan struct{} {
	return t.done
}
