// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/wsh-dev/wsh/vt"
)

func newTestBroker() *Broker {
	return NewBroker(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBrokerPublishDeliversToSubscriber(t *testing.T) {
	t.Parallel()

	b := newTestBroker()
	ch, unsubscribe := b.SubscribeStreaming()
	defer unsubscribe()

	b.Publish([]byte("hello"))

	select {
	case msg := <-ch:
		if string(msg.Data) != "hello" {
			t.Fatalf("msg.Data = %q, want %q", msg.Data, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published data")
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := newTestBroker()
	ch, unsubscribe := b.SubscribeStreaming()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
}

func TestBrokerSubscribeParserOnlyOnce(t *testing.T) {
	t.Parallel()

	b := newTestBroker()
	task := vt.NewTask(80, 24, 100)

	if err := b.SubscribeParser(task); err != nil {
		t.Fatalf("first SubscribeParser: %v", err)
	}
	if err := b.SubscribeParser(task); !errors.Is(err, ErrParserAlreadySubscribed) {
		t.Fatalf("second SubscribeParser: err = %v, want ErrParserAlreadySubscribed", err)
	}
}

func TestBrokerDeliverLagsWhenSubscriberFull(t *testing.T) {
	t.Parallel()

	b := newTestBroker()
	ch, unsubscribe := b.SubscribeStreaming()
	defer unsubscribe()

	// Fill the bounded channel without draining it, then publish one
	// more chunk than fits.
	for i := 0; i < StreamingChannelCapacity+1; i++ {
		b.Publish([]byte{byte(i)})
	}

	// The lag count is flushed on the next delivery attempt, so once the
	// queued chunks are drained, publish one more to carry it.
	drained := 0
	sawLag := false
	for drained < StreamingChannelCapacity+1 {
		if drained == StreamingChannelCapacity {
			b.Publish([]byte("after lag"))
		}
		select {
		case msg := <-ch:
			if msg.Lagged > 0 {
				sawLag = true
			}
			drained++
		case <-time.After(time.Second):
			t.Fatalf("timed out draining after %d messages", drained)
		}
	}
	if !sawLag {
		t.Fatal("expected at least one Lagged message once the subscriber channel filled up")
	}
}

func TestBrokerDroppedCountIncrementsWhenParserFull(t *testing.T) {
	t.Parallel()

	b := newTestBroker()
	task := vt.NewTask(80, 24, 100)
	if err := b.SubscribeParser(task); err != nil {
		t.Fatalf("SubscribeParser: %v", err)
	}

	// The parser task's feed channel is never drained (Start was not
	// called), so it fills up and subsequent publishes are dropped.
	for i := 0; i < 10_000; i++ {
		b.Publish([]byte("x"))
	}

	if b.DroppedCount() == 0 {
		t.Fatal("DroppedCount() = 0, want > 0 once the parser channel saturates")
	}
}
