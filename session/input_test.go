// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"testing"
	"time"
)

type discardWriter struct{}

func (discardWriter) Enqueue(context.Context, []byte) error { return nil }

func TestInputArbiterBroadcastReachesSubscriber(t *testing.T) {
	t.Parallel()

	a := NewInputArbiter(discardWriter{})
	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()

	if err := a.SendInput(context.Background(), []byte("a")); err != nil {
		t.Fatalf("SendInput: %v", err)
	}

	select {
	case e := <-ch:
		if string(e.RawBytes) != "a" {
			t.Fatalf("RawBytes = %q, want %q", e.RawBytes, "a")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for input event")
	}
}

func TestInputArbiterDeliverLagsWhenSubscriberFull(t *testing.T) {
	t.Parallel()

	a := NewInputArbiter(discardWriter{})
	sub := &inputSub{ch: make(chan InputEvent, 1)}
	a.subMu.Lock()
	a.subs[sub] = struct{}{}
	a.subMu.Unlock()

	// Fill the one-slot channel without draining it, then send one more
	// event than fits.
	for i := 0; i < 2; i++ {
		if err := a.SendInput(context.Background(), []byte{byte(i)}); err != nil {
			t.Fatalf("SendInput: %v", err)
		}
	}

	// The lag count is flushed on the next delivery attempt, so send one
	// more event after draining the queued one.
	drained := 0
	sawLag := false
	deadline := time.After(time.Second)
	for drained < 2 {
		select {
		case e := <-sub.ch:
			if e.Lagged > 0 {
				sawLag = true
			}
			drained++
			if drained == 1 {
				if err := a.SendInput(context.Background(), []byte{2}); err != nil {
					t.Fatalf("SendInput: %v", err)
				}
			}
		case <-deadline:
			t.Fatalf("timed out draining after %d events", drained)
		}
	}
	if !sawLag {
		t.Fatal("expected a Lagged event once the subscriber channel filled up")
	}
}
