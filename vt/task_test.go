// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vt

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestTaskScreenFeed(t *testing.T) {
	t.Parallel()
	task := NewTask(80, 24, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task.Start(ctx)

	if !task.Feed([]byte("Hello, World!")) {
		t.Fatal("Feed returned false on a live task")
	}

	result, err := task.Screen(context.Background(), false)
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if result.Cols != 80 || result.Rows != 24 {
		t.Fatalf("dims = %dx%d, want 80x24", result.Cols, result.Rows)
	}
	if result.Cursor.Row != 0 || result.Cursor.Col != 13 {
		t.Fatalf("cursor = %+v, want (0,13)", result.Cursor)
	}
	if result.Lines[0].Plain == nil || !strings.HasPrefix(*result.Lines[0].Plain, "Hello, World!") {
		t.Fatalf("line[0] = %+v, want prefix Hello, World!", result.Lines[0])
	}
}

func TestTaskCursorMove(t *testing.T) {
	t.Parallel()
	task := NewTask(80, 24, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task.Start(ctx)

	task.Feed([]byte("\x1b[5;10H"))
	cur, err := task.Cursor(context.Background())
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if cur.Row != 4 || cur.Col != 9 || !cur.Visible {
		t.Fatalf("cursor = %+v, want {4 9 true}", cur)
	}
}

func TestTaskScrollbackGrowth(t *testing.T) {
	t.Parallel()
	task := NewTask(80, 5, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task.Start(ctx)

	for i := 0; i < 10; i++ {
		task.Feed([]byte("Line\r\n"))
	}

	sb, err := task.Scrollback(context.Background(), 0, 100, false)
	if err != nil {
		t.Fatalf("Scrollback: %v", err)
	}
	if len(sb.Lines) < 5 {
		t.Fatalf("len(Lines) = %d, want >= 5", len(sb.Lines))
	}

	screen, err := task.Screen(context.Background(), false)
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if screen.FirstLineIndex < 5 {
		t.Fatalf("FirstLineIndex = %d, want >= 5", screen.FirstLineIndex)
	}
}

func TestTaskScrollbackPastEndIsEmpty(t *testing.T) {
	t.Parallel()
	task := NewTask(80, 5, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task.Start(ctx)

	for i := 0; i < 10; i++ {
		task.Feed([]byte("Line\r\n"))
	}
	screen, _ := task.Screen(context.Background(), false)

	sb, err := task.Scrollback(context.Background(), screen.TotalLines, 10, false)
	if err != nil {
		t.Fatalf("Scrollback: %v", err)
	}
	if len(sb.Lines) != 0 {
		t.Fatalf("len(Lines) = %d, want 0", len(sb.Lines))
	}
}

func TestTaskResizeIdempotentDimensions(t *testing.T) {
	t.Parallel()
	task := NewTask(80, 24, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task.Start(ctx)

	if err := task.Resize(context.Background(), 100, 30); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if err := task.Resize(context.Background(), 100, 30); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	screen, err := task.Screen(context.Background(), false)
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if screen.Cols != 100 || screen.Rows != 30 {
		t.Fatalf("dims = %dx%d, want 100x30", screen.Cols, screen.Rows)
	}
}

func TestTaskEventsStrictlyMonotoneSeq(t *testing.T) {
	t.Parallel()
	task := NewTask(80, 24, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task.Start(ctx)

	events := task.Subscribe()
	defer task.Unsubscribe(events)

	task.Feed([]byte("abc\r\ndef\r\n"))

	var last uint64
	deadline := time.After(time.Second)
	seen := 0
	for seen < 2 {
		select {
		case e := <-events:
			if e.Seq <= last {
				t.Fatalf("seq %d did not increase past %d", e.Seq, last)
			}
			last = e.Seq
			seen++
		case <-deadline:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestTaskUnavailableAfterCancel(t *testing.T) {
	t.Parallel()
	task := NewTask(80, 24, 100)
	ctx, cancel := context.WithCancel(context.Background())
	task.Start(ctx)
	cancel()
	<-task.Done()

	_, err := task.Screen(context.Background(), false)
	if err != ErrParserUnavailable {
		t.Fatalf("err = %v, want ErrParserUnavailable", err)
	}
}

func TestTaskEventsLagWhenSubscriberFull(t *testing.T) {
	t.Parallel()
	task := NewTask(80, 24, 100, WithEventBufferSize(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task.Start(ctx)

	events := task.Subscribe()
	defer task.Unsubscribe(events)

	// Fill the one-slot channel without draining it, then feed enough
	// lines to force at least one drop. The Cursor query returns only
	// after every queued chunk has been parsed.
	for i := 0; i < 5; i++ {
		task.Feed([]byte("line\r\n"))
	}
	if _, err := task.Cursor(context.Background()); err != nil {
		t.Fatalf("Cursor: %v", err)
	}

	// The lag count is flushed on the next delivery attempt, so feed
	// one more line after each receive to make room for it.
	drained := 0
	sawLag := false
	deadline := time.After(time.Second)
	for drained < 3 {
		select {
		case e := <-events:
			if e.Kind == EventLagged {
				sawLag = true
			}
			drained++
			task.Feed([]byte("line\r\n"))
		case <-deadline:
			t.Fatalf("timed out draining after %d events", drained)
		}
	}
	if !sawLag {
		t.Fatal("expected an EventLagged notification once the subscriber channel filled up")
	}
}

func TestTaskFeedRecoversPanic(t *testing.T) {
	t.Parallel()

	// A Task whose state was never constructed reproduces the same
	// nil-pointer panic a malformed byte sequence could trigger deep in
	// State.Feed; feed must recover it into an error rather than let it
	// escape and crash the run loop's goroutine.
	badTask := &Task{}
	err := badTask.feed([]byte("x"))
	if err == nil {
		t.Fatal("expected an error from feed on a nil state")
	}
}

func TestTaskAlternateScreenResetReason(t *testing.T) {
	t.Parallel()
	task := NewTask(80, 24, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task.Start(ctx)

	events := task.Subscribe()
	defer task.Unsubscribe(events)

	task.Feed([]byte("\x1b[?1049h"))

	var gotReset, gotMode bool
	deadline := time.After(time.Second)
	for !gotReset || !gotMode {
		select {
		case e := <-events:
			switch e.Kind {
			case EventReset:
				if e.Reset.Reason == ResetAlternateScreenEnter {
					gotReset = true
				}
			case EventMode:
				if e.Mode.AlternateScreen {
					gotMode = true
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for alternate-screen events")
		}
	}
}
