// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bufio"
	"bytes"
	"io"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []Frame{
		NewDataFrame([]byte("hello")),
		NewDataFrame(nil),
		NewResizeFrame(120, 40),
		NewLaggedFrame(7),
	}

	for _, f := range cases {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}

		got, err := ReadFrame(bufio.NewReader(&buf))
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if got.Type != f.Type {
			t.Fatalf("Type = %v, want %v", got.Type, f.Type)
		}
		if !bytes.Equal(got.Payload, f.Payload) {
			t.Fatalf("Payload = %v, want %v", got.Payload, f.Payload)
		}
	}
}

func TestReadFrameMultipleMessages(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	WriteFrame(&buf, NewDataFrame([]byte("one")))
	WriteFrame(&buf, NewDataFrame([]byte("two")))

	r := bufio.NewReader(&buf)
	first, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame first: %v", err)
	}
	if string(first.Payload) != "one" {
		t.Fatalf("first payload = %q, want %q", first.Payload, "one")
	}

	second, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame second: %v", err)
	}
	if string(second.Payload) != "two" {
		t.Fatalf("second payload = %q, want %q", second.Payload, "two")
	}
}

func TestReadFrameShortHeaderReturnsError(t *testing.T) {
	t.Parallel()

	r := bufio.NewReader(bytes.NewReader([]byte{0x01, 0x00}))
	if _, err := ReadFrame(r); err == nil {
		t.Fatal("ReadFrame with truncated header: want error, got nil")
	}
}

func TestReadFrameOversizedPayloadRejected(t *testing.T) {
	t.Parallel()

	var header [frameHeaderLength]byte
	header[0] = byte(FrameData)
	header[1] = 0xFF
	header[2] = 0xFF
	header[3] = 0xFF
	header[4] = 0xFF

	r := bufio.NewReader(bytes.NewReader(header[:]))
	if _, err := ReadFrame(r); err == nil {
		t.Fatal("ReadFrame with oversized length: want error, got nil")
	}
}

func TestNewResizeFrameParseResizePayload(t *testing.T) {
	t.Parallel()

	f := NewResizeFrame(132, 43)
	cols, rows, err := ParseResizePayload(f.Payload)
	if err != nil {
		t.Fatalf("ParseResizePayload: %v", err)
	}
	if cols != 132 || rows != 43 {
		t.Fatalf("cols,rows = %d,%d, want 132,43", cols, rows)
	}
}

func TestParseResizePayloadWrongLength(t *testing.T) {
	t.Parallel()

	if _, _, err := ParseResizePayload([]byte{0x00, 0x01}); err == nil {
		t.Fatal("ParseResizePayload with 2 bytes: want error, got nil")
	}
}

// erroringWriter fails on the Nth call to Write, used to exercise
// WriteFrame's header/payload error paths independently.
type erroringWriter struct {
	failOn int
	calls  int
}

func (w *erroringWriter) Write(p []byte) (int, error) {
	w.calls++
	if w.calls == w.failOn {
		return 0, io.ErrClosedPipe
	}
	return len(p), nil
}

func TestWriteFrameHeaderWriteError(t *testing.T) {
	t.Parallel()

	w := &erroringWriter{failOn: 1}
	if err := WriteFrame(w, NewDataFrame([]byte("x"))); err == nil {
		t.Fatal("WriteFrame with failing header write: want error, got nil")
	}
}

func TestWriteFramePayloadWriteError(t *testing.T) {
	t.Parallel()

	w := &erroringWriter{failOn: 2}
	if err := WriteFrame(w, NewDataFrame([]byte("x"))); err == nil {
		t.Fatal("WriteFrame with failing payload write: want error, got nil")
	}
}
