// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vt

import "testing"

// Bare/parameterless CSI final bytes are the overwhelmingly common form
// real shells emit (bash/zsh send \x1b[K continuously; `clear` sends
// \x1b[H\x1b[2J). parseCSIParams("") returns nil for these, so arg must
// never index into args without first checking i < len(args).
func TestFeedBareCSIFinalBytesDoNotPanic(t *testing.T) {
	t.Parallel()

	sequences := []string{
		"\x1b[H",
		"\x1b[K",
		"\x1b[J",
		"\x1b[A",
		"\x1b[B",
		"\x1b[C",
		"\x1b[D",
		"\x1b[G",
		"\x1b[d",
	}
	for _, seq := range sequences {
		s := NewState(80, 24, 100)
		s.Feed([]byte("hello"))
		s.Feed([]byte(seq))
	}
}

func TestWriteGraphemeCursorStopsAtLastColumn(t *testing.T) {
	t.Parallel()

	s := NewState(80, 24, 100)
	s.Feed([]byte(fixedWidthLine(80)))

	cur := s.Cursor()
	if cur.Col != 79 {
		t.Fatalf("Col = %d, want 79 (cols-1)", cur.Col)
	}
}

func fixedWidthLine(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}
