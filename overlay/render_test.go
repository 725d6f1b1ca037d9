// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"context"
	"strings"
	"testing"

	"github.com/wsh-dev/wsh/vt"
)

func TestSplitOverlayRowsBreaksOnNewlineSpan(t *testing.T) {
	t.Parallel()

	rows := splitOverlayRows([]vt.Span{
		{Text: "top"},
		{Text: "\n"},
		{Text: "bottom"},
	})
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if len(rows[0]) != 1 || rows[0][0].Text != "top" {
		t.Fatalf("rows[0] = %+v, want [top]", rows[0])
	}
	if len(rows[1]) != 1 || rows[1][0].Text != "bottom" {
		t.Fatalf("rows[1] = %+v, want [bottom]", rows[1])
	}
}

func TestSplitOverlayRowsSingleRowNoNewline(t *testing.T) {
	t.Parallel()

	rows := splitOverlayRows([]vt.Span{{Text: "hi"}})
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
}

type fakeScreenSource struct {
	result vt.ScreenResult
}

func (f fakeScreenSource) Screen(context.Context, bool) (vt.ScreenResult, error) {
	return f.result, nil
}

type captureWriter struct {
	data []byte
}

func (w *captureWriter) Write(_ context.Context, data []byte) error {
	w.data = append([]byte(nil), data...)
	return nil
}

func TestRenderSplicesMultiRowOverlay(t *testing.T) {
	t.Parallel()

	result := vt.ScreenResult{
		Cols: 10,
		Rows: 4,
		Lines: []vt.FormattedLine{
			{Spans: []vt.Span{{Text: "aaaaaaaaaa"}}},
			{Spans: []vt.Span{{Text: "bbbbbbbbbb"}}},
			{Spans: []vt.Span{{Text: "cccccccccc"}}},
			{Spans: []vt.Span{{Text: "dddddddddd"}}},
		},
	}

	store := NewStore()
	store.Create(0, 1, nil, []vt.Span{
		{Text: "one"},
		{Text: "\n"},
		{Text: "two"},
	}, "owner-a")

	writer := &captureWriter{}
	r := NewRenderer(store, fakeScreenSource{result: result}, writer)
	if err := r.Render(context.Background()); err != nil {
		t.Fatalf("Render: %v", err)
	}

	out := string(writer.data)
	if !strings.Contains(out, "one") || !strings.Contains(out, "two") {
		t.Fatalf("output missing spliced overlay text: %q", out)
	}
	// Row 1 (1-indexed "2") carries the first overlay row, row 2 ("3")
	// carries the second, one row below.
	if !strings.Contains(out, "\x1b[2;1H") {
		t.Fatalf("output missing first overlay row positioning: %q", out)
	}
	if !strings.Contains(out, "\x1b[3;1H") {
		t.Fatalf("output missing second overlay row positioning: %q", out)
	}
}
