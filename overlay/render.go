// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/x/ansi"

	"github.com/wsh-dev/wsh/vt"
)

// ScreenSource is the subset of *vt.Task the renderer depends on: a
// way to read the current screen without owning the parser.
type ScreenSource interface {
	Screen(ctx context.Context, styled bool) (vt.ScreenResult, error)
}

// Writer is the subset of *session.PTY the renderer depends on:
// queuing bytes for the output stream.
type Writer interface {
	Write(ctx context.Context, data []byte) error
}

const (
	beginSyncUpdate = "\x1b[?2026h"
	endSyncUpdate   = "\x1b[?2026l"
	saveCursor      = "\x1b7"
	restoreCursor   = "\x1b8"
	sgrReset        = "\x1b[0m"
)

// Renderer paints the store's overlays onto the live PTY screen.
// Grounded directly on lib/tui/overlay.go's SpliceOverlay/OverlayBold
// (ANSI-aware span splicing using ansi.DecodeSequence/Truncate/
// StringWidth), adapted from "splice into a rendered bubbletea view
// string" to "splice into a live PTY output stream": instead of
// rewriting a string and returning it, Renderer repositions the
// cursor and writes escape sequences directly, bracketed in a
// synchronized update so a concurrent repaint never shows a half
// drawn frame.
type Renderer struct {
	store  *Store
	screen ScreenSource
	writer Writer

	mu       sync.Mutex
	lastRows map[int]struct{}
}

// NewRenderer creates a renderer painting store's overlays using
// screen's current content and writer's output stream.
func NewRenderer(store *Store, screen ScreenSource, writer Writer) *Renderer {
	return &Renderer{store: store, screen: screen, writer: writer, lastRows: make(map[int]struct{})}
}

// Render repaints every row that currently holds an overlay or held
// one on the previous render (so overlays that moved or were deleted
// leave no stale pixels behind), restoring the underlying screen
// content first and the overlay spans on top.
func (r *Renderer) Render(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.screen.Screen(ctx, true)
	if err != nil {
		return fmt.Errorf("render overlays: query screen: %w", err)
	}

	overlays := r.store.List()

	byRow := make(map[int][]overlayRowSpans, len(overlays))
	for _, ov := range overlays {
		startRow := saturate(ov.Y, result.Rows)
		for i, spans := range splitOverlayRows(ov.Spans) {
			row := startRow + i
			if row < 0 || row >= result.Rows {
				continue
			}
			byRow[row] = append(byRow[row], overlayRowSpans{z: ov.Z, x: ov.X, spans: spans})
		}
	}

	dirty := make(map[int]struct{}, len(r.lastRows)+len(byRow))
	for row := range r.lastRows {
		dirty[row] = struct{}{}
	}
	for row := range byRow {
		dirty[row] = struct{}{}
	}

	rows := make([]int, 0, len(dirty))
	for row := range dirty {
		rows = append(rows, row)
	}
	sort.Ints(rows)

	var buf bytes.Buffer
	buf.WriteString(beginSyncUpdate)
	buf.WriteString(saveCursor)
	for _, row := range rows {
		if row < 0 || row >= len(result.Lines) {
			continue
		}
		writeRow(&buf, row, result.Lines[row])
		for _, entry := range sortByZAsc(byRow[row]) {
			writeOverlaySpans(&buf, entry.x, row, result.Cols, entry.spans)
		}
	}
	buf.WriteString(sgrReset)
	buf.WriteString(restoreCursor)
	buf.WriteString(endSyncUpdate)

	r.lastRows = make(map[int]struct{}, len(byRow))
	for row := range byRow {
		r.lastRows[row] = struct{}{}
	}

	return r.writer.Write(ctx, buf.Bytes())
}

func writeRow(buf *bytes.Buffer, row int, line vt.FormattedLine) {
	fmt.Fprintf(buf, "\x1b[%d;1H\x1b[2K", row+1)
	for _, span := range line.Spans {
		buf.WriteString(vt.SGR(span.Style))
		buf.WriteString(span.Text)
	}
	buf.WriteString(sgrReset)
}

// overlayRowSpans is one overlay's contribution to a single physical
// screen row: the spans between two "\n" markers in its Spans slice
// (or the whole slice, for a single-row overlay), along with the
// overlay's column anchor and z-order for sorting against other
// overlays sharing the row.
type overlayRowSpans struct {
	z     int
	x     int
	spans []vt.Span
}

// splitOverlayRows breaks spans into per-row groups on a "\n" marker
// span, per spec.md §4.6 step 3: overlays are rectangular to their
// natural content width, and a "\n" span moves subsequent spans to
// the next row at the same starting column. Mirrors
// panel/render.go's writePanelRows row-break convention.
func splitOverlayRows(spans []vt.Span) [][]vt.Span {
	rows := [][]vt.Span{nil}
	for _, span := range spans {
		if span.Text == "\n" {
			rows = append(rows, nil)
			continue
		}
		last := len(rows) - 1
		rows[last] = append(rows[last], span)
	}
	return rows
}

func writeOverlaySpans(buf *bytes.Buffer, x, row, cols int, spans []vt.Span) {
	col := saturate(x, cols)
	remaining := cols - col
	if remaining <= 0 {
		return
	}
	fmt.Fprintf(buf, "\x1b[%d;%dH", row+1, col+1)
	for _, span := range spans {
		if remaining <= 0 {
			break
		}
		text := span.Text
		width := ansi.StringWidth(text)
		if width > remaining {
			text = ansi.Truncate(text, remaining, "")
			width = ansi.StringWidth(text)
		}
		buf.WriteString(vt.SGR(span.Style))
		buf.WriteString(text)
		remaining -= width
	}
	buf.WriteString(sgrReset)
}

func sortByZAsc(entries []overlayRowSpans) []overlayRowSpans {
	sorted := append([]overlayRowSpans(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].z < sorted[j].z })
	return sorted
}

// saturate clamps v into [0, limit-1] without wraparound, so
// attacker-controlled overlay coordinates can never address outside
// the visible screen.
func saturate(v, limit int) int {
	if limit <= 0 {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v >= limit {
		return limit - 1
	}
	return v
}
