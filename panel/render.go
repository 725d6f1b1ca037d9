// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package panel

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/x/ansi"

	"github.com/wsh-dev/wsh/vt"
)

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

// Renderer paints visible panels onto their row bands and maintains
// the PTY's DECSTBM scroll region so panel rows can never be
// overwritten by PTY output. No direct teacher analogue for the
// layout math (tmux owns pane geometry there); the rendering
// discipline — synchronized-update bracketing, save/restore cursor —
// is grounded on the same idiom overlay.Renderer uses.
type Renderer struct {
	writer Writer

	mu         sync.Mutex
	lastLayout Layout
	hasLayout  bool
}

// NewRenderer creates a panel renderer writing through writer.
func NewRenderer(writer Writer) *Renderer {
	return &Renderer{writer: writer}
}

// Reconfigure is reconfigure_layout(): it erases the previous layout's
// panel rows (if any), sets the new scroll region, renders every
// visible panel, and restores the cursor. Resizing the PTY and parser
// to layout.PTYRows/PTYCols is the caller's responsibility once this
// returns, per spec.md §4.7.
func (r *Renderer) Reconfigure(ctx context.Context, layout Layout, allPanels []*Panel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteString(beginSyncUpdate)
	buf.WriteString(saveCursor)

	if r.hasLayout {
		eraseBands(&buf, r.lastLayout)
	}
	fmt.Fprintf(&buf, "\x1b[%d;%dr", layout.ScrollRegionTop, layout.ScrollRegionBottom)

	writeBand(&buf, layout.Top, 1, layout.PTYCols)
	writeBand(&buf, layout.Bottom, layout.ScrollRegionBottom+1, layout.PTYCols)

	buf.WriteString(restoreCursor)
	buf.WriteString(endSyncUpdate)

	r.lastLayout = layout
	r.hasLayout = true

	return r.writer.Write(ctx, buf.Bytes())
}

// RenderSpans repaints a single panel's rows in place without
// touching the scroll region, for span-only updates (spec.md §4.7:
// "skip the scroll-region change and just repaint the panel's rows").
func (r *Renderer) RenderSpans(ctx context.Context, p *Panel, cols int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !p.Visible {
		return nil
	}

	startRow := r.panelStartRow(p)
	if startRow < 0 {
		return nil
	}

	var buf bytes.Buffer
	buf.WriteString(beginSyncUpdate)
	buf.WriteString(saveCursor)
	writePanelRows(&buf, p, startRow, cols)
	buf.WriteString(restoreCursor)
	buf.WriteString(endSyncUpdate)

	return r.writer.Write(ctx, buf.Bytes())
}

func (r *Renderer) panelStartRow(target *Panel) int {
	row := 1
	for _, p := range r.lastLayout.Top {
		if p.ID == target.ID {
			return row
		}
		row += p.Height
	}
	row = r.lastLayout.ScrollRegionBottom + 1
	for _, p := range r.lastLayout.Bottom {
		if p.ID == target.ID {
			return row
		}
		row += p.Height
	}
	return -1
}

func eraseBands(buf *bytes.Buffer, layout Layout) {
	for row := 1; row < layout.ScrollRegionTop; row++ {
		fmt.Fprintf(buf, "\x1b[%d;1H\x1b[2K", row)
	}
	for row := layout.ScrollRegionBottom + 1; row <= layout.ScrollRegionBottom+bottomBandHeight(layout); row++ {
		fmt.Fprintf(buf, "\x1b[%d;1H\x1b[2K", row)
	}
}

func bottomBandHeight(layout Layout) int {
	h := 0
	for _, p := range layout.Bottom {
		h += p.Height
	}
	return h
}

func writeBand(buf *bytes.Buffer, panels []*Panel, startRow, cols int) {
	row := startRow
	for _, p := range panels {
		writePanelRows(buf, p, row, cols)
		row += p.Height
	}
}

// writePanelRows renders a panel's spans starting at terminal row
// startRow (1-indexed). A span whose Text is exactly "\n" marks a row
// break; spans are otherwise concatenated onto the current row until
// the panel's height is exhausted, after which remaining spans are
// dropped and remaining rows are left blank.
func writePanelRows(buf *bytes.Buffer, p *Panel, startRow, cols int) {
	row := 0
	remaining := cols
	rowStarted := false

	ensureRow := func() {
		if !rowStarted {
			fmt.Fprintf(buf, "\x1b[%d;1H\x1b[2K", startRow+row)
			rowStarted = true
		}
	}

	for _, span := range p.Spans {
		if row >= p.Height {
			break
		}
		if span.Text == "\n" {
			if rowStarted {
				buf.WriteString(sgrReset)
			}
			row++
			remaining = cols
			rowStarted = false
			continue
		}
		if remaining <= 0 {
			continue
		}
		ensureRow()
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
	if rowStarted {
		buf.WriteString(sgrReset)
	}

	firstBlank := row + 1
	if !rowStarted {
		firstBlank = row
	}
	for blankRow := firstBlank; blankRow < p.Height; blankRow++ {
		fmt.Fprintf(buf, "\x1b[%d;1H\x1b[2K", startRow+blankRow)
	}
}
