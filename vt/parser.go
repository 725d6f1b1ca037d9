// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vt

import (
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Changes is what [State.Feed] reports after consuming one byte chunk:
// which screen rows changed and whether the cursor moved, epoch-bumping
// or not. The parser never emits more than one Reset per chunk.
type Changes struct {
	ChangedRows []int
	CursorMoved bool
	ModeChanged bool
	Reset       *ResetEvent
}

// State is the VT state machine. It is not safe for concurrent use —
// callers must serialize access, which [Task] does by giving the
// state to exactly one goroutine.
type State struct {
	cols, rows int

	primary *grid
	altGrid *grid
	active  *grid // points at primary or altGrid

	alternateScreen bool

	cursor       Cursor
	savedCursor  Cursor
	pen          Style

	scrollTop, scrollBottom int // inclusive, 0-indexed, within active screen

	scrollback *Scrollback

	epoch uint64

	ansiState byte

	// lastReportedCursor is compared against cursor after each Feed
	// to decide whether to report CursorMoved.
	lastReportedCursor Cursor
}

// NewState creates a parser state sized rows x cols with the given
// scrollback capacity (in lines).
func NewState(cols, rows, scrollbackCapacity int) *State {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	s := &State{
		cols: cols, rows: rows,
		primary:    newGrid(rows, cols),
		altGrid:    newGrid(rows, cols),
		scrollback: NewScrollback(scrollbackCapacity),
		cursor:     Cursor{Visible: true},
	}
	s.active = s.primary
	s.scrollTop, s.scrollBottom = 0, rows-1
	s.lastReportedCursor = s.cursor
	return s
}

// Feed consumes one chunk of raw PTY bytes, mutating VT state and
// returning what changed.
func (s *State) Feed(data []byte) Changes {
	changed := map[int]bool{}
	var reset *ResetEvent

	emitReset := func(reason ResetReason) {
		s.epoch++
		reset = &ResetEvent{Epoch: s.epoch, Reason: reason}
	}

	for len(data) > 0 {
		seqBytes, width, n, newState := ansi.DecodeSequence(data, s.ansiState, nil)
		s.ansiState = newState
		if n <= 0 {
			break
		}
		data = data[n:]
		seq := string(seqBytes)

		if width > 0 {
			s.writeGrapheme(seq, width, changed)
			continue
		}

		switch {
		case len(seq) == 1:
			s.handleControl(seq[0], changed)
		case strings.HasPrefix(seq, "\x1b["):
			s.handleCSI(seq, changed, emitReset)
		case strings.HasPrefix(seq, "\x1bc") || seq == "\x1bc":
			s.hardReset()
			emitReset(ResetHard)
			for r := 0; r < s.rows; r++ {
				changed[r] = true
			}
		default:
			// OSC, DCS, charset selection, and other sequences we
			// don't interpret are swallowed without effect.
		}
	}

	rows := make([]int, 0, len(changed))
	for r := range changed {
		rows = append(rows, r)
	}
	sort.Ints(rows)

	cursorMoved := s.cursor != s.lastReportedCursor
	s.lastReportedCursor = s.cursor

	return Changes{ChangedRows: rows, CursorMoved: cursorMoved, Reset: reset}
}

func (s *State) writeGrapheme(grapheme string, width int, changed map[int]bool) {
	if s.cursor.Col+width > s.cols {
		s.lineFeedCursorOnly(changed)
		s.cursor.Col = 0
	}
	row := s.active.row(s.cursor.Row)
	if row != nil && s.cursor.Col < len(row) {
		row[s.cursor.Col] = Cell{Grapheme: grapheme, Width: width, Style: s.pen}
		if width == 2 && s.cursor.Col+1 < len(row) {
			row[s.cursor.Col+1] = Cell{Width: 0, Style: s.pen}
		}
		changed[s.cursor.Row] = true
	}
	s.cursor.Col += width
	if s.cursor.Col >= s.cols {
		// Defer the actual wrap to the next write so that a cursor
		// positioned exactly at the margin after a full-width write
		// is reported at cols-1, matching common terminal behavior.
		s.cursor.Col = s.cols - 1
	}
}

// lineFeedCursorOnly advances the cursor one row, scrolling the active
// region if already at the bottom. Used internally by writeGrapheme's
// wrap path and by the LF control handler.
func (s *State) lineFeedCursorOnly(changed map[int]bool) {
	if s.cursor.Row >= s.scrollBottom {
		removed := s.active.scrollUp(s.scrollTop, s.scrollBottom)
		if s.active == s.primary && !s.alternateScreen {
			s.scrollback.Push(Line{Cells: removed})
		}
		for r := s.scrollTop; r <= s.scrollBottom; r++ {
			changed[r] = true
		}
		return
	}
	s.cursor.Row++
}

func (s *State) handleControl(b byte, changed map[int]bool) {
	switch b {
	case '\r':
		s.cursor.Col = 0
	case '\n':
		s.lineFeedCursorOnly(changed)
	case '\b':
		if s.cursor.Col > 0 {
			s.cursor.Col--
		}
	case '\t':
		next := ((s.cursor.Col / 8) + 1) * 8
		if next >= s.cols {
			next = s.cols - 1
		}
		s.cursor.Col = next
	case '\a':
		// bell: no visible effect on state
	}
}

func (s *State) handleCSI(seq string, changed map[int]bool, emitReset func(ResetReason)) {
	body := strings.TrimPrefix(seq, "\x1b[")
	if body == "" {
		return
	}
	final := body[len(body)-1]
	params := body[:len(body)-1]

	private := strings.HasPrefix(params, "?")
	if private {
		params = params[1:]
	}

	args := parseCSIParams(params)
	arg := func(i, def int) int {
		if i < len(args) && args[i] != 0 {
			return args[i]
		}
		return def
	}

	switch {
	case private && (final == 'h' || final == 'l'):
		s.handlePrivateMode(args, final == 'h', changed, emitReset)
		return
	case final == 'm':
		s.applySGR(args)
		return
	}

	switch final {
	case 'H', 'f':
		row := arg(0, 1) - 1
		col := arg(1, 1) - 1
		s.cursor.Row = clamp(row, 0, s.rows-1)
		s.cursor.Col = clamp(col, 0, s.cols-1)
	case 'A':
		s.cursor.Row = clamp(s.cursor.Row-arg(0, 1), 0, s.rows-1)
	case 'B':
		s.cursor.Row = clamp(s.cursor.Row+arg(0, 1), 0, s.rows-1)
	case 'C':
		s.cursor.Col = clamp(s.cursor.Col+arg(0, 1), 0, s.cols-1)
	case 'D':
		s.cursor.Col = clamp(s.cursor.Col-arg(0, 1), 0, s.cols-1)
	case 'G':
		s.cursor.Col = clamp(arg(0, 1)-1, 0, s.cols-1)
	case 'd':
		s.cursor.Row = clamp(arg(0, 1)-1, 0, s.rows-1)
	case 'J':
		s.eraseDisplay(arg(0, 0), changed)
	case 'K':
		s.eraseLine(arg(0, 0), changed)
	case 'r':
		top := clamp(arg(0, 1)-1, 0, s.rows-1)
		bottom := clamp(arg(1, s.rows)-1, 0, s.rows-1)
		if top < bottom {
			s.scrollTop, s.scrollBottom = top, bottom
		}
	case 's':
		s.savedCursor = s.cursor
	case 'u':
		s.cursor = s.savedCursor
	}
}

func (s *State) handlePrivateMode(args []int, set bool, changed map[int]bool, emitReset func(ResetReason)) {
	for _, mode := range args {
		switch mode {
		case 25:
			s.cursor.Visible = set
		case 1049, 47, 1047:
			if set != s.alternateScreen {
				s.alternateScreen = set
				if set {
					s.altGrid.clearAll()
					s.active = s.altGrid
					emitReset(ResetAlternateScreenEnter)
				} else {
					s.active = s.primary
					emitReset(ResetAlternateScreenExit)
				}
				for r := 0; r < s.rows; r++ {
					changed[r] = true
				}
			}
		}
	}
}

func (s *State) applySGR(args []int) {
	if len(args) == 0 {
		args = []int{0}
	}
	for i := 0; i < len(args); i++ {
		v := args[i]
		switch {
		case v == 0:
			s.pen = Style{}
		case v == 1:
			s.pen.Bold = true
		case v == 2:
			s.pen.Faint = true
		case v == 3:
			s.pen.Italic = true
		case v == 4:
			s.pen.Underline = true
		case v == 5, v == 6:
			s.pen.Blink = true
		case v == 7:
			s.pen.Inverse = true
		case v == 9:
			s.pen.Strikethrough = true
		case v == 22:
			s.pen.Bold, s.pen.Faint = false, false
		case v == 23:
			s.pen.Italic = false
		case v == 24:
			s.pen.Underline = false
		case v == 25:
			s.pen.Blink = false
		case v == 27:
			s.pen.Inverse = false
		case v == 29:
			s.pen.Strikethrough = false
		case v >= 30 && v <= 37:
			s.pen.Foreground = Color{Mode: ColorIndexed, Index: uint8(v - 30)}
		case v == 38:
			n := parseExtendedColor(args, &i)
			s.pen.Foreground = n
		case v == 39:
			s.pen.Foreground = Color{}
		case v >= 40 && v <= 47:
			s.pen.Background = Color{Mode: ColorIndexed, Index: uint8(v - 40)}
		case v == 48:
			n := parseExtendedColor(args, &i)
			s.pen.Background = n
		case v == 49:
			s.pen.Background = Color{}
		case v >= 90 && v <= 97:
			s.pen.Foreground = Color{Mode: ColorIndexed, Index: uint8(v - 90 + 8)}
		case v >= 100 && v <= 107:
			s.pen.Background = Color{Mode: ColorIndexed, Index: uint8(v - 100 + 8)}
		}
	}
}

// parseExtendedColor parses the ";5;N" (indexed) or ";2;R;G;B"
// (truecolor) tail of an SGR 38/48 sequence, advancing i past the
// consumed parameters.
func parseExtendedColor(args []int, i *int) Color {
	if *i+1 >= len(args) {
		return Color{}
	}
	switch args[*i+1] {
	case 5:
		if *i+2 < len(args) {
			idx := args[*i+2]
			*i += 2
			return Color{Mode: ColorIndexed, Index: uint8(idx)}
		}
	case 2:
		if *i+4 < len(args) {
			r, g, b := args[*i+2], args[*i+3], args[*i+4]
			*i += 4
			return Color{Mode: ColorRGB, R: uint8(r), G: uint8(g), B: uint8(b)}
		}
	}
	return Color{}
}

func (s *State) eraseDisplay(mode int, changed map[int]bool) {
	switch mode {
	case 0:
		s.eraseLine(0, changed)
		for r := s.cursor.Row + 1; r < s.rows; r++ {
			s.active.clearRow(r)
			changed[r] = true
		}
	case 1:
		for r := 0; r < s.cursor.Row; r++ {
			s.active.clearRow(r)
			changed[r] = true
		}
		s.eraseLine(1, changed)
	case 2, 3:
		s.active.clearAll()
		for r := 0; r < s.rows; r++ {
			changed[r] = true
		}
	}
}

func (s *State) eraseLine(mode int, changed map[int]bool) {
	row := s.active.row(s.cursor.Row)
	if row == nil {
		return
	}
	switch mode {
	case 0:
		for c := s.cursor.Col; c < len(row); c++ {
			row[c] = emptyCell()
		}
	case 1:
		for c := 0; c <= s.cursor.Col && c < len(row); c++ {
			row[c] = emptyCell()
		}
	case 2:
		for c := range row {
			row[c] = emptyCell()
		}
	}
	changed[s.cursor.Row] = true
}

func (s *State) hardReset() {
	s.primary.clearAll()
	s.altGrid.clearAll()
	s.active = s.primary
	s.alternateScreen = false
	s.cursor = Cursor{Visible: true}
	s.pen = Style{}
	s.scrollTop, s.scrollBottom = 0, s.rows-1
}

// Resize changes the VT's dimensions, bumping the epoch. The returned
// Changes always contains a Reset with reason "resize".
func (s *State) Resize(cols, rows int) Changes {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	s.cols, s.rows = cols, rows
	s.primary.resize(rows, cols)
	s.altGrid.resize(rows, cols)
	s.scrollTop, s.scrollBottom = 0, rows-1
	s.cursor.Row = clamp(s.cursor.Row, 0, rows-1)
	s.cursor.Col = clamp(s.cursor.Col, 0, cols-1)
	s.epoch++

	all := make([]int, rows)
	for r := range all {
		all[r] = r
	}
	return Changes{
		ChangedRows: all,
		CursorMoved: true,
		Reset:       &ResetEvent{Epoch: s.epoch, Reason: ResetResize},
	}
}

// Screen snapshots the currently visible grid.
func (s *State) Screen(styled bool) ScreenResult {
	lines := make([]FormattedLine, s.rows)
	for r := 0; r < s.rows; r++ {
		lines[r] = s.formatRow(r, styled)
	}
	first := s.scrollback.Total()
	return ScreenResult{
		Lines:           lines,
		Cursor:          s.cursor,
		Cols:            s.cols,
		Rows:            s.rows,
		AlternateScreen: s.alternateScreen,
		FirstLineIndex:  first,
		TotalLines:      first + uint64(s.rows),
		Epoch:           s.epoch,
	}
}

func (s *State) formatRow(r int, styled bool) FormattedLine {
	row := s.active.row(r)
	if styled {
		return FormatLineStyled(row)
	}
	return FormatLinePlain(row)
}

// Cursor returns the current cursor.
func (s *State) Cursor() Cursor { return s.cursor }

// ScrollbackSlice answers a paginated scrollback query.
func (s *State) ScrollbackSlice(offset uint64, limit int, styled bool) ScrollbackResult {
	lines := s.scrollback.Slice(offset, limit)
	out := make([]FormattedLine, len(lines))
	for i, l := range lines {
		if styled {
			out[i] = FormatLineStyled(l.Cells)
		} else {
			out[i] = FormatLinePlain(l.Cells)
		}
	}
	return ScrollbackResult{
		Lines:      out,
		FirstIndex: s.scrollback.FirstIndex(),
		Total:      s.scrollback.Total(),
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func parseCSIParams(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]int, len(parts))
	for i, p := range parts {
		if p == "" {
			out[i] = 0
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			out[i] = 0
			continue
		}
		out[i] = n
	}
	return out
}
