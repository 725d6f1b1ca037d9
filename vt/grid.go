// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vt

// ColorMode distinguishes the three ways a Color can be specified.
type ColorMode uint8

const (
	ColorDefault ColorMode = iota
	ColorIndexed
	ColorRGB
)

// Color is either the terminal default, one of the 256 indexed colors,
// or a 24-bit RGB triple.
type Color struct {
	Mode  ColorMode
	Index uint8
	R, G, B uint8
}

// Style is the "pen" a cell is painted with: colors plus SGR flags.
type Style struct {
	Foreground Color
	Background Color

	Bold          bool
	Faint         bool
	Italic        bool
	Underline     bool
	Strikethrough bool
	Blink         bool
	Inverse       bool
}

// Cell holds one grapheme cluster and the pen it was painted with.
// Width is 2 for wide (e.g. CJK) graphemes and 0 for the trailing
// placeholder cell a wide grapheme occupies; it is always 1 for
// ordinary cells, including the default empty cell.
type Cell struct {
	Grapheme string
	Width    int
	Style    Style
}

func emptyCell() Cell {
	return Cell{Grapheme: " ", Width: 1}
}

// Cursor is the VT's single text-insertion point.
type Cursor struct {
	Row     int
	Col     int
	Visible bool
}

// grid is a fixed-size rows x cols matrix of cells, row-major.
type grid struct {
	rows, cols int
	cells      [][]Cell
}

func newGrid(rows, cols int) *grid {
	g := &grid{rows: rows, cols: cols}
	g.cells = make([][]Cell, rows)
	for r := range g.cells {
		g.cells[r] = newBlankRow(cols)
	}
	return g
}

func newBlankRow(cols int) []Cell {
	row := make([]Cell, cols)
	for c := range row {
		row[c] = emptyCell()
	}
	return row
}

// resize changes the grid's dimensions in place, truncating or padding
// rows/cols as needed. Existing content in the overlapping region is
// preserved; new rows/columns are blank.
func (g *grid) resize(rows, cols int) {
	newCells := make([][]Cell, rows)
	for r := 0; r < rows; r++ {
		row := newBlankRow(cols)
		if r < len(g.cells) {
			copy(row, g.cells[r])
		}
		newCells[r] = row
	}
	g.cells = newCells
	g.rows = rows
	g.cols = cols
}

func (g *grid) clearAll() {
	for r := range g.cells {
		g.cells[r] = newBlankRow(g.cols)
	}
}

// clearRow clears row r in place to blank cells.
func (g *grid) clearRow(r int) {
	if r < 0 || r >= g.rows {
		return
	}
	g.cells[r] = newBlankRow(g.cols)
}

// scrollUp removes the top line and appends a blank line at the
// bottom of the inclusive row range [top, bottom]. The removed line is
// returned so the caller can push it to scrollback.
func (g *grid) scrollUp(top, bottom int) []Cell {
	if top < 0 {
		top = 0
	}
	if bottom >= g.rows {
		bottom = g.rows - 1
	}
	if top > bottom {
		return nil
	}
	removed := g.cells[top]
	copy(g.cells[top:bottom], g.cells[top+1:bottom+1])
	g.cells[bottom] = newBlankRow(g.cols)
	return removed
}

// row returns a copy-free view of row r. Callers must not retain the
// slice past the next mutation of the grid.
func (g *grid) row(r int) []Cell {
	if r < 0 || r >= g.rows {
		return nil
	}
	return g.cells[r]
}
