// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package panel

import (
	"sort"

	"github.com/google/uuid"
)

// Layout is the result of allocating row budget to a set of panels
// against a terminal of the given size. No direct teacher analogue —
// tmux owns pane geometry in the teacher — grounded on the general
// shape of observe/layout.go's pure (input) -> Layout functions, here
// generalized from tmux pane rectangles to top/bottom row bands.
type Layout struct {
	Visible map[uuid.UUID]bool

	// ScrollRegionTop and ScrollRegionBottom are 1-indexed, inclusive
	// terminal rows, the operands of DECSTBM (CSI top;bottom r).
	ScrollRegionTop    int
	ScrollRegionBottom int

	PTYRows int
	PTYCols int

	Top    []*Panel // visible top panels, in display order (highest z first)
	Bottom []*Panel // visible bottom panels, in display order (highest z first)
}

// ComputeLayout allocates row budget to panels top-to-bottom and
// bottom-to-top, highest z first within each position, stopping once
// only one row would remain for the PTY. Panels that do not fit in
// the remaining budget are hidden rather than partially drawn.
func ComputeLayout(panels []*Panel, rows, cols int) Layout {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}

	top := filterSortDesc(panels, PositionTop)
	bottom := filterSortDesc(panels, PositionBottom)

	visible := make(map[uuid.UUID]bool, len(panels))
	remaining := rows

	visibleTop, topTotal := allocate(top, &remaining)
	visibleBottom, bottomTotal := allocate(bottom, &remaining)

	for _, p := range top {
		visible[p.ID] = false
	}
	for _, p := range bottom {
		visible[p.ID] = false
	}
	for _, p := range visibleTop {
		visible[p.ID] = true
	}
	for _, p := range visibleBottom {
		visible[p.ID] = true
	}

	scrollTop := 1 + topTotal
	scrollBottom := rows - bottomTotal
	ptyRows := scrollBottom - scrollTop + 1
	if ptyRows < 1 {
		ptyRows = 1
	}

	return Layout{
		Visible:            visible,
		ScrollRegionTop:    scrollTop,
		ScrollRegionBottom: scrollBottom,
		PTYRows:            ptyRows,
		PTYCols:            cols,
		Top:                visibleTop,
		Bottom:             visibleBottom,
	}
}

// allocate greedily assigns rows from *remaining to panels in order,
// skipping (hiding) any panel that does not fit or would leave fewer
// than one row for the PTY. Returns the panels that fit and their
// total height.
func allocate(panels []*Panel, remaining *int) ([]*Panel, int) {
	var fitted []*Panel
	total := 0
	for _, p := range panels {
		if *remaining <= 1 {
			break
		}
		height := p.Height
		if height <= 0 {
			continue
		}
		if height > *remaining-1 {
			continue
		}
		fitted = append(fitted, p)
		total += height
		*remaining -= height
	}
	return fitted, total
}

func filterSortDesc(panels []*Panel, position Position) []*Panel {
	var filtered []*Panel
	for _, p := range panels {
		if p.Position == position {
			filtered = append(filtered, p)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Z > filtered[j].Z })
	return filtered
}
