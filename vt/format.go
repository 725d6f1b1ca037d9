// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vt

import (
	"strconv"
	"strings"
)

// Span is a contiguous run of cells sharing one Style.
type Span struct {
	Text  string
	Style Style
}

// FormattedLine is a line rendered on demand from grid cells, in
// either of two shapes a caller can request: a single collapsed
// string, or a sequence of styled spans. The wire encoding for this
// type is untagged: whichever field is populated is the one sent.
type FormattedLine struct {
	Plain *string `json:"plain,omitempty"`
	Spans []Span  `json:"spans,omitempty"`
}

// formatPlain collapses a row of cells to its text content, trimming
// nothing — trailing blanks are preserved so column alignment survives
// round-tripping through get_screen.
func formatPlain(cells []Cell) string {
	var b strings.Builder
	for _, c := range cells {
		if c.Width == 0 {
			continue
		}
		if c.Grapheme == "" {
			b.WriteByte(' ')
			continue
		}
		b.WriteString(c.Grapheme)
	}
	return b.String()
}

// formatSpans collapses a row of cells into runs of cells sharing an
// identical style, merging adjacent identical-style cells into one span.
func formatSpans(cells []Cell) []Span {
	var spans []Span
	var current *Span

	flush := func() {
		if current != nil {
			spans = append(spans, *current)
			current = nil
		}
	}

	for _, c := range cells {
		if c.Width == 0 {
			continue
		}
		text := c.Grapheme
		if text == "" {
			text = " "
		}
		if current != nil && current.Style == c.Style {
			current.Text += text
			continue
		}
		flush()
		current = &Span{Text: text, Style: c.Style}
	}
	flush()

	if spans == nil {
		spans = []Span{}
	}
	return spans
}

// FormatLinePlain renders cells as the collapsed-text shape.
func FormatLinePlain(cells []Cell) FormattedLine {
	text := formatPlain(cells)
	return FormattedLine{Plain: &text}
}

// FormatLineStyled renders cells as the styled-spans shape.
func FormatLineStyled(cells []Cell) FormattedLine {
	return FormattedLine{Spans: formatSpans(cells)}
}

// SGR renders a Style as a Select Graphic Rendition escape sequence
// that reproduces it exactly, anchored by a leading reset (SGR 0) so
// a renderer writing this sequence mid-stream never inherits
// whatever attributes were active before it — used by the overlay and
// panel renderers to paint a span's style onto the live terminal.
func SGR(style Style) string {
	params := []string{"0"}
	if style.Bold {
		params = append(params, "1")
	}
	if style.Faint {
		params = append(params, "2")
	}
	if style.Italic {
		params = append(params, "3")
	}
	if style.Underline {
		params = append(params, "4")
	}
	if style.Blink {
		params = append(params, "5")
	}
	if style.Inverse {
		params = append(params, "7")
	}
	if style.Strikethrough {
		params = append(params, "9")
	}
	params = append(params, colorSGR(38, style.Foreground)...)
	params = append(params, colorSGR(48, style.Background)...)
	return "\x1b[" + strings.Join(params, ";") + "m"
}

// colorSGR returns the SGR parameters selecting fg (base=38) or bg
// (base=48) color, or nil for the terminal default.
func colorSGR(base int, c Color) []string {
	switch c.Mode {
	case ColorIndexed:
		return []string{strconv.Itoa(base), "5", strconv.Itoa(int(c.Index))}
	case ColorRGB:
		return []string{strconv.Itoa(base), "2", strconv.Itoa(int(c.R)), strconv.Itoa(int(c.G)), strconv.Itoa(int(c.B))}
	default:
		return nil
	}
}
