// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package panel

import (
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/wsh-dev/wsh/vt"
)

// MarkdownSpans and CodeSpans render source text into vt.Span
// sequences suitable for a status panel's content, grounded on
// lib/ticketui/markdown.go's goldmark+chroma rendering (an ast.Walk
// dispatcher producing lipgloss-styled terminal text), adapted from
// "render to a lipgloss-styled string for a bubbletea view" to
// "render to vt.Span sequences for a panel." Rather than re-deriving a
// style-to-vt.Style mapping by hand, both render to ANSI-escaped text
// the way the teacher does and then feed that text through the VT
// engine's own parser — the same grid/pen machinery that understands
// PTY output understands chroma/lipgloss's ANSI output, so the
// ANSI-to-Style conversion is never duplicated.
//
// Rows within the returned span sequence are separated by a span
// whose Text is exactly "\n" (panel.Panel has no separate per-row
// structure — spec.md §3 defines its content as one flat ordered span
// sequence).
func MarkdownSpans(source string, width int) []vt.Span {
	rendered := renderMarkdownANSI(source, width)
	return ansiTextToSpans(rendered)
}

// CodeSpans syntax-highlights source in language using Chroma's
// "monokai" terminal theme. An unrecognized language is guessed from
// the source or highlighted with Chroma's plain-text fallback lexer;
// the source is returned unstyled only if highlighting fails.
func CodeSpans(source, language string) []vt.Span {
	var buf strings.Builder
	if err := quick.Highlight(&buf, source, language, "terminal256", "monokai"); err != nil {
		return ansiTextToSpans(source)
	}
	return ansiTextToSpans(buf.String())
}

func ansiTextToSpans(ansiText string) []vt.Span {
	lines := strings.Split(strings.TrimRight(ansiText, "\n"), "\n")
	if len(lines) == 0 {
		return nil
	}

	width := 0
	for _, line := range lines {
		if w := len(line); w > width {
			width = w
		}
	}
	state := vt.NewState(width+1, len(lines), 0)
	state.Feed([]byte(strings.Join(lines, "\r\n")))
	screen := state.Screen(true)

	var spans []vt.Span
	for i, line := range screen.Lines {
		if i > 0 {
			spans = append(spans, vt.Span{Text: "\n"})
		}
		spans = append(spans, trimTrailingBlank(line.Spans)...)
	}
	return spans
}

// trimTrailingBlank drops a trailing run of unstyled blank spans so
// short markdown lines don't carry a full row of padding spaces into
// the panel's span sequence.
func trimTrailingBlank(spans []vt.Span) []vt.Span {
	for len(spans) > 0 {
		last := spans[len(spans)-1]
		if last.Style != (vt.Style{}) || strings.Trim(last.Text, " ") != "" {
			break
		}
		spans = spans[:len(spans)-1]
	}
	return spans
}

var (
	markdownParserInstance goldmark.Markdown
	markdownParserOnce     sync.Once

	markdownLipglossRenderer *lipgloss.Renderer
	markdownLipglossOnce     sync.Once
)

func getMarkdownParser() goldmark.Markdown {
	markdownParserOnce.Do(func() {
		markdownParserInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownParserInstance
}

func getLipglossRenderer() *lipgloss.Renderer {
	markdownLipglossOnce.Do(func() {
		markdownLipglossRenderer = lipgloss.NewRenderer(new(strings.Builder), termenv.WithProfile(termenv.ANSI256))
		markdownLipglossRenderer.SetColorProfile(termenv.ANSI256)
	})
	return markdownLipglossRenderer
}

// renderMarkdownANSI parses markdown source and walks the AST,
// producing ANSI-styled terminal text wrapped to width.
func renderMarkdownANSI(input string, width int) string {
	if input == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	source := []byte(input)
	document := getMarkdownParser().Parser().Parse(text.NewReader(source))

	r := &markdownRenderer{source: source, width: width, lip: getLipglossRenderer()}
	ast.Walk(document, r.walk)
	return strings.TrimRight(r.output.String(), "\n")
}

// markdownRenderer walks a goldmark AST and accumulates ANSI-styled
// terminal text. Grounded directly on lib/ticketui/markdown.go's
// markdownRenderer, trimmed to the block/inline kinds a status panel
// plausibly uses (paragraphs, headings, emphasis, code, lists,
// blockquotes) — link targets, tables, and HTML passthrough are left
// to the original's bubbletea surface, not this one.
type markdownRenderer struct {
	source []byte
	width  int
	lip    *lipgloss.Renderer

	output strings.Builder
	inline strings.Builder

	boldCount   int
	italicCount int
	codeCount   int

	prefix      string
	listCounter []int
}

func (r *markdownRenderer) style() lipgloss.Style {
	return r.lip.NewStyle()
}

func (r *markdownRenderer) styledText(s string) string {
	style := r.style()
	if r.boldCount > 0 {
		style = style.Bold(true)
	}
	if r.italicCount > 0 {
		style = style.Italic(true)
	}
	if r.codeCount > 0 {
		style = style.Foreground(lipgloss.Color("214"))
	}
	return style.Render(s)
}

func (r *markdownRenderer) flushParagraph() {
	content := r.inline.String()
	r.inline.Reset()
	if strings.TrimSpace(content) == "" {
		return
	}
	for _, line := range strings.Split(lipgloss.NewStyle().Width(r.availableWidth()).Render(content), "\n") {
		r.output.WriteString(r.prefix)
		r.output.WriteString(line)
		r.output.WriteString("\n")
	}
}

func (r *markdownRenderer) availableWidth() int {
	w := r.width - len(r.prefix)
	if w < 10 {
		w = 10
	}
	return w
}

func (r *markdownRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			r.inline.Reset()
		} else {
			r.flushParagraph()
			r.output.WriteString("\n")
		}

	case ast.KindHeading:
		if entering {
			r.inline.Reset()
			r.boldCount++
		} else {
			r.boldCount--
			r.flushParagraph()
			r.output.WriteString("\n")
		}

	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		if entering {
			var code strings.Builder
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				code.Write(seg.Value(r.source))
			}
			var language string
			if fenced, ok := n.(*ast.FencedCodeBlock); ok && fenced.Info != nil {
				if fields := strings.Fields(string(fenced.Info.Value(r.source))); len(fields) > 0 {
					language = fields[0]
				}
			}
			spans := CodeSpans(code.String(), language)
			r.output.WriteString(spansToPlainANSI(spans))
			r.output.WriteString("\n")
			return ast.WalkSkipChildren, nil
		}

	case ast.KindBlockquote:
		if entering {
			r.prefix += "| "
		} else {
			r.prefix = r.prefix[:max(0, len(r.prefix)-2)]
		}

	case ast.KindList:
		if entering {
			r.listCounter = append(r.listCounter, 0)
		} else {
			r.listCounter = r.listCounter[:len(r.listCounter)-1]
		}

	case ast.KindListItem:
		if entering {
			idx := len(r.listCounter) - 1
			if idx >= 0 {
				r.listCounter[idx]++
			}
			r.output.WriteString(r.prefix + "- ")
		}

	case ast.KindText:
		if entering {
			t := n.(*ast.Text)
			r.inline.WriteString(r.styledText(string(t.Segment.Value(r.source))))
			if t.SoftLineBreak() {
				r.inline.WriteString(" ")
			}
			if t.HardLineBreak() {
				r.inline.WriteString("\n")
			}
		}

	case ast.KindEmphasis:
		e := n.(*ast.Emphasis)
		if entering {
			if e.Level == 2 {
				r.boldCount++
			} else {
				r.italicCount++
			}
		} else {
			if e.Level == 2 {
				r.boldCount--
			} else {
				r.italicCount--
			}
		}

	case ast.KindCodeSpan:
		if entering {
			r.codeCount++
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					r.inline.WriteString(r.styledText(string(t.Segment.Value(r.source))))
				}
			}
			r.codeCount--
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

// spansToPlainANSI re-renders a span sequence as ANSI text so it can
// be embedded back into a larger document under construction (a
// fenced code block nested inside a paragraph flow, for instance),
// using "\n" marker spans as line breaks.
func spansToPlainANSI(spans []vt.Span) string {
	var buf strings.Builder
	for _, span := range spans {
		if span.Text == "\n" {
			buf.WriteString("\n")
			continue
		}
		buf.WriteString(vt.SGR(span.Style))
		buf.WriteString(span.Text)
	}
	buf.WriteString(sgrReset)
	return buf.String()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
