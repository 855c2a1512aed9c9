package diagnostic

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
)

// tabWidth is the number of columns a tab is expanded to in source snippets.
const tabWidth = 4

// RenderOptions controls the human-readable report.
type RenderOptions struct {
	Color bool // Emit ANSI colour codes
}

// Position converts a byte offset into a 1-based line and column. Columns count
// runes, not bytes. Offsets past the end clamp to the end of src.
func Position(src []byte, offset int) (line, col int) {
	if offset > len(src) {
		offset = len(src)
	}
	if offset < 0 {
		offset = 0
	}
	line = 1 + bytes.Count(src[:offset], []byte{'\n'})
	start := bytes.LastIndexByte(src[:offset], '\n') + 1
	col = 1 + utf8.RuneCount(src[start:offset])
	return line, col
}

// Render writes the detailed report for a flattened diagnostic list. Sources maps
// filenames to their content; labels in files without a source are reported by
// byte offset only.
func Render(w io.Writer, flat []*Node, sources map[string][]byte, opts RenderOptions) error {
	for i, n := range flat {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, renderNode(n, sources[n.Filename], opts)); err != nil {
			return err
		}
	}
	return nil
}

// RenderString is Render into a string.
func RenderString(flat []*Node, sources map[string][]byte, opts RenderOptions) string {
	var sb strings.Builder
	_ = Render(&sb, flat, sources, opts)
	return sb.String()
}

func renderNode(n *Node, src []byte, opts RenderOptions) string {
	var sb strings.Builder

	severity := n.Severity
	if severity == "" {
		severity = SeverityError
	}
	sb.WriteString(paint(opts, severityStyle(severity), severity))
	sb.WriteString(": ")
	sb.WriteString(paint(opts, color.Style{color.OpBold}, n.Message))
	sb.WriteString("\n")

	gutter := gutterWidth(n, src)
	pad := strings.Repeat(" ", gutter)
	bar := paint(opts, color.Style{color.FgBlue}, "|")

	switch {
	case len(n.Labels) > 0 && src != nil:
		line, col := Position(src, n.Labels[0].Span.Offset)
		fmt.Fprintf(&sb, "%s%s %s:%d:%d\n", pad, paint(opts, color.Style{color.FgBlue}, "-->"), n.Filename, line, col)
		fmt.Fprintf(&sb, "%s %s\n", pad, bar)
		for _, l := range n.Labels {
			writeSnippet(&sb, src, l, gutter, bar, opts)
		}
	case len(n.Labels) > 0:
		fmt.Fprintf(&sb, "%s%s %s\n", pad, paint(opts, color.Style{color.FgBlue}, "-->"), locationOrUnknown(n.Filename))
		for _, l := range n.Labels {
			fmt.Fprintf(&sb, "%s %s at byte %d (length %d)", pad, bar, l.Span.Offset, l.Span.Length)
			if l.Label != "" {
				sb.WriteString(": " + l.Label)
			}
			sb.WriteString("\n")
		}
	case n.Filename != "":
		fmt.Fprintf(&sb, "%s%s %s\n", pad, paint(opts, color.Style{color.FgBlue}, "-->"), n.Filename)
	}

	for _, cause := range n.Causes {
		fmt.Fprintf(&sb, "%s = caused by: %s\n", pad, cause)
	}
	return sb.String()
}

func writeSnippet(sb *strings.Builder, src []byte, l Label, gutter int, bar string, opts RenderOptions) {
	line, _ := Position(src, l.Span.Offset)
	lineStart, lineEnd := lineBounds(src, l.Span.Offset)
	text := string(src[lineStart:lineEnd])

	num := strconv.Itoa(line)
	fmt.Fprintf(sb, "%s%s %s %s\n", strings.Repeat(" ", gutter-len(num)), num, bar, expandTabs(text))

	offset := min(l.Span.Offset, len(src))
	prefix := expandTabs(string(src[lineStart:offset]))
	end := max(min(offset+l.Span.Length, lineEnd), offset)
	width := runewidth.StringWidth(expandTabs(string(src[offset:end])))
	if width == 0 {
		width = 1
	}

	marker := paint(opts, color.Style{color.FgRed, color.OpBold}, strings.Repeat("^", width))
	fmt.Fprintf(sb, "%s %s %s%s", strings.Repeat(" ", gutter), bar, strings.Repeat(" ", runewidth.StringWidth(prefix)), marker)
	if l.Label != "" {
		sb.WriteString(" " + paint(opts, color.Style{color.FgRed}, l.Label))
	}
	sb.WriteString("\n")
}

func lineBounds(src []byte, offset int) (start, end int) {
	offset = min(max(offset, 0), len(src))
	start = bytes.LastIndexByte(src[:offset], '\n') + 1
	end = bytes.IndexByte(src[offset:], '\n')
	if end < 0 {
		end = len(src)
	} else {
		end += offset
	}
	if end > start && src[end-1] == '\r' {
		end--
	}
	return start, end
}

func gutterWidth(n *Node, src []byte) int {
	width := 1
	if src == nil {
		return 2
	}
	for _, l := range n.Labels {
		line, _ := Position(src, l.Span.Offset)
		if w := len(strconv.Itoa(line)); w > width {
			width = w
		}
	}
	return width + 1
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", strings.Repeat(" ", tabWidth))
}

func locationOrUnknown(filename string) string {
	if filename == "" {
		return "<unknown>"
	}
	return filename
}

func severityStyle(severity string) color.Style {
	switch severity {
	case SeverityWarning:
		return color.Style{color.FgYellow, color.OpBold}
	case SeverityAdvice:
		return color.Style{color.FgCyan, color.OpBold}
	default:
		return color.Style{color.FgRed, color.OpBold}
	}
}

func paint(opts RenderOptions, style color.Style, s string) string {
	if !opts.Color {
		return s
	}
	return style.Sprint(s)
}
