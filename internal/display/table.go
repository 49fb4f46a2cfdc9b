package display

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// TableFormatter builds aligned text tables for terminal output
type TableFormatter interface {
	SetHeaders(headers []string)
	AddRow(row []string)
	SetColumnAlignment(column int, alignment Alignment)
	SetStyle(style TableStyle)
	Render() string
	RenderTo(writer io.Writer)
}

// Alignment positions cell content inside its column
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

// TableStyle defines borders and spacing of a rendered table
type TableStyle struct {
	Name            string
	Border          BorderStyle
	HeaderSeparator bool
	Padding         int
}

// BorderStyle holds the characters drawn around and between cells. Empty
// vertical and horizontal characters produce a borderless table.
type BorderStyle struct {
	TopLeft     string
	TopRight    string
	BottomLeft  string
	BottomRight string
	Horizontal  string
	Vertical    string
	TopTee      string
	BottomTee   string
	LeftTee     string
	RightTee    string
	Cross       string
}

var (
	// DefaultTableStyle draws plain ASCII borders
	DefaultTableStyle = TableStyle{
		Name: "default",
		Border: BorderStyle{
			TopLeft: "+", TopRight: "+", BottomLeft: "+", BottomRight: "+",
			Horizontal: "-", Vertical: "|",
			TopTee: "+", BottomTee: "+", LeftTee: "+", RightTee: "+", Cross: "+",
		},
		HeaderSeparator: true,
		Padding:         1,
	}

	// RoundedTableStyle draws Unicode box borders with rounded corners
	RoundedTableStyle = TableStyle{
		Name: "rounded",
		Border: BorderStyle{
			TopLeft: "╭", TopRight: "╮", BottomLeft: "╰", BottomRight: "╯",
			Horizontal: "─", Vertical: "│",
			TopTee: "┬", BottomTee: "┴", LeftTee: "├", RightTee: "┤", Cross: "┼",
		},
		HeaderSeparator: true,
		Padding:         1,
	}

	// MinimalTableStyle draws no borders, columns separated by spacing
	MinimalTableStyle = TableStyle{
		Name:            "minimal",
		Border:          BorderStyle{},
		HeaderSeparator: false,
		Padding:         1,
	}
)

// GetStyleByName returns the named table style, defaulting to ASCII borders
func GetStyleByName(name string) TableStyle {
	switch name {
	case "rounded":
		return RoundedTableStyle
	case "minimal":
		return MinimalTableStyle
	default:
		return DefaultTableStyle
	}
}

const minColumnWidth = 5

type tableFormatter struct {
	headers    []string
	rows       [][]string
	alignments map[int]Alignment
	style      TableStyle
	colors     ColorSystem
	maxWidth   int
}

// NewTableFormatter creates a table formatter. Headers are colorized with
// the color system's primary theme color. A maxWidth of zero means the
// terminal width is detected at render time.
func NewTableFormatter(colors ColorSystem, maxWidth int) TableFormatter {
	return &tableFormatter{
		alignments: make(map[int]Alignment),
		style:      DefaultTableStyle,
		colors:     colors,
		maxWidth:   maxWidth,
	}
}

func (tf *tableFormatter) SetHeaders(headers []string) {
	tf.headers = headers
}

func (tf *tableFormatter) AddRow(row []string) {
	tf.rows = append(tf.rows, row)
}

func (tf *tableFormatter) SetColumnAlignment(column int, alignment Alignment) {
	tf.alignments[column] = alignment
}

func (tf *tableFormatter) SetStyle(style TableStyle) {
	tf.style = style
}

// Render returns the formatted table as a string
func (tf *tableFormatter) Render() string {
	var sb strings.Builder
	tf.RenderTo(&sb)
	return sb.String()
}

// RenderTo writes the formatted table to the writer
func (tf *tableFormatter) RenderTo(writer io.Writer) {
	columns := tf.columnCount()
	if columns == 0 {
		return
	}

	widths := tf.fitColumnWidths(tf.columnWidths(columns))
	bordered := tf.style.Border.Vertical != ""

	if bordered {
		tf.writeRule(writer, widths, tf.style.Border.TopLeft, tf.style.Border.TopTee, tf.style.Border.TopRight)
	}
	if len(tf.headers) > 0 {
		tf.writeRow(writer, tf.headers, widths, true)
		if tf.style.HeaderSeparator && bordered {
			tf.writeRule(writer, widths, tf.style.Border.LeftTee, tf.style.Border.Cross, tf.style.Border.RightTee)
		}
	}
	for _, row := range tf.rows {
		tf.writeRow(writer, row, widths, false)
	}
	if bordered {
		tf.writeRule(writer, widths, tf.style.Border.BottomLeft, tf.style.Border.BottomTee, tf.style.Border.BottomRight)
	}
}

func (tf *tableFormatter) columnCount() int {
	columns := len(tf.headers)
	for _, row := range tf.rows {
		if len(row) > columns {
			columns = len(row)
		}
	}
	return columns
}

// columnWidths computes the natural width of every column
func (tf *tableFormatter) columnWidths(columns int) []int {
	widths := make([]int, columns)
	for i, header := range tf.headers {
		if w := utf8.RuneCountInString(header); w > widths[i] {
			widths[i] = w
		}
	}
	for _, row := range tf.rows {
		for i, cell := range row {
			if i >= columns {
				break
			}
			if w := utf8.RuneCountInString(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	return widths
}

// fitColumnWidths shrinks the widest columns until the table fits the
// available width. Columns never shrink below minColumnWidth.
func (tf *tableFormatter) fitColumnWidths(widths []int) []int {
	limit := tf.maxWidth
	if limit <= 0 {
		limit = getTerminalWidth()
	}

	overhead := len(widths)*tf.style.Padding*2 + len(widths) + 1
	total := overhead
	for _, w := range widths {
		total += w
	}

	for total > limit {
		widest := 0
		for i, w := range widths {
			if w > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minColumnWidth {
			break
		}
		widths[widest]--
		total--
	}
	return widths
}

func (tf *tableFormatter) writeRule(writer io.Writer, widths []int, left, middle, right string) {
	var sb strings.Builder
	sb.WriteString(left)
	for i, w := range widths {
		sb.WriteString(strings.Repeat(tf.style.Border.Horizontal, w+tf.style.Padding*2))
		if i < len(widths)-1 {
			sb.WriteString(middle)
		}
	}
	sb.WriteString(right)
	fmt.Fprintln(writer, sb.String())
}

func (tf *tableFormatter) writeRow(writer io.Writer, cells []string, widths []int, isHeader bool) {
	vertical := tf.style.Border.Vertical
	var sb strings.Builder
	sb.WriteString(vertical)
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		sb.WriteString(tf.formatCell(cell, w, tf.alignments[i], isHeader))
		if i < len(widths)-1 || vertical != "" {
			sb.WriteString(vertical)
		}
	}
	fmt.Fprintln(writer, strings.TrimRight(sb.String(), " "))
}

func (tf *tableFormatter) formatCell(content string, width int, alignment Alignment, isHeader bool) string {
	content = truncate(content, width)

	padTotal := width - utf8.RuneCountInString(content)
	var left, right int
	switch alignment {
	case AlignCenter:
		left = padTotal / 2
		right = padTotal - left
	case AlignRight:
		left = padTotal
	default:
		right = padTotal
	}
	left += tf.style.Padding
	right += tf.style.Padding

	if isHeader && tf.colors != nil && tf.colors.IsColorSupported() {
		content = tf.colors.Colorize(content, tf.colors.GetTheme().Primary)
	}
	return strings.Repeat(" ", left) + content + strings.Repeat(" ", right)
}

// truncate cuts the content to width runes, marking the cut with an ellipsis
func truncate(content string, width int) string {
	if utf8.RuneCountInString(content) <= width {
		return content
	}
	if width <= 1 {
		return strings.Repeat(".", width)
	}
	runes := []rune(content)
	return string(runes[:width-1]) + "…"
}

// getTerminalWidth returns the terminal width, or 80 when detection fails
func getTerminalWidth() int {
	width, _, err := term.GetSize(0)
	if err != nil || width <= 0 {
		return 80
	}
	return width
}
