package display

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(maxWidth int) TableFormatter {
	return NewTableFormatter(NewColorSystem(DarkColorTheme(), true), maxWidth)
}

func TestTableFormatter_Render_WithBorders(t *testing.T) {
	tf := newTestTable(80)
	tf.SetHeaders([]string{"NAME", "ITEMS"})
	tf.AddRow([]string{"recordings-dev", "12"})
	tf.AddRow([]string{"tokens-dev", "3"})

	output := tf.Render()
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")

	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "+"), "top border: %q", lines[0])
	assert.Contains(t, lines[1], "NAME")
	assert.Contains(t, lines[1], "ITEMS")
	assert.Contains(t, lines[2], "+")
	assert.Contains(t, lines[3], "recordings-dev")
	assert.Contains(t, lines[4], "tokens-dev")
	assert.True(t, strings.HasPrefix(lines[5], "+"), "bottom border: %q", lines[5])

	// Every bordered line is equally wide
	assert.Equal(t, len(lines[0]), len(lines[5]))
}

func TestTableFormatter_Render_MinimalStyleHasNoBorders(t *testing.T) {
	tf := newTestTable(80)
	tf.SetStyle(MinimalTableStyle)
	tf.SetHeaders([]string{"NAME"})
	tf.AddRow([]string{"backup-1"})

	output := tf.Render()

	assert.NotContains(t, output, "+")
	assert.NotContains(t, output, "|")
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "backup-1")
}

func TestTableFormatter_Render_AlignRight(t *testing.T) {
	tf := newTestTable(80)
	tf.SetHeaders([]string{"COUNT"})
	tf.SetColumnAlignment(0, AlignRight)
	tf.AddRow([]string{"7"})

	output := tf.Render()

	// The single digit sits at the right edge of its cell
	assert.Contains(t, output, " 7 |")
}

func TestTableFormatter_Render_TruncatesToFitWidth(t *testing.T) {
	tf := newTestTable(30)
	tf.SetHeaders([]string{"NAME", "DESCRIPTION"})
	tf.AddRow([]string{"a", "a very long description that cannot possibly fit"})

	output := tf.Render()

	assert.Contains(t, output, "…")
	for _, line := range strings.Split(strings.TrimRight(output, "\n"), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), 30, "line too wide: %q", line)
	}
}

func TestTableFormatter_Render_EmptyTableWritesNothing(t *testing.T) {
	tf := newTestTable(80)
	assert.Empty(t, tf.Render())
}

func TestTableFormatter_Render_PadsShortRows(t *testing.T) {
	tf := newTestTable(80)
	tf.SetHeaders([]string{"A", "B", "C"})
	tf.AddRow([]string{"1"})

	output := tf.Render()
	assert.Contains(t, output, "1")
}

func TestGetStyleByName(t *testing.T) {
	assert.Equal(t, "rounded", GetStyleByName("rounded").Name)
	assert.Equal(t, "minimal", GetStyleByName("minimal").Name)
	assert.Equal(t, "default", GetStyleByName("anything").Name)
}
