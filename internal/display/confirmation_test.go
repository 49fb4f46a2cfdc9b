package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDialog(input string) (*ConfirmationDialog, *bytes.Buffer) {
	var out bytes.Buffer
	colors := NewColorSystem(DarkColorTheme(), true)
	icons := NewIconSystem()
	icons.SetUnicodeSupport(false)
	return NewConfirmationDialog(colors, icons, strings.NewReader(input), &out), &out
}

func TestConfirmationDialog_Confirm_AcceptsYes(t *testing.T) {
	for _, answer := range []string{"y\n", "Y\n", "yes\n", "YES\n", "  y  \n"} {
		dialog, _ := newTestDialog(answer)
		confirmed, err := dialog.Confirm("Apply 3 migrations?")
		require.NoError(t, err)
		assert.True(t, confirmed, "answer %q", answer)
	}
}

func TestConfirmationDialog_Confirm_DefaultsToNo(t *testing.T) {
	for _, answer := range []string{"\n", "n\n", "no\n", "maybe\n", ""} {
		dialog, _ := newTestDialog(answer)
		confirmed, err := dialog.Confirm("Apply 3 migrations?")
		require.NoError(t, err)
		assert.False(t, confirmed, "answer %q", answer)
	}
}

func TestConfirmationDialog_Confirm_WritesPrompt(t *testing.T) {
	dialog, out := newTestDialog("y\n")
	_, err := dialog.Confirm("Apply 3 migrations?")
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Apply 3 migrations? [y/N]:")
}

func TestConfirmationDialog_ConfirmDestructive_RequiresExactPhrase(t *testing.T) {
	dialog, out := newTestDialog("recordings-dev\n")
	confirmed, err := dialog.ConfirmDestructive("This deletes every item in the environment.", "recordings-dev")
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.Contains(t, out.String(), "This deletes every item in the environment.")
	assert.Contains(t, out.String(), `Type "recordings-dev" to continue:`)

	dialog, _ = newTestDialog("Recordings-Dev\n")
	confirmed, err = dialog.ConfirmDestructive("This deletes every item.", "recordings-dev")
	require.NoError(t, err)
	assert.False(t, confirmed)
}
