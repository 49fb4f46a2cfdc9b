package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIconSystem_RenderIcon_ASCIIFallback(t *testing.T) {
	is := NewIconSystem()
	is.SetUnicodeSupport(false)

	assert.Equal(t, "[OK]", is.RenderIcon("success"))
	assert.Equal(t, "[FAIL]", is.RenderIcon("failure"))
	assert.Equal(t, "OK", is.RenderIcon("done"))
	assert.Equal(t, "FAIL", is.RenderIcon("failed"))
	assert.Equal(t, "->", is.RenderIcon("arrow-right"))
}

func TestIconSystem_RenderIcon_Unicode(t *testing.T) {
	is := NewIconSystem()
	is.SetUnicodeSupport(true)

	assert.Equal(t, "✔", is.RenderIcon("success"))
	assert.Equal(t, "✓", is.RenderIcon("done"))
	assert.Equal(t, "✗", is.RenderIcon("failed"))
}

func TestIconSystem_GetIcon_UnknownName(t *testing.T) {
	is := NewIconSystem()

	icon := is.GetIcon("no-such-icon")
	assert.Equal(t, "?", icon.Unicode)
	assert.Equal(t, "?", icon.ASCII)
}

func TestIconSystem_RenderIconWithColor_PlainWhenColorsDisabled(t *testing.T) {
	is := NewIconSystem()
	is.SetUnicodeSupport(false)
	colors := NewColorSystem(DarkColorTheme(), true)

	assert.Equal(t, "[OK]", is.RenderIconWithColor("success", colors))
}

func TestIconSystem_SetUnicodeSupport(t *testing.T) {
	is := NewIconSystem()

	is.SetUnicodeSupport(true)
	assert.True(t, is.IsUnicodeSupported())

	is.SetUnicodeSupport(false)
	assert.False(t, is.IsUnicodeSupported())
}
