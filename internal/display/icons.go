package display

import (
	"os"
	"unicode/utf8"

	"github.com/mattn/go-isatty"
)

// Icon is a glyph with an ASCII fallback for terminals without Unicode
type Icon struct {
	Unicode string
	ASCII   string
	Color   Color
}

// IconSystem renders named icons with Unicode detection and fallbacks
type IconSystem interface {
	GetIcon(name string) Icon
	RenderIcon(name string) string
	RenderIconWithColor(name string, colors ColorSystem) string
	IsUnicodeSupported() bool
	SetUnicodeSupport(enabled bool)
}

type iconSystem struct {
	unicodeSupported bool
	icons            map[string]Icon
}

// NewIconSystem creates an icon system with Unicode detection
func NewIconSystem() IconSystem {
	is := &iconSystem{
		unicodeSupported: detectUnicodeSupport(),
	}
	is.initializeIcons()
	return is
}

// detectUnicodeSupport reports whether the terminal renders Unicode glyphs.
// FORCE_UNICODE and NO_UNICODE override detection.
func detectUnicodeSupport() bool {
	if os.Getenv("FORCE_UNICODE") != "" {
		return true
	}
	if os.Getenv("NO_UNICODE") != "" {
		return false
	}
	if os.Getenv("LANG") == "C" || os.Getenv("LC_ALL") == "C" {
		return false
	}
	term := os.Getenv("TERM")
	if term == "dumb" || term == "vt100" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func (is *iconSystem) initializeIcons() {
	is.icons = map[string]Icon{
		// Status markers
		"success": {Unicode: "✔", ASCII: "[OK]", Color: ColorGreen},
		"failure": {Unicode: "✖", ASCII: "[FAIL]", Color: ColorRed},
		"warning": {Unicode: "⚠", ASCII: "[WARN]", Color: ColorYellow},
		"info":    {Unicode: "ℹ", ASCII: "[INFO]", Color: ColorCyan},

		// Per-row outcome markers
		"done":    {Unicode: "✓", ASCII: "OK", Color: ColorGreen},
		"failed":  {Unicode: "✗", ASCII: "FAIL", Color: ColorRed},
		"pending": {Unicode: "○", ASCII: "--", Color: ColorWhite},

		// Lifecycle objects
		"table":   {Unicode: "▤", ASCII: "[T]", Color: ColorBlue},
		"index":   {Unicode: "◈", ASCII: "[I]", Color: ColorMagenta},
		"backup":  {Unicode: "⬡", ASCII: "[B]", Color: ColorCyan},
		"restore": {Unicode: "⟲", ASCII: "[R]", Color: ColorCyan},
		"seed":    {Unicode: "❋", ASCII: "[S]", Color: ColorGreen},
		"prune":   {Unicode: "✂", ASCII: "[P]", Color: ColorYellow},

		// Navigation
		"arrow-right": {Unicode: "→", ASCII: "->", Color: ColorBlue},
		"bullet":      {Unicode: "•", ASCII: "*", Color: ColorWhite},
	}
}

// GetIcon returns the named icon, or a question mark placeholder
func (is *iconSystem) GetIcon(name string) Icon {
	if icon, exists := is.icons[name]; exists {
		return icon
	}
	return Icon{Unicode: "?", ASCII: "?", Color: ColorWhite}
}

// RenderIcon returns the Unicode glyph or its ASCII fallback
func (is *iconSystem) RenderIcon(name string) string {
	icon := is.GetIcon(name)
	if is.unicodeSupported && utf8.ValidString(icon.Unicode) {
		return icon.Unicode
	}
	return icon.ASCII
}

// RenderIconWithColor returns the icon colorized with its own color
func (is *iconSystem) RenderIconWithColor(name string, colors ColorSystem) string {
	icon := is.GetIcon(name)
	text := is.RenderIcon(name)
	if colors != nil && colors.IsColorSupported() {
		return colors.Colorize(text, icon.Color)
	}
	return text
}

// IsUnicodeSupported reports whether Unicode glyphs are used
func (is *iconSystem) IsUnicodeSupported() bool {
	return is.unicodeSupported
}

// SetUnicodeSupport overrides Unicode detection
func (is *iconSystem) SetUnicodeSupport(enabled bool) {
	is.unicodeSupported = enabled
}
