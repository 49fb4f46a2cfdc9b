package display

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected OutputFormat
		wantErr  bool
	}{
		{"text", FormatText, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"JSON", FormatJSON, false},
		{"  yaml  ", FormatYAML, false},
		{"", FormatText, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		format, err := ParseFormat(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.expected, format)
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, string(ThemeDark), cfg.Theme)
	assert.Equal(t, string(FormatText), cfg.OutputFormat)
	assert.Equal(t, 120, cfg.MaxTableWidth)
	assert.Equal(t, os.Stdout, cfg.Writer)
	assert.Equal(t, os.Stderr, cfg.ErrWriter)
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()
	assert.NoError(t, valid.Validate())

	badTheme := DefaultConfig()
	badTheme.Theme = "neon"
	assert.Error(t, badTheme.Validate())

	badFormat := DefaultConfig()
	badFormat.OutputFormat = "xml"
	assert.Error(t, badFormat.Validate())

	badWidth := DefaultConfig()
	badWidth.MaxTableWidth = 10
	assert.Error(t, badWidth.Validate())

	conflicting := DefaultConfig()
	conflicting.VerboseMode = true
	conflicting.QuietMode = true
	assert.Error(t, conflicting.Validate())
}

func TestConfig_QuietModeDisablesDecoration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QuietMode = true

	assert.False(t, cfg.IsColorEnabled())
	assert.False(t, cfg.IsIconsEnabled())
}

func TestConfig_Format_FallsBackToText(t *testing.T) {
	cfg := &Config{OutputFormat: "bogus"}
	assert.Equal(t, FormatText, cfg.Format())
}
