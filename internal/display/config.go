package display

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// OutputFormat selects how command results are rendered
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatYAML OutputFormat = "yaml"
)

// ParseFormat validates and normalizes an output format name
func ParseFormat(name string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(name))) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q, expected text, json or yaml", name)
	}
}

// ThemeName identifies a color theme
type ThemeName string

const (
	ThemeDark         ThemeName = "dark"
	ThemeLight        ThemeName = "light"
	ThemeHighContrast ThemeName = "high-contrast"
	ThemePlain        ThemeName = "plain"
)

// Config holds the visual output options for one command invocation
type Config struct {
	ColorEnabled bool   `mapstructure:"color_enabled" yaml:"color_enabled"`
	Theme        string `mapstructure:"theme" yaml:"theme"`
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
	UseIcons     bool   `mapstructure:"use_icons" yaml:"use_icons"`

	VerboseMode bool `mapstructure:"verbose" yaml:"verbose"`
	QuietMode   bool `mapstructure:"quiet" yaml:"quiet"`

	MaxTableWidth int `mapstructure:"max_table_width" yaml:"max_table_width"`

	// Writer receives rendered results, ErrWriter receives status lines.
	// Keeping them apart leaves json and yaml output parseable.
	Writer    io.Writer `mapstructure:"-" yaml:"-"`
	ErrWriter io.Writer `mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns the display configuration used when nothing is set
func DefaultConfig() *Config {
	return &Config{
		ColorEnabled:  true,
		Theme:         string(ThemeDark),
		OutputFormat:  string(FormatText),
		UseIcons:      true,
		MaxTableWidth: 120,
		Writer:        os.Stdout,
		ErrWriter:     os.Stderr,
	}
}

// SetDefaults fills unset fields with their defaults
func (c *Config) SetDefaults() {
	if c.Theme == "" {
		c.Theme = string(ThemeDark)
	}
	if c.OutputFormat == "" {
		c.OutputFormat = string(FormatText)
	}
	if c.MaxTableWidth == 0 {
		c.MaxTableWidth = 120
	}
	if c.Writer == nil {
		c.Writer = os.Stdout
	}
	if c.ErrWriter == nil {
		c.ErrWriter = os.Stderr
	}
}

// Validate checks the display configuration
func (c *Config) Validate() error {
	var errs []error

	validThemes := []string{string(ThemeDark), string(ThemeLight), string(ThemeHighContrast), string(ThemePlain)}
	if !containsString(validThemes, c.Theme) {
		errs = append(errs, fmt.Errorf("invalid theme %q, must be one of: %s", c.Theme, strings.Join(validThemes, ", ")))
	}

	if _, err := ParseFormat(c.OutputFormat); err != nil {
		errs = append(errs, err)
	}

	if c.MaxTableWidth < 40 || c.MaxTableWidth > 300 {
		errs = append(errs, fmt.Errorf("max table width must be between 40 and 300, got %d", c.MaxTableWidth))
	}

	if c.VerboseMode && c.QuietMode {
		errs = append(errs, fmt.Errorf("verbose and quiet modes are mutually exclusive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("display configuration validation failed: %v", errs)
	}
	return nil
}

// GetColorTheme resolves the configured theme name
func (c *Config) GetColorTheme() ColorTheme {
	return GetThemeByName(c.Theme)
}

// IsColorEnabled reports whether color output is wanted
func (c *Config) IsColorEnabled() bool {
	return c.ColorEnabled && !c.QuietMode
}

// IsIconsEnabled reports whether icons are wanted
func (c *Config) IsIconsEnabled() bool {
	return c.UseIcons && !c.QuietMode
}

// Format returns the parsed output format, defaulting to text
func (c *Config) Format() OutputFormat {
	format, err := ParseFormat(c.OutputFormat)
	if err != nil {
		return FormatText
	}
	return format
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
