// Package display renders lifecycle command results for terminals and
// scripts. Text output goes through themed colors, icons and tables, while
// json and yaml output stays plain and parseable. Status lines are written
// to a separate writer so structured output is never interleaved with them.
package display

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

// Service is the single entry point commands use for terminal output
type Service interface {
	// Render writes the value in the configured output format
	Render(v interface{}) error

	// Status lines, written to the error writer
	Success(message string)
	Warning(message string)
	Error(message string)
	Info(message string)

	// Text building blocks
	PrintHeader(title string)
	PrintTable(headers []string, rows [][]string)

	// StartSpinner animates a status line until Stop is called. The
	// spinner stays inactive when output is quiet or not a terminal.
	StartSpinner(message string) *Spinner

	// NewConfirmationDialog builds an interactive dialog reading from in
	NewConfirmationDialog(in io.Reader) *ConfirmationDialog

	SetOutput(writer io.Writer)
	GetConfig() *Config
}

type service struct {
	config    *Config
	colors    ColorSystem
	icons     IconSystem
	writer    io.Writer
	errWriter io.Writer
}

// NewService creates a display service from the given configuration. A nil
// configuration falls back to defaults.
func NewService(config *Config) Service {
	if config == nil {
		config = DefaultConfig()
	}
	config.SetDefaults()

	icons := NewIconSystem()
	if !config.IsIconsEnabled() {
		icons.SetUnicodeSupport(false)
	}

	return &service{
		config:    config,
		colors:    NewColorSystem(config.GetColorTheme(), !config.IsColorEnabled()),
		icons:     icons,
		writer:    config.Writer,
		errWriter: config.ErrWriter,
	}
}

// Render writes the value in the configured format. Text rendering knows
// the lifecycle report types and falls back to yaml for anything else.
func (s *service) Render(v interface{}) error {
	switch s.config.Format() {
	case FormatJSON:
		return s.renderJSON(v)
	case FormatYAML:
		return s.renderYAML(v)
	default:
		return s.renderText(v)
	}
}

func (s *service) renderJSON(v interface{}) error {
	encoder := json.NewEncoder(s.writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output as json: %w", err)
	}
	return nil
}

func (s *service) renderYAML(v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output as yaml: %w", err)
	}
	_, err = s.writer.Write(data)
	return err
}

// Success prints a success status line
func (s *service) Success(message string) {
	s.printStatusLine("SUCCESS", "success", message, s.colors.GetTheme().Success)
}

// Warning prints a warning status line
func (s *service) Warning(message string) {
	s.printStatusLine("WARNING", "warning", message, s.colors.GetTheme().Warning)
}

// Error prints an error status line. Errors print even in quiet mode.
func (s *service) Error(message string) {
	s.printStatusLine("ERROR", "failure", message, s.colors.GetTheme().Error)
}

// Info prints an informational status line, suppressed in quiet mode
func (s *service) Info(message string) {
	if s.config.QuietMode {
		return
	}
	s.printStatusLine("INFO", "info", message, s.colors.GetTheme().Info)
}

func (s *service) printStatusLine(level, iconName, message string, clr Color) {
	var prefix string
	if s.config.IsIconsEnabled() && s.icons.IsUnicodeSupported() {
		prefix = s.icons.RenderIconWithColor(iconName, s.colors)
	} else {
		prefix = s.colors.Colorize("["+level+"]", clr)
	}
	fmt.Fprintf(s.errWriter, "%s %s\n", prefix, message)
}

// PrintHeader prints an underlined title, suppressed in quiet mode
func (s *service) PrintHeader(title string) {
	if s.config.QuietMode {
		return
	}
	underline := strings.Repeat("=", len(title))
	text := fmt.Sprintf("\n%s\n%s\n", title, underline)
	if s.colors.IsColorSupported() {
		text = s.colors.Colorize(text, s.colors.GetTheme().Primary)
	}
	fmt.Fprint(s.writer, text)
}

// PrintTable prints an aligned table in the configured width
func (s *service) PrintTable(headers []string, rows [][]string) {
	formatter := NewTableFormatter(s.colors, s.tableWidth())
	formatter.SetHeaders(headers)
	for _, row := range rows {
		formatter.AddRow(row)
	}
	formatter.RenderTo(s.writer)
}

// tableWidth bounds tables by the configured maximum and the terminal
func (s *service) tableWidth() int {
	width := getTerminalWidth()
	if s.config.MaxTableWidth > 0 && s.config.MaxTableWidth < width {
		return s.config.MaxTableWidth
	}
	return width
}

// StartSpinner starts a spinner on the error writer. The spinner stays
// inactive when quiet mode is on or the error writer is not a terminal.
func (s *service) StartSpinner(message string) *Spinner {
	style := LineSpinnerStyle
	if s.icons.IsUnicodeSupported() {
		style = DotsSpinnerStyle
	}
	active := !s.config.QuietMode && writerIsTerminal(s.errWriter)
	spinner := newSpinner(message, style, s.errWriter, s.colors, active)
	spinner.start()
	return spinner
}

// NewConfirmationDialog builds a dialog that prompts on the error writer
func (s *service) NewConfirmationDialog(in io.Reader) *ConfirmationDialog {
	return NewConfirmationDialog(s.colors, s.icons, in, s.errWriter)
}

// SetOutput redirects rendered results to the writer
func (s *service) SetOutput(writer io.Writer) {
	s.writer = writer
	s.config.Writer = writer
}

// GetConfig returns the active display configuration
func (s *service) GetConfig() *Config {
	return s.config
}

// writerIsTerminal reports whether the writer is an interactive terminal
func writerIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
