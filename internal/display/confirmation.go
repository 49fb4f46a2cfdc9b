package display

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ConfirmationDialog asks the operator to approve an action on the
// terminal. It reads from an injected reader so tests can script answers.
type ConfirmationDialog struct {
	colors ColorSystem
	icons  IconSystem
	reader *bufio.Reader
	writer io.Writer
}

// NewConfirmationDialog creates a dialog reading answers from in and
// writing prompts to out
func NewConfirmationDialog(colors ColorSystem, icons IconSystem, in io.Reader, out io.Writer) *ConfirmationDialog {
	return &ConfirmationDialog{
		colors: colors,
		icons:  icons,
		reader: bufio.NewReader(in),
		writer: out,
	}
}

// Confirm asks a yes or no question. The default answer is no, so an
// empty line or EOF declines.
func (cd *ConfirmationDialog) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(cd.writer, "%s [y/N]: ", prompt)

	answer, err := cd.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// ConfirmDestructive asks the operator to type the given phrase before a
// destructive action proceeds. Anything other than the exact phrase
// declines.
func (cd *ConfirmationDialog) ConfirmDestructive(message, phrase string) (bool, error) {
	warning := message
	if cd.colors != nil {
		warning = cd.colors.Colorize(warning, cd.colors.GetTheme().Warning)
	}
	if cd.icons != nil {
		warning = cd.icons.RenderIconWithColor("warning", cd.colors) + " " + warning
	}
	fmt.Fprintln(cd.writer, warning)
	fmt.Fprintf(cd.writer, "Type %q to continue: ", phrase)

	answer, err := cd.readLine()
	if err != nil {
		return false, err
	}
	return answer == phrase, nil
}

// readLine reads one trimmed line. EOF with no input counts as an empty
// answer rather than an error.
func (cd *ConfirmationDialog) readLine() (string, error) {
	line, err := cd.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read confirmation answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}
