package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// SpinnerStyle is the frame set of an animated spinner
type SpinnerStyle struct {
	Frames []string
	Delay  time.Duration
}

// Spinner styles. The dots style needs Unicode support.
var (
	DotsSpinnerStyle = SpinnerStyle{
		Frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		Delay:  80 * time.Millisecond,
	}
	LineSpinnerStyle = SpinnerStyle{
		Frames: []string{"-", "\\", "|", "/"},
		Delay:  100 * time.Millisecond,
	}
)

// Spinner animates a status line while a long operation runs. An inactive
// spinner is a no-op, so callers never need to branch on terminal state.
type Spinner struct {
	mu      sync.Mutex
	message string
	style   SpinnerStyle
	writer  io.Writer
	colors  ColorSystem
	active  bool
	stopped bool
	done    chan struct{}
	frame   int
}

func newSpinner(message string, style SpinnerStyle, writer io.Writer, colors ColorSystem, active bool) *Spinner {
	return &Spinner{
		message: message,
		style:   style,
		writer:  writer,
		colors:  colors,
		active:  active,
		done:    make(chan struct{}),
	}
}

func (s *Spinner) start() {
	if !s.active {
		return
	}
	go s.loop()
}

func (s *Spinner) loop() {
	ticker := time.NewTicker(s.style.Delay)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.renderFrame()
		}
	}
}

func (s *Spinner) renderFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	glyph := s.style.Frames[s.frame%len(s.style.Frames)]
	s.frame++
	if s.colors != nil && s.colors.IsColorSupported() {
		glyph = s.colors.Colorize(glyph, s.colors.GetTheme().Info)
	}
	fmt.Fprintf(s.writer, "\r%s %s", glyph, s.message)
}

// Update replaces the spinner message
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop halts the animation and clears the status line. Stopping an
// inactive or already stopped spinner does nothing.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	active := s.active
	width := len(s.message) + 2
	s.mu.Unlock()

	if !active {
		return
	}
	close(s.done)
	fmt.Fprintf(s.writer, "\r%s\r", strings.Repeat(" ", width))
}
