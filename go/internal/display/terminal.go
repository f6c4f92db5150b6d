package display

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7AA2F7")).
			Bold(true)

	urgentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F7768E")).
			Bold(true).
			Blink(true)
)

// TerminalRenderer redraws the countdown in place on a single terminal line
type TerminalRenderer struct {
	out   io.Writer
	label string
	mu    sync.Mutex
}

// NewTerminalRenderer writes frames to out prefixed with label
func NewTerminalRenderer(out io.Writer, label string) *TerminalRenderer {
	return &TerminalRenderer{out: out, label: label}
}

func (r *TerminalRenderer) Render(frame Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	style := normalStyle
	if frame.Expiring {
		style = urgentStyle
	}
	text := frame.Text
	if r.label != "" {
		text = r.label + " " + text
	}
	_, err := fmt.Fprintf(r.out, "\r\033[K%s", style.Render(text))
	return err
}

func (r *TerminalRenderer) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprint(r.out, "\r\033[K")
	return err
}
