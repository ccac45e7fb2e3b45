package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// styles colours command output when it goes to a terminal.
type styles struct {
	enabled bool
	heading lipgloss.Style
	key     lipgloss.Style
	score   lipgloss.Style
	muted   lipgloss.Style
	warn    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return styles{}
	}
	return styles{
		enabled: true,
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		key:     lipgloss.NewStyle().Bold(true),
		score:   lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
	}
}

func (s styles) render(style lipgloss.Style, text string) string {
	if !s.enabled {
		return text
	}
	return style.Render(text)
}

func (s styles) Heading(text string) string { return s.render(s.heading, text) }
func (s styles) Key(text string) string     { return s.render(s.key, text) }
func (s styles) Score(v float64) string     { return s.render(s.score, fmt.Sprintf("%.3f", v)) }
func (s styles) Muted(text string) string   { return s.render(s.muted, text) }
func (s styles) Warn(text string) string    { return s.render(s.warn, text) }

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
