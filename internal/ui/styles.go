// Package ui holds the lipgloss palette and styles shared by the plain
// progress report and the live view.
package ui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	Primary = lipgloss.Color("63")  // Purple/blue
	Accent  = lipgloss.Color("205") // Pink
	Success = lipgloss.Color("78")  // Green
	Warning = lipgloss.Color("214") // Orange
	Error   = lipgloss.Color("196") // Red
	Subtle  = lipgloss.Color("241") // Gray
	Surface = lipgloss.Color("236") // Dark gray
	Text    = lipgloss.Color("252") // Light gray
	TextDim = lipgloss.Color("245") // Dimmer text
)

// Theme is a set of styles bound to one output. Styles rendered through a
// writer that is not a terminal come out as plain text.
type Theme struct {
	r *lipgloss.Renderer

	Title   lipgloss.Style
	Header  lipgloss.Style
	Pass    lipgloss.Style
	Fail    lipgloss.Style
	Skip    lipgloss.Style
	Warn    lipgloss.Style
	Bold    lipgloss.Style
	Dim     lipgloss.Style
	Accent  lipgloss.Style
	Status  lipgloss.Style
	KeyHint lipgloss.Style
}

// NewTheme builds a theme whose color profile matches w.
func NewTheme(w io.Writer) Theme {
	return newTheme(lipgloss.NewRenderer(w))
}

// DefaultTheme renders for standard output.
func DefaultTheme() Theme {
	return newTheme(lipgloss.DefaultRenderer())
}

func newTheme(r *lipgloss.Renderer) Theme {
	return Theme{
		r: r,

		Title: r.NewStyle().
			Foreground(Primary).
			Bold(true).
			MarginBottom(1),
		Header: r.NewStyle().
			Foreground(Primary).
			Bold(true),
		Pass:   r.NewStyle().Foreground(Success).Bold(true),
		Fail:   r.NewStyle().Foreground(Error).Bold(true),
		Skip:   r.NewStyle().Foreground(Subtle),
		Warn:   r.NewStyle().Foreground(Warning),
		Bold:   r.NewStyle().Bold(true),
		Dim:    r.NewStyle().Foreground(TextDim),
		Accent: r.NewStyle().Foreground(Accent),
		Status: r.NewStyle().
			Foreground(TextDim).
			Background(Surface).
			Padding(0, 1),
		KeyHint: r.NewStyle().
			Foreground(Text).
			Background(Surface).
			Bold(true),
	}
}

// Renderer returns the renderer the theme was built for.
func (t Theme) Renderer() *lipgloss.Renderer { return t.r }
