// Package ui renders the client's cards, modals and forms for a terminal.
package ui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	Primary     = lipgloss.Color("#1F4E79")
	Accent      = lipgloss.Color("#8BC34A")
	Muted       = lipgloss.Color("#8A94A6")
	Destructive = lipgloss.Color("#E53935")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
)

// Styles groups every style the renderers use.
type Styles struct {
	Title   lipgloss.Style
	Section lipgloss.Style
	Card    lipgloss.Style
	Modal   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Action  lipgloss.Style
}

// NewStyles builds styles for output written to w. Color is dropped
// automatically when w is not a terminal.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Title:   r.NewStyle().Bold(true).Foreground(Primary),
		Section: r.NewStyle().Bold(true).Underline(true),
		Card: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Muted).
			Padding(0, 1).
			Width(60),
		Modal: r.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(Primary).
			Padding(0, 1).
			Width(64),
		Label:   r.NewStyle().Foreground(Muted),
		Value:   r.NewStyle(),
		Muted:   r.NewStyle().Foreground(Muted).Italic(true),
		Success: r.NewStyle().Foreground(Accent).Bold(true),
		Error:   r.NewStyle().Foreground(Destructive).Bold(true),
		Warning: r.NewStyle().Foreground(Warning),
		Info:    r.NewStyle().Foreground(Info),
		Action:  r.NewStyle().Foreground(Info),
	}
}
