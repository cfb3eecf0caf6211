package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used in text mode.
type Styles struct {
	Header  lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	StatusSuccess   lipgloss.Style
	StatusFailed    lipgloss.Style
	StatusSkipped   lipgloss.Style
	StatusCancelled lipgloss.Style
}

// NewStyles returns the styles for a terminal. Without colour every style
// renders plain text.
func NewStyles(color bool) *Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return &Styles{
			Header: plain, Bold: plain, Muted: plain, Success: plain, Warning: plain, Error: plain, Info: plain,
			StatusSuccess: plain, StatusFailed: plain, StatusSkipped: plain, StatusCancelled: plain,
		}
	}
	green := lipgloss.Color("2")
	red := lipgloss.Color("1")
	yellow := lipgloss.Color("3")
	grey := lipgloss.Color("8")
	return &Styles{
		Header:          lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")),
		Bold:            lipgloss.NewStyle().Bold(true),
		Muted:           lipgloss.NewStyle().Foreground(grey),
		Success:         lipgloss.NewStyle().Foreground(green),
		Warning:         lipgloss.NewStyle().Foreground(yellow),
		Error:           lipgloss.NewStyle().Foreground(red),
		Info:            lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		StatusSuccess:   lipgloss.NewStyle().Foreground(green).Bold(true),
		StatusFailed:    lipgloss.NewStyle().Foreground(red).Bold(true),
		StatusSkipped:   lipgloss.NewStyle().Foreground(yellow),
		StatusCancelled: lipgloss.NewStyle().Foreground(grey),
	}
}

// Status returns the style for a result or run status.
func (s *Styles) Status(status string) lipgloss.Style {
	switch status {
	case "success", "completed":
		return s.StatusSuccess
	case "failed":
		return s.StatusFailed
	case "skipped":
		return s.StatusSkipped
	case "cancelled":
		return s.StatusCancelled
	default:
		return s.Info
	}
}

// statusSymbol is the marker printed before a status line.
func statusSymbol(status string) string {
	switch status {
	case "success", "completed":
		return "✓"
	case "failed":
		return "✗"
	case "skipped":
		return "↷"
	case "cancelled":
		return "○"
	default:
		return "•"
	}
}
