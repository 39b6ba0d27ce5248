// Package tui renders the widget view as a bordered terminal frame.
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for the frame.
type Theme struct {
	Primary   lipgloss.Color
	Dim       lipgloss.Color
	Speaking  lipgloss.Color
	Listening lipgloss.Color
	Error     lipgloss.Color
}

var DefaultTheme = Theme{
	Primary:   lipgloss.Color("#ffffff"),
	Dim:       lipgloss.Color("#6e7681"),
	Speaking:  lipgloss.Color("#22c55e"),
	Listening: lipgloss.Color("#3b82f6"),
	Error:     lipgloss.Color("#f87171"),
}

type Styles struct {
	Title     lipgloss.Style
	Label     lipgloss.Style
	Border    lipgloss.Style
	Help      lipgloss.Style
	Speaking  lipgloss.Style
	Listening lipgloss.Style
	Error     lipgloss.Style
}

func NewStyles(t Theme) Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:     lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border:    lipgloss.NewStyle().Foreground(t.Dim),
		Help:      lipgloss.NewStyle().Foreground(t.Dim),
		Speaking:  lipgloss.NewStyle().Bold(true).Foreground(t.Speaking),
		Listening: lipgloss.NewStyle().Bold(true).Foreground(t.Listening),
		Error:     lipgloss.NewStyle().Foreground(t.Error),
	}
}

// Section is a labeled block of lines.
type Section struct {
	Label string
	Lines []string
}

// Frame is a complete screen: title, sections and a help line.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	Help     string
}

// Render draws the frame at the given width. Sections keep their own height.
func (f Frame) Render(width int) string {
	if width < 10 {
		return f.Title
	}

	bc := f.Styles.Border
	maxContentWidth := width - 4

	var lines []string
	lines = append(lines, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	title := f.Styles.Title.Render(f.Title)
	status := f.Styles.Help.Render("[" + f.Status + "]")
	padding := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	lines = append(lines, bc.Render("│")+" "+title+" "+status+strings.Repeat(" ", padding)+" "+bc.Render("│"))

	for _, sec := range f.Sections {
		lines = append(lines, f.renderSection(bc, sec, width, maxContentWidth)...)
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	if f.Help != "" {
		lines = append(lines, f.Styles.Help.Render(f.Help))
	}
	return strings.Join(lines, "\n")
}

func (f Frame) renderSection(bc lipgloss.Style, sec Section, width, maxContentWidth int) []string {
	var lines []string

	labelText := f.Styles.Label.Render(sec.Label)
	padding := max(0, width-3-lipgloss.Width(labelText))
	lines = append(lines, bc.Render("├")+bc.Render("─")+labelText+bc.Render(strings.Repeat("─", padding))+bc.Render("┤"))

	for _, text := range sec.Lines {
		if maxContentWidth > 1 && lipgloss.Width(text) > maxContentWidth {
			text = truncateString(text, maxContentWidth-1) + "…"
		}
		lines = append(lines, bc.Render("│")+" "+text+
			strings.Repeat(" ", max(0, maxContentWidth-lipgloss.Width(text)))+" "+bc.Render("│"))
	}
	return lines
}

// truncateString cuts s to width display cells without splitting runes.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if currentWidth+w > width {
			return string(runes[:i])
		}
		currentWidth += w
	}
	return s
}
