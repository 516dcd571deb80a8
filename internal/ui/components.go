package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Panel renders a rounded-border box with title embedded in the top border.
// width is the total outer width. height=0 means auto-height.
// Border color is Primary when focused, Subtle when not.
func (t Theme) Panel(title, content string, width, height int, focused bool) string {
	borderColor := Subtle
	if focused {
		borderColor = Primary
	}

	colorStyle := t.r.NewStyle().Foreground(borderColor)

	// ╭─ TITLE ─...─╮  total = width
	dashCount := width - lipgloss.Width(title) - 5
	if dashCount < 0 {
		dashCount = 0
	}

	topBorder := colorStyle.Render("╭─ ") + title + colorStyle.Render(" "+strings.Repeat("─", dashCount)+"╮")

	innerWidth := width - 4
	if innerWidth < 0 {
		innerWidth = 0
	}

	bodyStyle := t.r.NewStyle().
		Width(innerWidth).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderLeft(true).
		BorderRight(true).
		BorderBottom(true).
		BorderTop(false).
		BorderForeground(borderColor).
		PaddingLeft(1).
		PaddingRight(1)

	if height > 0 {
		bodyStyle = bodyStyle.Height(height - 2)
	}

	return topBorder + "\n" + bodyStyle.Render(content)
}

// StatusKey renders a key hint for the status bar.
func (t Theme) StatusKey(k, desc string) string {
	return t.KeyHint.Render(k) + t.Status.Render(":"+desc)
}

// Verdict renders PASSED or FAILED in the matching color.
func (t Theme) Verdict(passed bool) string {
	if passed {
		return t.Pass.Render("PASSED")
	}
	return t.Fail.Render("FAILED")
}

// Badge renders a small colored badge.
func (t Theme) Badge(text string, color lipgloss.Color) string {
	return t.r.NewStyle().
		Foreground(lipgloss.Color("230")).
		Background(color).
		Padding(0, 1).
		Render(text)
}

// ResultBadge renders a green PASS or red FAIL badge.
func (t Theme) ResultBadge(passed bool) string {
	if passed {
		return t.Badge("PASS", Success)
	}
	return t.Badge("FAIL", Error)
}
