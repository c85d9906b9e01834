// Package cli renders run summaries, tables and progress for the terminal.
package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Eigen-Consulting/iLEAPP/internal/model"
)

// Palette.
var (
	accent = lipgloss.Color("#5DA9E9")
	green  = lipgloss.Color("#4ECDC4")
	amber  = lipgloss.Color("#FFE66D")
	red    = lipgloss.Color("#FF6B6B")
	gray   = lipgloss.Color("#666666")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(green)
	warnStyle    = lipgloss.NewStyle().Foreground(amber)
	errStyle     = lipgloss.NewStyle().Foreground(red)
	subtleStyle  = lipgloss.NewStyle().Foreground(gray)
	enhanceStyle = lipgloss.NewStyle().Foreground(accent).Italic(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(0, 1)

	tierStyles = map[model.RelevanceTier]lipgloss.Style{
		model.TierHigh:   lipgloss.NewStyle().Bold(true).Foreground(red),
		model.TierMedium: lipgloss.NewStyle().Foreground(amber),
		model.TierLow:    lipgloss.NewStyle().Foreground(gray),
	}
)

// Icons.
const (
	okIcon     = "✓"
	errIcon    = "✗"
	warnIcon   = "⚠️"
	infoIcon   = "ℹ️"
	audioIcon  = "🎧"
	folderIcon = "🗄️"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return okStyle.Render(okIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return errStyle.Render(errIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return warnStyle.Render(warnIcon + " " + message)
}

// FormatInfo formats an info message.
func FormatInfo(message string) string {
	return subtleStyle.Render(infoIcon + " " + message)
}

// FormatTier colors a relevance tier: HIGH stands out, LOW recedes.
func FormatTier(tier model.RelevanceTier) string {
	if s, ok := tierStyles[tier]; ok {
		return s.Render(string(tier))
	}
	return string(tier)
}

// FormatMethod marks database-enhanced records.
func FormatMethod(m model.ClassificationMethod) string {
	if m == model.MethodDatabaseEnhanced {
		return enhanceStyle.Render(string(m))
	}
	return string(m)
}

// RenderBox renders content under a title in a rounded border.
func RenderBox(title, content string) string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title),
		"",
		content,
	))
}
