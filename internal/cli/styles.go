// Package cli renders trifetch's terminal output with lipgloss.
package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/trifetch/internal/model"
)

// Monitor palette.
const (
	traceGreen = lipgloss.Color("#00FF41")
	calmTeal   = lipgloss.Color("#4ECDC4")
	alarmAmber = lipgloss.Color("#FFE66D")
	alarmRed   = lipgloss.Color("#FF4D4D")
	gridGray   = lipgloss.Color("#666666")
	bezelGray  = lipgloss.Color("#333333")
)

var (
	SuccessStyle = lipgloss.NewStyle().Foreground(calmTeal)
	WarningStyle = lipgloss.NewStyle().Foreground(alarmAmber)
	ErrorStyle   = lipgloss.NewStyle().Foreground(alarmRed)
	SubtleStyle  = lipgloss.NewStyle().Foreground(gridGray)
	BoldStyle    = lipgloss.NewStyle().Bold(true)

	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(traceGreen)
	panelStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(bezelGray).
			Padding(1, 2)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(bezelGray)
	TableCellStyle = lipgloss.NewStyle().PaddingRight(2)
)

// Glyphs used in status lines and box titles.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	InfoIcon    = "ℹ️"
	HeartIcon   = "🫀"
	ChartIcon   = "📊"
	FolderIcon  = "🗄️"
)

func FormatSuccess(message string) string { return SuccessStyle.Render(SuccessIcon + " " + message) }

func FormatError(message string) string { return ErrorStyle.Render(ErrorIcon + " " + message) }

func FormatWarning(message string) string { return WarningStyle.Render("⚠️ " + message) }

func FormatInfo(message string) string {
	return lipgloss.NewStyle().Foreground(calmTeal).Faint(true).Render(InfoIcon + " " + message)
}

// FormatTitle renders a heading prefixed with the heart glyph.
func FormatTitle(title string) string {
	return headingStyle.MarginBottom(1).Render(HeartIcon + " " + title)
}

// OutcomeStyle colors a classification outcome. Every non-accepted outcome
// fell back to ground truth.
func OutcomeStyle(outcome model.Outcome) lipgloss.Style {
	switch outcome {
	case model.OutcomeAccepted:
		return SuccessStyle
	case model.OutcomeServiceUnavailable:
		return ErrorStyle
	default:
		return WarningStyle
	}
}

// RenderBox draws content in a rounded panel headed by title.
func RenderBox(title, content string) string {
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, headingStyle.Render(title), content))
}
