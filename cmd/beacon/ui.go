package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/armorclaw/beacon/pkg/protocol"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Bold(true)
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF"))

	levelStyles = map[protocol.Level]lipgloss.Style{
		protocol.LevelDebug:   lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		protocol.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFFF")),
		protocol.LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		protocol.LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		protocol.LevelFatal:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF00FF")).Bold(true),
	}
)

func levelStyle(l protocol.Level) lipgloss.Style {
	if style, ok := levelStyles[l]; ok {
		return style
	}
	return lipgloss.NewStyle()
}

// levelLabel renders a colored level name
func levelLabel(l protocol.Level) string {
	return levelStyle(l).Render(l.String())
}

// levelBadge renders a fixed width, colored level name
func levelBadge(l protocol.Level) string {
	return levelStyle(l).Width(7).Render(l.String())
}

// truncate shortens s to n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
