// Package ui provides terminal rendering helpers for cmd/syncctl, built
// on charmbracelet/lipgloss and muesli/termenv.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// colorEnabled reports whether the current terminal's color profile
// supports ANSI colors at all; on a profile of Ascii (no color, e.g.
// piped output or NO_COLOR set) every Render* function below returns its
// input unstyled.
func colorEnabled() bool {
	return termenv.ColorProfile() != termenv.Ascii
}

// RenderAccent highlights informational status lines (queue/push/pull
// progress headers).
func RenderAccent(s string) string {
	if !colorEnabled() {
		return s
	}
	return accentStyle.Render(s)
}

// RenderPass highlights a successful outcome (push/pull/purge completed
// cleanly).
func RenderPass(s string) string {
	if !colorEnabled() {
		return s
	}
	return passStyle.Render(s)
}

// RenderWarn highlights a non-fatal condition worth the operator's
// attention (e.g. purge aborted, rows skipped during pull).
func RenderWarn(s string) string {
	if !colorEnabled() {
		return s
	}
	return warnStyle.Render(s)
}

// RenderFail highlights a fatal error.
func RenderFail(s string) string {
	if !colorEnabled() {
		return s
	}
	return failStyle.Render(s)
}

// RenderDim de-emphasizes secondary detail (operation ids, timestamps).
func RenderDim(s string) string {
	if !colorEnabled() {
		return s
	}
	return dimStyle.Render(s)
}
