// Package ui provides terminal rendering helpers for the tally CLI.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// colored reports whether styled output should be emitted at all.
func colored() bool {
	return IsTerminal() && termenv.ColorProfile() != termenv.Ascii
}

func render(style lipgloss.Style, s string) string {
	if !colored() {
		return s
	}
	return style.Render(s)
}

// RenderAccent highlights a primary element.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderSuccess marks a healthy/positive message.
func RenderSuccess(s string) string { return render(successStyle, s) }

// RenderError marks a failure message.
func RenderError(s string) string { return render(errorStyle, s) }

// RenderWarn marks a degraded-but-working message.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderMuted de-emphasizes secondary detail.
func RenderMuted(s string) string { return render(mutedStyle, s) }

// RenderHeader styles a section heading.
func RenderHeader(s string) string { return render(headerStyle, s) }
