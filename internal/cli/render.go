// Package cli renders daemon answers for the terminal.
package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/edvin/devhost/internal/site"
)

var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#10B981"}
	colorError   = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#F59E0B"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6B7280"}

	headerStyle  = lipgloss.NewStyle().Bold(true)
	runningStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	stoppedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
)

func state(running bool) string {
	if running {
		return runningStyle.Render("running")
	}
	return stoppedStyle.Render("stopped")
}

// Status prints the global state line.
func Status(w io.Writer, running bool) {
	fmt.Fprintf(w, "services: %s\n", state(running))
}

// Sites prints one row per site, columns padded to the widest cell.
func Sites(w io.Writer, sites []site.Site) {
	if len(sites) == 0 {
		fmt.Fprintln(w, stoppedStyle.Render("no sites"))
		return
	}

	header := []string{"NAME", "ALIAS", "PORT", "PHP", "STATE"}
	rows := make([][]string, 0, len(sites))
	for _, s := range sites {
		port := "-"
		if s.Port > 0 {
			port = strconv.Itoa(s.Port)
		}
		rows = append(rows, []string{s.Name, s.Alias, port, orDash(s.PHPVersion), ""})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	cells := make([]string, len(header))
	for i, h := range header {
		cells[i] = headerStyle.Width(widths[i] + 2).Render(h)
	}
	fmt.Fprintln(w, strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))

	for r, row := range rows {
		for i, cell := range row[:len(row)-1] {
			cells[i] = lipgloss.NewStyle().Width(widths[i] + 2).Render(cell)
		}
		cells[len(cells)-1] = state(sites[r].Running)
		fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
}

// Warnings prints component failures of a degraded operation.
func Warnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintf(w, "%s %s\n", warningStyle.Render("warning:"), msg)
	}
}

// Error prints a failure line.
func Error(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", errorStyle.Render("error:"), err)
}

// PHPVersions lists installed versions and marks the current one.
func PHPVersions(w io.Writer, versions []string, current string) {
	if len(versions) == 0 {
		fmt.Fprintln(w, stoppedStyle.Render("no PHP versions installed"))
		return
	}
	for _, v := range versions {
		if v == current {
			fmt.Fprintf(w, "%s %s\n", runningStyle.Render("*"), v)
			continue
		}
		fmt.Fprintf(w, "  %s\n", v)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
