// Copyright (C) 2026 Dockhand Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides styled terminal output for the dockhand CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Dockhand color palette - harbor blues and signal colors
var (
	ColorHarborBlue = lipgloss.Color("#3B82C4") // Primary brand color
	ColorDeepWater  = lipgloss.Color("#1E4A6D") // Borders, accents
	ColorRope       = lipgloss.Color("#C4A35B") // Highlights
	ColorFog        = lipgloss.Color("#6B7A87") // Muted text

	ColorSuccess = lipgloss.Color("#3FB68B") // Green for success
	ColorWarning = lipgloss.Color("#F4D03F") // Amber for warnings
	ColorError   = lipgloss.Color("#E74C3C") // Red for errors
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Stage   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorHarborBlue),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorFog),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Stage:   lipgloss.NewStyle().Bold(true).Foreground(ColorRope),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorDeepWater).
		Padding(0, 1),
}

// Icon provides themed status icons.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

var (
	mu  sync.Mutex
	out io.Writer = os.Stdout
)

// SetWriter redirects all output helpers. Tests use this to capture output.
func SetWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

func writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

// Title prints a styled title line.
func Title(text string) {
	fmt.Fprintln(writer(), Styles.Title.Render(text))
}

// Stage prints a pipeline stage banner.
func Stage(format string, a ...any) {
	text := fmt.Sprintf(format, a...)
	fmt.Fprintf(writer(), "%s %s\n", Styles.Stage.Render(string(IconArrow)), Styles.Stage.Render(text))
}

// Success prints a success message with checkmark.
func Success(format string, a ...any) {
	fmt.Fprintf(writer(), "%s %s\n", IconSuccess.Render(), fmt.Sprintf(format, a...))
}

// Warning prints a warning message.
func Warning(format string, a ...any) {
	fmt.Fprintf(writer(), "%s %s\n", IconWarning.Render(), Styles.Warning.Render(fmt.Sprintf(format, a...)))
}

// Error prints an error message.
func Error(format string, a ...any) {
	fmt.Fprintf(writer(), "%s %s\n", IconError.Render(), Styles.Error.Render(fmt.Sprintf(format, a...)))
}

// Info prints an unstyled informational line.
func Info(format string, a ...any) {
	fmt.Fprintf(writer(), "%s %s\n", string(IconBullet), fmt.Sprintf(format, a...))
}

// Muted prints a de-emphasized line.
func Muted(format string, a ...any) {
	fmt.Fprintln(writer(), Styles.Muted.Render(fmt.Sprintf(format, a...)))
}
