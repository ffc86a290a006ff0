// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the Clearproof CLI.
package ux

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Clearproof color palette - slate blues with a proof-green accent
var (
	ColorAccent  = lipgloss.Color("#4FD6A9") // Proof green - verified, success
	ColorPrimary = lipgloss.Color("#5A9BD4") // Primary blue - brand, headers
	ColorDeep    = lipgloss.Color("#2E5C8A") // Deep blue - borders, accents

	// Semantic colors
	ColorSuccess = lipgloss.Color("#4FD6A9")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#56606B")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
}

// Verdict renders a verdict status string in its semantic color.
func Verdict(status string) string {
	switch status {
	case "verified", "all_verified":
		return Styles.Success.Render(status)
	case "failed", "some_failed", "inconclusive", "consensus_not_reached":
		return Styles.Warning.Render(status)
	case "error":
		return Styles.Error.Render(status)
	default:
		return status
	}
}

// Title prints a bold title line.
func Title(format string, args ...any) {
	fmt.Println(Styles.Title.Render(fmt.Sprintf(format, args...)))
}

// Success prints a success message.
func Success(format string, args ...any) {
	fmt.Println(Styles.Success.Render("✓ ") + fmt.Sprintf(format, args...))
}

// Warn prints a warning message.
func Warn(format string, args ...any) {
	fmt.Println(Styles.Warning.Render("! ") + fmt.Sprintf(format, args...))
}

// Fail prints an error message to stderr.
func Fail(format string, args ...any) {
	fmt.Fprintln(os.Stderr, Styles.Error.Render("✗ ")+fmt.Sprintf(format, args...))
}

// Muted prints a de-emphasized message.
func Muted(format string, args ...any) {
	fmt.Println(Styles.Muted.Render(fmt.Sprintf(format, args...)))
}
