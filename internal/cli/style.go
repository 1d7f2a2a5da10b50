// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli holds the command-line surface: the cobra root command, its
// subcommands, and the terminal styling helpers they share.
package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	statusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	muted       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	bold        = lipgloss.NewStyle().Bold(true)
)

// IsTTY reports whether stdout should receive colorized output.
func IsTTY() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	termEnv := os.Getenv("TERM")
	if termEnv == "dumb" || termEnv == "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// RenderOK renders a success line, colorized only on a real terminal.
func RenderOK(msg string) string {
	if !IsTTY() {
		return "[OK] " + msg
	}
	return statusOK.Render("✓") + " " + msg
}

// RenderWarn renders a warning line.
func RenderWarn(msg string) string {
	if !IsTTY() {
		return "[WARN] " + msg
	}
	return statusWarn.Render("⚠") + " " + msg
}

// RenderError renders a failure line.
func RenderError(msg string) string {
	if !IsTTY() {
		return "[FAIL] " + msg
	}
	return statusError.Render("✗") + " " + msg
}

// RenderMuted renders secondary text.
func RenderMuted(msg string) string {
	if !IsTTY() {
		return msg
	}
	return muted.Render(msg)
}

// RenderHeader renders a bold section header.
func RenderHeader(msg string) string {
	if !IsTTY() {
		return msg
	}
	return bold.Render(msg)
}

// RenderStatus renders an overall run status, colored by outcome.
func RenderStatus(ok bool, label string) string {
	if !IsTTY() {
		if ok {
			return "[" + label + "]"
		}
		return "[" + label + "]"
	}
	if ok {
		return statusOK.Render("[" + label + "]")
	}
	return statusError.Render("[" + label + "]")
}
