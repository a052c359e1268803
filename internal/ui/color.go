// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui renders the human-readable side of the codequal CLI:
// submit confirmations, repository listings and quality gate verdicts.
//
// Colors respect the --no-color flag and the NO_COLOR environment
// variable, and are dropped automatically when output is piped.
//
// Color conventions across the commands:
//   - Green: passing gate checks, successful submissions
//   - Red: failing gate checks, fatal errors
//   - Yellow: degraded analyses, skipped files
//   - Cyan: progress notes and statistics
//   - Bold: section headers and field labels
//   - Dim: paths, IDs and other secondary detail
package ui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Shared color instances. They honor the global color.NoColor setting
// at print time, so InitColors can flip it after flag parsing.
var (
	// Red marks failing gate checks and fatal errors.
	Red = color.New(color.FgRed)

	// Yellow marks degraded analyses and skipped input.
	Yellow = color.New(color.FgYellow)

	// Green marks passing checks and completed submissions.
	Green = color.New(color.FgGreen)

	// Cyan marks progress notes and counts.
	Cyan = color.New(color.FgCyan)

	// Bold marks headers and field labels.
	Bold = color.New(color.Bold)

	// Dim marks paths, IDs and other secondary detail.
	Dim = color.New(color.Faint)
)

// InitColors applies the --no-color flag. Call it in main() right
// after flag parsing, before any command output. The fatih/color
// library already honors NO_COLOR on its own.
func InitColors(noColor bool) {
	color.NoColor = noColor
}

// prefixed prints msg on one line behind a status glyph.
func prefixed(c *color.Color, glyph, msg string) {
	_, _ = c.Println(glyph + " " + msg)
}

// Success prints a green line with a checkmark.
//
// Example output: "✓ Submitted repository flask (a1b2c3d4)"
func Success(msg string) {
	prefixed(Green, "✓", msg)
}

// Successf is Success with formatting.
func Successf(format string, args ...any) {
	prefixed(Green, "✓", fmt.Sprintf(format, args...))
}

// Warning prints a yellow line with a warning sign.
//
// Example output: "⚠ Parse errors in 3 files"
func Warning(msg string) {
	prefixed(Yellow, "⚠", msg)
}

// Warningf is Warning with formatting.
func Warningf(format string, args ...any) {
	prefixed(Yellow, "⚠", fmt.Sprintf(format, args...))
}

// Error prints a red line with a cross.
//
// Example output: "✗ maximum complexity           worst 27 exceeds limit 10"
func Error(msg string) {
	prefixed(Red, "✗", msg)
}

// Errorf is Error with formatting.
func Errorf(format string, args ...any) {
	prefixed(Red, "✗", fmt.Sprintf(format, args...))
}

// Info prints a cyan line with an info sign.
//
// Example output: "ℹ Analysis queued, check status with: codequal status"
func Info(msg string) {
	prefixed(Cyan, "ℹ", msg)
}

// Infof is Info with formatting.
func Infof(format string, args ...any) {
	prefixed(Cyan, "ℹ", fmt.Sprintf(format, args...))
}

// Header prints a bold section header with an underline sized to the
// visible text.
//
// Example output:
//
//	Repositories
//	============
func Header(text string) {
	_, _ = Bold.Println(text)
	fmt.Println(strings.Repeat("=", utf8.RuneCountInString(text)))
}

// SubHeader prints a bold sub-header without an underline.
//
// Example output: "Failed checks:"
func SubHeader(text string) {
	_, _ = Bold.Println(text)
}

// Label returns text in bold for inline field labels.
//
// Example: fmt.Printf("%s %s\n", ui.Label("Run:"), runID)
func Label(text string) string {
	return Bold.Sprint(text)
}

// DimText returns text dimmed, for paths and IDs alongside the main line.
//
// Example: fmt.Printf("%s %s\n", repo.Name, ui.DimText(repo.OriginURL))
func DimText(text string) string {
	return Dim.Sprint(text)
}

// CountText returns a count in cyan for statistics rows.
//
// Example: fmt.Printf("  Files: %s\n", ui.CountText(repo.FileCount))
func CountText(count int) string {
	return Cyan.Sprint(count)
}
