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

package ingestion

import (
	"regexp"
	"strings"

	"github.com/kraklabs/codequal/pkg/storage"
)

// CobolParser extracts symbols from COBOL source with a column-aware
// line scanner.
//
// Fixed-format rules apply when a line carries a sequence area: columns
// 1-6 are ignored and column 7 is the indicator area ('*' or '/' marks
// a comment line, '-' a continuation). Free-format lines are handled by
// trimming.
//
// Extracts:
//   - PROGRAM-ID as the program entry symbol
//   - Sections and paragraphs as procedures
//   - 01-level data items as variables
//   - COPY directives as imports
//   - PERFORM and CALL statements as call sites
type CobolParser struct{}

// NewCobolParser creates a COBOL parser.
func NewCobolParser() *CobolParser {
	return &CobolParser{}
}

// Language returns the language tag.
func (p *CobolParser) Language() string { return LangCobol }

var (
	cobolProgramID = regexp.MustCompile(`^PROGRAM-ID\.\s+([A-Z0-9\-]+)`)
	cobolSection   = regexp.MustCompile(`^([A-Z][A-Z0-9\-]*)\s+SECTION\.`)
	cobolParagraph = regexp.MustCompile(`^([A-Z0-9][A-Z0-9\-]*)\.\s*$`)
	cobolDataItem  = regexp.MustCompile(`^\s*01\s+([A-Z0-9][A-Z0-9\-]+)`)
	cobolCopy      = regexp.MustCompile(`^COPY\s+([A-Z0-9\-]+)`)
	cobolPerform   = regexp.MustCompile(`\bPERFORM\s+([A-Z0-9][A-Z0-9\-]*)`)
	cobolCall      = regexp.MustCompile(`\bCALL\s+'([A-Z0-9\-]+)'`)
)

// cobolReservedNames are division and section headers that match the
// paragraph pattern but are not procedures.
var cobolReservedNames = map[string]bool{
	"IDENTIFICATION": true, "ENVIRONMENT": true, "DATA": true,
	"PROCEDURE": true, "WORKING-STORAGE": true, "LINKAGE": true,
	"FILE": true, "SCREEN": true, "INPUT-OUTPUT": true,
	"FILE-CONTROL": true, "CONFIGURATION": true,
}

// cobolPerformKeywords follow PERFORM without naming a paragraph.
var cobolPerformKeywords = map[string]bool{
	"VARYING": true, "UNTIL": true, "TIMES": true, "THRU": true, "THROUGH": true,
}

// Parse extracts symbols, call sites, and import sites from source.
func (p *CobolParser) Parse(source []byte, path string) (*ParseResult, error) {
	lines := strings.Split(string(source), "\n")
	result := &ParseResult{}

	// Procedure symbols get their end line extended to the start of
	// the next procedure, so collect first and fix ranges after.
	var procedures []int // indices into result.Symbols
	currentCaller := ""

	for lineNum, raw := range lines {
		n := lineNum + 1
		code, comment := cobolCodeArea(raw)
		if comment || code == "" {
			continue
		}
		upper := strings.ToUpper(strings.TrimSpace(code))

		if m := cobolProgramID.FindStringSubmatch(upper); m != nil {
			result.Symbols = append(result.Symbols, RawSymbol{
				Name:      m[1],
				Kind:      storage.KindFunction,
				LineStart: n,
				LineEnd:   n,
				Signature: "PROGRAM-ID. " + m[1],
				Docstring: cobolDocComment(lines, n),
			})
			continue
		}

		if m := cobolSection.FindStringSubmatch(upper); m != nil {
			result.Symbols = append(result.Symbols, RawSymbol{
				Name:      m[1],
				Kind:      storage.KindProcedure,
				LineStart: n,
				LineEnd:   n,
				Signature: m[1] + " SECTION.",
				Docstring: cobolDocComment(lines, n),
			})
			procedures = append(procedures, len(result.Symbols)-1)
			currentCaller = m[1]
			continue
		}

		if m := cobolParagraph.FindStringSubmatch(upper); m != nil && !cobolReservedNames[m[1]] {
			result.Symbols = append(result.Symbols, RawSymbol{
				Name:      m[1],
				Kind:      storage.KindProcedure,
				LineStart: n,
				LineEnd:   n,
				Signature: m[1] + ".",
				Docstring: cobolDocComment(lines, n),
			})
			procedures = append(procedures, len(result.Symbols)-1)
			currentCaller = m[1]
			continue
		}

		if m := cobolDataItem.FindStringSubmatch(upper); m != nil {
			result.Symbols = append(result.Symbols, RawSymbol{
				Name:      m[1],
				Kind:      storage.KindVariable,
				LineStart: n,
				LineEnd:   n,
				Signature: strings.TrimSpace(code),
			})
			continue
		}

		if m := cobolCopy.FindStringSubmatch(upper); m != nil {
			result.Imports = append(result.Imports, ImportSite{
				Module: m[1],
				Line:   n,
				Kind:   "copy",
			})
			continue
		}

		for _, m := range cobolPerform.FindAllStringSubmatch(upper, -1) {
			// PERFORM n TIMES names a count, not a paragraph.
			if cobolPerformKeywords[m[1]] || isAllDigits(m[1]) {
				continue
			}
			result.Calls = append(result.Calls, CallSite{
				CallerName: currentCaller,
				CalleeName: m[1],
				Line:       n,
			})
		}
		for _, m := range cobolCall.FindAllStringSubmatch(upper, -1) {
			result.Calls = append(result.Calls, CallSite{
				CallerName: currentCaller,
				CalleeName: m[1],
				Line:       n,
			})
		}
	}

	// Extend each procedure to just before the next procedure, or EOF.
	for i, idx := range procedures {
		if i+1 < len(procedures) {
			result.Symbols[idx].LineEnd = result.Symbols[procedures[i+1]].LineStart - 1
		} else {
			result.Symbols[idx].LineEnd = len(lines)
		}
	}

	return result, nil
}

// cobolCodeArea strips the sequence and indicator areas from one line.
// Returns the code portion and whether the line is a comment.
func cobolCodeArea(line string) (string, bool) {
	trimmed := strings.TrimRight(line, " \t\r")
	if trimmed == "" {
		return "", false
	}

	// Fixed format: a 6-char sequence area of digits or blanks with an
	// indicator in column 7.
	if len(trimmed) >= 7 && isCobolSequenceArea(trimmed[:6]) {
		switch trimmed[6] {
		case '*', '/':
			return "", true
		case '-', ' ':
			return trimmed[7:], false
		}
	}

	// Free format.
	s := strings.TrimSpace(trimmed)
	if strings.HasPrefix(s, "*") {
		return "", true
	}
	return s, false
}

func isAllDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func isCobolSequenceArea(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != ' ' && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// cobolDocComment collects contiguous '*' comment lines immediately
// above startLine.
func cobolDocComment(lines []string, startLine int) string {
	var docLines []string
	for i := startLine - 1; i >= 1; i-- {
		raw := lines[i-1]
		code, comment := cobolCodeArea(raw)
		if !comment {
			if strings.TrimSpace(code) == "" && len(docLines) == 0 {
				continue
			}
			break
		}
		text := strings.TrimSpace(raw)
		// Drop sequence area if present before the '*'.
		if idx := strings.IndexAny(text, "*/"); idx >= 0 {
			text = strings.TrimSpace(strings.TrimLeft(text[idx:], "*/ "))
		}
		if text != "" {
			docLines = append([]string{text}, docLines...)
		}
	}
	return strings.Join(docLines, " ")
}
