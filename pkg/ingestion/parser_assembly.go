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

// AssemblyParser extracts symbols from assembly source (GAS and NASM
// syntaxes) with a line scanner.
//
// Extracts:
//   - Labels followed by instructions as functions; local labels
//     (L-prefixed, compiler generated) are skipped
//   - Labels inside data sections (.data/.bss/.rodata) as variables
//   - .include / %include directives as imports
//   - call/jsr/bl/jal instructions as call sites
//
// Contiguous comment lines (';' or '//' or '#') directly above a label
// become its docstring.
type AssemblyParser struct{}

// NewAssemblyParser creates an assembly parser.
func NewAssemblyParser() *AssemblyParser {
	return &AssemblyParser{}
}

// Language returns the language tag.
func (p *AssemblyParser) Language() string { return LangAssembly }

var (
	asmLabel   = regexp.MustCompile(`^([._a-zA-Z][._a-zA-Z0-9]*):`)
	asmSection = regexp.MustCompile(`^\.(text|data|bss|rodata)(?:\s|$)`)
	asmSectDir = regexp.MustCompile(`^(?:\.section\s+|section\s+)\.?([._a-zA-Z0-9]+)`)
	asmInclude = regexp.MustCompile(`^(?:\.include|%include)\s+"([^"]+)"`)
	asmCall    = regexp.MustCompile(`\b(call|jsr|bl|jal)\s+([._a-zA-Z][._a-zA-Z0-9]*)`)
)

// asmRegisters are operand names that follow indirect calls and must
// not be treated as callee symbols.
var asmRegisters = map[string]bool{
	"rax": true, "rbx": true, "rcx": true, "rdx": true,
	"rsi": true, "rdi": true, "rbp": true, "rsp": true,
	"eax": true, "ebx": true, "ecx": true, "edx": true,
	"esi": true, "edi": true, "ebp": true, "esp": true,
	"r8": true, "r9": true, "r10": true, "r11": true,
	"r12": true, "r13": true, "r14": true, "r15": true,
	"lr": true, "pc": true, "sp": true, "fp": true,
}

// dataSections hold storage, not code; labels there are variables.
var dataSections = map[string]bool{"data": true, "bss": true, "rodata": true}

// Parse extracts symbols, call sites, and import sites from source.
func (p *AssemblyParser) Parse(source []byte, path string) (*ParseResult, error) {
	lines := strings.Split(string(source), "\n")
	result := &ParseResult{}

	section := "text"
	currentCaller := ""
	var functionIdx []int // indices of function symbols, for range fixes

	for lineNum, raw := range lines {
		n := lineNum + 1
		line := strings.TrimSpace(raw)
		if line == "" || isAsmComment(line) {
			continue
		}

		if m := asmSection.FindStringSubmatch(line); m != nil {
			section = m[1]
			continue
		}
		if m := asmSectDir.FindStringSubmatch(line); m != nil {
			name := strings.TrimPrefix(m[1], ".")
			if name == "text" || dataSections[name] {
				section = name
			}
			continue
		}

		if m := asmInclude.FindStringSubmatch(line); m != nil {
			result.Imports = append(result.Imports, ImportSite{
				Module: m[1],
				Line:   n,
				Kind:   "include",
			})
			continue
		}

		if m := asmLabel.FindStringSubmatch(line); m != nil {
			name := m[1]
			if strings.HasPrefix(name, ".L") || strings.HasPrefix(name, "L") {
				continue // compiler-local label
			}
			kind := storage.KindFunction
			if dataSections[section] {
				kind = storage.KindVariable
			}
			sym := RawSymbol{
				Name:      name,
				Kind:      kind,
				LineStart: n,
				LineEnd:   n,
				Signature: name + ":",
				Docstring: asmDocComment(lines, n),
			}
			result.Symbols = append(result.Symbols, sym)
			if kind == storage.KindFunction {
				functionIdx = append(functionIdx, len(result.Symbols)-1)
				currentCaller = name
			}
			// A label line can also carry an instruction after the colon.
			line = strings.TrimSpace(line[len(m[0]):])
			if line == "" {
				continue
			}
		}

		for _, m := range asmCall.FindAllStringSubmatch(line, -1) {
			target := m[2]
			if asmRegisters[strings.ToLower(target)] {
				continue
			}
			result.Calls = append(result.Calls, CallSite{
				CallerName: currentCaller,
				CalleeName: target,
				Line:       n,
			})
		}
	}

	// A function runs until the line before the next function label.
	for i, idx := range functionIdx {
		if i+1 < len(functionIdx) {
			result.Symbols[functionIdx[i]].LineEnd = result.Symbols[functionIdx[i+1]].LineStart - 1
		} else {
			result.Symbols[idx].LineEnd = len(lines)
		}
	}

	return result, nil
}

func isAsmComment(line string) bool {
	return strings.HasPrefix(line, ";") ||
		strings.HasPrefix(line, "//") ||
		strings.HasPrefix(line, "#")
}

// asmDocComment collects contiguous comment lines directly above
// startLine.
func asmDocComment(lines []string, startLine int) string {
	var docLines []string
	for i := startLine - 1; i >= 1; i-- {
		line := strings.TrimSpace(lines[i-1])
		if line == "" {
			break
		}
		var text string
		switch {
		case strings.HasPrefix(line, ";"):
			text = strings.TrimSpace(strings.TrimLeft(line, "; "))
		case strings.HasPrefix(line, "//"):
			text = strings.TrimSpace(strings.TrimPrefix(line, "//"))
		case strings.HasPrefix(line, "#"):
			text = strings.TrimSpace(strings.TrimLeft(line, "# "))
		default:
			if len(docLines) == 0 {
				return ""
			}
			return strings.Join(docLines, " ")
		}
		if text != "" {
			docLines = append([]string{text}, docLines...)
		}
	}
	return strings.Join(docLines, " ")
}
