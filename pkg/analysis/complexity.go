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

package analysis

import (
	"math"
	"regexp"
	"strings"
)

// Complexity is a fast text-based heuristic, not a full parser.
// V = 1 + branch points + extra boolean operators per condition:
// a condition with n and/or operators adds n-1 beyond the branch
// itself, so `if a and b and c` scores 3. Nesting does not affect V.
func Complexity(source, language string) int {
	switch language {
	case "python":
		return complexityKeywords(source, pyBranch, pyBool)
	case "c":
		return complexityC(source)
	case "cobol":
		return complexityKeywords(strings.ToUpper(source), cobolBranch, cobolBool)
	case "assembly":
		return complexityAssembly(source)
	default:
		return 1
	}
}

var (
	pyBranch = regexp.MustCompile(`\b(if|elif|for|while|except|case)\b`)
	pyBool   = regexp.MustCompile(`\b(and|or)\b`)

	cBranch = regexp.MustCompile(`\b(if|for|while|case)\b`)
	cBool   = regexp.MustCompile(`&&|\|\|`)

	cobolBranch = regexp.MustCompile(`\b(IF|WHEN|UNTIL|VARYING)\b`)
	cobolBool   = regexp.MustCompile(`\b(AND|OR)\b`)

	// Conditional jumps only; jmp/b/jal are unconditional.
	asmCondBranch = regexp.MustCompile(`(?i)^\s*(j(?:e|ne|z|nz|g|ge|l|le|a|ae|b|be|c|nc|o|no|s|ns|p|np)|loop\w*|b(?:eq|ne|lt|le|gt|ge|mi|pl|cs|cc|hi|ls|vs|vc)|cbz|cbnz|bnez|beqz|blez|bgtz|bltz|bgez)\b`)
)

// complexityKeywords scans line by line: branch keywords count once
// each, and boolean operators on a branching line add n-1.
func complexityKeywords(source string, branch, boolOp *regexp.Regexp) int {
	v := 1
	for _, line := range strings.Split(source, "\n") {
		branches := len(branch.FindAllString(line, -1))
		if branches == 0 {
			continue
		}
		v += branches
		if n := len(boolOp.FindAllString(line, -1)); n > 1 {
			v += n - 1
		}
	}
	if v < 1 {
		return 1
	}
	return v
}

func complexityC(source string) int {
	v := 1
	for _, line := range strings.Split(source, "\n") {
		branches := len(cBranch.FindAllString(line, -1))
		ternaries := strings.Count(line, "?")
		if branches == 0 && ternaries == 0 {
			continue
		}
		v += branches + ternaries
		if n := len(cBool.FindAllString(line, -1)); n > 1 {
			v += n - 1
		}
	}
	if v < 1 {
		return 1
	}
	return v
}

func complexityAssembly(source string) int {
	v := 1
	for _, line := range strings.Split(source, "\n") {
		if asmCondBranch.MatchString(line) {
			v++
		}
	}
	return v
}

// LineCounts holds the raw line classification of a source slice.
type LineCounts struct {
	Code    int
	Comment int
	Blank   int
}

// CountLines classifies lines as code, comment, or blank with
// per-language comment rules. Python is docstring-aware; C tracks
// block comments; COBOL honours the column 7 indicator; assembly
// treats ';', '#' and '//' lines as comments.
func CountLines(source, language string) LineCounts {
	var c LineCounts
	lines := strings.Split(source, "\n")
	switch language {
	case "python":
		inDocstring := false
		for _, line := range lines {
			stripped := strings.TrimSpace(line)
			if stripped == "" {
				c.Blank++
				continue
			}
			if strings.Contains(stripped, `"""`) || strings.Contains(stripped, "'''") {
				c.Comment++
				if strings.Count(stripped, `"""`) >= 2 || strings.Count(stripped, "'''") >= 2 {
					continue
				}
				inDocstring = !inDocstring
				continue
			}
			if inDocstring || strings.HasPrefix(stripped, "#") {
				c.Comment++
			} else {
				c.Code++
			}
		}
	case "c":
		inBlock := false
		for _, line := range lines {
			stripped := strings.TrimSpace(line)
			if stripped == "" {
				c.Blank++
				continue
			}
			switch {
			case inBlock:
				c.Comment++
				if strings.Contains(stripped, "*/") {
					inBlock = false
				}
			case strings.HasPrefix(stripped, "/*"):
				c.Comment++
				if !strings.Contains(stripped, "*/") {
					inBlock = true
				}
			case strings.HasPrefix(stripped, "//"):
				c.Comment++
			default:
				c.Code++
			}
		}
	case "cobol":
		for _, line := range lines {
			stripped := strings.TrimSpace(line)
			if stripped == "" {
				c.Blank++
				continue
			}
			if isCobolCommentLine(line) {
				c.Comment++
			} else {
				c.Code++
			}
		}
	case "assembly":
		for _, line := range lines {
			stripped := strings.TrimSpace(line)
			if stripped == "" {
				c.Blank++
				continue
			}
			if strings.HasPrefix(stripped, ";") || strings.HasPrefix(stripped, "#") || strings.HasPrefix(stripped, "//") {
				c.Comment++
			} else {
				c.Code++
			}
		}
	default:
		for _, line := range lines {
			if strings.TrimSpace(line) == "" {
				c.Blank++
			} else {
				c.Code++
			}
		}
	}
	return c
}

// isCobolCommentLine checks both fixed format (column 7 '*' or '/')
// and free format (leading '*').
func isCobolCommentLine(line string) bool {
	if len(line) >= 7 {
		seq := line[:6]
		fixed := true
		for i := 0; i < 6; i++ {
			if seq[i] != ' ' && (seq[i] < '0' || seq[i] > '9') {
				fixed = false
				break
			}
		}
		if fixed && (line[6] == '*' || line[6] == '/') {
			return true
		}
	}
	return strings.HasPrefix(strings.TrimSpace(line), "*")
}

// MaintainabilityIndex computes the 0-100 MI for a symbol. Halstead
// volume is approximated as max(1, loc) for all supported languages,
// which callers record via mi_approximated.
//
// Raw scale is 0-171, normalised to 0-100. Commented code earns back
// up to 50 points on the raw scale before clamping.
func MaintainabilityIndex(complexity, loc, commentLines int) float64 {
	if loc <= 0 {
		return 100.0
	}
	vHalstead := float64(loc)
	if vHalstead < 1 {
		vHalstead = 1
	}
	raw := 171.0 -
		5.2*math.Log(vHalstead) -
		0.23*float64(complexity) -
		16.2*math.Log(float64(loc))
	raw += 50.0 * float64(commentLines) / float64(loc)
	raw = math.Max(0, math.Min(171, raw))
	return math.Round(raw*100.0/171.0*100) / 100
}

// ComplexityBucket maps V to a reporting bucket.
func ComplexityBucket(v int) string {
	switch {
	case v <= 10:
		return "simple"
	case v <= 20:
		return "moderate"
	case v <= 50:
		return "complex"
	default:
		return "very_complex"
	}
}

// MaintainabilityBucket maps MI to a reporting bucket.
func MaintainabilityBucket(mi float64) string {
	switch {
	case mi >= 85:
		return "excellent"
	case mi >= 65:
		return "good"
	case mi >= 50:
		return "fair"
	default:
		return "poor"
	}
}
