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
	"bytes"
	"path/filepath"
	"strings"
)

// Supported language tags.
const (
	LangPython   = "python"
	LangC        = "c"
	LangAssembly = "assembly"
	LangCobol    = "cobol"
	LangUnknown  = "unknown"
)

// MaxDetectFileSize is the default size cap above which files are
// skipped as too large to parse.
const MaxDetectFileSize = 1 << 20 // 1 MiB

// extensionLanguages maps lowercase extensions to language tags.
var extensionLanguages = map[string]string{
	".py":  LangPython,
	".c":   LangC,
	".h":   LangC,
	".s":   LangAssembly,
	".asm": LangAssembly,
	".cob": LangCobol,
	".cbl": LangCobol,
}

// DetectLanguage maps a path plus the file's first bytes to a language
// tag. Primary dispatch is by extension; extensionless files fall back
// to a shebang scan. Returns LangUnknown for unsupported files.
func DetectLanguage(path string, firstBytes []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	if ext == "" {
		if lang := detectShebang(firstBytes); lang != LangUnknown {
			return lang
		}
	}
	return LangUnknown
}

// detectShebang inspects a leading #! line.
func detectShebang(firstBytes []byte) string {
	if !bytes.HasPrefix(firstBytes, []byte("#!")) {
		return LangUnknown
	}
	line := firstBytes
	if idx := bytes.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	if bytes.Contains(line, []byte("python")) {
		return LangPython
	}
	return LangUnknown
}

// IsBinary reports whether the first bytes look like binary content.
// A NUL byte in the sniff window is the signal, same heuristic git uses.
func IsBinary(firstBytes []byte) bool {
	window := firstBytes
	if len(window) > 8192 {
		window = window[:8192]
	}
	return bytes.IndexByte(window, 0) >= 0
}

// skipDirs are directory names never descended into during discovery.
var skipDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	"node_modules": true,
	".venv":        true,
	"venv":         true,
	"build":        true,
	"dist":         true,
}
