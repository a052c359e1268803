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
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/codequal/pkg/storage"
)

// vulnRule is one pattern in the catalogue. An empty language list
// applies to all languages.
type vulnRule struct {
	id          string
	category    string
	pattern     *regexp.Regexp
	description string
	severity    storage.Severity
	confidence  storage.Confidence
	languages   []string
}

// vulnMeta carries the category-level CWE/OWASP tags.
type vulnMeta struct {
	cwe            string
	owasp          string
	recommendation string
}

var vulnMetadata = map[string]vulnMeta{
	"sql_injection": {
		cwe:            "CWE-89",
		owasp:          "A03:2021 - Injection",
		recommendation: "Use parameterized queries or prepared statements. Never concatenate user input into SQL strings.",
	},
	"hardcoded_secret": {
		cwe:            "CWE-798",
		owasp:          "A07:2021 - Identification and Authentication Failures",
		recommendation: "Store secrets in environment variables or secure vaults.",
	},
	"command_injection": {
		cwe:            "CWE-78",
		owasp:          "A03:2021 - Injection",
		recommendation: "Avoid shell=True. Use subprocess with argument lists. Validate and sanitize all user input.",
	},
	"path_traversal": {
		cwe:            "CWE-22",
		owasp:          "A01:2021 - Broken Access Control",
		recommendation: "Validate file paths against an allowed root before opening.",
	},
	"xss": {
		cwe:            "CWE-79",
		owasp:          "A03:2021 - Injection",
		recommendation: "Always escape user input before rendering in HTML. Use templating engines with auto-escaping.",
	},
	"buffer_overflow": {
		cwe:            "CWE-120",
		owasp:          "A03:2021 - Injection",
		recommendation: "Use bounded string functions (strncpy, snprintf, fgets) and check buffer sizes.",
	},
	"unsafe_deserialization": {
		cwe:            "CWE-502",
		owasp:          "A08:2021 - Software and Data Integrity Failures",
		recommendation: "Never deserialize untrusted data with pickle or unrestricted yaml.load.",
	},
}

var vulnRules = []vulnRule{
	// SQL injection.
	{"sqli-py-format", "sql_injection", regexp.MustCompile(`(?i)(execute|cursor\.execute|executemany)\s*\(\s*["'].*%s.*["']`), "SQL string formatting", storage.SeverityCritical, "high", []string{"python"}},
	{"sqli-py-concat", "sql_injection", regexp.MustCompile(`(?i)(execute|cursor\.execute|executemany)\s*\(\s*.*\+\s*`), "SQL string concatenation", storage.SeverityCritical, "high", []string{"python"}},
	{"sqli-py-fstring", "sql_injection", regexp.MustCompile(`(?i)(execute|cursor\.execute|executemany)\s*\(\s*f["']`), "SQL f-string", storage.SeverityCritical, "high", []string{"python"}},
	{"sqli-c-sprintf", "sql_injection", regexp.MustCompile(`(?i)sprintf\s*\([^)]*\b(SELECT|INSERT|UPDATE|DELETE|DROP|ALTER)\b`), "SQL built via sprintf", storage.SeverityCritical, "high", []string{"c"}},
	{"sqli-c-strcat", "sql_injection", regexp.MustCompile(`(?i)strcat\s*\([^)]*\b(SELECT|INSERT|UPDATE|DELETE|DROP|ALTER)\b`), "SQL built via strcat", storage.SeverityCritical, "high", []string{"c"}},
	{"sqli-cobol-dynamic", "sql_injection", regexp.MustCompile(`(?i)EXEC\s+SQL.*:(\w+)`), "dynamic SQL variable", storage.SeverityCritical, "medium", []string{"cobol"}},
	{"sqli-cobol-string", "sql_injection", regexp.MustCompile(`(?i)STRING\s+.*\bSELECT\b.*INTO`), "SQL string concatenation", storage.SeverityCritical, "medium", []string{"cobol"}},

	// Hardcoded secrets.
	{"secret-apikey-assign", "hardcoded_secret", regexp.MustCompile(`(?i)api[_-]?key\s*=\s*["']([^"']+)["']`), "API key assignment", storage.SeverityHigh, "medium", nil},
	{"secret-password", "hardcoded_secret", regexp.MustCompile(`(?i)(password|passwd|pwd)\s*=\s*["']([^"']{8,})["']`), "hardcoded password", storage.SeverityHigh, "medium", nil},
	{"secret-aws-key", "hardcoded_secret", regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "AWS access key", storage.SeverityHigh, "high", nil},
	{"secret-aws-secret", "hardcoded_secret", regexp.MustCompile(`(?i)aws_secret_access_key\s*=\s*["']([^"']+)["']`), "AWS secret key", storage.SeverityHigh, "high", nil},
	{"secret-conn-string", "hardcoded_secret", regexp.MustCompile(`(?i)(postgresql|mysql|mongodb)://[^:]+:([^@]+)@`), "database password in connection string", storage.SeverityHigh, "high", nil},
	{"secret-private-key", "hardcoded_secret", regexp.MustCompile(`-----BEGIN (RSA |DSA )?PRIVATE KEY-----`), "private key material", storage.SeverityHigh, "high", nil},
	{"secret-token", "hardcoded_secret", regexp.MustCompile(`(?i)token\s*=\s*["']([A-Za-z0-9_-]{30,})["']`), "hardcoded token", storage.SeverityHigh, "medium", nil},
	{"secret-bearer", "hardcoded_secret", regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_-]{30,}`), "bearer token", storage.SeverityHigh, "medium", nil},
	{"secret-cobol-password", "hardcoded_secret", regexp.MustCompile(`(?i)(PASSWORD|PASSWD|PWD)\s+PIC\s+X.*VALUE\s+['"]([^'"]{8,})`), "hardcoded password", storage.SeverityHigh, "medium", []string{"cobol"}},
	{"secret-asm-password", "hardcoded_secret", regexp.MustCompile(`(?i)(password|passwd|pwd).*db\s+['"]([^'"]{8,})`), "hardcoded password in .data", storage.SeverityHigh, "medium", []string{"assembly"}},

	// Command injection.
	{"cmdi-py-system-concat", "command_injection", regexp.MustCompile(`os\.system\s*\(.*\+`), "os.system with string concatenation", storage.SeverityCritical, "medium", []string{"python"}},
	{"cmdi-py-system-fstring", "command_injection", regexp.MustCompile(`os\.system\s*\(\s*f["']`), "os.system with f-string", storage.SeverityCritical, "medium", []string{"python"}},
	{"cmdi-py-shell-true", "command_injection", regexp.MustCompile(`subprocess\.(call|run|Popen)\s*\(.*shell\s*=\s*True`), "subprocess with shell=True", storage.SeverityCritical, "medium", []string{"python"}},
	{"cmdi-py-eval", "command_injection", regexp.MustCompile(`\beval\s*\(`), "eval() with dynamic code", storage.SeverityCritical, "medium", []string{"python"}},
	{"cmdi-py-exec", "command_injection", regexp.MustCompile(`\bexec\s*\(`), "exec() with dynamic code", storage.SeverityCritical, "medium", []string{"python"}},
	{"cmdi-c-system", "command_injection", regexp.MustCompile(`\bsystem\s*\(`), "system() call", storage.SeverityCritical, "medium", []string{"c"}},
	{"cmdi-c-popen", "command_injection", regexp.MustCompile(`\bpopen\s*\(`), "popen() call", storage.SeverityCritical, "medium", []string{"c"}},
	{"cmdi-cobol-system", "command_injection", regexp.MustCompile(`(?i)CALL\s+['"]SYSTEM['"]\s+USING`), "CALL SYSTEM with parameter", storage.SeverityCritical, "medium", []string{"cobol"}},
	{"cmdi-asm-execve", "command_injection", regexp.MustCompile(`(?i)int\s+0x80.*eax.*0xb|syscall.*__NR_execve`), "execve syscall", storage.SeverityCritical, "low", []string{"assembly"}},

	// Path traversal.
	{"path-c-dotdot", "path_traversal", regexp.MustCompile(`(?i)(fopen|open|fread|fwrite|remove|unlink)\s*\([^)]*\.\.`), "file operation with ../ path", storage.SeverityHigh, "medium", []string{"c"}},
	{"path-py-concat", "path_traversal", regexp.MustCompile(`\bopen\s*\(.*\+`), "file open with concatenation", storage.SeverityHigh, "low", []string{"python"}},
	{"path-cobol-dotdot", "path_traversal", regexp.MustCompile(`(?i)(OPEN|READ|WRITE)\s+(INPUT|OUTPUT)\s+\w+.*\.\.`), "file operation with ../ path", storage.SeverityHigh, "medium", []string{"cobol"}},

	// XSS (python templating only; no JS in the supported set).
	{"xss-py-template", "xss", regexp.MustCompile(`(render_template|render_to_string)\s*\(.*\{.*\}`), "template rendering with unsafe variables", storage.SeverityHigh, "medium", []string{"python"}},

	// Buffer overflow.
	{"buf-c-gets", "buffer_overflow", regexp.MustCompile(`\bgets\s*\(`), "gets() has no bounds checking", storage.SeverityCritical, "high", []string{"c"}},
	{"buf-c-strcpy", "buffer_overflow", regexp.MustCompile(`\bstrcpy\s*\(`), "strcpy() has no bounds checking", storage.SeverityCritical, "medium", []string{"c"}},
	{"buf-c-strcat", "buffer_overflow", regexp.MustCompile(`\bstrcat\s*\(`), "strcat() has no bounds checking", storage.SeverityCritical, "medium", []string{"c"}},
	{"buf-c-sprintf", "buffer_overflow", regexp.MustCompile(`\bsprintf\s*\(`), "sprintf() has no bounds checking", storage.SeverityCritical, "medium", []string{"c"}},
	{"buf-c-scanf", "buffer_overflow", regexp.MustCompile(`scanf\s*\([^)]*%s`), "scanf with unbounded %s", storage.SeverityCritical, "medium", []string{"c"}},
	{"buf-asm-repmovs", "buffer_overflow", regexp.MustCompile(`(?i)rep\s+movs[bwd]`), "unchecked memory copy", storage.SeverityCritical, "low", []string{"assembly"}},

	// Unsafe deserialisation.
	{"deser-py-pickle", "unsafe_deserialization", regexp.MustCompile(`pickle\.loads?\s*\(`), "pickle deserialization of untrusted data", storage.SeverityHigh, "medium", []string{"python"}},
	{"deser-py-yaml", "unsafe_deserialization", regexp.MustCompile(`yaml\.load\s*\((?:[^)]*)?\)`), "yaml.load without SafeLoader", storage.SeverityHigh, "medium", []string{"python"}},
}

// Suppression patterns: lines that match a vulnerability pattern but
// are not code, or are known-safe idioms.
var (
	cPreprocessor = regexp.MustCompile(`^\s*#\s*(include|define|if|endif|pragma|undef)`)
	asmDirective  = regexp.MustCompile(`^\s*(%include|\.include|\.data|\.text|\.bss|;)`)
	ormSafe       = regexp.MustCompile(`\.query\(|\.filter\(|\.filter_by\(|mapped_column\(|relationship\(|Mapped\[|__repr__|__str__`)
	secretRedact  = regexp.MustCompile(`["']([A-Za-z0-9_-]{12,})["']`)
)

// secretFalsePositives are substrings that mark a matching line as a
// sample or a reference to the environment rather than a real secret.
var secretFalsePositives = []string{
	"example", "test", "dummy", "placeholder", "xxx", "sample",
	"default", "todo", "fixme", "your_", "<your", "os.environ", "getenv",
}

// VulnerabilityScanner runs the rule catalogue over every file of a
// repository.
type VulnerabilityScanner struct {
	store  storage.Store
	logger *slog.Logger
}

// NewVulnerabilityScanner creates a scanner over the given store.
func NewVulnerabilityScanner(store storage.Store, logger *slog.Logger) *VulnerabilityScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &VulnerabilityScanner{store: store, logger: logger}
}

// Run scans all files and persists the deduplicated findings.
func (s *VulnerabilityScanner) Run(ctx context.Context, repoID uuid.UUID) ([]storage.Vulnerability, error) {
	start := time.Now()

	files, err := s.store.ListFiles(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	var findings []storage.Vulnerability
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		findings = append(findings, ScanSource(repoID, f)...)
	}
	findings = dedupeFindings(findings)

	if err := s.store.ReplaceVulnerabilities(ctx, repoID, findings); err != nil {
		return nil, fmt.Errorf("persist vulnerabilities: %w", err)
	}

	s.logger.Info("analysis.vulnscan.complete",
		"repo_id", repoID,
		"files", len(files),
		"findings", len(findings),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return findings, nil
}

// ScanSource applies the catalogue to one file's content.
func ScanSource(repoID uuid.UUID, f storage.File) []storage.Vulnerability {
	var findings []storage.Vulnerability
	for lineNum, line := range strings.Split(f.Content, "\n") {
		n := lineNum + 1
		if suppressedLine(line, f.Language) {
			continue
		}
		for _, rule := range vulnRules {
			if !ruleApplies(rule, f.Language) {
				continue
			}
			if !rule.pattern.MatchString(line) {
				continue
			}
			if rule.category == "hardcoded_secret" && secretLooksLikeSample(line) {
				continue
			}
			if rule.category == "sql_injection" && ormSafe.MatchString(line) {
				continue
			}
			meta := vulnMetadata[rule.category]
			snippet := strings.TrimSpace(line)
			if rule.category == "hardcoded_secret" {
				snippet = secretRedact.ReplaceAllString(snippet, `"***REDACTED***"`)
			}
			findings = append(findings, storage.Vulnerability{
				ID:          fmt.Sprintf("vuln:%s|%s|%d", rule.id, f.ID, n),
				RepoID:      repoID,
				FileID:      f.ID,
				Line:        n,
				RuleID:      rule.id,
				Severity:    rule.severity,
				CWE:         meta.cwe,
				OWASP:       meta.owasp,
				Category:    rule.category,
				Description: rule.description,
				Confidence:  rule.confidence,
				Snippet:     snippet,
			})
		}
	}
	return findings
}

func ruleApplies(rule vulnRule, language string) bool {
	if len(rule.languages) == 0 {
		return true
	}
	for _, l := range rule.languages {
		if l == language {
			return true
		}
	}
	return false
}

// suppressedLine drops comments and directives that match rule
// patterns without being code.
func suppressedLine(line, language string) bool {
	stripped := strings.TrimSpace(line)
	switch language {
	case "c":
		if cPreprocessor.MatchString(line) {
			return true
		}
		return strings.HasPrefix(stripped, "//") || strings.HasPrefix(stripped, "/*") || strings.HasPrefix(stripped, "*")
	case "assembly":
		return asmDirective.MatchString(line)
	case "cobol":
		return isCobolCommentLine(line)
	case "python":
		return strings.HasPrefix(stripped, "#")
	}
	return false
}

func secretLooksLikeSample(line string) bool {
	lower := strings.ToLower(line)
	for _, fp := range secretFalsePositives {
		if strings.Contains(lower, fp) {
			return true
		}
	}
	return false
}

// dedupeFindings coalesces findings of the same rule in the same file
// within two lines of each other, keeping the first.
func dedupeFindings(findings []storage.Vulnerability) []storage.Vulnerability {
	lastLine := make(map[string]int) // rule|file -> last kept line
	out := findings[:0]
	for _, v := range findings {
		key := v.RuleID + "|" + v.FileID
		if prev, ok := lastLine[key]; ok && v.Line-prev <= 2 {
			continue
		}
		lastLine[key] = v.Line
		out = append(out, v)
	}
	return out
}
