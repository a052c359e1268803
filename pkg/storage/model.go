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

package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RepoSource identifies how a repository entered the system.
type RepoSource string

const (
	SourceUpload RepoSource = "upload"
	SourceRemote RepoSource = "remote"
)

// RepoStatus is the lifecycle state of a repository.
type RepoStatus string

const (
	RepoStatusPending   RepoStatus = "pending"
	RepoStatusCloning   RepoStatus = "cloning"
	RepoStatusParsing   RepoStatus = "parsing"
	RepoStatusAnalyzing RepoStatus = "analyzing"
	RepoStatusCompleted RepoStatus = "completed"
	RepoStatusFailed    RepoStatus = "failed"
)

// Severity grades findings from analysis.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Confidence grades how certain a rule-based finding is.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// SymbolKind is the category of a parsed symbol.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindClass     SymbolKind = "class"
	KindMethod    SymbolKind = "method"
	KindVariable  SymbolKind = "variable"
	KindProcedure SymbolKind = "procedure"
)

// Repository is one submitted codebase.
type Repository struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Source          RepoSource `json:"source"`
	OriginURL       string     `json:"origin_url,omitempty"`
	Branch          string     `json:"branch,omitempty"`
	ArchivePath     string     `json:"archive_path,omitempty"`
	Status          RepoStatus `json:"status"`
	StatusReason    string     `json:"status_reason,omitempty"`
	FileCount       int        `json:"file_count"`
	SymbolCount     int        `json:"symbol_count"`
	Stars           int        `json:"stars,omitempty"`
	PrimaryLanguage string     `json:"primary_language,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// File is one source file inside a repository. Content is retained so
// the analysis fan-out can run without the scratch checkout.
type File struct {
	ID         string    `json:"id"`
	RepoID     uuid.UUID `json:"repo_id"`
	Path       string    `json:"path"` // POSIX, repository-relative
	Language   string    `json:"language"`
	ByteSize   int64     `json:"byte_size"`
	LineCount  int       `json:"line_count"`
	SHA256     string    `json:"sha256"`
	Content    string    `json:"-"`
	ParseError string    `json:"parse_error,omitempty"`
}

// Symbol is a named source construct with its per-symbol metrics.
type Symbol struct {
	ID              string     `json:"id"`
	FileID          string     `json:"file_id"`
	RepoID          uuid.UUID  `json:"repo_id"`
	Name            string     `json:"name"`
	Kind            SymbolKind `json:"kind"`
	LineStart       int        `json:"line_start"` // 1-based, inclusive
	LineEnd         int        `json:"line_end"`
	Signature       string     `json:"signature,omitempty"`
	Docstring       string     `json:"docstring,omitempty"`
	HasDocstring    bool       `json:"has_docstring"`
	DocstringLength int        `json:"docstring_length"`
	Complexity      int        `json:"cyclomatic_complexity"`
	Maintainability float64    `json:"maintainability_index"`
	MIApproximated  bool       `json:"mi_approximated"`
	LOC             int        `json:"lines_of_code"`
	CommentLines    int        `json:"comment_lines"`
}

// CallEdge is a directed reference from a symbol to a callee name.
// ToSymbolID is empty until (and unless) resolution succeeds.
type CallEdge struct {
	FromSymbolID string    `json:"from_symbol_id"`
	ToName       string    `json:"to_name"`
	ToSymbolID   string    `json:"to_symbol_id,omitempty"`
	FileID       string    `json:"file_id"`
	RepoID       uuid.UUID `json:"repo_id"`
	Line         int       `json:"line"`
	IsExternal   bool      `json:"is_external"`
}

// ImportEdge links a file to another file or an external module.
type ImportEdge struct {
	FromFileID string    `json:"from_file_id"`
	ToFileID   string    `json:"to_file_id,omitempty"`
	ToModule   string    `json:"to_module,omitempty"`
	RepoID     uuid.UUID `json:"repo_id"`
	Kind       string    `json:"kind"`
}

// Embedding is a unit-length vector for one symbol.
type Embedding struct {
	SymbolID string    `json:"symbol_id"`
	RepoID   uuid.UUID `json:"repo_id"`
	Dim      int       `json:"dim"`
	Vector   []float32 `json:"vector"`
}

// Vulnerability is one rule-based security finding.
type Vulnerability struct {
	ID          string     `json:"id"`
	RepoID      uuid.UUID  `json:"repo_id"`
	FileID      string     `json:"file_id"`
	Line        int        `json:"line"`
	RuleID      string     `json:"rule_id"`
	Severity    Severity   `json:"severity"`
	CWE         string     `json:"cwe,omitempty"`
	OWASP       string     `json:"owasp,omitempty"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Confidence  Confidence `json:"confidence"`
	Snippet     string     `json:"code_snippet"`
}

// CodeSmell is one maintainability finding, heuristic or LLM-assisted.
type CodeSmell struct {
	ID          string    `json:"id"`
	RepoID      uuid.UUID `json:"repo_id"`
	SmellType   string    `json:"smell_type"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Suggestion  string    `json:"suggestion,omitempty"`
	FileID      string    `json:"file_id"`
	SymbolID    string    `json:"symbol_id,omitempty"`
	Location    string    `json:"location"`
}

// LineRange is a 1-based inclusive span of lines.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// DuplicationPair records near-duplicate code between two files.
// File1ID < File2ID always holds (canonical ordering).
type DuplicationPair struct {
	ID              string    `json:"id"`
	RepoID          uuid.UUID `json:"repo_id"`
	File1ID         string    `json:"file1_id"`
	File1Range      LineRange `json:"file1_range"`
	File2ID         string    `json:"file2_id"`
	File2Range      LineRange `json:"file2_range"`
	Similarity      float64   `json:"similarity"`
	DuplicateLines  int       `json:"duplicate_lines"`
	DuplicateTokens int       `json:"duplicate_tokens"`
	Snippet         string    `json:"snippet,omitempty"`
}

// GateConfig holds the seven quality-gate thresholds for a repository.
type GateConfig struct {
	RepoID                     uuid.UUID `json:"repo_id" yaml:"-"`
	MaxComplexity              int       `json:"max_complexity" yaml:"max_complexity"`
	MaxCodeSmells              int       `json:"max_code_smells" yaml:"max_code_smells"`
	MaxCriticalSmells          int       `json:"max_critical_smells" yaml:"max_critical_smells"`
	MaxVulnerabilities         int       `json:"max_vulnerabilities" yaml:"max_vulnerabilities"`
	MaxCriticalVulnerabilities int       `json:"max_critical_vulnerabilities" yaml:"max_critical_vulnerabilities"`
	MinQualityScore            float64   `json:"min_quality_score" yaml:"min_quality_score"`
	MaxDuplicationPercentage   float64   `json:"max_duplication_percentage" yaml:"max_duplication_percentage"`
	BlockOnFailure             bool      `json:"block_on_failure" yaml:"block_on_failure"`
}

// DefaultGateConfig returns the stock thresholds applied to new repos.
func DefaultGateConfig(repoID uuid.UUID) GateConfig {
	return GateConfig{
		RepoID:                     repoID,
		MaxComplexity:              10,
		MaxCodeSmells:              20,
		MaxCriticalSmells:          0,
		MaxVulnerabilities:         5,
		MaxCriticalVulnerabilities: 0,
		MinQualityScore:            70.0,
		MaxDuplicationPercentage:   10.0,
		BlockOnFailure:             true,
	}
}

// RunStatus is the lifecycle state of one gate evaluation.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunPassed  RunStatus = "passed"
	RunFailed  RunStatus = "failed"
	RunError   RunStatus = "error"
)

// Run is one persisted quality-gate evaluation (a CI/CD run).
type Run struct {
	ID          uuid.UUID       `json:"id"`
	RepoID      uuid.UUID       `json:"repo_id"`
	Branch      string          `json:"branch,omitempty"`
	CommitSHA   string          `json:"commit_sha,omitempty"`
	PRNumber    int             `json:"pr_number,omitempty"`
	PRTitle     string          `json:"pr_title,omitempty"`
	TriggeredBy string          `json:"triggered_by"` // manual | webhook | pre-commit
	Status      RunStatus       `json:"status"`
	GateResult  json.RawMessage `json:"gate_result,omitempty"`
	ReportHTML  string          `json:"-"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Terminal reports whether the run reached an immutable final state.
func (r *Run) Terminal() bool {
	return r.Status == RunPassed || r.Status == RunFailed || r.Status == RunError
}
