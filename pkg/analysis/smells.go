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
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/codequal/pkg/llm"
	"github.com/kraklabs/codequal/pkg/storage"
)

// Heuristic thresholds. The critical grade kicks in at 1.5x the method
// count and 2x the line count.
const (
	longMethodLines       = 50
	longMethodLinesHigh   = 100
	godClassMethods       = 20
	godClassLines         = 500
	longParameterCount    = 5
	llmReviewSymbolLimit  = 10
	llmReviewSnippetLines = 80
)

// SmellDetector finds maintainability problems with rule heuristics,
// optionally refined by an LLM review of the most complex symbols.
type SmellDetector struct {
	store    storage.Store
	provider llm.Provider // nil disables the LLM pass
	logger   *slog.Logger
}

// NewSmellDetector creates a detector. provider may be nil.
func NewSmellDetector(store storage.Store, provider llm.Provider, logger *slog.Logger) *SmellDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &SmellDetector{store: store, provider: provider, logger: logger}
}

// Run detects smells and persists them. An LLM failure degrades to the
// rule-only result instead of failing the pass.
func (d *SmellDetector) Run(ctx context.Context, repoID uuid.UUID) ([]storage.CodeSmell, error) {
	start := time.Now()

	files, err := d.store.ListFiles(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	filePath := make(map[string]string, len(files))
	fileLines := make(map[string][]string, len(files))
	for _, f := range files {
		filePath[f.ID] = f.Path
		fileLines[f.ID] = strings.Split(f.Content, "\n")
	}

	symbols, err := d.store.ListSymbols(ctx, storage.SymbolFilter{RepoID: repoID})
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}

	smells := detectHeuristic(repoID, symbols, filePath)

	if d.provider != nil {
		llmSmells, err := d.reviewWithLLM(ctx, repoID, symbols, filePath, fileLines)
		if err != nil {
			d.logger.Warn("analysis.smells.llm_degraded", "repo_id", repoID, "error", err)
		} else {
			smells = append(smells, llmSmells...)
		}
	}

	if err := d.store.ReplaceCodeSmells(ctx, repoID, smells); err != nil {
		return nil, fmt.Errorf("persist smells: %w", err)
	}

	d.logger.Info("analysis.smells.complete",
		"repo_id", repoID,
		"smells", len(smells),
		"llm", d.provider != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return smells, nil
}

// detectHeuristic applies the three structural rules.
func detectHeuristic(repoID uuid.UUID, symbols []storage.Symbol, filePath map[string]string) []storage.CodeSmell {
	var smells []storage.CodeSmell

	classesByFile := make(map[string][]storage.Symbol)
	for _, sym := range symbols {
		if sym.Kind == storage.KindClass {
			classesByFile[sym.FileID] = append(classesByFile[sym.FileID], sym)
		}
	}
	methodCount := make(map[string]int) // class symbol ID -> methods it encloses
	for _, sym := range symbols {
		if sym.Kind != storage.KindMethod {
			continue
		}
		if id := enclosingClassID(classesByFile[sym.FileID], sym); id != "" {
			methodCount[id]++
		}
	}

	for _, sym := range symbols {
		loc := sym.LineEnd - sym.LineStart + 1
		location := fmt.Sprintf("%s:%d", filePath[sym.FileID], sym.LineStart)

		switch sym.Kind {
		case storage.KindFunction, storage.KindMethod, storage.KindProcedure:
			if loc > longMethodLines {
				sev := storage.SeverityMedium
				if loc > longMethodLinesHigh {
					sev = storage.SeverityHigh
				}
				smells = append(smells, storage.CodeSmell{
					ID:          fmt.Sprintf("smell:long_method|%s", sym.ID),
					RepoID:      repoID,
					SmellType:   "long_method",
					Severity:    sev,
					Title:       fmt.Sprintf("Long method: %s", sym.Name),
					Description: fmt.Sprintf("%s spans %d lines", sym.Name, loc),
					Suggestion:  "Extract cohesive blocks into helper functions.",
					FileID:      sym.FileID,
					SymbolID:    sym.ID,
					Location:    location,
				})
			}
			if n := parameterCount(sym.Signature); n > longParameterCount {
				smells = append(smells, storage.CodeSmell{
					ID:          fmt.Sprintf("smell:long_parameter_list|%s", sym.ID),
					RepoID:      repoID,
					SmellType:   "long_parameter_list",
					Severity:    storage.SeverityMedium,
					Title:       fmt.Sprintf("Long parameter list: %s", sym.Name),
					Description: fmt.Sprintf("%s takes %d parameters", sym.Name, n),
					Suggestion:  "Group related parameters into a struct or object.",
					FileID:      sym.FileID,
					SymbolID:    sym.ID,
					Location:    location,
				})
			}
		case storage.KindClass:
			methods := methodCount[sym.ID]
			if methods > godClassMethods || loc > godClassLines {
				sev := storage.SeverityHigh
				if methods > godClassMethods*3/2 || loc > godClassLines*2 {
					sev = storage.SeverityCritical
				}
				smells = append(smells, storage.CodeSmell{
					ID:          fmt.Sprintf("smell:god_class|%s", sym.ID),
					RepoID:      repoID,
					SmellType:   "god_class",
					Severity:    sev,
					Title:       fmt.Sprintf("God class: %s", sym.Name),
					Description: fmt.Sprintf("%s has %d methods over %d lines", sym.Name, methods, loc),
					Suggestion:  "Split responsibilities into focused classes.",
					FileID:      sym.FileID,
					SymbolID:    sym.ID,
					Location:    location,
				})
			}
		}
	}
	return smells
}

// enclosingClassID returns the innermost class whose line range contains
// the method. A method outside every recorded class counts nowhere.
func enclosingClassID(classes []storage.Symbol, method storage.Symbol) string {
	id, span := "", 0
	for _, c := range classes {
		if method.LineStart < c.LineStart || method.LineEnd > c.LineEnd {
			continue
		}
		if s := c.LineEnd - c.LineStart; id == "" || s < span {
			id, span = c.ID, s
		}
	}
	return id
}

// parameterCount counts comma-separated parameters inside the first
// parenthesised group of a signature. COBOL signatures have none.
func parameterCount(signature string) int {
	open := strings.IndexByte(signature, '(')
	if open < 0 {
		return 0
	}
	close := strings.LastIndexByte(signature, ')')
	if close <= open {
		return 0
	}
	inner := strings.TrimSpace(signature[open+1 : close])
	if inner == "" || inner == "void" {
		return 0
	}
	depth, count := 0, 1
	for _, r := range inner {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				count++
			}
		}
	}
	return count
}

// llmFinding is the JSON shape the model is asked to emit.
type llmFinding struct {
	SmellType   string `json:"smell_type"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// reviewWithLLM asks the provider to review the highest-complexity
// symbols and returns any findings it reports.
func (d *SmellDetector) reviewWithLLM(ctx context.Context, repoID uuid.UUID, symbols []storage.Symbol, filePath map[string]string, fileLines map[string][]string) ([]storage.CodeSmell, error) {
	candidates := make([]storage.Symbol, 0, len(symbols))
	for _, sym := range symbols {
		if sym.Kind == storage.KindVariable || sym.Complexity <= 1 {
			continue
		}
		candidates = append(candidates, sym)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Complexity != candidates[j].Complexity {
			return candidates[i].Complexity > candidates[j].Complexity
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > llmReviewSymbolLimit {
		candidates = candidates[:llmReviewSymbolLimit]
	}

	var smells []storage.CodeSmell
	for _, sym := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body := symbolBody(fileLines[sym.FileID], sym.LineStart, sym.LineEnd)
		if lines := strings.Split(body, "\n"); len(lines) > llmReviewSnippetLines {
			body = strings.Join(lines[:llmReviewSnippetLines], "\n")
		}

		resp, err := d.provider.Generate(ctx, llm.GenerateRequest{
			Prompt:      smellPrompt(sym.Name, body),
			Temperature: 0.1,
			MaxTokens:   512,
		})
		if err != nil {
			return nil, fmt.Errorf("llm review %s: %w", sym.Name, err)
		}

		findings, err := parseLLMFindings(resp.Text)
		if err != nil {
			// One malformed response does not sink the pass.
			d.logger.Warn("analysis.smells.llm_parse_failed", "symbol", sym.Name, "error", err)
			continue
		}
		for i, f := range findings {
			smells = append(smells, storage.CodeSmell{
				ID:          fmt.Sprintf("smell:llm_%s|%s|%d", f.SmellType, sym.ID, i),
				RepoID:      repoID,
				SmellType:   "llm_" + f.SmellType,
				Severity:    normalizeSeverity(f.Severity),
				Title:       f.Title,
				Description: f.Description,
				Suggestion:  f.Suggestion,
				FileID:      sym.FileID,
				SymbolID:    sym.ID,
				Location:    fmt.Sprintf("%s:%d", filePath[sym.FileID], sym.LineStart),
			})
		}
	}
	return smells, nil
}

func smellPrompt(name, body string) string {
	return fmt.Sprintf(`You are a code reviewer. Analyze the function %q below for maintainability problems.
Respond with ONLY a JSON array, one object per finding:
[{"smell_type": "...", "severity": "low|medium|high|critical", "title": "...", "description": "...", "suggestion": "..."}]
Respond with [] if the code is fine.

%s`, name, body)
}

// parseLLMFindings extracts the first JSON array from the response,
// tolerating surrounding prose and markdown fences.
func parseLLMFindings(text string) ([]llmFinding, error) {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}
	var findings []llmFinding
	if err := json.Unmarshal([]byte(text[start:end+1]), &findings); err != nil {
		return nil, fmt.Errorf("decode findings: %w", err)
	}
	out := findings[:0]
	for _, f := range findings {
		if f.SmellType == "" || f.Title == "" {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func normalizeSeverity(s string) storage.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return storage.SeverityCritical
	case "high":
		return storage.SeverityHigh
	case "low":
		return storage.SeverityLow
	default:
		return storage.SeverityMedium
	}
}
