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
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/codequal/pkg/storage"
)

// MetricsSummary aggregates one metrics pass over a repository.
type MetricsSummary struct {
	Symbols           int     `json:"symbols"`
	AvgComplexity     float64 `json:"avg_complexity"`
	MaxComplexity     int     `json:"max_complexity"`
	DocstringCoverage float64 `json:"docstring_coverage"` // 0-1
}

// MetricsAnalyzer computes cyclomatic complexity, line counts and the
// maintainability index for every symbol of a repository.
type MetricsAnalyzer struct {
	store  storage.Store
	logger *slog.Logger
}

// NewMetricsAnalyzer creates a metrics analyzer over the given store.
func NewMetricsAnalyzer(store storage.Store, logger *slog.Logger) *MetricsAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsAnalyzer{store: store, logger: logger}
}

// Run computes and persists metrics for every symbol in the repository.
func (a *MetricsAnalyzer) Run(ctx context.Context, repoID uuid.UUID) (*MetricsSummary, error) {
	start := time.Now()

	files, err := a.store.ListFiles(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	fileLines := make(map[string][]string, len(files))
	fileLang := make(map[string]string, len(files))
	for _, f := range files {
		fileLines[f.ID] = strings.Split(f.Content, "\n")
		fileLang[f.ID] = f.Language
	}

	symbols, err := a.store.ListSymbols(ctx, storage.SymbolFilter{RepoID: repoID})
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}

	summary := &MetricsSummary{Symbols: len(symbols)}
	var totalComplexity, documentable, documented int
	updates := make([]storage.SymbolMetricsUpdate, 0, len(symbols))
	for _, sym := range symbols {
		body := symbolBody(fileLines[sym.FileID], sym.LineStart, sym.LineEnd)
		lang := fileLang[sym.FileID]

		v := Complexity(body, lang)
		counts := CountLines(body, lang)
		mi := MaintainabilityIndex(v, counts.Code, counts.Comment)

		updates = append(updates, storage.SymbolMetricsUpdate{
			SymbolID:        sym.ID,
			Complexity:      v,
			Maintainability: mi,
			MIApproximated:  true,
			LOC:             counts.Code,
			CommentLines:    counts.Comment,
		})

		totalComplexity += v
		if v > summary.MaxComplexity {
			summary.MaxComplexity = v
		}
		if isDocumentable(sym.Kind) {
			documentable++
			if sym.HasDocstring {
				documented++
			}
		}
	}

	if err := a.store.UpdateSymbolMetrics(ctx, updates); err != nil {
		return nil, fmt.Errorf("persist metrics: %w", err)
	}

	if len(symbols) > 0 {
		summary.AvgComplexity = float64(totalComplexity) / float64(len(symbols))
	}
	if documentable > 0 {
		summary.DocstringCoverage = float64(documented) / float64(documentable)
	}

	a.logger.Info("analysis.metrics.complete",
		"repo_id", repoID,
		"symbols", summary.Symbols,
		"avg_complexity", summary.AvgComplexity,
		"docstring_coverage", summary.DocstringCoverage,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return summary, nil
}

// symbolBody slices the 1-based inclusive line range out of a file.
func symbolBody(lines []string, start, end int) string {
	if len(lines) == 0 || start < 1 || start > len(lines) {
		return ""
	}
	if end > len(lines) {
		end = len(lines)
	}
	if end < start {
		end = start
	}
	return strings.Join(lines[start-1:end], "\n")
}

// isDocumentable reports whether a symbol kind is expected to carry a
// docstring. Variables are not.
func isDocumentable(kind storage.SymbolKind) bool {
	switch kind {
	case storage.KindFunction, storage.KindClass, storage.KindMethod, storage.KindProcedure:
		return true
	default:
		return false
	}
}
