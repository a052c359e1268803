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

// Package gate evaluates the seven quality-gate thresholds against a
// repository's analysis results and records each evaluation as a run.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/codequal/pkg/storage"
)

// checkTimeout bounds one gate evaluation end to end.
const checkTimeout = 5 * time.Minute

// CheckResult is one threshold evaluation.
type CheckResult struct {
	Name      string  `json:"name"`
	Passed    bool    `json:"passed"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// GateResult is the outcome of one gate evaluation.
type GateResult struct {
	Passed       bool          `json:"passed"`
	BlockMerge   bool          `json:"block_merge"`
	QualityScore float64       `json:"quality_score"`
	Checks       []CheckResult `json:"checks"`
	Summary      string        `json:"summary"`
	RunID        uuid.UUID     `json:"run_id"`
}

// RunMeta carries the trigger context recorded on the run.
type RunMeta struct {
	Branch      string
	CommitSHA   string
	PRNumber    int
	PRTitle     string
	TriggeredBy string // manual | webhook | pre-commit
}

// ReportRenderer renders the HTML stored alongside a completed run.
// Optional; a nil renderer stores no report.
type ReportRenderer interface {
	Render(ctx context.Context, repo *storage.Repository, result *GateResult) (string, error)
}

// Engine evaluates gates and persists runs.
type Engine struct {
	store    storage.Store
	renderer ReportRenderer
	logger   *slog.Logger
}

// NewEngine creates a gate engine. renderer may be nil.
func NewEngine(store storage.Store, renderer ReportRenderer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, renderer: renderer, logger: logger}
}

// Check evaluates all thresholds for the repository and persists a run.
// The returned result carries the run id even when the gate fails; only
// infrastructure errors return a non-nil error, and those complete the
// run as "error".
func (e *Engine) Check(ctx context.Context, repoID uuid.UUID, meta RunMeta) (*GateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	start := time.Now()

	repo, err := e.store.GetRepository(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("load repository: %w", err)
	}
	if meta.TriggeredBy == "" {
		meta.TriggeredBy = "manual"
	}

	run := &storage.Run{
		ID:          uuid.New(),
		RepoID:      repoID,
		Branch:      meta.Branch,
		CommitSHA:   meta.CommitSHA,
		PRNumber:    meta.PRNumber,
		PRTitle:     meta.PRTitle,
		TriggeredBy: meta.TriggeredBy,
		Status:      storage.RunRunning,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	result, err := e.evaluate(ctx, repoID)
	if err != nil {
		if cErr := e.store.CompleteRun(ctx, run.ID, storage.RunError, nil, ""); cErr != nil {
			e.logger.Error("gate.run.complete.error", "run_id", run.ID, "error", cErr)
		}
		return nil, fmt.Errorf("evaluate gate: %w", err)
	}
	result.RunID = run.ID

	var reportHTML string
	if e.renderer != nil {
		reportHTML, err = e.renderer.Render(ctx, repo, result)
		if err != nil {
			// The run result stands even when the report does not.
			e.logger.Warn("gate.report.render.failed", "run_id", run.ID, "error", err)
		}
	}

	status := storage.RunPassed
	if !result.Passed {
		status = storage.RunFailed
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal gate result: %w", err)
	}
	if err := e.store.CompleteRun(ctx, run.ID, status, payload, reportHTML); err != nil {
		return nil, fmt.Errorf("complete run: %w", err)
	}

	e.logger.Info("gate.check.complete",
		"repo_id", repoID,
		"run_id", run.ID,
		"passed", result.Passed,
		"quality_score", result.QualityScore,
		"triggered_by", meta.TriggeredBy,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// evaluate reads the analysis results and applies the seven checks.
func (e *Engine) evaluate(ctx context.Context, repoID uuid.UUID) (*GateResult, error) {
	cfg, err := e.store.GetGateConfig(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("load gate config: %w", err)
	}

	symbols, err := e.store.ListSymbols(ctx, storage.SymbolFilter{RepoID: repoID})
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	smells, err := e.store.ListCodeSmells(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list smells: %w", err)
	}
	vulns, err := e.store.ListVulnerabilities(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list vulnerabilities: %w", err)
	}
	dupPct, err := e.duplicationPercentage(ctx, repoID)
	if err != nil {
		return nil, err
	}

	var maxComplexity int
	var totalComplexity int
	for _, s := range symbols {
		if s.Complexity > maxComplexity {
			maxComplexity = s.Complexity
		}
		totalComplexity += s.Complexity
	}
	avgComplexity := 0.0
	if len(symbols) > 0 {
		avgComplexity = float64(totalComplexity) / float64(len(symbols))
	}

	criticalSmells := 0
	for _, s := range smells {
		if s.Severity == storage.SeverityCritical {
			criticalSmells++
		}
	}
	criticalVulns := 0
	for _, v := range vulns {
		if v.Severity == storage.SeverityCritical {
			criticalVulns++
		}
	}

	score := QualityScore(len(smells), criticalSmells, len(vulns), criticalVulns, avgComplexity, dupPct)

	checks := []CheckResult{
		maxCheck("max_complexity", float64(maxComplexity), float64(cfg.MaxComplexity)),
		maxCheck("max_code_smells", float64(len(smells)), float64(cfg.MaxCodeSmells)),
		maxCheck("max_critical_smells", float64(criticalSmells), float64(cfg.MaxCriticalSmells)),
		maxCheck("max_vulnerabilities", float64(len(vulns)), float64(cfg.MaxVulnerabilities)),
		maxCheck("max_critical_vulnerabilities", float64(criticalVulns), float64(cfg.MaxCriticalVulnerabilities)),
		minCheck("min_quality_score", score, cfg.MinQualityScore),
		maxCheck("max_duplication_percentage", dupPct, cfg.MaxDuplicationPercentage),
	}

	passed := true
	ok := 0
	for _, c := range checks {
		if c.Passed {
			ok++
		} else {
			passed = false
		}
	}
	verdict := "PASSED"
	if !passed {
		verdict = "FAILED"
	}

	return &GateResult{
		Passed:       passed,
		BlockMerge:   !passed && cfg.BlockOnFailure,
		QualityScore: score,
		Checks:       checks,
		Summary:      fmt.Sprintf("%s - %d/%d checks passed", verdict, ok, len(checks)),
	}, nil
}

// duplicationPercentage is the share of files involved in at least one
// duplication pair, 0-100.
func (e *Engine) duplicationPercentage(ctx context.Context, repoID uuid.UUID) (float64, error) {
	files, err := e.store.ListFiles(ctx, repoID)
	if err != nil {
		return 0, fmt.Errorf("list files: %w", err)
	}
	if len(files) == 0 {
		return 0, nil
	}
	pairs, err := e.store.ListDuplicationPairs(ctx, repoID)
	if err != nil {
		return 0, fmt.Errorf("list duplication pairs: %w", err)
	}
	involved := make(map[string]bool)
	for _, p := range pairs {
		involved[p.File1ID] = true
		involved[p.File2ID] = true
	}
	return float64(len(involved)) / float64(len(files)) * 100.0, nil
}

// QualityScore derives the 0-100 composite score. Critical findings
// weigh 3x (smells) and 4x (vulns) their ordinary counterparts.
func QualityScore(smells, criticalSmells, vulns, criticalVulns int, avgComplexity, dupPct float64) float64 {
	score := 100.0
	score -= float64(3*criticalSmells + (smells - criticalSmells))
	score -= float64(4*criticalVulns + (vulns - criticalVulns))
	score -= math.Max(0, avgComplexity-10) * 1.5
	score -= dupPct * 0.5
	return math.Max(0, math.Min(100, score))
}

func maxCheck(name string, value, threshold float64) CheckResult {
	return CheckResult{
		Name:      name,
		Passed:    value <= threshold,
		Value:     value,
		Threshold: threshold,
		Message:   fmt.Sprintf("%s (max: %s)", formatNum(value), formatNum(threshold)),
	}
}

func minCheck(name string, value, threshold float64) CheckResult {
	return CheckResult{
		Name:      name,
		Passed:    value >= threshold,
		Value:     value,
		Threshold: threshold,
		Message:   fmt.Sprintf("%s (min: %s)", formatNum(value), formatNum(threshold)),
	}
}

// formatNum prints integers without a decimal point and everything
// else with up to two decimals.
func formatNum(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
