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

// Package report renders the HTML stored with each quality-gate run.
package report

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/kraklabs/codequal/pkg/gate"
	"github.com/kraklabs/codequal/pkg/storage"
)

// Renderer builds the self-contained HTML report for a gate run. It
// implements gate.ReportRenderer.
type Renderer struct {
	store  storage.Store
	tmpl   *template.Template
	logger *slog.Logger
}

// NewRenderer creates a renderer over the given store.
func NewRenderer(store storage.Store, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		store:  store,
		tmpl:   template.Must(template.New("report").Funcs(funcMap).Parse(reportTemplate)),
		logger: logger,
	}
}

// overview is the metrics block shown above the check table.
type overview struct {
	Files             int
	Symbols           int
	AvgComplexity     float64
	MaxComplexity     int
	DocstringCoverage float64 // percent, documentable symbols only
	Vulnerabilities   int
	CriticalVulns     int
	CodeSmells        int
	DuplicationPairs  int
}

type reportData struct {
	Repo        *storage.Repository
	Result      *gate.GateResult
	Overview    overview
	GeneratedAt string
}

// Render produces the HTML for one gate result.
func (r *Renderer) Render(ctx context.Context, repo *storage.Repository, result *gate.GateResult) (string, error) {
	ov, err := r.buildOverview(ctx, repo)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	err = r.tmpl.Execute(&b, reportData{
		Repo:        repo,
		Result:      result,
		Overview:    ov,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("execute report template: %w", err)
	}
	return b.String(), nil
}

func (r *Renderer) buildOverview(ctx context.Context, repo *storage.Repository) (overview, error) {
	var ov overview

	symbols, err := r.store.ListSymbols(ctx, storage.SymbolFilter{RepoID: repo.ID})
	if err != nil {
		return ov, fmt.Errorf("list symbols: %w", err)
	}
	files, err := r.store.ListFiles(ctx, repo.ID)
	if err != nil {
		return ov, fmt.Errorf("list files: %w", err)
	}
	vulns, err := r.store.ListVulnerabilities(ctx, repo.ID)
	if err != nil {
		return ov, fmt.Errorf("list vulnerabilities: %w", err)
	}
	smells, err := r.store.ListCodeSmells(ctx, repo.ID)
	if err != nil {
		return ov, fmt.Errorf("list smells: %w", err)
	}
	pairs, err := r.store.ListDuplicationPairs(ctx, repo.ID)
	if err != nil {
		return ov, fmt.Errorf("list duplication pairs: %w", err)
	}

	ov.Files = len(files)
	ov.Symbols = len(symbols)
	ov.CodeSmells = len(smells)
	ov.DuplicationPairs = len(pairs)
	ov.Vulnerabilities = len(vulns)
	for _, v := range vulns {
		if v.Severity == storage.SeverityCritical {
			ov.CriticalVulns++
		}
	}

	total := 0
	documentable, documented := 0, 0
	for _, s := range symbols {
		total += s.Complexity
		if s.Complexity > ov.MaxComplexity {
			ov.MaxComplexity = s.Complexity
		}
		if s.Kind != storage.KindVariable {
			documentable++
			if s.HasDocstring {
				documented++
			}
		}
	}
	if len(symbols) > 0 {
		ov.AvgComplexity = float64(total) / float64(len(symbols))
	}
	if documentable > 0 {
		ov.DocstringCoverage = float64(documented) / float64(documentable) * 100.0
	}
	return ov, nil
}

var funcMap = template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"f1":  func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"verdict": func(passed bool) string {
		if passed {
			return "pass"
		}
		return "fail"
	},
}

const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Quality gate report: {{.Repo.Name}}</title>
<style>
  body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 60rem; color: #1a1a2e; }
  h1 { font-size: 1.4rem; }
  .badge { display: inline-block; padding: .25rem .75rem; border-radius: .35rem; color: #fff; font-weight: 600; }
  .badge.pass { background: #2e7d32; }
  .badge.fail { background: #c62828; }
  table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
  th, td { text-align: left; padding: .45rem .6rem; border-bottom: 1px solid #ddd; }
  th { background: #f5f5f5; }
  tr.fail td { background: #fdecea; }
  .cards { display: flex; flex-wrap: wrap; gap: .75rem; margin: 1rem 0; }
  .card { border: 1px solid #ddd; border-radius: .4rem; padding: .6rem .9rem; min-width: 9rem; }
  .card .num { font-size: 1.3rem; font-weight: 700; }
  .card .label { font-size: .8rem; color: #555; }
  footer { margin-top: 2rem; font-size: .75rem; color: #777; }
</style>
</head>
<body>
<h1>Quality gate report: {{.Repo.Name}}</h1>
<p>
  <span class="badge {{verdict .Result.Passed}}">{{if .Result.Passed}}PASSED{{else}}FAILED{{end}}</span>
  &nbsp;Quality score: <strong>{{f1 .Result.QualityScore}}</strong> / 100
  {{if .Result.BlockMerge}}&nbsp;&middot;&nbsp;<strong>merge blocked</strong>{{end}}
</p>
<p>{{.Result.Summary}}</p>

<h2>Overview</h2>
<div class="cards">
  <div class="card"><div class="num">{{.Overview.Files}}</div><div class="label">files</div></div>
  <div class="card"><div class="num">{{.Overview.Symbols}}</div><div class="label">symbols</div></div>
  <div class="card"><div class="num">{{f1 .Overview.AvgComplexity}}</div><div class="label">avg complexity</div></div>
  <div class="card"><div class="num">{{.Overview.MaxComplexity}}</div><div class="label">max complexity</div></div>
  <div class="card"><div class="num">{{pct .Overview.DocstringCoverage}}</div><div class="label">docstring coverage</div></div>
  <div class="card"><div class="num">{{.Overview.Vulnerabilities}}</div><div class="label">vulnerabilities ({{.Overview.CriticalVulns}} critical)</div></div>
  <div class="card"><div class="num">{{.Overview.CodeSmells}}</div><div class="label">code smells</div></div>
  <div class="card"><div class="num">{{.Overview.DuplicationPairs}}</div><div class="label">duplicate pairs</div></div>
</div>

<h2>Checks</h2>
<table>
  <tr><th>Check</th><th>Result</th><th>Value</th></tr>
  {{range .Result.Checks}}
  <tr class="{{verdict .Passed}}">
    <td>{{.Name}}</td>
    <td>{{if .Passed}}ok{{else}}failed{{end}}</td>
    <td>{{.Message}}</td>
  </tr>
  {{end}}
</table>

<footer>Run {{.Result.RunID}} &middot; generated {{.GeneratedAt}}</footer>
</body>
</html>
`
