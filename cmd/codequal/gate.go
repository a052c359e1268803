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

package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codequal/internal/errors"
	"github.com/kraklabs/codequal/internal/output"
	"github.com/kraklabs/codequal/internal/ui"
	"github.com/kraklabs/codequal/pkg/gate"
)

// runGate executes the 'gate' command: it evaluates the quality gate
// for one repository and exits non-zero when the gate fails, so it can
// serve directly as a CI step or git hook.
//
// Exit codes: 0 gate passed, 1 gate failed, others per error class.
func runGate(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("gate", flag.ExitOnError)
	server := fs.String("server", "", "Server base URL (default: $CODEQUAL_SERVER or "+defaultServer+")")
	repo := fs.String("repo", "", "Repository id")
	url := fs.String("url", "", "Repository origin URL (alternative to --repo)")
	branch := fs.String("branch", "", "Branch under evaluation")
	commitSHA := fs.String("commit", "", "Commit SHA under evaluation")
	prNumber := fs.Int("pr", 0, "Pull request number")
	prTitle := fs.String("title", "", "Pull request title")
	configFile := fs.String("config", "", "Gate thresholds YAML (default: ./"+defaultConfigFile+" when present)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codequal gate [options]

Evaluates the quality gate against the repository's latest analysis.
One of --repo or --url is required. Exits 0 when the gate passes and
1 when it fails, so the command slots into CI pipelines and git hooks.

When a %s file exists (or --config is given), its thresholds
are pushed to the server before the check. Supported keys:
max_complexity, max_code_smells, max_critical_smells,
max_vulnerabilities, max_critical_vulnerabilities, min_quality_score,
max_duplication_percentage, block_on_failure.

Options:
`, defaultConfigFile)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  codequal gate --repo 4f3c1a... --branch main
  codequal gate --url https://github.com/org/app.git --commit "$(git rev-parse HEAD)"
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *repo == "" && *url == "" {
		errors.FatalError(errors.NewInputError(
			"One of --repo or --url is required",
			"No repository was identified",
			"Use 'codequal status' to list repository ids",
		), globals.JSON)
	}

	ctx := context.Background()
	c := newClient(*server)

	row, err := c.resolveRepo(ctx, *repo, *url)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	// Repo-local thresholds: an explicit --config must exist, the
	// default file is optional.
	path := *configFile
	if path == "" {
		if _, statErr := os.Stat(defaultConfigFile); statErr == nil {
			path = defaultConfigFile
		}
	}
	if path != "" {
		cfg, err := loadGateConfigFile(path)
		if err != nil {
			errors.FatalError(errors.NewConfigError(
				"Cannot load gate config",
				err.Error(),
				"Check the YAML keys against 'codequal gate --help'",
				err,
			), globals.JSON)
		}
		if err := c.putGateConfig(ctx, row.ID, cfg); err != nil {
			errors.FatalError(err, globals.JSON)
		}
	}

	spinner := NewSpinner(NewProgressConfig(globals), "Evaluating quality gate...")
	result, err := c.gateCheck(ctx, row.ID, *branch, *commitSHA, *prNumber, *prTitle)
	if spinner != nil {
		_ = spinner.Finish()
	}
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(result)
	} else {
		printGateResult(row.Name, result)
	}

	if !result.Passed {
		os.Exit(errors.ExitGateFailed)
	}
}

func printGateResult(repoName string, result *gate.GateResult) {
	ui.Header(fmt.Sprintf("Quality Gate: %s", repoName))

	for _, check := range result.Checks {
		if check.Passed {
			ui.Successf("%-28s %s", check.Name, check.Message)
		} else {
			ui.Errorf("%-28s %s", check.Name, check.Message)
		}
	}
	fmt.Println()

	fmt.Printf("%s %.1f\n", ui.Label("Quality score:"), result.QualityScore)
	if result.Passed {
		ui.Success(result.Summary)
	} else {
		ui.Error(result.Summary)
		if result.BlockMerge {
			ui.Warning("Merge is blocked by this gate.")
		}
	}
	fmt.Printf("\nReport: codequal report %s\n", result.RunID)
}
