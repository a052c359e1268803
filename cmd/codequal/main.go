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

// Package main implements the codequal CLI for submitting repositories,
// checking quality gates, and running the analysis server.
//
// Usage:
//
//	codequal serve                        Run the analysis server
//	codequal submit --url <git-url>       Submit a repository for analysis
//	codequal status [--json]              List repositories and their state
//	codequal gate --repo <id>             Evaluate the quality gate
//	codequal search <query>               Semantic code search
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codequal/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags carries output options shared by every command.
type GlobalFlags struct {
	JSON    bool // Output in JSON format (for applicable commands)
	NoColor bool // Disable color output
	Quiet   bool // Suppress non-essential output (progress, info messages)
	Verbose int  // Verbosity level: 0=normal, 1=-v (info), 2=-vv (debug)
}

func main() {
	globals := GlobalFlags{}
	var showVersion bool

	flag.BoolVar(&globals.JSON, "json", false, "Output as JSON where applicable")
	flag.BoolVar(&globals.NoColor, "no-color", false, "Disable colored output")
	flag.BoolVarP(&globals.Quiet, "quiet", "q", false, "Suppress non-essential output")
	flag.CountVarP(&globals.Verbose, "verbose", "v", "Increase verbosity (-v, -vv)")
	flag.BoolVar(&showVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `codequal - code quality analysis platform

codequal ingests repositories, parses them with tree-sitter, computes
complexity and maintainability metrics, builds call graphs, detects
duplication and vulnerabilities, and enforces configurable quality
gates over the results.

Usage:
  codequal <command> [options]

Commands:
  serve         Run the API and analysis server
  submit        Submit a repository (git URL or zip archive)
  status        List repositories and their analysis state
  gate          Evaluate the quality gate for a repository
  search        Semantic code search across indexed symbols
  report        Fetch the HTML report for a gate run
  install-hook  Install a git pre-push hook that runs the gate

Global Options:
  --json        Output as JSON where applicable
  --no-color    Disable colored output
  -q, --quiet   Suppress non-essential output
  -v            Increase verbosity (-v, -vv)
  --version     Show version and exit

Examples:
  codequal serve --addr :8080
  codequal submit --url https://github.com/org/app.git
  codequal submit --archive ./app.zip
  codequal status --json
  codequal gate --repo 4f3c... --branch main
  codequal search "parse configuration file"

Environment Variables:
  DATABASE_URL            Postgres DSN (empty selects the in-memory store)
  CODEQUAL_SERVER         Server base URL for client commands
  EMBEDDING_PROVIDER      mock | ollama | openai
  WEBHOOK_SIGNING_SECRET  HMAC secret for the CI webhook

For detailed command help: codequal <command> --help

`)
	}

	flag.Parse()

	// JSON output implies quiet; progress noise would corrupt the stream.
	if globals.JSON {
		globals.Quiet = true
	}
	ui.InitColors(globals.NoColor)

	if showVersion {
		fmt.Printf("codequal version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "serve":
		runServe(cmdArgs, globals)
	case "submit":
		runSubmit(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, globals)
	case "gate":
		runGate(cmdArgs, globals)
	case "search":
		runSearch(cmdArgs, globals)
	case "report":
		runReport(cmdArgs, globals)
	case "install-hook":
		runInstallHook(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
