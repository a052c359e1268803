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
	"github.com/google/uuid"

	"github.com/kraklabs/codequal/internal/errors"
	"github.com/kraklabs/codequal/internal/ui"
)

// runReport executes the 'report' command: it fetches the stored HTML
// report for a gate run and writes it to a file or stdout.
func runReport(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	server := fs.String("server", "", "Server base URL (default: $CODEQUAL_SERVER or "+defaultServer+")")
	out := fs.String("out", "", "Write the report to this file (default: stdout)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codequal report [options] <run-id>

Fetches the HTML report rendered for a quality gate run. Run ids are
printed by 'codequal gate' and listed under /runs/{repo} on the API.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		errors.FatalError(errors.NewInputError(
			"A run id is required",
			fmt.Sprintf("Expected exactly one argument, got %d", fs.NArg()),
			"Pass the run id printed by 'codequal gate'",
		), globals.JSON)
	}
	runID, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		errors.FatalError(errors.NewInputError(
			"Invalid run id",
			fmt.Sprintf("%q is not a UUID", fs.Arg(0)),
			"Pass the run id printed by 'codequal gate'",
		), globals.JSON)
	}

	html, err := newClient(*server).report(context.Background(), runID)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if *out == "" {
		fmt.Print(html)
		return
	}
	if err := os.WriteFile(*out, []byte(html), 0644); err != nil {
		errors.FatalError(errors.NewInputError(
			"Cannot write report",
			err.Error(),
			"Check the output path and permissions",
		), globals.JSON)
	}
	ui.Successf("Report written to %s", *out)
}
