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
)

// runSubmit executes the 'submit' command: it sends a git URL or a zip
// archive to the server, which queues ingestion and analysis.
func runSubmit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	server := fs.String("server", "", "Server base URL (default: $CODEQUAL_SERVER or "+defaultServer+")")
	url := fs.String("url", "", "Git URL of the repository to analyze")
	archive := fs.String("archive", "", "Path to a zip archive to analyze")
	branch := fs.String("branch", "", "Branch to clone (remote submissions)")
	name := fs.String("name", "", "Display name (default: derived from the URL or filename)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codequal submit [options]

Submits a repository for analysis. Exactly one of --url or --archive
is required. Analysis runs asynchronously; poll with 'codequal status'.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  codequal submit --url https://github.com/org/app.git --branch main
  codequal submit --archive ./app.zip --name app
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if (*url == "") == (*archive == "") {
		errors.FatalError(errors.NewInputError(
			"Exactly one of --url or --archive is required",
			"Both or neither were given",
			"Pass a git URL with --url, or a zip archive with --archive",
		), globals.JSON)
	}

	ctx := context.Background()
	c := newClient(*server)

	spinner := NewSpinner(NewProgressConfig(globals), "Submitting...")
	var reply *submitReply
	var err error
	if *url != "" {
		reply, err = c.submitRemote(ctx, *url, *branch, *name)
	} else {
		reply, err = c.submitArchive(ctx, *archive, *name)
	}
	if spinner != nil {
		_ = spinner.Finish()
	}
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(reply)
		return
	}
	ui.Successf("Submitted: %s", reply.ID)
	ui.Infof("Status: %s. Poll with: codequal status", reply.Status)
}
