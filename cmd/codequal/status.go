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
	"github.com/kraklabs/codequal/pkg/storage"
)

// runStatus executes the 'status' command, listing repositories known
// to the server with their analysis state and entity counts.
func runStatus(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	server := fs.String("server", "", "Server base URL (default: $CODEQUAL_SERVER or "+defaultServer+")")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codequal status [options]

Lists repositories and their analysis state.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	repos, err := newClient(*server).listRepos(context.Background())
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(repos)
		return
	}
	printRepos(repos)
}

func printRepos(repos []storage.Repository) {
	if len(repos) == 0 {
		ui.Info("No repositories submitted yet.")
		fmt.Println("Submit one with: codequal submit --url <git-url>")
		return
	}

	ui.Header("Repositories")
	for _, repo := range repos {
		fmt.Printf("%s  %s\n", ui.Label(repo.Name), ui.DimText(repo.ID.String()))
		fmt.Printf("  Status:   %s\n", statusText(repo))
		if repo.OriginURL != "" {
			fmt.Printf("  Origin:   %s\n", repo.OriginURL)
		}
		if repo.Status == storage.RepoStatusCompleted {
			fmt.Printf("  Files:    %s\n", ui.CountText(repo.FileCount))
			fmt.Printf("  Symbols:  %s\n", ui.CountText(repo.SymbolCount))
		}
		fmt.Println()
	}
}

func statusText(repo storage.Repository) string {
	if repo.Status == storage.RepoStatusFailed && repo.StatusReason != "" {
		return fmt.Sprintf("%s (%s)", repo.Status, repo.StatusReason)
	}
	return string(repo.Status)
}
