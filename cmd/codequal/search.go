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
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codequal/internal/errors"
	"github.com/kraklabs/codequal/internal/output"
	"github.com/kraklabs/codequal/internal/ui"
)

// runSearch executes the 'search' command: semantic search over the
// indexed symbols of one or all repositories.
func runSearch(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	server := fs.String("server", "", "Server base URL (default: $CODEQUAL_SERVER or "+defaultServer+")")
	repo := fs.String("repo", "", "Restrict to one repository id")
	language := fs.String("language", "", "Restrict to one language")
	threshold := fs.Float64("threshold", 0, "Minimum similarity (default: server-side 0.3)")
	limit := fs.Int("limit", 0, "Maximum results (default: server-side 10)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codequal search [options] <query>

Searches indexed symbols by meaning, not by exact text. The query is
embedded and matched against symbol embeddings by cosine similarity.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  codequal search "parse configuration file"
  codequal search --repo 4f3c1a... --language python "retry with backoff"
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		errors.FatalError(errors.NewInputError(
			"A query is required",
			"No search query was given",
			"Pass the query as the last argument, quoted",
		), globals.JSON)
	}
	query := strings.Join(fs.Args(), " ")

	hits, err := newClient(*server).search(context.Background(), query, *repo, *language, *threshold, *limit)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(hits)
		return
	}

	if len(hits) == 0 {
		ui.Info("No matches.")
		return
	}
	for _, hit := range hits {
		fmt.Printf("%5.2f  %s  %s\n", hit.Similarity, ui.Label(hit.Symbol.Name),
			ui.DimText(fmt.Sprintf("%s:%d", hit.FilePath, hit.Symbol.LineStart)))
		if hit.Symbol.Signature != "" {
			fmt.Printf("       %s\n", hit.Symbol.Signature)
		}
	}
}
