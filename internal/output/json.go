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

// Package output is the machine-readable side of the codequal CLI.
//
// Every command accepts --json; when set, results such as submit
// receipts, repository listings and gate verdicts are printed as JSON
// to stdout and errors as JSON to stderr, so CI pipelines can pipe the
// CLI straight into jq. The ui package is the human-readable
// counterpart, internal/errors the exit code contract.
//
// Typical use in a command:
//
//	result, err := client.gateCheck(ctx, repoID, req)
//	if err != nil {
//	    errors.FatalError(err, globalFlags.JSON)
//	}
//	if globalFlags.JSON {
//	    if err := output.JSON(result); err != nil {
//	        errors.FatalError(err, true)
//	    }
//	    return
//	}
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSON pretty-prints data to stdout with 2-space indentation. This is
// the shape every --json command result uses.
func JSON(data any) error {
	return JSONTo(os.Stdout, data)
}

// JSONTo is JSON against an arbitrary writer.
func JSONTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	return nil
}

// JSONCompact prints data to stdout on a single line, for callers that
// stream one record per line.
func JSONCompact(data any) error {
	return JSONCompactTo(os.Stdout, data)
}

// JSONCompactTo is JSONCompact against an arbitrary writer.
func JSONCompactTo(w io.Writer, data any) error {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	return nil
}

// ErrorJSON is the error envelope emitted in --json mode. It mirrors
// the {"error": ...} body the REST API returns, so scripted callers
// parse one shape whether the failure was local or server-side.
type ErrorJSON struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSONError writes err to stderr wrapped in [ErrorJSON]. Stdout stays
// clean for the command result.
func JSONError(err error) error {
	return JSONErrorTo(os.Stderr, err)
}

// JSONErrorTo is JSONError against an arbitrary writer.
func JSONErrorTo(w io.Writer, err error) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(ErrorJSON{Error: err.Error()}); encErr != nil {
		return fmt.Errorf("encode json error: %w", encErr)
	}
	return nil
}
