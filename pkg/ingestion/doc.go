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

// Package ingestion turns a submitted repository into files and symbols.
//
// The pipeline runs in stages: fetch (shallow clone or archive unpack),
// discover (filesystem walk with language detection), parse (per-file
// symbol extraction, parallel across a worker pool), and persist
// (transactional replacement of the repository's files and symbols).
//
// Parsers implement the SymbolParser interface and register per
// language. Python and C walk Tree-sitter ASTs; COBOL and Assembly use
// column- and label-aware line scanners. A parser failure on one file
// is recorded on the file and never fails the repository.
//
// Progress is checkpointed per phase so a crashed ingest resumes at the
// last completed phase instead of restarting.
package ingestion
