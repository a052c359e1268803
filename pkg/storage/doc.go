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

// Package storage provides durable persistence for repositories, files,
// symbols, analysis results, embeddings, and quality-gate runs.
//
// This package defines the Store interface that the rest of the engine
// programs against, plus two implementations:
//
//   - Postgres: production backend on PostgreSQL with pgvector for the
//     embedding index. All writes touching one repository are grouped
//     into per-phase transactions.
//   - Memory: in-process backend used by tests and by the pre-commit
//     helper when no DATABASE_URL is configured.
//
// # Quick Start
//
// Open a Postgres store and initialize the schema:
//
//	store, err := storage.NewPostgres(ctx, os.Getenv("DATABASE_URL"), 768)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.EnsureSchema(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// EnsureSchema is idempotent and safe to call on every startup.
//
// # Identity
//
// Repositories and runs carry random UUIDs. Files and symbols carry
// deterministic sha256-derived IDs ("file:<path>", "sym:<hex>") so a
// re-ingest of the same content produces the same IDs and replacement
// stays idempotent.
//
// # Thread Safety
//
// Both backends are safe for concurrent use. The Memory backend guards
// its maps with a RWMutex; Postgres relies on the connection pool and
// read-committed isolation.
package storage
