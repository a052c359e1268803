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

// Package testing provides test helpers for codequal integration tests.
//
// The helpers seed the in-memory store with repositories, files,
// symbols and call edges so higher-level tests (API handlers, gate
// evaluation, reporting) do not repeat boilerplate.
//
// # Quick Start
//
// Use SetupTestStore to create an in-memory store:
//
//	func TestMyFeature(t *testing.T) {
//	    store := testing.SetupTestStore(t)
//	    repo := testing.SeedRepository(t, store, "fixture")
//
//	    testing.SeedFile(t, store, repo.ID, "f1", "app/auth.py", "python", src)
//	    testing.SeedSymbols(t, store, repo.ID, testing.Fn("s1", "f1", "login"))
//
//	    // Query and verify...
//	}
//
// # Seeding Test Data
//
// The package provides helpers for inserting common test entities:
//   - SeedRepository: Add a completed repository
//   - SeedFile: Add a source file
//   - SeedSymbols: Replace the repository's symbols
//   - SeedCallEdge: Add caller-to-callee edges
//   - Fn: Build a function symbol with defaults
//
// For tests against PostgreSQL, construct storage.NewPostgres directly
// with a DATABASE_URL pointing at a disposable database; the helpers
// accept any storage.Store.
package testing
