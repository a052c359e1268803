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

// Package bootstrap wires process configuration and the storage backend.
//
// Configuration is environment-first: FromEnv reads DATABASE_URL,
// VECTOR_DIM, WORKERS, INGEST_SIZE_CAP, PROVIDER_TIMEOUT and
// WEBHOOK_SIGNING_SECRET, applying defaults for anything unset.
// CLI flags may override individual fields after the fact.
//
// # Typical startup
//
//	cfg, err := bootstrap.FromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store, err := bootstrap.OpenStore(ctx, cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// # Storage backends
//
// With DATABASE_URL set, OpenStore connects to PostgreSQL (pgvector
// required for the embedding index) and runs EnsureSchema, which is
// idempotent. Without it, the in-memory store is used; that mode is
// for tests and local experiments only.
package bootstrap
