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

// Package analysis computes code-quality signals over an ingested
// repository: cyclomatic complexity and maintainability per symbol,
// the resolved call graph with dead-code and cycle detection, MinHash
// code duplication, and rule-based vulnerability and smell scanning
// with an optional LLM-assisted pass.
//
// Each analyzer reads from and writes back to a storage.Store; they
// are independent of each other and safe to run in parallel for the
// same repository as long as the scheduler holds the per-repo lock.
package analysis
