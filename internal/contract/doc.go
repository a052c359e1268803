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

// Package contract provides request validation constants and utilities.
//
// This internal package contains the limits applied to inbound API
// requests before any work starts: archive upload size and semantic
// search query length.
//
// # Upload Size Limits
//
// Uploads are capped to prevent disk and memory exhaustion:
//
//	// Default cap is 512 MiB
//	limit := contract.UploadLimitBytes()
//
//	// Validate an upload before accepting it
//	result := contract.ValidateUploadSize(header.Size)
//	if !result.OK {
//	    log.Printf("Validation failed: %s", result.Message)
//	}
//
// # Configuration via Environment
//
// The cap can be adjusted via the INGEST_SIZE_CAP environment variable
// (bytes). This is useful for environments with limited disk or when
// importing very large repositories:
//
//	export INGEST_SIZE_CAP=134217728  # 128 MiB
//
// If the environment variable is not set or invalid, the default cap
// of 512 MiB (DefaultUploadLimitBytes) is used.
package contract
