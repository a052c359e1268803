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

package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

// GenerateFileID generates a deterministic file ID from the repository
// ID and the normalized path. The repo ID is mixed in because paths are
// only unique within one repository.
func GenerateFileID(repoID uuid.UUID, filePath string) string {
	normalized := normalizePath(filePath)
	key := repoID.String() + "|" + normalized
	if len(key) <= 256 {
		return fmt.Sprintf("file:%s", key)
	}
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("file:%s", hex.EncodeToString(hash[:16]))
}

// GenerateSymbolID generates a deterministic symbol ID.
// Strategy: hash(repo | path | name | start_line | end_line).
// The signature is NOT included so IDs stay stable when parser
// improvements change signature extraction.
func GenerateSymbolID(repoID uuid.UUID, filePath, name string, startLine, endLine int) string {
	normalized := normalizePath(filePath)
	idStr := fmt.Sprintf("%s|%s|%s|%d|%d", repoID, normalized, name, startLine, endLine)
	hash := sha256.Sum256([]byte(idStr))
	return fmt.Sprintf("sym:%s", hex.EncodeToString(hash[:]))
}

// normalizePath normalizes a file path for consistent ID generation:
// forward slashes, no leading ./ or /, cleaned.
func normalizePath(path string) string {
	if len(path) >= 2 && path[0:2] == "./" {
		path = path[2:]
	}
	path = filepath.Clean(path)
	path = filepath.ToSlash(path)
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	return path
}
