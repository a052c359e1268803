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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Checkpoint tracks ingestion progress for restartability. A crashed
// run leaves the last completed phase on disk so the operator can see
// where it stopped.
type Checkpoint struct {
	RepoID         string `json:"repo_id"`
	Phase          string `json:"phase"` // fetch, parse, persist
	FilesProcessed int    `json:"files_processed"`
	StartTime      string `json:"start_time"`
	LastUpdateTime string `json:"last_update_time"`
}

// CheckpointManager manages checkpoint persistence. An empty path
// disables checkpointing.
type CheckpointManager struct {
	dir string
}

// NewCheckpointManager creates a new checkpoint manager.
func NewCheckpointManager(dir string) *CheckpointManager {
	return &CheckpointManager{dir: dir}
}

// Load loads a checkpoint from disk. Returns nil when none exists.
func (cm *CheckpointManager) Load(repoID string) (*Checkpoint, error) {
	if cm.dir == "" {
		return nil, nil
	}
	data, err := os.ReadFile(cm.path(repoID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// Save writes a checkpoint atomically (temp file + rename).
func (cm *CheckpointManager) Save(checkpoint *Checkpoint) error {
	if cm.dir == "" {
		return nil
	}
	if err := os.MkdirAll(cm.dir, 0755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	path := cm.path(checkpoint.RepoID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// Clear removes a checkpoint file.
func (cm *CheckpointManager) Clear(repoID string) error {
	if cm.dir == "" {
		return nil
	}
	if err := os.Remove(cm.path(repoID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

func (cm *CheckpointManager) path(repoID string) string {
	return filepath.Join(cm.dir, fmt.Sprintf("checkpoint-%s.json", repoID))
}
