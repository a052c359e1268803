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
	"bytes"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kraklabs/codequal/pkg/storage"
)

// defaultConfigFile is looked for in the working directory when
// 'codequal gate' runs without --config.
const defaultConfigFile = ".codequal.yml"

// loadGateConfigFile reads gate thresholds from a YAML file. Keys left
// out keep the stock defaults; unknown keys are an error so typos in
// CI configs fail loudly instead of silently passing gates.
//
// Example .codequal.yml:
//
//	max_complexity: 15
//	max_critical_vulnerabilities: 0
//	min_quality_score: 80
//	block_on_failure: true
func loadGateConfigFile(path string) (*storage.GateConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := storage.DefaultGateConfig(uuid.Nil)
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}
