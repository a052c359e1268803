// Copyright 2026 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateFileID_Deterministic(t *testing.T) {
	repoID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	path := "src/app/main.py"

	id1 := GenerateFileID(repoID, path)
	id2 := GenerateFileID(repoID, path)

	if id1 != id2 {
		t.Errorf("GenerateFileID should be deterministic: got %q and %q", id1, id2)
	}
	if !strings.HasPrefix(id1, "file:") {
		t.Errorf("GenerateFileID should start with 'file:': got %q", id1)
	}
}

func TestGenerateFileID_DifferentRepos(t *testing.T) {
	path := "src/app/main.py"

	id1 := GenerateFileID(uuid.New(), path)
	id2 := GenerateFileID(uuid.New(), path)

	if id1 == id2 {
		t.Errorf("Same path in different repositories must get different IDs: both got %q", id1)
	}
}

func TestGenerateFileID_WindowsPathNormalized(t *testing.T) {
	repoID := uuid.New()

	id1 := GenerateFileID(repoID, `src\app\main.py`)
	id2 := GenerateFileID(repoID, "src/app/main.py")

	if id1 != id2 {
		t.Errorf("Backslash paths should normalize to the same ID: got %q and %q", id1, id2)
	}
}

func TestGenerateSymbolID_Deterministic(t *testing.T) {
	repoID := uuid.New()

	id1 := GenerateSymbolID(repoID, "src/main.py", "handler", 10, 25)
	id2 := GenerateSymbolID(repoID, "src/main.py", "handler", 10, 25)

	if id1 != id2 {
		t.Errorf("GenerateSymbolID should be deterministic: got %q and %q", id1, id2)
	}
	if !strings.HasPrefix(id1, "sym:") {
		t.Errorf("GenerateSymbolID should start with 'sym:': got %q", id1)
	}
}

func TestGenerateSymbolID_LineRangeDisambiguates(t *testing.T) {
	repoID := uuid.New()

	id1 := GenerateSymbolID(repoID, "src/main.py", "handler", 10, 25)
	id2 := GenerateSymbolID(repoID, "src/main.py", "handler", 40, 55)

	if id1 == id2 {
		t.Errorf("Overloaded names at different lines must get different IDs: both got %q", id1)
	}
}
