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

package testing

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/kraklabs/codequal/pkg/storage"
)

// SetupTestStore creates an in-memory store for testing. The store is
// closed automatically when the test finishes.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    store := testing.SetupTestStore(t)
//	    repo := testing.SeedRepository(t, store, "fixture")
//
//	    // Run your tests...
//	}
func SetupTestStore(t *testing.T) *storage.Memory {
	t.Helper()

	store := storage.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// SeedRepository creates a completed repository with the given name.
func SeedRepository(t *testing.T, store storage.Store, name string) *storage.Repository {
	t.Helper()

	repo := &storage.Repository{
		Name:   name,
		Source: storage.SourceUpload,
		Status: storage.RepoStatusCompleted,
	}
	if err := store.CreateRepository(context.Background(), repo); err != nil {
		t.Fatalf("failed to seed repository: %v", err)
	}
	return repo
}

// SeedFile adds one source file to the repository.
//
// Example:
//
//	testing.SeedFile(t, store, repo.ID, "f1", "app/auth.py", "python", "def login(): pass\n")
func SeedFile(t *testing.T, store storage.Store, repoID uuid.UUID, id, path, language, content string) storage.File {
	t.Helper()

	file := storage.File{
		ID:       id,
		RepoID:   repoID,
		Path:     path,
		Language: language,
		Content:  content,
		ByteSize: int64(len(content)),
	}
	if err := store.ReplaceFiles(context.Background(), repoID, []storage.File{file}); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}
	return file
}

// SeedSymbols replaces the repository's symbols with the given set,
// stamping the repo id on each.
func SeedSymbols(t *testing.T, store storage.Store, repoID uuid.UUID, symbols ...storage.Symbol) {
	t.Helper()

	for i := range symbols {
		symbols[i].RepoID = repoID
	}
	if err := store.ReplaceSymbols(context.Background(), repoID, symbols); err != nil {
		t.Fatalf("failed to seed symbols: %v", err)
	}
}

// Fn builds a function symbol with sane defaults for tests.
//
// Example:
//
//	testing.SeedSymbols(t, store, repo.ID,
//	    testing.Fn("s1", "f1", "handle_auth"),
//	    testing.Fn("s2", "f1", "validate_token"),
//	)
func Fn(id, fileID, name string) storage.Symbol {
	return storage.Symbol{
		ID:        id,
		FileID:    fileID,
		Name:      name,
		Kind:      storage.KindFunction,
		LineStart: 1,
		LineEnd:   2,
	}
}

// SeedCallEdge adds one call edge to the repository.
func SeedCallEdge(t *testing.T, store storage.Store, repoID uuid.UUID, edges ...storage.CallEdge) {
	t.Helper()

	for i := range edges {
		edges[i].RepoID = repoID
	}
	if err := store.ReplaceCallEdges(context.Background(), repoID, edges); err != nil {
		t.Fatalf("failed to seed call edges: %v", err)
	}
}
