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

package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T, s Store, source RepoSource, url, branch string) *Repository {
	t.Helper()
	repo := &Repository{
		Name:      "test-repo",
		Source:    source,
		OriginURL: url,
		Branch:    branch,
		Status:    RepoStatusPending,
	}
	require.NoError(t, s.CreateRepository(context.Background(), repo))
	return repo
}

func TestCreateRepositoryDuplicateRemote(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	newTestRepo(t, s, SourceRemote, "https://example.com/org/repo.git", "main")

	dup := &Repository{
		Name:      "again",
		Source:    SourceRemote,
		OriginURL: "https://example.com/org/repo.git",
		Branch:    "main",
	}
	err := s.CreateRepository(ctx, dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)

	// Different branch of the same origin is fine.
	other := &Repository{
		Name:      "develop",
		Source:    SourceRemote,
		OriginURL: "https://example.com/org/repo.git",
		Branch:    "develop",
	}
	assert.NoError(t, s.CreateRepository(ctx, other))

	// Uploads are never deduplicated by origin.
	up := &Repository{Name: "upload", Source: SourceUpload}
	assert.NoError(t, s.CreateRepository(ctx, up))
}

func TestUpdateRepositoryStatusWithCounts(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	repo := newTestRepo(t, s, SourceUpload, "", "")

	err := s.UpdateRepositoryStatus(ctx, repo.ID, RepoStatusCompleted, "", &RepoCounts{Files: 3, Symbols: 42})
	require.NoError(t, err)

	got, err := s.GetRepository(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, RepoStatusCompleted, got.Status)
	assert.Equal(t, 3, got.FileCount)
	assert.Equal(t, 42, got.SymbolCount)

	err = s.UpdateRepositoryStatus(ctx, uuid.New(), RepoStatusFailed, "nope", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSymbolsFiltering(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	repo := newTestRepo(t, s, SourceUpload, "", "")

	files := []File{
		{ID: "file:a.py", RepoID: repo.ID, Path: "a.py", Language: "python"},
		{ID: "file:b.c", RepoID: repo.ID, Path: "b.c", Language: "c"},
	}
	require.NoError(t, s.ReplaceFiles(ctx, repo.ID, files))

	symbols := []Symbol{
		{ID: "sym:1", FileID: "file:a.py", RepoID: repo.ID, Name: "alpha", Kind: KindFunction, LineStart: 1, LineEnd: 3, Complexity: 1},
		{ID: "sym:2", FileID: "file:a.py", RepoID: repo.ID, Name: "Beta", Kind: KindClass, LineStart: 5, LineEnd: 20, Complexity: 1},
		{ID: "sym:3", FileID: "file:b.c", RepoID: repo.ID, Name: "gamma", Kind: KindFunction, LineStart: 1, LineEnd: 9, Complexity: 2},
	}
	require.NoError(t, s.ReplaceSymbols(ctx, repo.ID, symbols))

	got, err := s.ListSymbols(ctx, SymbolFilter{RepoID: repo.ID, Language: "python"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListSymbols(ctx, SymbolFilter{RepoID: repo.ID, Kind: KindFunction})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListSymbols(ctx, SymbolFilter{RepoID: repo.ID, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "sym:2", got[0].ID)
}

func TestQueryEmbeddingsRankingAndThreshold(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	repo := newTestRepo(t, s, SourceUpload, "", "")

	require.NoError(t, s.ReplaceFiles(ctx, repo.ID, []File{
		{ID: "file:a.py", RepoID: repo.ID, Path: "a.py", Language: "python"},
	}))
	require.NoError(t, s.ReplaceSymbols(ctx, repo.ID, []Symbol{
		{ID: "sym:1", FileID: "file:a.py", RepoID: repo.ID, Name: "exact", Kind: KindFunction},
		{ID: "sym:2", FileID: "file:a.py", RepoID: repo.ID, Name: "close", Kind: KindFunction},
		{ID: "sym:3", FileID: "file:a.py", RepoID: repo.ID, Name: "far", Kind: KindFunction},
	}))

	require.NoError(t, s.UpsertEmbeddings(ctx, []Embedding{
		{SymbolID: "sym:1", RepoID: repo.ID, Dim: 2, Vector: []float32{1, 0}},
		{SymbolID: "sym:2", RepoID: repo.ID, Dim: 2, Vector: []float32{0.8, 0.6}},
		{SymbolID: "sym:3", RepoID: repo.ID, Dim: 2, Vector: []float32{0, 1}},
	}))

	hits, err := s.QueryEmbeddings(ctx, VectorQuery{
		Vector:    []float32{1, 0},
		Threshold: 0.5,
		K:         10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "sym:1", hits[0].Symbol.ID)
	assert.Equal(t, "sym:2", hits[1].Symbol.ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestDuplicationPairCanonicalOrdering(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	repo := newTestRepo(t, s, SourceUpload, "", "")

	bad := []DuplicationPair{{
		ID: "dup:1", RepoID: repo.ID,
		File1ID: "file:z", File2ID: "file:a",
		Similarity: 0.9,
	}}
	assert.Error(t, s.ReplaceDuplicationPairs(ctx, repo.ID, bad))

	good := []DuplicationPair{{
		ID: "dup:1", RepoID: repo.ID,
		File1ID: "file:a", File2ID: "file:z",
		Similarity: 0.9,
	}}
	assert.NoError(t, s.ReplaceDuplicationPairs(ctx, repo.ID, good))
}

func TestCompleteRunTerminalImmutability(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	repo := newTestRepo(t, s, SourceUpload, "", "")

	run := &Run{RepoID: repo.ID, TriggeredBy: "manual"}
	require.NoError(t, s.CreateRun(ctx, run))
	assert.Equal(t, RunRunning, run.Status)

	require.NoError(t, s.CompleteRun(ctx, run.ID, RunFailed, []byte(`{"passed":false}`), ""))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, got.Status)
	require.NotNil(t, got.CompletedAt)

	// A second completion must be rejected.
	err = s.CompleteRun(ctx, run.ID, RunPassed, nil, "")
	assert.ErrorIs(t, err, ErrTerminalRun)
}

func TestGateConfigDefaults(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	repo := newTestRepo(t, s, SourceUpload, "", "")

	cfg, err := s.GetGateConfig(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.MaxComplexity)
	assert.Equal(t, 20, cfg.MaxCodeSmells)
	assert.Equal(t, 0, cfg.MaxCriticalSmells)
	assert.Equal(t, 5, cfg.MaxVulnerabilities)
	assert.Equal(t, 0, cfg.MaxCriticalVulnerabilities)
	assert.Equal(t, 70.0, cfg.MinQualityScore)
	assert.Equal(t, 10.0, cfg.MaxDuplicationPercentage)
	assert.True(t, cfg.BlockOnFailure)

	cfg.MaxComplexity = 15
	require.NoError(t, s.PutGateConfig(ctx, cfg))
	got, err := s.GetGateConfig(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, got.MaxComplexity)
}
