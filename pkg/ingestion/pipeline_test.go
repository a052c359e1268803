package ingestion

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codequal/pkg/storage"
)

func ingestZip(t *testing.T, entries map[string]string) (*storage.Memory, *storage.Repository, *Result) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemory()

	repo := &storage.Repository{
		ID:          uuid.New(),
		Name:        "fixture",
		Source:      storage.SourceUpload,
		ArchivePath: writeZip(t, entries),
		Status:      storage.RepoStatusPending,
	}
	require.NoError(t, store.CreateRepository(ctx, repo))

	pipeline := NewPipeline(store, Config{ParseWorkers: 2}, nil)
	result, err := pipeline.Run(ctx, repo)
	require.NoError(t, err)
	return store, repo, result
}

func TestPipeline_UploadEndToEnd(t *testing.T) {
	store, repo, result := ingestZip(t, map[string]string{
		"app/service.py": "def handler(request):\n    \"\"\"Handle one request.\"\"\"\n    return process(request)\n\ndef process(request):\n    return request\n",
		"native/add.c":   "int add(int a, int b) { return a + b; }\n",
		"README.md":      "# fixture\n",
	})
	ctx := context.Background()

	assert.Equal(t, 2, result.Files)
	assert.Equal(t, 3, result.Symbols)
	assert.Zero(t, result.ParseErrors)

	got, err := store.GetRepository(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.RepoStatusAnalyzing, got.Status)
	assert.Equal(t, 2, got.FileCount)
	assert.Equal(t, 3, got.SymbolCount)

	files, err := store.ListFiles(ctx, repo.ID)
	require.NoError(t, err)
	byPath := map[string]storage.File{}
	for _, f := range files {
		byPath[f.Path] = f
	}
	require.Contains(t, byPath, "app/service.py")
	assert.Equal(t, "python", byPath["app/service.py"].Language)
	assert.NotEmpty(t, byPath["app/service.py"].SHA256)
	assert.Equal(t, 6, byPath["app/service.py"].LineCount)

	symbols, err := store.ListSymbols(ctx, storage.SymbolFilter{RepoID: repo.ID})
	require.NoError(t, err)
	names := map[string]storage.Symbol{}
	for _, s := range symbols {
		names[s.Name] = s
	}
	require.Contains(t, names, "handler")
	assert.True(t, names["handler"].HasDocstring)
	assert.Equal(t, "Handle one request.", names["handler"].Docstring)
	assert.False(t, names["process"].HasDocstring)

	edges, err := store.ListCallEdges(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, names["handler"].ID, edges[0].FromSymbolID)
	assert.Equal(t, "process", edges[0].ToName)
	assert.Empty(t, edges[0].ToSymbolID, "Resolution happens later, during analysis")
}

func TestPipeline_ReingestReplacesRows(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	repo := &storage.Repository{
		ID:          uuid.New(),
		Name:        "fixture",
		Source:      storage.SourceUpload,
		ArchivePath: writeZip(t, map[string]string{"a.py": "def one(): pass\ndef two(): pass\n"}),
		Status:      storage.RepoStatusPending,
	}
	require.NoError(t, store.CreateRepository(ctx, repo))

	pipeline := NewPipeline(store, Config{}, nil)
	_, err := pipeline.Run(ctx, repo)
	require.NoError(t, err)

	// Second ingest from a smaller archive must not leave stale rows.
	repo.ArchivePath = writeZip(t, map[string]string{"a.py": "def one(): pass\n"})
	_, err = pipeline.Run(ctx, repo)
	require.NoError(t, err)

	symbols, err := store.ListSymbols(ctx, storage.SymbolFilter{RepoID: repo.ID})
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, "one", symbols[0].Name)
}

func TestPipeline_UnknownSourceFails(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	repo := &storage.Repository{
		ID:     uuid.New(),
		Name:   "broken",
		Source: storage.RepoSource("ftp"),
		Status: storage.RepoStatusPending,
	}
	require.NoError(t, store.CreateRepository(ctx, repo))

	pipeline := NewPipeline(store, Config{}, nil)
	_, err := pipeline.Run(ctx, repo)
	require.Error(t, err)

	got, err := store.GetRepository(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.RepoStatusFailed, got.Status)
	assert.NotEmpty(t, got.StatusReason)
}
