package analysis

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codequal/pkg/storage"
)

// seedRepo loads one repository's rows into a fresh memory store.
func seedRepo(t *testing.T, files []storage.File, symbols []storage.Symbol, edges []storage.CallEdge) (*storage.Memory, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemory()

	repo := &storage.Repository{Name: "seed", Source: storage.SourceUpload}
	require.NoError(t, store.CreateRepository(ctx, repo))
	for i := range files {
		files[i].RepoID = repo.ID
	}
	for i := range symbols {
		symbols[i].RepoID = repo.ID
	}
	for i := range edges {
		edges[i].RepoID = repo.ID
	}
	require.NoError(t, store.ReplaceFiles(ctx, repo.ID, files))
	require.NoError(t, store.ReplaceSymbols(ctx, repo.ID, symbols))
	require.NoError(t, store.ReplaceCallEdges(ctx, repo.ID, edges))
	return store, repo.ID
}

func fn(id, fileID, name string) storage.Symbol {
	return storage.Symbol{ID: id, FileID: fileID, Name: name, Kind: storage.KindFunction, LineStart: 1, LineEnd: 2}
}

func TestCallGraph_SameFileResolutionWins(t *testing.T) {
	store, repoID := seedRepo(t,
		[]storage.File{{ID: "f1", Path: "a.py", Language: "python"}, {ID: "f2", Path: "b.py", Language: "python"}},
		[]storage.Symbol{
			fn("s1", "f1", "caller"),
			fn("s2", "f1", "helper"),
			fn("s3", "f2", "helper"),
		},
		[]storage.CallEdge{{FromSymbolID: "s1", ToName: "helper", FileID: "f1", Line: 2}},
	)
	b := NewCallGraphBuilder(store, nil, nil)

	graph, err := b.Run(context.Background(), repoID)
	require.NoError(t, err)
	require.Len(t, graph.Edges, 1)
	assert.Equal(t, "s2", graph.Edges[0].ToSymbolID)
	assert.False(t, graph.Edges[0].IsExternal)
}

func TestCallGraph_AmbiguousStaysUnresolved(t *testing.T) {
	store, repoID := seedRepo(t,
		[]storage.File{{ID: "f1", Path: "a.py"}, {ID: "f2", Path: "b.py"}, {ID: "f3", Path: "c.py"}},
		[]storage.Symbol{
			fn("s1", "f1", "caller"),
			fn("s2", "f2", "helper"),
			fn("s3", "f3", "helper"),
		},
		[]storage.CallEdge{{FromSymbolID: "s1", ToName: "helper", FileID: "f1", Line: 2}},
	)
	b := NewCallGraphBuilder(store, nil, nil)

	graph, err := b.Run(context.Background(), repoID)
	require.NoError(t, err)
	require.Len(t, graph.Edges, 1)
	assert.Empty(t, graph.Edges[0].ToSymbolID)
	assert.False(t, graph.Edges[0].IsExternal, "ambiguous is not external")
}

func TestCallGraph_UnknownNameIsExternal(t *testing.T) {
	store, repoID := seedRepo(t,
		[]storage.File{{ID: "f1", Path: "a.py"}},
		[]storage.Symbol{fn("s1", "f1", "caller")},
		[]storage.CallEdge{{FromSymbolID: "s1", ToName: "json_loads", FileID: "f1", Line: 2}},
	)
	b := NewCallGraphBuilder(store, nil, nil)

	graph, err := b.Run(context.Background(), repoID)
	require.NoError(t, err)
	require.Len(t, graph.Edges, 1)
	assert.True(t, graph.Edges[0].IsExternal)
}

func TestDeadCode_ChainHead(t *testing.T) {
	store, repoID := seedRepo(t,
		[]storage.File{{ID: "f1", Path: "a.py"}},
		[]storage.Symbol{
			fn("sa", "f1", "a"),
			fn("sb", "f1", "b"),
			fn("sc", "f1", "c"),
		},
		[]storage.CallEdge{
			{FromSymbolID: "sa", ToName: "b", FileID: "f1", Line: 2},
			{FromSymbolID: "sb", ToName: "c", FileID: "f1", Line: 4},
		},
	)
	b := NewCallGraphBuilder(store, nil, nil)
	_, err := b.Run(context.Background(), repoID)
	require.NoError(t, err)

	dead, err := b.DeadCode(context.Background(), repoID)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "a", dead[0].Name)
	assert.Equal(t, 1, dead[0].OutgoingCalls)
	assert.Equal(t, "medium", dead[0].Severity)
}

func TestDeadCode_EntryPointsAndDundersExempt(t *testing.T) {
	store, repoID := seedRepo(t,
		[]storage.File{{ID: "f1", Path: "a.py"}},
		[]storage.Symbol{
			fn("s1", "f1", "main"),
			fn("s2", "f1", "__repr__"),
			fn("s3", "f1", "orphan"),
		},
		nil,
	)
	b := NewCallGraphBuilder(store, nil, nil)
	_, err := b.Run(context.Background(), repoID)
	require.NoError(t, err)

	dead, err := b.DeadCode(context.Background(), repoID)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "orphan", dead[0].Name)
	assert.Equal(t, "low", dead[0].Severity)
}

func TestDeadCode_CustomEntryPoint(t *testing.T) {
	store, repoID := seedRepo(t,
		[]storage.File{{ID: "f1", Path: "a.py"}},
		[]storage.Symbol{fn("s1", "f1", "handle_request")},
		nil,
	)
	b := NewCallGraphBuilder(store, []string{"handle_request"}, nil)
	_, err := b.Run(context.Background(), repoID)
	require.NoError(t, err)

	dead, err := b.DeadCode(context.Background(), repoID)
	require.NoError(t, err)
	assert.Empty(t, dead)
}

func TestCycles_ThreeMemberSCC(t *testing.T) {
	store, repoID := seedRepo(t,
		[]storage.File{{ID: "f1", Path: "a.py"}},
		[]storage.Symbol{
			fn("sa", "f1", "a"),
			fn("sb", "f1", "b"),
			fn("sc", "f1", "c"),
		},
		[]storage.CallEdge{
			{FromSymbolID: "sa", ToName: "b", FileID: "f1", Line: 2},
			{FromSymbolID: "sb", ToName: "c", FileID: "f1", Line: 4},
			{FromSymbolID: "sc", ToName: "a", FileID: "f1", Line: 6},
		},
	)
	b := NewCallGraphBuilder(store, nil, nil)
	_, err := b.Run(context.Background(), repoID)
	require.NoError(t, err)

	cycles, err := b.Cycles(context.Background(), repoID)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b", "c"}, cycles[0].Members)
	assert.Equal(t, 3, cycles[0].Length)
	assert.Equal(t, "high", cycles[0].Severity)
}

func TestCycles_SelfLoop(t *testing.T) {
	store, repoID := seedRepo(t,
		[]storage.File{{ID: "f1", Path: "a.py"}},
		[]storage.Symbol{fn("sr", "f1", "recurse")},
		[]storage.CallEdge{{FromSymbolID: "sr", ToName: "recurse", FileID: "f1", Line: 2}},
	)
	b := NewCallGraphBuilder(store, nil, nil)
	_, err := b.Run(context.Background(), repoID)
	require.NoError(t, err)

	cycles, err := b.Cycles(context.Background(), repoID)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"recurse"}, cycles[0].Members)
	assert.Equal(t, "medium", cycles[0].Severity)
}

func TestCycles_AcyclicGraph(t *testing.T) {
	store, repoID := seedRepo(t,
		[]storage.File{{ID: "f1", Path: "a.py"}},
		[]storage.Symbol{fn("sa", "f1", "a"), fn("sb", "f1", "b")},
		[]storage.CallEdge{{FromSymbolID: "sa", ToName: "b", FileID: "f1", Line: 2}},
	)
	b := NewCallGraphBuilder(store, nil, nil)
	_, err := b.Run(context.Background(), repoID)
	require.NoError(t, err)

	cycles, err := b.Cycles(context.Background(), repoID)
	require.NoError(t, err)
	assert.Empty(t, cycles)
}

func TestFileDependencies_ResolvesModules(t *testing.T) {
	store, repoID := seedRepo(t,
		[]storage.File{
			{ID: "f1", Path: "app/main.py", Language: "python"},
			{ID: "f2", Path: "app/util.py", Language: "python"},
		},
		nil, nil,
	)
	ctx := context.Background()
	require.NoError(t, store.ReplaceImportEdges(ctx, repoID, []storage.ImportEdge{
		{FromFileID: "f1", ToModule: "app.util", RepoID: repoID, Kind: "import"},
		{FromFileID: "f1", ToModule: "requests", RepoID: repoID, Kind: "import"},
	}))
	b := NewCallGraphBuilder(store, nil, nil)
	_, err := b.Run(ctx, repoID)
	require.NoError(t, err)

	deps, err := b.FileDependencies(ctx, repoID)
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, "app/util.py", deps[0].ToPath)
	assert.False(t, deps[0].External)
	assert.Equal(t, "requests", deps[1].ToModule)
	assert.True(t, deps[1].External)
}
