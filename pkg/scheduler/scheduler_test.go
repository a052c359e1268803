package scheduler

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codequal/pkg/analysis"
	"github.com/kraklabs/codequal/pkg/ingestion"
	"github.com/kraklabs/codequal/pkg/search"
	"github.com/kraklabs/codequal/pkg/storage"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func newTestScheduler(t *testing.T, store storage.Store, cfg Config) *Scheduler {
	t.Helper()
	pipeline := ingestion.NewPipeline(store, ingestion.Config{ParseWorkers: 2}, nil)
	analyzers := Analyzers{
		Metrics:         analysis.NewMetricsAnalyzer(store, nil),
		Smells:          analysis.NewSmellDetector(store, nil, nil),
		CallGraph:       analysis.NewCallGraphBuilder(store, nil, nil),
		Duplication:     analysis.NewDuplicationDetector(store, 0, nil),
		Vulnerabilities: analysis.NewVulnerabilityScanner(store, nil),
		Embeddings:      search.NewGenerator(store, search.NewMockProvider(32, nil), 2, nil),
	}
	return New(store, pipeline, analyzers, cfg, nil)
}

func createUploadRepo(t *testing.T, store storage.Store, entries map[string]string) uuid.UUID {
	t.Helper()
	repo := &storage.Repository{
		Name:        "fixture",
		Source:      storage.SourceUpload,
		ArchivePath: writeZip(t, entries),
		Status:      storage.RepoStatusPending,
	}
	require.NoError(t, store.CreateRepository(context.Background(), repo))
	return repo.ID
}

func TestScheduler_EndToEnd(t *testing.T) {
	store := storage.NewMemory()
	repoID := createUploadRepo(t, store, map[string]string{
		"app/main.py": "def main():\n    helper()\n\ndef helper():\n    cursor.execute(f\"SELECT {x}\")\n",
	})
	s := newTestScheduler(t, store, Config{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	require.NoError(t, s.Enqueue(repoID))

	require.Eventually(t, func() bool {
		repo, err := store.GetRepository(context.Background(), repoID)
		return err == nil && repo.Status == storage.RepoStatusCompleted
	}, 10*time.Second, 20*time.Millisecond)

	repo, err := store.GetRepository(context.Background(), repoID)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.FileCount)
	assert.Equal(t, 2, repo.SymbolCount)

	symbols, err := store.ListSymbols(context.Background(), storage.SymbolFilter{RepoID: repoID})
	require.NoError(t, err)
	for _, sym := range symbols {
		assert.GreaterOrEqual(t, sym.Complexity, 1, sym.Name)
		assert.True(t, sym.MIApproximated)
	}

	edges, err := store.ListCallEdges(context.Background(), repoID)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	for _, e := range edges {
		if e.ToName == "helper" {
			assert.NotEmpty(t, e.ToSymbolID)
		}
	}

	vulns, err := store.ListVulnerabilities(context.Background(), repoID)
	require.NoError(t, err)
	assert.NotEmpty(t, vulns)
}

func TestScheduler_CancelQueuedJob(t *testing.T) {
	store := storage.NewMemory()
	repoID := createUploadRepo(t, store, map[string]string{"a.py": "def f(): pass\n"})
	s := newTestScheduler(t, store, Config{Workers: 1})

	// Cancel lands before any worker starts.
	require.NoError(t, s.Enqueue(repoID))
	s.Cancel(repoID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	require.Eventually(t, func() bool {
		repo, err := store.GetRepository(context.Background(), repoID)
		return err == nil && repo.Status == storage.RepoStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	repo, err := store.GetRepository(context.Background(), repoID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", repo.StatusReason)
}

func TestScheduler_CancelNothing(t *testing.T) {
	s := newTestScheduler(t, storage.NewMemory(), Config{})
	assert.False(t, s.Cancel(uuid.New()))
}

func TestScheduler_QueueFull(t *testing.T) {
	s := newTestScheduler(t, storage.NewMemory(), Config{QueueSize: 1})
	require.NoError(t, s.Enqueue(uuid.New()))
	assert.ErrorIs(t, s.Enqueue(uuid.New()), ErrQueueFull)
}

func TestScheduler_EnqueueAfterStop(t *testing.T) {
	s := newTestScheduler(t, storage.NewMemory(), Config{})
	s.Stop()
	assert.ErrorIs(t, s.Enqueue(uuid.New()), ErrStopped)
}

func TestKeyedMutex_Exclusion(t *testing.T) {
	km := newKeyedMutex()
	id := uuid.New()

	var mu sync.Mutex
	active, maxActive := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.lock(id)
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxActive, "one holder per key at a time")
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := newKeyedMutex()
	a := km.lock(uuid.New())

	done := make(chan struct{})
	go func() {
		unlock := km.lock(uuid.New())
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent keys must not block each other")
	}
	a()
}

func TestTransientClassification(t *testing.T) {
	assert.True(t, transient(assert.AnError) == false)
	assert.False(t, transient(nil))
	assert.False(t, transient(context.Canceled))
	assert.True(t, transient(errTimeout{}))
}

type errTimeout struct{}

func (errTimeout) Error() string { return "dial tcp: i/o timeout" }
