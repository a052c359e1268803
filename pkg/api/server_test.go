package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codequal/pkg/analysis"
	"github.com/kraklabs/codequal/pkg/gate"
	"github.com/kraklabs/codequal/pkg/ingestion"
	"github.com/kraklabs/codequal/pkg/report"
	"github.com/kraklabs/codequal/pkg/scheduler"
	"github.com/kraklabs/codequal/pkg/search"
	"github.com/kraklabs/codequal/pkg/storage"
)

// newTestServer wires the full stack over the in-memory store. The
// scheduler is constructed but not started; submit tests only check
// enqueueing.
func newTestServer(t *testing.T) (*Server, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	provider := search.NewMockProvider(32, nil)
	pipeline := ingestion.NewPipeline(store, ingestion.Config{}, nil)
	sched := scheduler.New(store, pipeline, scheduler.Analyzers{
		Metrics:         analysis.NewMetricsAnalyzer(store, nil),
		Smells:          analysis.NewSmellDetector(store, nil, nil),
		CallGraph:       analysis.NewCallGraphBuilder(store, nil, nil),
		Duplication:     analysis.NewDuplicationDetector(store, 0, nil),
		Vulnerabilities: analysis.NewVulnerabilityScanner(store, nil),
		Embeddings:      search.NewGenerator(store, provider, 2, nil),
	}, scheduler.Config{}, nil)
	t.Cleanup(sched.Stop)

	engine := gate.NewEngine(store, report.NewRenderer(store, nil), nil)
	deps := Deps{
		Store:     store,
		Scheduler: sched,
		Searcher:  search.NewSearcher(store, provider, nil),
		CallGraph: analysis.NewCallGraphBuilder(store, nil, nil),
		Gate:      engine,
		Webhook:   gate.NewWebhook(engine, store, "", nil),
		UploadDir: t.TempDir(),
	}
	return NewServer(":0", deps, nil), store
}

func seedCompletedRepo(t *testing.T, store *storage.Memory) *storage.Repository {
	t.Helper()
	ctx := context.Background()
	repo := &storage.Repository{Name: "demo", Source: storage.SourceUpload, Status: storage.RepoStatusCompleted}
	require.NoError(t, store.CreateRepository(ctx, repo))

	files := []storage.File{{ID: "f1", RepoID: repo.ID, Path: "app/main.py", Language: "python",
		Content: "def main():\n    helper()\n\ndef helper():\n    pass\n"}}
	symbols := []storage.Symbol{
		{ID: "s1", FileID: "f1", RepoID: repo.ID, Name: "main", Kind: storage.KindFunction, LineStart: 1, LineEnd: 2, Complexity: 1},
		{ID: "s2", FileID: "f1", RepoID: repo.ID, Name: "helper", Kind: storage.KindFunction, LineStart: 4, LineEnd: 5, Complexity: 1},
	}
	require.NoError(t, store.ReplaceFiles(ctx, repo.ID, files))
	require.NoError(t, store.ReplaceSymbols(ctx, repo.ID, symbols))
	require.NoError(t, store.ReplaceCallEdges(ctx, repo.ID, []storage.CallEdge{
		{FromSymbolID: "s1", ToName: "helper", ToSymbolID: "s2", FileID: "f1", RepoID: repo.ID, Line: 2},
	}))
	return repo
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSubmit_RemoteRepo(t *testing.T) {
	// The scheduler is deliberately not started; submit only enqueues.
	s, store := newTestServer(t)

	rec := doJSON(t, s.Router(), http.MethodPost, "/repos/submit",
		map[string]string{"url": "https://example.com/org/app.git", "branch": "main"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, storage.RepoStatusPending, resp.Status)

	repo, err := store.GetRepository(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "app", repo.Name, "name derived from URL")
	assert.Equal(t, storage.SourceRemote, repo.Source)
}

func TestSubmit_MissingURL(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodPost, "/repos/submit", map[string]string{"branch": "main"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmit_DuplicateRemote(t *testing.T) {
	s, _ := newTestServer(t)

	body := map[string]string{"url": "https://example.com/org/app.git", "branch": "main"}
	first := doJSON(t, s.Router(), http.MethodPost, "/repos/submit", body)
	require.Equal(t, http.StatusAccepted, first.Code)

	second := doJSON(t, s.Router(), http.MethodPost, "/repos/submit", body)
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestGetRepo(t *testing.T) {
	s, store := newTestServer(t)
	repo := seedCompletedRepo(t, store)

	rec := doJSON(t, s.Router(), http.MethodGet, "/repos/"+repo.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"demo"`)

	rec = doJSON(t, s.Router(), http.MethodGet, "/repos/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s.Router(), http.MethodGet, "/repos/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListFilesAndContent(t *testing.T) {
	s, store := newTestServer(t)
	repo := seedCompletedRepo(t, store)

	rec := doJSON(t, s.Router(), http.MethodGet, "/repos/"+repo.ID.String()+"/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "app/main.py")
	assert.NotContains(t, rec.Body.String(), "def main", "content is not in the listing")

	rec = doJSON(t, s.Router(), http.MethodGet, "/repos/"+repo.ID.String()+"/files/app/main.py/content", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "def main():")

	rec = doJSON(t, s.Router(), http.MethodGet, "/repos/"+repo.ID.String()+"/files/app/missing.py/content", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSymbols_Paged(t *testing.T) {
	s, store := newTestServer(t)
	repo := seedCompletedRepo(t, store)

	rec := doJSON(t, s.Router(), http.MethodGet, "/repos/"+repo.ID.String()+"/symbols?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var symbols []storage.Symbol
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &symbols))
	assert.Len(t, symbols, 1)
}

func TestCallGraphEndpoints(t *testing.T) {
	s, store := newTestServer(t)
	repo := seedCompletedRepo(t, store)
	base := "/repos/" + repo.ID.String()

	rec := doJSON(t, s.Router(), http.MethodGet, base+"/call-graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var graph callGraphResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &graph))
	assert.Len(t, graph.Nodes, 2)
	assert.Len(t, graph.Edges, 1)

	for _, path := range []string{"/dead-code", "/circular-deps", "/dependencies"} {
		rec := doJSON(t, s.Router(), http.MethodGet, base+path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestSemanticSearch(t *testing.T) {
	s, store := newTestServer(t)
	repo := seedCompletedRepo(t, store)

	g := search.NewGenerator(store, search.NewMockProvider(32, nil), 1, nil)
	_, err := g.Run(context.Background(), repo.ID)
	require.NoError(t, err)

	rec := doJSON(t, s.Router(), http.MethodPost, "/search/semantic",
		map[string]any{"query": "main", "threshold": 0.0001, "repo": repo.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Hits)

	rec = doJSON(t, s.Router(), http.MethodPost, "/search/semantic", map[string]any{"query": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGateConfigRoundTrip(t *testing.T) {
	s, store := newTestServer(t)
	repo := seedCompletedRepo(t, store)
	base := "/quality-gate/" + repo.ID.String()

	rec := doJSON(t, s.Router(), http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg storage.GateConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 10, cfg.MaxComplexity, "defaults until configured")

	cfg.MaxComplexity = 25
	rec = doJSON(t, s.Router(), http.MethodPut, base, cfg)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s.Router(), http.MethodGet, base, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 25, cfg.MaxComplexity)
}

func TestGateCheckAndReport(t *testing.T) {
	s, store := newTestServer(t)
	repo := seedCompletedRepo(t, store)

	rec := doJSON(t, s.Router(), http.MethodPost, "/quality-gate/"+repo.ID.String()+"/check",
		map[string]any{"branch": "main"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result gate.GateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Passed)
	require.NotEqual(t, uuid.Nil, result.RunID)

	rec = doJSON(t, s.Router(), http.MethodGet, "/runs/"+repo.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []storage.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, storage.RunPassed, runs[0].Status)

	rec = doJSON(t, s.Router(), http.MethodGet, "/report/"+result.RunID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Quality gate report")

	rec = doJSON(t, s.Router(), http.MethodGet, "/report/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()
	repo := &storage.Repository{
		Name: "remote", Source: storage.SourceRemote,
		OriginURL: "https://example.com/org/app.git",
		Status:    storage.RepoStatusCompleted,
	}
	require.NoError(t, store.CreateRepository(ctx, repo))

	payload := map[string]any{
		"event_type": "pull_request.opened",
		"pull_request": map[string]any{
			"number": 7, "title": "Fix login",
			"head": map[string]any{"sha": "cafe12", "ref": "fix/login"},
		},
		"repository": map[string]any{"clone_url": "https://example.com/org/app.git"},
	}
	rec := doJSON(t, s.Router(), http.MethodPost, "/webhook/ci", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ignored":false`)

	payload["event_type"] = "push"
	rec = doJSON(t, s.Router(), http.MethodPost, "/webhook/ci", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ignored":true`)
}

func TestDeleteRepo(t *testing.T) {
	s, store := newTestServer(t)
	repo := seedCompletedRepo(t, store)

	rec := doJSON(t, s.Router(), http.MethodDelete, "/repos/"+repo.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := store.GetRepository(context.Background(), repo.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestServerShutdown(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}
