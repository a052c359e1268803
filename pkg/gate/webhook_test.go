package gate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codequal/pkg/storage"
)

func seedRemoteRepo(t *testing.T, store *storage.Memory, cloneURL string) *storage.Repository {
	t.Helper()
	repo := &storage.Repository{
		Name:      "remote",
		Source:    storage.SourceRemote,
		OriginURL: cloneURL,
		Status:    storage.RepoStatusCompleted,
	}
	require.NoError(t, store.CreateRepository(context.Background(), repo))
	return repo
}

func prEvent(t *testing.T, eventType, cloneURL string) []byte {
	t.Helper()
	payload := map[string]any{
		"event_type": eventType,
		"pull_request": map[string]any{
			"number": 42,
			"title":  "Refactor parser",
			"head":   map[string]any{"sha": "abc123", "ref": "feature/parser"},
		},
		"repository": map[string]any{"clone_url": cloneURL},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body
}

func TestWebhook_PullRequestTriggersRun(t *testing.T) {
	store := storage.NewMemory()
	repo := seedRemoteRepo(t, store, "https://example.com/org/app.git")

	w := NewWebhook(NewEngine(store, nil, nil), store, "", nil)
	resp, err := w.Handle(context.Background(), prEvent(t, "pull_request.opened", "https://example.com/org/app.git"), "")
	require.NoError(t, err)
	require.NotNil(t, resp.Result)
	assert.False(t, resp.Ignored)

	run, err := store.GetRun(context.Background(), resp.Result.RunID)
	require.NoError(t, err)
	assert.Equal(t, repo.ID, run.RepoID)
	assert.Equal(t, "webhook", run.TriggeredBy)
	assert.Equal(t, 42, run.PRNumber)
	assert.Equal(t, "Refactor parser", run.PRTitle)
	assert.Equal(t, "abc123", run.CommitSHA)
	assert.Equal(t, "feature/parser", run.Branch)
}

func TestWebhook_CloneURLSuffixTolerance(t *testing.T) {
	store := storage.NewMemory()
	seedRemoteRepo(t, store, "https://example.com/org/app")

	w := NewWebhook(NewEngine(store, nil, nil), store, "", nil)
	resp, err := w.Handle(context.Background(), prEvent(t, "pull_request.synchronize", "https://example.com/org/app.git"), "")
	require.NoError(t, err)
	require.NotNil(t, resp.Result)
}

func TestWebhook_UnknownEventIgnored(t *testing.T) {
	store := storage.NewMemory()
	repo := seedRemoteRepo(t, store, "https://example.com/org/app.git")

	w := NewWebhook(NewEngine(store, nil, nil), store, "", nil)
	resp, err := w.Handle(context.Background(), prEvent(t, "push", "https://example.com/org/app.git"), "")
	require.NoError(t, err)
	assert.True(t, resp.Ignored)
	assert.Nil(t, resp.Result)

	runs, err := store.ListRuns(context.Background(), repo.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestWebhook_SignatureVerified(t *testing.T) {
	store := storage.NewMemory()
	seedRemoteRepo(t, store, "https://example.com/org/app.git")
	body := prEvent(t, "pull_request.reopened", "https://example.com/org/app.git")

	w := NewWebhook(NewEngine(store, nil, nil), store, "topsecret", nil)

	_, err := w.Handle(context.Background(), body, "sha256=deadbeef")
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = w.Handle(context.Background(), body, "")
	assert.ErrorIs(t, err, ErrBadSignature)

	resp, err := w.Handle(context.Background(), body, Signature("topsecret", body))
	require.NoError(t, err)
	require.NotNil(t, resp.Result)
}

func TestWebhook_NoSecretSkipsVerification(t *testing.T) {
	store := storage.NewMemory()
	seedRemoteRepo(t, store, "https://example.com/org/app.git")
	body := prEvent(t, "pull_request.opened", "https://example.com/org/app.git")

	w := NewWebhook(NewEngine(store, nil, nil), store, "", nil)
	resp, err := w.Handle(context.Background(), body, "sha256=not-checked")
	require.NoError(t, err)
	require.NotNil(t, resp.Result)
}

func TestWebhook_MalformedPayload(t *testing.T) {
	w := NewWebhook(NewEngine(storage.NewMemory(), nil, nil), storage.NewMemory(), "", nil)
	_, err := w.Handle(context.Background(), []byte("{not json"), "")
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestWebhook_UnknownRepository(t *testing.T) {
	store := storage.NewMemory()
	w := NewWebhook(NewEngine(store, nil, nil), store, "", nil)
	_, err := w.Handle(context.Background(), prEvent(t, "pull_request.opened", "https://example.com/none.git"), "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
