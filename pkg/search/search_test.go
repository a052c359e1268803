package search

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codequal/pkg/storage"
)

func TestMockProvider_Deterministic(t *testing.T) {
	p := NewMockProvider(64, nil)
	a, err := p.Embed(context.Background(), "def handler(): pass")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "def handler(): pass")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := p.Embed(context.Background(), "something else")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestMockProvider_UnitNorm(t *testing.T) {
	p := NewMockProvider(128, nil)
	vec, err := p.Embed(context.Background(), "normalize me")
	require.NoError(t, err)
	require.Len(t, vec, 128)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestNormalize_ZeroVector(t *testing.T) {
	vec := Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, vec)
}

func TestEmbedText(t *testing.T) {
	lines := []string{
		"def fetch(url):",
		"    \"\"\"Fetch a URL.\"\"\"",
		"    return get(url)",
	}
	sym := storage.Symbol{
		Name:      "fetch",
		Signature: "def fetch(url)",
		Docstring: "Fetch a URL.",
		LineStart: 1,
		LineEnd:   3,
	}
	text := EmbedText(sym, lines)
	assert.Contains(t, text, "fetch")
	assert.Contains(t, text, "def fetch(url)")
	assert.Contains(t, text, "Fetch a URL.")
	assert.Contains(t, text, "return get(url)")
}

func TestEmbedText_BodyCapped(t *testing.T) {
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = "    x += 1"
	}
	lines[0] = "def loop():"
	lines[50] = "    marker_beyond_cap()"

	sym := storage.Symbol{Name: "loop", LineStart: 1, LineEnd: 100}
	text := EmbedText(sym, lines)
	assert.NotContains(t, text, "marker_beyond_cap")
}

// failNTimes fails the first n Embed calls with a transient error.
type failNTimes struct {
	inner EmbeddingProvider
	n     int
	calls int
}

func (f *failNTimes) Dim() int { return f.inner.Dim() }

func (f *failNTimes) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.n {
		return nil, errors.New("connection refused")
	}
	return f.inner.Embed(ctx, text)
}

func seedSymbols(t *testing.T) (*storage.Memory, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemory()
	repo := &storage.Repository{Name: "seed", Source: storage.SourceUpload}
	require.NoError(t, store.CreateRepository(ctx, repo))

	files := []storage.File{
		{ID: "f1", RepoID: repo.ID, Path: "net.py", Language: "python",
			Content: "def fetch_url(url):\n    return http_get(url)\n\ndef parse_config(path):\n    return load(path)\n"},
	}
	symbols := []storage.Symbol{
		{ID: "s1", FileID: "f1", RepoID: repo.ID, Name: "fetch_url", Kind: storage.KindFunction,
			LineStart: 1, LineEnd: 2, Signature: "def fetch_url(url)"},
		{ID: "s2", FileID: "f1", RepoID: repo.ID, Name: "parse_config", Kind: storage.KindFunction,
			LineStart: 4, LineEnd: 5, Signature: "def parse_config(path)"},
	}
	require.NoError(t, store.ReplaceFiles(ctx, repo.ID, files))
	require.NoError(t, store.ReplaceSymbols(ctx, repo.ID, symbols))
	return store, repo.ID
}

func TestGenerator_RunEmbedsAllSymbols(t *testing.T) {
	store, repoID := seedSymbols(t)
	g := NewGenerator(store, NewMockProvider(32, nil), 2, nil)

	result, err := g.Run(context.Background(), repoID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Embedded)
	assert.Equal(t, 0, result.Failed)
}

func TestGenerator_RetriesTransientErrors(t *testing.T) {
	store, repoID := seedSymbols(t)
	provider := &failNTimes{inner: NewMockProvider(32, nil), n: 2}
	g := NewGenerator(store, provider, 1, nil)
	g.SetRetryConfig(RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	})

	result, err := g.Run(context.Background(), repoID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Embedded)
	assert.Equal(t, 0, result.Failed)
	assert.Greater(t, provider.calls, 2)
}

func TestSearcher_ExactTextRanksFirst(t *testing.T) {
	store, repoID := seedSymbols(t)
	provider := NewMockProvider(32, nil)
	g := NewGenerator(store, provider, 1, nil)
	_, err := g.Run(context.Background(), repoID)
	require.NoError(t, err)

	// The mock provider is hash-based, so querying with one symbol's
	// exact embed text guarantees similarity 1.0 for that symbol.
	symbols, err := store.ListSymbols(context.Background(), storage.SymbolFilter{RepoID: repoID})
	require.NoError(t, err)
	var target storage.Symbol
	for _, s := range symbols {
		if s.Name == "fetch_url" {
			target = s
		}
	}
	files, err := store.ListFiles(context.Background(), repoID)
	require.NoError(t, err)
	queryText := EmbedText(target, splitContent(files[0].Content))

	s := NewSearcher(store, provider, nil)
	hits, err := s.Search(context.Background(), queryText, Options{RepoID: repoID, Threshold: 0.99})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "fetch_url", hits[0].Symbol.Name)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-5)
}

func TestSearcher_EmptyQueryRejected(t *testing.T) {
	store, _ := seedSymbols(t)
	s := NewSearcher(store, NewMockProvider(32, nil), nil)
	_, err := s.Search(context.Background(), "", Options{})
	assert.Error(t, err)
}

func TestSearcher_LanguageFilter(t *testing.T) {
	store, repoID := seedSymbols(t)
	provider := NewMockProvider(32, nil)
	g := NewGenerator(store, provider, 1, nil)
	_, err := g.Run(context.Background(), repoID)
	require.NoError(t, err)

	s := NewSearcher(store, provider, nil)
	hits, err := s.Search(context.Background(), "anything", Options{RepoID: repoID, Language: "cobol", Threshold: 0.0001})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func splitContent(content string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			lines = append(lines, content[start:i])
			start = i + 1
		}
	}
	if start < len(content) {
		lines = append(lines, content[start:])
	}
	return lines
}
