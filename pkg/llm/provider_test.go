package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderSelectsBackend(t *testing.T) {
	for providerType, wantName := range map[string]string{
		"mock":      "mock",
		"ollama":    "ollama",
		"":          "ollama",
		"openai":    "openai",
		"anthropic": "anthropic",
		"claude":    "anthropic",
	} {
		p, err := NewProvider(ProviderConfig{Type: providerType})
		require.NoError(t, err, "type %q", providerType)
		assert.Equal(t, wantName, p.Name(), "type %q", providerType)
	}
}

func TestNewProviderUnknownType(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Type: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown LLM provider type")
}

func TestMockProviderDefaultsToNoFindings(t *testing.T) {
	p := &MockProvider{}

	resp, err := p.Generate(context.Background(), GenerateRequest{Prompt: "Review validate_order."})
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.Text, "a review against the default mock reports nothing")
	assert.Equal(t, "mock-model", resp.Model)
	assert.True(t, resp.Done)
}

func TestMockProviderGenerateFunc(t *testing.T) {
	p := &MockProvider{
		GenerateFunc: func(_ context.Context, req GenerateRequest) (*GenerateResponse, error) {
			return &GenerateResponse{
				Text: `[{"smell_type": "long_method", "title": "Too long"}]`,
				Done: true,
			}, nil
		},
	}

	resp, err := p.Generate(context.Background(), GenerateRequest{Prompt: "def f(): ..."})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "long_method")
}

func TestOllamaGenerate(t *testing.T) {
	var got struct {
		Model   string         `json:"model"`
		Prompt  string         `json:"prompt"`
		Stream  bool           `json:"stream"`
		Options map[string]any `json:"options"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"response": "[{\"smell_type\": \"deep_nesting\", \"title\": \"Nested loops\"}]",
			"model": "codellama",
			"done": true,
			"prompt_eval_count": 40,
			"eval_count": 12
		}`))
	}))
	defer server.Close()

	p, err := NewProvider(ProviderConfig{Type: "ollama", BaseURL: server.URL, DefaultModel: "codellama"})
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), GenerateRequest{
		Prompt:      "Review validate_order for maintainability problems.",
		Temperature: 0.1,
		MaxTokens:   512,
	})
	require.NoError(t, err)

	assert.Equal(t, "codellama", got.Model)
	assert.False(t, got.Stream, "review completions must not stream")
	assert.Equal(t, float64(512), got.Options["num_predict"])
	assert.Contains(t, resp.Text, "deep_nesting")
	assert.Equal(t, 40, resp.PromptTokens)
	assert.Equal(t, 12, resp.OutputTokens)
	assert.True(t, resp.Done)
}

func TestOllamaGenerateRequiresModel(t *testing.T) {
	t.Setenv("OLLAMA_MODEL", "")

	p, err := NewProvider(ProviderConfig{Type: "ollama", BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not specified")
}

func TestOpenAIGenerate(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "[]"}, "finish_reason": "stop"}],
			"model": "gpt-4o-mini",
			"usage": {"prompt_tokens": 25, "completion_tokens": 2}
		}`))
	}))
	defer server.Close()

	p, err := NewProvider(ProviderConfig{Type: "openai", BaseURL: server.URL, APIKey: "test-key"})
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), GenerateRequest{Prompt: "Review helper."})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, "[]", resp.Text)
	assert.Equal(t, 25, resp.PromptTokens)
	assert.Equal(t, 2, resp.OutputTokens)
	assert.True(t, resp.Done)
}

func TestOpenAIGenerateErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid api key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	p, err := NewProvider(ProviderConfig{Type: "openai", BaseURL: server.URL, APIKey: "bad"})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestAnthropicGenerate(t *testing.T) {
	var gotKey, gotVersion string
	var got struct {
		MaxTokens int `json:"max_tokens"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/messages", r.URL.Path)
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"content": [
				{"type": "text", "text": "[{\"smell_type\": \"feature_envy\", "},
				{"type": "text", "text": "\"title\": \"Envious method\"}]"}
			],
			"model": "claude-3-5-sonnet-20241022",
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 30, "output_tokens": 9}
		}`))
	}))
	defer server.Close()

	p, err := NewProvider(ProviderConfig{Type: "anthropic", BaseURL: server.URL, APIKey: "test-key"})
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), GenerateRequest{Prompt: "Review parse_loop."})
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	assert.NotEmpty(t, gotVersion)
	assert.Equal(t, 1024, got.MaxTokens, "max_tokens is mandatory and defaulted")
	assert.Contains(t, resp.Text, "feature_envy")
	assert.Contains(t, resp.Text, "Envious method", "text blocks are concatenated")
	assert.Equal(t, 30, resp.PromptTokens)
	assert.True(t, resp.Done)
}

func TestProviderFromEnv(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "mock")
	p, err := ProviderFromEnv("LLM_PROVIDER")
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())

	t.Setenv("LLM_PROVIDER", "carrier-pigeon")
	_, err = ProviderFromEnv("LLM_PROVIDER")
	assert.Error(t, err)
}

func TestDefaultProviderFallsBackToMock(t *testing.T) {
	for _, v := range []string{"OLLAMA_HOST", "OLLAMA_BASE_URL", "OLLAMA_MODEL", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"} {
		t.Setenv(v, "")
	}

	p, err := DefaultProvider()
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())
}
