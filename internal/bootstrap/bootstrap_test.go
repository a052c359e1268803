package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{EnvDatabaseURL, EnvVectorDim, EnvWorkers, EnvIngestSizeCap, EnvProviderTimeout, EnvWebhookSecret} {
		t.Setenv(k, "")
	}
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, DefaultVectorDim, cfg.VectorDim)
	assert.Greater(t, cfg.Workers, 0)
	assert.Equal(t, int64(DefaultIngestSizeCap), cfg.IngestSizeCap)
	assert.Equal(t, DefaultProviderTO, cfg.ProviderTimeout)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv(EnvVectorDim, "1536")
	t.Setenv(EnvWorkers, "4")
	t.Setenv(EnvProviderTimeout, "90s")
	t.Setenv(EnvWebhookSecret, "hunter2")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 1536, cfg.VectorDim)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "90s", cfg.ProviderTimeout.String())
	assert.Equal(t, "hunter2", cfg.WebhookSecret)
}

func TestFromEnv_MalformedValues(t *testing.T) {
	t.Setenv(EnvVectorDim, "not-a-number")
	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv(EnvVectorDim, "")
	t.Setenv(EnvWorkers, "-2")
	_, err = FromEnv()
	assert.Error(t, err)
}

func TestOpenStore_MemoryFallback(t *testing.T) {
	store, err := OpenStore(context.Background(), Config{}, nil)
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { _ = store.Close() })
}

func TestMaskDatabaseURL(t *testing.T) {
	assert.Equal(t, "postgres://***", MaskDatabaseURL("postgres://user:pw@host:5432/db"))
	assert.Equal(t, "***", MaskDatabaseURL("user:pw@host"))
	assert.Equal(t, "", MaskDatabaseURL(""))
}
