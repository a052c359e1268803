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

package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/kraklabs/codequal/pkg/storage"
)

// Env variable names read by FromEnv.
const (
	EnvDatabaseURL     = "DATABASE_URL"
	EnvVectorDim       = "VECTOR_DIM"
	EnvWorkers         = "WORKERS"
	EnvIngestSizeCap   = "INGEST_SIZE_CAP"
	EnvProviderTimeout = "PROVIDER_TIMEOUT"
	EnvWebhookSecret   = "WEBHOOK_SIGNING_SECRET"
)

// Defaults applied when the environment is silent.
const (
	DefaultVectorDim     = 768
	DefaultIngestSizeCap = 512 << 20 // 512 MiB
	DefaultProviderTO    = 120 * time.Second
)

// Config is the process configuration, environment-first.
type Config struct {
	// DatabaseURL selects postgres; empty selects the in-memory store.
	DatabaseURL string

	// VectorDim is the embedding dimension. Must match the provider.
	VectorDim int

	// Workers sizes the scheduler pool. Default 2 * NumCPU.
	Workers int

	// IngestSizeCap bounds one archive or checkout in bytes.
	IngestSizeCap int64

	// ProviderTimeout bounds one embedding or LLM provider call.
	ProviderTimeout time.Duration

	// WebhookSecret enables HMAC verification of CI webhooks when set.
	WebhookSecret string
}

// FromEnv builds a Config from the process environment, applying
// defaults for anything unset. Malformed numeric values are an error
// rather than a silent fallback.
func FromEnv() (Config, error) {
	cfg := Config{
		DatabaseURL:     os.Getenv(EnvDatabaseURL),
		VectorDim:       DefaultVectorDim,
		Workers:         2 * runtime.NumCPU(),
		IngestSizeCap:   DefaultIngestSizeCap,
		ProviderTimeout: DefaultProviderTO,
		WebhookSecret:   os.Getenv(EnvWebhookSecret),
	}

	if v := os.Getenv(EnvVectorDim); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("%s: expected positive integer, got %q", EnvVectorDim, v)
		}
		cfg.VectorDim = n
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("%s: expected positive integer, got %q", EnvWorkers, v)
		}
		cfg.Workers = n
	}
	if v := os.Getenv(EnvIngestSizeCap); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("%s: expected positive integer, got %q", EnvIngestSizeCap, v)
		}
		cfg.IngestSizeCap = n
	}
	if v := os.Getenv(EnvProviderTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("%s: expected duration like 90s, got %q", EnvProviderTimeout, v)
		}
		cfg.ProviderTimeout = d
	}
	return cfg, nil
}

// OpenStore connects the configured store and ensures the schema.
// With no DATABASE_URL the in-memory store is returned, which is only
// suitable for tests and local experiments.
func OpenStore(ctx context.Context, cfg Config, logger *slog.Logger) (storage.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.DatabaseURL == "" {
		logger.Warn("bootstrap.store.memory", "reason", "DATABASE_URL is not set; data will not survive restarts")
		return storage.NewMemory(), nil
	}

	logger.Info("bootstrap.store.connect", "url", MaskDatabaseURL(cfg.DatabaseURL), "vector_dim", cfg.VectorDim)
	store, err := storage.NewPostgres(ctx, cfg.DatabaseURL, cfg.VectorDim, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

// MaskDatabaseURL hides credentials in a connection string for logs.
func MaskDatabaseURL(url string) string {
	if url == "" {
		return ""
	}
	// Keep the scheme, drop everything that could hold credentials.
	for i := 0; i+3 <= len(url); i++ {
		if url[i:i+3] == "://" {
			return url[:i+3] + "***"
		}
	}
	return "***"
}
