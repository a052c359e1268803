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

package search

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/kraklabs/codequal/pkg/storage"
)

// RetryConfig bounds the per-symbol embedding retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig retries transient provider failures with full
// jitter: base 2s, cap 5min, 5 attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     5 * time.Minute,
		Multiplier:     2.0,
	}
}

// embedBodyLines caps how much of a symbol body enters the embed text.
const embedBodyLines = 12

// Generator embeds all symbols of a repository and upserts the
// vectors. Provider concurrency is semaphore-bounded; a symbol whose
// embedding fails after retries is skipped, not fatal.
type Generator struct {
	store    storage.Store
	provider EmbeddingProvider
	workers  int
	logger   *slog.Logger
	retry    RetryConfig
}

// NewGenerator creates a generator. workers <= 0 selects 4.
func NewGenerator(store storage.Store, provider EmbeddingProvider, workers int, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 4
	}
	return &Generator{
		store:    store,
		provider: provider,
		workers:  workers,
		logger:   logger,
		retry:    DefaultRetryConfig(),
	}
}

// SetRetryConfig overrides the retry policy. Zero fields keep defaults.
func (g *Generator) SetRetryConfig(cfg RetryConfig) {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier <= 1.0 {
		cfg.Multiplier = def.Multiplier
	}
	g.retry = cfg
}

// Result summarises one embedding pass.
type Result struct {
	Embedded int
	Failed   int
}

// Run embeds every symbol of the repository and upserts the vectors.
func (g *Generator) Run(ctx context.Context, repoID uuid.UUID) (*Result, error) {
	start := time.Now()

	files, err := g.store.ListFiles(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	fileLines := make(map[string][]string, len(files))
	for _, f := range files {
		fileLines[f.ID] = strings.Split(f.Content, "\n")
	}

	symbols, err := g.store.ListSymbols(ctx, storage.SymbolFilter{RepoID: repoID})
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	if len(symbols) == 0 {
		return &Result{}, nil
	}

	embeddings := make([]storage.Embedding, len(symbols))
	var failed int32

	sem := semaphore.NewWeighted(int64(g.workers))
	var wg sync.WaitGroup
	for i := range symbols {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)

			sym := symbols[i]
			vec, err := g.embedWithRetry(ctx, EmbedText(sym, fileLines[sym.FileID]))
			if err != nil {
				atomic.AddInt32(&failed, 1)
				g.logger.Error("search.embed.failed", "symbol_id", sym.ID, "symbol", sym.Name, "error", err)
				return
			}
			embeddings[i] = storage.Embedding{
				SymbolID: sym.ID,
				RepoID:   repoID,
				Dim:      len(vec),
				Vector:   vec,
			}
		}(i)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ok := embeddings[:0]
	for _, e := range embeddings {
		if e.SymbolID != "" {
			ok = append(ok, e)
		}
	}
	if err := g.store.UpsertEmbeddings(ctx, ok); err != nil {
		return nil, fmt.Errorf("persist embeddings: %w", err)
	}

	result := &Result{Embedded: len(ok), Failed: int(failed)}
	g.logger.Info("search.embed.complete",
		"repo_id", repoID,
		"embedded", result.Embedded,
		"failed", result.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// embedWithRetry retries transient provider errors with full-jitter
// exponential backoff.
func (g *Generator) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	var err error
	for attempt := 0; attempt < g.retry.MaxAttempts; attempt++ {
		vec, err = g.provider.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		if !isTransient(err) || attempt == g.retry.MaxAttempts-1 {
			break
		}
		sleep := backoffWithJitter(g.retry, attempt)
		g.logger.Warn("search.embed.retry", "attempt", attempt+1, "sleep_ms", sleep.Milliseconds(), "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return nil, err
}

// isTransient classifies provider errors by message: network faults
// and HTTP 429/5xx retry, everything else fails fast.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"timeout", "temporarily unavailable", "connection refused",
		"connection reset", "deadline exceeded", "eof",
		"status 429", "status 500", "status 502", "status 503", "status 504",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// backoffWithJitter returns a uniform draw from [0, min(cap, base*mult^attempt)].
func backoffWithJitter(cfg RetryConfig, attempt int) time.Duration {
	exp := float64(cfg.InitialBackoff)
	for i := 0; i < attempt; i++ {
		exp *= cfg.Multiplier
	}
	d := time.Duration(exp)
	if d > cfg.MaxBackoff {
		d = cfg.MaxBackoff
	}
	if d <= 0 {
		return cfg.InitialBackoff
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

// EmbedText builds the text embedded for one symbol: name, signature,
// docstring, and the first lines of the body. Code tokenizes poorly,
// so the body is capped rather than sent whole.
func EmbedText(sym storage.Symbol, lines []string) string {
	var sb strings.Builder
	sb.WriteString(sym.Name)
	if sym.Signature != "" {
		sb.WriteByte('\n')
		sb.WriteString(sym.Signature)
	}
	if sym.Docstring != "" {
		sb.WriteByte('\n')
		sb.WriteString(sym.Docstring)
	}
	if len(lines) > 0 && sym.LineStart >= 1 && sym.LineStart <= len(lines) {
		end := sym.LineEnd
		if end > len(lines) {
			end = len(lines)
		}
		if end >= sym.LineStart+embedBodyLines {
			end = sym.LineStart + embedBodyLines - 1
		}
		sb.WriteByte('\n')
		sb.WriteString(strings.Join(lines[sym.LineStart-1:end], "\n"))
	}
	return sb.String()
}
