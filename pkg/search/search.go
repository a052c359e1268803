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

// Package search embeds symbols into a vector index and answers
// natural-language queries over it with cosine similarity.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/codequal/pkg/storage"
)

const (
	// DefaultThreshold drops hits below this cosine similarity.
	DefaultThreshold = 0.3

	// DefaultLimit caps the result count when the caller passes none.
	DefaultLimit = 10

	// queryDeadline bounds one search end to end, embedding included.
	queryDeadline = 10 * time.Second
)

// Options narrows one query. Zero values select defaults.
type Options struct {
	RepoID    uuid.UUID // uuid.Nil searches all repositories
	Language  string
	Threshold float64
	Limit     int
}

// Searcher answers semantic queries against the embedding index.
type Searcher struct {
	store    storage.Store
	provider EmbeddingProvider
	logger   *slog.Logger
}

// NewSearcher creates a searcher sharing the generator's provider so
// query and document vectors live in the same space.
func NewSearcher(store storage.Store, provider EmbeddingProvider, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{store: store, provider: provider, logger: logger}
}

// Search embeds the query text and returns hits ordered by cosine
// similarity descending, ties broken by symbol id.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]storage.SearchHit, error) {
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	ctx, cancel := context.WithTimeout(ctx, queryDeadline)
	defer cancel()

	start := time.Now()
	vec, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.store.QueryEmbeddings(ctx, storage.VectorQuery{
		Vector:    vec,
		Threshold: opts.Threshold,
		Language:  opts.Language,
		RepoID:    opts.RepoID,
		K:         opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}

	s.logger.Info("search.query.complete",
		"hits", len(hits),
		"threshold", opts.Threshold,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return hits, nil
}
