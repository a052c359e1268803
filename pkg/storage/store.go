// Copyright 2026 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrDuplicate is returned by CreateRepository when a remote repo
	// with the same (origin_url, branch) already exists.
	ErrDuplicate = errors.New("repository already imported")

	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTerminalRun is returned when attempting to mutate a run that
	// already reached a terminal state.
	ErrTerminalRun = errors.New("run is in a terminal state")
)

// SymbolFilter narrows ListSymbols results. Zero values mean "any".
type SymbolFilter struct {
	RepoID   uuid.UUID
	FileID   string
	Kind     SymbolKind
	Language string
	Limit    int
	Offset   int
}

// VectorQuery is one cosine-similarity lookup against the embedding index.
type VectorQuery struct {
	Vector    []float32
	Threshold float64
	Language  string    // optional filter
	RepoID    uuid.UUID // optional filter; uuid.Nil means all repos
	K         int
}

// SearchHit is one ranked result of a VectorQuery.
type SearchHit struct {
	Symbol     Symbol  `json:"symbol"`
	FilePath   string  `json:"file_path"`
	Language   string  `json:"language"`
	Similarity float64 `json:"similarity"`
}

// SymbolMetricsUpdate carries computed metrics for one symbol.
type SymbolMetricsUpdate struct {
	SymbolID        string
	Complexity      int
	Maintainability float64
	MIApproximated  bool
	LOC             int
	CommentLines    int
}

// RepoCounts carries the persisted counts written alongside a status change.
type RepoCounts struct {
	Files   int
	Symbols int
}

// Store is the persistence boundary for the whole engine.
//
// Writes that touch one repository are transactional per ingest phase:
// ReplaceFiles, ReplaceSymbols and the analysis Replace* calls each run
// in a single transaction so a crash leaves the repository at the last
// completed phase. Readers tolerate concurrent writers; read-committed
// isolation is sufficient for every reader in this interface.
type Store interface {
	// EnsureSchema creates all tables and indexes. Idempotent.
	EnsureSchema(ctx context.Context) error

	// Repositories.
	CreateRepository(ctx context.Context, repo *Repository) error
	GetRepository(ctx context.Context, id uuid.UUID) (*Repository, error)
	ListRepositories(ctx context.Context) ([]Repository, error)
	UpdateRepositoryStatus(ctx context.Context, id uuid.UUID, status RepoStatus, reason string, counts *RepoCounts) error
	UpdateRepositoryMeta(ctx context.Context, id uuid.UUID, stars int, primaryLanguage string) error
	DeleteRepository(ctx context.Context, id uuid.UUID) error

	// Files and symbols. Replace* swaps the repository's previous rows
	// for the given ones inside one transaction.
	ReplaceFiles(ctx context.Context, repoID uuid.UUID, files []File) error
	ReplaceSymbols(ctx context.Context, repoID uuid.UUID, symbols []Symbol) error
	// UpdateSymbolMetrics sets metric columns in place so parallel
	// analysis tasks do not clobber embeddings keyed by symbol id.
	UpdateSymbolMetrics(ctx context.Context, updates []SymbolMetricsUpdate) error
	ListFiles(ctx context.Context, repoID uuid.UUID) ([]File, error)
	GetFileContent(ctx context.Context, repoID uuid.UUID, path string) (string, error)
	ListSymbols(ctx context.Context, filter SymbolFilter) ([]Symbol, error)

	// Call and import graph.
	ReplaceCallEdges(ctx context.Context, repoID uuid.UUID, edges []CallEdge) error
	ReplaceImportEdges(ctx context.Context, repoID uuid.UUID, edges []ImportEdge) error
	ListCallEdges(ctx context.Context, repoID uuid.UUID) ([]CallEdge, error)
	ListImportEdges(ctx context.Context, repoID uuid.UUID) ([]ImportEdge, error)

	// Embedding index.
	UpsertEmbeddings(ctx context.Context, embeddings []Embedding) error
	QueryEmbeddings(ctx context.Context, q VectorQuery) ([]SearchHit, error)

	// Analysis results.
	ReplaceVulnerabilities(ctx context.Context, repoID uuid.UUID, vulns []Vulnerability) error
	ReplaceCodeSmells(ctx context.Context, repoID uuid.UUID, smells []CodeSmell) error
	ReplaceDuplicationPairs(ctx context.Context, repoID uuid.UUID, pairs []DuplicationPair) error
	ListVulnerabilities(ctx context.Context, repoID uuid.UUID) ([]Vulnerability, error)
	ListCodeSmells(ctx context.Context, repoID uuid.UUID) ([]CodeSmell, error)
	ListDuplicationPairs(ctx context.Context, repoID uuid.UUID) ([]DuplicationPair, error)

	// Quality gate.
	GetGateConfig(ctx context.Context, repoID uuid.UUID) (GateConfig, error)
	PutGateConfig(ctx context.Context, cfg GateConfig) error
	CreateRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, id uuid.UUID, status RunStatus, gateResult []byte, reportHTML string) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, repoID uuid.UUID, limit int) ([]Run, error)

	// Close releases any resources held by the store.
	Close() error
}
