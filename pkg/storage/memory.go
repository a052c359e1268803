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

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and by the pre-commit
// helper. It holds everything in maps behind a RWMutex and mirrors the
// Postgres backend's semantics, including canonical duplication-pair
// ordering and terminal-run immutability.
type Memory struct {
	mu sync.RWMutex

	repos       map[uuid.UUID]*Repository
	files       map[uuid.UUID][]File
	symbols     map[uuid.UUID][]Symbol
	callEdges   map[uuid.UUID][]CallEdge
	importEdges map[uuid.UUID][]ImportEdge
	embeddings  map[string]Embedding // symbol_id -> embedding
	vulns       map[uuid.UUID][]Vulnerability
	smells      map[uuid.UUID][]CodeSmell
	dupes       map[uuid.UUID][]DuplicationPair
	gateConfigs map[uuid.UUID]GateConfig
	runs        map[uuid.UUID]*Run
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		repos:       make(map[uuid.UUID]*Repository),
		files:       make(map[uuid.UUID][]File),
		symbols:     make(map[uuid.UUID][]Symbol),
		callEdges:   make(map[uuid.UUID][]CallEdge),
		importEdges: make(map[uuid.UUID][]ImportEdge),
		embeddings:  make(map[string]Embedding),
		vulns:       make(map[uuid.UUID][]Vulnerability),
		smells:      make(map[uuid.UUID][]CodeSmell),
		dupes:       make(map[uuid.UUID][]DuplicationPair),
		gateConfigs: make(map[uuid.UUID]GateConfig),
		runs:        make(map[uuid.UUID]*Run),
	}
}

// EnsureSchema is a no-op for the in-memory store.
func (m *Memory) EnsureSchema(ctx context.Context) error { return nil }

func (m *Memory) CreateRepository(ctx context.Context, repo *Repository) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if repo.Source == SourceRemote {
		for _, existing := range m.repos {
			if existing.Source == SourceRemote &&
				existing.OriginURL == repo.OriginURL &&
				existing.Branch == repo.Branch {
				return fmt.Errorf("%s (%s): %w", repo.OriginURL, repo.Branch, ErrDuplicate)
			}
		}
	}

	if repo.ID == uuid.Nil {
		repo.ID = uuid.New()
	}
	if repo.CreatedAt.IsZero() {
		repo.CreatedAt = time.Now().UTC()
	}
	cp := *repo
	m.repos[repo.ID] = &cp
	return nil
}

func (m *Memory) GetRepository(ctx context.Context, id uuid.UUID) (*Repository, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	repo, ok := m.repos[id]
	if !ok {
		return nil, fmt.Errorf("repository %s: %w", id, ErrNotFound)
	}
	cp := *repo
	return &cp, nil
}

func (m *Memory) ListRepositories(ctx context.Context) ([]Repository, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Repository, 0, len(m.repos))
	for _, r := range m.repos {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateRepositoryStatus(ctx context.Context, id uuid.UUID, status RepoStatus, reason string, counts *RepoCounts) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, ok := m.repos[id]
	if !ok {
		return fmt.Errorf("repository %s: %w", id, ErrNotFound)
	}
	repo.Status = status
	repo.StatusReason = reason
	if counts != nil {
		repo.FileCount = counts.Files
		repo.SymbolCount = counts.Symbols
	}
	return nil
}

func (m *Memory) UpdateRepositoryMeta(ctx context.Context, id uuid.UUID, stars int, primaryLanguage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, ok := m.repos[id]
	if !ok {
		return fmt.Errorf("repository %s: %w", id, ErrNotFound)
	}
	repo.Stars = stars
	if primaryLanguage != "" {
		repo.PrimaryLanguage = primaryLanguage
	}
	return nil
}

func (m *Memory) DeleteRepository(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.repos[id]; !ok {
		return fmt.Errorf("repository %s: %w", id, ErrNotFound)
	}
	for _, sym := range m.symbols[id] {
		delete(m.embeddings, sym.ID)
	}
	delete(m.repos, id)
	delete(m.files, id)
	delete(m.symbols, id)
	delete(m.callEdges, id)
	delete(m.importEdges, id)
	delete(m.vulns, id)
	delete(m.smells, id)
	delete(m.dupes, id)
	delete(m.gateConfigs, id)
	for runID, run := range m.runs {
		if run.RepoID == id {
			delete(m.runs, runID)
		}
	}
	return nil
}

func (m *Memory) ReplaceFiles(ctx context.Context, repoID uuid.UUID, files []File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[repoID] = append([]File(nil), files...)
	return nil
}

func (m *Memory) ReplaceSymbols(ctx context.Context, repoID uuid.UUID, symbols []Symbol) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Embeddings of replaced symbols are dropped with them.
	for _, old := range m.symbols[repoID] {
		delete(m.embeddings, old.ID)
	}
	m.symbols[repoID] = append([]Symbol(nil), symbols...)
	return nil
}

func (m *Memory) UpdateSymbolMetrics(ctx context.Context, updates []SymbolMetricsUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID := make(map[string]SymbolMetricsUpdate, len(updates))
	for _, u := range updates {
		byID[u.SymbolID] = u
	}
	for repoID, symbols := range m.symbols {
		for i := range symbols {
			u, ok := byID[symbols[i].ID]
			if !ok {
				continue
			}
			symbols[i].Complexity = u.Complexity
			symbols[i].Maintainability = u.Maintainability
			symbols[i].MIApproximated = u.MIApproximated
			symbols[i].LOC = u.LOC
			symbols[i].CommentLines = u.CommentLines
		}
		m.symbols[repoID] = symbols
	}
	return nil
}

func (m *Memory) ListFiles(ctx context.Context, repoID uuid.UUID) ([]File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]File(nil), m.files[repoID]...), nil
}

func (m *Memory) GetFileContent(ctx context.Context, repoID uuid.UUID, path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, f := range m.files[repoID] {
		if f.Path == path {
			return f.Content, nil
		}
	}
	return "", fmt.Errorf("file %s: %w", path, ErrNotFound)
}

func (m *Memory) ListSymbols(ctx context.Context, filter SymbolFilter) ([]Symbol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	langByFile := make(map[string]string)
	var repoIDs []uuid.UUID
	if filter.RepoID != uuid.Nil {
		repoIDs = []uuid.UUID{filter.RepoID}
	} else {
		for id := range m.repos {
			repoIDs = append(repoIDs, id)
		}
	}
	for _, id := range repoIDs {
		for _, f := range m.files[id] {
			langByFile[f.ID] = f.Language
		}
	}

	var out []Symbol
	for _, id := range repoIDs {
		for _, s := range m.symbols[id] {
			if filter.FileID != "" && s.FileID != filter.FileID {
				continue
			}
			if filter.Kind != "" && s.Kind != filter.Kind {
				continue
			}
			if filter.Language != "" && langByFile[s.FileID] != filter.Language {
				continue
			}
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) ReplaceCallEdges(ctx context.Context, repoID uuid.UUID, edges []CallEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callEdges[repoID] = append([]CallEdge(nil), edges...)
	return nil
}

func (m *Memory) ReplaceImportEdges(ctx context.Context, repoID uuid.UUID, edges []ImportEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.importEdges[repoID] = append([]ImportEdge(nil), edges...)
	return nil
}

func (m *Memory) ListCallEdges(ctx context.Context, repoID uuid.UUID) ([]CallEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]CallEdge(nil), m.callEdges[repoID]...), nil
}

func (m *Memory) ListImportEdges(ctx context.Context, repoID uuid.UUID) ([]ImportEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ImportEdge(nil), m.importEdges[repoID]...), nil
}

func (m *Memory) UpsertEmbeddings(ctx context.Context, embeddings []Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range embeddings {
		m.embeddings[e.SymbolID] = e
	}
	return nil
}

func (m *Memory) QueryEmbeddings(ctx context.Context, q VectorQuery) ([]SearchHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symByID := make(map[string]Symbol)
	fileByID := make(map[string]File)
	for repoID, syms := range m.symbols {
		if q.RepoID != uuid.Nil && repoID != q.RepoID {
			continue
		}
		for _, s := range syms {
			symByID[s.ID] = s
		}
		for _, f := range m.files[repoID] {
			fileByID[f.ID] = f
		}
	}

	var hits []SearchHit
	for symID, emb := range m.embeddings {
		sym, ok := symByID[symID]
		if !ok {
			continue
		}
		file := fileByID[sym.FileID]
		if q.Language != "" && file.Language != q.Language {
			continue
		}
		sim := dot(q.Vector, emb.Vector)
		if sim < q.Threshold {
			continue
		}
		hits = append(hits, SearchHit{
			Symbol:     sym,
			FilePath:   file.Path,
			Language:   file.Language,
			Similarity: sim,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Symbol.ID < hits[j].Symbol.ID
	})
	if q.K > 0 && len(hits) > q.K {
		hits = hits[:q.K]
	}
	return hits, nil
}

// dot computes the dot product, which equals cosine similarity for
// unit-length vectors.
func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func (m *Memory) ReplaceVulnerabilities(ctx context.Context, repoID uuid.UUID, vulns []Vulnerability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vulns[repoID] = append([]Vulnerability(nil), vulns...)
	return nil
}

func (m *Memory) ReplaceCodeSmells(ctx context.Context, repoID uuid.UUID, smells []CodeSmell) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.smells[repoID] = append([]CodeSmell(nil), smells...)
	return nil
}

func (m *Memory) ReplaceDuplicationPairs(ctx context.Context, repoID uuid.UUID, pairs []DuplicationPair) error {
	for _, p := range pairs {
		if p.File1ID >= p.File2ID {
			return fmt.Errorf("duplication pair %s/%s violates canonical ordering", p.File1ID, p.File2ID)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dupes[repoID] = append([]DuplicationPair(nil), pairs...)
	return nil
}

func (m *Memory) ListVulnerabilities(ctx context.Context, repoID uuid.UUID) ([]Vulnerability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Vulnerability(nil), m.vulns[repoID]...), nil
}

func (m *Memory) ListCodeSmells(ctx context.Context, repoID uuid.UUID) ([]CodeSmell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]CodeSmell(nil), m.smells[repoID]...), nil
}

func (m *Memory) ListDuplicationPairs(ctx context.Context, repoID uuid.UUID) ([]DuplicationPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]DuplicationPair(nil), m.dupes[repoID]...), nil
}

func (m *Memory) GetGateConfig(ctx context.Context, repoID uuid.UUID) (GateConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if cfg, ok := m.gateConfigs[repoID]; ok {
		return cfg, nil
	}
	return DefaultGateConfig(repoID), nil
}

func (m *Memory) PutGateConfig(ctx context.Context, cfg GateConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateConfigs[cfg.RepoID] = cfg
	return nil
}

func (m *Memory) CreateRun(ctx context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *Memory) CompleteRun(ctx context.Context, id uuid.UUID, status RunStatus, gateResult []byte, reportHTML string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if run.Terminal() {
		return fmt.Errorf("run %s: %w", id, ErrTerminalRun)
	}
	now := time.Now().UTC()
	run.Status = status
	run.GateResult = append([]byte(nil), gateResult...)
	run.ReportHTML = reportHTML
	run.CompletedAt = &now
	return nil
}

func (m *Memory) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	cp := *run
	return &cp, nil
}

func (m *Memory) ListRuns(ctx context.Context, repoID uuid.UUID, limit int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Run
	for _, run := range m.runs {
		if run.RepoID == repoID {
			out = append(out, *run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
