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

package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/codequal/pkg/storage"
)

// Config controls one ingestion run.
type Config struct {
	// ParseWorkers is the size of the parallel parse pool. <= 1 parses
	// sequentially.
	ParseWorkers int

	// MaxFileSizeBytes caps individual source files. Larger files are
	// skipped, not failed. <= 0 selects MaxDetectFileSize.
	MaxFileSizeBytes int64

	// ArchiveSizeCap caps the total uncompressed size of uploads.
	ArchiveSizeCap int64

	// CheckpointPath is the directory for phase checkpoints. Empty
	// disables checkpointing.
	CheckpointPath string
}

// Result summarizes one ingestion run.
type Result struct {
	RepoID          string
	Files           int
	Symbols         int
	CallEdges       int
	ImportEdges     int
	ParseErrors     int
	ParseErrorRate  float64
	SkipReasons     map[string]int
	CommitSHA       string
	FetchDuration   time.Duration
	ParseDuration   time.Duration
	PersistDuration time.Duration
	TotalDuration   time.Duration
}

// Pipeline drives a repository from its source (remote URL or uploaded
// archive) to rows in the store: fetch, discover, parse, persist.
//
// A parser failure on one file is recorded on that file's row and does
// not fail the run; the run fails only on fetch or persist errors.
type Pipeline struct {
	store    storage.Store
	registry *Registry
	config   Config
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline over the given store.
func NewPipeline(store storage.Store, config Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ParseWorkers <= 0 {
		config.ParseWorkers = 4
	}
	return &Pipeline{
		store:    store,
		registry: NewRegistry(),
		config:   config,
		logger:   logger,
	}
}

// Run ingests repo. The repository row must already exist; its status
// moves cloning -> parsing -> completed, or failed with a reason.
func (p *Pipeline) Run(ctx context.Context, repo *storage.Repository) (*Result, error) {
	start := time.Now()
	p.logger.Info("ingest.start", "repo_id", repo.ID, "name", repo.Name, "source", repo.Source)

	checkpoints := NewCheckpointManager(p.config.CheckpointPath)
	result, err := p.run(ctx, repo, checkpoints, start)
	if err != nil {
		reason := err.Error()
		if stErr := p.store.UpdateRepositoryStatus(ctx, repo.ID, storage.RepoStatusFailed, reason, nil); stErr != nil {
			p.logger.Error("ingest.status.update.error", "repo_id", repo.ID, "err", stErr)
		}
		p.logger.Error("ingest.failed", "repo_id", repo.ID, "err", err,
			"duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	if err := checkpoints.Clear(repo.ID.String()); err != nil {
		p.logger.Warn("ingest.checkpoint.clear.error", "repo_id", repo.ID, "err", err)
	}

	result.TotalDuration = time.Since(start)
	p.logger.Info("ingest.complete",
		"repo_id", repo.ID,
		"files", result.Files,
		"symbols", result.Symbols,
		"call_edges", result.CallEdges,
		"parse_errors", result.ParseErrors,
		"total_duration_ms", result.TotalDuration.Milliseconds(),
	)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, repo *storage.Repository, checkpoints *CheckpointManager, start time.Time) (*Result, error) {
	fetcher := NewFetcher(p.logger, p.config.ArchiveSizeCap)
	defer fetcher.Close()

	// Phase 1: fetch.
	if err := p.store.UpdateRepositoryStatus(ctx, repo.ID, storage.RepoStatusCloning, "", nil); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	fetchStart := time.Now()
	var root, commitSHA string
	var err error
	switch repo.Source {
	case storage.SourceRemote:
		root, err = fetcher.Clone(ctx, repo.OriginURL, repo.Branch)
		if err != nil {
			return nil, fmt.Errorf("clone %s: %w", repo.OriginURL, err)
		}
		commitSHA = fetcher.CommitSHA(ctx, root)
	case storage.SourceUpload:
		root, err = fetcher.Unpack(ctx, repo.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", repo.ArchivePath, err)
		}
	default:
		return nil, fmt.Errorf("unknown repository source %q", repo.Source)
	}
	fetchDuration := time.Since(fetchStart)
	p.saveCheckpoint(checkpoints, repo, "fetch", 0, start)

	// Phase 2: discover.
	discovered, skipped, err := fetcher.Discover(ctx, root, p.config.MaxFileSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}
	sort.Slice(discovered, func(i, j int) bool { return discovered[i].RelPath < discovered[j].RelPath })
	p.logger.Info("ingest.discover.complete",
		"repo_id", repo.ID,
		"files", len(discovered),
		"skipped", skipped,
	)
	ingMetrics.init()
	ingMetrics.filesDiscovered.Add(float64(len(discovered)))

	// Phase 3: parse.
	if err := p.store.UpdateRepositoryStatus(ctx, repo.ID, storage.RepoStatusParsing, "", nil); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	parseStart := time.Now()
	files, symbols, callEdges, importEdges, parseErrors := p.parseFiles(ctx, repo.ID, discovered)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parseDuration := time.Since(parseStart)
	ingMetrics.parseErrors.Add(float64(parseErrors))
	ingMetrics.symbolsExtracted.Add(float64(len(symbols)))
	ingMetrics.parseDuration.Observe(parseDuration.Seconds())
	p.saveCheckpoint(checkpoints, repo, "parse", len(files), start)

	parseErrorRate := 0.0
	if len(discovered) > 0 {
		parseErrorRate = float64(parseErrors) / float64(len(discovered))
	}
	p.logger.Info("ingest.parse.complete",
		"repo_id", repo.ID,
		"files", len(files),
		"symbols", len(symbols),
		"call_edges", len(callEdges),
		"import_edges", len(importEdges),
		"parse_errors", parseErrors,
		"duration_ms", parseDuration.Milliseconds(),
	)

	// Phase 4: persist. Wholesale replace keeps re-ingestion idempotent.
	persistStart := time.Now()
	if err := p.store.ReplaceFiles(ctx, repo.ID, files); err != nil {
		return nil, fmt.Errorf("persist files: %w", err)
	}
	if err := p.store.ReplaceSymbols(ctx, repo.ID, symbols); err != nil {
		return nil, fmt.Errorf("persist symbols: %w", err)
	}
	if err := p.store.ReplaceCallEdges(ctx, repo.ID, callEdges); err != nil {
		return nil, fmt.Errorf("persist call edges: %w", err)
	}
	if err := p.store.ReplaceImportEdges(ctx, repo.ID, importEdges); err != nil {
		return nil, fmt.Errorf("persist import edges: %w", err)
	}
	persistDuration := time.Since(persistStart)
	ingMetrics.persistDuration.Observe(persistDuration.Seconds())
	p.saveCheckpoint(checkpoints, repo, "persist", len(files), start)

	counts := &storage.RepoCounts{Files: len(files), Symbols: len(symbols)}
	if err := p.store.UpdateRepositoryStatus(ctx, repo.ID, storage.RepoStatusAnalyzing, "", counts); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	return &Result{
		RepoID:          repo.ID.String(),
		Files:           len(files),
		Symbols:         len(symbols),
		CallEdges:       len(callEdges),
		ImportEdges:     len(importEdges),
		ParseErrors:     parseErrors,
		ParseErrorRate:  parseErrorRate,
		SkipReasons:     skipped,
		CommitSHA:       commitSHA,
		FetchDuration:   fetchDuration,
		ParseDuration:   parseDuration,
		PersistDuration: persistDuration,
	}, nil
}

func (p *Pipeline) saveCheckpoint(cm *CheckpointManager, repo *storage.Repository, phase string, files int, start time.Time) {
	cp := &Checkpoint{
		RepoID:         repo.ID.String(),
		Phase:          phase,
		FilesProcessed: files,
		StartTime:      start.UTC().Format(time.RFC3339),
		LastUpdateTime: time.Now().UTC().Format(time.RFC3339),
	}
	if err := cm.Save(cp); err != nil {
		p.logger.Warn("ingest.checkpoint.save.error", "repo_id", repo.ID, "phase", phase, "err", err)
	}
}

// fileParse is one file's contribution, produced by a parse worker.
type fileParse struct {
	index  int
	file   storage.File
	result *ParseResult
}

// parseFiles reads and parses discovered files, returning store rows.
// Per-file failures are recorded on the file row as a parse error.
func (p *Pipeline) parseFiles(ctx context.Context, repoID uuid.UUID, discovered []DiscoveredFile) (
	[]storage.File, []storage.Symbol, []storage.CallEdge, []storage.ImportEdge, int,
) {
	parses := p.parseParallel(ctx, repoID, discovered)

	var (
		files       []storage.File
		symbols     []storage.Symbol
		callEdges   []storage.CallEdge
		importEdges []storage.ImportEdge
		parseErrors int
	)
	for _, fp := range parses {
		files = append(files, fp.file)
		if fp.result == nil {
			parseErrors++
			continue
		}

		// Symbol names map to IDs within this file for call attribution.
		nameToID := make(map[string]string, len(fp.result.Symbols))
		for _, raw := range fp.result.Symbols {
			symID := GenerateSymbolID(fp.file.RepoID, fp.file.Path, raw.Name, raw.LineStart, raw.LineEnd)
			if _, dup := nameToID[raw.Name]; !dup {
				nameToID[raw.Name] = symID
			}
			doc := strings.TrimSpace(raw.Docstring)
			symbols = append(symbols, storage.Symbol{
				ID:              symID,
				FileID:          fp.file.ID,
				RepoID:          fp.file.RepoID,
				Name:            raw.Name,
				Kind:            raw.Kind,
				LineStart:       raw.LineStart,
				LineEnd:         raw.LineEnd,
				Signature:       raw.Signature,
				Docstring:       doc,
				HasDocstring:    doc != "",
				DocstringLength: len(doc),
			})
		}

		for _, call := range fp.result.Calls {
			fromID := nameToID[call.CallerName]
			if fromID == "" {
				// Module-level call with no enclosing symbol.
				continue
			}
			callEdges = append(callEdges, storage.CallEdge{
				FromSymbolID: fromID,
				ToName:       call.CalleeName,
				FileID:       fp.file.ID,
				RepoID:       fp.file.RepoID,
				Line:         call.Line,
			})
		}
		for _, imp := range fp.result.Imports {
			importEdges = append(importEdges, storage.ImportEdge{
				FromFileID: fp.file.ID,
				ToModule:   imp.Module,
				RepoID:     fp.file.RepoID,
				Kind:       imp.Kind,
			})
		}
	}
	return files, symbols, callEdges, importEdges, parseErrors
}

// parseParallel parses files with a worker pool, preserving input order.
// Small sets parse sequentially.
func (p *Pipeline) parseParallel(ctx context.Context, repoID uuid.UUID, discovered []DiscoveredFile) []fileParse {
	if len(discovered) == 0 {
		return nil
	}
	workers := p.config.ParseWorkers
	if len(discovered) < 10 || workers <= 1 {
		out := make([]fileParse, 0, len(discovered))
		for i, df := range discovered {
			if ctx.Err() != nil {
				break
			}
			out = append(out, p.parseOne(i, repoID, df))
		}
		return out
	}

	jobs := make(chan int, len(discovered))
	resultsChan := make(chan fileParse, len(discovered))
	var errorCount int32

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				fp := p.parseOne(i, repoID, discovered[i])
				if fp.result == nil {
					atomic.AddInt32(&errorCount, 1)
				}
				resultsChan <- fp
			}
		}()
	}

	for i := range discovered {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	ordered := make([]fileParse, len(discovered))
	seen := make([]bool, len(discovered))
	for fp := range resultsChan {
		ordered[fp.index] = fp
		seen[fp.index] = true
	}
	out := make([]fileParse, 0, len(discovered))
	for i, fp := range ordered {
		if seen[i] {
			out = append(out, fp)
		}
	}
	return out
}

// parseOne reads and parses a single file. A read or parse failure is
// recorded on the file row; the file still persists with its error.
func (p *Pipeline) parseOne(index int, repoID uuid.UUID, df DiscoveredFile) fileParse {
	file := storage.File{
		ID:       GenerateFileID(repoID, df.RelPath),
		RepoID:   repoID,
		Path:     df.RelPath,
		Language: df.Language,
		ByteSize: df.Size,
	}

	content, err := os.ReadFile(df.AbsPath)
	if err != nil {
		file.ParseError = fmt.Sprintf("read: %v", err)
		p.logger.Warn("ingest.parse_file.error", "path", df.RelPath, "err", err)
		return fileParse{index: index, file: file}
	}

	sum := sha256.Sum256(content)
	file.SHA256 = hex.EncodeToString(sum[:])
	file.Content = string(content)
	file.LineCount = countLines(content)

	parser, err := p.registry.Get(df.Language)
	if err != nil {
		file.ParseError = fmt.Sprintf("no parser for language %q", df.Language)
		return fileParse{index: index, file: file}
	}

	result, err := parser.Parse(content, df.RelPath)
	if err != nil {
		file.ParseError = err.Error()
		p.logger.Warn("ingest.parse_file.error", "path", df.RelPath, "err", err)
		return fileParse{index: index, file: file}
	}
	return fileParse{index: index, file: file, result: result}
}

// countLines counts newline-terminated lines plus a trailing partial.
func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := 0
	for _, b := range content {
		if b == '\n' {
			n++
		}
	}
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
