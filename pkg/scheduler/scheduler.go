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

// Package scheduler runs the per-repository analysis pipeline on a
// bounded worker pool. At most one job per repository runs at a time;
// within a job the order is ingest, then the analysis fan-out, then a
// barrier that marks the repository completed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/codequal/pkg/analysis"
	"github.com/kraklabs/codequal/pkg/ingestion"
	"github.com/kraklabs/codequal/pkg/search"
	"github.com/kraklabs/codequal/pkg/storage"
)

var (
	// ErrQueueFull is returned by Enqueue when the bounded queue has no
	// free slot.
	ErrQueueFull = errors.New("scheduler queue is full")

	// ErrStopped is returned by Enqueue after Stop.
	ErrStopped = errors.New("scheduler is stopped")
)

// Retry policy for transient task failures.
const (
	retryAttempts = 5
	retryBase     = 2 * time.Second
	retryCap      = 5 * time.Minute
)

// Config tunes the scheduler. Zero values select defaults.
type Config struct {
	Workers       int           // default 2 * NumCPU
	QueueSize     int           // default 64
	IngestTimeout time.Duration // default 30 min
	PerFileBudget time.Duration // default 2 min per file, per fan-out task
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 2 * runtime.NumCPU()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.IngestTimeout <= 0 {
		c.IngestTimeout = 30 * time.Minute
	}
	if c.PerFileBudget <= 0 {
		c.PerFileBudget = 2 * time.Minute
	}
}

// Analyzers bundles the fan-out stages the scheduler drives.
type Analyzers struct {
	Metrics         *analysis.MetricsAnalyzer
	Smells          *analysis.SmellDetector
	CallGraph       *analysis.CallGraphBuilder
	Duplication     *analysis.DuplicationDetector
	Vulnerabilities *analysis.VulnerabilityScanner
	Embeddings      *search.Generator
}

// Scheduler owns the job queue and worker pool.
type Scheduler struct {
	store     storage.Store
	pipeline  *ingestion.Pipeline
	analyzers Analyzers
	config    Config
	logger    *slog.Logger

	queue chan uuid.UUID
	locks *keyedMutex
	wg    sync.WaitGroup

	mu        sync.Mutex
	cancels   map[uuid.UUID]context.CancelFunc
	cancelled map[uuid.UUID]bool
	stopped   bool
}

// New creates a scheduler. Call Start to launch the workers.
func New(store storage.Store, pipeline *ingestion.Pipeline, analyzers Analyzers, config Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	config.defaults()
	return &Scheduler{
		store:     store,
		pipeline:  pipeline,
		analyzers: analyzers,
		config:    config,
		logger:    logger,
		queue:     make(chan uuid.UUID, config.QueueSize),
		locks:     newKeyedMutex(),
		cancels:   make(map[uuid.UUID]context.CancelFunc),
		cancelled: make(map[uuid.UUID]bool),
	}
}

// Start launches the worker pool. Workers exit when ctx is done and
// the queue is drained, or immediately on Stop.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case repoID, ok := <-s.queue:
					if !ok {
						return
					}
					s.process(ctx, repoID)
				}
			}
		}()
	}
}

// Stop closes the queue and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
}

// Enqueue schedules a full ingest-and-analyze job for the repository.
func (s *Scheduler) Enqueue(repoID uuid.UUID) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	delete(s.cancelled, repoID)
	s.mu.Unlock()

	select {
	case s.queue <- repoID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Cancel drops the repository's queued job and cancels its in-flight
// one. Returns true when there was anything to cancel.
func (s *Scheduler) Cancel(repoID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled[repoID] = true
	if cancel, ok := s.cancels[repoID]; ok {
		cancel()
		return true
	}
	return false
}

// process runs one job end to end under the repository's lock.
func (s *Scheduler) process(ctx context.Context, repoID uuid.UUID) {
	unlock := s.locks.lock(repoID)
	defer unlock()

	s.mu.Lock()
	if s.cancelled[repoID] {
		s.mu.Unlock()
		s.markFailed(context.Background(), repoID, "cancelled")
		return
	}
	jobCtx, cancel := context.WithCancel(ctx)
	s.cancels[repoID] = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.cancels, repoID)
		s.mu.Unlock()
	}()

	start := time.Now()
	err := s.runJob(jobCtx, repoID)
	switch {
	case err == nil:
		s.logger.Info("scheduler.job.complete", "repo_id", repoID, "duration_ms", time.Since(start).Milliseconds())
	case s.wasCancelled(repoID):
		s.markFailed(context.Background(), repoID, "cancelled")
		s.logger.Info("scheduler.job.cancelled", "repo_id", repoID)
	default:
		s.markFailed(context.Background(), repoID, err.Error())
		s.logger.Error("scheduler.job.failed", "repo_id", repoID, "error", err)
	}
}

// runJob executes ingest, the analysis fan-out, and the completion
// barrier.
func (s *Scheduler) runJob(ctx context.Context, repoID uuid.UUID) error {
	repo, err := s.store.GetRepository(ctx, repoID)
	if err != nil {
		return fmt.Errorf("load repository: %w", err)
	}

	ingestCtx, cancel := context.WithTimeout(ctx, s.config.IngestTimeout)
	result, err := s.runRetrying(ingestCtx, "ingest", func(c context.Context) (any, error) {
		return s.pipeline.Run(c, repo)
	})
	cancel()
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	files := result.(*ingestion.Result).Files

	// Fan-out budget scales with repository size.
	budget := time.Duration(files) * s.config.PerFileBudget
	if budget < s.config.PerFileBudget {
		budget = s.config.PerFileBudget
	}
	if budget > s.config.IngestTimeout {
		budget = s.config.IngestTimeout
	}
	fanCtx, cancelFan := context.WithTimeout(ctx, budget)
	defer cancelFan()

	g, gCtx := errgroup.WithContext(fanCtx)
	g.Go(func() error {
		// Smells read the complexity the metrics pass writes.
		if _, err := s.runRetrying(gCtx, "metrics", func(c context.Context) (any, error) {
			return s.analyzers.Metrics.Run(c, repoID)
		}); err != nil {
			return err
		}
		_, err := s.runRetrying(gCtx, "smells", func(c context.Context) (any, error) {
			return s.analyzers.Smells.Run(c, repoID)
		})
		return err
	})
	g.Go(func() error {
		_, err := s.runRetrying(gCtx, "callgraph", func(c context.Context) (any, error) {
			return s.analyzers.CallGraph.Run(c, repoID)
		})
		return err
	})
	g.Go(func() error {
		_, err := s.runRetrying(gCtx, "duplication", func(c context.Context) (any, error) {
			return s.analyzers.Duplication.Run(c, repoID)
		})
		return err
	})
	g.Go(func() error {
		_, err := s.runRetrying(gCtx, "vulnerabilities", func(c context.Context) (any, error) {
			return s.analyzers.Vulnerabilities.Run(c, repoID)
		})
		return err
	})
	g.Go(func() error {
		_, err := s.runRetrying(gCtx, "embeddings", func(c context.Context) (any, error) {
			return s.analyzers.Embeddings.Run(c, repoID)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	// Barrier: every stage landed, the repo is queryable.
	counts := &storage.RepoCounts{Files: files}
	if symbols, err := s.store.ListSymbols(ctx, storage.SymbolFilter{RepoID: repoID}); err == nil {
		counts.Symbols = len(symbols)
	}
	if err := s.store.UpdateRepositoryStatus(ctx, repoID, storage.RepoStatusCompleted, "", counts); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// runRetrying runs one task, retrying transient failures with
// full-jitter exponential backoff.
func (s *Scheduler) runRetrying(ctx context.Context, task string, fn func(context.Context) (any, error)) (any, error) {
	var out any
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		out, err = fn(ctx)
		if err == nil {
			return out, nil
		}
		if !transient(err) || attempt == retryAttempts-1 {
			break
		}
		sleep := jitteredBackoff(attempt)
		s.logger.Warn("scheduler.task.retry", "task", task, "attempt", attempt+1, "sleep_ms", sleep.Milliseconds(), "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return nil, err
}

// transient classifies failures worth retrying: network faults and
// provider backpressure. Context cancellation is terminal.
func transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"timeout", "temporarily unavailable", "connection refused",
		"connection reset", "status 429", "status 500", "status 502",
		"status 503", "status 504",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func jitteredBackoff(attempt int) time.Duration {
	d := retryBase << attempt
	if d > retryCap {
		d = retryCap
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

func (s *Scheduler) wasCancelled(repoID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[repoID]
}

func (s *Scheduler) markFailed(ctx context.Context, repoID uuid.UUID, reason string) {
	if err := s.store.UpdateRepositoryStatus(ctx, repoID, storage.RepoStatusFailed, reason, nil); err != nil {
		s.logger.Error("scheduler.status.failed", "repo_id", repoID, "error", err)
	}
}
