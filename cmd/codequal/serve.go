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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codequal/internal/bootstrap"
	"github.com/kraklabs/codequal/internal/errors"
	"github.com/kraklabs/codequal/pkg/analysis"
	"github.com/kraklabs/codequal/pkg/api"
	"github.com/kraklabs/codequal/pkg/gate"
	"github.com/kraklabs/codequal/pkg/ingestion"
	"github.com/kraklabs/codequal/pkg/llm"
	"github.com/kraklabs/codequal/pkg/report"
	"github.com/kraklabs/codequal/pkg/scheduler"
	"github.com/kraklabs/codequal/pkg/search"
)

const shutdownTimeout = 15 * time.Second

// runServe executes the 'serve' command: it wires the full analysis
// stack over the configured store and runs the HTTP server until
// SIGINT or SIGTERM.
func runServe(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8080", "Listen address")
	uploadDir := fs.String("upload-dir", "", "Directory for uploaded archives (default: system temp)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codequal serve [options]

Runs the codequal API and analysis server. Configuration comes from
the environment:

  DATABASE_URL            Postgres DSN; empty selects the in-memory store
  VECTOR_DIM              Embedding dimension (default 768)
  WORKERS                 Analysis worker count
  INGEST_SIZE_CAP         Upload size cap in bytes
  EMBEDDING_PROVIDER      mock | ollama | openai
  LLM_PROVIDER            Provider for LLM-assisted smell detection
  WEBHOOK_SIGNING_SECRET  HMAC secret for the CI webhook

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	logger := newLogger(globals)

	cfg, err := bootstrap.FromEnv()
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Invalid server configuration",
			err.Error(),
			"Check the environment variables listed in 'codequal serve --help'",
			err,
		), globals.JSON)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Cannot open the store",
			fmt.Sprintf("Connecting to %s failed: %v", bootstrap.MaskDatabaseURL(cfg.DatabaseURL), err),
			"Check DATABASE_URL and that Postgres is reachable",
			err,
		), globals.JSON)
	}
	defer func() { _ = store.Close() }()

	embedProvider, err := search.NewProviderFromEnv(logger)
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Invalid embedding provider configuration",
			err.Error(),
			"Set EMBEDDING_PROVIDER to mock, ollama, or openai",
			err,
		), globals.JSON)
	}
	llmProvider, err := llm.ProviderFromEnv("LLM_PROVIDER")
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Invalid LLM provider configuration",
			err.Error(),
			"Set LLM_PROVIDER to mock, ollama, openai, or anthropic",
			err,
		), globals.JSON)
	}

	pipeline := ingestion.NewPipeline(store, ingestion.Config{
		ParseWorkers:   cfg.Workers,
		ArchiveSizeCap: cfg.IngestSizeCap,
	}, logger)

	sched := scheduler.New(store, pipeline, scheduler.Analyzers{
		Metrics:         analysis.NewMetricsAnalyzer(store, logger),
		Smells:          analysis.NewSmellDetector(store, llmProvider, logger),
		CallGraph:       analysis.NewCallGraphBuilder(store, nil, logger),
		Duplication:     analysis.NewDuplicationDetector(store, 0, logger),
		Vulnerabilities: analysis.NewVulnerabilityScanner(store, logger),
		Embeddings:      search.NewGenerator(store, embedProvider, cfg.Workers, logger),
	}, scheduler.Config{Workers: cfg.Workers}, logger)
	sched.Start(ctx)
	defer sched.Stop()

	engine := gate.NewEngine(store, report.NewRenderer(store, logger), logger)
	server := api.NewServer(*addr, api.Deps{
		Store:     store,
		Scheduler: sched,
		Searcher:  search.NewSearcher(store, embedProvider, logger),
		CallGraph: analysis.NewCallGraphBuilder(store, nil, logger),
		Gate:      engine,
		Webhook:   gate.NewWebhook(engine, store, cfg.WebhookSecret, logger),
		UploadDir: *uploadDir,
	}, logger)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()
	logger.Info("serve.listening", "addr", *addr)

	select {
	case <-ctx.Done():
		logger.Info("serve.shutdown.begin")
	case err := <-serveErr:
		if err != nil {
			errors.FatalError(errors.NewNetworkError(
				"Server failed",
				err.Error(),
				fmt.Sprintf("Check that %s is free and bindable", *addr),
				err,
			), globals.JSON)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("serve.shutdown.error", "error", err)
	}
	logger.Info("serve.shutdown.complete")
}

// newLogger builds the server logger. -v enables debug; --json emits
// structured lines for log collectors.
func newLogger(globals GlobalFlags) *slog.Logger {
	level := slog.LevelInfo
	if globals.Verbose >= 1 {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if globals.JSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
