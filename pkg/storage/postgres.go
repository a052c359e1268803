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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Postgres implements Store on PostgreSQL with the pgvector extension
// serving the embedding index.
type Postgres struct {
	pool   *pgxpool.Pool
	dim    int
	logger *slog.Logger
}

// NewPostgres connects to databaseURL and returns a ready store.
// dim is the system-wide embedding dimension; the embeddings table is
// created with a vector column of exactly this width.
func NewPostgres(ctx context.Context, databaseURL string, dim int, logger *slog.Logger) (*Postgres, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is empty")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool, dim: dim, logger: logger}, nil
}

// EnsureSchema creates the extension, tables and indexes. Every
// statement is idempotent so this runs on each startup.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	start := time.Now()

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS repositories (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			source TEXT NOT NULL,
			origin_url TEXT,
			branch TEXT,
			archive_path TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			status_reason TEXT NOT NULL DEFAULT '',
			file_count INT NOT NULL DEFAULT 0,
			symbol_count INT NOT NULL DEFAULT 0,
			stars INT NOT NULL DEFAULT 0,
			primary_language TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS repositories_origin_branch
			ON repositories (origin_url, branch) WHERE source = 'remote'`,

		`CREATE TABLE IF NOT EXISTS files (
			id TEXT PRIMARY KEY,
			repo_id UUID NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			language TEXT NOT NULL,
			byte_size BIGINT NOT NULL DEFAULT 0,
			line_count INT NOT NULL DEFAULT 0,
			sha256 TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			parse_error TEXT NOT NULL DEFAULT '',
			UNIQUE (repo_id, path)
		)`,

		`CREATE TABLE IF NOT EXISTS symbols (
			id TEXT PRIMARY KEY,
			file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
			repo_id UUID NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			line_start INT NOT NULL,
			line_end INT NOT NULL,
			signature TEXT NOT NULL DEFAULT '',
			docstring TEXT NOT NULL DEFAULT '',
			has_docstring BOOLEAN NOT NULL DEFAULT false,
			docstring_length INT NOT NULL DEFAULT 0,
			complexity INT NOT NULL DEFAULT 1,
			maintainability DOUBLE PRECISION NOT NULL DEFAULT 0,
			mi_approximated BOOLEAN NOT NULL DEFAULT false,
			loc INT NOT NULL DEFAULT 0,
			comment_lines INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS symbols_repo ON symbols (repo_id)`,
		`CREATE INDEX IF NOT EXISTS symbols_name ON symbols (name)`,

		`CREATE TABLE IF NOT EXISTS call_edges (
			from_symbol_id TEXT NOT NULL,
			to_name TEXT NOT NULL,
			to_symbol_id TEXT,
			file_id TEXT NOT NULL,
			repo_id UUID NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			line INT NOT NULL,
			is_external BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE INDEX IF NOT EXISTS call_edges_repo ON call_edges (repo_id)`,

		`CREATE TABLE IF NOT EXISTS import_edges (
			from_file_id TEXT NOT NULL,
			to_file_id TEXT,
			to_module TEXT,
			repo_id UUID NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			kind TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS import_edges_repo ON import_edges (repo_id)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			symbol_id TEXT PRIMARY KEY REFERENCES symbols(id) ON DELETE CASCADE,
			repo_id UUID NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			dim INT NOT NULL,
			vector vector(%d) NOT NULL
		)`, p.dim),

		`CREATE TABLE IF NOT EXISTS vulnerabilities (
			id TEXT PRIMARY KEY,
			repo_id UUID NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			file_id TEXT NOT NULL,
			line INT NOT NULL,
			rule_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			cwe TEXT NOT NULL DEFAULT '',
			owasp TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			description TEXT NOT NULL,
			confidence TEXT NOT NULL,
			snippet TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS vulnerabilities_repo ON vulnerabilities (repo_id)`,

		`CREATE TABLE IF NOT EXISTS code_smells (
			id TEXT PRIMARY KEY,
			repo_id UUID NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			smell_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			suggestion TEXT NOT NULL DEFAULT '',
			file_id TEXT NOT NULL,
			symbol_id TEXT,
			location TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS code_smells_repo ON code_smells (repo_id)`,

		`CREATE TABLE IF NOT EXISTS duplication_pairs (
			id TEXT PRIMARY KEY,
			repo_id UUID NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			file1_id TEXT NOT NULL,
			file1_start INT NOT NULL,
			file1_end INT NOT NULL,
			file2_id TEXT NOT NULL,
			file2_start INT NOT NULL,
			file2_end INT NOT NULL,
			similarity DOUBLE PRECISION NOT NULL,
			duplicate_lines INT NOT NULL DEFAULT 0,
			duplicate_tokens INT NOT NULL DEFAULT 0,
			snippet TEXT NOT NULL DEFAULT '',
			CHECK (file1_id < file2_id)
		)`,
		`CREATE INDEX IF NOT EXISTS duplication_pairs_repo ON duplication_pairs (repo_id)`,

		`CREATE TABLE IF NOT EXISTS gate_configs (
			repo_id UUID PRIMARY KEY REFERENCES repositories(id) ON DELETE CASCADE,
			max_complexity INT NOT NULL,
			max_code_smells INT NOT NULL,
			max_critical_smells INT NOT NULL,
			max_vulnerabilities INT NOT NULL,
			max_critical_vulnerabilities INT NOT NULL,
			min_quality_score DOUBLE PRECISION NOT NULL,
			max_duplication_percentage DOUBLE PRECISION NOT NULL,
			block_on_failure BOOLEAN NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS cicd_runs (
			id UUID PRIMARY KEY,
			repo_id UUID NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			branch TEXT NOT NULL DEFAULT '',
			commit_sha TEXT NOT NULL DEFAULT '',
			pr_number INT NOT NULL DEFAULT 0,
			pr_title TEXT NOT NULL DEFAULT '',
			triggered_by TEXT NOT NULL DEFAULT 'manual',
			status TEXT NOT NULL DEFAULT 'running',
			gate_result JSONB,
			report_html TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS cicd_runs_repo ON cicd_runs (repo_id, created_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	// HNSW gives sublinear cosine lookups once the table has volume.
	if _, err := p.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS embeddings_vector_hnsw
			ON embeddings USING hnsw (vector vector_cosine_ops)`); err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}

	p.logger.Debug("storage.schema.ensured", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *Postgres) CreateRepository(ctx context.Context, repo *Repository) error {
	if repo.ID == uuid.Nil {
		repo.ID = uuid.New()
	}
	if repo.CreatedAt.IsZero() {
		repo.CreatedAt = time.Now().UTC()
	}
	if repo.Status == "" {
		repo.Status = RepoStatusPending
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO repositories
			(id, name, source, origin_url, branch, archive_path, status, status_reason,
			 file_count, symbol_count, stars, primary_language, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		repo.ID, repo.Name, repo.Source, repo.OriginURL, repo.Branch, repo.ArchivePath,
		repo.Status, repo.StatusReason, repo.FileCount, repo.SymbolCount,
		repo.Stars, repo.PrimaryLanguage, repo.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%s (%s): %w", repo.OriginURL, repo.Branch, ErrDuplicate)
		}
		return fmt.Errorf("create repository: %w", err)
	}
	return nil
}

const repoColumns = `id, name, source, origin_url, branch, archive_path, status, status_reason,
	file_count, symbol_count, stars, primary_language, created_at`

func scanRepository(row pgx.Row) (*Repository, error) {
	var r Repository
	var originURL, branch, archivePath *string
	err := row.Scan(&r.ID, &r.Name, &r.Source, &originURL, &branch, &archivePath,
		&r.Status, &r.StatusReason, &r.FileCount, &r.SymbolCount,
		&r.Stars, &r.PrimaryLanguage, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if originURL != nil {
		r.OriginURL = *originURL
	}
	if branch != nil {
		r.Branch = *branch
	}
	if archivePath != nil {
		r.ArchivePath = *archivePath
	}
	return &r, nil
}

func (p *Postgres) GetRepository(ctx context.Context, id uuid.UUID) (*Repository, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+repoColumns+` FROM repositories WHERE id = $1`, id)
	repo, err := scanRepository(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("repository %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}
	return repo, nil
}

func (p *Postgres) ListRepositories(ctx context.Context) ([]Repository, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+repoColumns+` FROM repositories ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var out []Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		out = append(out, *repo)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateRepositoryStatus(ctx context.Context, id uuid.UUID, status RepoStatus, reason string, counts *RepoCounts) error {
	var tag pgconn.CommandTag
	var err error
	if counts != nil {
		tag, err = p.pool.Exec(ctx, `
			UPDATE repositories
			SET status = $2, status_reason = $3, file_count = $4, symbol_count = $5
			WHERE id = $1`,
			id, status, reason, counts.Files, counts.Symbols)
	} else {
		tag, err = p.pool.Exec(ctx, `
			UPDATE repositories SET status = $2, status_reason = $3 WHERE id = $1`,
			id, status, reason)
	}
	if err != nil {
		return fmt.Errorf("update repository status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repository %s: %w", id, ErrNotFound)
	}
	return nil
}

func (p *Postgres) UpdateRepositoryMeta(ctx context.Context, id uuid.UUID, stars int, primaryLanguage string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE repositories
		SET stars = $2,
		    primary_language = CASE WHEN $3 <> '' THEN $3 ELSE primary_language END
		WHERE id = $1`,
		id, stars, primaryLanguage)
	if err != nil {
		return fmt.Errorf("update repository meta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repository %s: %w", id, ErrNotFound)
	}
	return nil
}

func (p *Postgres) DeleteRepository(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM repositories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repository %s: %w", id, ErrNotFound)
	}
	return nil
}

// inTx runs fn inside one transaction with rollback on error.
func (p *Postgres) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) ReplaceFiles(ctx context.Context, repoID uuid.UUID, files []File) error {
	return p.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM files WHERE repo_id = $1`, repoID); err != nil {
			return fmt.Errorf("delete files: %w", err)
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"files"},
			[]string{"id", "repo_id", "path", "language", "byte_size", "line_count", "sha256", "content", "parse_error"},
			pgx.CopyFromSlice(len(files), func(i int) ([]any, error) {
				f := files[i]
				return []any{f.ID, repoID, f.Path, f.Language, f.ByteSize, f.LineCount, f.SHA256, f.Content, f.ParseError}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy files: %w", err)
		}
		return nil
	})
}

func (p *Postgres) ReplaceSymbols(ctx context.Context, repoID uuid.UUID, symbols []Symbol) error {
	return p.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM symbols WHERE repo_id = $1`, repoID); err != nil {
			return fmt.Errorf("delete symbols: %w", err)
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"symbols"},
			[]string{"id", "file_id", "repo_id", "name", "kind", "line_start", "line_end",
				"signature", "docstring", "has_docstring", "docstring_length",
				"complexity", "maintainability", "mi_approximated", "loc", "comment_lines"},
			pgx.CopyFromSlice(len(symbols), func(i int) ([]any, error) {
				s := symbols[i]
				return []any{s.ID, s.FileID, repoID, s.Name, s.Kind, s.LineStart, s.LineEnd,
					s.Signature, s.Docstring, s.HasDocstring, s.DocstringLength,
					s.Complexity, s.Maintainability, s.MIApproximated, s.LOC, s.CommentLines}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy symbols: %w", err)
		}
		return nil
	})
}

func (p *Postgres) UpdateSymbolMetrics(ctx context.Context, updates []SymbolMetricsUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(`
			UPDATE symbols
			SET complexity = $2, maintainability = $3, mi_approximated = $4,
			    loc = $5, comment_lines = $6
			WHERE id = $1`,
			u.SymbolID, u.Complexity, u.Maintainability, u.MIApproximated, u.LOC, u.CommentLines)
	}
	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range updates {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("update symbol metrics: %w", err)
		}
	}
	return nil
}

func (p *Postgres) ListFiles(ctx context.Context, repoID uuid.UUID) ([]File, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, repo_id, path, language, byte_size, line_count, sha256, content, parse_error
		FROM files WHERE repo_id = $1 ORDER BY path`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.RepoID, &f.Path, &f.Language, &f.ByteSize,
			&f.LineCount, &f.SHA256, &f.Content, &f.ParseError); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (p *Postgres) GetFileContent(ctx context.Context, repoID uuid.UUID, path string) (string, error) {
	var content string
	err := p.pool.QueryRow(ctx,
		`SELECT content FROM files WHERE repo_id = $1 AND path = $2`, repoID, path).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("file %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get file content: %w", err)
	}
	return content, nil
}

func (p *Postgres) ListSymbols(ctx context.Context, filter SymbolFilter) ([]Symbol, error) {
	query := `
		SELECT s.id, s.file_id, s.repo_id, s.name, s.kind, s.line_start, s.line_end,
		       s.signature, s.docstring, s.has_docstring, s.docstring_length,
		       s.complexity, s.maintainability, s.mi_approximated, s.loc, s.comment_lines
		FROM symbols s
		JOIN files f ON f.id = s.file_id
		WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.RepoID != uuid.Nil {
		query += " AND s.repo_id = " + arg(filter.RepoID)
	}
	if filter.FileID != "" {
		query += " AND s.file_id = " + arg(filter.FileID)
	}
	if filter.Kind != "" {
		query += " AND s.kind = " + arg(filter.Kind)
	}
	if filter.Language != "" {
		query += " AND f.language = " + arg(filter.Language)
	}
	query += " ORDER BY s.id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	var out []Symbol
	for rows.Next() {
		var s Symbol
		if err := rows.Scan(&s.ID, &s.FileID, &s.RepoID, &s.Name, &s.Kind, &s.LineStart, &s.LineEnd,
			&s.Signature, &s.Docstring, &s.HasDocstring, &s.DocstringLength,
			&s.Complexity, &s.Maintainability, &s.MIApproximated, &s.LOC, &s.CommentLines); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ReplaceCallEdges(ctx context.Context, repoID uuid.UUID, edges []CallEdge) error {
	return p.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM call_edges WHERE repo_id = $1`, repoID); err != nil {
			return fmt.Errorf("delete call edges: %w", err)
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"call_edges"},
			[]string{"from_symbol_id", "to_name", "to_symbol_id", "file_id", "repo_id", "line", "is_external"},
			pgx.CopyFromSlice(len(edges), func(i int) ([]any, error) {
				e := edges[i]
				var toID *string
				if e.ToSymbolID != "" {
					toID = &e.ToSymbolID
				}
				return []any{e.FromSymbolID, e.ToName, toID, e.FileID, repoID, e.Line, e.IsExternal}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy call edges: %w", err)
		}
		return nil
	})
}

func (p *Postgres) ReplaceImportEdges(ctx context.Context, repoID uuid.UUID, edges []ImportEdge) error {
	return p.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM import_edges WHERE repo_id = $1`, repoID); err != nil {
			return fmt.Errorf("delete import edges: %w", err)
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"import_edges"},
			[]string{"from_file_id", "to_file_id", "to_module", "repo_id", "kind"},
			pgx.CopyFromSlice(len(edges), func(i int) ([]any, error) {
				e := edges[i]
				var toFile *string
				if e.ToFileID != "" {
					toFile = &e.ToFileID
				}
				return []any{e.FromFileID, toFile, e.ToModule, repoID, e.Kind}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy import edges: %w", err)
		}
		return nil
	})
}

func (p *Postgres) ListCallEdges(ctx context.Context, repoID uuid.UUID) ([]CallEdge, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT from_symbol_id, to_name, COALESCE(to_symbol_id, ''), file_id, repo_id, line, is_external
		FROM call_edges WHERE repo_id = $1`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list call edges: %w", err)
	}
	defer rows.Close()

	var out []CallEdge
	for rows.Next() {
		var e CallEdge
		if err := rows.Scan(&e.FromSymbolID, &e.ToName, &e.ToSymbolID, &e.FileID, &e.RepoID, &e.Line, &e.IsExternal); err != nil {
			return nil, fmt.Errorf("scan call edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) ListImportEdges(ctx context.Context, repoID uuid.UUID) ([]ImportEdge, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT from_file_id, COALESCE(to_file_id, ''), COALESCE(to_module, ''), repo_id, kind
		FROM import_edges WHERE repo_id = $1`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list import edges: %w", err)
	}
	defer rows.Close()

	var out []ImportEdge
	for rows.Next() {
		var e ImportEdge
		if err := rows.Scan(&e.FromFileID, &e.ToFileID, &e.ToModule, &e.RepoID, &e.Kind); err != nil {
			return nil, fmt.Errorf("scan import edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertEmbeddings(ctx context.Context, embeddings []Embedding) error {
	return p.inTx(ctx, func(tx pgx.Tx) error {
		for _, e := range embeddings {
			if len(e.Vector) != p.dim {
				return fmt.Errorf("embedding for %s has dim %d, want %d", e.SymbolID, len(e.Vector), p.dim)
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO embeddings (symbol_id, repo_id, dim, vector)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (symbol_id) DO UPDATE SET vector = EXCLUDED.vector, dim = EXCLUDED.dim`,
				e.SymbolID, e.RepoID, len(e.Vector), pgvector.NewVector(e.Vector))
			if err != nil {
				return fmt.Errorf("upsert embedding %s: %w", e.SymbolID, err)
			}
		}
		return nil
	})
}

func (p *Postgres) QueryEmbeddings(ctx context.Context, q VectorQuery) ([]SearchHit, error) {
	if q.K <= 0 {
		q.K = 20
	}

	query := `
		SELECT s.id, s.file_id, s.repo_id, s.name, s.kind, s.line_start, s.line_end,
		       s.signature, s.docstring, s.has_docstring, s.docstring_length,
		       s.complexity, s.maintainability, s.mi_approximated, s.loc, s.comment_lines,
		       f.path, f.language,
		       1 - (e.vector <=> $1) AS similarity
		FROM embeddings e
		JOIN symbols s ON s.id = e.symbol_id
		JOIN files f ON f.id = s.file_id
		WHERE 1 - (e.vector <=> $1) >= $2`
	args := []any{pgvector.NewVector(q.Vector), q.Threshold}
	if q.RepoID != uuid.Nil {
		args = append(args, q.RepoID)
		query += fmt.Sprintf(" AND e.repo_id = $%d", len(args))
	}
	if q.Language != "" {
		args = append(args, q.Language)
		query += fmt.Sprintf(" AND f.language = $%d", len(args))
	}
	args = append(args, q.K)
	query += fmt.Sprintf(" ORDER BY similarity DESC, s.id LIMIT $%d", len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		s := &h.Symbol
		if err := rows.Scan(&s.ID, &s.FileID, &s.RepoID, &s.Name, &s.Kind, &s.LineStart, &s.LineEnd,
			&s.Signature, &s.Docstring, &s.HasDocstring, &s.DocstringLength,
			&s.Complexity, &s.Maintainability, &s.MIApproximated, &s.LOC, &s.CommentLines,
			&h.FilePath, &h.Language, &h.Similarity); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (p *Postgres) ReplaceVulnerabilities(ctx context.Context, repoID uuid.UUID, vulns []Vulnerability) error {
	return p.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM vulnerabilities WHERE repo_id = $1`, repoID); err != nil {
			return fmt.Errorf("delete vulnerabilities: %w", err)
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"vulnerabilities"},
			[]string{"id", "repo_id", "file_id", "line", "rule_id", "severity", "cwe", "owasp",
				"category", "description", "confidence", "snippet"},
			pgx.CopyFromSlice(len(vulns), func(i int) ([]any, error) {
				v := vulns[i]
				return []any{v.ID, repoID, v.FileID, v.Line, v.RuleID, v.Severity, v.CWE, v.OWASP,
					v.Category, v.Description, v.Confidence, v.Snippet}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy vulnerabilities: %w", err)
		}
		return nil
	})
}

func (p *Postgres) ReplaceCodeSmells(ctx context.Context, repoID uuid.UUID, smells []CodeSmell) error {
	return p.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM code_smells WHERE repo_id = $1`, repoID); err != nil {
			return fmt.Errorf("delete code smells: %w", err)
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"code_smells"},
			[]string{"id", "repo_id", "smell_type", "severity", "title", "description",
				"suggestion", "file_id", "symbol_id", "location"},
			pgx.CopyFromSlice(len(smells), func(i int) ([]any, error) {
				s := smells[i]
				var symID *string
				if s.SymbolID != "" {
					symID = &s.SymbolID
				}
				return []any{s.ID, repoID, s.SmellType, s.Severity, s.Title, s.Description,
					s.Suggestion, s.FileID, symID, s.Location}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy code smells: %w", err)
		}
		return nil
	})
}

func (p *Postgres) ReplaceDuplicationPairs(ctx context.Context, repoID uuid.UUID, pairs []DuplicationPair) error {
	for _, pr := range pairs {
		if pr.File1ID >= pr.File2ID {
			return fmt.Errorf("duplication pair %s/%s violates canonical ordering", pr.File1ID, pr.File2ID)
		}
	}
	return p.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM duplication_pairs WHERE repo_id = $1`, repoID); err != nil {
			return fmt.Errorf("delete duplication pairs: %w", err)
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"duplication_pairs"},
			[]string{"id", "repo_id", "file1_id", "file1_start", "file1_end",
				"file2_id", "file2_start", "file2_end", "similarity",
				"duplicate_lines", "duplicate_tokens", "snippet"},
			pgx.CopyFromSlice(len(pairs), func(i int) ([]any, error) {
				d := pairs[i]
				return []any{d.ID, repoID, d.File1ID, d.File1Range.Start, d.File1Range.End,
					d.File2ID, d.File2Range.Start, d.File2Range.End, d.Similarity,
					d.DuplicateLines, d.DuplicateTokens, d.Snippet}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy duplication pairs: %w", err)
		}
		return nil
	})
}

func (p *Postgres) ListVulnerabilities(ctx context.Context, repoID uuid.UUID) ([]Vulnerability, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, repo_id, file_id, line, rule_id, severity, cwe, owasp, category, description, confidence, snippet
		FROM vulnerabilities WHERE repo_id = $1 ORDER BY severity, file_id, line`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list vulnerabilities: %w", err)
	}
	defer rows.Close()

	var out []Vulnerability
	for rows.Next() {
		var v Vulnerability
		if err := rows.Scan(&v.ID, &v.RepoID, &v.FileID, &v.Line, &v.RuleID, &v.Severity,
			&v.CWE, &v.OWASP, &v.Category, &v.Description, &v.Confidence, &v.Snippet); err != nil {
			return nil, fmt.Errorf("scan vulnerability: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *Postgres) ListCodeSmells(ctx context.Context, repoID uuid.UUID) ([]CodeSmell, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, repo_id, smell_type, severity, title, description, suggestion,
		       file_id, COALESCE(symbol_id, ''), location
		FROM code_smells WHERE repo_id = $1 ORDER BY severity, file_id`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list code smells: %w", err)
	}
	defer rows.Close()

	var out []CodeSmell
	for rows.Next() {
		var s CodeSmell
		if err := rows.Scan(&s.ID, &s.RepoID, &s.SmellType, &s.Severity, &s.Title,
			&s.Description, &s.Suggestion, &s.FileID, &s.SymbolID, &s.Location); err != nil {
			return nil, fmt.Errorf("scan code smell: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListDuplicationPairs(ctx context.Context, repoID uuid.UUID) ([]DuplicationPair, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, repo_id, file1_id, file1_start, file1_end, file2_id, file2_start, file2_end,
		       similarity, duplicate_lines, duplicate_tokens, snippet
		FROM duplication_pairs WHERE repo_id = $1 ORDER BY similarity DESC`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list duplication pairs: %w", err)
	}
	defer rows.Close()

	var out []DuplicationPair
	for rows.Next() {
		var d DuplicationPair
		if err := rows.Scan(&d.ID, &d.RepoID, &d.File1ID, &d.File1Range.Start, &d.File1Range.End,
			&d.File2ID, &d.File2Range.Start, &d.File2Range.End,
			&d.Similarity, &d.DuplicateLines, &d.DuplicateTokens, &d.Snippet); err != nil {
			return nil, fmt.Errorf("scan duplication pair: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) GetGateConfig(ctx context.Context, repoID uuid.UUID) (GateConfig, error) {
	var cfg GateConfig
	err := p.pool.QueryRow(ctx, `
		SELECT repo_id, max_complexity, max_code_smells, max_critical_smells,
		       max_vulnerabilities, max_critical_vulnerabilities,
		       min_quality_score, max_duplication_percentage, block_on_failure
		FROM gate_configs WHERE repo_id = $1`, repoID).
		Scan(&cfg.RepoID, &cfg.MaxComplexity, &cfg.MaxCodeSmells, &cfg.MaxCriticalSmells,
			&cfg.MaxVulnerabilities, &cfg.MaxCriticalVulnerabilities,
			&cfg.MinQualityScore, &cfg.MaxDuplicationPercentage, &cfg.BlockOnFailure)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultGateConfig(repoID), nil
	}
	if err != nil {
		return GateConfig{}, fmt.Errorf("get gate config: %w", err)
	}
	return cfg, nil
}

func (p *Postgres) PutGateConfig(ctx context.Context, cfg GateConfig) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO gate_configs
			(repo_id, max_complexity, max_code_smells, max_critical_smells,
			 max_vulnerabilities, max_critical_vulnerabilities,
			 min_quality_score, max_duplication_percentage, block_on_failure)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (repo_id) DO UPDATE SET
			max_complexity = EXCLUDED.max_complexity,
			max_code_smells = EXCLUDED.max_code_smells,
			max_critical_smells = EXCLUDED.max_critical_smells,
			max_vulnerabilities = EXCLUDED.max_vulnerabilities,
			max_critical_vulnerabilities = EXCLUDED.max_critical_vulnerabilities,
			min_quality_score = EXCLUDED.min_quality_score,
			max_duplication_percentage = EXCLUDED.max_duplication_percentage,
			block_on_failure = EXCLUDED.block_on_failure`,
		cfg.RepoID, cfg.MaxComplexity, cfg.MaxCodeSmells, cfg.MaxCriticalSmells,
		cfg.MaxVulnerabilities, cfg.MaxCriticalVulnerabilities,
		cfg.MinQualityScore, cfg.MaxDuplicationPercentage, cfg.BlockOnFailure)
	if err != nil {
		return fmt.Errorf("put gate config: %w", err)
	}
	return nil
}

func (p *Postgres) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO cicd_runs
			(id, repo_id, branch, commit_sha, pr_number, pr_title, triggered_by, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		run.ID, run.RepoID, run.Branch, run.CommitSHA, run.PRNumber, run.PRTitle,
		run.TriggeredBy, run.Status, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (p *Postgres) CompleteRun(ctx context.Context, id uuid.UUID, status RunStatus, gateResult []byte, reportHTML string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE cicd_runs
		SET status = $2, gate_result = $3, report_html = $4, completed_at = now()
		WHERE id = $1 AND status = 'running'`,
		id, status, gateResult, reportHTML)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already terminal; distinguish for the caller.
		var st RunStatus
		err := p.pool.QueryRow(ctx, `SELECT status FROM cicd_runs WHERE id = $1`, id).Scan(&st)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
		return fmt.Errorf("run %s: %w", id, ErrTerminalRun)
	}
	return nil
}

const runColumns = `id, repo_id, branch, commit_sha, pr_number, pr_title, triggered_by,
	status, COALESCE(gate_result, 'null'::jsonb), report_html, created_at, completed_at`

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.RepoID, &r.Branch, &r.CommitSHA, &r.PRNumber, &r.PRTitle,
		&r.TriggeredBy, &r.Status, &r.GateResult, &r.ReportHTML, &r.CreatedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *Postgres) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM cicd_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (p *Postgres) ListRuns(ctx context.Context, repoID uuid.UUID, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+runColumns+` FROM cicd_runs WHERE repo_id = $1 ORDER BY created_at DESC LIMIT $2`,
		repoID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

var _ Store = (*Postgres)(nil)
