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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/codequal/internal/errors"
	"github.com/kraklabs/codequal/pkg/gate"
	"github.com/kraklabs/codequal/pkg/storage"
)

// defaultServer is used when neither --server nor CODEQUAL_SERVER is set.
const defaultServer = "http://localhost:8080"

// client talks to a running codequal server over its REST API.
type client struct {
	base string
	http *http.Client
}

// newClient resolves the server base URL: explicit flag, then
// CODEQUAL_SERVER, then localhost.
func newClient(server string) *client {
	if server == "" {
		server = os.Getenv("CODEQUAL_SERVER")
	}
	if server == "" {
		server = defaultServer
	}
	return &client{
		base: strings.TrimSuffix(server, "/"),
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

type submitReply struct {
	ID     uuid.UUID          `json:"id"`
	Status storage.RepoStatus `json:"status"`
}

func (c *client) submitRemote(ctx context.Context, url, branch, name string) (*submitReply, error) {
	body := map[string]string{"url": url, "branch": branch, "name": name}
	var reply submitReply
	if err := c.doJSON(ctx, http.MethodPost, "/repos/submit", body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *client) submitArchive(ctx context.Context, archivePath, name string) (*submitReply, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, errors.NewInputError(
			"Cannot open archive",
			fmt.Sprintf("Failed to read %s: %v", archivePath, err),
			"Check the path and file permissions",
		)
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("archive", filepath.Base(archivePath))
	if err != nil {
		return nil, fmt.Errorf("build multipart request: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	if name != "" {
		if err := mw.WriteField("name", name); err != nil {
			return nil, fmt.Errorf("build multipart request: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build multipart request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/repos/submit", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var reply submitReply
	if err := c.do(req, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *client) listRepos(ctx context.Context) ([]storage.Repository, error) {
	var repos []storage.Repository
	if err := c.doJSON(ctx, http.MethodGet, "/repos", nil, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// resolveRepo turns either a repository id or an origin URL into the
// repository row, matching URLs with or without a trailing .git.
func (c *client) resolveRepo(ctx context.Context, idOrEmpty, originURL string) (*storage.Repository, error) {
	if idOrEmpty != "" {
		id, err := uuid.Parse(idOrEmpty)
		if err != nil {
			return nil, errors.NewInputError(
				"Invalid repository id",
				fmt.Sprintf("%q is not a UUID", idOrEmpty),
				"Use 'codequal status' to list repository ids",
			)
		}
		var repo storage.Repository
		if err := c.doJSON(ctx, http.MethodGet, "/repos/"+id.String(), nil, &repo); err != nil {
			return nil, err
		}
		return &repo, nil
	}

	repos, err := c.listRepos(ctx)
	if err != nil {
		return nil, err
	}
	want := strings.TrimSuffix(originURL, ".git")
	for i := range repos {
		if strings.TrimSuffix(repos[i].OriginURL, ".git") == want {
			return &repos[i], nil
		}
	}
	return nil, errors.NewNotFoundError(
		"Repository not found",
		fmt.Sprintf("No repository matches %s", originURL),
		"Submit it first with 'codequal submit --url'",
	)
}

func (c *client) putGateConfig(ctx context.Context, repoID uuid.UUID, cfg *storage.GateConfig) error {
	return c.doJSON(ctx, http.MethodPut, "/quality-gate/"+repoID.String(), cfg, nil)
}

func (c *client) gateCheck(ctx context.Context, repoID uuid.UUID, branch, commitSHA string, prNumber int, prTitle string) (*gate.GateResult, error) {
	body := map[string]any{
		"branch":     branch,
		"commit_sha": commitSHA,
		"pr_number":  prNumber,
		"pr_title":   prTitle,
	}
	var result gate.GateResult
	if err := c.doJSON(ctx, http.MethodPost, "/quality-gate/"+repoID.String()+"/check", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *client) search(ctx context.Context, query, repo, language string, threshold float64, limit int) ([]storage.SearchHit, error) {
	body := map[string]any{
		"query":     query,
		"repo":      repo,
		"language":  language,
		"threshold": threshold,
		"limit":     limit,
	}
	var reply struct {
		Hits []storage.SearchHit `json:"hits"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/search/semantic", body, &reply); err != nil {
		return nil, err
	}
	return reply.Hits, nil
}

// report fetches the rendered HTML for one gate run.
func (c *client) report(ctx context.Context, runID uuid.UUID) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/report/"+runID.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", wrapTransportError(c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, raw)
	}
	return string(raw), nil
}

// doJSON issues a request with an optional JSON body and decodes the
// JSON response into out (when out is non-nil).
func (c *client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return wrapTransportError(c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func wrapTransportError(base string, err error) error {
	return errors.NewNetworkError(
		"Cannot reach codequal server",
		fmt.Sprintf("Request to %s failed: %v", base, err),
		"Start it with 'codequal serve' or set CODEQUAL_SERVER",
		err,
	)
}

// statusError maps an API error response to a UserError with the
// matching exit code. The server body is {"error": "..."}.
func statusError(code int, raw []byte) error {
	msg := strings.TrimSpace(string(raw))
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		msg = body.Error
	}

	switch {
	case code == http.StatusNotFound:
		return errors.NewNotFoundError(
			"Not found",
			msg,
			"Use 'codequal status' to list known repositories",
		)
	case code >= 400 && code < 500:
		return errors.NewInputError(
			fmt.Sprintf("Request rejected (HTTP %d)", code),
			msg,
			"Check the command arguments",
		)
	default:
		return errors.NewInternalError(
			fmt.Sprintf("Server error (HTTP %d)", code),
			msg,
			"Check the server logs",
			nil,
		)
	}
}
