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

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kraklabs/codequal/internal/contract"
	"github.com/kraklabs/codequal/pkg/storage"
)

// submitRequest is the JSON body for remote imports. Uploads use
// multipart/form-data with an "archive" file field instead.
type submitRequest struct {
	URL    string `json:"url"`
	Branch string `json:"branch"`
	Name   string `json:"name"`
}

type submitResponse struct {
	ID     uuid.UUID          `json:"id"`
	Status storage.RepoStatus `json:"status"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.buildRepository(w, r)
	if !ok {
		return
	}
	repo.Status = storage.RepoStatusPending

	if err := s.deps.Store.CreateRepository(r.Context(), repo); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.deps.Scheduler.Enqueue(repo.ID); err != nil {
		// The row exists but nothing will process it; surface that.
		_ = s.deps.Store.UpdateRepositoryStatus(r.Context(), repo.ID, storage.RepoStatusFailed, err.Error(), nil)
		writeStoreError(w, err)
		return
	}

	s.logger.Info("api.repo.submitted", "repo_id", repo.ID, "source", repo.Source, "name", repo.Name)
	writeJSON(w, http.StatusAccepted, submitResponse{ID: repo.ID, Status: repo.Status})
}

// buildRepository decodes either submission shape into a Repository
// row. On failure it writes the error response and returns ok=false.
func (s *Server) buildRepository(w http.ResponseWriter, r *http.Request) (*storage.Repository, bool) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		return s.buildUploadRepository(w, r)
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return nil, false
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required for remote imports")
		return nil, false
	}
	name := req.Name
	if name == "" {
		name = strings.TrimSuffix(path.Base(req.URL), ".git")
	}
	return &storage.Repository{
		Name:      name,
		Source:    storage.SourceRemote,
		OriginURL: req.URL,
		Branch:    req.Branch,
	}, true
}

func (s *Server) buildUploadRepository(w http.ResponseWriter, r *http.Request) (*storage.Repository, bool) {
	cap := contract.UploadLimitBytes()
	r.Body = http.MaxBytesReader(w, r.Body, cap)

	file, header, err := r.FormFile("archive")
	if err != nil {
		writeError(w, http.StatusBadRequest, "archive file field is required: "+err.Error())
		return nil, false
	}
	defer func() { _ = file.Close() }()

	if res := contract.ValidateUploadSize(header.Size); !res.OK {
		writeError(w, http.StatusBadRequest, res.Message)
		return nil, false
	}

	dir := s.deps.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	dst, err := os.CreateTemp(dir, "upload-*.zip")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store upload: "+err.Error())
		return nil, false
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		writeError(w, http.StatusInternalServerError, "store upload: "+err.Error())
		return nil, false
	}
	if err := dst.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, "store upload: "+err.Error())
		return nil, false
	}

	name := r.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(path.Base(header.Filename), ".zip")
	}
	return &storage.Repository{
		Name:        name,
		Source:      storage.SourceUpload,
		ArchivePath: dst.Name(),
	}, true
}

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.deps.Store.ListRepositories(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	repo, err := s.deps.Store.GetRepository(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	s.deps.Scheduler.Cancel(id)
	if err := s.deps.Store.DeleteRepository(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	files, err := s.deps.Store.ListFiles(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// handleFileContent serves GET /repos/{id}/files/{path}/content as raw
// text. The trailing /content segment distinguishes it from the list.
func (s *Server) handleFileContent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	rest := chi.URLParam(r, "*")
	if !strings.HasSuffix(rest, "/content") {
		writeError(w, http.StatusNotFound, "unknown resource; file content lives at /repos/{id}/files/{path}/content")
		return
	}
	filePath := strings.TrimSuffix(rest, "/content")

	content, err := s.deps.Store.GetFileContent(r.Context(), id, filePath)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(content))
}

func (s *Server) handleListSymbols(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	filter := storage.SymbolFilter{
		RepoID:   id,
		Kind:     storage.SymbolKind(r.URL.Query().Get("kind")),
		Language: r.URL.Query().Get("language"),
		Limit:    queryInt(r, "limit", 100),
		Offset:   queryInt(r, "offset", 0),
	}
	symbols, err := s.deps.Store.ListSymbols(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, symbols)
}

// callGraphResponse pairs raw nodes and edges for graph rendering.
type callGraphResponse struct {
	Nodes []storage.Symbol   `json:"nodes"`
	Edges []storage.CallEdge `json:"edges"`
}

func (s *Server) handleCallGraph(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	symbols, err := s.deps.Store.ListSymbols(r.Context(), storage.SymbolFilter{RepoID: id})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	edges, err := s.deps.Store.ListCallEdges(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, callGraphResponse{Nodes: symbols, Edges: edges})
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	deps, err := s.deps.CallGraph.FileDependencies(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deps)
}

func (s *Server) handleDeadCode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	dead, err := s.deps.CallGraph.DeadCode(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dead)
}

func (s *Server) handleCircularDeps(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	cycles, err := s.deps.CallGraph.Cycles(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cycles)
}

// pathUUID parses a uuid path parameter, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+": "+err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
