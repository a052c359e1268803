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

	"github.com/kraklabs/codequal/pkg/gate"
	"github.com/kraklabs/codequal/pkg/storage"
)

func (s *Server) handleGetGateConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "repo")
	if !ok {
		return
	}
	cfg, err := s.deps.Store.GetGateConfig(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutGateConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "repo")
	if !ok {
		return
	}
	// The repo must exist; thresholds for unknown repos are a caller error.
	if _, err := s.deps.Store.GetRepository(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	var cfg storage.GateConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "malformed gate config: "+err.Error())
		return
	}
	cfg.RepoID = id
	if err := s.deps.Store.PutGateConfig(r.Context(), cfg); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// checkRequest is the optional body of POST /quality-gate/{repo}/check.
type checkRequest struct {
	Branch    string `json:"branch"`
	CommitSHA string `json:"commit_sha"`
	PRNumber  int    `json:"pr_number"`
	PRTitle   string `json:"pr_title"`
}

func (s *Server) handleGateCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "repo")
	if !ok {
		return
	}
	var req checkRequest
	if r.Body != nil {
		// Body is optional; ignore EOF on an empty one.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
			return
		}
	}

	result, err := s.deps.Gate.Check(r.Context(), id, gate.RunMeta{
		Branch:      req.Branch,
		CommitSHA:   req.CommitSHA,
		PRNumber:    req.PRNumber,
		PRTitle:     req.PRTitle,
		TriggeredBy: "manual",
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	resp, err := s.deps.Webhook.Handle(r.Context(), body, r.Header.Get("X-Hub-Signature-256"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "repo")
	if !ok {
		return
	}
	runs, err := s.deps.Store.ListRuns(r.Context(), id, queryInt(r, "limit", 50))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "run")
	if !ok {
		return
	}
	run, err := s.deps.Store.GetRun(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if run.ReportHTML == "" {
		writeError(w, http.StatusNotFound, "no report stored for this run")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(run.ReportHTML))
}
