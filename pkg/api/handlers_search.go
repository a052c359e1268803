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
	"net/http"

	"github.com/google/uuid"

	"github.com/kraklabs/codequal/internal/contract"
	"github.com/kraklabs/codequal/pkg/search"
	"github.com/kraklabs/codequal/pkg/storage"
)

type searchRequest struct {
	Query     string  `json:"query"`
	Threshold float64 `json:"threshold"`
	Language  string  `json:"language"`
	Repo      string  `json:"repo"`
	Limit     int     `json:"limit"`
}

type searchResponse struct {
	Hits []storage.SearchHit `json:"hits"`
}

func (s *Server) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if res := contract.ValidateQuery(req.Query); !res.OK {
		writeError(w, http.StatusBadRequest, res.Message)
		return
	}

	opts := search.Options{
		Language:  req.Language,
		Threshold: req.Threshold,
		Limit:     req.Limit,
	}
	if req.Repo != "" {
		repoID, err := uuid.Parse(req.Repo)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid repo: "+err.Error())
			return
		}
		opts.RepoID = repoID
	}

	hits, err := s.deps.Searcher.Search(r.Context(), req.Query, opts)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if hits == nil {
		hits = []storage.SearchHit{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Hits: hits})
}
