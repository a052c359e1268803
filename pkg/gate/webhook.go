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

package gate

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kraklabs/codequal/pkg/storage"
)

var (
	// ErrBadSignature is returned when the payload signature does not
	// match the configured signing secret.
	ErrBadSignature = errors.New("webhook signature mismatch")

	// ErrBadPayload is returned for payloads that do not decode.
	ErrBadPayload = errors.New("malformed webhook payload")
)

// Events that trigger a gate run. Everything else is acknowledged and
// dropped.
var triggerEvents = map[string]bool{
	"pull_request.opened":      true,
	"pull_request.synchronize": true,
	"pull_request.reopened":    true,
}

// WebhookPayload is the PR event shape sent by the external CI.
type WebhookPayload struct {
	EventType   string `json:"event_type"`
	PullRequest struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Head   struct {
			SHA string `json:"sha"`
			Ref string `json:"ref"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository struct {
		CloneURL string `json:"clone_url"`
	} `json:"repository"`
}

// WebhookResponse is returned to the CI system. When Ignored is true
// no run was created.
type WebhookResponse struct {
	Ignored bool        `json:"ignored"`
	Message string      `json:"message,omitempty"`
	Result  *GateResult `json:"result,omitempty"`
}

// Webhook turns CI pull-request events into gate checks.
type Webhook struct {
	engine *Engine
	store  storage.Store
	secret string
	logger *slog.Logger
}

// NewWebhook creates a handler. An empty secret disables signature
// verification.
func NewWebhook(engine *Engine, store storage.Store, secret string, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{engine: engine, store: store, secret: secret, logger: logger}
}

// Handle verifies, decodes and dispatches one webhook delivery.
// signature is the raw X-Hub-Signature-256 header value.
func (w *Webhook) Handle(ctx context.Context, body []byte, signature string) (*WebhookResponse, error) {
	if w.secret != "" && !w.verify(body, signature) {
		return nil, ErrBadSignature
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	if !triggerEvents[payload.EventType] {
		w.logger.Info("gate.webhook.ignored", "event_type", payload.EventType)
		return &WebhookResponse{Ignored: true, Message: "event ignored: " + payload.EventType}, nil
	}
	if payload.Repository.CloneURL == "" {
		return nil, fmt.Errorf("%w: missing repository.clone_url", ErrBadPayload)
	}

	repo, err := w.repoByCloneURL(ctx, payload.Repository.CloneURL)
	if err != nil {
		return nil, err
	}

	result, err := w.engine.Check(ctx, repo.ID, RunMeta{
		Branch:      payload.PullRequest.Head.Ref,
		CommitSHA:   payload.PullRequest.Head.SHA,
		PRNumber:    payload.PullRequest.Number,
		PRTitle:     payload.PullRequest.Title,
		TriggeredBy: "webhook",
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("gate.webhook.checked",
		"repo_id", repo.ID,
		"pr_number", payload.PullRequest.Number,
		"passed", result.Passed,
	)
	return &WebhookResponse{Result: result}, nil
}

// verify compares the HMAC-SHA256 of the body against the header,
// accepting the conventional "sha256=" prefix.
func (w *Webhook) verify(body []byte, signature string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	mac := hmac.New(sha256.New, []byte(w.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// repoByCloneURL matches the event's clone URL against imported
// repositories, tolerating a trailing ".git".
func (w *Webhook) repoByCloneURL(ctx context.Context, cloneURL string) (*storage.Repository, error) {
	repos, err := w.store.ListRepositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	want := strings.TrimSuffix(cloneURL, ".git")
	for i := range repos {
		if strings.TrimSuffix(repos[i].OriginURL, ".git") == want {
			return &repos[i], nil
		}
	}
	return nil, fmt.Errorf("repository %q: %w", cloneURL, storage.ErrNotFound)
}

// Signature computes the hex HMAC-SHA256 of body with the given
// secret, prefixed "sha256=". Used by senders and tests.
func Signature(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
