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

// Package llm selects the text generation backend used by the smell
// detector's review pass.
//
// The detector sends each candidate symbol's source to a [Provider] and
// parses findings out of the completion text. Four backends are
// supported:
//   - Ollama: local models, no credentials required (default)
//   - OpenAI: hosted models, also covers OpenAI-compatible gateways
//   - Anthropic: hosted Claude models
//   - Mock: deterministic, for tests and development
//
// # Selecting a backend
//
// [ProviderFromEnv] reads the backend type from an environment variable
// (the server uses LLM_PROVIDER) and falls back to [DefaultProvider]
// when it is unset. DefaultProvider checks credentials in order:
//  1. OLLAMA_HOST, OLLAMA_BASE_URL or OLLAMA_MODEL set: Ollama
//  2. OPENAI_API_KEY set: OpenAI
//  3. ANTHROPIC_API_KEY set: Anthropic
//  4. nothing configured: mock
//
// A backend can also be built directly:
//
//	provider, err := llm.NewProvider(llm.ProviderConfig{
//	    Type:   "openai",
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	})
//	if err != nil {
//	    return err
//	}
//
//	resp, err := provider.Generate(ctx, llm.GenerateRequest{
//	    Prompt:      reviewPrompt,
//	    Temperature: 0.1,
//	    MaxTokens:   512,
//	})
//
// # Environment variables
//
// Ollama:
//   - OLLAMA_HOST or OLLAMA_BASE_URL: server URL (default http://localhost:11434)
//   - OLLAMA_MODEL: model name, required for real generations
//
// OpenAI:
//   - OPENAI_API_KEY: API key
//   - OPENAI_BASE_URL: endpoint for OpenAI-compatible gateways
//   - OPENAI_MODEL: model name (default gpt-4o-mini)
//
// Anthropic:
//   - ANTHROPIC_API_KEY: API key
//   - ANTHROPIC_MODEL: model name (default claude-3-5-sonnet-20241022)
//
// Errors include the backend name and, for HTTP failures, the status
// and response body, e.g. "openai generate: status 401: invalid api key".
package llm
