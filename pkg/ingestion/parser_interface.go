// Copyright 2026 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"fmt"

	"github.com/kraklabs/codequal/pkg/storage"
)

// RawSymbol is one symbol as extracted by a parser, before metrics are
// attached. Line numbers are 1-based and inclusive.
type RawSymbol struct {
	Name      string
	Kind      storage.SymbolKind
	LineStart int
	LineEnd   int
	Signature string
	Docstring string
}

// CallSite is a raw textual reference to a callee. Resolution to a
// symbol is deferred to the call-graph builder.
type CallSite struct {
	CallerName string // enclosing symbol name, empty for module level
	CalleeName string
	Line       int
}

// ImportSite names an imported module or file. Path resolution is the
// call-graph builder's job.
type ImportSite struct {
	Module string
	Line   int
	Kind   string // e.g. "import", "include", "copy"
}

// ParseResult is everything a parser extracts from one file.
type ParseResult struct {
	Symbols []RawSymbol
	Calls   []CallSite
	Imports []ImportSite
}

// SymbolParser extracts symbols, call sites and import sites from one
// source file. Implementations keep state per call, not per process,
// and must be safe for concurrent use from the parse worker pool.
type SymbolParser interface {
	// Language returns the language tag this parser handles.
	Language() string

	// Parse extracts symbols from source. path is repository-relative
	// and used only for diagnostics.
	Parse(source []byte, path string) (*ParseResult, error)
}

// Registry maps language tags to their parsers.
type Registry struct {
	parsers map[string]SymbolParser
}

// NewRegistry returns a registry with all built-in parsers registered.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]SymbolParser)}
	r.Register(NewPythonParser())
	r.Register(NewCParser())
	r.Register(NewCobolParser())
	r.Register(NewAssemblyParser())
	return r
}

// Register adds or replaces the parser for its language.
func (r *Registry) Register(p SymbolParser) {
	r.parsers[p.Language()] = p
}

// Get returns the parser for language or an error for unsupported ones.
func (r *Registry) Get(language string) (SymbolParser, error) {
	p, ok := r.parsers[language]
	if !ok {
		return nil, fmt.Errorf("no parser registered for language %q", language)
	}
	return p, nil
}

// Languages lists the registered language tags.
func (r *Registry) Languages() []string {
	out := make([]string, 0, len(r.parsers))
	for lang := range r.parsers {
		out = append(out, lang)
	}
	return out
}
