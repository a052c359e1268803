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

package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/codequal/pkg/storage"
)

// defaultEntryPoints are symbol names never reported as dead code,
// matched case-insensitively.
var defaultEntryPoints = []string{
	"main", "__init__", "__main__", "init", "setup", "start",
	"Main", "MAIN", "MAIN-PARAGRAPH", "START", "_start",
}

// GraphNode is one symbol in the resolved call graph.
type GraphNode struct {
	SymbolID string `json:"symbol_id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	FilePath string `json:"file_path"`
}

// GraphEdge is one resolved or unresolved call.
type GraphEdge struct {
	FromSymbolID string `json:"from_symbol_id"`
	ToSymbolID   string `json:"to_symbol_id,omitempty"`
	ToName       string `json:"to_name"`
	Line         int    `json:"line"`
	IsExternal   bool   `json:"is_external"`
}

// CallGraph is the resolved graph of one repository.
type CallGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// DeadSymbol is one function never called and not an entry point.
type DeadSymbol struct {
	SymbolID      string `json:"symbol_id"`
	Name          string `json:"name"`
	FilePath      string `json:"file_path"`
	OutgoingCalls int    `json:"outgoing_calls"`
	Severity      string `json:"severity"`
}

// Cycle is one strongly connected component of size >= 2, or a
// self-loop.
type Cycle struct {
	Members  []string `json:"members"` // symbol names, sorted
	Length   int      `json:"length"`
	Severity string   `json:"severity"`
}

// FileDependency is one file-level import edge.
type FileDependency struct {
	FromPath string `json:"from_path"`
	ToPath   string `json:"to_path,omitempty"`
	ToModule string `json:"to_module"`
	External bool   `json:"external"`
}

// CallGraphBuilder resolves raw call sites to symbols and derives
// dead-code, cycle, and file-dependency views.
type CallGraphBuilder struct {
	store       storage.Store
	logger      *slog.Logger
	entryPoints map[string]bool // lowercase names
}

// NewCallGraphBuilder creates a builder. entryPoints extends the
// default entry-point names; nil keeps only the defaults.
func NewCallGraphBuilder(store storage.Store, entryPoints []string, logger *slog.Logger) *CallGraphBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	eps := make(map[string]bool, len(defaultEntryPoints)+len(entryPoints))
	for _, name := range defaultEntryPoints {
		eps[strings.ToLower(name)] = true
	}
	for _, name := range entryPoints {
		eps[strings.ToLower(name)] = true
	}
	return &CallGraphBuilder{store: store, logger: logger, entryPoints: eps}
}

// Run resolves the repository's call and import edges in place and
// returns the resolved call graph.
//
// Resolution is two-pass: exact name in the same file, then exact name
// repository-wide. A name matching several symbols repo-wide is left
// unresolved; a name matching none is marked external.
func (b *CallGraphBuilder) Run(ctx context.Context, repoID uuid.UUID) (*CallGraph, error) {
	start := time.Now()

	symbols, err := b.store.ListSymbols(ctx, storage.SymbolFilter{RepoID: repoID})
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	files, err := b.store.ListFiles(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	edges, err := b.store.ListCallEdges(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list call edges: %w", err)
	}

	pathByFile := make(map[string]string, len(files))
	for _, f := range files {
		pathByFile[f.ID] = f.Path
	}

	// Name indexes for the two resolution passes.
	byFileAndName := make(map[string]string)   // file_id|name -> symbol_id
	byName := make(map[string][]string)        // name -> symbol_ids
	callable := func(k storage.SymbolKind) bool {
		return k == storage.KindFunction || k == storage.KindMethod || k == storage.KindProcedure
	}
	for _, s := range symbols {
		if !callable(s.Kind) {
			continue
		}
		key := s.FileID + "|" + s.Name
		if _, dup := byFileAndName[key]; !dup {
			byFileAndName[key] = s.ID
		}
		byName[s.Name] = append(byName[s.Name], s.ID)
	}

	resolved := 0
	for i := range edges {
		e := &edges[i]
		e.ToSymbolID = ""
		e.IsExternal = false
		if id, ok := byFileAndName[e.FileID+"|"+e.ToName]; ok {
			e.ToSymbolID = id
			resolved++
			continue
		}
		switch ids := byName[e.ToName]; len(ids) {
		case 0:
			e.IsExternal = true
		case 1:
			e.ToSymbolID = ids[0]
			resolved++
		default:
			// Ambiguous: recorded as unresolved, not a failure.
		}
	}
	if err := b.store.ReplaceCallEdges(ctx, repoID, edges); err != nil {
		return nil, fmt.Errorf("persist resolved edges: %w", err)
	}

	if err := b.resolveImports(ctx, repoID, files); err != nil {
		return nil, err
	}

	graph := &CallGraph{}
	for _, s := range symbols {
		if !callable(s.Kind) {
			continue
		}
		graph.Nodes = append(graph.Nodes, GraphNode{
			SymbolID: s.ID,
			Name:     s.Name,
			Kind:     string(s.Kind),
			FilePath: pathByFile[s.FileID],
		})
	}
	for _, e := range edges {
		graph.Edges = append(graph.Edges, GraphEdge{
			FromSymbolID: e.FromSymbolID,
			ToSymbolID:   e.ToSymbolID,
			ToName:       e.ToName,
			Line:         e.Line,
			IsExternal:   e.IsExternal,
		})
	}

	b.logger.Info("analysis.callgraph.complete",
		"repo_id", repoID,
		"nodes", len(graph.Nodes),
		"edges", len(graph.Edges),
		"resolved", resolved,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return graph, nil
}

// resolveImports matches import module names to repository files by
// path suffix and persists the resolved edges.
func (b *CallGraphBuilder) resolveImports(ctx context.Context, repoID uuid.UUID, files []storage.File) error {
	imports, err := b.store.ListImportEdges(ctx, repoID)
	if err != nil {
		return fmt.Errorf("list import edges: %w", err)
	}
	for i := range imports {
		imports[i].ToFileID = resolveModuleToFile(imports[i].ToModule, files)
	}
	if err := b.store.ReplaceImportEdges(ctx, repoID, imports); err != nil {
		return fmt.Errorf("persist resolved imports: %w", err)
	}
	return nil
}

// resolveModuleToFile maps an import name to a file in the repository:
// python dotted modules to slash paths, includes and COPY members to
// path suffixes. Empty means external.
func resolveModuleToFile(module string, files []storage.File) string {
	if module == "" {
		return ""
	}
	candidates := []string{
		strings.ReplaceAll(module, ".", "/") + ".py",
		strings.ReplaceAll(module, ".", "/") + "/__init__.py",
		module, // includes carry their extension already
		strings.ToLower(module) + ".cob",
		strings.ToLower(module) + ".cbl",
	}
	for _, f := range files {
		for _, cand := range candidates {
			if f.Path == cand || strings.HasSuffix(f.Path, "/"+cand) {
				return f.ID
			}
		}
	}
	return ""
}

// DeadCode returns symbols with no incoming calls that are not entry
// points. Dunder names and entry points are exempt. Severity reflects
// wasted work: high when the dead symbol itself makes >= 3 calls,
// medium for 1-2, low for 0.
func (b *CallGraphBuilder) DeadCode(ctx context.Context, repoID uuid.UUID) ([]DeadSymbol, error) {
	graph, err := b.loadGraph(ctx, repoID)
	if err != nil {
		return nil, err
	}

	inDegree := make(map[string]int)
	outDegree := make(map[string]int)
	for _, e := range graph.Edges {
		if e.ToSymbolID != "" {
			inDegree[e.ToSymbolID]++
		}
		outDegree[e.FromSymbolID]++
	}

	var dead []DeadSymbol
	for _, n := range graph.Nodes {
		if inDegree[n.SymbolID] > 0 {
			continue
		}
		if b.entryPoints[strings.ToLower(n.Name)] {
			continue
		}
		if strings.HasPrefix(n.Name, "__") && strings.HasSuffix(n.Name, "__") {
			continue
		}
		out := outDegree[n.SymbolID]
		severity := "low"
		switch {
		case out >= 3:
			severity = "high"
		case out >= 1:
			severity = "medium"
		}
		dead = append(dead, DeadSymbol{
			SymbolID:      n.SymbolID,
			Name:          n.Name,
			FilePath:      n.FilePath,
			OutgoingCalls: out,
			Severity:      severity,
		})
	}

	rank := map[string]int{"high": 0, "medium": 1, "low": 2}
	sort.Slice(dead, func(i, j int) bool {
		if rank[dead[i].Severity] != rank[dead[j].Severity] {
			return rank[dead[i].Severity] < rank[dead[j].Severity]
		}
		if dead[i].FilePath != dead[j].FilePath {
			return dead[i].FilePath < dead[j].FilePath
		}
		return dead[i].Name < dead[j].Name
	})
	return dead, nil
}

// Cycles returns the strongly connected components of size >= 2, plus
// self-loops, via Tarjan's algorithm. Severity grows with size:
// critical >= 5 members, high 3-4, medium 2 or a self-loop.
func (b *CallGraphBuilder) Cycles(ctx context.Context, repoID uuid.UUID) ([]Cycle, error) {
	graph, err := b.loadGraph(ctx, repoID)
	if err != nil {
		return nil, err
	}

	nameByID := make(map[string]string, len(graph.Nodes))
	adj := make(map[string][]string)
	selfLoop := make(map[string]bool)
	for _, n := range graph.Nodes {
		nameByID[n.SymbolID] = n.Name
	}
	for _, e := range graph.Edges {
		if e.ToSymbolID == "" {
			continue
		}
		if e.FromSymbolID == e.ToSymbolID {
			selfLoop[e.FromSymbolID] = true
			continue
		}
		adj[e.FromSymbolID] = append(adj[e.FromSymbolID], e.ToSymbolID)
	}

	var cycles []Cycle
	for _, scc := range tarjanSCC(graph.Nodes, adj) {
		if len(scc) < 2 {
			continue
		}
		names := make([]string, 0, len(scc))
		for _, id := range scc {
			names = append(names, nameByID[id])
			delete(selfLoop, id) // subsumed by the larger cycle
		}
		sort.Strings(names)
		cycles = append(cycles, Cycle{
			Members:  names,
			Length:   len(names),
			Severity: cycleSeverity(len(names)),
		})
	}
	for id := range selfLoop {
		cycles = append(cycles, Cycle{
			Members:  []string{nameByID[id]},
			Length:   1,
			Severity: "medium",
		})
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i].Members[0] < cycles[j].Members[0]
	})
	return cycles, nil
}

func cycleSeverity(size int) string {
	switch {
	case size >= 5:
		return "critical"
	case size >= 3:
		return "high"
	default:
		return "medium"
	}
}

// FileDependencies returns the file-level import graph.
func (b *CallGraphBuilder) FileDependencies(ctx context.Context, repoID uuid.UUID) ([]FileDependency, error) {
	files, err := b.store.ListFiles(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	imports, err := b.store.ListImportEdges(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list import edges: %w", err)
	}

	pathByFile := make(map[string]string, len(files))
	for _, f := range files {
		pathByFile[f.ID] = f.Path
	}
	deps := make([]FileDependency, 0, len(imports))
	for _, imp := range imports {
		deps = append(deps, FileDependency{
			FromPath: pathByFile[imp.FromFileID],
			ToPath:   pathByFile[imp.ToFileID],
			ToModule: imp.ToModule,
			External: imp.ToFileID == "",
		})
	}
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].FromPath != deps[j].FromPath {
			return deps[i].FromPath < deps[j].FromPath
		}
		return deps[i].ToModule < deps[j].ToModule
	})
	return deps, nil
}

// loadGraph reads the already-resolved graph from the store. Run must
// have executed first for ToSymbolID to be populated.
func (b *CallGraphBuilder) loadGraph(ctx context.Context, repoID uuid.UUID) (*CallGraph, error) {
	symbols, err := b.store.ListSymbols(ctx, storage.SymbolFilter{RepoID: repoID})
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	files, err := b.store.ListFiles(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	edges, err := b.store.ListCallEdges(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list call edges: %w", err)
	}

	pathByFile := make(map[string]string, len(files))
	for _, f := range files {
		pathByFile[f.ID] = f.Path
	}
	graph := &CallGraph{}
	for _, s := range symbols {
		if s.Kind != storage.KindFunction && s.Kind != storage.KindMethod && s.Kind != storage.KindProcedure {
			continue
		}
		graph.Nodes = append(graph.Nodes, GraphNode{
			SymbolID: s.ID,
			Name:     s.Name,
			Kind:     string(s.Kind),
			FilePath: pathByFile[s.FileID],
		})
	}
	for _, e := range edges {
		graph.Edges = append(graph.Edges, GraphEdge{
			FromSymbolID: e.FromSymbolID,
			ToSymbolID:   e.ToSymbolID,
			ToName:       e.ToName,
			Line:         e.Line,
			IsExternal:   e.IsExternal,
		})
	}
	return graph, nil
}

// tarjanSCC computes strongly connected components, iteratively to
// stay safe on deep graphs.
func tarjanSCC(nodes []GraphNode, adj map[string][]string) [][]string {
	index := make(map[string]int, len(nodes))
	lowlink := make(map[string]int, len(nodes))
	onStack := make(map[string]bool, len(nodes))
	var stack []string
	var sccs [][]string
	next := 0

	type frame struct {
		id    string
		child int
	}

	var visit func(root string)
	visit = func(root string) {
		callStack := []frame{{id: root}}
		index[root] = next
		lowlink[root] = next
		next++
		stack = append(stack, root)
		onStack[root] = true

		for len(callStack) > 0 {
			f := &callStack[len(callStack)-1]
			if f.child < len(adj[f.id]) {
				child := adj[f.id][f.child]
				f.child++
				if _, seen := index[child]; !seen {
					index[child] = next
					lowlink[child] = next
					next++
					stack = append(stack, child)
					onStack[child] = true
					callStack = append(callStack, frame{id: child})
				} else if onStack[child] {
					if index[child] < lowlink[f.id] {
						lowlink[f.id] = index[child]
					}
				}
				continue
			}

			// Node finished: pop an SCC if this is a root.
			if lowlink[f.id] == index[f.id] {
				var scc []string
				for {
					top := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[top] = false
					scc = append(scc, top)
					if top == f.id {
						break
					}
				}
				sccs = append(sccs, scc)
			}
			callStack = callStack[:len(callStack)-1]
			if len(callStack) > 0 {
				parent := &callStack[len(callStack)-1]
				if lowlink[f.id] < lowlink[parent.id] {
					lowlink[parent.id] = lowlink[f.id]
				}
			}
		}
	}

	for _, n := range nodes {
		if _, seen := index[n.SymbolID]; !seen {
			visit(n.SymbolID)
		}
	}
	return sccs
}
