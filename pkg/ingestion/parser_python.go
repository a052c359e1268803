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

package ingestion

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/kraklabs/codequal/pkg/storage"
)

// PythonParser extracts symbols from Python source using Tree-sitter.
//
// Extracts:
//   - Function definitions (def / async def), flattened when nested
//   - Methods (functions enclosed in a class body)
//   - Classes
//   - Module-level variable assignments
//   - Call sites (identifier and attribute calls)
//   - Imports (import X, from X import Y)
//
// The first string literal in a function or class body is recorded as
// its docstring.
type PythonParser struct{}

// NewPythonParser creates a Python parser.
func NewPythonParser() *PythonParser {
	return &PythonParser{}
}

// Language returns the language tag.
func (p *PythonParser) Language() string { return LangPython }

// Parse extracts symbols, call sites, and import sites from source.
func (p *PythonParser) Parse(source []byte, path string) (*ParseResult, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse %s: %w", path, err)
	}
	defer tree.Close()

	result := &ParseResult{}
	walk := &pyWalk{source: source, result: result}
	walk.visit(tree.RootNode(), "", false)
	return result, nil
}

// pyWalk carries state for one Python AST traversal.
type pyWalk struct {
	source []byte
	result *ParseResult
}

// visit walks node with the enclosing symbol name and class context.
func (w *pyWalk) visit(node *sitter.Node, enclosing string, inClass bool) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "function_definition":
		name := w.childContent(node, "name")
		kind := storage.KindFunction
		if inClass {
			kind = storage.KindMethod
		}
		params := w.childContent(node, "parameters")
		sym := RawSymbol{
			Name:      name,
			Kind:      kind,
			LineStart: int(node.StartPoint().Row) + 1,
			LineEnd:   int(node.EndPoint().Row) + 1,
			Signature: fmt.Sprintf("def %s%s", name, params),
			Docstring: w.bodyDocstring(node),
		}
		w.result.Symbols = append(w.result.Symbols, sym)

		// Nested definitions are flattened; children see this symbol
		// as the enclosing caller and leave the class context.
		for i := 0; i < int(node.ChildCount()); i++ {
			w.visit(node.Child(i), name, false)
		}
		return

	case "class_definition":
		name := w.childContent(node, "name")
		sig := "class " + name
		if args := w.childContent(node, "superclasses"); args != "" {
			sig += args
		}
		sym := RawSymbol{
			Name:      name,
			Kind:      storage.KindClass,
			LineStart: int(node.StartPoint().Row) + 1,
			LineEnd:   int(node.EndPoint().Row) + 1,
			Signature: sig,
			Docstring: w.bodyDocstring(node),
		}
		w.result.Symbols = append(w.result.Symbols, sym)

		for i := 0; i < int(node.ChildCount()); i++ {
			w.visit(node.Child(i), enclosing, true)
		}
		return

	case "assignment":
		// Module-level variables only: enclosing is empty and we are
		// not inside a class body.
		if enclosing == "" && !inClass {
			if left := node.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
				w.result.Symbols = append(w.result.Symbols, RawSymbol{
					Name:      left.Content(w.source),
					Kind:      storage.KindVariable,
					LineStart: int(node.StartPoint().Row) + 1,
					LineEnd:   int(node.EndPoint().Row) + 1,
				})
			}
		}

	case "call":
		if callee := w.calleeName(node); callee != "" {
			w.result.Calls = append(w.result.Calls, CallSite{
				CallerName: enclosing,
				CalleeName: callee,
				Line:       int(node.StartPoint().Row) + 1,
			})
		}

	case "import_statement", "import_from_statement":
		w.collectImports(node)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		w.visit(node.Child(i), enclosing, inClass)
	}
}

// childContent returns the text of a named field child, or "".
func (w *pyWalk) childContent(node *sitter.Node, field string) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return child.Content(w.source)
}

// calleeName extracts the called name: bare identifiers directly,
// attribute calls by their last component (obj.method -> method).
func (w *pyWalk) calleeName(call *sitter.Node) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return fn.Content(w.source)
	case "attribute":
		if attr := fn.ChildByFieldName("attribute"); attr != nil {
			return attr.Content(w.source)
		}
	}
	return ""
}

// bodyDocstring returns the first string literal of a definition body.
func (w *pyWalk) bodyDocstring(def *sitter.Node) string {
	body := def.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first == nil || first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str == nil || str.Type() != "string" {
		return ""
	}
	return strings.TrimSpace(stripPyString(str.Content(w.source)))
}

// collectImports records module names from an import statement.
func (w *pyWalk) collectImports(node *sitter.Node) {
	line := int(node.StartPoint().Row) + 1
	if node.Type() == "import_from_statement" {
		if mod := node.ChildByFieldName("module_name"); mod != nil {
			w.result.Imports = append(w.result.Imports, ImportSite{
				Module: mod.Content(w.source),
				Line:   line,
				Kind:   "import",
			})
		}
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			w.result.Imports = append(w.result.Imports, ImportSite{
				Module: child.Content(w.source),
				Line:   line,
				Kind:   "import",
			})
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				w.result.Imports = append(w.result.Imports, ImportSite{
					Module: name.Content(w.source),
					Line:   line,
					Kind:   "import",
				})
			}
		}
	}
}

// stripPyString removes string prefixes and quotes from a Python
// string literal.
func stripPyString(lit string) string {
	s := lit
	// Drop prefix letters (r, b, u, f in any case/combination).
	for len(s) > 0 {
		c := s[0]
		if c == 'r' || c == 'R' || c == 'b' || c == 'B' || c == 'u' || c == 'U' || c == 'f' || c == 'F' {
			s = s[1:]
			continue
		}
		break
	}
	for _, quote := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, quote) && strings.HasSuffix(s, quote) && len(s) >= 2*len(quote) {
			return s[len(quote) : len(s)-len(quote)]
		}
	}
	return s
}
