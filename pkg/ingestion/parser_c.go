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
	"github.com/smacker/go-tree-sitter/c"

	"github.com/kraklabs/codequal/pkg/storage"
)

// CParser extracts symbols from C source using Tree-sitter.
//
// Extracts:
//   - Top-level function definitions with verbatim signatures
//   - Named structs, unions and enums, and typedefs, as classes
//   - #include directives as imports
//   - Call expressions
//
// A /** ... */ block immediately preceding a function is recorded as
// its docstring.
type CParser struct{}

// NewCParser creates a C parser.
func NewCParser() *CParser {
	return &CParser{}
}

// Language returns the language tag.
func (p *CParser) Language() string { return LangC }

// Parse extracts symbols, call sites, and import sites from source.
func (p *CParser) Parse(source []byte, path string) (*ParseResult, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse %s: %w", path, err)
	}
	defer tree.Close()

	result := &ParseResult{}
	lines := strings.Split(string(source), "\n")
	walk := &cWalk{source: source, lines: lines, result: result}
	walk.visit(tree.RootNode(), "")
	return result, nil
}

// cWalk carries state for one C AST traversal.
type cWalk struct {
	source []byte
	lines  []string
	result *ParseResult
}

func (w *cWalk) visit(node *sitter.Node, enclosing string) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "function_definition":
		name := w.declaratorName(node.ChildByFieldName("declarator"))
		if name == "" {
			break
		}
		startLine := int(node.StartPoint().Row) + 1
		sym := RawSymbol{
			Name:      name,
			Kind:      storage.KindFunction,
			LineStart: startLine,
			LineEnd:   int(node.EndPoint().Row) + 1,
			Signature: w.functionSignature(node),
			Docstring: cDocComment(w.lines, startLine),
		}
		w.result.Symbols = append(w.result.Symbols, sym)

		// Calls inside the body attribute to this function.
		for i := 0; i < int(node.ChildCount()); i++ {
			w.visit(node.Child(i), name)
		}
		return

	case "struct_specifier", "union_specifier", "enum_specifier":
		// Only named definitions with a body; bare references to a
		// struct type also parse as struct_specifier.
		if nameNode := node.ChildByFieldName("name"); nameNode != nil && node.ChildByFieldName("body") != nil {
			w.result.Symbols = append(w.result.Symbols, RawSymbol{
				Name:      nameNode.Content(w.source),
				Kind:      storage.KindClass,
				LineStart: int(node.StartPoint().Row) + 1,
				LineEnd:   int(node.EndPoint().Row) + 1,
				Signature: strings.SplitN(node.Content(w.source), "{", 2)[0] + "{...}",
			})
		}

	case "type_definition":
		if name := w.declaratorName(node.ChildByFieldName("declarator")); name != "" {
			w.result.Symbols = append(w.result.Symbols, RawSymbol{
				Name:      name,
				Kind:      storage.KindClass,
				LineStart: int(node.StartPoint().Row) + 1,
				LineEnd:   int(node.EndPoint().Row) + 1,
				Signature: firstLine(node.Content(w.source)),
			})
		}

	case "preproc_include":
		if pathNode := node.ChildByFieldName("path"); pathNode != nil {
			module := strings.Trim(pathNode.Content(w.source), `"<>`)
			w.result.Imports = append(w.result.Imports, ImportSite{
				Module: module,
				Line:   int(node.StartPoint().Row) + 1,
				Kind:   "include",
			})
		}

	case "call_expression":
		if callee := w.callName(node); callee != "" && !cCallKeywords[callee] {
			w.result.Calls = append(w.result.Calls, CallSite{
				CallerName: enclosing,
				CalleeName: callee,
				Line:       int(node.StartPoint().Row) + 1,
			})
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		w.visit(node.Child(i), enclosing)
	}
}

// cCallKeywords are identifier-like tokens that parse as calls but are
// not function references.
var cCallKeywords = map[string]bool{
	"if": true, "while": true, "for": true, "switch": true,
	"return": true, "sizeof": true,
}

// declaratorName descends declarator wrappers (pointers, parens) to
// the underlying identifier.
func (w *cWalk) declaratorName(decl *sitter.Node) string {
	for decl != nil {
		switch decl.Type() {
		case "identifier", "type_identifier", "field_identifier":
			return decl.Content(w.source)
		case "function_declarator", "pointer_declarator", "parenthesized_declarator", "array_declarator":
			if inner := decl.ChildByFieldName("declarator"); inner != nil {
				decl = inner
				continue
			}
			return ""
		default:
			return ""
		}
	}
	return ""
}

// functionSignature preserves return type and parameter list verbatim:
// everything from the definition start to the body.
func (w *cWalk) functionSignature(fn *sitter.Node) string {
	body := fn.ChildByFieldName("body")
	if body == nil {
		return firstLine(fn.Content(w.source))
	}
	sig := string(w.source[fn.StartByte():body.StartByte()])
	return strings.Join(strings.Fields(sig), " ")
}

// callName extracts the called function name from a call expression.
func (w *cWalk) callName(call *sitter.Node) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return fn.Content(w.source)
	case "field_expression":
		if field := fn.ChildByFieldName("field"); field != nil {
			return field.Content(w.source)
		}
	}
	return ""
}

// cDocComment collects a /** ... */ block immediately above startLine.
// Searches at most ten lines back, same window the JavaDoc convention
// needs in practice.
func cDocComment(lines []string, startLine int) string {
	if startLine <= 1 || startLine-1 > len(lines) {
		return ""
	}
	var docLines []string
	inBlock := false
	stop := startLine - 10
	if stop < 1 {
		stop = 1
	}
	for i := startLine - 1; i >= stop; i-- {
		line := strings.TrimSpace(lines[i-1])
		if !inBlock {
			if line == "" {
				continue
			}
			if !strings.HasSuffix(line, "*/") {
				return ""
			}
			inBlock = true
			line = strings.TrimSpace(strings.TrimSuffix(line, "*/"))
			line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
			if line != "" {
				docLines = append([]string{line}, docLines...)
			}
			continue
		}
		if strings.HasPrefix(line, "/**") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "/**"))
			if line != "" {
				docLines = append([]string{line}, docLines...)
			}
			return strings.TrimSpace(strings.Join(docLines, " "))
		}
		if strings.HasPrefix(line, "*") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
			if line != "" {
				docLines = append([]string{line}, docLines...)
			}
			continue
		}
		// Plain /* block or unrelated code: not a doc comment.
		return ""
	}
	return ""
}

// firstLine returns the first line of s, trimmed.
func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
