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
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/kraklabs/codequal/pkg/storage"
)

const (
	// minhashFunctions is the sketch width H. 128 hashes bound the
	// Jaccard estimation error to roughly 1/sqrt(128) ~ 9%.
	minhashFunctions = 128

	// shingleSize is the k in k-shingles, in tokens.
	shingleSize = 40

	// defaultMinSimilarity is the estimated-Jaccard reporting floor.
	defaultMinSimilarity = 0.8

	// snippetLimit caps stored duplicate snippets.
	snippetLimit = 500
)

// DuplicationDetector finds near-duplicate file pairs with MinHash
// sketches over token shingles.
type DuplicationDetector struct {
	store         storage.Store
	logger        *slog.Logger
	minSimilarity float64
}

// NewDuplicationDetector creates a detector. minSimilarity <= 0 selects
// the 0.8 default.
func NewDuplicationDetector(store storage.Store, minSimilarity float64, logger *slog.Logger) *DuplicationDetector {
	if logger == nil {
		logger = slog.Default()
	}
	if minSimilarity <= 0 {
		minSimilarity = defaultMinSimilarity
	}
	return &DuplicationDetector{store: store, logger: logger, minSimilarity: minSimilarity}
}

// fileSketch is one file's MinHash signature plus the token stream it
// was built from, kept for line-range reporting.
type fileSketch struct {
	file      storage.File
	signature []uint64
	tokens    []token
}

// token is one normalised token with its source line.
type token struct {
	text string
	line int
}

// Run sketches every parseable file and persists pairs whose estimated
// Jaccard similarity reaches the floor. Pairs are canonical:
// file1_id < file2_id.
func (d *DuplicationDetector) Run(ctx context.Context, repoID uuid.UUID) ([]storage.DuplicationPair, error) {
	start := time.Now()

	files, err := d.store.ListFiles(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	var sketches []fileSketch
	for _, f := range files {
		if f.ParseError != "" {
			continue
		}
		tokens := tokenize(f.Content, f.Language)
		if len(tokens) < shingleSize {
			continue
		}
		sketches = append(sketches, fileSketch{
			file:      f,
			signature: minhashSignature(tokens),
			tokens:    tokens,
		})
	}

	// O(F^2) over sketches; the signature comparison itself is cheap.
	var pairs []storage.DuplicationPair
	for i := 0; i < len(sketches); i++ {
		for j := i + 1; j < len(sketches); j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			a, b := sketches[i], sketches[j]
			sim := estimatedJaccard(a.signature, b.signature)
			if sim < d.minSimilarity {
				continue
			}
			if a.file.ID > b.file.ID {
				a, b = b, a
			}
			pairs = append(pairs, buildPair(repoID, a, b, sim))
		}
	}

	if err := d.store.ReplaceDuplicationPairs(ctx, repoID, pairs); err != nil {
		return nil, fmt.Errorf("persist duplication pairs: %w", err)
	}

	d.logger.Info("analysis.duplication.complete",
		"repo_id", repoID,
		"files_sketched", len(sketches),
		"pairs", len(pairs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pairs, nil
}

// Percentage returns the share of files involved in at least one
// duplication pair, 0-100. The gate consumes this.
func (d *DuplicationDetector) Percentage(ctx context.Context, repoID uuid.UUID) (float64, error) {
	files, err := d.store.ListFiles(ctx, repoID)
	if err != nil {
		return 0, fmt.Errorf("list files: %w", err)
	}
	if len(files) == 0 {
		return 0, nil
	}
	pairs, err := d.store.ListDuplicationPairs(ctx, repoID)
	if err != nil {
		return 0, fmt.Errorf("list duplication pairs: %w", err)
	}
	involved := make(map[string]bool)
	for _, p := range pairs {
		involved[p.File1ID] = true
		involved[p.File2ID] = true
	}
	return float64(len(involved)) / float64(len(files)) * 100.0, nil
}

// buildPair materialises one canonical pair with the longest common
// token run of the two streams.
func buildPair(repoID uuid.UUID, a, b fileSketch, sim float64) storage.DuplicationPair {
	startA, endA, startB, endB, runTokens := longestCommonRun(a.tokens, b.tokens)
	lines := endA - startA + 1
	if lines < 0 {
		lines = 0
	}

	var snippet string
	if runTokens > 0 {
		fileLines := strings.Split(a.file.Content, "\n")
		if startA >= 1 && endA <= len(fileLines) {
			snippet = strings.Join(fileLines[startA-1:endA], "\n")
			if len(snippet) > snippetLimit {
				snippet = snippet[:snippetLimit]
			}
		}
	}

	return storage.DuplicationPair{
		ID:              fmt.Sprintf("dup:%s|%s", a.file.ID, b.file.ID),
		RepoID:          repoID,
		File1ID:         a.file.ID,
		File1Range:      storage.LineRange{Start: startA, End: endA},
		File2ID:         b.file.ID,
		File2Range:      storage.LineRange{Start: startB, End: endB},
		Similarity:      math.Round(sim*10000) / 10000,
		DuplicateLines:  lines,
		DuplicateTokens: runTokens,
		Snippet:         snippet,
	}
}

// commentPrefixes per language for the tokenizer's comment stripping.
var lineCommentPrefixes = map[string][]string{
	"python":   {"#"},
	"c":        {"//"},
	"assembly": {";", "#", "//"},
	"cobol":    {"*"},
}

var (
	stringLit  = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`)
	numberLit  = regexp.MustCompile(`\b\d[\d_.xXa-fA-F]*\b`)
	identRunes = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_\-]*|<LIT>|[^\sA-Za-z0-9_]`)
)

// tokenize normalises one file into a token stream: comments dropped,
// string and numeric literals collapsed to <LIT>, identifiers
// lowercased, single-char punctuation dropped.
func tokenize(content, language string) []token {
	var tokens []token
	prefixes := lineCommentPrefixes[language]

	for lineNum, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		skip := false
		for _, p := range prefixes {
			if strings.HasPrefix(line, p) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}

		line = stringLit.ReplaceAllString(line, "<LIT>")
		line = numberLit.ReplaceAllString(line, "<LIT>")

		for _, tok := range identRunes.FindAllString(line, -1) {
			if len(tok) <= 1 && !unicode.IsLetter(rune(tok[0])) {
				continue
			}
			tokens = append(tokens, token{text: strings.ToLower(tok), line: lineNum + 1})
		}
	}
	return tokens
}

// minhashSignature computes an H-wide MinHash signature over the
// k-shingles of the token stream. Hash family i is xxhash seeded by
// mixing i into the shingle bytes.
func minhashSignature(tokens []token) []uint64 {
	signature := make([]uint64, minhashFunctions)
	for i := range signature {
		signature[i] = math.MaxUint64
	}

	var seed [8]byte
	for s := 0; s+shingleSize <= len(tokens); s++ {
		var sb strings.Builder
		for t := s; t < s+shingleSize; t++ {
			sb.WriteString(tokens[t].text)
			sb.WriteByte(0x1f)
		}
		base := xxhash.Sum64String(sb.String())
		for i := 0; i < minhashFunctions; i++ {
			binary.LittleEndian.PutUint64(seed[:], base)
			h := xxhash.Sum64(append(seed[:], byte(i), byte(i>>8)))
			if h < signature[i] {
				signature[i] = h
			}
		}
	}
	return signature
}

// estimatedJaccard is the fraction of matching signature slots.
func estimatedJaccard(a, b []uint64) float64 {
	match := 0
	for i := range a {
		if a[i] == b[i] {
			match++
		}
	}
	return float64(match) / float64(len(a))
}

// longestCommonRun finds the longest run of identical consecutive
// tokens across two streams and returns the 1-based line ranges it
// spans in each file, plus its token length.
func longestCommonRun(a, b []token) (startA, endA, startB, endB, length int) {
	// Standard DP over suffix run lengths, rolling one row.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	bestLen, bestI, bestJ := 0, 0, 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1].text == b[j-1].text {
				curr[j] = prev[j-1] + 1
				if curr[j] > bestLen {
					bestLen, bestI, bestJ = curr[j], i, j
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	if bestLen == 0 {
		return 0, 0, 0, 0, 0
	}
	startA = a[bestI-bestLen].line
	endA = a[bestI-1].line
	startB = b[bestJ-bestLen].line
	endB = b[bestJ-1].line
	return startA, endA, startB, endB, bestLen
}
