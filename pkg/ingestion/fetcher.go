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
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	// validGitURLPattern matches acceptable clone URL shapes.
	validGitURLPattern = regexp.MustCompile(`^(https?://|git@|ssh://|file://)[\w.\-@:/%]+$`)

	// dangerousCharsPattern matches characters that could be used for
	// command injection through the URL argument.
	dangerousCharsPattern = regexp.MustCompile(`[;&|$` + "`" + `\n\r\\]`)
)

// DefaultSizeCap is the default total uncompressed size accepted from
// an uploaded archive.
const DefaultSizeCap = 512 << 20 // 512 MiB

// Fetcher materializes a repository's source tree into a scratch
// directory, either by shallow-cloning a remote or by unpacking an
// uploaded zip archive. Scratch directories are tracked and removed by
// Close on every exit path.
type Fetcher struct {
	logger  *slog.Logger
	sizeCap int64

	tempDirs []string
}

// NewFetcher creates a fetcher. sizeCap <= 0 selects DefaultSizeCap.
func NewFetcher(logger *slog.Logger, sizeCap int64) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if sizeCap <= 0 {
		sizeCap = DefaultSizeCap
	}
	return &Fetcher{logger: logger, sizeCap: sizeCap}
}

// Close removes all scratch directories created by this fetcher.
func (f *Fetcher) Close() error {
	var firstErr error
	for _, dir := range f.tempDirs {
		if err := os.RemoveAll(dir); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("remove scratch dir %s: %w", dir, err)
		}
	}
	f.tempDirs = nil
	return firstErr
}

// Clone shallow-clones the requested branch of gitURL into a scratch
// directory and returns its root. The branch must exist remotely.
func (f *Fetcher) Clone(ctx context.Context, gitURL, branch string) (string, error) {
	if err := validateGitURL(gitURL); err != nil {
		return "", err
	}

	tmpDir, err := os.MkdirTemp("", "codequal-ingest-*")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	f.tempDirs = append(f.tempDirs, tmpDir)

	args := []string{"clone", "--depth", "1", "--quiet"}
	if branch != "" {
		args = append(args, "--branch", branch, "--single-branch")
	}
	args = append(args, gitURL, tmpDir)

	start := time.Now()
	cmd := exec.CommandContext(ctx, "git", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(string(output))
		if strings.Contains(msg, "Remote branch") || strings.Contains(msg, "not found in upstream") {
			return "", fmt.Errorf("branch %q not found in %s", branch, gitURL)
		}
		return "", fmt.Errorf("git clone failed: %s: %w", msg, err)
	}

	f.logger.Info("ingest.fetch.clone.complete",
		"url", gitURL,
		"branch", branch,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return tmpDir, nil
}

// CommitSHA returns HEAD of a cloned tree, best effort.
func (f *Fetcher) CommitSHA(ctx context.Context, root string) string {
	cmd := exec.CommandContext(ctx, "git", "-C", root, "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// Unpack extracts archivePath (zip) into a scratch directory and
// returns its root. It rejects absolute entry paths, traversal via ..,
// symlinks, and archives whose total uncompressed size exceeds the cap.
func (f *Fetcher) Unpack(ctx context.Context, archivePath string) (string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	// Size check up front from the central directory.
	var total uint64
	for _, entry := range reader.File {
		total += entry.UncompressedSize64
		if total > uint64(f.sizeCap) {
			return "", fmt.Errorf("archive exceeds size cap of %d bytes", f.sizeCap)
		}
	}

	tmpDir, err := os.MkdirTemp("", "codequal-ingest-*")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	f.tempDirs = append(f.tempDirs, tmpDir)

	start := time.Now()
	for _, entry := range reader.File {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := f.extractEntry(entry, tmpDir); err != nil {
			return "", fmt.Errorf("extract %s: %w", entry.Name, err)
		}
	}

	f.logger.Info("ingest.fetch.unpack.complete",
		"archive", archivePath,
		"entries", len(reader.File),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return tmpDir, nil
}

// extractEntry writes one archive entry under root with traversal guards.
func (f *Fetcher) extractEntry(entry *zip.File, root string) error {
	name := entry.Name
	if filepath.IsAbs(name) {
		return fmt.Errorf("absolute path in archive")
	}
	cleaned := filepath.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("path escapes archive root")
	}
	dest := filepath.Join(root, cleaned)
	if !strings.HasPrefix(dest, filepath.Clean(root)+string(os.PathSeparator)) && dest != filepath.Clean(root) {
		return fmt.Errorf("path escapes archive root")
	}
	if entry.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("symlink entries are not allowed")
	}

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer dst.Close()

	// LimitReader backs the central-directory size check in case the
	// declared sizes were forged.
	if _, err := io.Copy(dst, io.LimitReader(src, f.sizeCap+1)); err != nil {
		return err
	}
	return nil
}

// DiscoveredFile is one parseable file found during the walk.
type DiscoveredFile struct {
	AbsPath  string
	RelPath  string // POSIX, repository-relative
	Language string
	Size     int64
}

// Discover walks root and returns the supported source files, plus a
// map of skip reasons to counts for logging.
func (f *Fetcher) Discover(ctx context.Context, root string, maxFileSize int64) ([]DiscoveredFile, map[string]int, error) {
	if maxFileSize <= 0 {
		maxFileSize = MaxDetectFileSize
	}
	skipped := map[string]int{}
	var files []DiscoveredFile

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			skipped["symlink"]++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			skipped["stat_error"]++
			return nil
		}
		if info.Size() > maxFileSize {
			skipped["too_large"]++
			return nil
		}

		head, err := readHead(path, 8192)
		if err != nil {
			skipped["read_error"]++
			return nil
		}
		if IsBinary(head) {
			skipped["binary"]++
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		lang := DetectLanguage(rel, head)
		if lang == LangUnknown {
			skipped["unsupported"]++
			return nil
		}

		files = append(files, DiscoveredFile{
			AbsPath:  path,
			RelPath:  filepath.ToSlash(rel),
			Language: lang,
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk repository: %w", err)
	}
	return files, skipped, nil
}

// readHead reads up to n bytes from the start of a file.
func readHead(path string, n int) ([]byte, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(fd, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

// validateGitURL validates a clone URL to prevent command injection.
func validateGitURL(gitURL string) error {
	if gitURL == "" {
		return fmt.Errorf("git URL is empty")
	}
	if dangerousCharsPattern.MatchString(gitURL) {
		return fmt.Errorf("git URL contains dangerous characters")
	}
	if !validGitURLPattern.MatchString(gitURL) {
		return fmt.Errorf("invalid git URL format: %s", gitURL)
	}
	return nil
}
