package ingestion

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repo.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func TestUnpack_Basic(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"src/main.py": "def f(): pass\n",
		"lib/util.c":  "int add(int a, int b) { return a + b; }\n",
	})

	fetcher := NewFetcher(nil, 0)
	defer fetcher.Close()

	root, err := fetcher.Unpack(context.Background(), archive)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "src", "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "def f(): pass\n", string(data))
}

func TestUnpack_RejectsTraversal(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"../../etc/evil": "pwned",
	})

	fetcher := NewFetcher(nil, 0)
	defer fetcher.Close()

	_, err := fetcher.Unpack(context.Background(), archive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes archive root")
}

func TestUnpack_RejectsOversizedArchive(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"big.py": string(make([]byte, 2048)),
	})

	fetcher := NewFetcher(nil, 1024)
	defer fetcher.Close()

	_, err := fetcher.Unpack(context.Background(), archive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size cap")
}

func TestFetcherClose_RemovesScratchDirs(t *testing.T) {
	archive := writeZip(t, map[string]string{"a.py": "x = 1\n"})

	fetcher := NewFetcher(nil, 0)
	root, err := fetcher.Unpack(context.Background(), archive)
	require.NoError(t, err)

	require.NoError(t, fetcher.Close())
	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err), "Scratch dir should be removed on Close")
}

func TestDiscover_SkipsAndDetects(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))

	write := func(rel, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644))
	}
	write("src/main.py", "def f(): pass\n")
	write("src/util.c", "int x;\n")
	write(".git/config", "[core]\n")
	write("node_modules/pkg.py", "ignored\n")
	write("README.md", "# readme\n")
	write("image.py", "\x00\x01\x02binary")

	fetcher := NewFetcher(nil, 0)
	defer fetcher.Close()

	files, skipped, err := fetcher.Discover(context.Background(), root, 0)
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.RelPath)
	}
	assert.ElementsMatch(t, []string{"src/main.py", "src/util.c"}, paths)
	assert.Equal(t, 1, skipped["binary"])
	assert.Equal(t, 1, skipped["unsupported"])
}

func TestValidateGitURL(t *testing.T) {
	assert.NoError(t, validateGitURL("https://github.com/acme/repo.git"))
	assert.NoError(t, validateGitURL("git@github.com:acme/repo.git"))
	assert.Error(t, validateGitURL(""))
	assert.Error(t, validateGitURL("https://example.com/repo;rm -rf /"))
	assert.Error(t, validateGitURL("not a url"))
}
