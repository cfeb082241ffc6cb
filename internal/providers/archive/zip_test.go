package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	out := make(map[string]string, len(zr.File))
	var names []string
	for _, f := range zr.File {
		assert.False(t, strings.HasSuffix(f.Name, "/"), "unexpected directory entry %s", f.Name)
		assert.Equal(t, zip.Deflate, f.Method)
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = string(body)
		names = append(names, f.Name)
	}
	assert.IsIncreasing(t, names)
	return out
}

func TestWrite(t *testing.T) {
	files := map[string]string{
		"index.html":              "<html><head></head></html>",
		"about.html":              "<p>about</p>",
		"css/style.css":           strings.Repeat("body{margin:0}", 200),
		"img/deep/logo.png":       "\x89PNG\r\n\x1a\n",
		"_external/cdn.test/a.js": "console.log(1)",
		"empty.txt":               "",
	}
	dir := writeTree(t, files)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty-dir"), 0o755))

	p, err := New(9)
	require.NoError(t, err)

	var buf bytes.Buffer
	stats, err := p.Write(context.Background(), dir, &buf)
	require.NoError(t, err)

	assert.Equal(t, len(files), stats.Files)
	assert.Equal(t, int64(buf.Len()), stats.Compressed)

	var total int64
	for _, c := range files {
		total += int64(len(c))
	}
	assert.Equal(t, total, stats.Uncompressed)

	assert.Equal(t, files, readZip(t, buf.Bytes()))
}

func TestWriteEmptyDir(t *testing.T) {
	p, err := New(6)
	require.NoError(t, err)

	var buf bytes.Buffer
	stats, err := p.Write(context.Background(), t.TempDir(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Files)
	assert.Empty(t, readZip(t, buf.Bytes()))
}

func TestWriteLevels(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.txt": strings.Repeat("abcdefgh", 4096)})

	sizes := map[int]int{}
	for _, level := range []int{0, 1, 9} {
		p, err := New(level)
		require.NoError(t, err)

		var buf bytes.Buffer
		_, err = p.Write(context.Background(), dir, &buf)
		require.NoError(t, err)
		assert.Len(t, readZip(t, buf.Bytes()), 1)
		sizes[level] = buf.Len()
	}
	assert.Greater(t, sizes[0], sizes[9])
}

func TestNewRejectsLevel(t *testing.T) {
	for _, level := range []int{-1, 10} {
		_, err := New(level)
		assert.Error(t, err, "level %d", level)
	}
}

func TestWriteRejectsSymlink(t *testing.T) {
	dir := writeTree(t, map[string]string{"index.html": "x"})
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing"), filepath.Join(dir, "link")))

	p, err := New(9)
	require.NoError(t, err)

	_, err = p.Write(context.Background(), dir, io.Discard)
	assert.ErrorContains(t, err, "symlink")
}

func TestWriteMissingDir(t *testing.T) {
	p, err := New(9)
	require.NoError(t, err)

	_, err = p.Write(context.Background(), filepath.Join(t.TempDir(), "nope"), io.Discard)
	assert.Error(t, err)
}

func TestWriteCancelled(t *testing.T) {
	dir := writeTree(t, map[string]string{"index.html": "x"})
	p, err := New(9)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Write(ctx, dir, io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteFile(t *testing.T) {
	dir := writeTree(t, map[string]string{"index.html": "<head></head>"})
	tmp := t.TempDir()

	p, err := New(9)
	require.NoError(t, err)

	path, stats, err := p.WriteFile(context.Background(), dir, tmp, "example-*.zip")
	require.NoError(t, err)
	assert.Equal(t, tmp, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "example-"))
	assert.True(t, strings.HasSuffix(path, ".zip"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), stats.Compressed)
	assert.Equal(t, map[string]string{"index.html": "<head></head>"}, readZip(t, data))
}

func TestWriteFileRemovesPartialArchive(t *testing.T) {
	dir := writeTree(t, map[string]string{"index.html": "x"})
	require.NoError(t, os.Symlink("missing", filepath.Join(dir, "link")))
	tmp := t.TempDir()

	p, err := New(9)
	require.NoError(t, err)

	_, _, err = p.WriteFile(context.Background(), dir, tmp, "example-*.zip")
	require.Error(t, err)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
