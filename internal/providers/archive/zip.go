package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/klauspost/compress/flate"
)

// Stats describes a finished archive.
type Stats struct {
	Files        int
	Uncompressed int64
	Compressed   int64 // bytes written to the destination
}

// Packager zips a directory tree.
type Packager struct {
	level int
}

// New creates a packager using the given Deflate level (0-9).
func New(level int) (*Packager, error) {
	if level < flate.NoCompression || level > flate.BestCompression {
		return nil, fmt.Errorf("compression level %d out of range", level)
	}
	return &Packager{level: level}, nil
}

// Write streams a ZIP of every regular file under dir into w. Entries are
// named by their slash-separated path relative to dir, sorted, and no
// directory entries are written. Symlinks are rejected.
func (p *Packager) Write(ctx context.Context, dir string, w io.Writer) (Stats, error) {
	files, err := collect(ctx, dir)
	if err != nil {
		return Stats{}, err
	}

	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, p.level)
	})

	stats := Stats{}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		n, err := addFile(zw, dir, rel)
		if err != nil {
			return stats, err
		}
		stats.Files++
		stats.Uncompressed += n
	}

	if err := zw.Close(); err != nil {
		return stats, fmt.Errorf("finalize archive: %w", err)
	}
	stats.Compressed = cw.n
	return stats, nil
}

// WriteFile builds the archive in a temp file inside tmpDir named after
// pattern (see os.CreateTemp) and returns its path. The caller removes it.
func (p *Packager) WriteFile(ctx context.Context, dir, tmpDir, pattern string) (string, Stats, error) {
	f, err := os.CreateTemp(tmpDir, pattern)
	if err != nil {
		return "", Stats{}, fmt.Errorf("create temp archive: %w", err)
	}

	stats, err := p.Write(ctx, dir, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close temp archive: %w", closeErr)
	}
	if err != nil {
		os.Remove(f.Name())
		return "", stats, err
	}
	return f.Name(), stats, nil
}

func collect(ctx context.Context, dir string) ([]string, error) {
	var (
		mu    sync.Mutex
		files []string
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		switch {
		case d.IsDir():
			return nil
		case d.Type()&fs.ModeSymlink != 0:
			return fmt.Errorf("refusing to archive symlink %s", path)
		case !d.Type().IsRegular():
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		mu.Lock()
		files = append(files, filepath.ToSlash(rel))
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	sort.Strings(files)
	return files, nil
}

func addFile(zw *zip.Writer, dir, rel string) (int64, error) {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", rel, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, fmt.Errorf("header %s: %w", rel, err)
	}
	header.Name = rel
	header.Method = zip.Deflate

	entry, err := zw.CreateHeader(header)
	if err != nil {
		return 0, fmt.Errorf("add %s: %w", rel, err)
	}
	n, err := io.Copy(entry, f)
	if err != nil {
		return n, fmt.Errorf("compress %s: %w", rel, err)
	}
	return n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
