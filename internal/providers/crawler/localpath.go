package crawler

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ExternalDir holds resources fetched from hosts other than the target's.
const ExternalDir = "_external"

// IsHTML reports whether a response is an HTML document, trusting the
// Content-Type header first and sniffing the body otherwise.
func IsHTML(contentType string, body []byte) bool {
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			switch mediaType {
			case "text/html", "application/xhtml+xml":
				return true
			case "application/octet-stream":
			default:
				return false
			}
		}
	}
	mt := mimetype.Detect(body)
	return mt.Is("text/html") || mt.Is("application/xhtml+xml")
}

// LocalPath maps a resource URL to a slash-separated path relative to the
// mirror root. rootHost is the host of the crawl target.
//
//	https://example.com/            -> index.html
//	https://example.com/docs/       -> docs/index.html
//	https://example.com/about       -> about.html (when html)
//	https://example.com/a.css?v=2   -> a.css
//	https://cdn.example.net/x.js    -> _external/cdn.example.net/x.js
func LocalPath(rootHost string, u *url.URL, html bool) string {
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		p += "index.html"
	}

	// Clean against a virtual root so ".." cannot climb out
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		p = "index.html"
	}

	if html && path.Ext(p) == "" {
		p += ".html"
	}

	if !strings.EqualFold(u.Host, rootHost) {
		p = path.Join(ExternalDir, safeHost(u.Host), p)
	}
	return p
}

func safeHost(host string) string {
	return strings.NewReplacer(":", "_", "\\", "_", "/", "_").Replace(strings.ToLower(host))
}

// Resolve joins rel onto dir and refuses results outside dir.
func Resolve(dir, rel string) (string, error) {
	full := filepath.Join(dir, filepath.FromSlash(rel))
	within, err := filepath.Rel(dir, full)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %s", rel, dir)
	}
	return full, nil
}

// WriteFile stores data at rel under dir, creating parent directories.
// The write goes through a temp file and rename, so concurrent writers of
// the same path never interleave.
func WriteFile(dir, rel string, data []byte) (string, error) {
	full, err := Resolve(dir, rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create directory for %s: %w", rel, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".part-*")
	if err != nil {
		return "", fmt.Errorf("create %s: %w", rel, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close %s: %w", rel, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("chmod %s: %w", rel, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename %s: %w", rel, err)
	}
	return full, nil
}
