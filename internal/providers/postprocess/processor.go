package postprocess

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/charlievieth/fastwalk"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
)

// Stats summarizes one post-processing pass.
type Stats struct {
	Scanned   int // .html files visited
	Injected  int // files that received the cloaking block
	Repaired  int // files with mojibake replaced
	Rewritten int // files written back
	Legacy    int // files that are not valid UTF-8
}

// Processor rewrites mirrored HTML files in place.
type Processor struct {
	cloak  Cloak
	logger *zap.Logger
}

// New creates a Processor. Unknown cloak modes are rejected.
func New(cloak Cloak, logger *zap.Logger) (*Processor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := cloak.Block(""); err != nil {
		return nil, err
	}
	return &Processor{cloak: cloak, logger: logger}, nil
}

// Apply runs injection then repair on one document.
func Apply(html, block string) (out string, injected, repaired bool) {
	out, injected = Inject(html, block)
	fixed := Repair(out)
	return fixed, injected, fixed != out
}

// Process walks dir and rewrites every .html file. userAgent is the
// User-Agent of the request that triggered the mirror; it only matters in
// server cloak mode. Any read or write error aborts the pass.
func (p *Processor) Process(ctx context.Context, dir, userAgent string) (Stats, error) {
	block, err := p.cloak.Block(userAgent)
	if err != nil {
		return Stats{}, err
	}

	var scanned, injected, repaired, rewritten, legacy atomic.Int64

	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), ".html") {
			return nil
		}

		scanned.Add(1)
		res, err := p.rewriteFile(path, block)
		if err != nil {
			return err
		}
		if res.injected {
			injected.Add(1)
		}
		if res.repaired {
			repaired.Add(1)
		}
		if res.changed {
			rewritten.Add(1)
		}
		if res.charset != "" {
			legacy.Add(1)
		}
		return nil
	})

	stats := Stats{
		Scanned:   int(scanned.Load()),
		Injected:  int(injected.Load()),
		Repaired:  int(repaired.Load()),
		Rewritten: int(rewritten.Load()),
		Legacy:    int(legacy.Load()),
	}
	if err != nil {
		return stats, err
	}

	p.logger.Debug("post-processing finished",
		zap.String("dir", dir),
		zap.Int("scanned", stats.Scanned),
		zap.Int("injected", stats.Injected),
		zap.Int("repaired", stats.Repaired),
		zap.Int("legacy", stats.Legacy),
	)
	return stats, nil
}

type fileResult struct {
	changed  bool
	injected bool
	repaired bool
	// charset is the detected encoding of a file that is not UTF-8
	charset string
}

func (p *Processor) rewriteFile(path, block string) (fileResult, error) {
	var res fileResult

	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", path, err)
	}

	// Pages in other encodings are rewritten byte-for-byte like the rest;
	// the detection only surfaces them in the logs.
	if !utf8.Valid(data) {
		res.charset = DetectCharset(data)
		p.logger.Warn("html page is not utf-8",
			zap.String("path", path),
			zap.String("charset", res.charset),
		)
	}

	out, injected, repaired := Apply(string(data), block)
	res.injected, res.repaired = injected, repaired
	if !injected && !repaired {
		return res, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return res, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
		return res, fmt.Errorf("write %s: %w", path, err)
	}
	res.changed = true
	return res, nil
}

// DetectCharset guesses the encoding of an HTML document, lower-cased.
// It returns "unknown" when no guess is possible.
func DetectCharset(data []byte) string {
	result, err := chardet.NewHtmlDetector().DetectBest(data)
	if err != nil || result == nil || result.Charset == "" {
		return "unknown"
	}
	return strings.ToLower(result.Charset)
}
