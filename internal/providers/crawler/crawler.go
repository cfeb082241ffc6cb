package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/sitepack/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// Resource-selection policies
const (
	PolicyRecursive = "recursive"
	PolicySelectors = "selectors"
)

// Target describes one mirror run.
type Target struct {
	URL       string
	Dir       string
	UserAgent string
}

// Crawler downloads a site into Target.Dir. The first fatal error aborts the
// crawl and is returned; partial output is left for the caller to discard.
type Crawler interface {
	Crawl(ctx context.Context, target Target) error
}

// Selector names an element and the attribute holding a resource URL.
type Selector struct {
	Tag  string
	Attr string
}

// String renders the selector as tag[attr].
func (s Selector) String() string {
	return s.Tag + "[" + s.Attr + "]"
}

// ParseSelectors parses "tag:attr" pairs.
func ParseSelectors(specs []string) ([]Selector, error) {
	out := make([]Selector, 0, len(specs))
	for _, spec := range specs {
		tag, attr, ok := strings.Cut(strings.TrimSpace(spec), ":")
		if !ok || tag == "" || attr == "" {
			return nil, fmt.Errorf("selector %q must be tag:attr", spec)
		}
		out = append(out, Selector{Tag: strings.ToLower(tag), Attr: strings.ToLower(attr)})
	}
	return out, nil
}

// DefaultSelectors are the asset references mirrored by default.
func DefaultSelectors() []Selector {
	return []Selector{
		{Tag: "img", Attr: "src"},
		{Tag: "link", Attr: "href"},
		{Tag: "script", Attr: "src"},
	}
}

// Options configures either policy.
type Options struct {
	Policy            string
	MaxDepth          int
	Selectors         []Selector
	Exclude           []string
	Parallelism       int
	UserAgent         string // overrides Target.UserAgent when set
	RequestTimeout    time.Duration
	IgnoreAssetErrors bool
}

// New builds the crawler for opts.Policy.
func New(opts Options, client *Client, logger *zap.Logger, metrics *monitoring.Metrics) (Crawler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if len(opts.Selectors) == 0 {
		opts.Selectors = DefaultSelectors()
	}

	excluder, err := NewExcluder(opts.Exclude)
	if err != nil {
		return nil, err
	}

	switch opts.Policy {
	case PolicyRecursive, "":
		if opts.MaxDepth < 1 {
			opts.MaxDepth = 2
		}
		return &Recursive{
			opts:     opts,
			client:   client,
			excluder: excluder,
			logger:   logger.Named("recursive"),
			metrics:  metrics,
		}, nil
	case PolicySelectors:
		if client == nil {
			return nil, fmt.Errorf("selectors policy requires a fetch client")
		}
		return &Selectors{
			opts:     opts,
			client:   client,
			excluder: excluder,
			logger:   logger.Named("selectors"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown mirror policy %q", opts.Policy)
	}
}

// NormalizeURL adds an https scheme to bare hosts and requires http(s).
func NormalizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	return u, nil
}

func userAgent(opts Options, target Target) string {
	if opts.UserAgent != "" {
		return opts.UserAgent
	}
	return target.UserAgent
}

// firstError keeps the first error reported by concurrent workers.
type firstError struct {
	mu  sync.Mutex
	err error
}

func (f *firstError) set(err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false
	}
	f.err = err
	return true
}

func (f *firstError) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
