package crawler

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/GriffinCanCode/sitepack/internal/infrastructure/monitoring"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Recursive mirrors a site with colly, following links and asset references
// up to MaxDepth. Only URLs that start with the requested URL are fetched.
type Recursive struct {
	opts     Options
	client   *Client
	excluder *Excluder
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// Crawl implements Crawler.
func (r *Recursive) Crawl(ctx context.Context, target Target) error {
	root, err := NormalizeURL(target.URL)
	if err != nil {
		return err
	}
	prefix := root.String()

	c := colly.NewCollector(
		colly.Async(true),
		colly.MaxDepth(r.opts.MaxDepth),
		colly.URLFilters(regexp.MustCompile("^"+regexp.QuoteMeta(prefix))),
		colly.StdlibContext(ctx),
	)
	c.MaxBodySize = 0
	if ua := userAgent(r.opts, target); ua != "" {
		c.UserAgent = ua
	}
	if r.client != nil {
		c.WithTransport(r.client.Transport())
	}
	if r.opts.RequestTimeout > 0 {
		c.SetRequestTimeout(r.opts.RequestTimeout)
	}
	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: r.opts.Parallelism}); err != nil {
		return fmt.Errorf("configure collector: %w", err)
	}

	var (
		failure firstError
		saved   atomic.Int64
	)

	c.OnRequest(func(req *colly.Request) {
		if failure.get() != nil || ctx.Err() != nil {
			req.Abort()
			return
		}
		if req.Depth > 1 && r.excluder.Excluded(req.URL) {
			r.logger.Debug("excluded", zap.String("url", req.URL.String()))
			req.Abort()
		}
	})

	c.OnResponse(func(resp *colly.Response) {
		html := IsHTML(resp.Headers.Get("Content-Type"), resp.Body)
		rel := LocalPath(root.Host, resp.Request.URL, html)

		if _, err := WriteFile(target.Dir, rel, resp.Body); err != nil {
			failure.set(fmt.Errorf("save %s: %w", resp.Request.URL, err))
			return
		}
		saved.Add(1)
		r.record("ok")
		r.logger.Debug("saved",
			zap.String("url", resp.Request.URL.String()),
			zap.String("path", rel),
			zap.Int("depth", resp.Request.Depth),
		)
	})

	c.OnError(func(resp *colly.Response, err error) {
		r.record("error")

		u := resp.Request.URL.String()
		cause := fmt.Errorf("fetch %s: %w", u, err)
		if resp.StatusCode >= 300 {
			cause = &StatusError{URL: u, Code: resp.StatusCode}
		}

		if resp.Request.Depth > 1 && r.opts.IgnoreAssetErrors {
			r.logger.Warn("skipping failed resource", zap.String("url", u), zap.Error(cause))
			return
		}
		if failure.set(cause) {
			r.logger.Debug("crawl aborted", zap.Error(cause))
		}
	})

	follow := func(attr string) colly.HTMLCallback {
		return func(e *colly.HTMLElement) {
			ref := e.Attr(attr)
			if skipReference(ref) {
				return
			}
			// Rejections (filtered, visited, too deep) are expected
			if err := e.Request.Visit(ref); err != nil {
				r.logger.Debug("not following", zap.String("ref", ref), zap.Error(err))
			}
		}
	}
	c.OnHTML("a[href]", follow("href"))
	for _, sel := range r.opts.Selectors {
		c.OnHTML(sel.String(), follow(sel.Attr))
	}

	if err := c.Visit(prefix); err != nil {
		return fmt.Errorf("visit %s: %w", prefix, err)
	}
	c.Wait()

	if err := failure.get(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if saved.Load() == 0 {
		return fmt.Errorf("no resources saved from %s", prefix)
	}

	r.logger.Info("crawl finished", zap.String("url", prefix), zap.Int64("files", saved.Load()))
	return nil
}

func (r *Recursive) record(result string) {
	if r.metrics != nil {
		r.metrics.RecordFetch(PolicyRecursive, result)
	}
}

// skipReference filters references that never point at a fetchable resource.
func skipReference(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return true
	}
	lower := strings.ToLower(ref)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:", "about:"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}
