package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Selectors fetches a single page and every resource referenced by the
// configured tag/attribute pairs. Links are not followed.
type Selectors struct {
	opts     Options
	client   *Client
	excluder *Excluder
	logger   *zap.Logger
}

// Crawl implements Crawler.
func (s *Selectors) Crawl(ctx context.Context, target Target) error {
	root, err := NormalizeURL(target.URL)
	if err != nil {
		return err
	}
	ua := userAgent(s.opts, target)

	page, err := s.client.Get(ctx, root.String(), ua)
	if err != nil {
		return err
	}

	html := IsHTML(page.ContentType, page.Body)
	if _, err := WriteFile(target.Dir, LocalPath(root.Host, root, html), page.Body); err != nil {
		return fmt.Errorf("save %s: %w", root, err)
	}
	if !html {
		return nil
	}

	refs, err := s.References(root, page.Body)
	if err != nil {
		return fmt.Errorf("parse %s: %w", root, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)

	for _, ref := range refs {
		g.Go(func() error {
			err := s.fetchAsset(gctx, root.Host, ref, target.Dir, ua)
			if err == nil {
				return nil
			}
			if s.opts.IgnoreAssetErrors && gctx.Err() == nil {
				s.logger.Warn("skipping failed resource", zap.String("url", ref.String()), zap.Error(err))
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("crawl finished", zap.String("url", root.String()), zap.Int("assets", len(refs)))
	return nil
}

// References extracts, resolves and de-duplicates the resource URLs that the
// selectors match in page, honoring a <base href> if present.
func (s *Selectors) References(page *url.URL, body []byte) ([]*url.URL, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	base := page
	if node := htmlquery.FindOne(doc, "//base[@href]"); node != nil {
		if href, err := page.Parse(htmlquery.SelectAttr(node, "href")); err == nil {
			base = href
		}
	}

	seen := map[string]bool{page.String(): true}
	var refs []*url.URL

	for _, sel := range s.opts.Selectors {
		nodes, err := htmlquery.QueryAll(doc, fmt.Sprintf("//%s[@%s]", sel.Tag, sel.Attr))
		if err != nil {
			return nil, fmt.Errorf("selector %s: %w", sel, err)
		}
		for _, node := range nodes {
			ref := htmlquery.SelectAttr(node, sel.Attr)
			if skipReference(ref) {
				continue
			}
			u, err := base.Parse(ref)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				continue
			}
			u.Fragment = ""
			if seen[u.String()] || s.excluder.Excluded(u) {
				continue
			}
			seen[u.String()] = true
			refs = append(refs, u)
		}
	}
	return refs, nil
}

func (s *Selectors) fetchAsset(ctx context.Context, rootHost string, u *url.URL, dir, ua string) error {
	resp, err := s.client.Get(ctx, u.String(), ua)
	if err != nil {
		return err
	}
	rel := LocalPath(rootHost, u, IsHTML(resp.ContentType, resp.Body))
	if _, err := WriteFile(dir, rel, resp.Body); err != nil {
		return fmt.Errorf("save %s: %w", u, err)
	}
	s.logger.Debug("saved", zap.String("url", u.String()), zap.String("path", rel))
	return nil
}
