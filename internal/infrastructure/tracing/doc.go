/*
Package tracing provides lightweight request tracing for the sitepack server.

# Overview

Every HTTP request gets a root span; the mirror pipeline opens one child span
per stage (prepare, crawl, postprocess, archive, respond). Finished spans are
buffered and written to the structured log, so one trace ID ties together all
log lines of a download.

# Features

- Trace context propagation via X-Trace-ID / X-Span-ID headers
- Parent-child spans with ULID identifiers
- Gin middleware for automatic instrumentation
- Buffered span collection with drop-on-overflow

# Usage

	tracer := tracing.New("sitepack", logger.Logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	err := tracer.Trace(ctx, "crawl", func(ctx context.Context) error {
		return crawler.Crawl(ctx, target)
	})
*/
package tracing
