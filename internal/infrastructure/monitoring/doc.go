/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the sitepack
server, tracking HTTP requests, mirror jobs and their pipeline stages, archive
sizes, and outbound fetches. Each Metrics value owns its own registry.

# Features

- HTTP request metrics (latency, status, response size) keyed by route
- Job metrics (final status, jobs in flight, lock wait time)
- Stage timings (crawl, postprocess, archive, respond)
- Archive size and entry count
- Outbound fetch results and circuit breaker transitions
- Go runtime and process collectors

# Usage

	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Time a pipeline stage
	timer := monitoring.NewTimer(metrics, "crawl")
	// ... perform operation ...
	timer.Stop("success")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
