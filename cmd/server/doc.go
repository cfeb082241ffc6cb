// Package main is the entry point for the sitepack server.
//
// sitepack mirrors a website on request, injects a cloaking block into
// every downloaded page, repairs a known mojibake sequence, and returns
// the result as a ZIP archive.
//
// The server provides:
//   - An HTML form at /
//   - POST /download {"url": "..."}
//   - Optional session login guarding downloads
//   - Prometheus metrics and rate limiting
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Production mode
//	./server -port 3001
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
//	# Hash a password for AUTH_USERS_FILE
//	./server -hash-password 's3cret-pass'
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown, waiting for in-flight downloads
package main
