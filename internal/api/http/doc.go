// Package http provides HTTP handlers and routing for the sitepack API.
//
// Endpoints:
//   - Form: GET /
//   - Health: GET /health
//   - Metrics: GET /metrics
//   - Download: POST /download {"url": "..."}
//   - Job progress: GET /jobs/ws (WebSocket, when a feed is configured)
//   - Sessions: POST /auth/login, POST /auth/logout (only when auth is enabled)
//
// A successful download answers with the ZIP archive as an attachment named
// after the site. Every failure is JSON of the form {"message": "..."}: 400
// for unusable input, 500 for pipeline errors. When a streamed archive fails
// after bytes were sent, the connection is aborted instead.
//
// Example Usage:
//
//	handlers := http.NewHandlers(mirrorService, authService, logger)
//	http.RegisterRoutes(router, handlers, http.Routes{Metrics: metrics.Handler()})
package http
