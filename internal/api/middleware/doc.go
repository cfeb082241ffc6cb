// Package middleware provides the gin middleware stack for the sitepack server.
//
// Middleware stack includes:
//   - Recovery: zap-logged panic recovery returning JSON 500s
//   - RequestLogger: one structured log line per request
//   - CORS: cross-origin access for the download form
//   - RateLimit: per-IP token bucket with idle client cleanup
//   - RequireSession: bearer token check for protected routes
//
// Every rejection is a JSON body of the form {"message": "..."}.
//
// Example Usage:
//
//	router.Use(middleware.Recovery(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
//	router.POST("/download", middleware.RequireSession(authService), handlers.Download)
package middleware
